// Package sheets provides access to the destination spreadsheet: a thin
// store abstraction, the Google Sheets implementation, and the writer that
// assures the header row and appends normalized batches.
package sheets

import (
	"context"
	"log/slog"

	"github.com/reelsheet/reelsheet/internal/model"
	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
)

// Store is read/append access to one destination spreadsheet. The store is
// append-only from this system's point of view: only row 1 is ever
// overwritten, and only to correct the header.
type Store interface {
	// ReadHeader returns row 1, or nil if the sheet has no rows.
	ReadHeader(ctx context.Context) ([]string, error)

	// ReadLastRow returns the literal last row of the sheet (which may be
	// the header), or nil if the sheet is empty.
	ReadLastRow(ctx context.Context) ([]string, error)

	// WriteHeader overwrites row 1 with the given header.
	WriteHeader(ctx context.Context, header []string) error

	// Append appends rows after the sheet's current content in insert-rows
	// mode and returns the written range.
	Append(ctx context.Context, rows [][]string) (string, error)

	// SheetID returns the destination spreadsheet identifier.
	SheetID() string

	// ServiceAccount returns the identity used for access, for error
	// messages that tell the user who to share the sheet with.
	ServiceAccount() string
}

// Opener creates a Store bound to a spreadsheet ID. The pipeline calls it
// after routing decides the destination.
type Opener func(ctx context.Context, sheetID string) (Store, error)

// minHeaderColumns is the smallest column count row 1 can have and still
// be trusted as our header. Fewer than this and the row is rewritten.
const minHeaderColumns = 5

// Writer appends batches of rows to a Store, assuring the header first and
// forcing every row to the schema width.
type Writer struct {
	store  Store
	logger *slog.Logger
}

// NewWriter creates a writer over an open store.
func NewWriter(store Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, logger: logger}
}

// EnsureHeader checks row 1 and rewrites it with the canonical header when
// it is absent, starts with the wrong first cell, or is too narrow.
// Idempotent: a correct header is left untouched. Known limitation: header
// presence is inferred from the literal first cell, so a hand-edited row 1
// gets overwritten.
func (w *Writer) EnsureHeader(ctx context.Context) error {
	header, err := w.store.ReadHeader(ctx)
	if err != nil {
		w.logger.Error("sheets.header.check.failed", "sheet", w.store.SheetID(), "error", err)
		// Try to write the header anyway; only row 1 is touched.
		if werr := w.store.WriteHeader(ctx, model.Headers); werr != nil {
			w.logger.Error("sheets.header.create.failed", "sheet", w.store.SheetID(), "error", werr)
			// Continue anyway; the append itself may still work.
			return nil
		}
		w.logger.Info("sheets.header.created", "sheet", w.store.SheetID(), "columns", model.ColumnCount)
		return nil
	}

	if len(header) >= minHeaderColumns && header[0] == model.Headers[0] {
		return nil
	}

	if err := w.store.WriteHeader(ctx, model.Headers); err != nil {
		return rserrors.Wrap(err, rserrors.CodeStoreWrite, "write header row").
			WithContext("sheet", w.store.SheetID())
	}
	w.logger.Info("sheets.header.created", "sheet", w.store.SheetID(), "columns", model.ColumnCount)
	return nil
}

// Append normalizes and appends a batch of rows, returning the written
// range. A permission denial becomes an actionable error naming the
// service account and the sharing steps.
func (w *Writer) Append(ctx context.Context, rows [][]string) (string, error) {
	w.logger.Info("sheets.append.start", "sheet", w.store.SheetID(), "rows", len(rows))

	if err := w.EnsureHeader(ctx); err != nil {
		return "", err
	}

	normalized := make([][]string, len(rows))
	for i, row := range rows {
		normalized[i] = model.NormalizeRow(row)
	}

	writtenRange, err := w.store.Append(ctx, normalized)
	if err != nil {
		if IsPermissionDenied(err) {
			return "", rserrors.PermissionDenied(w.store.ServiceAccount(), w.store.SheetID(), err)
		}
		w.logger.Error("sheets.append.failed", "sheet", w.store.SheetID(), "error", err)
		return "", rserrors.Wrap(err, rserrors.CodeStoreWrite, "append rows").
			WithContext("sheet", w.store.SheetID()).
			WithContext("rows", len(rows))
	}

	w.logger.Info("sheets.append.done", "sheet", w.store.SheetID(), "range", writtenRange, "rows", len(normalized))
	return writtenRange, nil
}

// Store returns the underlying store.
func (w *Writer) Store() Store {
	return w.store
}

// TailRows returns up to n trailing data rows, skipping the header when
// present. Serves the summary surfaces.
func TailRows(ctx context.Context, store interface {
	ReadAll(ctx context.Context) ([][]string, error)
}, n int) ([][]string, error) {
	values, err := store.ReadAll(ctx)
	if err != nil {
		return nil, rserrors.Wrap(err, rserrors.CodeStoreRead, "read sheet values")
	}
	if len(values) == 0 {
		return nil, nil
	}
	if len(values[0]) > 0 && values[0][0] == model.Headers[0] {
		values = values[1:]
	}
	if len(values) > n {
		values = values[len(values)-n:]
	}
	return values, nil
}
