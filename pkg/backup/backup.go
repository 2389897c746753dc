// Package backup mirrors every appended row into a local CSV so a store
// outage never loses extracted data. The file carries the same 21-column
// schema as the sheet and doubles as the offline source for summaries and
// exports.
package backup

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/reelsheet/reelsheet/internal/model"
	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
)

// CSVBackup appends rows to a CSV file, writing the header on first use.
type CSVBackup struct {
	mu   sync.Mutex
	path string
}

// NewCSVBackup creates a backup writer at the given path. The file and its
// parent directories are created lazily on first append.
func NewCSVBackup(path string) *CSVBackup {
	return &CSVBackup{path: path}
}

// Path returns the backup file location.
func (b *CSVBackup) Path() string { return b.path }

// Append writes rows to the backup file, normalizing each to the schema
// width. Rows are flushed before return so a crash cannot lose them.
func (b *CSVBackup) Append(rows [][]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return rserrors.Wrap(err, rserrors.CodeBackupWrite, "create backup directory").
			WithContext("path", b.path)
	}

	_, statErr := os.Stat(b.path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return rserrors.Wrap(err, rserrors.CodeBackupWrite, "open backup file").
			WithContext("path", b.path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(model.Headers); err != nil {
			return rserrors.Wrap(err, rserrors.CodeBackupWrite, "write backup header")
		}
	}
	for _, row := range rows {
		if err := w.Write(model.NormalizeRow(row)); err != nil {
			return rserrors.Wrap(err, rserrors.CodeBackupWrite, "write backup row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return rserrors.Wrap(err, rserrors.CodeBackupWrite, "flush backup file")
	}
	return f.Sync()
}

// Rows returns all data rows in the backup, header excluded. A missing
// file yields no rows and no error.
func (b *CSVBackup) Rows() ([][]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rserrors.Wrap(err, rserrors.CodeStoreRead, "open backup file").
			WithContext("path", b.path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, rserrors.Wrap(err, rserrors.CodeStoreRead, "read backup file").
				WithContext("path", b.path)
		}
		if len(record) > 0 && record[0] == model.Headers[0] {
			continue
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// Tail returns up to n trailing data rows.
func (b *CSVBackup) Tail(n int) ([][]string, error) {
	rows, err := b.Rows()
	if err != nil {
		return nil, err
	}
	if len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return rows, nil
}

// Count returns the number of data rows in the backup.
func (b *CSVBackup) Count() (int, error) {
	rows, err := b.Rows()
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
