// Package seq allocates the monotonically increasing Index values that
// anchor appended rows. The tail allocator derives the next index from the
// sheet itself; the Redis allocator keeps an atomic counter so concurrent
// workers never hand out the same block.
package seq

import (
	"context"
	"strconv"
	"strings"

	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
	"github.com/reelsheet/reelsheet/pkg/sheets"
)

// Allocator reserves a contiguous block of n indices against a destination
// sheet and returns the first index of the block.
type Allocator interface {
	Next(ctx context.Context, store sheets.Store, n int) (int64, error)
	Name() string
}

// TailAllocator derives indices by reading the sheet's last row. Not safe
// against concurrent writers: two appends racing between read and write
// can hand out the same block. The Redis allocator removes that window.
type TailAllocator struct{}

// NewTailAllocator creates the sheet-tail allocator.
func NewTailAllocator() *TailAllocator {
	return &TailAllocator{}
}

// Name implements Allocator.
func (a *TailAllocator) Name() string { return "tail" }

// Next implements Allocator. An empty sheet, a header-only sheet, or a
// tail whose first cell does not parse as an integer all start the
// sequence at 1.
func (a *TailAllocator) Next(ctx context.Context, store sheets.Store, n int) (int64, error) {
	last, err := TailIndex(ctx, store)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// TailIndex reads the last used index from the sheet, returning 0 when no
// data row carries one.
func TailIndex(ctx context.Context, store sheets.Store) (int64, error) {
	row, err := store.ReadLastRow(ctx)
	if err != nil {
		return 0, rserrors.Wrap(err, rserrors.CodeStoreRead, "read last row").
			WithContext("sheet", store.SheetID())
	}
	if len(row) == 0 {
		return 0, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
	if err != nil || v < 0 {
		// The tail is the header or hand-edited content; restart the
		// sequence rather than fail the append.
		return 0, nil
	}
	return v, nil
}
