package sheets

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/reelsheet/reelsheet/internal/model"
	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
)

// fakeStore keeps rows in memory and can inject failures.
type fakeStore struct {
	rows      [][]string
	appendErr error
	readErr   error
}

func (f *fakeStore) ReadHeader(ctx context.Context) ([]string, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if len(f.rows) == 0 {
		return nil, nil
	}
	return f.rows[0], nil
}

func (f *fakeStore) ReadLastRow(ctx context.Context) ([]string, error) {
	if len(f.rows) == 0 {
		return nil, nil
	}
	return f.rows[len(f.rows)-1], nil
}

func (f *fakeStore) WriteHeader(ctx context.Context, header []string) error {
	if len(f.rows) == 0 {
		f.rows = append(f.rows, header)
		return nil
	}
	f.rows[0] = header
	return nil
}

func (f *fakeStore) Append(ctx context.Context, rows [][]string) (string, error) {
	if f.appendErr != nil {
		return "", f.appendErr
	}
	start := len(f.rows) + 1
	f.rows = append(f.rows, rows...)
	return fmt.Sprintf("Sheet1!A%d:U%d", start, len(f.rows)), nil
}

func (f *fakeStore) ReadAll(ctx context.Context) ([][]string, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.rows, nil
}

func (f *fakeStore) SheetID() string        { return "fake-sheet" }
func (f *fakeStore) ServiceAccount() string { return "bot@test.iam.gserviceaccount.com" }

func TestEnsureHeader_EmptySheet(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, nil)

	if err := w.EnsureHeader(context.Background()); err != nil {
		t.Fatalf("EnsureHeader: %v", err)
	}
	if len(store.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(store.rows))
	}
	if store.rows[0][0] != "Index" {
		t.Errorf("header[0] = %q, want Index", store.rows[0][0])
	}
	if len(store.rows[0]) != model.ColumnCount {
		t.Errorf("header width = %d, want %d", len(store.rows[0]), model.ColumnCount)
	}
}

func TestEnsureHeader_ValidHeaderUntouched(t *testing.T) {
	custom := append([]string(nil), model.Headers...)
	custom[5] = "Renamed Column"
	store := &fakeStore{rows: [][]string{custom}}
	w := NewWriter(store, nil)

	if err := w.EnsureHeader(context.Background()); err != nil {
		t.Fatalf("EnsureHeader: %v", err)
	}
	if store.rows[0][5] != "Renamed Column" {
		t.Error("valid header should not be rewritten")
	}
}

func TestEnsureHeader_WrongFirstCell(t *testing.T) {
	store := &fakeStore{rows: [][]string{{"Name", "City", "Price", "Notes", "Status", "Extra"}}}
	w := NewWriter(store, nil)

	if err := w.EnsureHeader(context.Background()); err != nil {
		t.Fatalf("EnsureHeader: %v", err)
	}
	if store.rows[0][0] != "Index" {
		t.Errorf("header[0] = %q, want rewritten to Index", store.rows[0][0])
	}
}

func TestEnsureHeader_TooNarrow(t *testing.T) {
	store := &fakeStore{rows: [][]string{{"Index", "Timestamp"}}}
	w := NewWriter(store, nil)

	if err := w.EnsureHeader(context.Background()); err != nil {
		t.Fatalf("EnsureHeader: %v", err)
	}
	if len(store.rows[0]) != model.ColumnCount {
		t.Errorf("narrow header should be replaced, width = %d", len(store.rows[0]))
	}
}

func TestAppend_NormalizesWidth(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store, nil)

	written, err := w.Append(context.Background(), [][]string{
		{"1", "2026-01-01T00:00:00Z", "https://instagram.com/reel/x/"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if written == "" {
		t.Error("Append should return the written range")
	}
	// Header plus one data row.
	if len(store.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(store.rows))
	}
	if len(store.rows[1]) != model.ColumnCount {
		t.Errorf("data row width = %d, want %d", len(store.rows[1]), model.ColumnCount)
	}
}

func TestAppend_PermissionDenied(t *testing.T) {
	store := &fakeStore{appendErr: &googleapi.Error{Code: 403, Message: "The caller does not have permission"}}
	w := NewWriter(store, nil)

	_, err := w.Append(context.Background(), [][]string{{"1"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !rserrors.IsCode(err, rserrors.CodePermissionDenied) {
		t.Errorf("code = %v, want %v", rserrors.GetCode(err), rserrors.CodePermissionDenied)
	}
	if !strings.Contains(err.Error(), "bot@test.iam.gserviceaccount.com") {
		t.Errorf("error should name the service account: %v", err)
	}
}

func TestAppend_OtherErrorWrapped(t *testing.T) {
	store := &fakeStore{appendErr: fmt.Errorf("rate limited")}
	w := NewWriter(store, nil)

	_, err := w.Append(context.Background(), [][]string{{"1"}})
	if !rserrors.IsCode(err, rserrors.CodeStoreWrite) {
		t.Errorf("code = %v, want %v", rserrors.GetCode(err), rserrors.CodeStoreWrite)
	}
}

func TestIsPermissionDenied(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"googleapi 403", &googleapi.Error{Code: 403}, true},
		{"googleapi 500", &googleapi.Error{Code: 500}, false},
		{"string 403", fmt.Errorf("googleapi: got HTTP 403"), true},
		{"grpc style", fmt.Errorf("rpc error: PERMISSION_DENIED"), true},
		{"plain", fmt.Errorf("timeout"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		if got := IsPermissionDenied(tt.err); got != tt.want {
			t.Errorf("%s: IsPermissionDenied = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTailRows(t *testing.T) {
	store := &fakeStore{rows: [][]string{
		append([]string(nil), model.Headers...),
		{"1", "t1"},
		{"2", "t2"},
		{"3", "t3"},
	}}

	rows, err := TailRows(context.Background(), store, 2)
	if err != nil {
		t.Fatalf("TailRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0][0] != "2" || rows[1][0] != "3" {
		t.Errorf("unexpected tail: %v", rows)
	}
}

func TestTailRows_HeaderOnly(t *testing.T) {
	store := &fakeStore{rows: [][]string{append([]string(nil), model.Headers...)}}

	rows, err := TailRows(context.Background(), store, 5)
	if err != nil {
		t.Fatalf("TailRows: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("header-only sheet should yield no data rows, got %d", len(rows))
	}
}
