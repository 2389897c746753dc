package seq

import (
	"context"
	"fmt"
	"testing"

	"github.com/reelsheet/reelsheet/internal/model"
)

type stubStore struct {
	lastRow []string
	readErr error
}

func (s *stubStore) ReadHeader(ctx context.Context) ([]string, error)  { return nil, nil }
func (s *stubStore) WriteHeader(ctx context.Context, h []string) error { return nil }
func (s *stubStore) Append(ctx context.Context, rows [][]string) (string, error) {
	return "", nil
}
func (s *stubStore) SheetID() string        { return "stub-sheet" }
func (s *stubStore) ServiceAccount() string { return "stub@sa" }

func (s *stubStore) ReadLastRow(ctx context.Context) ([]string, error) {
	return s.lastRow, s.readErr
}

func TestTailIndex(t *testing.T) {
	tests := []struct {
		name    string
		lastRow []string
		want    int64
	}{
		{"empty sheet", nil, 0},
		{"numeric tail", []string{"40", "2026-01-01T00:00:00Z"}, 40},
		{"padded tail", []string{" 7 "}, 7},
		{"header tail", model.Headers, 0},
		{"garbage tail", []string{"oops"}, 0},
		{"negative tail", []string{"-3"}, 0},
		{"empty first cell", []string{""}, 0},
	}

	for _, tt := range tests {
		got, err := TailIndex(context.Background(), &stubStore{lastRow: tt.lastRow})
		if err != nil {
			t.Fatalf("%s: TailIndex: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: TailIndex = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestTailIndex_ReadError(t *testing.T) {
	_, err := TailIndex(context.Background(), &stubStore{readErr: fmt.Errorf("quota")})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestTailAllocator_Next(t *testing.T) {
	a := NewTailAllocator()

	start, err := a.Next(context.Background(), &stubStore{lastRow: []string{"40"}}, 3)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if start != 41 {
		t.Errorf("start = %d, want 41", start)
	}
}

func TestTailAllocator_HeaderOnlySheet(t *testing.T) {
	a := NewTailAllocator()

	start, err := a.Next(context.Background(), &stubStore{lastRow: model.Headers}, 2)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if start != 1 {
		t.Errorf("start = %d, want 1", start)
	}
}
