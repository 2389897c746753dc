package export

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/reelsheet/reelsheet/internal/model"
	"github.com/reelsheet/reelsheet/pkg/backup"
)

func TestToXLSX(t *testing.T) {
	dir := t.TempDir()
	bk := backup.NewCSVBackup(filepath.Join(dir, "backup.csv"))
	if err := bk.Append([][]string{
		{"1", "2026-01-01T00:00:00Z", "https://instagram.com/reel/a/", "1", "place", "Taco Place"},
		{"2", "2026-01-01T00:00:00Z", "https://instagram.com/reel/a/", "2", "product", "Blender"},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	outPath := filepath.Join(dir, "out.xlsx")
	n, err := ToXLSX(bk, outPath)
	if err != nil {
		t.Fatalf("ToXLSX: %v", err)
	}
	if n != 2 {
		t.Errorf("rows written = %d, want 2", n)
	}

	f, err := excelize.OpenFile(outPath)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != model.Headers[0] {
		t.Errorf("header cell = %q", rows[0][0])
	}
	if rows[1][5] != "Taco Place" {
		t.Errorf("item name cell = %q", rows[1][5])
	}
}

func TestToXLSX_EmptyBackup(t *testing.T) {
	dir := t.TempDir()
	bk := backup.NewCSVBackup(filepath.Join(dir, "absent.csv"))

	outPath := filepath.Join(dir, "out.xlsx")
	n, err := ToXLSX(bk, outPath)
	if err != nil {
		t.Fatalf("ToXLSX: %v", err)
	}
	if n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}

	f, err := excelize.OpenFile(outPath)
	if err != nil {
		t.Fatalf("workbook should still exist with header: %v", err)
	}
	f.Close()
}
