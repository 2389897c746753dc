// Package export renders the local backup as an Excel workbook for users
// who want the data outside Google Sheets.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/reelsheet/reelsheet/internal/model"
	"github.com/reelsheet/reelsheet/pkg/backup"
)

const sheetName = "Items"

// ToXLSX writes the backup's rows into an xlsx file at outPath, header
// first. Returns the number of data rows written.
func ToXLSX(bk *backup.CSVBackup, outPath string) (int, error) {
	rows, err := bk.Rows()
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return 0, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return 0, fmt.Errorf("drop default sheet: %w", err)
	}

	// Streaming writer keeps memory flat for large backups.
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return 0, fmt.Errorf("create stream writer: %w", err)
	}

	if err := writeRow(sw, 1, model.Headers); err != nil {
		return 0, err
	}
	for i, row := range rows {
		if err := writeRow(sw, i+2, model.NormalizeRow(row)); err != nil {
			return 0, err
		}
	}
	if err := sw.Flush(); err != nil {
		return 0, fmt.Errorf("flush workbook: %w", err)
	}

	if err := f.SaveAs(outPath); err != nil {
		return 0, fmt.Errorf("save workbook: %w", err)
	}
	return len(rows), nil
}

func writeRow(sw *excelize.StreamWriter, rowNum int, cells []string) error {
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	if err := sw.SetRow(cell, values); err != nil {
		return fmt.Errorf("write row %d: %w", rowNum, err)
	}
	return nil
}
