// Package sheet wraps the xlsx workbook that acts as the durable row table.
//
// The Orders sheet is a flat, header-having table: one order per row,
// appended at the bottom, physically removed on delete. Cell values are
// strings as far as this package is concerned; interpreting them (amounts,
// timestamps) is the caller's job, because operators open the workbook in
// a spreadsheet editor and the cells come back weakly typed.
package sheet

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"
)

const ordersSheet = "Orders"

// Header is the first row of the Orders sheet.
var Header = []string{"id", "created_at", "owner_email", "owner_name", "category", "amount", "note"}

var ErrRowOutOfRange = errors.New("row index out of range")

// Table is an open workbook. The mutex serializes mutations the way a
// hosted spreadsheet service would serialize its physical writes; reads
// take it too so a snapshot never observes a half-applied row.
type Table struct {
	mu   sync.Mutex
	path string
	f    *excelize.File
}

// Open loads the workbook at path, creating it with a header row when it
// does not exist yet.
func Open(path string) (*Table, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		idx, err := f.GetSheetIndex(ordersSheet)
		if err != nil || idx < 0 {
			f.Close()
			return nil, fmt.Errorf("workbook %s has no %s sheet", path, ordersSheet)
		}
		return &Table{path: path, f: f}, nil
	}

	f := excelize.NewFile()
	idx, err := f.NewSheet(ordersSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(ordersSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("save workbook: %w", err)
	}
	return &Table{path: path, f: f}, nil
}

func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.f.Close()
}

// Append writes one row after the last occupied row and saves the file.
func (t *Table) Append(row []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.f.GetRows(ordersSheet)
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return fmt.Errorf("row coordinates: %w", err)
	}
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}
	if err := t.f.SetSheetRow(ordersSheet, cell, &values); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	if err := t.f.Save(); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// Snapshot returns the data rows (header excluded) in sheet order, each
// padded to the header width so callers can index columns directly.
func (t *Table) Snapshot() ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.f.GetRows(ordersSheet)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return [][]string{}, nil
	}
	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		padded := make([]string, len(Header))
		copy(padded, row)
		data = append(data, padded)
	}
	return data, nil
}

// DeleteRow physically removes the data row at index i (0 = first row
// after the header) and saves the file.
func (t *Table) DeleteRow(i int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.f.GetRows(ordersSheet)
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	if i < 0 || i+2 > len(rows) {
		return ErrRowOutOfRange
	}
	if err := t.f.RemoveRow(ordersSheet, i+2); err != nil {
		return fmt.Errorf("remove row: %w", err)
	}
	if err := t.f.Save(); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
