package catalogfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/avezhov/gutenberg-qa/internal/core/ports"
)

// Read loads a book catalog from a CSV or XLSX file. The first row is a
// header; a Title column and a Gutenberg ID column are required, matched
// case-insensitively.
func Read(path string) ([]ports.BookRef, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", filepath.Ext(path))
	}
}

func readCSV(path string) ([]ports.BookRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read catalog csv: %w", err)
	}
	return rowsToBooks(rows)
}

func readXLSX(path string) ([]ports.BookRef, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("catalog xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read catalog sheet: %w", err)
	}
	return rowsToBooks(rows)
}

func rowsToBooks(rows [][]string) ([]ports.BookRef, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	titleCol, idCol := -1, -1
	for i, header := range rows[0] {
		switch normalizeHeader(header) {
		case "title":
			titleCol = i
		case "gutenbergid", "id":
			idCol = i
		}
	}
	if titleCol < 0 || idCol < 0 {
		return nil, fmt.Errorf("catalog header must contain Title and Gutenberg ID columns, got %v", rows[0])
	}

	var books []ports.BookRef
	for rowNum, row := range rows[1:] {
		if len(row) <= titleCol || len(row) <= idCol {
			continue
		}
		title := strings.TrimSpace(row[titleCol])
		idRaw := strings.TrimSpace(row[idCol])
		if title == "" && idRaw == "" {
			continue
		}
		id, err := strconv.Atoi(idRaw)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("catalog row %d: bad gutenberg id %q", rowNum+2, idRaw)
		}
		if title == "" {
			return nil, fmt.Errorf("catalog row %d: missing title", rowNum+2)
		}
		books = append(books, ports.BookRef{Title: title, GutenbergID: id})
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("catalog has no book rows")
	}
	return books, nil
}

func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
