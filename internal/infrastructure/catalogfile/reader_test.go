package catalogfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestReadCSVCatalog(t *testing.T) {
	path := writeTempCSV(t, "Title,Gutenberg ID\nGreat Expectations,1400\nOliver Twist,730\n")

	books, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("expected 2 books, got %d", len(books))
	}
	if books[0].Title != "Great Expectations" || books[0].GutenbergID != 1400 {
		t.Fatalf("unexpected first book: %+v", books[0])
	}
}

func TestReadCSVSkipsBlankRows(t *testing.T) {
	path := writeTempCSV(t, "title,gutenberg_id\nA Christmas Carol,46\n,\n")

	books, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(books) != 1 {
		t.Fatalf("expected 1 book, got %d", len(books))
	}
}

func TestReadCSVRejectsBadID(t *testing.T) {
	path := writeTempCSV(t, "Title,Gutenberg ID\nBleak House,not-a-number\n")
	if _, err := Read(path); err == nil {
		t.Fatalf("expected error for bad id")
	}
}

func TestReadCSVRejectsMissingColumns(t *testing.T) {
	path := writeTempCSV(t, "Name,Year\nBleak House,1853\n")
	if _, err := Read(path); err == nil {
		t.Fatalf("expected error for missing columns")
	}
}

func TestReadXLSXCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetCellValue(sheet, "A1", "Title")
	_ = f.SetCellValue(sheet, "B1", "Gutenberg ID")
	_ = f.SetCellValue(sheet, "A2", "David Copperfield")
	_ = f.SetCellValue(sheet, "B2", 766)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save xlsx: %v", err)
	}
	_ = f.Close()

	books, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(books) != 1 || books[0].Title != "David Copperfield" || books[0].GutenbergID != 766 {
		t.Fatalf("unexpected books: %+v", books)
	}
}

func TestReadRejectsUnknownExtension(t *testing.T) {
	if _, err := Read("catalog.pdf"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}
