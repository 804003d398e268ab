package ingest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docuchat/rag-server/internal/pkg/errors"
)

func TestExtractTextPlain(t *testing.T) {
	for _, ext := range []string{".txt", ".md", ".json"} {
		path := writeTempFile(t, "doc"+ext, "hello world")
		got, err := ExtractText(path)
		if err != nil {
			t.Fatalf("ExtractText(%s) error = %v", ext, err)
		}
		if got != "hello world" {
			t.Errorf("ExtractText(%s) = %q", ext, got)
		}
	}
}

func TestExtractTextUnsupported(t *testing.T) {
	path := writeTempFile(t, "doc.exe", "MZ")
	_, err := ExtractText(path)
	if !errors.IsCode(err, errors.CodeValidation) {
		t.Errorf("ExtractText(.exe) error = %v, want VALIDATION_ERROR", err)
	}
}

func TestExtractDOCX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte(`<?xml version="1.0"?><w:document xmlns:w="ns"><w:body>` +
		`<w:p><w:r><w:t>first paragraph</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>second paragraph</w:t></w:r></w:p>` +
		`</w:body></w:document>`))
	zw.Close()
	f.Close()

	got, err := ExtractText(path)
	if err != nil {
		t.Fatalf("ExtractText(docx) error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 2 {
		t.Fatalf("extracted %d lines, want 2: %q", len(lines), got)
	}
	if lines[0] != "first paragraph" || lines[1] != "second paragraph" {
		t.Errorf("extracted text = %q", got)
	}
}

func TestExtractDOCXMissingDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zip.NewWriter(f).Close()
	f.Close()

	_, err = ExtractText(path)
	if !errors.IsCode(err, errors.CodeIngestError) {
		t.Errorf("ExtractText(empty docx) error = %v, want INGEST_ERROR", err)
	}
}
