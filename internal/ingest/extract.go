package ingest

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/docuchat/rag-server/internal/pkg/errors"
)

// AllowedExtensions lists the upload formats the server accepts.
var AllowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".xlsx": true,
	".txt":  true,
	".json": true,
	".md":   true,
}

// ExtractText reads a file and returns its plain-text content based on
// the file extension.
func ExtractText(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".txt", ".json", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", errors.Wrap(errors.CodeIngestError, "failed to read file", err)
		}
		return string(data), nil

	case ".pdf":
		return extractPDF(path)

	case ".docx":
		return extractDOCX(path)

	case ".xlsx":
		return extractXLSX(path)

	default:
		return "", errors.New(errors.CodeValidation, "unsupported file extension: "+ext)
	}
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", errors.Wrap(errors.CodeIngestError, "failed to open pdf", err)
	}
	defer f.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", errors.Wrap(errors.CodeIngestError, "failed to extract pdf text", err)
	}

	var b strings.Builder
	if _, err := io.Copy(&b, content); err != nil {
		return "", errors.Wrap(errors.CodeIngestError, "failed to read pdf text", err)
	}
	return b.String(), nil
}

func extractXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", errors.Wrap(errors.CodeIngestError, "failed to open xlsx", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", errors.Wrap(errors.CodeIngestError, "failed to read xlsx sheet "+sheet, err)
		}
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line != "" {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func extractDOCX(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", errors.Wrap(errors.CodeIngestError, "failed to open docx", err)
	}
	defer r.Close()

	for _, file := range r.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", errors.Wrap(errors.CodeIngestError, "failed to read docx document", err)
		}
		defer rc.Close()
		return docxToText(rc)
	}

	return "", errors.New(errors.CodeIngestError, "docx archive has no document.xml")
}

// docxToText walks the document XML keeping character data, turning
// paragraph ends into newlines.
func docxToText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var b strings.Builder

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(errors.CodeIngestError, "failed to parse docx xml", err)
		}

		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" {
				b.WriteString("\n")
			}
		}
	}

	return b.String(), nil
}
