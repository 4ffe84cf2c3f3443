// Package ocr turns document attachments into plain text.
package ocr

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"invoiz/internal/model"
)

// IsDocument reports whether a filename has an extension we can extract text from.
func IsDocument(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// PDFExtractor reads the embedded text layer of a PDF.
type PDFExtractor struct{}

// ExtractText concatenates the plain text of every page in document order.
// A document without a text layer yields an empty string and no error;
// parser failures come back as *model.ExtractionEngineError.
func (PDFExtractor) ExtractText(ctx context.Context, path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", &model.ExtractionEngineError{Path: path, Err: fmt.Errorf("pdf parser panic: %v", r)}
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return "", &model.ExtractionEngineError{Path: path, Err: err}
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", &model.ExtractionEngineError{Path: path, Err: err}
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		s, err := page.GetPlainText(nil)
		if err != nil {
			return "", &model.ExtractionEngineError{Path: path, Err: fmt.Errorf("page %d: %w", i, err)}
		}
		b.WriteString(s)
	}
	return b.String(), nil
}
