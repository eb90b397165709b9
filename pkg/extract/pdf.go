package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor reads the plain text of every page.
type PDFExtractor struct {
	// MaxChars truncates the raw text before normalization. Zero means no limit.
	MaxChars int
}

// Extract recovers from panics raised by the pdf reader on corrupt input.
func (e PDFExtractor) Extract(content []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("panic during PDF extraction: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")

		if e.MaxChars > 0 && sb.Len() > e.MaxChars {
			break
		}
	}

	raw := sb.String()
	if e.MaxChars > 0 && len(raw) > e.MaxChars {
		raw = raw[:e.MaxChars]
	}
	return Normalize(raw), nil
}
