package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfText extracts page text in order. A page that fails to decode is
// reported inline as a diagnostic line and extraction continues; the stage
// fails only when not a single page yields text.
type pdfText struct{}

func (pdfText) Extract(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	extracted := false
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := extractPage(page)
		if err != nil {
			fmt.Fprintf(&b, "[page %d error: %v]\n", i, err)
			continue
		}
		if strings.TrimSpace(text) != "" {
			extracted = true
			b.WriteString(text)
			b.WriteString("\n\n")
		}
	}

	if !extracted {
		return "", ErrEmpty
	}
	return b.String(), nil
}

// extractPage isolates the library call so a panic inside a malformed page
// becomes that page's error instead of killing the ingestion goroutine.
func extractPage(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page decode panic: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}
