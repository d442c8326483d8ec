package attachment

import (
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// pdfExcerpt extracts up to limit bytes of plain text from a PDF along
// with its page count. Encrypted or image-only documents yield an error or
// empty text; the caller treats both as excerpt-free.
func pdfExcerpt(path string, limit int64) (string, int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	pages := reader.NumPage()
	text, err := reader.GetPlainText()
	if err != nil {
		return "", pages, fmt.Errorf("extract pdf text: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(text, limit))
	if err != nil {
		return "", pages, fmt.Errorf("read pdf text: %w", err)
	}
	return string(data), pages, nil
}
