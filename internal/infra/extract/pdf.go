package extract

import (
	"context"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFReader reads the PDF text layer page by page.
type PDFReader struct{}

func NewPDFReader() *PDFReader { return &PDFReader{} }

// Text joins the whitespace-separated items of each page with single spaces
// and separates pages with a newline.
func (r *PDFReader) Text(ctx context.Context, path string) (string, error) {
	return RunWithContext(ctx, func() (string, error) {
		f, doc, err := pdf.Open(path)
		if err != nil {
			if f != nil {
				f.Close()
			}
			return "", err
		}
		defer f.Close()

		var b strings.Builder
		for i := 1; i <= doc.NumPage(); i++ {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			page := doc.Page(i)
			if page.V.IsNull() {
				continue
			}
			txt, err := page.GetPlainText(nil)
			if err != nil {
				return "", err
			}
			b.WriteString(joinItems(txt))
			b.WriteByte('\n')
		}
		return b.String(), nil
	})
}

func joinItems(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
