// Package tesseract is the image OCR source, backed by gosseract. It needs
// libtesseract and the trained data for the configured languages.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/bryanwahyu/contractgate/internal/infra/extract"
)

// DefaultLanguage is Portuguese trained data.
const DefaultLanguage = "por"

// Engine implements extract.TextSource. A fresh client is used per call.
type Engine struct {
	Languages     []string
	clientFactory func() *gosseract.Client
}

func NewEngine(languages ...string) *Engine {
	if len(languages) == 0 {
		languages = []string{DefaultLanguage}
	}
	return &Engine{Languages: languages, clientFactory: gosseract.NewClient}
}

func (e *Engine) Text(ctx context.Context, path string) (string, error) {
	return extract.RunWithContext(ctx, func() (string, error) {
		c := e.clientFactory()
		defer c.Close()

		if err := c.SetLanguage(e.Languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
		if err := c.SetImage(path); err != nil {
			return "", fmt.Errorf("set image: %w", err)
		}
		text, err := c.Text()
		if err != nil {
			return "", fmt.Errorf("recognize text: %w", err)
		}
		return strings.TrimSpace(text), nil
	})
}
