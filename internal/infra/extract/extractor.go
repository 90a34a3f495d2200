// Package extract turns uploaded documents into plain text. PDFs are read from
// their text layer; images go through OCR.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
)

// TextSource reads text from a local file.
type TextSource interface {
	Text(ctx context.Context, path string) (string, error)
}

// Dispatcher implements analyses.Extractor by media type.
type Dispatcher struct {
	PDF   TextSource
	Image TextSource
}

func NewDispatcher(pdf, image TextSource) *Dispatcher {
	return &Dispatcher{PDF: pdf, Image: image}
}

// Extract never returns a Go error for engine failures; those come back as a
// Degraded result with a readable placeholder. Failed is reserved for inputs
// that cannot be read at all.
func (d *Dispatcher) Extract(ctx context.Context, path, mediaType string) (domain.Extraction, error) {
	if _, err := os.Stat(path); err != nil {
		return domain.NewFailed(fmt.Errorf("arquivo não encontrado: %w", err)), nil
	}

	mt := baseMediaType(mediaType)
	var (
		src   TextSource
		label string
	)
	switch {
	case mt == "application/pdf":
		src, label = d.PDF, "do PDF"
	case strings.HasPrefix(mt, "image/"):
		src, label = d.Image, "da imagem"
	default:
		return domain.NewFailed(fmt.Errorf("%w: %q", domain.ErrUnsupportedMediaType, mediaType)), nil
	}
	if src == nil {
		return domain.NewFailed(fmt.Errorf("no extractor configured for %s", mt)), nil
	}

	text, err := src.Text(ctx, path)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return domain.Extraction{}, err
		}
		return domain.NewDegraded(fmt.Sprintf("Erro na extração %s: %v", label, err), err), nil
	}
	if strings.TrimSpace(text) == "" {
		return domain.NewDegraded(fmt.Sprintf("Nenhum texto encontrado na extração %s.", label), ErrNoText), nil
	}
	return domain.NewExtracted(text), nil
}

// ErrNoText is the cause of a Degraded result when the engine found nothing.
var ErrNoText = errors.New("no text found")

func baseMediaType(mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// RunWithContext runs fn in a goroutine so callers are released when ctx
// expires. Engines without context support keep running to completion.
func RunWithContext(ctx context.Context, fn func() (string, error)) (string, error) {
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r = result{err: fmt.Errorf("extractor panic: %v", p)}
			}
			ch <- r
		}()
		r.text, r.err = fn()
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.text, r.err
	}
}
