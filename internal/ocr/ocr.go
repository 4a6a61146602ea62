package ocr

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spec-search/internal/config"
	"github.com/sells-group/spec-search/internal/model"
)

// Extractor turns a document into per-page text, in page order.
type Extractor interface {
	ExtractPages(ctx context.Context, doc model.Document) ([]string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig, mistral config.MistralConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if mistral.Key == "" {
			return nil, eris.New("ocr: mistral provider requires mistral.key")
		}
		return NewMistralOCR(mistral.Key, WithBaseURL(mistral.BaseURL), WithModel(mistral.Model)), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// Text joins page texts with newlines.
func Text(pages []string) string {
	return strings.Join(pages, "\n")
}
