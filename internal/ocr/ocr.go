// Package ocr turns report PDFs into plain text. Extraction is delegated
// to an external tool or service; the pipeline only ever sees the text.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/talentlens/reportflow/internal/config"
)

// Providers selectable through ocr.provider.
const (
	ProviderLocal   = "local"
	ProviderMistral = "mistral"
)

// Extractor extracts the text content of a PDF on disk.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor picks the extractor the configuration asks for. An empty
// provider means local pdftotext.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case ProviderLocal, "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case ProviderMistral:
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
