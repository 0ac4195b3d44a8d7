package ocr

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText shells out to the poppler pdftotext binary. -layout keeps the
// column alignment of financial tables, which the metric prompts rely on.
type PdfToText struct {
	binPath string
}

// NewPdfToText builds a local extractor; an empty binPath resolves
// "pdftotext" from PATH.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText converts the PDF to text on stdout. Scanned reports come
// back as whitespace from pdftotext; that is reported as an error so the
// caller can route the document to a real OCR provider instead.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", eris.Wrapf(err, "ocr: pdftotext on %s: %s", pdfPath, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", eris.Wrapf(err, "ocr: pdftotext on %s", pdfPath)
	}

	text := string(out)
	if strings.TrimSpace(text) == "" {
		return "", eris.Errorf("ocr: pdftotext produced no text for %s", pdfPath)
	}
	return text, nil
}
