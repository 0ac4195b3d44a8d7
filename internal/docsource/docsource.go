package docsource

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/talentlens/reportflow/internal/config"
	"github.com/talentlens/reportflow/internal/ocr"
	"github.com/talentlens/reportflow/internal/resilience"
)

// Document is a resolved report ready for analysis. Bytes holds the raw
// document, Text the extracted plain text handed to the pipeline.
type Document struct {
	Handle string
	Name   string
	Text   string
	Bytes  []byte
}

// Resolver turns an opaque document handle into extracted text.
type Resolver interface {
	Resolve(ctx context.Context, handle string) (*Document, error)
}

// FileResolver resolves local paths and ftp:// URLs. PDF content is routed
// through the OCR boundary; anything else is taken as plain text.
type FileResolver struct {
	ocr        ocr.Extractor
	ftpTimeout time.Duration
}

var _ Resolver = (*FileResolver)(nil)

// NewResolver creates a FileResolver backed by the given OCR extractor.
func NewResolver(extractor ocr.Extractor, cfg config.DocSourceConfig) *FileResolver {
	timeout := cfg.FTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &FileResolver{ocr: extractor, ftpTimeout: timeout}
}

// Resolve fetches the document behind the handle and extracts its text.
func (r *FileResolver) Resolve(ctx context.Context, handle string) (*Document, error) {
	if strings.HasPrefix(handle, "ftp://") {
		return r.resolveFTP(ctx, handle)
	}
	return r.resolveLocal(ctx, handle)
}

func (r *FileResolver) resolveLocal(ctx context.Context, handle string) (*Document, error) {
	data, err := os.ReadFile(handle)
	if err != nil {
		return nil, eris.Wrapf(err, "docsource: read %s", handle)
	}

	doc := &Document{Handle: handle, Name: filepath.Base(handle), Bytes: data}

	if isPDF(doc.Name) {
		// Local PDFs keep their own path; no temp copy needed.
		text, err := r.ocr.ExtractText(ctx, handle)
		if err != nil {
			return nil, eris.Wrapf(err, "docsource: ocr %s", handle)
		}
		doc.Text = text
		return doc, nil
	}

	doc.Text = string(data)
	return doc, nil
}

func (r *FileResolver) resolveFTP(ctx context.Context, handle string) (*Document, error) {
	target, err := parseFTPURL(handle)
	if err != nil {
		return nil, err
	}

	// Filings servers drop connections under load; retry short before
	// failing the run.
	retry := resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		OnRetry:        resilience.RetryLogger("ftp", "fetch document"),
	}
	data, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		return fetchFTP(ctx, target, r.ftpTimeout)
	})
	if err != nil {
		return nil, err
	}

	doc := &Document{Handle: handle, Name: path.Base(target.path), Bytes: data}

	if isPDF(doc.Name) {
		text, err := r.extractPDFBytes(ctx, data)
		if err != nil {
			return nil, eris.Wrapf(err, "docsource: ocr %s", handle)
		}
		doc.Text = text
		return doc, nil
	}

	doc.Text = string(data)
	return doc, nil
}

// extractPDFBytes spools fetched PDF bytes to a temp file for the OCR
// extractor, which works on paths.
func (r *FileResolver) extractPDFBytes(ctx context.Context, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "reportflow-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "docsource: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return "", eris.Wrap(err, "docsource: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrap(err, "docsource: close temp file")
	}

	return r.ocr.ExtractText(ctx, tmp.Name())
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
