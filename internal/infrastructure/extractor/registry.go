package extractor

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

// Registry routes raw bytes to a format-specific extractor by MIME type,
// falling back to the filename extension when the source reported none.
type Registry struct {
	byMIME   map[string]ports.TextExtractor
	fallback ports.TextExtractor
}

func NewRegistry() *Registry {
	plain := NewPlainText()
	r := &Registry{
		byMIME:   make(map[string]ports.TextExtractor),
		fallback: plain,
	}
	r.Register("text/plain", plain)
	r.Register("text/markdown", plain)
	r.Register("text/csv", plain)
	r.Register("application/json", plain)
	r.Register("application/pdf", NewPDF())
	r.Register("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", NewXLSX())
	return r
}

func (r *Registry) Register(mimeType string, e ports.TextExtractor) {
	r.byMIME[mimeType] = e
}

func (r *Registry) Extract(ctx context.Context, data []byte, mimeType, filename string) (string, error) {
	e, err := r.resolve(mimeType, filename)
	if err != nil {
		return "", err
	}
	return e.Extract(ctx, data, mimeType, filename)
}

func (r *Registry) resolve(mimeType, filename string) (ports.TextExtractor, error) {
	normalized := normalizeMIME(mimeType)
	if normalized == "" && filename != "" {
		normalized = normalizeMIME(mime.TypeByExtension(filepath.Ext(filename)))
	}
	if e, ok := r.byMIME[normalized]; ok {
		return e, nil
	}
	if strings.HasPrefix(normalized, "text/") {
		return r.fallback, nil
	}
	if normalized == "" {
		return r.fallback, nil
	}
	return nil, domain.WrapError(domain.ErrInvalidInput, "resolve extractor",
		fmt.Errorf("unsupported content type %q for %q", normalized, filename))
}

func normalizeMIME(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(mimeType)
	}
	return parsed
}
