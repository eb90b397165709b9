package extract

import (
	"fmt"
	"mime"
	"strings"
	"sync"
)

// Extractor turns raw document bytes into normalized text.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(content []byte) (string, error)

func (f ExtractorFunc) Extract(content []byte) (string, error) { return f(content) }

// Registry maps a content type (MIME type or bare extension) to an Extractor.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// DefaultRegistry returns a registry preloaded with the PDF, HTML and plain-text strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	pdf := PDFExtractor{}
	r.Register("application/pdf", pdf)
	r.Register("pdf", pdf)

	html := HTMLExtractor{}
	r.Register("text/html", html)
	r.Register("application/xhtml+xml", html)
	r.Register("html", html)

	text := PlainTextExtractor{}
	r.Register("text/plain", text)
	r.Register("txt", text)

	return r
}

func (r *Registry) Register(contentType string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[canonicalType(contentType)] = e
}

// For returns the extractor for contentType, ignoring parameters such as charset.
func (r *Registry) For(contentType string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[canonicalType(contentType)]
	return e, ok
}

func (r *Registry) Extract(contentType string, content []byte) (string, error) {
	e, ok := r.For(contentType)
	if !ok {
		return "", fmt.Errorf("no extractor for content type %q", contentType)
	}
	return e.Extract(content)
}

func canonicalType(contentType string) string {
	contentType = strings.TrimSpace(strings.ToLower(contentType))
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return strings.TrimPrefix(contentType, ".")
}

type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(content []byte) (string, error) {
	return Normalize(string(content)), nil
}
