package invoice

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"

	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/store"
	"slaydrip/backend/internal/xid"
)

var documentNamePattern = regexp.MustCompile(`^[A-Z0-9]+_[0-9a-f]{6}\.(pdf|html)$`)

// Publisher renders an invoice and hands the bytes to storage.
type Publisher struct {
	renderer      Renderer
	storage       Storage
	brand         string
	stallLocation string
}

func NewPublisher(renderer Renderer, storage Storage, brand string, stallLocation string) *Publisher {
	return &Publisher{
		renderer:      renderer,
		storage:       storage,
		brand:         brand,
		stallLocation: stallLocation,
	}
}

// Publish stores the document and returns its generated file name.
func (p *Publisher) Publish(ctx context.Context, sale domain.Sale, lines []domain.CartLine, breakdown domain.PriceBreakdown) (string, error) {
	name := xid.DocumentName(p.brand, p.renderer.Extension())
	data, err := p.renderer.Render(ctx, Document{
		Brand:         p.brand,
		StallLocation: p.stallLocation,
		Sale:          sale,
		Lines:         lines,
		Breakdown:     breakdown,
	})
	if err != nil {
		return "", err
	}
	if err := p.storage.Put(ctx, name, p.renderer.ContentType(), data); err != nil {
		return "", fmt.Errorf("store invoice %s: %w", name, err)
	}
	return name, nil
}

// Open returns the stored file and its content type. Names that were not
// produced by Publish are reported as not found.
func (p *Publisher) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if !documentNamePattern.MatchString(name) {
		return nil, "", fmt.Errorf("%w: invoice file %q", store.ErrNotFound, name)
	}
	rc, err := p.storage.Open(ctx, name)
	if err != nil {
		return nil, "", err
	}
	return rc, contentTypeFor(name), nil
}

func (p *Publisher) Discard(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	return p.storage.Delete(ctx, name)
}

func contentTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".pdf":
		return "application/pdf"
	case ".html":
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
