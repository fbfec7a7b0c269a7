// Package invoice renders the customer invoice for a sale and keeps the
// resulting file in document storage.
package invoice

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"slaydrip/backend/internal/domain"
)

//go:embed templates/invoice.html.tmpl
var templateFS embed.FS

var invoiceTemplate = template.Must(
	template.New("invoice.html.tmpl").Funcs(template.FuncMap{
		"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
		"lineTotal": func(l domain.CartLine) string {
			return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))).StringFixed(2)
		},
		"date": func(t time.Time) string { return t.Format("02 Jan 2006") },
	}).ParseFS(templateFS, "templates/invoice.html.tmpl"),
)

type Document struct {
	Brand         string
	StallLocation string
	Sale          domain.Sale
	Lines         []domain.CartLine
	Breakdown     domain.PriceBreakdown
}

type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
	Extension() string
	ContentType() string
}

// RenderHTML executes the invoice template.
func RenderHTML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HTMLRenderer stores the invoice as a standalone HTML page.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(_ context.Context, doc Document) ([]byte, error) {
	return RenderHTML(doc)
}

func (HTMLRenderer) Extension() string { return "html" }

func (HTMLRenderer) ContentType() string { return "text/html; charset=utf-8" }
