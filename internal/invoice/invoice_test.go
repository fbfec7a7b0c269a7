package invoice

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/store"
)

func sampleDocument() Document {
	return Document{
		Brand:         "SLAYDRIP",
		StallLocation: "Phoenix Mall Stall 4",
		Sale: domain.Sale{
			InvoiceNo:    "INV-00012",
			BillNo:       "BILL-1760700000",
			BillDate:     time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
			CustomerName: "Asha <script>",
			Phone:        "9000000000",
			PaymentMode:  domain.PaymentModeUPI,
		},
		Lines: []domain.CartLine{
			{DesignID: 1, Size: "M", Quantity: 2, Price: decimal.NewFromInt(1000), DesignText: "SD-OVR-BLK | Oversized Tee | Black"},
		},
		Breakdown: domain.PriceBreakdown{
			SubtotalInclusive:   decimal.RequireFromString("2000.00"),
			BasePriceTotal:      decimal.RequireFromString("1785.71"),
			DiscountPercent:     decimal.Zero,
			DiscountAmount:      decimal.Zero,
			DiscountedBasePrice: decimal.RequireFromString("1785.71"),
			GSTPercent:          decimal.NewFromInt(12),
			GSTAmount:           decimal.RequireFromString("214.29"),
			GrandTotal:          decimal.RequireFromString("2000.00"),
		},
	}
}

func TestRenderHTML(t *testing.T) {
	out, err := RenderHTML(sampleDocument())
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, "INV-00012")
	assert.Contains(t, html, "17 Oct 2026")
	assert.Contains(t, html, "SD-OVR-BLK | Oversized Tee | Black")
	assert.Contains(t, html, "Rs. 2000.00")
	assert.Contains(t, html, "Rs. 1785.71")
	assert.Contains(t, html, "GST (12%)")
	assert.Contains(t, html, "Phoenix Mall Stall 4")
	assert.NotContains(t, html, "<script>")
}

func TestFileStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStorage(filepath.Join(dir, "invoices"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Put(ctx, "SLAYDRIP_abc123.html", "text/html", []byte("hello")))

	rc, err := fs.Open(ctx, "SLAYDRIP_abc123.html")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, fs.Delete(ctx, "SLAYDRIP_abc123.html"))
	require.NoError(t, fs.Delete(ctx, "SLAYDRIP_abc123.html"))

	_, err = fs.Open(ctx, "SLAYDRIP_abc123.html")
	assert.ErrorIs(t, err, store.ErrNotFound)

	entries, err := os.ReadDir(filepath.Join(dir, "invoices"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPublisherLifecycle(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	doc := sampleDocument()
	p := NewPublisher(HTMLRenderer{}, fs, "slaydrip", "Stall 4")

	name, err := p.Publish(ctx, doc.Sale, doc.Lines, doc.Breakdown)
	require.NoError(t, err)
	assert.Regexp(t, `^SLAYDRIP_[0-9a-f]{6}\.html$`, name)

	rc, contentType, err := p.Open(ctx, name)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", contentType)
	assert.Contains(t, string(body), "INV-00012")
	assert.Contains(t, string(body), "Stall 4")

	require.NoError(t, p.Discard(ctx, name))
	_, _, err = p.Open(ctx, name)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPublisherOpenRejectsForeignNames(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	p := NewPublisher(HTMLRenderer{}, fs, "SLAYDRIP", "")

	for _, name := range []string{"../etc/passwd", "SLAYDRIP_abc123.pdf/..", "notes.txt", ""} {
		_, _, err := p.Open(context.Background(), name)
		assert.ErrorIs(t, err, store.ErrNotFound, name)
	}
}

type failingRenderer struct{ HTMLRenderer }

func (failingRenderer) Render(context.Context, Document) ([]byte, error) {
	return nil, errors.New("chrome unavailable")
}

func TestPublishStoresNothingWhenRenderFails(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStorage(dir)
	require.NoError(t, err)
	doc := sampleDocument()

	_, err = NewPublisher(failingRenderer{}, fs, "SLAYDRIP", "").Publish(context.Background(), doc.Sale, doc.Lines, doc.Breakdown)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewS3StorageRequiresBucket(t *testing.T) {
	_, err := NewS3Storage(context.Background(), S3Config{})
	assert.Error(t, err)
}
