package xid

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const refAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func InvoiceNo(n int64) string {
	return fmt.Sprintf("INV-%05d", n)
}

func BillNo(at time.Time) string {
	return fmt.Sprintf("BILL-%d", at.Unix())
}

// Ref returns PREFIX-<unix seconds>-<5 random characters>, e.g. RET-1760700000-7KQ2M.
func Ref(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%d-%s", prefix, at.Unix(), randomSuffix(5))
}

// DocumentName returns BRAND_<6 hex>.<ext>. Only A-Z and 0-9 survive from brand.
func DocumentName(brand string, ext string) string {
	brand = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, strings.ToUpper(brand))
	if brand == "" {
		brand = "INVOICE"
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_%s.%s", brand, id[:6], strings.TrimPrefix(ext, "."))
}

func randomSuffix(n int) string {
	var b strings.Builder
	limit := big.NewInt(int64(len(refAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			b.WriteByte(refAlphabet[time.Now().UnixNano()%int64(len(refAlphabet))])
			continue
		}
		b.WriteByte(refAlphabet[idx.Int64()])
	}
	return b.String()
}
