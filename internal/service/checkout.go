package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/inventory"
	"slaydrip/backend/internal/pricing"
	"slaydrip/backend/internal/store"
	"slaydrip/backend/internal/xid"
)

var hundred = decimal.NewFromInt(100)

// Checkout turns the staff member's session cart into an invoiced sale. The
// counter increment, sale rows and stock decrements commit or roll back
// together. Stock is not pre-checked here and may go negative.
func (s *Service) Checkout(ctx context.Context, staff domain.Actor, req domain.CheckoutRequest) (domain.Invoice, error) {
	staffKey, err := staffID(staff)
	if err != nil {
		return domain.Invoice{}, err
	}

	lines, err := s.carts.Load(ctx, staffKey)
	if err != nil {
		return domain.Invoice{}, err
	}
	if len(lines) == 0 {
		return domain.Invoice{}, store.ErrEmptyCart
	}

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.Phone = strings.TrimSpace(req.Phone)
	req.PaymentMode = strings.TrimSpace(req.PaymentMode)
	if req.CustomerName == "" || req.Phone == "" {
		return domain.Invoice{}, fmt.Errorf("%w: customer name and phone are required", store.ErrValidation)
	}
	if !domain.IsPaymentMode(req.PaymentMode) {
		return domain.Invoice{}, fmt.Errorf("%w: unsupported payment mode %q", store.ErrValidation, req.PaymentMode)
	}
	if req.DiscountPercent.IsNegative() || req.DiscountPercent.GreaterThan(hundred) {
		return domain.Invoice{}, fmt.Errorf("%w: discount percent must be between 0 and 100", store.ErrValidation)
	}

	var result domain.Invoice
	err = s.locker.WithLock(ctx, "checkout:"+staffKey, s.opts.CheckoutLockTTL, func(ctx context.Context) error {
		// The cart is claimed, not just read: a second submit that gets past
		// the lock finds nothing left to invoice.
		lines, err := s.carts.Take(ctx, staffKey)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return store.ErrEmptyCart
		}

		invoice, err := s.writeInvoice(ctx, staffKey, req, lines)
		if err != nil {
			if restoreErr := s.carts.Restore(context.WithoutCancel(ctx), staffKey, lines, s.opts.CartTTL); restoreErr != nil {
				s.logger.Warn().Err(restoreErr).Str("staff", staffKey).Msg("restore cart after failed checkout")
			}
			return err
		}
		result = invoice
		return nil
	})
	s.opts.Metrics.Checkout(err)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logger.Info().
		Str("staff", staffKey).
		Str("invoice_no", result.Sale.InvoiceNo).
		Str("total", result.Sale.TotalAmount.StringFixed(2)).
		Str("payment_mode", result.Sale.PaymentMode).
		Int("lines", len(result.Lines)).
		Msg("checkout completed")
	return result, nil
}

func (s *Service) writeInvoice(ctx context.Context, staffKey string, req domain.CheckoutRequest, lines []domain.CartLine) (domain.Invoice, error) {
	var (
		invoice   domain.Invoice
		published string
	)

	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		number, err := tx.NextInvoiceNumber(ctx)
		if err != nil {
			return err
		}
		settings, err := tx.GetStoreSettings(ctx)
		if err != nil {
			return err
		}
		breakdown, err := pricing.Calculate(pricing.LinesFromCart(lines), req.DiscountPercent, settings.GSTPercent)
		if err != nil {
			return err
		}
		rounded := breakdown.Rounded()

		now := s.now().UTC()
		sale := domain.Sale{
			InvoiceNo:       xid.InvoiceNo(number),
			BillNo:          xid.BillNo(now),
			BillDate:        now.Truncate(24 * time.Hour),
			CustomerName:    req.CustomerName,
			Phone:           req.Phone,
			PaymentMode:     req.PaymentMode,
			Subtotal:        rounded.BasePriceTotal,
			DiscountPercent: rounded.DiscountPercent,
			DiscountAmount:  rounded.DiscountAmount,
			GSTPercent:      rounded.GSTPercent,
			GSTAmount:       rounded.GSTAmount,
			TotalAmount:     rounded.GrandTotal,
			StaffID:         staffKey,
			StallLocation:   s.opts.StallLocation,
			CreatedAt:       now,
		}

		name, err := s.publisher.Publish(ctx, sale, lines, rounded)
		if err != nil {
			return fmt.Errorf("publish invoice %s: %w", sale.InvoiceNo, err)
		}
		published = name
		sale.PDFFile = name

		sale.Items = make([]domain.SaleItem, 0, len(lines))
		for _, line := range lines {
			sale.Items = append(sale.Items, domain.SaleItem{
				InvoiceNo: sale.InvoiceNo,
				DesignID:  line.DesignID,
				Size:      line.Size,
				Quantity:  line.Quantity,
				Price:     line.Price,
			})
		}
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}

		ledger := inventory.NewLedger(tx)
		for _, line := range lines {
			if err := ledger.DecrementUnchecked(ctx, line.Key(), line.Quantity); err != nil {
				return err
			}
		}

		sale.Items = nil
		invoice = domain.Invoice{
			Sale:        sale,
			Lines:       lines,
			Breakdown:   rounded,
			DownloadURL: DownloadPath(name),
		}
		return nil
	})
	if err != nil {
		if published != "" {
			if discardErr := s.publisher.Discard(context.WithoutCancel(ctx), published); discardErr != nil {
				s.logger.Warn().Err(discardErr).Str("file", published).Msg("discard invoice after rollback")
			}
		}
		return domain.Invoice{}, err
	}
	return invoice, nil
}
