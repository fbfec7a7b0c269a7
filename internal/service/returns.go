package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/inventory"
	"slaydrip/backend/internal/store"
	"slaydrip/backend/internal/xid"
)

// LoadReturnableItems reports, per sold (design, size), how many units can
// still be returned or exchanged.
func (s *Service) LoadReturnableItems(ctx context.Context, invoiceNo string) (domain.InvoiceLookup, error) {
	invoiceNo = strings.TrimSpace(invoiceNo)
	if invoiceNo == "" {
		return domain.InvoiceLookup{}, fmt.Errorf("%w: invoice number is required", store.ErrValidation)
	}

	sale, lines, err := returnableLines(ctx, s.repo, invoiceNo)
	if err != nil {
		return domain.InvoiceLookup{}, err
	}
	return domain.InvoiceLookup{Sale: *sale, Items: lines}, nil
}

// returnableLines groups the invoice's sale items by (design, size). The unit
// price is taken from the first sale item of each group.
func returnableLines(ctx context.Context, r store.Reader, invoiceNo string) (*domain.Sale, []domain.ReturnableLine, error) {
	sale, err := r.FindSale(ctx, invoiceNo)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: invoice %s", store.ErrNotFound, invoiceNo)
		}
		return nil, nil, err
	}
	items, err := r.ListSaleItems(ctx, invoiceNo)
	if err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", store.ErrNoItems, invoiceNo)
	}
	returned, err := r.ReturnedQtyByInvoice(ctx, invoiceNo)
	if err != nil {
		return nil, nil, err
	}

	index := make(map[domain.StockKey]int, len(items))
	lines := make([]domain.ReturnableLine, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.Key()]; ok {
			lines[i].SoldQty += item.Quantity
			continue
		}
		line := domain.ReturnableLine{
			DesignID:  item.DesignID,
			Size:      item.Size,
			UnitPrice: item.Price,
			SoldQty:   item.Quantity,
		}
		design, err := r.GetDesign(ctx, item.DesignID)
		switch {
		case err == nil:
			line.DesignCode = design.Code
			line.ProductName = design.ProductName
			line.Color = design.Color
		case !errors.Is(err, store.ErrNotFound):
			return nil, nil, err
		}
		index[item.Key()] = len(lines)
		lines = append(lines, line)
	}
	for i := range lines {
		lines[i].AlreadyReturned = returned[lines[i].Key()]
		lines[i].Returnable = max(0, lines[i].SoldQty-lines[i].AlreadyReturned)
	}
	return sale, lines, nil
}

type requestedLine struct {
	key domain.StockKey
	qty int
}

// aggregateItems sums duplicate (design, size) requests, keeping first-seen order.
func aggregateItems(items []domain.ItemRequest) ([]requestedLine, error) {
	index := make(map[domain.StockKey]int, len(items))
	out := make([]requestedLine, 0, len(items))
	for _, item := range items {
		item.Size = strings.TrimSpace(item.Size)
		if item.DesignID < 1 || item.Size == "" {
			return nil, fmt.Errorf("%w: design_id and size are required", store.ErrValidation)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: %d for design %d size %s", store.ErrInvalidQuantity, item.Quantity, item.DesignID, item.Size)
		}
		if i, ok := index[item.Key()]; ok {
			out[i].qty += item.Quantity
			continue
		}
		index[item.Key()] = len(out)
		out = append(out, requestedLine{key: item.Key(), qty: item.Quantity})
	}
	return out, nil
}

func validateSettlementRequest(invoiceNo string, paymentMode string) error {
	if invoiceNo == "" {
		return fmt.Errorf("%w: invoice number is required", store.ErrValidation)
	}
	if !domain.IsPaymentMode(paymentMode) {
		return fmt.Errorf("%w: unsupported payment mode %q", store.ErrValidation, paymentMode)
	}
	return nil
}

// restock validates every requested line against the returnable quantities
// before touching stock, then restocks and builds the ledger rows.
func restock(ctx context.Context, tx store.Tx, invoiceNo string, requested []requestedLine, ref string, returnType string, paymentMode string) ([]domain.ProcessedItem, decimal.Decimal, error) {
	_, lines, err := returnableLines(ctx, tx, invoiceNo)
	if err != nil {
		return nil, decimal.Zero, err
	}
	byKey := make(map[domain.StockKey]domain.ReturnableLine, len(lines))
	for _, line := range lines {
		byKey[line.Key()] = line
	}

	for _, req := range requested {
		line, ok := byKey[req.key]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w: design %d size %s was not sold on %s", store.ErrInvalidQuantity, req.key.DesignID, req.key.Size, invoiceNo)
		}
		if req.qty > line.Returnable {
			return nil, decimal.Zero, fmt.Errorf("%w: design %d size %s has %d returnable, requested %d", store.ErrInvalidQuantity, req.key.DesignID, req.key.Size, line.Returnable, req.qty)
		}
	}

	ledger := inventory.NewLedger(tx)
	records := make([]domain.ReturnRecord, 0, len(requested))
	processed := make([]domain.ProcessedItem, 0, len(requested))
	total := decimal.Zero
	for _, req := range requested {
		line := byKey[req.key]
		if err := ledger.Increment(ctx, req.key, req.qty); err != nil {
			return nil, decimal.Zero, err
		}
		amount := line.UnitPrice.Mul(decimal.NewFromInt(int64(req.qty)))
		total = total.Add(amount)
		records = append(records, domain.ReturnRecord{
			ReturnRef:    ref,
			InvoiceNo:    invoiceNo,
			DesignID:     req.key.DesignID,
			Size:         req.key.Size,
			Quantity:     req.qty,
			RefundAmount: amount,
			ReturnType:   returnType,
			PaymentMode:  paymentMode,
		})
		processed = append(processed, domain.ProcessedItem{
			DesignID:     req.key.DesignID,
			Size:         req.key.Size,
			Quantity:     req.qty,
			UnitPrice:    line.UnitPrice,
			RefundAmount: amount,
		})
	}
	if err := tx.InsertReturns(ctx, records); err != nil {
		return nil, decimal.Zero, err
	}
	return processed, total, nil
}

// ProcessReturn restocks the requested lines and records a refund. A single
// invalid line rejects the whole batch.
func (s *Service) ProcessReturn(ctx context.Context, staff domain.Actor, req domain.ReturnRequest) (domain.ReturnResult, error) {
	result, err := s.processReturn(ctx, staff, req)
	s.opts.Metrics.Return(err)
	return result, err
}

func (s *Service) processReturn(ctx context.Context, staff domain.Actor, req domain.ReturnRequest) (domain.ReturnResult, error) {
	staffKey, err := staffID(staff)
	if err != nil {
		return domain.ReturnResult{}, err
	}
	req.InvoiceNo = strings.TrimSpace(req.InvoiceNo)
	req.PaymentMode = strings.TrimSpace(req.PaymentMode)
	if err := validateSettlementRequest(req.InvoiceNo, req.PaymentMode); err != nil {
		return domain.ReturnResult{}, err
	}
	if len(req.Items) == 0 {
		return domain.ReturnResult{}, fmt.Errorf("%w: no items to return", store.ErrValidation)
	}
	requested, err := aggregateItems(req.Items)
	if err != nil {
		return domain.ReturnResult{}, err
	}

	result := domain.ReturnResult{ReturnRef: xid.Ref("RET", s.now())}
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		processed, total, err := restock(ctx, tx, req.InvoiceNo, requested, result.ReturnRef, domain.ReturnTypeReturn, req.PaymentMode)
		if err != nil {
			return err
		}
		result.ProcessedItems = processed
		result.TotalRefund = total.Round(2)
		return nil
	})
	if err != nil {
		return domain.ReturnResult{}, err
	}

	s.logger.Info().
		Str("staff", staffKey).
		Str("invoice_no", req.InvoiceNo).
		Str("return_ref", result.ReturnRef).
		Str("refund", result.TotalRefund.StringFixed(2)).
		Msg("return processed")
	return result, nil
}

// ProcessExchange restocks the returned lines, issues the new items with a
// stock pre-check, and settles the difference.
func (s *Service) ProcessExchange(ctx context.Context, staff domain.Actor, req domain.ExchangeRequest) (domain.ExchangeResult, error) {
	result, err := s.processExchange(ctx, staff, req)
	s.opts.Metrics.Exchange(result.Settlement.Type, err)
	return result, err
}

func (s *Service) processExchange(ctx context.Context, staff domain.Actor, req domain.ExchangeRequest) (domain.ExchangeResult, error) {
	staffKey, err := staffID(staff)
	if err != nil {
		return domain.ExchangeResult{}, err
	}
	req.InvoiceNo = strings.TrimSpace(req.InvoiceNo)
	req.PaymentMode = strings.TrimSpace(req.PaymentMode)
	if err := validateSettlementRequest(req.InvoiceNo, req.PaymentMode); err != nil {
		return domain.ExchangeResult{}, err
	}
	if len(req.ReturnItems) == 0 {
		return domain.ExchangeResult{}, fmt.Errorf("%w: an exchange needs at least one returned item", store.ErrValidation)
	}
	if req.DiscountPercent.IsNegative() || req.DiscountPercent.GreaterThan(hundred) {
		return domain.ExchangeResult{}, fmt.Errorf("%w: discount percent must be between 0 and 100", store.ErrValidation)
	}
	requested, err := aggregateItems(req.ReturnItems)
	if err != nil {
		return domain.ExchangeResult{}, err
	}
	for _, item := range req.NewItems {
		if item.DesignID < 1 || strings.TrimSpace(item.Size) == "" {
			return domain.ExchangeResult{}, fmt.Errorf("%w: design_id and size are required", store.ErrValidation)
		}
		if item.Quantity < 1 {
			return domain.ExchangeResult{}, fmt.Errorf("%w: %d for design %d size %s", store.ErrInvalidQuantity, item.Quantity, item.DesignID, item.Size)
		}
	}

	now := s.now()
	result := domain.ExchangeResult{
		ExchangeRef: xid.Ref("EXC", now),
		PaymentMode: req.PaymentMode,
	}
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		_, returnedTotal, err := restock(ctx, tx, req.InvoiceNo, requested, result.ExchangeRef, domain.ReturnTypeExchange, req.PaymentMode)
		if err != nil {
			return err
		}

		ledger := inventory.NewLedger(tx)
		newTotal := decimal.Zero
		details := make([]domain.ExchangeDetail, 0, len(req.NewItems))
		for _, item := range req.NewItems {
			key := domain.StockKey{DesignID: item.DesignID, Size: strings.TrimSpace(item.Size)}
			design, err := tx.GetDesign(ctx, key.DesignID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("%w: design %d", store.ErrNotFound, key.DesignID)
				}
				return err
			}
			if err := ledger.Decrement(ctx, key, item.Quantity); err != nil {
				return err
			}
			lineTotal := design.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			newTotal = newTotal.Add(lineTotal)
			details = append(details, domain.ExchangeDetail{
				ExchangeRef: result.ExchangeRef,
				InvoiceNo:   req.InvoiceNo,
				DesignID:    key.DesignID,
				Size:        key.Size,
				Quantity:    item.Quantity,
				UnitPrice:   design.Price,
				LineTotal:   lineTotal,
				CreatedAt:   now.UTC(),
			})
		}
		if len(details) > 0 {
			if err := tx.InsertExchangeDetails(ctx, details); err != nil {
				return err
			}
		}

		discount := newTotal.Mul(req.DiscountPercent).Div(hundred).Round(2)
		result.ReturnedTotal = returnedTotal.Round(2)
		result.NewTotal = newTotal.Round(2)
		result.DiscountAmount = discount
		result.Settlement = settle(returnedTotal, newTotal.Sub(discount))
		result.IssuedItems = details
		return nil
	})
	if err != nil {
		return domain.ExchangeResult{}, err
	}

	s.logger.Info().
		Str("staff", staffKey).
		Str("invoice_no", req.InvoiceNo).
		Str("exchange_ref", result.ExchangeRef).
		Str("settlement", result.Settlement.Type).
		Str("amount", result.Settlement.Amount.StringFixed(2)).
		Msg("exchange processed")
	return result, nil
}

func settle(returnedTotal decimal.Decimal, newTotalAfterDiscount decimal.Decimal) domain.Settlement {
	diff := returnedTotal.Sub(newTotalAfterDiscount).Round(2)
	switch diff.Sign() {
	case 1:
		return domain.Settlement{Type: domain.SettlementRefund, Amount: diff}
	case -1:
		return domain.Settlement{Type: domain.SettlementCollect, Amount: diff.Abs()}
	default:
		return domain.Settlement{Type: domain.SettlementEven, Amount: decimal.Zero}
	}
}
