// Package inventory adjusts per-(design, size) stock inside a store transaction.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/store"
)

type Ledger struct {
	tx store.Tx
}

func NewLedger(tx store.Tx) Ledger {
	return Ledger{tx: tx}
}

func (l Ledger) CheckAvailability(ctx context.Context, key domain.StockKey) (int, error) {
	stock, err := l.tx.GetStock(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: no stock row for design %d size %s", store.ErrNotFound, key.DesignID, key.Size)
		}
		return 0, err
	}
	return stock, nil
}

// Decrement rejects the change when the current stock cannot cover qty.
func (l Ledger) Decrement(ctx context.Context, key domain.StockKey, qty int) error {
	if qty < 1 {
		return invalidQty(key, qty)
	}
	stock, err := l.CheckAvailability(ctx, key)
	if err != nil {
		return err
	}
	if stock < qty {
		return fmt.Errorf("%w: design %d size %s has %d, requested %d", store.ErrInsufficientStock, key.DesignID, key.Size, stock, qty)
	}
	return l.adjust(ctx, key, -qty)
}

// DecrementUnchecked is the sale checkout path: no availability check, so the
// count may go negative.
func (l Ledger) DecrementUnchecked(ctx context.Context, key domain.StockKey, qty int) error {
	if qty < 1 {
		return invalidQty(key, qty)
	}
	return l.adjust(ctx, key, -qty)
}

func (l Ledger) Increment(ctx context.Context, key domain.StockKey, qty int) error {
	if qty < 1 {
		return invalidQty(key, qty)
	}
	return l.adjust(ctx, key, qty)
}

func (l Ledger) adjust(ctx context.Context, key domain.StockKey, delta int) error {
	err := l.tx.AdjustStock(ctx, key, delta)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: stock row missing for design %d size %s", store.ErrConsistency, key.DesignID, key.Size)
	}
	return err
}

func invalidQty(key domain.StockKey, qty int) error {
	return fmt.Errorf("%w: %d for design %d size %s", store.ErrInvalidQuantity, qty, key.DesignID, key.Size)
}
