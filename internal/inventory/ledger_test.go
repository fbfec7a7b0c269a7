package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/store"
	"slaydrip/backend/internal/store/memory"
)

func newStore() *memory.Store {
	s := memory.New()
	s.SeedDesign(domain.Design{ID: 1, Code: "SD-T"}, map[string]int{"M": 3})
	return s
}

func TestDecrementRejectsShortfall(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	key := domain.StockKey{DesignID: 1, Size: "M"}

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return NewLedger(tx).Decrement(ctx, key, 4)
	})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		return NewLedger(tx).Decrement(ctx, key, 3)
	})
	require.NoError(t, err)
	stock, _ := s.Stock(key)
	assert.Equal(t, 0, stock)
}

func TestDecrementUncheckedGoesNegative(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	key := domain.StockKey{DesignID: 1, Size: "M"}

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return NewLedger(tx).DecrementUnchecked(ctx, key, 5)
	})
	require.NoError(t, err)
	stock, _ := s.Stock(key)
	assert.Equal(t, -2, stock)
}

func TestIncrement(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	key := domain.StockKey{DesignID: 1, Size: "M"}

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return NewLedger(tx).Increment(ctx, key, 2)
	})
	require.NoError(t, err)
	stock, _ := s.Stock(key)
	assert.Equal(t, 5, stock)
}

func TestLedgerRejectsNonPositiveQuantity(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	key := domain.StockKey{DesignID: 1, Size: "M"}

	_ = s.WithinTx(ctx, func(tx store.Tx) error {
		l := NewLedger(tx)
		assert.ErrorIs(t, l.Decrement(ctx, key, 0), store.ErrInvalidQuantity)
		assert.ErrorIs(t, l.DecrementUnchecked(ctx, key, -1), store.ErrInvalidQuantity)
		assert.ErrorIs(t, l.Increment(ctx, key, 0), store.ErrInvalidQuantity)
		return nil
	})
}

func TestMissingStockRow(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	missing := domain.StockKey{DesignID: 1, Size: "XL"}

	_ = s.WithinTx(ctx, func(tx store.Tx) error {
		l := NewLedger(tx)
		_, err := l.CheckAvailability(ctx, missing)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, l.Decrement(ctx, missing, 1), store.ErrNotFound)
		assert.ErrorIs(t, l.Increment(ctx, missing, 1), store.ErrConsistency)
		assert.ErrorIs(t, l.DecrementUnchecked(ctx, missing, 1), store.ErrConsistency)
		return nil
	})
}
