package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/store"
)

func TestWithinTxDiscardsChangesOnError(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	key := domain.StockKey{DesignID: 1, Size: "M"}

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.NextInvoiceNumber(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.AdjustStock(ctx, key, -5))
		require.NoError(t, tx.InsertReturns(ctx, []domain.ReturnRecord{{
			ReturnRef: "RET-1-AAAAA", InvoiceNo: "INV-00001", DesignID: 1, Size: "M", Quantity: 1,
		}}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stock, ok := s.Stock(key)
	require.True(t, ok)
	assert.Equal(t, 20, stock)
	assert.Empty(t, s.ReturnRecords())

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		n, err := tx.NextInvoiceNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)
}

func TestWithinTxCommitsSale(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertSale(ctx, domain.Sale{
			InvoiceNo: "INV-00001",
			Items: []domain.SaleItem{
				{DesignID: 1, Size: "M", Quantity: 2, Price: decimal.NewFromInt(1299)},
			},
		})
	})
	require.NoError(t, err)

	sale, err := s.FindSale(ctx, "INV-00001")
	require.NoError(t, err)
	assert.Nil(t, sale.Items)
	assert.False(t, sale.CreatedAt.IsZero())

	items, err := s.ListSaleItems(ctx, "INV-00001")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "INV-00001", items[0].InvoiceNo)

	err = s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertSale(ctx, domain.Sale{InvoiceNo: "INV-00001"})
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestAdjustStockMissingRow(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.AdjustStock(ctx, domain.StockKey{DesignID: 1, Size: "XXL"}, 1)
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReturnedQtyByInvoiceSumsPerKey(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertReturns(ctx, []domain.ReturnRecord{
			{InvoiceNo: "INV-00001", DesignID: 1, Size: "M", Quantity: 1},
			{InvoiceNo: "INV-00001", DesignID: 1, Size: "M", Quantity: 2},
			{InvoiceNo: "INV-00001", DesignID: 2, Size: "S", Quantity: 1},
			{InvoiceNo: "INV-00002", DesignID: 1, Size: "M", Quantity: 4},
		})
	})
	require.NoError(t, err)

	returned, err := s.ReturnedQtyByInvoice(ctx, "INV-00001")
	require.NoError(t, err)
	assert.Equal(t, map[domain.StockKey]int{
		{DesignID: 1, Size: "M"}: 3,
		{DesignID: 2, Size: "S"}: 1,
	}, returned)
}

func TestListSizesInStockSkipsEmptyAndOrdersBySize(t *testing.T) {
	s := New()
	s.SeedDesign(domain.Design{ID: 7, Code: "SD-T"}, map[string]int{"XL": 1, "S": 3, "M": 0, "L": -2, "XS": 5})

	sizes, err := s.ListSizesInStock(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"XS", "S", "XL"}, sizes)
}

func TestListDesignsOrderedByID(t *testing.T) {
	s := NewSeeded()
	designs, err := s.ListDesigns(context.Background())
	require.NoError(t, err)
	require.Len(t, designs, 6)
	for i, d := range designs {
		assert.Equal(t, int64(i+1), d.ID)
	}
}

func TestCreateStaff(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateStaff(ctx, domain.StaffAccount{Username: " Kasir01 ", Password: "hash"}))
	assert.ErrorIs(t, s.CreateStaff(ctx, domain.StaffAccount{Username: "KASIR01", Password: "hash"}), store.ErrDuplicate)
	assert.ErrorIs(t, s.CreateStaff(ctx, domain.StaffAccount{Username: "", Password: "hash"}), store.ErrValidation)

	staff, err := s.ListStaff(ctx)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, "kasir01", staff[0].Username)
	assert.Equal(t, domain.RoleCashier, staff[0].Role)
	assert.True(t, staff[0].Active)

	assert.ErrorIs(t, s.UpdateStaffPassword(ctx, "nobody", "x"), store.ErrNotFound)
	require.NoError(t, s.UpdateStaffPassword(ctx, "KASIR01", "new-hash"))
}
