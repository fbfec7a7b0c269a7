package store

import (
	"context"
	"errors"

	"slaydrip/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNoItems           = errors.New("invoice has no recorded items")
	ErrValidation        = errors.New("validation failed")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConsistency       = errors.New("ledger consistency violation")
	ErrDuplicate         = errors.New("already exists")
)

// Reader is the read surface shared by the repository and an open transaction.
type Reader interface {
	GetDesign(ctx context.Context, designID int64) (*domain.Design, error)
	GetStoreSettings(ctx context.Context) (domain.StoreSettings, error)
	FindSale(ctx context.Context, invoiceNo string) (*domain.Sale, error)
	ListSaleItems(ctx context.Context, invoiceNo string) ([]domain.SaleItem, error)
	ReturnedQtyByInvoice(ctx context.Context, invoiceNo string) (map[domain.StockKey]int, error)
}

// Tx is one all-or-nothing unit of work. Stock reads lock the row until the
// transaction ends, and FindSale locks the sale header so returns against one
// invoice are serialised.
type Tx interface {
	Reader
	NextInvoiceNumber(ctx context.Context) (int64, error)
	GetStock(ctx context.Context, key domain.StockKey) (int, error)
	AdjustStock(ctx context.Context, key domain.StockKey, delta int) error
	InsertSale(ctx context.Context, sale domain.Sale) error
	InsertReturns(ctx context.Context, records []domain.ReturnRecord) error
	InsertExchangeDetails(ctx context.Context, details []domain.ExchangeDetail) error
}

type Repository interface {
	Reader
	ListDesigns(ctx context.Context) ([]domain.Design, error)
	ListSizesInStock(ctx context.Context, designID int64) ([]string, error)
	UpdateStoreSettings(ctx context.Context, settings domain.StoreSettings) error
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	CreateStaff(ctx context.Context, account domain.StaffAccount) error
	ListStaff(ctx context.Context) ([]domain.StaffAccount, error)
	UpdateStaffPassword(ctx context.Context, username string, password string) error
}
