package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Clients read money as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	PaymentModeCash = "Cash"
	PaymentModeUPI  = "UPI"
	PaymentModeCard = "Card"
)

const (
	ReturnTypeReturn   = "RETURN"
	ReturnTypeExchange = "EXCHANGE"
)

const (
	SettlementRefund  = "REFUND"
	SettlementCollect = "COLLECT"
	SettlementEven    = "EVEN"
)

const (
	RoleCashier = "cashier"
	RoleAdmin   = "admin"
)

func IsPaymentMode(mode string) bool {
	switch mode {
	case PaymentModeCash, PaymentModeUPI, PaymentModeCard:
		return true
	default:
		return false
	}
}

type Design struct {
	ID          int64           `json:"design_id"`
	Code        string          `json:"design_code"`
	ProductName string          `json:"product_name"`
	Gender      string          `json:"gender"`
	Color       string          `json:"color"`
	Price       decimal.Decimal `json:"price"`
}

// DisplayText is the line label printed on invoices and shown in the cart.
func (d Design) DisplayText() string {
	return d.Code + " | " + d.ProductName + " | " + d.Color
}

type StockKey struct {
	DesignID int64  `json:"design_id"`
	Size     string `json:"size"`
}

type StockEntry struct {
	StockKey
	Stock int `json:"stock"`
}

type StoreSettings struct {
	GSTPercent      decimal.Decimal `json:"gst_percent"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

type CartLine struct {
	DesignID   int64           `json:"design_id"`
	Size       string          `json:"size"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	DesignText string          `json:"design_text"`
}

func (l CartLine) Key() StockKey {
	return StockKey{DesignID: l.DesignID, Size: l.Size}
}

type Sale struct {
	InvoiceNo       string          `json:"invoice_no"`
	BillNo          string          `json:"bill_no"`
	BillDate        time.Time       `json:"bill_date"`
	CustomerName    string          `json:"customer_name"`
	Phone           string          `json:"phone"`
	PaymentMode     string          `json:"payment_mode"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	GSTPercent      decimal.Decimal `json:"gst_percent"`
	GSTAmount       decimal.Decimal `json:"gst_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PDFFile         string          `json:"pdf_file"`
	StaffID         string          `json:"staff_id"`
	StallLocation   string          `json:"stall_location"`
	CreatedAt       time.Time       `json:"created_at"`
	Items           []SaleItem      `json:"items,omitempty"`
}

type SaleItem struct {
	InvoiceNo string          `json:"invoice_no"`
	DesignID  int64           `json:"design_id"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func (i SaleItem) Key() StockKey {
	return StockKey{DesignID: i.DesignID, Size: i.Size}
}

type ReturnRecord struct {
	ReturnRef    string          `json:"return_ref"`
	InvoiceNo    string          `json:"invoice_no"`
	DesignID     int64           `json:"design_id"`
	Size         string          `json:"size"`
	Quantity     int             `json:"quantity"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	ReturnType   string          `json:"return_type"`
	PaymentMode  string          `json:"payment_mode"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ExchangeDetail struct {
	ExchangeRef string          `json:"exchange_ref"`
	InvoiceNo   string          `json:"invoice_no"`
	DesignID    int64           `json:"design_id"`
	Size        string          `json:"size"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	CreatedAt   time.Time       `json:"created_at"`
}

type PriceBreakdown struct {
	SubtotalInclusive   decimal.Decimal `json:"subtotal_inclusive"`
	BasePriceTotal      decimal.Decimal `json:"base_price_total"`
	DiscountPercent     decimal.Decimal `json:"discount_percent"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	DiscountedBasePrice decimal.Decimal `json:"discounted_base_price"`
	GSTPercent          decimal.Decimal `json:"gst_percent"`
	GSTAmount           decimal.Decimal `json:"gst_amount"`
	GrandTotal          decimal.Decimal `json:"grand_total"`
}

type CartSaveRequest struct {
	Cart []CartLineRequest `json:"cart" validate:"dive"`
}

type CartLineRequest struct {
	DesignID int64  `json:"design_id" validate:"required,gt=0"`
	Size     string `json:"size" validate:"required,max=10"`
	Quantity int    `json:"quantity"`
}

type CartResponse struct {
	Lines    []CartLine      `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type CheckoutRequest struct {
	CustomerName    string          `json:"customer_name" validate:"required,max=120"`
	Phone           string          `json:"phone" validate:"required,max=20"`
	PaymentMode     string          `json:"payment_mode" validate:"required,oneof=Cash UPI Card"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

type Invoice struct {
	Sale        Sale           `json:"sale"`
	Lines       []CartLine     `json:"lines"`
	Breakdown   PriceBreakdown `json:"breakdown"`
	DownloadURL string         `json:"download_url"`
}

type ReturnableLine struct {
	DesignID        int64           `json:"design_id"`
	DesignCode      string          `json:"design_code"`
	ProductName     string          `json:"product_name"`
	Color           string          `json:"color"`
	Size            string          `json:"size"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	SoldQty         int             `json:"sold_qty"`
	AlreadyReturned int             `json:"already_returned"`
	Returnable      int             `json:"returnable"`
}

func (l ReturnableLine) Key() StockKey {
	return StockKey{DesignID: l.DesignID, Size: l.Size}
}

type InvoiceLookup struct {
	Sale  Sale             `json:"sale"`
	Items []ReturnableLine `json:"items"`
}

type ItemRequest struct {
	DesignID int64  `json:"design_id" validate:"required,gt=0"`
	Size     string `json:"size" validate:"required,max=10"`
	Quantity int    `json:"quantity"`
}

func (i ItemRequest) Key() StockKey {
	return StockKey{DesignID: i.DesignID, Size: i.Size}
}

type ReturnRequest struct {
	InvoiceNo   string        `json:"invoice_no" validate:"required,max=50"`
	PaymentMode string        `json:"payment_mode" validate:"required,oneof=Cash UPI Card"`
	Items       []ItemRequest `json:"items" validate:"required,min=1,dive"`
	ManagerPIN  string        `json:"manager_pin,omitempty"`
}

type ProcessedItem struct {
	DesignID     int64           `json:"design_id"`
	Size         string          `json:"size"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
}

type ReturnResult struct {
	ReturnRef      string          `json:"return_ref"`
	TotalRefund    decimal.Decimal `json:"total_refund"`
	ProcessedItems []ProcessedItem `json:"processed_items"`
}

type ExchangeRequest struct {
	InvoiceNo       string          `json:"invoice_no" validate:"required,max=50"`
	PaymentMode     string          `json:"payment_mode" validate:"required,oneof=Cash UPI Card"`
	ReturnItems     []ItemRequest   `json:"return_items" validate:"required,min=1,dive"`
	NewItems        []ItemRequest   `json:"new_items" validate:"dive"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	ManagerPIN      string          `json:"manager_pin,omitempty"`
}

type Settlement struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

type ExchangeResult struct {
	ExchangeRef    string           `json:"exchange_ref"`
	ReturnedTotal  decimal.Decimal  `json:"returned_total"`
	NewTotal       decimal.Decimal  `json:"new_total"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	Settlement     Settlement       `json:"settlement"`
	PaymentMode    string           `json:"payment_mode"`
	IssuedItems    []ExchangeDetail `json:"issued_items"`
}

type CatalogResponse struct {
	Designs         []Design        `json:"designs"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

type SettingsUpdateRequest struct {
	GSTPercent      decimal.Decimal `json:"gst_percent"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username    string
	DisplayName string
	Role        string
}

type CashierCreateRequest struct {
	Username    string `json:"username" validate:"required,min=4,max=40"`
	DisplayName string `json:"display_name" validate:"max=80"`
	Password    string `json:"password" validate:"required,min=6"`
}

type CashierUser struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// StaffAccount is an internal persistence model for auth credentials.
type StaffAccount struct {
	Username    string
	DisplayName string
	Password    string
	Role        string
	Active      bool
	CreatedAt   time.Time
}
