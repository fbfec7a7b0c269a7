package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListDesigns(ctx context.Context) ([]domain.Design, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT design_id, design_code, product_name, gender, color, price
		FROM designs
		ORDER BY design_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	designs := make([]domain.Design, 0, 64)
	for rows.Next() {
		var d domain.Design
		if err := rows.Scan(&d.ID, &d.Code, &d.ProductName, &d.Gender, &d.Color, &d.Price); err != nil {
			return nil, err
		}
		designs = append(designs, d)
	}
	return designs, rows.Err()
}

func (s *Store) ListSizesInStock(ctx context.Context, designID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT size
		FROM design_stock
		WHERE design_id = $1 AND stock > 0
		ORDER BY CASE upper(size)
			WHEN 'XS' THEN 1 WHEN 'S' THEN 2 WHEN 'M' THEN 3 WHEN 'L' THEN 4
			WHEN 'XL' THEN 5 WHEN 'XXL' THEN 6 WHEN 'XXXL' THEN 7 ELSE 99 END, size
	`, designID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sizes := make([]string, 0, 8)
	for rows.Next() {
		var size string
		if err := rows.Scan(&size); err != nil {
			return nil, err
		}
		sizes = append(sizes, size)
	}
	return sizes, rows.Err()
}

func (s *Store) UpdateStoreSettings(ctx context.Context, settings domain.StoreSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_settings (id, gst_percent, discount_percent)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE
		SET gst_percent = EXCLUDED.gst_percent, discount_percent = EXCLUDED.discount_percent
	`, settings.GSTPercent, settings.DiscountPercent)
	return err
}

func (s *Store) GetDesign(ctx context.Context, designID int64) (*domain.Design, error) {
	return getDesign(ctx, s.db, designID)
}

func (s *Store) GetStoreSettings(ctx context.Context) (domain.StoreSettings, error) {
	return getStoreSettings(ctx, s.db)
}

func (s *Store) FindSale(ctx context.Context, invoiceNo string) (*domain.Sale, error) {
	return findSale(ctx, s.db, invoiceNo, false)
}

func (s *Store) ListSaleItems(ctx context.Context, invoiceNo string) ([]domain.SaleItem, error) {
	return listSaleItems(ctx, s.db, invoiceNo)
}

func (s *Store) ReturnedQtyByInvoice(ctx context.Context, invoiceNo string) (map[domain.StockKey]int, error) {
	return returnedQtyByInvoice(ctx, s.db, invoiceNo)
}

// WithinTx uses READ COMMITTED; correctness comes from the row locks taken by
// the counter update, stock reads and sale header reads.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) CreateStaff(ctx context.Context, account domain.StaffAccount) error {
	username := strings.ToLower(strings.TrimSpace(account.Username))
	if username == "" || strings.TrimSpace(account.Password) == "" {
		return store.ErrValidation
	}
	if account.Role == "" {
		account.Role = domain.RoleCashier
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_accounts (username, display_name, password_hash, role, active, created_at)
		VALUES ($1, $2, $3, $4, true, $5)
	`, username, account.DisplayName, account.Password, account.Role, account.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) ListStaff(ctx context.Context) ([]domain.StaffAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, display_name, password_hash, role, active, created_at
		FROM staff_accounts
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.StaffAccount, 0, 16)
	for rows.Next() {
		var a domain.StaffAccount
		if err := rows.Scan(&a.Username, &a.DisplayName, &a.Password, &a.Role, &a.Active, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) UpdateStaffPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE staff_accounts SET password_hash = $2 WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	return expectRows(res)
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetDesign(ctx context.Context, designID int64) (*domain.Design, error) {
	return getDesign(ctx, t.tx, designID)
}

func (t *pgTx) GetStoreSettings(ctx context.Context) (domain.StoreSettings, error) {
	return getStoreSettings(ctx, t.tx)
}

func (t *pgTx) FindSale(ctx context.Context, invoiceNo string) (*domain.Sale, error) {
	return findSale(ctx, t.tx, invoiceNo, true)
}

func (t *pgTx) ListSaleItems(ctx context.Context, invoiceNo string) ([]domain.SaleItem, error) {
	return listSaleItems(ctx, t.tx, invoiceNo)
}

func (t *pgTx) ReturnedQtyByInvoice(ctx context.Context, invoiceNo string) (map[domain.StockKey]int, error) {
	return returnedQtyByInvoice(ctx, t.tx, invoiceNo)
}

func (t *pgTx) NextInvoiceNumber(ctx context.Context) (int64, error) {
	var next int64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE invoice_counter SET last_number = last_number + 1
		WHERE id = 1
		RETURNING last_number
	`).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: invoice_counter row missing", store.ErrConsistency)
	}
	return next, err
}

func (t *pgTx) GetStock(ctx context.Context, key domain.StockKey) (int, error) {
	var stock int
	err := t.tx.QueryRowContext(ctx, `
		SELECT stock FROM design_stock
		WHERE design_id = $1 AND size = $2
		FOR UPDATE
	`, key.DesignID, key.Size).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	return stock, err
}

func (t *pgTx) AdjustStock(ctx context.Context, key domain.StockKey, delta int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE design_stock SET stock = stock + $3
		WHERE design_id = $1 AND size = $2
	`, key.DesignID, key.Size, delta)
	if err != nil {
		return err
	}
	return expectRows(res)
}

func (t *pgTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (
			invoice_no, bill_no, bill_date, customer_name, phone, payment_mode,
			subtotal, discount_percent, discount_amount, gst_percent, gst_amount, total_amount,
			pdf_file, staff_id, stall_location, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		sale.InvoiceNo, sale.BillNo, sale.BillDate, sale.CustomerName, sale.Phone, sale.PaymentMode,
		sale.Subtotal, sale.DiscountPercent, sale.DiscountAmount, sale.GSTPercent, sale.GSTAmount, sale.TotalAmount,
		sale.PDFFile, sale.StaffID, sale.StallLocation, nowIfZero(sale.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: invoice %s", store.ErrDuplicate, sale.InvoiceNo)
	}
	if err != nil {
		return err
	}

	for _, item := range sale.Items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_items (invoice_no, design_id, size, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
		`, sale.InvoiceNo, item.DesignID, item.Size, item.Quantity, item.Price); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) InsertReturns(ctx context.Context, records []domain.ReturnRecord) error {
	for _, r := range records {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO returns (return_ref, invoice_no, design_id, size, quantity, refund_amount, return_type, payment_mode, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, r.ReturnRef, r.InvoiceNo, r.DesignID, r.Size, r.Quantity, r.RefundAmount, r.ReturnType, r.PaymentMode, nowIfZero(r.CreatedAt)); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) InsertExchangeDetails(ctx context.Context, details []domain.ExchangeDetail) error {
	for _, d := range details {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO exchange_details (exchange_ref, invoice_no, design_id, size, quantity, unit_price, line_total, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, d.ExchangeRef, d.InvoiceNo, d.DesignID, d.Size, d.Quantity, d.UnitPrice, d.LineTotal, nowIfZero(d.CreatedAt)); err != nil {
			return err
		}
	}
	return nil
}

func getDesign(ctx context.Context, q querier, designID int64) (*domain.Design, error) {
	var d domain.Design
	err := q.QueryRowContext(ctx, `
		SELECT design_id, design_code, product_name, gender, color, price
		FROM designs
		WHERE design_id = $1
	`, designID).Scan(&d.ID, &d.Code, &d.ProductName, &d.Gender, &d.Color, &d.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func getStoreSettings(ctx context.Context, q querier) (domain.StoreSettings, error) {
	var settings domain.StoreSettings
	err := q.QueryRowContext(ctx, `
		SELECT gst_percent, discount_percent FROM store_settings WHERE id = 1
	`).Scan(&settings.GSTPercent, &settings.DiscountPercent)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoreSettings{}, fmt.Errorf("%w: store_settings row missing", store.ErrConsistency)
	}
	return settings, err
}

func findSale(ctx context.Context, q querier, invoiceNo string, forUpdate bool) (*domain.Sale, error) {
	query := `
		SELECT invoice_no, bill_no, bill_date, customer_name, phone, payment_mode,
			subtotal, discount_percent, discount_amount, gst_percent, gst_amount, total_amount,
			pdf_file, staff_id, stall_location, created_at
		FROM sales
		WHERE invoice_no = $1`
	if forUpdate {
		query += `
		FOR UPDATE`
	}

	var sale domain.Sale
	err := q.QueryRowContext(ctx, query, invoiceNo).Scan(
		&sale.InvoiceNo, &sale.BillNo, &sale.BillDate, &sale.CustomerName, &sale.Phone, &sale.PaymentMode,
		&sale.Subtotal, &sale.DiscountPercent, &sale.DiscountAmount, &sale.GSTPercent, &sale.GSTAmount, &sale.TotalAmount,
		&sale.PDFFile, &sale.StaffID, &sale.StallLocation, &sale.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func listSaleItems(ctx context.Context, q querier, invoiceNo string) ([]domain.SaleItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT invoice_no, design_id, size, quantity, price
		FROM sale_items
		WHERE invoice_no = $1
		ORDER BY id
	`, invoiceNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.InvoiceNo, &item.DesignID, &item.Size, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func returnedQtyByInvoice(ctx context.Context, q querier, invoiceNo string) (map[domain.StockKey]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT design_id, size, COALESCE(SUM(quantity), 0)
		FROM returns
		WHERE invoice_no = $1
		GROUP BY design_id, size
	`, invoiceNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returned := make(map[domain.StockKey]int)
	for rows.Next() {
		var key domain.StockKey
		var qty int
		if err := rows.Scan(&key.DesignID, &key.Size, &qty); err != nil {
			return nil, err
		}
		returned[key] = qty
	}
	return returned, rows.Err()
}

func expectRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nowIfZero(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at
}
