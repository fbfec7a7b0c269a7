package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	state           *state
	usersByUsername map[string]domain.StaffAccount
}

type state struct {
	designs        map[int64]domain.Design
	stock          map[domain.StockKey]int
	settings       domain.StoreSettings
	invoiceCounter int64
	sales          map[string]domain.Sale
	saleItems      map[string][]domain.SaleItem
	returns        []domain.ReturnRecord
	exchanges      []domain.ExchangeDetail
}

func (st *state) clone() *state {
	next := &state{
		designs:        make(map[int64]domain.Design, len(st.designs)),
		stock:          make(map[domain.StockKey]int, len(st.stock)),
		settings:       st.settings,
		invoiceCounter: st.invoiceCounter,
		sales:          make(map[string]domain.Sale, len(st.sales)),
		saleItems:      make(map[string][]domain.SaleItem, len(st.saleItems)),
		returns:        slices.Clone(st.returns),
		exchanges:      slices.Clone(st.exchanges),
	}
	for id, design := range st.designs {
		next.designs[id] = design
	}
	for key, qty := range st.stock {
		next.stock[key] = qty
	}
	for no, sale := range st.sales {
		next.sales[no] = sale
	}
	for no, items := range st.saleItems {
		next.saleItems[no] = slices.Clone(items)
	}
	return next
}

// seedUsers builds the dev/demo staff accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD, with dev defaults.
func seedUsers() map[string]domain.StaffAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn().Msg("memory store: using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.StaffAccount{}
	for _, u := range []struct {
		username    string
		displayName string
		password    string
		role        string
	}{
		{"admin", "Store Admin", adminPwd, domain.RoleAdmin},
		{"cashier", "Counter Staff", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("memory store: hash seed password")
		}
		users[u.username] = domain.StaffAccount{
			Username:    u.username,
			DisplayName: u.displayName,
			Password:    string(hash),
			Role:        u.role,
			Active:      true,
			CreatedAt:   now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// New returns an empty store with default settings (12% GST, no discount)
// and no staff accounts.
func New() *Store {
	return &Store{
		state: &state{
			designs: make(map[int64]domain.Design),
			stock:   make(map[domain.StockKey]int),
			settings: domain.StoreSettings{
				GSTPercent:      decimal.NewFromInt(12),
				DiscountPercent: decimal.Zero,
			},
			sales:     make(map[string]domain.Sale),
			saleItems: make(map[string][]domain.SaleItem),
		},
		usersByUsername: make(map[string]domain.StaffAccount),
	}
}

func NewSeeded() *Store {
	s := New()
	designs := []domain.Design{
		{ID: 1, Code: "SD-OVR-BLK", ProductName: "Oversized Tee", Gender: "Unisex", Color: "Black", Price: decimal.NewFromInt(1299)},
		{ID: 2, Code: "SD-OVR-WHT", ProductName: "Oversized Tee", Gender: "Unisex", Color: "White", Price: decimal.NewFromInt(1299)},
		{ID: 3, Code: "SD-HOOD-OLV", ProductName: "Drip Hoodie", Gender: "Men", Color: "Olive", Price: decimal.NewFromInt(2499)},
		{ID: 4, Code: "SD-CROP-LIL", ProductName: "Crop Top", Gender: "Women", Color: "Lilac", Price: decimal.NewFromInt(899)},
		{ID: 5, Code: "SD-CARGO-SND", ProductName: "Cargo Pants", Gender: "Unisex", Color: "Sand", Price: decimal.NewFromInt(1899)},
		{ID: 6, Code: "SD-CAP-BLK", ProductName: "Logo Cap", Gender: "Unisex", Color: "Black", Price: decimal.NewFromInt(499)},
	}
	for _, d := range designs {
		s.SeedDesign(d, map[string]int{"S": 20, "M": 20, "L": 20, "XL": 10})
	}
	s.usersByUsername = seedUsers()
	return s
}

// SeedDesign upserts a design and sets absolute stock for the given sizes.
func (s *Store) SeedDesign(design domain.Design, stock map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.designs[design.ID] = design
	for size, qty := range stock {
		s.state.stock[domain.StockKey{DesignID: design.ID, Size: size}] = qty
	}
}

// Stock reads a count outside any transaction; ok is false when the row is absent.
func (s *Store) Stock(key domain.StockKey) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qty, ok := s.state.stock[key]
	return qty, ok
}

func (s *Store) ListDesigns(_ context.Context) ([]domain.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	designs := make([]domain.Design, 0, len(s.state.designs))
	for _, d := range s.state.designs {
		designs = append(designs, d)
	}
	slices.SortFunc(designs, func(a, b domain.Design) int {
		return int(a.ID - b.ID)
	})
	return designs, nil
}

func (s *Store) ListSizesInStock(_ context.Context, designID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sizes := make([]string, 0, 4)
	for key, qty := range s.state.stock {
		if key.DesignID == designID && qty > 0 {
			sizes = append(sizes, key.Size)
		}
	}
	slices.SortFunc(sizes, compareSizes)
	return sizes, nil
}

func (s *Store) UpdateStoreSettings(_ context.Context, settings domain.StoreSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.settings = settings
	return nil
}

func (s *Store) GetDesign(ctx context.Context, designID int64) (*domain.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getDesign(designID)
}

func (s *Store) GetStoreSettings(_ context.Context) (domain.StoreSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.settings, nil
}

func (s *Store) FindSale(_ context.Context, invoiceNo string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.findSale(invoiceNo)
}

func (s *Store) ListSaleItems(_ context.Context, invoiceNo string) ([]domain.SaleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.saleItems[invoiceNo]), nil
}

func (s *Store) ReturnedQtyByInvoice(_ context.Context, invoiceNo string) (map[domain.StockKey]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.returnedQty(invoiceNo), nil
}

// WithinTx runs fn against a private copy of the state and swaps it in on success.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	working := s.state.clone()
	if err := fn(&memTx{state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// ReturnRecords and ExchangeDetails expose the append-only ledgers for inspection.
func (s *Store) ReturnRecords() []domain.ReturnRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.returns)
}

func (s *Store) ExchangeDetails() []domain.ExchangeDetail {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.exchanges)
}

func (s *Store) CreateStaff(_ context.Context, account domain.StaffAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(account.Username))
	if username == "" || strings.TrimSpace(account.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicate
	}
	account.Username = username
	if account.Role == "" {
		account.Role = domain.RoleCashier
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.Active = true
	s.usersByUsername[username] = account
	return nil
}

func (s *Store) ListStaff(_ context.Context) ([]domain.StaffAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.StaffAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.StaffAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateStaffPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

type memTx struct {
	state *state
}

func (t *memTx) GetDesign(_ context.Context, designID int64) (*domain.Design, error) {
	return t.state.getDesign(designID)
}

func (t *memTx) GetStoreSettings(_ context.Context) (domain.StoreSettings, error) {
	return t.state.settings, nil
}

func (t *memTx) FindSale(_ context.Context, invoiceNo string) (*domain.Sale, error) {
	return t.state.findSale(invoiceNo)
}

func (t *memTx) ListSaleItems(_ context.Context, invoiceNo string) ([]domain.SaleItem, error) {
	return slices.Clone(t.state.saleItems[invoiceNo]), nil
}

func (t *memTx) ReturnedQtyByInvoice(_ context.Context, invoiceNo string) (map[domain.StockKey]int, error) {
	return t.state.returnedQty(invoiceNo), nil
}

func (t *memTx) NextInvoiceNumber(_ context.Context) (int64, error) {
	t.state.invoiceCounter++
	return t.state.invoiceCounter, nil
}

func (t *memTx) GetStock(_ context.Context, key domain.StockKey) (int, error) {
	qty, ok := t.state.stock[key]
	if !ok {
		return 0, store.ErrNotFound
	}
	return qty, nil
}

func (t *memTx) AdjustStock(_ context.Context, key domain.StockKey, delta int) error {
	qty, ok := t.state.stock[key]
	if !ok {
		return store.ErrNotFound
	}
	t.state.stock[key] = qty + delta
	return nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) error {
	if _, exists := t.state.sales[sale.InvoiceNo]; exists {
		return fmt.Errorf("%w: invoice %s", store.ErrDuplicate, sale.InvoiceNo)
	}
	items := slices.Clone(sale.Items)
	for i := range items {
		items[i].InvoiceNo = sale.InvoiceNo
	}
	sale.Items = nil
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	t.state.sales[sale.InvoiceNo] = sale
	t.state.saleItems[sale.InvoiceNo] = items
	return nil
}

func (t *memTx) InsertReturns(_ context.Context, records []domain.ReturnRecord) error {
	now := time.Now().UTC()
	for _, record := range records {
		if record.Quantity < 1 {
			return store.ErrInvalidQuantity
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		t.state.returns = append(t.state.returns, record)
	}
	return nil
}

func (t *memTx) InsertExchangeDetails(_ context.Context, details []domain.ExchangeDetail) error {
	now := time.Now().UTC()
	for _, detail := range details {
		if detail.Quantity < 1 {
			return store.ErrInvalidQuantity
		}
		if detail.CreatedAt.IsZero() {
			detail.CreatedAt = now
		}
		t.state.exchanges = append(t.state.exchanges, detail)
	}
	return nil
}

func (st *state) getDesign(designID int64) (*domain.Design, error) {
	design, ok := st.designs[designID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &design, nil
}

func (st *state) findSale(invoiceNo string) (*domain.Sale, error) {
	sale, ok := st.sales[invoiceNo]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sale, nil
}

func (st *state) returnedQty(invoiceNo string) map[domain.StockKey]int {
	returned := make(map[domain.StockKey]int)
	for _, record := range st.returns {
		if record.InvoiceNo != invoiceNo {
			continue
		}
		returned[domain.StockKey{DesignID: record.DesignID, Size: record.Size}] += record.Quantity
	}
	return returned
}

var sizeOrder = map[string]int{"XS": 1, "S": 2, "M": 3, "L": 4, "XL": 5, "XXL": 6, "XXXL": 7}

func compareSizes(a, b string) int {
	ra, oka := sizeOrder[strings.ToUpper(a)]
	rb, okb := sizeOrder[strings.ToUpper(b)]
	switch {
	case oka && okb:
		return ra - rb
	case oka:
		return -1
	case okb:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
