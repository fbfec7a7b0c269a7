package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.StaffAccount
	updates int
}

func (s *userStoreStub) CreateStaff(_ context.Context, account domain.StaffAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.StaffAccount)
	}
	if _, ok := s.users[account.Username]; ok {
		return store.ErrDuplicate
	}
	s.users[account.Username] = account
	return nil
}

func (s *userStoreStub) ListStaff(_ context.Context) ([]domain.StaffAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.StaffAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateStaffPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func plainAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.StaffAccount{
			"admin": {
				Username:    "admin",
				DisplayName: "Store Admin",
				Password:    "admin123",
				Role:        domain.RoleAdmin,
				Active:      true,
				CreatedAt:   time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := plainAdminStore()
	ctx := context.Background()

	manager := NewAuthManager(ctx, "test-secret", time.Hour, "123456", users)
	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.DisplayName != "Store Admin" {
		t.Fatalf("unexpected display name %q", resp.DisplayName)
	}

	stored, err := users.ListStaff(ctx)
	if err != nil {
		t.Fatalf("list staff failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 user, got %d", len(stored))
	}
	if !strings.HasPrefix(stored[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", stored[0].Password)
	}
	if users.updates == 0 {
		t.Fatalf("expected the upgraded hash to be written back")
	}
}

func TestLoginRejectsWrongPasswordAndInactiveAccount(t *testing.T) {
	users := plainAdminStore()
	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, "123456", users)

	_, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "nope"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, err = manager.Login(ctx, domain.LoginRequest{Username: "ghost", Password: "admin123"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}

	users.mu.Lock()
	admin := users.users["admin"]
	admin.Active = false
	users.users["admin"] = admin
	users.mu.Unlock()

	_, err = manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	if !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected inactive account, got %v", err)
	}
}

func TestCreateCashierStoresPasswordHash(t *testing.T) {
	users := plainAdminStore()
	ctx := context.Background()

	manager := NewAuthManager(ctx, "test-secret", time.Hour, "123456", users)
	cashier, err := manager.CreateCashier(ctx, domain.CashierCreateRequest{
		Username:    "Riya.K",
		DisplayName: "Riya",
		Password:    "pass1234",
	})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if cashier.Username != "riya.k" || cashier.Role != domain.RoleCashier {
		t.Fatalf("unexpected cashier %+v", cashier)
	}

	saved, ok := users.users["riya.k"]
	if !ok {
		t.Fatalf("expected cashier to be saved")
	}
	if !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", saved.Password)
	}

	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "riya.k", Password: "pass1234"}); err != nil {
		t.Fatalf("login with hashed cashier failed: %v", err)
	}

	_, err = manager.CreateCashier(ctx, domain.CashierCreateRequest{Username: "riya.k", Password: "pass1234"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	_, err = manager.CreateCashier(ctx, domain.CashierCreateRequest{Username: "abc", Password: "pass1234"})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for short username, got %v", err)
	}

	cashiers := manager.ListCashiers(ctx)
	if len(cashiers) != 1 || cashiers[0].DisplayName != "Riya" {
		t.Fatalf("unexpected cashier list %+v", cashiers)
	}
}

func TestTokenRoundTripCarriesActor(t *testing.T) {
	users := plainAdminStore()
	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, "123456", users)

	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin || actor.DisplayName != "Store Admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager(ctx, "another-secret", time.Hour, "123456", users)
	if _, err := other.ParseToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token from another secret to be rejected, got %v", err)
	}

	expired, err := manager.sign("admin", credential{role: domain.RoleAdmin}, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.RegisteredClaims{Subject: "admin", Issuer: tokenIssuer})
	unsigned, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := manager.ParseToken(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg=none token to be rejected, got %v", err)
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "654321", &userStoreStub{})

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}
	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}
	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
	if manager.ValidateManagerPIN("") {
		t.Fatalf("expected empty manager pin to fail")
	}
}
