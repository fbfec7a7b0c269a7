package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"

	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/obs"
	"slaydrip/backend/internal/service"
	"slaydrip/backend/internal/store"
)

var (
	errMissingToken       = errors.New("missing bearer token")
	errForbiddenRole      = errors.New("forbidden role")
	errInvalidCSRF        = errors.New("missing or invalid CSRF token")
	errTooManyLogins      = errors.New("too many login attempts")
	errTooManyPINAttempts = errors.New("too many manager pin attempts")
	errInvalidManagerPIN  = errors.New("invalid manager pin")
	errMethodNotAllowed   = errors.New("method not allowed")
	errRouteNotFound      = errors.New("route not found")
)

// errorMapping is checked in order; the first match decides status and code.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{store.ErrValidation, http.StatusBadRequest, "validation_error"},
	{store.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{store.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{store.ErrInsufficientStock, http.StatusBadRequest, "insufficient_stock"},
	{store.ErrNoItems, http.StatusNotFound, "no_items"},
	{store.ErrNotFound, http.StatusNotFound, "not_found"},
	{store.ErrDuplicate, http.StatusConflict, "duplicate"},
	{ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{ErrInactiveAccount, http.StatusUnauthorized, "inactive_account"},
	{ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{errMissingToken, http.StatusUnauthorized, "missing_token"},
	{errForbiddenRole, http.StatusForbidden, "forbidden"},
	{errInvalidCSRF, http.StatusForbidden, "invalid_csrf"},
	{errInvalidManagerPIN, http.StatusForbidden, "invalid_manager_pin"},
	{errTooManyLogins, http.StatusTooManyRequests, "rate_limited"},
	{errTooManyPINAttempts, http.StatusTooManyRequests, "rate_limited"},
	{errMethodNotAllowed, http.StatusMethodNotAllowed, "method_not_allowed"},
	{errRouteNotFound, http.StatusNotFound, "not_found"},
}

type Options struct {
	// AllowedOrigin is a comma-separated list of CORS origins.
	AllowedOrigin  string
	Logger         zerolog.Logger
	HTTPMetrics    *obs.HTTPMetrics
	MetricsHandler http.Handler
	// LimiterStore backs the login and manager PIN limits. Nil means in-process.
	LimiterStore limiter.Store
}

type API struct {
	service        *service.Service
	auth           *AuthManager
	allowedOrigins []string
	logger         zerolog.Logger
	httpMetrics    *obs.HTTPMetrics
	metricsHandler http.Handler
	validate       *validator.Validate
	loginLimiter   *attemptLimiter
	pinLimiter     *attemptLimiter
	csrfSecret     []byte
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	limiterStore := opts.LimiterStore
	if limiterStore == nil {
		limiterStore = memorystore.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          "slaydrip:attempts",
			CleanUpInterval: time.Minute,
		})
	}
	return &API{
		service:        svc,
		auth:           auth,
		allowedOrigins: splitOrigins(opts.AllowedOrigin),
		logger:         opts.Logger,
		httpMetrics:    opts.HTTPMetrics,
		metricsHandler: opts.MetricsHandler,
		validate:       newValidator(),
		loginLimiter:   newAttemptLimiter(limiterStore, 5, time.Minute, opts.Logger),
		pinLimiter:     newAttemptLimiter(limiterStore, 8, time.Minute, opts.Logger),
		csrfSecret:     csrfSecret,
	}
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	return origins
}

// newValidator reports field names by their JSON tag.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current and previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

// attemptLimiter counts attempts per key in a fixed window. The store is
// shared across replicas when Redis is configured.
type attemptLimiter struct {
	limiter *limiter.Limiter
	logger  zerolog.Logger
}

func newAttemptLimiter(st limiter.Store, max int64, window time.Duration, logger zerolog.Logger) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{
		limiter: limiter.New(st, limiter.Rate{Period: window, Limit: max}),
		logger:  logger,
	}
}

// Allow records one attempt for key. A store failure lets the attempt through.
func (l *attemptLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return true
	}
	res, err := l.limiter.Get(ctx, key)
	if err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("rate limit store unavailable")
		return true
	}
	return !res.Reached
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(withStaffSlot)
	if a.httpMetrics != nil {
		r.Use(a.httpMetrics.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: a.logger, Staff: staffFromSlot}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(securityHeaders)
	r.Use(a.checkCSRF)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) { a.fail(w, r, errRouteNotFound) })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) { a.fail(w, r, errMethodNotAllowed) })

	r.Get("/healthz", a.handleHealth)
	if a.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", a.metricsHandler)
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Post("/auth/login", a.handleLogin)
		v.Get("/auth/csrf-token", a.handleCSRFToken)

		v.Group(func(staff chi.Router) {
			staff.Use(a.requireAuth(domain.RoleCashier, domain.RoleAdmin))
			staff.Get("/designs", a.handleDesigns)
			staff.Get("/designs/{designID}/sizes", a.handleDesignSizes)
			staff.Get("/cart", a.handleGetCart)
			staff.Put("/cart", a.handleSaveCart)
			staff.Delete("/cart", a.handleClearCart)
			staff.Post("/checkout", a.handleCheckout)
			staff.Get("/invoices/files/{fileName}", a.handleInvoiceFile)
			staff.Get("/invoices/{invoiceNo}", a.handleInvoiceLookup)
			staff.Post("/returns", a.handleReturn)
			staff.Post("/exchanges", a.handleExchange)
		})

		v.Group(func(admin chi.Router) {
			admin.Use(a.requireAuth(domain.RoleAdmin))
			admin.Get("/settings", a.handleGetSettings)
			admin.Put("/settings", a.handleUpdateSettings)
			admin.Get("/users/cashiers", a.handleListCashiers)
			admin.Post("/users/cashiers", a.handleCreateCashier)
		})
	})

	return r
}

type staffSlotKey struct{}

// withStaffSlot gives outer middleware a place to read the username that
// requireAuth resolves further down the chain.
func withStaffSlot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slot := new(string)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), staffSlotKey{}, slot)))
	})
}

func staffFromSlot(ctx context.Context) string {
	if slot, ok := ctx.Value(staffSlotKey{}).(*string); ok {
		return *slot
	}
	return ""
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				a.fail(w, r, errMissingToken)
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				a.fail(w, r, err)
				return
			}
			if slot, ok := r.Context().Value(staffSlotKey{}).(*string); ok {
				*slot = actor.Username
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				a.fail(w, r, errForbiddenRole)
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF requires X-CSRF-Token on every state-changing request.
func (a *API) checkCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}
		for _, exempt := range csrfExemptPaths {
			if r.URL.Path == exempt {
				next.ServeHTTP(w, r)
				return
			}
		}
		if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
			a.fail(w, r, errInvalidCSRF)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(r.Context(), "login:"+clientKey(r)) {
		a.fail(w, r, errTooManyLogins)
		return
	}

	var req domain.LoginRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token for the X-CSRF-Token header.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleDesigns(w http.ResponseWriter, r *http.Request) {
	catalog, err := a.service.ListDesigns(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

func (a *API) handleDesignSizes(w http.ResponseWriter, r *http.Request) {
	designID, err := strconv.ParseInt(chi.URLParam(r, "designID"), 10, 64)
	if err != nil || designID < 1 {
		a.fail(w, r, fmt.Errorf("%w: design id must be a positive integer", store.ErrValidation))
		return
	}
	sizes, err := a.service.SizesInStock(r.Context(), designID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"design_id": designID, "sizes": sizes})
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := a.service.Cart(r.Context(), actorFrom(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (a *API) handleSaveCart(w http.ResponseWriter, r *http.Request) {
	var req domain.CartSaveRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	cart, err := a.service.SaveCart(r.Context(), actorFrom(r), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (a *API) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := a.service.ClearCart(r.Context(), actorFrom(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	invoice, err := a.service.Checkout(r.Context(), actorFrom(r), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invoice)
}

func (a *API) handleInvoiceLookup(w http.ResponseWriter, r *http.Request) {
	lookup, err := a.service.LoadReturnableItems(r.Context(), chi.URLParam(r, "invoiceNo"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lookup)
}

func (a *API) handleInvoiceFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "fileName")
	body, contentType, err := a.service.OpenInvoiceDocument(r.Context(), name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		a.logger.Warn().Err(err).Str("file", name).Msg("stream invoice document")
	}
}

func (a *API) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	if !a.checkManagerPIN(w, r, actor, "return", req.ManagerPIN) {
		return
	}

	result, err := a.service.ProcessReturn(r.Context(), actor, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req domain.ExchangeRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	if !a.checkManagerPIN(w, r, actor, "exchange", req.ManagerPIN) {
		return
	}

	result, err := a.service.ProcessExchange(r.Context(), actor, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// checkManagerPIN gates cashier returns and exchanges. Admins are trusted.
func (a *API) checkManagerPIN(w http.ResponseWriter, r *http.Request, actor domain.Actor, action string, pin string) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	if !a.pinLimiter.Allow(r.Context(), "pin:"+action+":"+clientKey(r)) {
		a.fail(w, r, errTooManyPINAttempts)
		return false
	}
	if !a.auth.ValidateManagerPIN(pin) {
		a.logger.Warn().Str("staff", actor.Username).Str("action", action).Msg("manager pin rejected")
		a.fail(w, r, errInvalidManagerPIN)
		return false
	}
	return true
}

func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.service.StoreSettings(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req domain.SettingsUpdateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	settings, err := a.service.UpdateStoreSettings(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context())})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	cashier, err := a.auth.CreateCashier(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
}

func actorFrom(r *http.Request) domain.Actor {
	actor, _ := service.ActorFromContext(r.Context())
	return actor
}

// decodeAndValidate writes a 400 and returns false when the body is not a
// valid instance of dest.
func (a *API) decodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		a.fail(w, r, fmt.Errorf("%w: %v", store.ErrValidation, err))
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		a.fail(w, r, validationError(err))
		return false
	}
	return true
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: invalid %s", store.ErrValidation, strings.Join(fields, ", "))
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusFor(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// fail writes the error body for err. 5xx responses are logged and never
// echo the underlying error.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		a.logger.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
