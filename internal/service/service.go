package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"slaydrip/backend/internal/cache"
	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/lock"
	"slaydrip/backend/internal/obs"
	"slaydrip/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// InvoicePublisher renders and stores the customer copy of an invoice.
type InvoicePublisher interface {
	Publish(ctx context.Context, sale domain.Sale, lines []domain.CartLine, breakdown domain.PriceBreakdown) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
	Discard(ctx context.Context, name string) error
}

type Options struct {
	StallLocation   string
	CartTTL         time.Duration
	CheckoutLockTTL time.Duration
	Logger          zerolog.Logger
	Metrics         *obs.DomainMetrics
}

type Service struct {
	repo      store.Repository
	carts     cache.CartStore
	locker    lock.Locker
	publisher InvoicePublisher
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time
}

func New(repo store.Repository, carts cache.CartStore, locker lock.Locker, publisher InvoicePublisher, opts Options) *Service {
	if opts.CartTTL <= 0 {
		opts.CartTTL = 12 * time.Hour
	}
	if opts.CheckoutLockTTL <= 0 {
		opts.CheckoutLockTTL = 60 * time.Second
	}
	return &Service{
		repo:      repo,
		carts:     carts,
		locker:    locker,
		publisher: publisher,
		opts:      opts,
		logger:    opts.Logger.With().Str("component", "service").Logger(),
		now:       time.Now,
	}
}

func staffID(staff domain.Actor) (string, error) {
	id := strings.TrimSpace(staff.Username)
	if id == "" {
		return "", store.ErrValidation
	}
	return id, nil
}

// DownloadPath is the API path serving a stored invoice file.
func DownloadPath(fileName string) string {
	return "/api/v1/invoices/files/" + fileName
}
