package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/store"
)

func (s *Service) ListDesigns(ctx context.Context) (domain.CatalogResponse, error) {
	designs, err := s.repo.ListDesigns(ctx)
	if err != nil {
		return domain.CatalogResponse{}, err
	}
	settings, err := s.repo.GetStoreSettings(ctx)
	if err != nil {
		return domain.CatalogResponse{}, err
	}
	return domain.CatalogResponse{Designs: designs, DiscountPercent: settings.DiscountPercent}, nil
}

func (s *Service) SizesInStock(ctx context.Context, designID int64) ([]string, error) {
	if _, err := s.repo.GetDesign(ctx, designID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: design %d", store.ErrNotFound, designID)
		}
		return nil, err
	}
	return s.repo.ListSizesInStock(ctx, designID)
}

// SaveCart replaces the staff member's cart. Prices and display text come
// from the catalog, never from the client.
func (s *Service) SaveCart(ctx context.Context, staff domain.Actor, req domain.CartSaveRequest) (domain.CartResponse, error) {
	staffKey, err := staffID(staff)
	if err != nil {
		return domain.CartResponse{}, err
	}

	lines := make([]domain.CartLine, 0, len(req.Cart))
	for _, item := range req.Cart {
		size := strings.TrimSpace(item.Size)
		if size == "" {
			return domain.CartResponse{}, fmt.Errorf("%w: size is required", store.ErrValidation)
		}
		if item.Quantity < 1 {
			return domain.CartResponse{}, fmt.Errorf("%w: %d for design %d size %s", store.ErrInvalidQuantity, item.Quantity, item.DesignID, size)
		}
		design, err := s.repo.GetDesign(ctx, item.DesignID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.CartResponse{}, fmt.Errorf("%w: design %d", store.ErrNotFound, item.DesignID)
			}
			return domain.CartResponse{}, err
		}
		lines = append(lines, domain.CartLine{
			DesignID:   design.ID,
			Size:       size,
			Quantity:   item.Quantity,
			Price:      design.Price,
			DesignText: design.DisplayText(),
		})
	}

	if err := s.carts.Save(ctx, staffKey, lines, s.opts.CartTTL); err != nil {
		return domain.CartResponse{}, err
	}
	return cartResponse(lines), nil
}

func (s *Service) Cart(ctx context.Context, staff domain.Actor) (domain.CartResponse, error) {
	staffKey, err := staffID(staff)
	if err != nil {
		return domain.CartResponse{}, err
	}
	lines, err := s.carts.Load(ctx, staffKey)
	if err != nil {
		return domain.CartResponse{}, err
	}
	return cartResponse(lines), nil
}

func (s *Service) ClearCart(ctx context.Context, staff domain.Actor) error {
	staffKey, err := staffID(staff)
	if err != nil {
		return err
	}
	return s.carts.Clear(ctx, staffKey)
}

func cartResponse(lines []domain.CartLine) domain.CartResponse {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return domain.CartResponse{Lines: lines, Subtotal: subtotal.Round(2)}
}

// OpenInvoiceDocument streams a stored invoice file. The caller closes the reader.
func (s *Service) OpenInvoiceDocument(ctx context.Context, fileName string) (io.ReadCloser, string, error) {
	return s.publisher.Open(ctx, strings.TrimSpace(fileName))
}

func (s *Service) StoreSettings(ctx context.Context) (domain.StoreSettings, error) {
	return s.repo.GetStoreSettings(ctx)
}

func (s *Service) UpdateStoreSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.StoreSettings, error) {
	for name, pct := range map[string]decimal.Decimal{"gst_percent": req.GSTPercent, "discount_percent": req.DiscountPercent} {
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return domain.StoreSettings{}, fmt.Errorf("%w: %s must be between 0 and 100", store.ErrValidation, name)
		}
	}
	settings := domain.StoreSettings{GSTPercent: req.GSTPercent, DiscountPercent: req.DiscountPercent}
	if err := s.repo.UpdateStoreSettings(ctx, settings); err != nil {
		return domain.StoreSettings{}, err
	}
	if actor, ok := ActorFromContext(ctx); ok {
		s.logger.Info().Str("staff", actor.Username).
			Str("gst_percent", settings.GSTPercent.String()).
			Str("discount_percent", settings.DiscountPercent.String()).
			Msg("store settings updated")
	}
	return settings, nil
}
