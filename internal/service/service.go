package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"posadmin/backend/internal/domain"
	"posadmin/backend/internal/store"
	"posadmin/backend/internal/stream"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service owns the catalog and ledger write paths. Every successful mutation
// announces the change so snapshot subscribers reload; a failed announcement
// is logged but never fails the write.
type Service struct {
	repo    store.Repository
	signals stream.Signals
}

func New(repo store.Repository, signals stream.Signals) *Service {
	return &Service{repo: repo, signals: signals}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Category == "" {
		req.Category = "General"
	}

	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if err := validatePricing(req.CostPriceCents, req.SellingPriceCents); err != nil {
		return domain.Product{}, err
	}
	if req.Stock < 0 || req.NotifyQuantity < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	// notifyQuantity may exceed stock later as stock depletes; only entry is
	// constrained.
	if req.NotifyQuantity > req.Stock {
		return domain.Product{}, fmt.Errorf("%w: notify quantity cannot exceed initial stock", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:               req.SKU,
		Name:              req.Name,
		Category:          req.Category,
		CostPriceCents:    req.CostPriceCents,
		SellingPriceCents: req.SellingPriceCents,
		Stock:             req.Stock,
		NotifyQuantity:    req.NotifyQuantity,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.notifyCatalog(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.CostPriceCents != nil {
		updated.CostPriceCents = *req.CostPriceCents
	}
	if req.SellingPriceCents != nil {
		updated.SellingPriceCents = *req.SellingPriceCents
	}
	if err := validatePricing(updated.CostPriceCents, updated.SellingPriceCents); err != nil {
		return domain.Product{}, err
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Stock = *req.Stock
	}
	if req.NotifyQuantity != nil {
		if *req.NotifyQuantity < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.NotifyQuantity = *req.NotifyQuantity
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.notifyCatalog(ctx)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.notifyCatalog(ctx)
	return nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Sale{}, fmt.Errorf("admin role required")
	}

	req.Date = strings.TrimSpace(req.Date)
	if req.Date == "" {
		req.Date = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return domain.Sale{}, fmt.Errorf("%w: bad sale date %q", store.ErrInvalidInput, req.Date)
	}
	if req.TotalAmountCents < 0 || req.ItemsCount < 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		Date:             req.Date,
		TotalAmountCents: req.TotalAmountCents,
		ProfitCents:      req.ProfitCents,
		ItemsCount:       req.ItemsCount,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.notifyLedger(ctx)
	return *created, nil
}

func validatePricing(costCents, sellingCents int64) error {
	if costCents < 0 || sellingCents < 0 {
		return store.ErrInvalidInput
	}
	if sellingCents <= costCents {
		return fmt.Errorf("%w: selling price must exceed cost price", store.ErrInvalidInput)
	}
	return nil
}

func (s *Service) notifyCatalog(ctx context.Context) {
	if err := s.signals.Notify(ctx, stream.CollectionProducts); err != nil {
		log.Printf("[service] WARN: catalog change notification failed: %v", err)
	}
}

func (s *Service) notifyLedger(ctx context.Context) {
	if err := s.signals.Notify(ctx, stream.CollectionSales); err != nil {
		log.Printf("[service] WARN: ledger change notification failed: %v", err)
	}
}
