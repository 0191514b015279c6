package plans

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/meterlane/billingdash-backend/internal/billing"
	"github.com/meterlane/billingdash-backend/internal/usage"
	"github.com/meterlane/billingdash-backend/pkg/config"
	"github.com/meterlane/billingdash-backend/pkg/db/models"
	"github.com/meterlane/billingdash-backend/pkg/enums"
	pkgerrors "github.com/meterlane/billingdash-backend/pkg/errors"
	"github.com/meterlane/billingdash-backend/pkg/logger"
)

// Service exposes the plan catalog and the total plan resolver.
type Service interface {
	List(ctx context.Context) ([]models.Plan, error)
	Resolve(ctx context.Context, planID *string) models.Plan
	ResolveByPriceID(ctx context.Context, stripePriceID string) models.Plan
	Default(ctx context.Context) models.Plan
	Limits(plan models.Plan) usage.Limits
	Reload(ctx context.Context) error
	Seed(ctx context.Context) error
}

type service struct {
	repo billing.Repository
	logg *logger.Logger

	mu       sync.RWMutex
	byID     map[string]models.Plan
	byPrice  map[string]models.Plan
	active   []models.Plan
	fallback models.Plan
}

// NewService builds the catalog service. Call Seed/Reload during boot to warm
// the snapshot; until then the compiled-in free plan backs every resolve,
// with its usage ceilings taken from config.
func NewService(repo billing.Repository, usageCfg config.UsageConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	return &service{
		repo:     repo,
		logg:     logg,
		byID:     map[string]models.Plan{},
		byPrice:  map[string]models.Plan{},
		fallback: fallbackWithLimits(usageCfg),
	}, nil
}

// List returns the active plans ordered by ascending price.
func (s *service) List(ctx context.Context) ([]models.Plan, error) {
	s.mu.RLock()
	if len(s.active) > 0 {
		snapshot := make([]models.Plan, len(s.active))
		copy(snapshot, s.active)
		s.mu.RUnlock()
		return snapshot, nil
	}
	s.mu.RUnlock()

	if err := s.Reload(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]models.Plan, len(s.active))
	copy(snapshot, s.active)
	return snapshot, nil
}

// Resolve maps a possibly-nil or unknown plan id onto a concrete plan.
// It never fails: unknown ids land on the default plan.
func (s *service) Resolve(ctx context.Context, planID *string) models.Plan {
	if planID != nil {
		if id := strings.TrimSpace(*planID); id != "" {
			s.mu.RLock()
			plan, ok := s.byID[id]
			s.mu.RUnlock()
			if ok {
				return plan
			}
			if found, err := s.repo.FindPlanByID(ctx, id); err == nil && found != nil {
				s.cache(*found)
				return *found
			}
		}
	}
	return s.Default(ctx)
}

// ResolveByPriceID maps a Stripe price id onto a concrete plan, falling back
// to the default plan for unknown prices.
func (s *service) ResolveByPriceID(ctx context.Context, stripePriceID string) models.Plan {
	id := strings.TrimSpace(stripePriceID)
	if id != "" {
		s.mu.RLock()
		plan, ok := s.byPrice[id]
		s.mu.RUnlock()
		if ok {
			return plan
		}
		if found, err := s.repo.FindPlanByStripePriceID(ctx, id); err == nil && found != nil {
			s.cache(*found)
			return *found
		}
	}
	return s.Default(ctx)
}

// Default returns the designated fallback plan: the flagged default, else the
// cheapest active plan, else the compiled-in free plan.
func (s *service) Default(ctx context.Context) models.Plan {
	s.mu.RLock()
	for _, plan := range s.active {
		if plan.IsDefault {
			s.mu.RUnlock()
			return plan
		}
	}
	if len(s.active) > 0 {
		plan := s.active[0]
		s.mu.RUnlock()
		return plan
	}
	s.mu.RUnlock()

	if found, err := s.repo.FindDefaultPlan(ctx); err == nil && found != nil {
		s.cache(*found)
		return *found
	}
	return s.fallback
}

// Limits derives the usage ceilings for the plan.
func (s *service) Limits(plan models.Plan) usage.Limits {
	return usage.Limits{
		APICalls:    plan.APICallLimit,
		StorageGB:   plan.StorageLimitGB,
		TeamMembers: plan.TeamMemberLimit,
	}
}

// Reload replaces the in-memory snapshot from the database.
func (s *service) Reload(ctx context.Context) error {
	activeStatus := enums.PlanStatusActive
	plans, err := s.repo.ListPlans(ctx, billing.ListPlansQuery{Status: &activeStatus})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan catalog")
	}

	byID := make(map[string]models.Plan, len(plans))
	byPrice := make(map[string]models.Plan, len(plans))
	for _, plan := range plans {
		byID[plan.ID] = plan
		byPrice[plan.StripePriceID] = plan
	}

	s.mu.Lock()
	s.active = plans
	s.byID = byID
	s.byPrice = byPrice
	s.mu.Unlock()
	return nil
}

// Seed inserts the default catalog when the table is empty, then reloads.
func (s *service) Seed(ctx context.Context) error {
	existing, err := s.repo.ListPlans(ctx, billing.ListPlansQuery{})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check plan catalog")
	}
	if len(existing) == 0 {
		for _, plan := range seedPlans() {
			seeded := plan
			if err := s.repo.CreatePlan(ctx, &seeded); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("seed plan %s", plan.ID))
			}
		}
		if s.logg != nil {
			s.logg.Info(ctx, "plan catalog seeded")
		}
	}
	return s.Reload(ctx)
}

func (s *service) cache(plan models.Plan) {
	s.mu.Lock()
	s.byID[plan.ID] = plan
	s.byPrice[plan.StripePriceID] = plan
	s.mu.Unlock()
}
