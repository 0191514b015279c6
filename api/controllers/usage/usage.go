package usage

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/meterlane/billingdash-backend/api/controllers/usercontext"
	"github.com/meterlane/billingdash-backend/api/responses"
	usagesvc "github.com/meterlane/billingdash-backend/internal/usage"
	"github.com/meterlane/billingdash-backend/pkg/db/models"
	pkgerrors "github.com/meterlane/billingdash-backend/pkg/errors"
	"github.com/meterlane/billingdash-backend/pkg/logger"
)

// SubscriptionLookup resolves the user's current subscription, nil when none.
type SubscriptionLookup interface {
	GetForUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
}

// PlanResolver maps a subscription onto a concrete plan and its limits.
type PlanResolver interface {
	Resolve(ctx context.Context, planID *string) models.Plan
	ResolveByPriceID(ctx context.Context, stripePriceID string) models.Plan
	Limits(plan models.Plan) usagesvc.Limits
}

// MetricsCollector reads the user's consumption counters.
type MetricsCollector interface {
	Collect(ctx context.Context, userID string) (*usagesvc.Metrics, error)
}

// Panel serves the usage dashboard view. The selection always collapses to
// exactly one state; a counter store outage renders the error state instead
// of failing the request.
func Panel(subs SubscriptionLookup, plans PlanResolver, collector MetricsCollector, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if subs == nil || plans == nil || collector == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage services unavailable"))
			return
		}

		userID, err := usercontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := subs.GetForUser(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		plan := resolvePlan(ctx, plans, sub)
		limits := plans.Limits(plan)

		metrics, collectErr := collector.Collect(ctx, userID.String())
		if collectErr != nil && logg != nil {
			logg.Warn(logg.WithUserID(ctx, userID.String()), "usage counters unavailable, rendering error state")
		}

		responses.WriteSuccess(w, usagesvc.Select(metrics, limits, false, collectErr))
	}
}

func resolvePlan(ctx context.Context, plans PlanResolver, sub *models.Subscription) models.Plan {
	if sub == nil {
		return plans.Resolve(ctx, nil)
	}
	if sub.PlanID == nil && sub.StripePriceID != nil {
		return plans.ResolveByPriceID(ctx, *sub.StripePriceID)
	}
	return plans.Resolve(ctx, sub.PlanID)
}
