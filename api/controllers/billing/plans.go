package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/meterlane/billingdash-backend/api/responses"
	"github.com/meterlane/billingdash-backend/pkg/db/models"
	pkgerrors "github.com/meterlane/billingdash-backend/pkg/errors"
	"github.com/meterlane/billingdash-backend/pkg/logger"
)

// PlanService describes the plan catalog methods used by the HTTP controllers.
type PlanService interface {
	List(ctx context.Context) ([]models.Plan, error)
}

type planResponse struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      *string  `json:"description,omitempty"`
	IsDefault        bool     `json:"is_default"`
	Interval         string   `json:"interval"`
	PriceAmount      string   `json:"price_amount"`
	PriceAmountCents int64    `json:"price_amount_cents"`
	CurrencyCode     string   `json:"currency_code"`
	Features         []string `json:"features"`
	APICallLimit     int64    `json:"api_call_limit"`
	StorageLimitGB   int64    `json:"storage_limit_gb"`
	TeamMemberLimit  int64    `json:"team_member_limit"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
}

// PlansList serves the public plan catalog: active plans, cheapest first.
func PlansList(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		plans, err := svc.List(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, plansToResponse(plans))
	}
}

func plansToResponse(plans []models.Plan) []planResponse {
	result := make([]planResponse, 0, len(plans))
	for _, plan := range plans {
		result = append(result, planToResponse(plan))
	}
	return result
}

func planToResponse(plan models.Plan) planResponse {
	features := make([]string, len(plan.Features))
	copy(features, plan.Features)

	return planResponse{
		ID:               plan.ID,
		Name:             plan.Name,
		Description:      plan.Description,
		IsDefault:        plan.IsDefault,
		Interval:         string(plan.Interval),
		PriceAmount:      plan.PriceAmount.StringFixed(2),
		PriceAmountCents: plan.PriceCents(),
		CurrencyCode:     plan.CurrencyCode,
		Features:         features,
		APICallLimit:     plan.APICallLimit,
		StorageLimitGB:   plan.StorageLimitGB,
		TeamMemberLimit:  plan.TeamMemberLimit,
		CreatedAt:        plan.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        plan.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
