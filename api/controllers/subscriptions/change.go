package subscriptions

import (
	"context"
	"net/http"
	"time"

	"github.com/meterlane/billingdash-backend/api/controllers/usercontext"
	"github.com/meterlane/billingdash-backend/api/responses"
	"github.com/meterlane/billingdash-backend/api/validators"
	subsvc "github.com/meterlane/billingdash-backend/internal/subscriptions"
	pkgerrors "github.com/meterlane/billingdash-backend/pkg/errors"
	"github.com/meterlane/billingdash-backend/pkg/logger"
)

// ChangeService describes the plan change operation used by the HTTP controllers.
type ChangeService interface {
	ChangePlan(ctx context.Context, input subsvc.ChangePlanInput) (*subsvc.ChangePlanResult, error)
}

type changePlanRequest struct {
	PriceID        string  `json:"priceId" validate:"required"`
	SubscriptionID *string `json:"subscriptionId,omitempty"`
}

type changePlanResponse struct {
	// URL is set when the user had no live subscription and a checkout
	// session was opened instead of an in-place plan swap.
	URL              string `json:"url,omitempty"`
	SubscriptionID   string `json:"subscription_id,omitempty"`
	Status           string `json:"status,omitempty"`
	CurrentPeriodEnd string `json:"current_period_end,omitempty"`
}

// ChangePlan swaps the user's subscription onto a new price, invoicing the
// prorated difference immediately. Users without a subscription are routed
// through checkout.
func ChangePlan(svc ChangeService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := usercontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload changePlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ChangePlan(ctx, subsvc.ChangePlanInput{
			UserID:         userID,
			Email:          usercontext.ResolveUserEmail(r),
			SubscriptionID: payload.SubscriptionID,
			PriceID:        payload.PriceID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := changePlanResponse{
			URL:            result.CheckoutURL,
			SubscriptionID: result.SubscriptionID,
			Status:         result.Status,
		}
		if !result.CurrentPeriodEnd.IsZero() {
			resp.CurrentPeriodEnd = result.CurrentPeriodEnd.UTC().Format(time.RFC3339)
		}

		responses.WriteSuccess(w, resp)
	}
}
