package billing

import (
	"net/http"

	"github.com/meterlane/billingdash-backend/api/controllers/usercontext"
	"github.com/meterlane/billingdash-backend/api/responses"
	"github.com/meterlane/billingdash-backend/api/validators"
	subsvc "github.com/meterlane/billingdash-backend/internal/subscriptions"
	pkgerrors "github.com/meterlane/billingdash-backend/pkg/errors"
	"github.com/meterlane/billingdash-backend/pkg/logger"
)

type checkoutRequest struct {
	PriceID string `json:"priceId" validate:"required"`
}

type portalRequest struct {
	CustomerID string `json:"customerId,omitempty"`
}

type sessionResponse struct {
	URL string `json:"url"`
}

// CheckoutCreate starts a Stripe checkout session for the requested price.
func CheckoutCreate(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
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

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		url, err := svc.CreateCheckoutSession(ctx, subsvc.CheckoutInput{
			UserID:  userID,
			Email:   usercontext.ResolveUserEmail(r),
			PriceID: payload.PriceID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, sessionResponse{URL: url})
	}
}

// PortalCreate opens the Stripe billing portal for the authenticated user.
func PortalCreate(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
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

		var payload portalRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		url, err := svc.CreatePortalSession(ctx, subsvc.PortalInput{
			UserID:     userID,
			CustomerID: payload.CustomerID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, sessionResponse{URL: url})
	}
}
