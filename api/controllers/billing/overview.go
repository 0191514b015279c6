package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/meterlane/billingdash-backend/api/controllers/usercontext"
	"github.com/meterlane/billingdash-backend/api/responses"
	subsvc "github.com/meterlane/billingdash-backend/internal/subscriptions"
	"github.com/meterlane/billingdash-backend/pkg/db/models"
	pkgerrors "github.com/meterlane/billingdash-backend/pkg/errors"
	"github.com/meterlane/billingdash-backend/pkg/logger"
)

// SubscriptionService describes the billing methods used by the HTTP controllers.
type SubscriptionService interface {
	Overview(ctx context.Context, userID uuid.UUID) (*subsvc.OverviewResult, error)
	ListInvoices(ctx context.Context, userID uuid.UUID, limit int) ([]models.Invoice, error)
	CreateCheckoutSession(ctx context.Context, input subsvc.CheckoutInput) (string, error)
	CreatePortalSession(ctx context.Context, input subsvc.PortalInput) (string, error)
}

type subscriptionResponse struct {
	ID                   uuid.UUID  `json:"id"`
	StripeSubscriptionID string     `json:"stripe_subscription_id"`
	StripeCustomerID     *string    `json:"stripe_customer_id,omitempty"`
	PlanID               *string    `json:"plan_id,omitempty"`
	Status               string     `json:"status"`
	CurrentPeriodStart   *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     time.Time  `json:"current_period_end"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
	CanceledAt           *time.Time `json:"canceled_at,omitempty"`
}

type invoiceResponse struct {
	ID               uuid.UUID  `json:"id"`
	StripeInvoiceID  string     `json:"stripe_invoice_id"`
	AmountCents      int64      `json:"amount_cents"`
	CurrencyCode     string     `json:"currency_code"`
	Status           string     `json:"status"`
	HostedInvoiceURL *string    `json:"hosted_invoice_url,omitempty"`
	InvoicePDF       *string    `json:"invoice_pdf,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	CreatedAt        string     `json:"created_at"`
}

type overviewResponse struct {
	Plan         planResponse          `json:"plan"`
	Subscription *subscriptionResponse `json:"subscription"`
	Invoices     []invoiceResponse     `json:"invoices"`
}

// Overview serves the current plan, subscription state and invoice history.
// The plan is always concrete even when the user has no subscription.
func Overview(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
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

		result, err := svc.Overview(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, overviewResponse{
			Plan:         planToResponse(result.Plan),
			Subscription: subscriptionToResponse(result.Subscription),
			Invoices:     invoicesToResponse(result.Invoices),
		})
	}
}

// InvoicesList serves the user's invoice history, newest first.
func InvoicesList(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
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

		invoices, err := svc.ListInvoices(ctx, userID, 0)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, invoicesToResponse(invoices))
	}
}

func subscriptionToResponse(sub *models.Subscription) *subscriptionResponse {
	if sub == nil {
		return nil
	}
	return &subscriptionResponse{
		ID:                   sub.ID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		StripeCustomerID:     sub.StripeCustomerID,
		PlanID:               sub.PlanID,
		Status:               string(sub.Status),
		CurrentPeriodStart:   sub.CurrentPeriodStart,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		CanceledAt:           sub.CanceledAt,
	}
}

func invoicesToResponse(invoices []models.Invoice) []invoiceResponse {
	result := make([]invoiceResponse, 0, len(invoices))
	for _, invoice := range invoices {
		result = append(result, invoiceResponse{
			ID:               invoice.ID,
			StripeInvoiceID:  invoice.StripeInvoiceID,
			AmountCents:      invoice.AmountCents,
			CurrencyCode:     invoice.CurrencyCode,
			Status:           string(invoice.Status),
			HostedInvoiceURL: invoice.HostedInvoiceURL,
			InvoicePDF:       invoice.InvoicePDF,
			DueDate:          invoice.DueDate,
			PaidAt:           invoice.PaidAt,
			CreatedAt:        invoice.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return result
}
