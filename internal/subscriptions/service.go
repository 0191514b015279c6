package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/meterlane/billingdash-backend/internal/billing"
	"github.com/meterlane/billingdash-backend/internal/plans"
	"github.com/meterlane/billingdash-backend/pkg/config"
	"github.com/meterlane/billingdash-backend/pkg/db/models"
	pkgerrors "github.com/meterlane/billingdash-backend/pkg/errors"
)

// Service defines the billing-facing subscription surface.
type Service interface {
	GetForUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	Overview(ctx context.Context, userID uuid.UUID) (*OverviewResult, error)
	ListInvoices(ctx context.Context, userID uuid.UUID, limit int) ([]models.Invoice, error)
	CreateCheckoutSession(ctx context.Context, input CheckoutInput) (string, error)
	CreatePortalSession(ctx context.Context, input PortalInput) (string, error)
	ChangePlan(ctx context.Context, input ChangePlanInput) (*ChangePlanResult, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	BillingRepo  billing.Repository
	PlanService  plans.Service
	StripeClient StripeBillingClient
	Billing      config.BillingConfig
}

// CheckoutInput captures the data required to start a checkout session.
type CheckoutInput struct {
	UserID  uuid.UUID
	Email   string
	PriceID string
}

// PortalInput captures the data required to open the billing portal.
type PortalInput struct {
	UserID     uuid.UUID
	CustomerID string
}

// ChangePlanInput captures the data required to move a subscription to a new price.
type ChangePlanInput struct {
	UserID         uuid.UUID
	Email          string
	SubscriptionID *string
	PriceID        string
}

// ChangePlanResult carries either a checkout redirect or the updated subscription.
type ChangePlanResult struct {
	CheckoutURL      string
	SubscriptionID   string
	Status           string
	CurrentPeriodEnd time.Time
}

// OverviewResult assembles the billing overview: the display plan is always
// concrete even when no subscription exists.
type OverviewResult struct {
	Plan         models.Plan
	Subscription *models.Subscription
	Invoices     []models.Invoice
}

type service struct {
	billingRepo billing.Repository
	planSvc     plans.Service
	stripe      StripeBillingClient
	cfg         config.BillingConfig
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repo required")
	}
	if params.PlanService == nil {
		return nil, fmt.Errorf("plan service required")
	}
	if params.StripeClient == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &service{
		billingRepo: params.BillingRepo,
		planSvc:     params.PlanService,
		stripe:      params.StripeClient,
		cfg:         params.Billing,
	}, nil
}

// GetForUser returns the user's latest subscription, or nil when none exists.
// Store failures surface as dependency errors so callers can tell "absent"
// from "unavailable".
func (s *service) GetForUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	sub, err := s.billingRepo.FindSubscriptionByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup subscription")
	}
	return sub, nil
}

// Overview resolves the display plan, subscription and invoice history.
func (s *service) Overview(ctx context.Context, userID uuid.UUID) (*OverviewResult, error) {
	sub, err := s.GetForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var planID *string
	if sub != nil {
		planID = sub.PlanID
	}
	plan := s.planSvc.Resolve(ctx, planID)
	if sub != nil && planID == nil && sub.StripePriceID != nil {
		plan = s.planSvc.ResolveByPriceID(ctx, *sub.StripePriceID)
	}

	invoices, err := s.ListInvoices(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	return &OverviewResult{
		Plan:         plan,
		Subscription: sub,
		Invoices:     invoices,
	}, nil
}

// ListInvoices returns the user's invoice history, newest first.
func (s *service) ListInvoices(ctx context.Context, userID uuid.UUID, limit int) ([]models.Invoice, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	invoices, err := s.billingRepo.ListInvoicesByUser(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}
	return invoices, nil
}

// CreateCheckoutSession starts a Stripe checkout for the requested price.
// Validation happens before any processor call.
func (s *service) CreateCheckoutSession(ctx context.Context, input CheckoutInput) (string, error) {
	if input.UserID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	priceID := strings.TrimSpace(input.PriceID)
	if priceID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "price_id is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(s.cfg.CheckoutSuccessURL()),
		CancelURL:         stripe.String(s.cfg.CheckoutCancelURL()),
		ClientReferenceID: stripe.String(input.UserID.String()),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": input.UserID.String()},
		},
	}
	params.AddMetadata("user_id", input.UserID.String())
	if email := strings.TrimSpace(input.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	if session == nil || session.URL == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "checkout session missing url")
	}
	return session.URL, nil
}

// CreatePortalSession opens the Stripe billing portal for the customer.
func (s *service) CreatePortalSession(ctx context.Context, input PortalInput) (string, error) {
	if input.UserID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	customerID := strings.TrimSpace(input.CustomerID)
	if customerID == "" {
		sub, err := s.GetForUser(ctx, input.UserID)
		if err != nil {
			return "", err
		}
		if sub != nil && sub.StripeCustomerID != nil {
			customerID = strings.TrimSpace(*sub.StripeCustomerID)
		}
	}
	if customerID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "customer_id is required")
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(s.cfg.PortalReturnURL()),
	}

	session, err := s.stripe.CreatePortalSession(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create portal session")
	}
	if session == nil || session.URL == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "portal session missing url")
	}
	return session.URL, nil
}

// ChangePlan moves an existing subscription to a new price, invoicing the
// proration immediately. Without a subscription id it degrades to checkout.
func (s *service) ChangePlan(ctx context.Context, input ChangePlanInput) (*ChangePlanResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	priceID := strings.TrimSpace(input.PriceID)
	if priceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price_id is required")
	}

	subscriptionID := ""
	if input.SubscriptionID != nil {
		subscriptionID = strings.TrimSpace(*input.SubscriptionID)
	}
	if subscriptionID == "" {
		url, err := s.CreateCheckoutSession(ctx, CheckoutInput{
			UserID:  input.UserID,
			Email:   input.Email,
			PriceID: priceID,
		})
		if err != nil {
			return nil, err
		}
		return &ChangePlanResult{CheckoutURL: url}, nil
	}

	current, err := s.stripe.GetSubscription(ctx, subscriptionID, &stripe.SubscriptionParams{})
	if err != nil {
		return nil, mapStripeError(err, "fetch stripe subscription")
	}
	if current == nil || current.Items == nil || len(current.Items.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Subscription not found")
	}
	if len(current.Items.Data) > 1 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "subscription has multiple items")
	}

	item := current.Items.Data[0]
	updated, err := s.stripe.UpdateSubscription(ctx, subscriptionID, &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(item.ID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String("always_invoice"),
	})
	if err != nil {
		return nil, mapStripeError(err, "update stripe subscription")
	}
	if updated == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe returned no subscription")
	}

	_, endTS := periodFromSubscription(updated)
	return &ChangePlanResult{
		SubscriptionID:   updated.ID,
		Status:           string(updated.Status),
		CurrentPeriodEnd: toTime(endTS),
	}, nil
}

func mapStripeError(err error, action string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "Subscription not found")
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
