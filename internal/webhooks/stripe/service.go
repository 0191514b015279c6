package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/meterlane/billingdash-backend/internal/billing"
	"github.com/meterlane/billingdash-backend/internal/plans"
	"github.com/meterlane/billingdash-backend/internal/subscriptions"
	"github.com/meterlane/billingdash-backend/pkg/db/models"
	"github.com/meterlane/billingdash-backend/pkg/enums"
	pkgerrors "github.com/meterlane/billingdash-backend/pkg/errors"
	"github.com/meterlane/billingdash-backend/pkg/logger"
	"github.com/meterlane/billingdash-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	BillingRepo       billing.Repository
	PlanService       plans.Service
	StripeClient      subscriptions.StripeBillingClient
	TransactionRunner txRunner
	Metrics           *metrics.WebhookMetrics
	Logger            *logger.Logger
}

type Service struct {
	billingRepo billing.Repository
	planSvc     plans.Service
	stripe      subscriptions.StripeBillingClient
	txRunner    txRunner
	metrics     *metrics.WebhookMetrics
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.PlanService == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan service required")
	}
	if params.StripeClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		billingRepo: params.BillingRepo,
		planSvc:     params.PlanService,
		stripe:      params.StripeClient,
		txRunner:    params.TransactionRunner,
		metrics:     params.Metrics,
		logg:        params.Logger,
	}, nil
}

// HandleEvent mirrors the Stripe event into local state. Unrecognized event
// types are acknowledged without side effects.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	eventType := string(event.Type)
	start := time.Now()
	err := s.dispatch(ctx, event)
	s.metrics.ObserveDuration(eventType, time.Since(start))

	switch {
	case errors.Is(err, errUnattributableEvent):
		s.metrics.IncSkipped(eventType)
		if s.logg != nil {
			s.logg.Warn(s.logg.WithEventID(ctx, event.ID), "webhook event unattributable, acknowledging: "+eventType)
		}
		return nil
	case err != nil:
		s.metrics.IncFailed(eventType)
	case handledEventTypes[event.Type]:
		s.metrics.IncProcessed(eventType)
	default:
		s.metrics.IncSkipped(eventType)
		if s.logg != nil {
			s.logg.Info(s.logg.WithEventID(ctx, event.ID), "webhook event ignored: "+eventType)
		}
	}
	return err
}

// errUnattributableEvent marks events that reference no known user or local
// row. They are acknowledged and counted as skipped; a retry can never
// succeed, so surfacing an error would have Stripe redeliver forever.
var errUnattributableEvent = errors.New("event cannot be attributed to a user")

var handledEventTypes = map[stripe.EventType]bool{
	stripe.EventTypeCheckoutSessionCompleted:    true,
	stripe.EventTypeInvoicePaid:                 true,
	stripe.EventTypeInvoicePaymentFailed:        true,
	stripe.EventTypeCustomerSubscriptionUpdated: true,
	stripe.EventTypeCustomerSubscriptionDeleted: true,
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		return s.handleCheckoutCompleted(ctx, &session)

	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
		}
		if event.Type == stripe.EventTypeCustomerSubscriptionDeleted {
			return s.handleSubscriptionDeleted(ctx, &stripeSub)
		}
		return s.syncSubscription(ctx, &stripeSub)

	case stripe.EventTypeInvoicePaid, stripe.EventTypeInvoicePaymentFailed:
		var stripeInvoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &stripeInvoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode invoice event")
		}
		subscriptionID := event.GetObjectValue("subscription")
		if subscriptionID == "" {
			subscriptionID = event.GetObjectValue("parent", "subscription_details", "subscription")
		}
		return s.handleInvoice(ctx, &stripeInvoice, subscriptionID, event.Type == stripe.EventTypeInvoicePaymentFailed)

	default:
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	if session == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session is required")
	}

	userID, err := userIDFromSession(session)
	if err != nil {
		return err
	}

	if session.Subscription == nil || session.Subscription.ID == "" {
		// One-time payment sessions carry no subscription; nothing to mirror.
		return nil
	}

	stripeSub, err := s.stripe.GetSubscription(ctx, session.Subscription.ID, &stripe.SubscriptionParams{})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}
	return s.syncSubscriptionForUser(ctx, stripeSub, userID)
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, stripeSub *stripe.Subscription) error {
	if stripeSub == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription is required")
	}
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		stored, err := repo.FindSubscriptionByStripeID(ctx, stripeSub.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			// Deletion for a subscription this system never saw; ack and move on.
			return nil
		}
		if err := subscriptions.UpdateSubscriptionFromStripe(stored, stripeSub, nil); err != nil {
			return err
		}
		stored.Status = enums.SubscriptionStatusCanceled
		if stored.CanceledAt == nil {
			now := time.Now().UTC()
			stored.CanceledAt = &now
		}
		return repo.UpdateSubscription(ctx, stored)
	})
}

func (s *Service) handleInvoice(ctx context.Context, stripeInvoice *stripe.Invoice, subscriptionID string, paymentFailed bool) error {
	if stripeInvoice == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice is required")
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)

		var stored *models.Subscription
		if subscriptionID != "" {
			found, err := repo.FindSubscriptionByStripeID(ctx, subscriptionID)
			if err != nil {
				return err
			}
			stored = found
		}
		if stored == nil {
			// Without a local subscription there is no user to attribute
			// the invoice to.
			return errUnattributableEvent
		}

		var subID *uuid.UUID
		id := stored.ID
		subID = &id
		invoice, err := subscriptions.BuildInvoiceFromStripe(stripeInvoice, stored.UserID, subID)
		if err != nil {
			return err
		}
		if paymentFailed && invoice.Status == enums.InvoiceStatusDraft {
			invoice.Status = enums.InvoiceStatusOpen
		}
		if err := repo.UpsertInvoice(ctx, invoice); err != nil {
			return err
		}

		if paymentFailed && stored.Status != enums.SubscriptionStatusPastDue {
			stored.Status = enums.SubscriptionStatusPastDue
			return repo.UpdateSubscription(ctx, stored)
		}
		return nil
	})
}

func (s *Service) syncSubscription(ctx context.Context, stripeSub *stripe.Subscription) error {
	if stripeSub == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription is required")
	}
	userID, metadataErr := subscriptions.UserIDFromMetadata(stripeSub.Metadata)
	if metadataErr != nil {
		stored, err := s.billingRepo.FindSubscriptionByStripeID(ctx, stripeSub.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			return errUnattributableEvent
		}
		userID = stored.UserID
	}
	return s.syncSubscriptionForUser(ctx, stripeSub, userID)
}

func (s *Service) syncSubscriptionForUser(ctx context.Context, stripeSub *stripe.Subscription, userID uuid.UUID) error {
	if stripeSub == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription is required")
	}

	planID := s.resolvePlanID(ctx, stripeSub)

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		stored, err := repo.FindSubscriptionByStripeID(ctx, stripeSub.ID)
		if err != nil {
			return err
		}

		if stored == nil {
			built, buildErr := subscriptions.BuildSubscriptionFromStripe(stripeSub, userID, planID)
			if buildErr != nil {
				return buildErr
			}
			return repo.CreateSubscription(ctx, built)
		}

		if err := subscriptions.UpdateSubscriptionFromStripe(stored, stripeSub, planID); err != nil {
			return err
		}
		return repo.UpdateSubscription(ctx, stored)
	})
}

func (s *Service) resolvePlanID(ctx context.Context, stripeSub *stripe.Subscription) *string {
	priceID := subscriptions.PriceIDFromSubscription(stripeSub)
	if priceID == "" {
		return nil
	}
	plan := s.planSvc.ResolveByPriceID(ctx, priceID)
	if plan.StripePriceID != priceID {
		// Unknown price; keep the raw price id on the row but no plan link.
		return nil
	}
	id := plan.ID
	return &id
}

func userIDFromSession(session *stripe.CheckoutSession) (uuid.UUID, error) {
	if id, err := subscriptions.UserIDFromMetadata(session.Metadata); err == nil {
		return id, nil
	}
	if ref := session.ClientReferenceID; ref != "" {
		if id, err := uuid.Parse(ref); err == nil {
			return id, nil
		}
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id missing from checkout session")
}
