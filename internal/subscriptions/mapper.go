package subscriptions

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/meterlane/billingdash-backend/pkg/db/models"
	"github.com/meterlane/billingdash-backend/pkg/enums"
	pkgerrors "github.com/meterlane/billingdash-backend/pkg/errors"
)

// BuildSubscriptionFromStripe maps a Stripe subscription into the canonical model.
func BuildSubscriptionFromStripe(stripeSub *stripe.Subscription, userID uuid.UUID, planID *string) (*models.Subscription, error) {
	if stripeSub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription is nil")
	}

	status := mapStripeStatus(stripeSub.Status)

	metadata, err := mergeMetadata(stripeSub.Metadata, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal metadata")
	}

	startTS, endTS := periodFromSubscription(stripeSub)
	priceID := PriceIDFromSubscription(stripeSub)

	sub := &models.Subscription{
		UserID:               userID,
		PlanID:               planID,
		StripeSubscriptionID: stripeSub.ID,
		StripePriceID:        trimmedPtr(priceID),
		Status:               status,
		CurrentPeriodStart:   toTimePtr(startTS),
		CurrentPeriodEnd:     toTime(endTS),
		CancelAtPeriodEnd:    stripeSub.CancelAtPeriodEnd,
		CanceledAt:           toTimePtr(stripeSub.CanceledAt),
		Metadata:             metadata,
	}
	if stripeSub.Customer != nil {
		sub.StripeCustomerID = trimmedPtr(stripeSub.Customer.ID)
	}
	return sub, nil
}

// UpdateSubscriptionFromStripe mutates the provided subscription with new Stripe data.
func UpdateSubscriptionFromStripe(target *models.Subscription, stripeSub *stripe.Subscription, planID *string) error {
	if target == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "target subscription is nil")
	}
	if stripeSub == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription is nil")
	}

	metadata, err := mergeMetadata(stripeSub.Metadata, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal metadata")
	}

	target.StripeSubscriptionID = stripeSub.ID
	target.Status = mapStripeStatus(stripeSub.Status)
	if planID != nil {
		target.PlanID = planID
	}
	if priceID := PriceIDFromSubscription(stripeSub); priceID != "" {
		target.StripePriceID = trimmedPtr(priceID)
	}
	if stripeSub.Customer != nil {
		target.StripeCustomerID = trimmedPtr(stripeSub.Customer.ID)
	}
	startTS, endTS := periodFromSubscription(stripeSub)
	target.CurrentPeriodStart = toTimePtr(startTS)
	target.CurrentPeriodEnd = toTime(endTS)
	target.CancelAtPeriodEnd = stripeSub.CancelAtPeriodEnd
	target.CanceledAt = toTimePtr(stripeSub.CanceledAt)
	target.Metadata = metadata
	return nil
}

// BuildInvoiceFromStripe maps a Stripe invoice into the canonical model.
func BuildInvoiceFromStripe(stripeInvoice *stripe.Invoice, userID uuid.UUID, subscriptionID *uuid.UUID) (*models.Invoice, error) {
	if stripeInvoice == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe invoice is nil")
	}

	invoice := &models.Invoice{
		UserID:          userID,
		SubscriptionID:  subscriptionID,
		StripeInvoiceID: stripeInvoice.ID,
		AmountCents:     stripeInvoice.AmountPaid,
		CurrencyCode:    strings.ToLower(string(stripeInvoice.Currency)),
		Status:          mapStripeInvoiceStatus(stripeInvoice.Status),
		DueDate:         toTimePtr(stripeInvoice.DueDate),
	}
	if invoice.AmountCents == 0 {
		invoice.AmountCents = stripeInvoice.AmountDue
	}
	if invoice.CurrencyCode == "" {
		invoice.CurrencyCode = "usd"
	}
	if stripeInvoice.HostedInvoiceURL != "" {
		invoice.HostedInvoiceURL = trimmedPtr(stripeInvoice.HostedInvoiceURL)
	}
	if stripeInvoice.InvoicePDF != "" {
		invoice.InvoicePDF = trimmedPtr(stripeInvoice.InvoicePDF)
	}
	if stripeInvoice.StatusTransitions != nil && stripeInvoice.StatusTransitions.PaidAt != 0 {
		invoice.PaidAt = toTimePtr(stripeInvoice.StatusTransitions.PaidAt)
	}
	return invoice, nil
}

// UserIDFromMetadata extracts the user ID that was attached to Stripe metadata.
func UserIDFromMetadata(metadata map[string]string) (uuid.UUID, error) {
	if metadata == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "metadata is required")
	}
	userID, ok := metadata["user_id"]
	if !ok || strings.TrimSpace(userID) == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id missing from metadata")
	}
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id metadata")
	}
	return id, nil
}

// IsActiveStatus reports whether the provided status keeps the subscription usable.
func IsActiveStatus(status enums.SubscriptionStatus) bool {
	return status != enums.SubscriptionStatusCanceled && status != enums.SubscriptionStatusPaused
}

// PriceIDFromSubscription returns the price id of the first subscription item.
func PriceIDFromSubscription(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price != nil {
		return sub.Items.Data[0].Price.ID
	}
	return ""
}

func mergeMetadata(base map[string]string, extras map[string]string) (json.RawMessage, error) {
	if len(base) == 0 && len(extras) == 0 {
		return json.RawMessage("{}"), nil
	}
	merged := make(map[string]string, len(base)+len(extras))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extras {
		if v == "" {
			continue
		}
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func toTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func periodFromSubscription(sub *stripe.Subscription) (int64, int64) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return 0, 0
	}
	item := sub.Items.Data[0]
	return item.CurrentPeriodStart, item.CurrentPeriodEnd
}

func trimmedPtr(value string) *string {
	if s := strings.TrimSpace(value); s != "" {
		return &s
	}
	return nil
}

func mapStripeStatus(raw stripe.SubscriptionStatus) enums.SubscriptionStatus {
	switch raw {
	case stripe.SubscriptionStatusTrialing:
		return enums.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusActive:
		return enums.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return enums.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return enums.SubscriptionStatusCanceled
	case stripe.SubscriptionStatusPaused:
		return enums.SubscriptionStatusPaused
	default:
		return enums.SubscriptionStatusActive
	}
}

func mapStripeInvoiceStatus(raw stripe.InvoiceStatus) enums.InvoiceStatus {
	switch raw {
	case stripe.InvoiceStatusDraft:
		return enums.InvoiceStatusDraft
	case stripe.InvoiceStatusOpen:
		return enums.InvoiceStatusOpen
	case stripe.InvoiceStatusPaid:
		return enums.InvoiceStatusPaid
	case stripe.InvoiceStatusVoid:
		return enums.InvoiceStatusVoid
	case stripe.InvoiceStatusUncollectible:
		return enums.InvoiceStatusUncollectible
	default:
		return enums.InvoiceStatusOpen
	}
}
