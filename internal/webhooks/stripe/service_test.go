package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/meterlane/billingdash-backend/internal/billing"
	"github.com/meterlane/billingdash-backend/internal/usage"
	"github.com/meterlane/billingdash-backend/pkg/db/models"
	"github.com/meterlane/billingdash-backend/pkg/enums"
)

type stubBillingRepo struct {
	subscription *models.Subscription

	createdSubs  []*models.Subscription
	updatedSubs  []*models.Subscription
	upsertedInvs []*models.Invoice
}

func (s *stubBillingRepo) WithTx(tx *gorm.DB) billing.Repository { return s }

func (s *stubBillingRepo) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	s.createdSubs = append(s.createdSubs, sub)
	return nil
}

func (s *stubBillingRepo) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	s.updatedSubs = append(s.updatedSubs, sub)
	return nil
}

func (s *stubBillingRepo) FindSubscriptionByUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return s.subscription, nil
}

func (s *stubBillingRepo) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	if s.subscription != nil && s.subscription.StripeSubscriptionID == stripeSubscriptionID {
		return s.subscription, nil
	}
	return nil, nil
}

func (s *stubBillingRepo) CreatePlan(ctx context.Context, plan *models.Plan) error { return nil }
func (s *stubBillingRepo) UpdatePlan(ctx context.Context, plan *models.Plan) error { return nil }

func (s *stubBillingRepo) ListPlans(ctx context.Context, params billing.ListPlansQuery) ([]models.Plan, error) {
	return nil, nil
}

func (s *stubBillingRepo) FindPlanByID(ctx context.Context, id string) (*models.Plan, error) {
	return nil, nil
}

func (s *stubBillingRepo) FindPlanByStripePriceID(ctx context.Context, stripePriceID string) (*models.Plan, error) {
	return nil, nil
}

func (s *stubBillingRepo) FindDefaultPlan(ctx context.Context) (*models.Plan, error) {
	return nil, nil
}

func (s *stubBillingRepo) UpsertInvoice(ctx context.Context, invoice *models.Invoice) error {
	s.upsertedInvs = append(s.upsertedInvs, invoice)
	return nil
}

func (s *stubBillingRepo) ListInvoicesByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Invoice, error) {
	return nil, nil
}

func (s *stubBillingRepo) FindInvoiceByStripeID(ctx context.Context, stripeInvoiceID string) (*models.Invoice, error) {
	return nil, nil
}

type stubPlanService struct {
	known map[string]models.Plan
}

func (s *stubPlanService) List(ctx context.Context) ([]models.Plan, error) { return nil, nil }

func (s *stubPlanService) Resolve(ctx context.Context, planID *string) models.Plan {
	return models.Plan{ID: "plan_free", Name: "Free"}
}

func (s *stubPlanService) ResolveByPriceID(ctx context.Context, stripePriceID string) models.Plan {
	if plan, ok := s.known[stripePriceID]; ok {
		return plan
	}
	return models.Plan{ID: "plan_free", Name: "Free", StripePriceID: "price_free"}
}

func (s *stubPlanService) Default(ctx context.Context) models.Plan {
	return models.Plan{ID: "plan_free", Name: "Free"}
}

func (s *stubPlanService) Limits(plan models.Plan) usage.Limits { return usage.Limits{} }
func (s *stubPlanService) Reload(ctx context.Context) error     { return nil }
func (s *stubPlanService) Seed(ctx context.Context) error       { return nil }

type stubStripeClient struct {
	getResp  *stripe.Subscription
	getErr   error
	getCalls int
}

func (s *stubStripeClient) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return nil, nil
}

func (s *stubStripeClient) CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return nil, nil
}

func (s *stubStripeClient) GetSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	s.getCalls++
	return s.getResp, s.getErr
}

func (s *stubStripeClient) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return nil, nil
}

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newWebhookService(t *testing.T, repo *stubBillingRepo, client *stubStripeClient, plansByPrice map[string]models.Plan) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		BillingRepo:       repo,
		PlanService:       &stubPlanService{known: plansByPrice},
		StripeClient:      client,
		TransactionRunner: &stubTxRunner{},
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	return svc
}

func subscriptionEvent(t *testing.T, eventType stripe.EventType, sub *stripe.Subscription) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("marshal subscription: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	repo := &stubBillingRepo{}
	svc := newWebhookService(t, repo, &stubStripeClient{}, nil)

	event := &stripe.Event{
		ID:   "evt_unknown",
		Type: stripe.EventType("customer.created"),
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown events must be acknowledged, got %v", err)
	}
	if len(repo.createdSubs) != 0 || len(repo.updatedSubs) != 0 {
		t.Fatalf("unknown events must not touch the store")
	}
}

func TestSubscriptionUpdatedCreatesMirrorRow(t *testing.T) {
	userID := uuid.New()
	repo := &stubBillingRepo{}
	plans := map[string]models.Plan{
		"price_pro": {ID: "plan_pro", Name: "Pro", StripePriceID: "price_pro"},
	}
	svc := newWebhookService(t, repo, &stubStripeClient{}, plans)

	event := subscriptionEvent(t, stripe.EventTypeCustomerSubscriptionUpdated, &stripe.Subscription{
		ID:       "sub_new",
		Status:   stripe.SubscriptionStatusActive,
		Metadata: map[string]string{"user_id": userID.String()},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{CurrentPeriodStart: 100, CurrentPeriodEnd: 200, Price: &stripe.Price{ID: "price_pro"}},
			},
		},
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(repo.createdSubs) != 1 {
		t.Fatalf("expected mirror row created")
	}
	created := repo.createdSubs[0]
	if created.UserID != userID {
		t.Fatalf("expected user attribution from metadata")
	}
	if created.PlanID == nil || *created.PlanID != "plan_pro" {
		t.Fatalf("expected plan link for known price")
	}
	if created.CurrentPeriodEnd.IsZero() {
		t.Fatalf("expected period end mirrored")
	}
}

func TestSubscriptionUpdatedSyncsExistingRow(t *testing.T) {
	userID := uuid.New()
	repo := &stubBillingRepo{
		subscription: &models.Subscription{
			ID:                   uuid.New(),
			UserID:               userID,
			StripeSubscriptionID: "sub_live",
			Status:               enums.SubscriptionStatusActive,
		},
	}
	svc := newWebhookService(t, repo, &stubStripeClient{}, nil)

	// No metadata on the payload; attribution falls back to the stored row.
	event := subscriptionEvent(t, stripe.EventTypeCustomerSubscriptionUpdated, &stripe.Subscription{
		ID:     "sub_live",
		Status: stripe.SubscriptionStatusPastDue,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{CurrentPeriodStart: 100, CurrentPeriodEnd: 200},
			},
		},
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(repo.updatedSubs) != 1 {
		t.Fatalf("expected stored row updated")
	}
	if repo.updatedSubs[0].Status != enums.SubscriptionStatusPastDue {
		t.Fatalf("expected past_due mirrored, got %s", repo.updatedSubs[0].Status)
	}
}

func TestSubscriptionDeletedForcesCanceled(t *testing.T) {
	repo := &stubBillingRepo{
		subscription: &models.Subscription{
			ID:                   uuid.New(),
			UserID:               uuid.New(),
			StripeSubscriptionID: "sub_gone",
			Status:               enums.SubscriptionStatusActive,
		},
	}
	svc := newWebhookService(t, repo, &stubStripeClient{}, nil)

	event := subscriptionEvent(t, stripe.EventTypeCustomerSubscriptionDeleted, &stripe.Subscription{
		ID:     "sub_gone",
		Status: stripe.SubscriptionStatusCanceled,
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(repo.updatedSubs) != 1 {
		t.Fatalf("expected stored row updated")
	}
	updated := repo.updatedSubs[0]
	if updated.Status != enums.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled, got %s", updated.Status)
	}
	if updated.CanceledAt == nil {
		t.Fatalf("expected canceled_at stamped")
	}
}

func TestSubscriptionDeletedUnknownRowIsAcked(t *testing.T) {
	repo := &stubBillingRepo{}
	svc := newWebhookService(t, repo, &stubStripeClient{}, nil)

	event := subscriptionEvent(t, stripe.EventTypeCustomerSubscriptionDeleted, &stripe.Subscription{
		ID:     "sub_never_seen",
		Status: stripe.SubscriptionStatusCanceled,
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("deletion for an unseen subscription must be acked, got %v", err)
	}
	if len(repo.updatedSubs) != 0 {
		t.Fatalf("nothing should be written")
	}
}

func TestCheckoutCompletedFetchesAndMirrorsSubscription(t *testing.T) {
	userID := uuid.New()
	repo := &stubBillingRepo{}
	client := &stubStripeClient{
		getResp: &stripe.Subscription{
			ID:     "sub_from_checkout",
			Status: stripe.SubscriptionStatusActive,
			Items: &stripe.SubscriptionItemList{
				Data: []*stripe.SubscriptionItem{
					{CurrentPeriodStart: 100, CurrentPeriodEnd: 200, Price: &stripe.Price{ID: "price_pro"}},
				},
			},
		},
	}
	svc := newWebhookService(t, repo, client, nil)

	session := &stripe.CheckoutSession{
		ID:           "cs_123",
		Metadata:     map[string]string{"user_id": userID.String()},
		Subscription: &stripe.Subscription{ID: "sub_from_checkout"},
	}
	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	event := &stripe.Event{
		ID:   "evt_checkout",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: raw},
	}

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if client.getCalls != 1 {
		t.Fatalf("expected authoritative fetch from stripe")
	}
	if len(repo.createdSubs) != 1 || repo.createdSubs[0].UserID != userID {
		t.Fatalf("expected subscription mirrored for session user")
	}
}

func TestInvoicePaidUpsertsInvoice(t *testing.T) {
	subRowID := uuid.New()
	userID := uuid.New()
	repo := &stubBillingRepo{
		subscription: &models.Subscription{
			ID:                   subRowID,
			UserID:               userID,
			StripeSubscriptionID: "sub_live",
			Status:               enums.SubscriptionStatusActive,
		},
	}
	svc := newWebhookService(t, repo, &stubStripeClient{}, nil)

	invoice := &stripe.Invoice{
		ID:         "in_123",
		AmountPaid: 2900,
		Currency:   stripe.CurrencyUSD,
		Status:     stripe.InvoiceStatusPaid,
	}
	raw, err := json.Marshal(invoice)
	if err != nil {
		t.Fatalf("marshal invoice: %v", err)
	}
	event := &stripe.Event{
		ID:   "evt_invoice",
		Type: stripe.EventTypeInvoicePaid,
		Data: &stripe.EventData{
			Raw:    raw,
			Object: map[string]any{"subscription": "sub_live"},
		},
	}

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(repo.upsertedInvs) != 1 {
		t.Fatalf("expected invoice upserted")
	}
	stored := repo.upsertedInvs[0]
	if stored.UserID != userID || stored.SubscriptionID == nil || *stored.SubscriptionID != subRowID {
		t.Fatalf("expected invoice attributed to stored subscription")
	}
	if stored.AmountCents != 2900 || stored.Status != enums.InvoiceStatusPaid {
		t.Fatalf("unexpected invoice row %+v", stored)
	}
}

func TestInvoicePaymentFailedMirrorsPastDue(t *testing.T) {
	repo := &stubBillingRepo{
		subscription: &models.Subscription{
			ID:                   uuid.New(),
			UserID:               uuid.New(),
			StripeSubscriptionID: "sub_live",
			Status:               enums.SubscriptionStatusActive,
		},
	}
	svc := newWebhookService(t, repo, &stubStripeClient{}, nil)

	invoice := &stripe.Invoice{
		ID:        "in_failed",
		AmountDue: 2900,
		Currency:  stripe.CurrencyUSD,
		Status:    stripe.InvoiceStatusOpen,
	}
	raw, err := json.Marshal(invoice)
	if err != nil {
		t.Fatalf("marshal invoice: %v", err)
	}
	event := &stripe.Event{
		ID:   "evt_invoice_failed",
		Type: stripe.EventTypeInvoicePaymentFailed,
		Data: &stripe.EventData{
			Raw:    raw,
			Object: map[string]any{"subscription": "sub_live"},
		},
	}

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(repo.upsertedInvs) != 1 {
		t.Fatalf("expected invoice upserted")
	}
	if len(repo.updatedSubs) != 1 || repo.updatedSubs[0].Status != enums.SubscriptionStatusPastDue {
		t.Fatalf("expected subscription flipped to past_due")
	}
}

func TestInvoiceWithoutLocalSubscriptionIsAcked(t *testing.T) {
	repo := &stubBillingRepo{}
	svc := newWebhookService(t, repo, &stubStripeClient{}, nil)

	invoice := &stripe.Invoice{ID: "in_orphan", Status: stripe.InvoiceStatusPaid}
	raw, err := json.Marshal(invoice)
	if err != nil {
		t.Fatalf("marshal invoice: %v", err)
	}
	event := &stripe.Event{
		ID:   "evt_orphan",
		Type: stripe.EventTypeInvoicePaid,
		Data: &stripe.EventData{
			Raw:    raw,
			Object: map[string]any{"subscription": "sub_unknown"},
		},
	}

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("orphan invoices must be acked, got %v", err)
	}
	if len(repo.upsertedInvs) != 0 {
		t.Fatalf("orphan invoice must not be stored")
	}
}

func TestSubscriptionUpdatedUnattributableIsAcked(t *testing.T) {
	repo := &stubBillingRepo{}
	svc := newWebhookService(t, repo, &stubStripeClient{}, nil)

	// No user_id metadata and no local row: a retry can never succeed, so
	// the event must be acknowledged rather than surfaced as a failure.
	event := subscriptionEvent(t, stripe.EventTypeCustomerSubscriptionUpdated, &stripe.Subscription{
		ID:     "sub_stranger",
		Status: stripe.SubscriptionStatusActive,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{CurrentPeriodStart: 100, CurrentPeriodEnd: 200, Price: &stripe.Price{ID: "price_unknown"}},
			},
		},
	})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unattributable subscription events must be acked, got %v", err)
	}
	if len(repo.createdSubs) != 0 || len(repo.updatedSubs) != 0 {
		t.Fatalf("unattributable events must not touch the store")
	}
}
