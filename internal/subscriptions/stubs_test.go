package subscriptions

import (
	"context"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/meterlane/billingdash-backend/internal/billing"
	"github.com/meterlane/billingdash-backend/internal/usage"
	"github.com/meterlane/billingdash-backend/pkg/db/models"
)

type stubBillingRepo struct {
	subscription *models.Subscription
	subErr       error
	invoices     []models.Invoice
	invoicesErr  error

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
	if s.subErr != nil {
		return nil, s.subErr
	}
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
	if s.invoicesErr != nil {
		return nil, s.invoicesErr
	}
	return s.invoices, nil
}

func (s *stubBillingRepo) FindInvoiceByStripeID(ctx context.Context, stripeInvoiceID string) (*models.Invoice, error) {
	return nil, nil
}

type stubPlanService struct {
	plans    []models.Plan
	resolved models.Plan
}

func (s *stubPlanService) List(ctx context.Context) ([]models.Plan, error) { return s.plans, nil }

func (s *stubPlanService) Resolve(ctx context.Context, planID *string) models.Plan {
	return s.resolved
}

func (s *stubPlanService) ResolveByPriceID(ctx context.Context, stripePriceID string) models.Plan {
	return s.resolved
}

func (s *stubPlanService) Default(ctx context.Context) models.Plan { return s.resolved }

func (s *stubPlanService) Limits(plan models.Plan) usage.Limits {
	return usage.Limits{
		APICalls:    plan.APICallLimit,
		StorageGB:   plan.StorageLimitGB,
		TeamMembers: plan.TeamMemberLimit,
	}
}

func (s *stubPlanService) Reload(ctx context.Context) error { return nil }
func (s *stubPlanService) Seed(ctx context.Context) error   { return nil }

type stubStripeBillingClient struct {
	checkoutResp *stripe.CheckoutSession
	checkoutErr  error
	portalResp   *stripe.BillingPortalSession
	portalErr    error
	getResp      *stripe.Subscription
	getErr       error
	updateResp   *stripe.Subscription
	updateErr    error

	checkoutCalls int
	portalCalls   int
	getCalls      int
	updateCalls   int

	lastCheckoutParams *stripe.CheckoutSessionParams
	lastUpdateParams   *stripe.SubscriptionParams
}

func (s *stubStripeBillingClient) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.checkoutCalls++
	s.lastCheckoutParams = params
	return s.checkoutResp, s.checkoutErr
}

func (s *stubStripeBillingClient) CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	s.portalCalls++
	return s.portalResp, s.portalErr
}

func (s *stubStripeBillingClient) GetSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	s.getCalls++
	return s.getResp, s.getErr
}

func (s *stubStripeBillingClient) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	s.updateCalls++
	s.lastUpdateParams = params
	return s.updateResp, s.updateErr
}
