package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	subsvc "github.com/meterlane/billingdash-backend/internal/subscriptions"
	"github.com/meterlane/billingdash-backend/internal/usage"
	pkgauth "github.com/meterlane/billingdash-backend/pkg/auth"
	"github.com/meterlane/billingdash-backend/pkg/config"
	"github.com/meterlane/billingdash-backend/pkg/db/models"
	"github.com/meterlane/billingdash-backend/pkg/logger"
	"github.com/meterlane/billingdash-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubPlanService struct{}

func (stubPlanService) List(ctx context.Context) ([]models.Plan, error) {
	return []models.Plan{{ID: "plan_free", Name: "Free"}}, nil
}

func (stubPlanService) Resolve(ctx context.Context, planID *string) models.Plan {
	return models.Plan{ID: "plan_free", Name: "Free"}
}

func (stubPlanService) ResolveByPriceID(ctx context.Context, stripePriceID string) models.Plan {
	return models.Plan{ID: "plan_free", Name: "Free"}
}

func (stubPlanService) Default(ctx context.Context) models.Plan {
	return models.Plan{ID: "plan_free", Name: "Free"}
}

func (stubPlanService) Limits(plan models.Plan) usage.Limits { return usage.Limits{} }
func (stubPlanService) Reload(ctx context.Context) error     { return nil }
func (stubPlanService) Seed(ctx context.Context) error       { return nil }

type stubSubscriptionService struct{}

func (stubSubscriptionService) GetForUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return nil, nil
}

func (stubSubscriptionService) Overview(ctx context.Context, userID uuid.UUID) (*subsvc.OverviewResult, error) {
	return &subsvc.OverviewResult{Plan: models.Plan{ID: "plan_free", Name: "Free"}}, nil
}

func (stubSubscriptionService) ListInvoices(ctx context.Context, userID uuid.UUID, limit int) ([]models.Invoice, error) {
	return nil, nil
}

func (stubSubscriptionService) CreateCheckoutSession(ctx context.Context, input subsvc.CheckoutInput) (string, error) {
	return "https://checkout.stripe.com/c/pay_test", nil
}

func (stubSubscriptionService) CreatePortalSession(ctx context.Context, input subsvc.PortalInput) (string, error) {
	return "https://billing.stripe.com/p/session_test", nil
}

func (stubSubscriptionService) ChangePlan(ctx context.Context, input subsvc.ChangePlanInput) (*subsvc.ChangePlanResult, error) {
	return &subsvc.ChangePlanResult{CheckoutURL: "https://checkout.stripe.com/c/pay_test"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		(*redis.Client)(nil),
		stubPlanService{},
		stubSubscriptionService{},
		nil, // usage collector unused by these routes
		nil, // usage recorder
		nil, // stripe client
		nil, // webhook service
		nil, // webhook guard
		nil, // user repo
	)
}

func buildToken(t *testing.T, cfg *config.Config) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  "owner@example.com",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPlanCatalogIsPublic(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "plan_free") {
		t.Fatalf("expected plan catalog in body, got %s", resp.Body.String())
	}
}

func TestBillingRoutesRejectMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/overview", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestBillingOverviewSucceedsWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/overview", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"plan"`) {
		t.Fatalf("expected plan in overview, got %s", resp.Body.String())
	}
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader("{}"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without signature got %d", resp.Code)
	}
}
