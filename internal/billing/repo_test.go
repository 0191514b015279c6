package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/meterlane/billingdash-backend/pkg/db/models"
	"github.com/meterlane/billingdash-backend/pkg/enums"
)

func setupBillingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	plans := `
CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  status TEXT NOT NULL,
  stripe_price_id TEXT NOT NULL UNIQUE,
  is_default INTEGER NOT NULL DEFAULT 0,
  interval TEXT NOT NULL,
  price_amount NUMERIC NOT NULL,
  currency_code TEXT NOT NULL,
  features TEXT,
  api_call_limit INTEGER NOT NULL DEFAULT 0,
  storage_limit_gb INTEGER NOT NULL DEFAULT 0,
  team_member_limit INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	subscriptions := `
CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  plan_id TEXT,
  stripe_subscription_id TEXT NOT NULL UNIQUE,
  stripe_customer_id TEXT,
  stripe_price_id TEXT,
  status TEXT NOT NULL,
  current_period_start DATETIME,
  current_period_end DATETIME NOT NULL,
  cancel_at_period_end INTEGER NOT NULL DEFAULT 0,
  canceled_at DATETIME,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	invoices := `
CREATE TABLE IF NOT EXISTS invoices (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  subscription_id TEXT,
  stripe_invoice_id TEXT NOT NULL UNIQUE,
  amount_cents INTEGER NOT NULL DEFAULT 0,
  currency_code TEXT NOT NULL,
  status TEXT NOT NULL,
  hosted_invoice_url TEXT,
  invoice_pdf TEXT,
  due_date DATETIME,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	for _, ddl := range []string{plans, subscriptions, invoices} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

func storedPlan(id string, amount int64, status enums.PlanStatus) models.Plan {
	return models.Plan{
		ID:            id,
		Name:          id,
		Status:        status,
		StripePriceID: "price_" + id,
		Interval:      enums.BillingIntervalMonth,
		PriceAmount:   decimal.NewFromInt(amount),
		CurrencyCode:  "usd",
	}
}

func TestUpsertInvoiceReplayUpdatesInPlace(t *testing.T) {
	repo := NewRepository(setupBillingTestDB(t))
	ctx := context.Background()

	userID := uuid.New()
	stripeInvoiceID := "in_" + uuid.NewString()

	first := &models.Invoice{
		ID:              uuid.New(),
		UserID:          userID,
		StripeInvoiceID: stripeInvoiceID,
		AmountCents:     1000,
		CurrencyCode:    "usd",
		Status:          enums.InvoiceStatusOpen,
	}
	require.NoError(t, repo.UpsertInvoice(ctx, first))

	// Redelivery with a fresh row id must update the existing row, keyed on
	// the processor's invoice id.
	paidAt := time.Now().UTC().Truncate(time.Second)
	replay := &models.Invoice{
		ID:              uuid.New(),
		UserID:          userID,
		StripeInvoiceID: stripeInvoiceID,
		AmountCents:     2900,
		CurrencyCode:    "usd",
		Status:          enums.InvoiceStatusPaid,
		PaidAt:          &paidAt,
	}
	require.NoError(t, repo.UpsertInvoice(ctx, replay))

	var count int64
	require.NoError(t, repo.(*repository).db.
		Model(&models.Invoice{}).
		Where("stripe_invoice_id = ?", stripeInvoiceID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count, "replay must not insert a second row")

	stored, err := repo.FindInvoiceByStripeID(ctx, stripeInvoiceID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, first.ID, stored.ID, "conflict update must keep the original row id")
	assert.Equal(t, int64(2900), stored.AmountCents)
	assert.Equal(t, enums.InvoiceStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
}

func TestFindSubscriptionByUser(t *testing.T) {
	repo := NewRepository(setupBillingTestDB(t))
	ctx := context.Background()

	absent, err := repo.FindSubscriptionByUser(ctx, uuid.New())
	require.NoError(t, err, "a user without a subscription is not an error")
	assert.Nil(t, absent)

	userID := uuid.New()
	sub := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		StripeSubscriptionID: "sub_" + uuid.NewString(),
		Status:               enums.SubscriptionStatusActive,
		CurrentPeriodEnd:     time.Now().Add(30 * 24 * time.Hour).UTC(),
	}
	require.NoError(t, repo.CreateSubscription(ctx, sub))

	found, err := repo.FindSubscriptionByUser(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, sub.ID, found.ID)
	assert.Equal(t, sub.StripeSubscriptionID, found.StripeSubscriptionID)
}

func TestListPlansFiltersAndOrdersByPrice(t *testing.T) {
	repo := NewRepository(setupBillingTestDB(t))
	ctx := context.Background()

	free := storedPlan("plan_free", 0, enums.PlanStatusActive)
	pro := storedPlan("plan_pro", 29, enums.PlanStatusActive)
	enterprise := storedPlan("plan_enterprise", 99, enums.PlanStatusActive)
	hidden := storedPlan("plan_hidden", 5, enums.PlanStatusHidden)
	for _, plan := range []models.Plan{enterprise, free, hidden, pro} {
		seeded := plan
		require.NoError(t, repo.CreatePlan(ctx, &seeded))
	}

	activeStatus := enums.PlanStatusActive
	plans, err := repo.ListPlans(ctx, ListPlansQuery{Status: &activeStatus})
	require.NoError(t, err)
	require.Len(t, plans, 3)

	assert.Equal(t, "plan_free", plans[0].ID)
	assert.Equal(t, "plan_pro", plans[1].ID)
	assert.Equal(t, "plan_enterprise", plans[2].ID)
}
