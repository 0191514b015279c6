package plans

import (
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/meterlane/billingdash-backend/pkg/config"
	"github.com/meterlane/billingdash-backend/pkg/db/models"
	"github.com/meterlane/billingdash-backend/pkg/enums"
)

// fallbackPlan is served when neither the database nor the seed data can
// supply a default. Keeps the resolver total even on a cold, broken store.
var fallbackPlan = models.Plan{
	ID:              "plan_free",
	Name:            "Free",
	Status:          enums.PlanStatusActive,
	StripePriceID:   "price_free",
	IsDefault:       true,
	Interval:        enums.BillingIntervalMonth,
	PriceAmount:     decimal.Zero,
	CurrencyCode:    "usd",
	Features:        pq.StringArray{"100 API calls / month", "1 GB storage", "1 team member"},
	APICallLimit:    100,
	StorageLimitGB:  1,
	TeamMemberLimit: 1,
}

// fallbackWithLimits returns the compiled-in free plan with its usage
// ceilings taken from config, so operators can tune the limits served when
// the catalog is empty or unreachable.
func fallbackWithLimits(cfg config.UsageConfig) models.Plan {
	plan := fallbackPlan
	if cfg.DefaultAPICallLimit > 0 {
		plan.APICallLimit = cfg.DefaultAPICallLimit
	}
	if cfg.DefaultStorageLimitGB > 0 {
		plan.StorageLimitGB = cfg.DefaultStorageLimitGB
	}
	if cfg.DefaultTeamMemberLimit > 0 {
		plan.TeamMemberLimit = cfg.DefaultTeamMemberLimit
	}
	return plan
}

func seedPlans() []models.Plan {
	free := fallbackPlan
	free.Description = strPtr("Get started with the basics")

	pro := models.Plan{
		ID:              "plan_pro",
		Name:            "Pro",
		Description:     strPtr("For growing teams"),
		Status:          enums.PlanStatusActive,
		StripePriceID:   "price_pro_monthly",
		Interval:        enums.BillingIntervalMonth,
		PriceAmount:     decimal.NewFromInt(29),
		CurrencyCode:    "usd",
		Features:        pq.StringArray{"10,000 API calls / month", "50 GB storage", "10 team members", "Priority support"},
		APICallLimit:    10000,
		StorageLimitGB:  50,
		TeamMemberLimit: 10,
	}

	enterprise := models.Plan{
		ID:              "plan_enterprise",
		Name:            "Enterprise",
		Description:     strPtr("Unlimited scale with dedicated support"),
		Status:          enums.PlanStatusActive,
		StripePriceID:   "price_enterprise_monthly",
		Interval:        enums.BillingIntervalMonth,
		PriceAmount:     decimal.NewFromInt(99),
		CurrencyCode:    "usd",
		Features:        pq.StringArray{"Unlimited API calls", "Unlimited storage", "Unlimited team members", "Dedicated support", "SLA"},
		APICallLimit:    0,
		StorageLimitGB:  0,
		TeamMemberLimit: 0,
	}

	return []models.Plan{free, pro, enterprise}
}

func strPtr(s string) *string {
	return &s
}
