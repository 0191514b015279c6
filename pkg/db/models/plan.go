package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/meterlane/billingdash-backend/pkg/enums"
)

// Plan captures the local metadata for a purchasable subscription tier.
// Published plans are read-mostly; the catalog treats them as immutable.
type Plan struct {
	ID              string                `gorm:"column:id;primaryKey"`
	Name            string                `gorm:"column:name;not null"`
	Description     *string               `gorm:"column:description"`
	Status          enums.PlanStatus      `gorm:"column:status;type:plan_status;not null"`
	StripePriceID   string                `gorm:"column:stripe_price_id;not null;uniqueIndex"`
	IsDefault       bool                  `gorm:"column:is_default;not null;default:false"`
	Interval        enums.BillingInterval `gorm:"column:interval;type:billing_interval;not null"`
	PriceAmount     decimal.Decimal       `gorm:"column:price_amount;type:numeric(12,2);not null"`
	CurrencyCode    string                `gorm:"column:currency_code;not null"`
	Features        pq.StringArray        `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`
	APICallLimit    int64                 `gorm:"column:api_call_limit;not null;default:0"`
	StorageLimitGB  int64                 `gorm:"column:storage_limit_gb;not null;default:0"`
	TeamMemberLimit int64                 `gorm:"column:team_member_limit;not null;default:0"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// PriceCents reports the plan price in minor currency units.
func (p Plan) PriceCents() int64 {
	return p.PriceAmount.Shift(2).IntPart()
}
