package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/meterlane/billingdash-backend/pkg/enums"
)

// Invoice mirrors a payment processor invoice. Rows are upserted only by
// webhook events, keyed by the processor's invoice id.
type Invoice struct {
	ID               uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	SubscriptionID   *uuid.UUID          `gorm:"column:subscription_id;type:uuid;index"`
	StripeInvoiceID  string              `gorm:"column:stripe_invoice_id;not null;unique"`
	AmountCents      int64               `gorm:"column:amount_cents;not null;default:0"`
	CurrencyCode     string              `gorm:"column:currency_code;not null"`
	Status           enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null;default:'draft'"`
	HostedInvoiceURL *string             `gorm:"column:hosted_invoice_url"`
	InvoicePDF       *string             `gorm:"column:invoice_pdf"`
	DueDate          *time.Time          `gorm:"column:due_date"`
	PaidAt           *time.Time          `gorm:"column:paid_at"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
