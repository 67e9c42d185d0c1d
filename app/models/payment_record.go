package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Payment status lifecycle. A record starts pending and moves to exactly one
// terminal status, after which it never changes again.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
)

const (
	PaymentProviderPaymob = "paymob"
	PaymentMethodOnline   = "online"
)

// PaymentRecord is the local ledger entry for one attempted payment. It is
// created only after the gateway issued a usable payment token and is never
// deleted; terminal records are kept as an audit trail.
type PaymentRecord struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UUID          string          `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	OrderID       uint            `gorm:"not null;index" json:"order_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status        string          `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	PaymentMethod string          `gorm:"type:varchar(32);not null" json:"payment_method"`
	Provider      string          `gorm:"type:varchar(32);not null;index" json:"provider"`
	PaymentID     string          `gorm:"type:varchar(191);not null;uniqueIndex" json:"payment_id"`
	MetadataJSON  string          `gorm:"type:longtext" json:"metadata_json"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminalPaymentStatus reports whether a status may never change again.
func IsTerminalPaymentStatus(status string) bool {
	switch status {
	case PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the record has reached a terminal status.
func (p *PaymentRecord) IsTerminal() bool {
	return IsTerminalPaymentStatus(p.Status)
}

// Metadata decodes the stored metadata document. A missing or broken
// document yields an empty map rather than an error; metadata is advisory.
func (p *PaymentRecord) Metadata() map[string]any {
	m := map[string]any{}
	if p.MetadataJSON == "" {
		return m
	}
	if err := json.Unmarshal([]byte(p.MetadataJSON), &m); err != nil {
		return map[string]any{}
	}
	return m
}

// SetMetadata replaces the metadata document. Only used at record creation.
func (p *PaymentRecord) SetMetadata(m map[string]any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	p.MetadataJSON = string(raw)
	return nil
}

// MergeMetadata extends the metadata document with keys from extra. Existing
// keys are write-once and keep their original value on conflict.
func (p *PaymentRecord) MergeMetadata(extra map[string]any) error {
	m := p.Metadata()
	for k, v := range extra {
		if _, exists := m[k]; exists {
			continue
		}
		m[k] = v
	}
	return p.SetMetadata(m)
}
