package models

import "time"

const (
	OrderStatusOpen      = "open"
	OrderStatusFulfilled = "fulfilled"
	OrderStatusClosed    = "closed"
)

// Order is the owning entity a payment attempt references. The engine never
// creates orders; it only links payment records to existing ones.
type Order struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UUID          string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	Description   string    `gorm:"type:varchar(500)" json:"description"`
	CustomerEmail string    `gorm:"type:varchar(200);default:''" json:"customer_email"`
	CustomerPhone string    `gorm:"type:varchar(32);default:''" json:"customer_phone"`
	Status        string    `gorm:"type:varchar(16);not null;default:'open';index" json:"status"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderPaymentRef is one entry in an order's append-only payment history.
// Rows are insert-only and the unique pair index makes a re-link a no-op, so
// concurrent initiations for the same order cannot lose updates. The
// auto-increment primary key preserves append order.
type OrderPaymentRef struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	OrderID         uint      `gorm:"not null;index:ux_order_payment_refs_order_payment,unique,priority:1;index" json:"order_id"`
	PaymentRecordID uint      `gorm:"not null;index:ux_order_payment_refs_order_payment,unique,priority:2" json:"payment_record_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}
