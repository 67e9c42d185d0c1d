package payments

import (
	"time"

	"github.com/atlasworks/payflow/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the payments service.
type Repository interface {
	CreatePayment(record *models.PaymentRecord) error
	GetPaymentByPaymentID(paymentID string) (*models.PaymentRecord, error)
	// TransitionPaymentStatus applies a terminal status only while the record
	// is still pending and reports whether this call won the transition.
	TransitionPaymentStatus(paymentID, toStatus string) (bool, error)
	UpdatePaymentMetadata(paymentID, metadataJSON string) error

	GetOrderByID(id uint) (*models.Order, error)
	AppendOrderPayment(ref *models.OrderPaymentRef) error
	ListOrderPayments(orderID uint) ([]models.OrderPaymentRef, error)

	CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payments repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreatePayment(record *models.PaymentRecord) error {
	return r.db.Create(record).Error
}

func (r *gormRepository) GetPaymentByPaymentID(paymentID string) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := r.db.Where("payment_id = ?", paymentID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) TransitionPaymentStatus(paymentID, toStatus string) (bool, error) {
	// Conditional single-statement update; two racing deliveries cannot both
	// see an affected row.
	tx := r.db.Model(&models.PaymentRecord{}).
		Where("payment_id = ? AND status = ?", paymentID, models.PaymentStatusPending).
		Update("status", toStatus)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) UpdatePaymentMetadata(paymentID, metadataJSON string) error {
	return r.db.Model(&models.PaymentRecord{}).
		Where("payment_id = ?", paymentID).
		Update("metadata_json", metadataJSON).Error
}

func (r *gormRepository) GetOrderByID(id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.First(&order, id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) AppendOrderPayment(ref *models.OrderPaymentRef) error {
	// Insert-only append; the unique pair index turns a replayed link into a
	// no-op instead of a duplicate history entry.
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "order_id"},
			{Name: "payment_record_id"},
		},
		DoNothing: true,
	}).Create(ref).Error
}

func (r *gormRepository) ListOrderPayments(orderID uint) ([]models.OrderPaymentRef, error) {
	var refs []models.OrderPaymentRef
	err := r.db.Where("order_id = ?", orderID).Order("id ASC").Find(&refs).Error
	return refs, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
