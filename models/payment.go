package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType представляет назначение платежа
type PaymentType string

const (
	PaymentTypeRent            PaymentType = "RENT"
	PaymentTypeInstallment     PaymentType = "INSTALLMENT"
	PaymentTypeDownPayment     PaymentType = "DOWN_PAYMENT"
	PaymentTypeAdvance         PaymentType = "ADVANCE"
	PaymentTypeSecurityDeposit PaymentType = "SECURITY_DEPOSIT"
	PaymentTypeMaintenance     PaymentType = "MAINTENANCE"
	PaymentTypeFullPayment     PaymentType = "FULL_PAYMENT"
	PaymentTypeOther           PaymentType = "OTHER"
)

// PaymentMethod представляет способ оплаты
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodCheque       PaymentMethod = "CHEQUE"
	PaymentMethodOnline       PaymentMethod = "ONLINE"
	PaymentMethodOther        PaymentMethod = "OTHER"
)

// PaymentStatus представляет статус платежа
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

var ErrPaymentNotRefundable = errors.New("only completed payments can be refunded")

// Payment представляет фактически полученный платеж по бронированию
type Payment struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"-"`
	// Reference - внешний идентификатор платежа, по нему сверяется банковская выписка
	Reference   string      `gorm:"column:reference;uniqueIndex;not null;size:64" json:"payment_id"`
	BookingType BookingType `gorm:"column:booking_type;type:varchar(20);not null;index" json:"booking_type"`
	// Заполнено ровно одно из двух полей
	RentalBookingID   *uint  `gorm:"column:rental_booking_id;index" json:"rental_booking_id,omitempty"`
	PurchaseBookingID *uint  `gorm:"column:purchase_booking_id;index" json:"purchase_booking_id,omitempty"`
	BookingRef        string `gorm:"column:booking_ref;size:64;index" json:"booking_id"`
	ObligationID      *uint  `gorm:"column:obligation_id" json:"-"`
	SequenceKey       string `gorm:"column:sequence_key;size:16" json:"sequence_key,omitempty"`

	PaymentType   PaymentType     `gorm:"column:payment_type;type:varchar(30);not null;index" json:"payment_type"`
	PaymentMethod PaymentMethod   `gorm:"column:payment_method;type:varchar(30);not null" json:"payment_method"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	TaxAmount     decimal.Decimal `gorm:"column:tax_amount;type:decimal(20,2);not null;default:0" json:"tax_amount"`
	TotalAmount   decimal.Decimal `gorm:"column:total_amount;type:decimal(20,2);not null" json:"total_amount"`
	Currency      string          `gorm:"column:currency;size:3;not null" json:"currency"`
	PaymentStatus PaymentStatus   `gorm:"column:payment_status;type:varchar(20);not null;default:'PENDING';index" json:"payment_status"`
	DueDate       *time.Time      `gorm:"column:due_date" json:"due_date,omitempty"`
	PaidDate      *time.Time      `gorm:"column:paid_date;index" json:"paid_date,omitempty"`
	Notes         string          `gorm:"column:notes;size:500" json:"notes,omitempty"`

	ResponsiblePersonID string     `gorm:"column:responsible_person_id;size:64" json:"responsible_person_id"`
	RecordedByUserID    string     `gorm:"column:recorded_by_user_id;size:64" json:"recorded_by_user_id"`
	ApprovedByUserID    *string    `gorm:"column:approved_by_user_id;size:64" json:"approved_by_user_id,omitempty"`
	ApprovedAt          *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`

	IsReconciled       bool       `gorm:"column:is_reconciled;not null;index" json:"is_reconciled"`
	ReconciliationDate *time.Time `gorm:"column:reconciliation_date" json:"reconciliation_date,omitempty"`
	BankReference      string     `gorm:"column:bank_reference;size:128" json:"bank_reference,omitempty"`
	RefundedAt         *time.Time `gorm:"column:refunded_at" json:"refunded_at,omitempty"`

	CreatedBy string    `gorm:"column:created_by;size:64" json:"created_by"`
	UpdatedBy string    `gorm:"column:updated_by;size:64" json:"updated_by"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
	Published bool      `gorm:"column:published;not null" json:"published"`
}

// TableName возвращает имя таблицы для модели Payment
func (Payment) TableName() string {
	return "payments"
}

// NewPaymentFor создает платеж, привязанный ровно к одному бронированию
func NewPaymentFor(b *Booking) *Payment {
	p := &Payment{
		BookingType: b.Type,
		BookingRef:  b.BookingID,
		Published:   true,
	}
	id := b.ID
	if b.Type == BookingTypeRental {
		p.RentalBookingID = &id
	} else {
		p.PurchaseBookingID = &id
	}
	return p
}

// BookingKey возвращает внутренний идентификатор бронирования платежа
func (p *Payment) BookingKey() uint {
	if p.RentalBookingID != nil {
		return *p.RentalBookingID
	}
	if p.PurchaseBookingID != nil {
		return *p.PurchaseBookingID
	}
	return 0
}

// Approve фиксирует утверждение платежа; повторный вызов перезаписывает утверждающего
func (p *Payment) Approve(userID string, at time.Time) {
	p.ApprovedByUserID = &userID
	p.ApprovedAt = &at
}

// MarkReconciled отмечает платеж сверенным с банковской выпиской
func (p *Payment) MarkReconciled(bankReference string, at time.Time) {
	p.IsReconciled = true
	p.ReconciliationDate = &at
	if bankReference != "" {
		p.BankReference = bankReference
	}
}

// Refund переводит завершенный платеж в REFUNDED
func (p *Payment) Refund(at time.Time) error {
	if p.PaymentStatus != PaymentStatusCompleted {
		return ErrPaymentNotRefundable
	}
	p.PaymentStatus = PaymentStatusRefunded
	p.RefundedAt = &at
	return nil
}
