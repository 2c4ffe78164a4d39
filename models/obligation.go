package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ObligationStatus представляет статус обязательства
type ObligationStatus string

const (
	ObligationStatusPending ObligationStatus = "PENDING"
	ObligationStatusPaid    ObligationStatus = "PAID"
	ObligationStatusOverdue ObligationStatus = "OVERDUE" // срок прошел
	ObligationStatusLate    ObligationStatus = "LATE"    // просрочка дольше допустимой
)

// IsUnpaid сообщает, что обязательство еще ожидает оплаты
func (s ObligationStatus) IsUnpaid() bool {
	return s != ObligationStatusPaid
}

var (
	ErrObligationPaid       = errors.New("obligation is already paid")
	ErrObligationNotOverdue = errors.New("obligation is not overdue")
	ErrMissingPayment       = errors.New("payment reference is required")
)

// Obligation - одна строка графика: месяц аренды или взнос за покупку
type Obligation struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	BookingID uint   `gorm:"column:booking_id;not null;uniqueIndex:idx_obligation_key" json:"-"`
	// SequenceKey уникален в пределах бронирования: "2024-02" или "3"
	SequenceKey       string `gorm:"column:sequence_key;not null;size:16;uniqueIndex:idx_obligation_key" json:"sequence_key"`
	Ordinal           int    `gorm:"column:ordinal;not null" json:"ordinal"`
	Year              int    `gorm:"column:year" json:"year,omitempty"`
	MonthNumber       int    `gorm:"column:month_number" json:"month_number,omitempty"`
	InstallmentNumber int    `gorm:"column:installment_number" json:"installment_number,omitempty"`

	DueDate             time.Time        `gorm:"column:due_date;not null;index" json:"due_date"`
	Amount              decimal.Decimal  `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	Status              ObligationStatus `gorm:"column:status;type:varchar(20);not null;default:'PENDING';index" json:"status"`
	PaidDate            *time.Time       `gorm:"column:paid_date" json:"paid_date,omitempty"`
	LateFees            decimal.Decimal  `gorm:"column:late_fees;type:decimal(20,2);not null;default:0" json:"late_fees"`
	PaymentID           *uint            `gorm:"column:payment_id" json:"payment_id,omitempty"`
	ResponsiblePersonID string           `gorm:"column:responsible_person_id;size:64" json:"responsible_person_id"`

	UpdatedBy string    `gorm:"column:updated_by;size:64" json:"updated_by,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName возвращает имя таблицы для модели Obligation
func (Obligation) TableName() string {
	return "booking_obligations"
}

// MarkPaid связывает обязательство с платежом.
// Статус PAID ставится только вместе с paymentId и paidDate.
func (o *Obligation) MarkPaid(paymentID uint, paidAt time.Time) error {
	if o.Status == ObligationStatusPaid {
		return ErrObligationPaid
	}
	if paymentID == 0 {
		return ErrMissingPayment
	}
	o.Status = ObligationStatusPaid
	o.PaymentID = &paymentID
	o.PaidDate = &paidAt
	return nil
}

// MarkOverdue переводит PENDING обязательство в OVERDUE и начисляет пеню
func (o *Obligation) MarkOverdue(lateFee decimal.Decimal) error {
	if o.Status == ObligationStatusPaid {
		return ErrObligationPaid
	}
	o.Status = ObligationStatusOverdue
	o.LateFees = lateFee
	return nil
}

// MarkLate переводит OVERDUE обязательство в LATE
func (o *Obligation) MarkLate() error {
	if o.Status != ObligationStatusOverdue {
		return ErrObligationNotOverdue
	}
	o.Status = ObligationStatusLate
	return nil
}

// IsOverdueAt сообщает, что обязательство не оплачено и срок прошел
func (o *Obligation) IsOverdueAt(asOf time.Time) bool {
	return o.Status.IsUnpaid() && o.DueDate.Before(asOf)
}

// AmountDue возвращает сумму к оплате с учетом пени
func (o *Obligation) AmountDue() decimal.Decimal {
	return o.Amount.Add(o.LateFees)
}
