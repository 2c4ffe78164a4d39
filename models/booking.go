package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BookingType представляет вид бронирования
type BookingType string

const (
	BookingTypeRental   BookingType = "RENTAL"
	BookingTypePurchase BookingType = "PURCHASE"
)

// BookingStatus представляет статус бронирования
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED" // покупка подтверждена
	BookingStatusActive    BookingStatus = "ACTIVE"    // аренда действует
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusExpired   BookingStatus = "EXPIRED"
)

// IsTerminal сообщает, что из статуса больше нет переходов
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled || s == BookingStatusExpired
}

// PaymentTerms представляет условия оплаты покупки
type PaymentTerms string

const (
	PaymentTermsFull         PaymentTerms = "FULL_PAYMENT"
	PaymentTermsInstallments PaymentTerms = "INSTALLMENTS"
)

// RentalTerms содержит условия аренды
type RentalTerms struct {
	StartDate       time.Time       `gorm:"column:start_date" json:"start_date"`
	EndDate         time.Time       `gorm:"column:end_date" json:"end_date"`
	MonthlyRent     decimal.Decimal `gorm:"column:monthly_rent;type:decimal(20,2);not null;default:0" json:"monthly_rent"`
	SecurityDeposit decimal.Decimal `gorm:"column:security_deposit;type:decimal(20,2);not null;default:0" json:"security_deposit"`
	RentDueDay      int             `gorm:"column:rent_due_day" json:"rent_due_day"`
}

// PurchaseTerms содержит условия покупки
type PurchaseTerms struct {
	TotalPropertyValue decimal.Decimal `gorm:"column:total_property_value;type:decimal(20,2);not null;default:0" json:"total_property_value"`
	DownPayment        decimal.Decimal `gorm:"column:down_payment;type:decimal(20,2);not null;default:0" json:"down_payment"`
	PaymentTerms       PaymentTerms    `gorm:"column:payment_terms;type:varchar(20)" json:"payment_terms"`
	InstallmentCount   int             `gorm:"column:installment_count" json:"installment_count"`
}

// RemainingBalance возвращает сумму, подлежащую оплате после первого взноса
func (t PurchaseTerms) RemainingBalance() decimal.Decimal {
	return t.TotalPropertyValue.Sub(t.DownPayment)
}

// DocumentRef - ссылка на документ; содержимое ядро не интерпретирует
type DocumentRef struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Booking представляет бронирование (аренда или покупка)
type Booking struct {
	ID                    uint          `gorm:"primaryKey;autoIncrement" json:"-"`
	BookingID             string        `gorm:"column:booking_id;uniqueIndex;not null;size:64" json:"booking_id"`
	Type                  BookingType   `gorm:"column:booking_type;type:varchar(20);not null;index" json:"booking_type"`
	PropertyID            string        `gorm:"column:property_id;not null;size:64;index" json:"property_id"`
	CustomerID            string        `gorm:"column:customer_id;not null;size:64;index" json:"customer_id"`
	AssignedSalespersonID string        `gorm:"column:assigned_salesperson_id;size:64" json:"assigned_salesperson_id"`
	Rental                RentalTerms   `gorm:"embedded" json:"rental,omitempty"`
	Purchase              PurchaseTerms `gorm:"embedded" json:"purchase,omitempty"`
	Status                BookingStatus `gorm:"column:booking_status;type:varchar(20);not null;default:'PENDING';index" json:"booking_status"`
	IsActive              bool          `gorm:"column:is_active;not null" json:"is_active"`

	ConfirmedAt        *time.Time `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	CompletionDate     *time.Time `gorm:"column:completion_date" json:"completion_date,omitempty"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason string     `gorm:"column:cancellation_reason;size:255" json:"cancellation_reason,omitempty"`
	ExpiredAt          *time.Time `gorm:"column:expired_at" json:"expired_at,omitempty"`

	Documents   datatypes.JSONSlice[DocumentRef] `gorm:"column:documents" json:"documents"`
	Obligations []Obligation                     `gorm:"foreignKey:BookingID;references:ID" json:"obligation_schedule"`

	// Version увеличивается при каждом изменении агрегата
	Version   int       `gorm:"column:version;not null;default:0" json:"version"`
	CreatedBy string    `gorm:"column:created_by;size:64" json:"created_by"`
	UpdatedBy string    `gorm:"column:updated_by;size:64" json:"updated_by"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
	Published bool      `gorm:"column:published;not null;index" json:"published"`
}

// TableName возвращает имя таблицы для модели Booking
func (Booking) TableName() string {
	return "bookings"
}

// Ledger строит индекс по графику обязательств бронирования
func (b *Booking) Ledger() *Ledger {
	return NewLedger(b.Obligations)
}

// SettlementPaymentType возвращает тип платежа, которым гасится обязательство
func (b *Booking) SettlementPaymentType() PaymentType {
	if b.Type == BookingTypeRental {
		return PaymentTypeRent
	}
	if b.Purchase.PaymentTerms == PaymentTermsFull {
		return PaymentTypeFullPayment
	}
	return PaymentTypeInstallment
}
