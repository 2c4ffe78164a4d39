package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"bookingledger/models"
	"bookingledger/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RecordPaymentDTO представляет данные для погашения строки графика
type RecordPaymentDTO struct {
	BookingID   string               `json:"-" validate:"required"`
	SequenceKey string               `json:"-" validate:"required"`
	Amount      decimal.Decimal      `json:"amount"`
	TaxAmount   decimal.Decimal      `json:"tax_amount"`
	Method      models.PaymentMethod `json:"payment_method" validate:"required,oneof=CASH BANK_TRANSFER CARD CHEQUE ONLINE OTHER"`
	Currency    string               `json:"currency" validate:"omitempty,len=3"`
	PaidDate    *time.Time           `json:"paid_date"`
	Notes       string               `json:"notes" validate:"max=500"`
	RecordedBy  string               `json:"-"`
}

// RecordUnscheduledPaymentDTO представляет платеж вне графика: первый взнос, залог, обслуживание
type RecordUnscheduledPaymentDTO struct {
	BookingID   string               `json:"-" validate:"required"`
	PaymentType models.PaymentType   `json:"payment_type" validate:"required,oneof=DOWN_PAYMENT ADVANCE SECURITY_DEPOSIT MAINTENANCE OTHER"`
	Amount      decimal.Decimal      `json:"amount"`
	TaxAmount   decimal.Decimal      `json:"tax_amount"`
	Method      models.PaymentMethod `json:"payment_method" validate:"required,oneof=CASH BANK_TRANSFER CARD CHEQUE ONLINE OTHER"`
	Currency    string               `json:"currency" validate:"omitempty,len=3"`
	PaidDate    *time.Time           `json:"paid_date"`
	Notes       string               `json:"notes" validate:"max=500"`
	RecordedBy  string               `json:"-"`
}

// PaymentResult - результат погашения строки графика
type PaymentResult struct {
	Payment          *models.Payment      `json:"payment"`
	Obligation       *models.Obligation   `json:"obligation"`
	BookingStatus    models.BookingStatus `json:"booking_status"`
	BookingCompleted bool                 `json:"booking_completed"`
}

// PaymentService фиксирует платежи по бронированиям
type PaymentService struct {
	db        *gorm.DB
	validator *validator.Validate
	opts      Options
	events    *publisher
}

// NewPaymentService создает новый экземпляр PaymentService
func NewPaymentService(db *gorm.DB, opts Options) *PaymentService {
	opts = opts.withDefaults()
	return &PaymentService{
		db:        db,
		validator: validator.New(),
		opts:      opts,
		events:    opts.publisher(),
	}
}

// RecordPayment гасит одну строку графика.
// Все изменения выполняются одной транзакцией под блокировкой бронирования:
// платеж создается только вместе с переводом строки в PAID.
func (s *PaymentService) RecordPayment(ctx context.Context, dto RecordPaymentDTO) (*PaymentResult, error) {
	const op = "RecordPayment"
	start := time.Now()

	if err := s.validator.Struct(dto); err != nil {
		return nil, formatValidationErrors(op, err)
	}
	if err := validateAmounts(op, dto.Amount, dto.TaxAmount); err != nil {
		return nil, err
	}

	var (
		booking   models.Booking
		result    *PaymentResult
		completed bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockBooking(tx, dto.BookingID, &booking); err != nil {
			return classifyDBError(op, err, "бронирование "+dto.BookingID)
		}
		if booking.Status == models.BookingStatusCancelled {
			return conflictError(op, nil, "бронирование %s отменено", booking.BookingID)
		}

		key, err := models.ParseSequenceKey(booking.Type, dto.SequenceKey)
		if err != nil {
			return validationError(op, "%v", err)
		}

		if err := tx.Where("booking_id = ?", booking.ID).Order("ordinal ASC").Find(&booking.Obligations).Error; err != nil {
			return err
		}
		ledger := booking.Ledger()

		obligation, ok := ledger.FindBySequenceKey(key)
		if !ok {
			return notFoundError(op, "строка %s в графике %s не найдена", key, booking.BookingID)
		}
		if obligation.Status == models.ObligationStatusPaid {
			return conflictError(op, models.ErrObligationPaid, "строка %s уже оплачена", key)
		}

		now := s.opts.Now()
		paidAt := now
		if dto.PaidDate != nil {
			paidAt = *dto.PaidDate
		}

		dueDate := obligation.DueDate
		obligationID := obligation.ID
		payment := models.NewPaymentFor(&booking)
		payment.Reference = uuid.NewString()
		payment.ObligationID = &obligationID
		payment.SequenceKey = key
		payment.PaymentType = booking.SettlementPaymentType()
		payment.PaymentMethod = dto.Method
		payment.Amount = dto.Amount
		payment.TaxAmount = dto.TaxAmount
		payment.TotalAmount = dto.Amount
		payment.Currency = s.currency(dto.Currency)
		payment.PaymentStatus = models.PaymentStatusCompleted
		payment.DueDate = &dueDate
		payment.PaidDate = &paidAt
		payment.Notes = dto.Notes
		payment.ResponsiblePersonID = obligation.ResponsiblePersonID
		payment.RecordedByUserID = dto.RecordedBy
		payment.CreatedBy = dto.RecordedBy
		payment.UpdatedBy = dto.RecordedBy
		payment.CreatedAt = now
		payment.UpdatedAt = now

		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		settled, allPaid, err := ledger.Settle(key, payment.ID, paidAt)
		if err != nil {
			return conflictError(op, err, "строка %s", key)
		}

		// Условное обновление: проигравший гонку получает 0 строк и конфликт
		res := tx.Model(&models.Obligation{}).
			Where("id = ? AND status <> ? AND payment_id IS NULL", settled.ID, models.ObligationStatusPaid).
			Updates(map[string]interface{}{
				"status":     settled.Status,
				"paid_date":  settled.PaidDate,
				"payment_id": settled.PaymentID,
				"updated_by": dto.RecordedBy,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflictError(op, models.ErrObligationPaid, "строка %s оплачена параллельно", key)
		}

		if allPaid {
			if err := booking.Complete(now); err != nil {
				return conflictError(op, err, "бронирование %s", booking.BookingID)
			}
			completed = true
		}
		booking.UpdatedBy = dto.RecordedBy
		booking.UpdatedAt = now
		if err := saveBookingState(tx, &booking); err != nil {
			return err
		}

		settled.UpdatedBy = dto.RecordedBy
		settled.UpdatedAt = now
		result = &PaymentResult{
			Payment:          payment,
			Obligation:       settled,
			BookingStatus:    booking.Status,
			BookingCompleted: completed,
		}
		return nil
	})
	utils.LogOperation(op, start, err)

	if err != nil {
		err = classifyDBError(op, err, "платеж")
		s.opts.Metrics.RecordPayment(errors.Is(err, ErrConflict))
		if errors.Is(err, ErrStorage) {
			s.opts.Metrics.RecordCriticalError(string(KindStorage))
			utils.LogErrorw("payment recording rolled back",
				"booking_id", dto.BookingID,
				"sequence_key", dto.SequenceKey,
				"amount", dto.Amount.String(),
				"error", err,
			)
		} else {
			s.opts.Metrics.RecordError(string(KindOf(err)))
		}
		return nil, err
	}

	s.opts.Metrics.RecordPayment(false)
	s.events.publish(ctx, EventObligationSettled, &booking, result.Obligation.SequenceKey)
	if completed {
		s.opts.Metrics.RecordBookingEvent("complete")
		s.events.publish(ctx, EventBookingCompleted, &booking, "")
	}
	return result, nil
}

// RecordUnscheduledPayment фиксирует платеж, не связанный со строкой графика
func (s *PaymentService) RecordUnscheduledPayment(ctx context.Context, dto RecordUnscheduledPaymentDTO) (*models.Payment, error) {
	const op = "RecordUnscheduledPayment"
	if err := s.validator.Struct(dto); err != nil {
		return nil, formatValidationErrors(op, err)
	}
	if err := validateAmounts(op, dto.Amount, dto.TaxAmount); err != nil {
		return nil, err
	}

	var payment *models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		if err := tx.Where("booking_id = ? AND published = ?", dto.BookingID, true).First(&booking).Error; err != nil {
			return classifyDBError(op, err, "бронирование "+dto.BookingID)
		}
		if booking.Status == models.BookingStatusCancelled {
			return conflictError(op, nil, "бронирование %s отменено", booking.BookingID)
		}

		now := s.opts.Now()
		paidAt := now
		if dto.PaidDate != nil {
			paidAt = *dto.PaidDate
		}

		payment = models.NewPaymentFor(&booking)
		payment.Reference = uuid.NewString()
		payment.PaymentType = dto.PaymentType
		payment.PaymentMethod = dto.Method
		payment.Amount = dto.Amount
		payment.TaxAmount = dto.TaxAmount
		payment.TotalAmount = dto.Amount
		payment.Currency = s.currency(dto.Currency)
		payment.PaymentStatus = models.PaymentStatusCompleted
		payment.PaidDate = &paidAt
		payment.Notes = dto.Notes
		payment.ResponsiblePersonID = booking.AssignedSalespersonID
		payment.RecordedByUserID = dto.RecordedBy
		payment.CreatedBy = dto.RecordedBy
		payment.UpdatedBy = dto.RecordedBy
		payment.CreatedAt = now
		payment.UpdatedAt = now
		return tx.Create(payment).Error
	})
	if err != nil {
		return nil, classifyDBError(op, err, "платеж")
	}
	s.opts.Metrics.RecordPayment(false)
	return payment, nil
}

// GetPayment возвращает платеж по внешнему идентификатору
func (s *PaymentService) GetPayment(ctx context.Context, reference string) (*models.Payment, error) {
	return findPayment(s.db.WithContext(ctx), "GetPayment", reference)
}

// ListBookingPayments возвращает платежи бронирования в порядке оплаты
func (s *PaymentService) ListBookingPayments(ctx context.Context, bookingID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("booking_ref = ? AND published = ?", bookingID, true).
		Order("paid_date ASC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, storageError("ListBookingPayments", err)
	}
	return payments, nil
}

func (s *PaymentService) currency(requested string) string {
	if requested == "" {
		return s.opts.Currency
	}
	return strings.ToUpper(requested)
}

func findPayment(db *gorm.DB, op, reference string) (*models.Payment, error) {
	var payment models.Payment
	if err := db.Where("reference = ? AND published = ?", reference, true).First(&payment).Error; err != nil {
		return nil, classifyDBError(op, err, "платеж "+reference)
	}
	return &payment, nil
}

func validateAmounts(op string, amount, tax decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationError(op, "сумма платежа должна быть больше 0")
	}
	if tax.IsNegative() {
		return validationError(op, "сумма налога не может быть отрицательной")
	}
	return nil
}
