package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookingledger/models"
	"bookingledger/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateRentalBookingDTO представляет данные для создания бронирования аренды
type CreateRentalBookingDTO struct {
	BookingID             string               `json:"booking_id" validate:"omitempty,max=64"`
	PropertyID            string               `json:"property_id" validate:"required,max=64"`
	CustomerID            string               `json:"customer_id" validate:"required,max=64"`
	AssignedSalespersonID string               `json:"assigned_salesperson_id" validate:"required,max=64"`
	StartDate             time.Time            `json:"start_date"`
	EndDate               time.Time            `json:"end_date"`
	MonthlyRent           decimal.Decimal      `json:"monthly_rent"`
	SecurityDeposit       decimal.Decimal      `json:"security_deposit"`
	RentDueDay            int                  `json:"rent_due_day" validate:"required,min=1,max=31"`
	Documents             []models.DocumentRef `json:"documents"`
	CreatedBy             string               `json:"-"`
}

// CreatePurchaseBookingDTO представляет данные для создания бронирования покупки
type CreatePurchaseBookingDTO struct {
	BookingID             string               `json:"booking_id" validate:"omitempty,max=64"`
	PropertyID            string               `json:"property_id" validate:"required,max=64"`
	CustomerID            string               `json:"customer_id" validate:"required,max=64"`
	AssignedSalespersonID string               `json:"assigned_salesperson_id" validate:"required,max=64"`
	TotalPropertyValue    decimal.Decimal      `json:"total_property_value"`
	DownPayment           decimal.Decimal      `json:"down_payment"`
	PaymentTerms          models.PaymentTerms  `json:"payment_terms" validate:"required,oneof=FULL_PAYMENT INSTALLMENTS"`
	InstallmentCount      int                  `json:"installment_count"`
	Documents             []models.DocumentRef `json:"documents"`
	CreatedBy             string               `json:"-"`
}

// BookingService управляет бронированиями и их графиками обязательств
type BookingService struct {
	db        *gorm.DB
	validator *validator.Validate
	opts      Options
	events    *publisher
}

// NewBookingService создает новый экземпляр BookingService
func NewBookingService(db *gorm.DB, opts Options) *BookingService {
	opts = opts.withDefaults()
	return &BookingService{
		db:        db,
		validator: validator.New(),
		opts:      opts,
		events:    opts.publisher(),
	}
}

// CreateRentalBooking создает бронирование аренды с полным графиком платежей
func (s *BookingService) CreateRentalBooking(ctx context.Context, dto CreateRentalBookingDTO) (*models.Booking, error) {
	const op = "CreateRentalBooking"
	if err := s.validator.Struct(dto); err != nil {
		return nil, formatValidationErrors(op, err)
	}

	terms := models.RentalTerms{
		StartDate:       dto.StartDate,
		EndDate:         dto.EndDate,
		MonthlyRent:     dto.MonthlyRent,
		SecurityDeposit: dto.SecurityDeposit,
		RentDueDay:      dto.RentDueDay,
	}
	schedule, err := GenerateRentalSchedule(terms, dto.AssignedSalespersonID)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		BookingID:             dto.BookingID,
		Type:                  models.BookingTypeRental,
		PropertyID:            dto.PropertyID,
		CustomerID:            dto.CustomerID,
		AssignedSalespersonID: dto.AssignedSalespersonID,
		Rental:                terms,
		Documents:             dto.Documents,
		Obligations:           schedule,
		CreatedBy:             dto.CreatedBy,
	}
	return s.create(ctx, op, booking)
}

// CreatePurchaseBooking создает бронирование покупки с графиком взносов
func (s *BookingService) CreatePurchaseBooking(ctx context.Context, dto CreatePurchaseBookingDTO) (*models.Booking, error) {
	const op = "CreatePurchaseBooking"
	if err := s.validator.Struct(dto); err != nil {
		return nil, formatValidationErrors(op, err)
	}

	terms := models.PurchaseTerms{
		TotalPropertyValue: dto.TotalPropertyValue,
		DownPayment:        dto.DownPayment,
		PaymentTerms:       dto.PaymentTerms,
		InstallmentCount:   dto.InstallmentCount,
	}
	if terms.PaymentTerms == models.PaymentTermsFull {
		terms.InstallmentCount = 1
	}
	schedule, err := GeneratePurchaseSchedule(terms, s.opts.Now(), s.opts.Rounding, dto.AssignedSalespersonID)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		BookingID:             dto.BookingID,
		Type:                  models.BookingTypePurchase,
		PropertyID:            dto.PropertyID,
		CustomerID:            dto.CustomerID,
		AssignedSalespersonID: dto.AssignedSalespersonID,
		Purchase:              terms,
		Documents:             dto.Documents,
		Obligations:           schedule,
		CreatedBy:             dto.CreatedBy,
	}
	return s.create(ctx, op, booking)
}

func (s *BookingService) create(ctx context.Context, op string, booking *models.Booking) (*models.Booking, error) {
	start := time.Now()

	if err := s.resolveReferences(ctx, op, booking); err != nil {
		return nil, err
	}

	now := s.opts.Now()
	if booking.BookingID == "" {
		booking.BookingID = newBookingID(booking.Type, now)
	}
	if booking.Documents == nil {
		booking.Documents = []models.DocumentRef{}
	}
	booking.Status = models.BookingStatusPending
	booking.IsActive = true
	booking.Published = true
	booking.UpdatedBy = booking.CreatedBy
	booking.CreatedAt = now
	booking.UpdatedAt = now
	for i := range booking.Obligations {
		booking.Obligations[i].CreatedAt = now
		booking.Obligations[i].UpdatedAt = now
	}

	// Бронирование и график сохраняются одной транзакцией
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(booking).Error
	})
	utils.LogOperation(op, start, err)
	if err != nil {
		return nil, classifyDBError(op, err, "бронирование "+booking.BookingID)
	}

	s.opts.Metrics.RecordBookingEvent("create")
	return booking, nil
}

// resolveReferences проверяет объект, клиента и менеджера во внешнем справочнике
func (s *BookingService) resolveReferences(ctx context.Context, op string, b *models.Booking) error {
	if s.opts.Directory == nil {
		return nil
	}

	checks := []struct {
		what   string
		id     string
		lookup func(context.Context, string) (bool, error)
	}{
		{"объект", b.PropertyID, s.opts.Directory.PropertyExists},
		{"клиент", b.CustomerID, s.opts.Directory.CustomerExists},
		{"менеджер", b.AssignedSalespersonID, s.opts.Directory.SalespersonExists},
	}
	for _, c := range checks {
		ok, err := c.lookup(ctx, c.id)
		if err != nil {
			return storageError(op, fmt.Errorf("справочник недоступен: %w", err))
		}
		if !ok {
			return validationError(op, "%s %s не найден в справочнике", c.what, c.id)
		}
	}
	return nil
}

// GetBooking возвращает опубликованное бронирование вместе с графиком
func (s *BookingService) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).
		Preload("Obligations", func(db *gorm.DB) *gorm.DB {
			return db.Order("booking_obligations.ordinal ASC")
		}).
		Where("booking_id = ? AND published = ?", bookingID, true).
		First(&booking).Error
	if err != nil {
		return nil, classifyDBError("GetBooking", err, "бронирование "+bookingID)
	}
	return &booking, nil
}

// Ledger возвращает индексированный график бронирования
func (s *BookingService) Ledger(ctx context.Context, bookingID string) (*models.Ledger, error) {
	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return booking.Ledger(), nil
}

// PendingFor возвращает строки бронирования в статусе PENDING
func (s *BookingService) PendingFor(ctx context.Context, bookingID string) ([]models.Obligation, error) {
	ledger, err := s.Ledger(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return ledger.AllPending(), nil
}

// OverdueFor возвращает неоплаченные строки бронирования со сроком раньше asOf
func (s *BookingService) OverdueFor(ctx context.Context, bookingID string, asOf time.Time) ([]models.Obligation, error) {
	ledger, err := s.Ledger(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return ledger.AllOverdue(asOf), nil
}

// Confirm подтверждает бронирование: PENDING -> ACTIVE (аренда) или CONFIRMED (покупка)
func (s *BookingService) Confirm(ctx context.Context, bookingID, actor string) (*models.Booking, error) {
	booking, err := s.mutate(ctx, "Confirm", bookingID, actor, func(b *models.Booking, now time.Time) error {
		return b.Confirm(now)
	})
	if err != nil {
		return nil, err
	}
	s.events.publish(ctx, EventBookingConfirmed, booking, "")
	return booking, nil
}

// Cancel отменяет бронирование; завершенное бронирование отменить нельзя
func (s *BookingService) Cancel(ctx context.Context, bookingID, reason, actor string) (*models.Booking, error) {
	booking, err := s.mutate(ctx, "Cancel", bookingID, actor, func(b *models.Booking, now time.Time) error {
		return b.Cancel(reason, now)
	})
	if err != nil {
		return nil, err
	}
	s.opts.Metrics.RecordBookingEvent("cancel")
	return booking, nil
}

// Expire помечает бронирование истекшим
func (s *BookingService) Expire(ctx context.Context, bookingID, actor string) (*models.Booking, error) {
	return s.mutate(ctx, "Expire", bookingID, actor, func(b *models.Booking, now time.Time) error {
		if b.Type == models.BookingTypeRental && !b.Rental.EndDate.Before(now) {
			return fmt.Errorf("%w: аренда действует до %s", models.ErrInvalidTransition, b.Rental.EndDate.Format("2006-01-02"))
		}
		return b.Expire(now)
	})
}

// SetActive меняет флаг is_active независимо от статуса
func (s *BookingService) SetActive(ctx context.Context, bookingID string, active bool, actor string) (*models.Booking, error) {
	return s.mutate(ctx, "SetActive", bookingID, actor, func(b *models.Booking, _ time.Time) error {
		b.IsActive = active
		return nil
	})
}

// SoftDelete снимает бронирование с публикации
func (s *BookingService) SoftDelete(ctx context.Context, bookingID, actor string) error {
	_, err := s.mutate(ctx, "SoftDelete", bookingID, actor, func(b *models.Booking, _ time.Time) error {
		b.Published = false
		return nil
	})
	return err
}

// AttachDocuments добавляет ссылки на документы
func (s *BookingService) AttachDocuments(ctx context.Context, bookingID string, docs []models.DocumentRef, actor string) (*models.Booking, error) {
	const op = "AttachDocuments"
	for i, d := range docs {
		if strings.TrimSpace(d.ID) == "" || strings.TrimSpace(d.URL) == "" {
			return nil, validationError(op, "документ %d: id и url обязательны", i)
		}
	}
	return s.mutate(ctx, op, bookingID, actor, func(b *models.Booking, _ time.Time) error {
		b.Documents = append(b.Documents, docs...)
		return nil
	})
}

// mutate выполняет изменение агрегата под блокировкой строки и с проверкой версии
func (s *BookingService) mutate(ctx context.Context, op, bookingID, actor string, change func(b *models.Booking, now time.Time) error) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockBooking(tx, bookingID, &booking); err != nil {
			return err
		}

		now := s.opts.Now()
		if err := change(&booking, now); err != nil {
			if errors.Is(err, models.ErrInvalidTransition) {
				return conflictError(op, err, "бронирование %s в статусе %s", bookingID, booking.Status)
			}
			return validationError(op, "%v", err)
		}

		booking.UpdatedBy = actor
		booking.UpdatedAt = now
		return saveBookingState(tx, &booking)
	})
	if err != nil {
		return nil, classifyDBError(op, err, "бронирование "+bookingID)
	}

	if err := s.db.WithContext(ctx).Where("booking_id = ?", booking.ID).Order("ordinal ASC").Find(&booking.Obligations).Error; err != nil {
		return nil, storageError(op, err)
	}
	return &booking, nil
}

// lockBooking читает опубликованное бронирование с блокировкой строки до конца транзакции
func lockBooking(tx *gorm.DB, bookingID string, booking *models.Booking) error {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("booking_id = ? AND published = ?", bookingID, true).
		First(booking).Error
}

// saveBookingState записывает состояние агрегата, если версия не изменилась с момента чтения
func saveBookingState(tx *gorm.DB, b *models.Booking) error {
	expected := b.Version
	res := tx.Model(&models.Booking{}).
		Where("id = ? AND version = ?", b.ID, expected).
		Updates(map[string]interface{}{
			"booking_status":      b.Status,
			"is_active":           b.IsActive,
			"confirmed_at":        b.ConfirmedAt,
			"completion_date":     b.CompletionDate,
			"cancelled_at":        b.CancelledAt,
			"cancellation_reason": b.CancellationReason,
			"expired_at":          b.ExpiredAt,
			"documents":           b.Documents,
			"published":           b.Published,
			"updated_by":          b.UpdatedBy,
			"updated_at":          b.UpdatedAt,
			"version":             expected + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return conflictError("saveBookingState", nil, "бронирование %s изменено параллельно", b.BookingID)
	}
	b.Version = expected + 1
	return nil
}

func newBookingID(t models.BookingType, now time.Time) string {
	prefix := "PB"
	if t == models.BookingTypeRental {
		prefix = "RB"
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), suffix)
}
