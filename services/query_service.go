package services

import (
	"context"
	"time"

	"bookingledger/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ObligationView - строка графика вместе с данными бронирования
type ObligationView struct {
	BookingID   string                  `json:"booking_id"`
	BookingType models.BookingType      `json:"booking_type"`
	PropertyID  string                  `json:"property_id"`
	CustomerID  string                  `json:"customer_id"`
	SequenceKey string                  `json:"sequence_key"`
	DueDate     time.Time               `json:"due_date"`
	Amount      decimal.Decimal         `json:"amount"`
	LateFees    decimal.Decimal         `json:"late_fees"`
	Status      models.ObligationStatus `json:"status"`
}

// ObligationFilter ограничивает выборку строк графика
type ObligationFilter struct {
	BookingID   string
	BookingType models.BookingType
	CustomerID  string
	Limit       int
}

// PaymentFilter ограничивает выборку платежей для сводки
type PaymentFilter struct {
	BookingID     string
	BookingType   models.BookingType
	PaymentType   models.PaymentType
	PaymentStatus models.PaymentStatus
	Reconciled    *bool
	From          *time.Time
	To            *time.Time
}

// SummaryBucket - количество и сумма в группе
type SummaryBucket struct {
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// PaymentSummary - сводка по платежам
type PaymentSummary struct {
	Count         int64                                 `json:"count"`
	TotalAmount   decimal.Decimal                       `json:"total_amount"`
	ByPaymentType map[models.PaymentType]*SummaryBucket `json:"by_payment_type"`
	ByBookingType map[models.BookingType]*SummaryBucket `json:"by_booking_type"`
}

var unpaidStatuses = []models.ObligationStatus{
	models.ObligationStatusPending,
	models.ObligationStatusOverdue,
	models.ObligationStatusLate,
}

// QueryService строит отчеты только для чтения
type QueryService struct {
	db   *gorm.DB
	opts Options
}

// NewQueryService создает новый экземпляр QueryService
func NewQueryService(db *gorm.DB, opts Options) *QueryService {
	return &QueryService{db: db, opts: opts.withDefaults()}
}

// PendingObligations возвращает строки в статусе PENDING по всем неотмененным бронированиям
// или по одному бронированию
func (s *QueryService) PendingObligations(ctx context.Context, f ObligationFilter) ([]ObligationView, error) {
	if f.BookingID != "" {
		return s.scoped(ctx, "PendingObligations", f.BookingID, func(l *models.Ledger) []models.Obligation {
			return l.AllPending()
		})
	}
	q := s.obligationQuery(ctx, f).Where("o.status = ?", models.ObligationStatusPending)
	return s.scanObligations("PendingObligations", q)
}

// OverdueObligations возвращает неоплаченные строки со сроком раньше asOf
func (s *QueryService) OverdueObligations(ctx context.Context, asOf time.Time, f ObligationFilter) ([]ObligationView, error) {
	if f.BookingID != "" {
		return s.scoped(ctx, "OverdueObligations", f.BookingID, func(l *models.Ledger) []models.Obligation {
			return l.AllOverdue(asOf)
		})
	}
	q := s.obligationQuery(ctx, f).
		Where("o.status IN ?", unpaidStatuses).
		Where("o.due_date < ?", asOf)
	return s.scanObligations("OverdueObligations", q)
}

func (s *QueryService) obligationQuery(ctx context.Context, f ObligationFilter) *gorm.DB {
	q := s.db.WithContext(ctx).
		Table("booking_obligations AS o").
		Select("b.booking_id, b.booking_type, b.property_id, b.customer_id, o.sequence_key, o.due_date, o.amount, o.late_fees, o.status").
		Joins("JOIN bookings b ON b.id = o.booking_id").
		Where("b.published = ? AND b.booking_status <> ?", true, models.BookingStatusCancelled)
	if f.BookingType != "" {
		q = q.Where("b.booking_type = ?", f.BookingType)
	}
	if f.CustomerID != "" {
		q = q.Where("b.customer_id = ?", f.CustomerID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q.Order("o.due_date ASC, b.booking_id ASC, o.ordinal ASC")
}

func (s *QueryService) scanObligations(op string, q *gorm.DB) ([]ObligationView, error) {
	views := []ObligationView{}
	if err := q.Scan(&views).Error; err != nil {
		return nil, storageError(op, err)
	}
	return views, nil
}

func (s *QueryService) scoped(ctx context.Context, op, bookingID string, pick func(l *models.Ledger) []models.Obligation) ([]ObligationView, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).
		Preload("Obligations").
		Where("booking_id = ? AND published = ?", bookingID, true).
		First(&booking).Error
	if err != nil {
		return nil, classifyDBError(op, err, "бронирование "+bookingID)
	}

	views := []ObligationView{}
	for _, o := range pick(booking.Ledger()) {
		views = append(views, ObligationView{
			BookingID:   booking.BookingID,
			BookingType: booking.Type,
			PropertyID:  booking.PropertyID,
			CustomerID:  booking.CustomerID,
			SequenceKey: o.SequenceKey,
			DueDate:     o.DueDate,
			Amount:      o.Amount,
			LateFees:    o.LateFees,
			Status:      o.Status,
		})
	}
	return views, nil
}

// PaymentSummary агрегирует платежи в базе (GROUP BY) и читает результат построчно,
// не загружая всю коллекцию платежей в память
func (s *QueryService) PaymentSummary(ctx context.Context, f PaymentFilter) (*PaymentSummary, error) {
	const op = "PaymentSummary"

	q := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Select("payment_type, booking_type, COUNT(*) AS cnt, COALESCE(SUM(total_amount), 0) AS total").
		Where("published = ?", true)
	if f.BookingID != "" {
		q = q.Where("booking_ref = ?", f.BookingID)
	}
	if f.BookingType != "" {
		q = q.Where("booking_type = ?", f.BookingType)
	}
	if f.PaymentType != "" {
		q = q.Where("payment_type = ?", f.PaymentType)
	}
	if f.PaymentStatus != "" {
		q = q.Where("payment_status = ?", f.PaymentStatus)
	}
	if f.Reconciled != nil {
		q = q.Where("is_reconciled = ?", *f.Reconciled)
	}
	if f.From != nil {
		q = q.Where("paid_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("paid_date < ?", *f.To)
	}

	rows, err := q.Group("payment_type, booking_type").Rows()
	if err != nil {
		return nil, storageError(op, err)
	}
	defer rows.Close()

	summary := &PaymentSummary{
		TotalAmount:   decimal.Zero,
		ByPaymentType: make(map[models.PaymentType]*SummaryBucket),
		ByBookingType: make(map[models.BookingType]*SummaryBucket),
	}
	for rows.Next() {
		var (
			paymentType string
			bookingType string
			count       int64
			total       decimal.Decimal
		)
		if err := rows.Scan(&paymentType, &bookingType, &count, &total); err != nil {
			return nil, storageError(op, err)
		}

		summary.Count += count
		summary.TotalAmount = summary.TotalAmount.Add(total)
		addToBucket(summary.ByPaymentType, models.PaymentType(paymentType), count, total)
		addToBucket(summary.ByBookingType, models.BookingType(bookingType), count, total)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(op, err)
	}
	return summary, nil
}

func addToBucket[K comparable](m map[K]*SummaryBucket, key K, count int64, total decimal.Decimal) {
	b, ok := m[key]
	if !ok {
		b = &SummaryBucket{Total: decimal.Zero}
		m[key] = b
	}
	b.Count += count
	b.Total = b.Total.Add(total)
}
