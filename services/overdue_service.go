package services

import (
	"context"
	"errors"
	"time"

	"bookingledger/models"
	"bookingledger/utils"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	overdueActor = "system:overdue"
	expiryActor  = "system:expiry"
	batchSize    = 200
)

// OverdueReport - итог прохода по просрочкам
type OverdueReport struct {
	MarkedOverdue int `json:"marked_overdue"`
	MarkedLate    int `json:"marked_late"`
}

// OverdueService переводит просроченные обязательства и истекшие аренды по расписанию
type OverdueService struct {
	db     *gorm.DB
	opts   Options
	events *publisher
	cron   *cron.Cron
}

// NewOverdueService создает новый экземпляр OverdueService
func NewOverdueService(db *gorm.DB, opts Options) *OverdueService {
	opts = opts.withDefaults()
	return &OverdueService{
		db:     db,
		opts:   opts,
		events: opts.publisher(),
	}
}

// Start запускает планировщик: отметку просрочек и закрытие истекших аренд
func (s *OverdueService) Start(overdueSpec, expirySpec string) error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))

	if _, err := c.AddFunc(overdueSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := s.MarkOverdue(ctx, s.opts.Now()); err != nil {
			utils.LogError("Ошибка при обработке просроченных обязательств: %v", err)
		}
	}); err != nil {
		return validationError("Start", "неверное расписание просрочек %q: %v", overdueSpec, err)
	}

	if _, err := c.AddFunc(expirySpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := s.ExpireRentals(ctx, s.opts.Now()); err != nil {
			utils.LogError("Ошибка при закрытии истекших аренд: %v", err)
		}
	}); err != nil {
		return validationError("Start", "неверное расписание истечения %q: %v", expirySpec, err)
	}

	s.cron = c
	c.Start()
	utils.LogInfo("Планировщик запущен: просрочки %q, истечение аренд %q", overdueSpec, expirySpec)
	return nil
}

// Stop останавливает планировщик и ждет завершения текущих задач
func (s *OverdueService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// MarkOverdue отмечает PENDING строки со сроком раньше asOf как OVERDUE с пеней,
// а OVERDUE строки старше порога - как LATE
func (s *OverdueService) MarkOverdue(ctx context.Context, asOf time.Time) (*OverdueReport, error) {
	const op = "MarkOverdue"
	start := time.Now()
	report := &OverdueReport{}

	type marked struct {
		bookingID uint
		key       string
	}
	var overdue []marked

	var batch []models.Obligation
	res := s.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", models.ObligationStatusPending, asOf).
		Where("booking_id IN (?)", s.openBookings(ctx)).
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				o := &batch[i]
				if err := o.MarkOverdue(s.lateFee(o.Amount)); err != nil {
					continue
				}
				upd := s.db.WithContext(ctx).Model(&models.Obligation{}).
					Where("id = ? AND status = ?", o.ID, models.ObligationStatusPending).
					Updates(map[string]interface{}{
						"status":     o.Status,
						"late_fees":  o.LateFees,
						"updated_by": overdueActor,
						"updated_at": s.opts.Now(),
					})
				if upd.Error != nil {
					return upd.Error
				}
				// строка могла быть оплачена между чтением и обновлением
				if upd.RowsAffected == 1 {
					overdue = append(overdue, marked{bookingID: o.BookingID, key: o.SequenceKey})
				}
			}
			return nil
		})
	if res.Error != nil {
		err := storageError(op, res.Error)
		utils.LogOperation(op, start, err)
		return nil, err
	}
	report.MarkedOverdue = len(overdue)

	if s.opts.LateAfterDays > 0 {
		cutoff := asOf.AddDate(0, 0, -s.opts.LateAfterDays)
		upd := s.db.WithContext(ctx).Model(&models.Obligation{}).
			Where("status = ? AND due_date < ?", models.ObligationStatusOverdue, cutoff).
			Where("booking_id IN (?)", s.openBookings(ctx)).
			Updates(map[string]interface{}{
				"status":     models.ObligationStatusLate,
				"updated_by": overdueActor,
				"updated_at": s.opts.Now(),
			})
		if upd.Error != nil {
			err := storageError(op, upd.Error)
			utils.LogOperation(op, start, err)
			return nil, err
		}
		report.MarkedLate = int(upd.RowsAffected)
	}

	s.opts.Metrics.RecordOverdue(report.MarkedOverdue)
	utils.LogOperation(op, start, nil)
	utils.LogInfo("Просрочки на %s: OVERDUE %d, LATE %d", asOf.Format("2006-01-02"), report.MarkedOverdue, report.MarkedLate)

	if len(overdue) == 0 {
		return report, nil
	}
	ids := make([]uint, 0, len(overdue))
	for _, m := range overdue {
		ids = append(ids, m.bookingID)
	}
	var bookings []models.Booking
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&bookings).Error; err != nil {
		utils.LogError("Не удалось загрузить бронирования для уведомлений: %v", err)
		return report, nil
	}
	byID := make(map[uint]*models.Booking, len(bookings))
	for i := range bookings {
		byID[bookings[i].ID] = &bookings[i]
	}
	for _, m := range overdue {
		if b, ok := byID[m.bookingID]; ok {
			s.events.publish(ctx, EventObligationOverdue, b, m.key)
		}
	}
	return report, nil
}

// ExpireRentals переводит в EXPIRED аренды, срок которых закончился, а долг остался
func (s *OverdueService) ExpireRentals(ctx context.Context, asOf time.Time) (int, error) {
	const op = "ExpireRentals"

	var candidates []string
	err := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("booking_type = ? AND published = ?", models.BookingTypeRental, true).
		Where("booking_status IN ?", []models.BookingStatus{models.BookingStatusPending, models.BookingStatusActive}).
		Where("end_date < ?", asOf).
		Where("EXISTS (SELECT 1 FROM booking_obligations o WHERE o.booking_id = bookings.id AND o.status <> ?)", models.ObligationStatusPaid).
		Pluck("booking_id", &candidates).Error
	if err != nil {
		return 0, storageError(op, err)
	}

	expired := 0
	for _, bookingID := range candidates {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var booking models.Booking
			if err := lockBooking(tx, bookingID, &booking); err != nil {
				return err
			}
			if err := booking.Expire(s.opts.Now()); err != nil {
				return conflictError(op, err, "бронирование %s", bookingID)
			}
			booking.UpdatedBy = expiryActor
			booking.UpdatedAt = s.opts.Now()
			return saveBookingState(tx, &booking)
		})
		if err != nil {
			err = classifyDBError(op, err, "бронирование "+bookingID)
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
				utils.LogDebug("Бронирование %s пропущено: %v", bookingID, err)
				continue
			}
			return expired, err
		}
		expired++
	}

	if expired > 0 {
		utils.LogInfo("Истекших аренд закрыто: %d", expired)
	}
	return expired, nil
}

func (s *OverdueService) openBookings(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Booking{}).
		Select("id").
		Where("published = ? AND booking_status NOT IN ?", true,
			[]models.BookingStatus{models.BookingStatusCancelled, models.BookingStatusCompleted})
}

func (s *OverdueService) lateFee(amount decimal.Decimal) decimal.Decimal {
	if !s.opts.LateFeeRate.IsPositive() {
		return decimal.Zero
	}
	return amount.Mul(s.opts.LateFeeRate).Round(2)
}
