package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"bookingledger/database"
	"bookingledger/utils"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) ofType(typ EventType) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	db             *gorm.DB
	opts           Options
	notifier       *recordingNotifier
	metrics        *utils.Metrics
	directory      *MemoryDirectory
	bookings       *BookingService
	payments       *PaymentService
	reconciliation *ReconciliationService
	query          *QueryService
	overdue        *OverdueService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// одно соединение: база в памяти живет, пока открыто соединение
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func newTestEnv(t *testing.T, mutate ...func(o *Options)) *testEnv {
	t.Helper()
	db := newTestDB(t)

	directory := NewMemoryDirectory().
		AddProperty("prop-1").
		AddProperty("prop-2").
		AddCustomer("cust-1", "customer@example.com").
		AddCustomer("cust-2", "other@example.com").
		AddSalesperson("sales-1", "sales@example.com")

	notifier := &recordingNotifier{}
	metrics := utils.NewMetrics()
	opts := Options{
		Directory: directory,
		Notifier:  notifier,
		Roles:     StaticRoleResolver{Admins: []string{"admin-1"}},
		Rounding:  RoundingKeepSurplus,
		Currency:  "USD",
		Metrics:   metrics,
		Now:       func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&opts)
	}

	return &testEnv{
		db:             db,
		opts:           opts,
		notifier:       notifier,
		metrics:        metrics,
		directory:      directory,
		bookings:       NewBookingService(db, opts),
		payments:       NewPaymentService(db, opts),
		reconciliation: NewReconciliationService(db, opts),
		query:          NewQueryService(db, opts),
		overdue:        NewOverdueService(db, opts),
	}
}

func rentalDTO() CreateRentalBookingDTO {
	return CreateRentalBookingDTO{
		PropertyID:            "prop-1",
		CustomerID:            "cust-1",
		AssignedSalespersonID: "sales-1",
		StartDate:             time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:               time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		MonthlyRent:           decimal.NewFromInt(1000),
		SecurityDeposit:       decimal.NewFromInt(2000),
		RentDueDay:            5,
		CreatedBy:             "user-1",
	}
}

func purchaseDTO() CreatePurchaseBookingDTO {
	return CreatePurchaseBookingDTO{
		PropertyID:            "prop-2",
		CustomerID:            "cust-1",
		AssignedSalespersonID: "sales-1",
		TotalPropertyValue:    decimal.NewFromInt(1000000),
		DownPayment:           decimal.NewFromInt(200000),
		PaymentTerms:          "INSTALLMENTS",
		InstallmentCount:      3,
		CreatedBy:             "user-1",
	}
}

func payDTO(bookingID, key string, amount int64) RecordPaymentDTO {
	return RecordPaymentDTO{
		BookingID:   bookingID,
		SequenceKey: key,
		Amount:      decimal.NewFromInt(amount),
		Method:      "BANK_TRANSFER",
		RecordedBy:  "cashier-1",
	}
}
