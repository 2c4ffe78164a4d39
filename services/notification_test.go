package services

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookingledger/config"
	"bookingledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, Event) error { return errors.New("down") }

func TestPublisherDeduplicatesRecipients(t *testing.T) {
	notifier := &recordingNotifier{}
	p := &publisher{
		notifier: notifier,
		// менеджер одновременно администратор
		roles: StaticRoleResolver{Admins: []string{"sales-1", "admin-1"}},
		now:   func() time.Time { return testNow },
	}
	booking := &models.Booking{BookingID: "RB-1", CustomerID: "cust-1", AssignedSalespersonID: "sales-1"}

	p.publish(context.Background(), EventObligationSettled, booking, "2024-02")

	events := notifier.ofType(EventObligationSettled)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"cust-1", "sales-1", "admin-1"}, events[0].RecipientCandidates)
	assert.Equal(t, "2024-02", events[0].ObligationKey)
	assert.Equal(t, testNow, events[0].OccurredAt)
}

func TestPublisherSwallowsDeliveryErrors(t *testing.T) {
	p := &publisher{
		notifier: MultiNotifier{failingNotifier{}, LogNotifier{}},
		roles:    StaticRoleResolver{},
		now:      time.Now,
	}
	assert.NotPanics(t, func() {
		p.publish(context.Background(), EventBookingCompleted, &models.Booking{BookingID: "RB-1"}, "")
	})

	var nilPublisher *publisher
	assert.NotPanics(t, func() {
		nilPublisher.publish(context.Background(), EventBookingCompleted, &models.Booking{}, "")
	})
}

func TestStaticRoleResolver(t *testing.T) {
	r := StaticRoleResolver{Admins: []string{"admin-1"}}
	booking := &models.Booking{CustomerID: "cust-1"}
	ctx := context.Background()

	ids, err := r.Resolve(ctx, RoleSalesperson, booking)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = r.Resolve(ctx, RoleCustomer, booking)
	require.NoError(t, err)
	assert.Equal(t, []string{"cust-1"}, ids)

	ids, err = r.Resolve(ctx, RoleAdmin, booking)
	require.NoError(t, err)
	ids[0] = "changed"
	assert.Equal(t, "admin-1", r.Admins[0])

	_, err = r.Resolve(ctx, Role("AUDITOR"), booking)
	assert.Error(t, err)
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	rec := &recordingNotifier{}
	err := MultiNotifier{failingNotifier{}, rec}.Notify(context.Background(), Event{Type: EventBookingConfirmed})
	assert.Error(t, err)
	assert.Len(t, rec.ofType(EventBookingConfirmed), 1)
}

func TestEmailServiceNotify(t *testing.T) {
	cfg := &config.Config{}
	cfg.SMTP.Host = "localhost"
	cfg.SMTP.Port = 25
	cfg.SMTP.From = "bookings@example.com"

	directory := NewMemoryDirectory().
		AddCustomer("cust-1", "customer@example.com").
		AddSalesperson("sales-1", "")

	svc := NewEmailService(cfg, directory)
	var sent []*gomail.Message
	svc.send = func(m *gomail.Message) error {
		sent = append(sent, m)
		return nil
	}

	err := svc.Notify(context.Background(), Event{
		Type:                EventObligationOverdue,
		BookingID:           "RB-1",
		ObligationKey:       "2024-02",
		RecipientCandidates: []string{"cust-1", "sales-1", "unknown"},
	})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"customer@example.com"}, sent[0].GetHeader("To"))
	// gomail кодирует не-ASCII заголовки в Q-encoding
	subject := sent[0].GetHeader("Subject")
	require.Len(t, subject, 1)
	decoded, err := new(mime.WordDecoder).DecodeHeader(subject[0])
	require.NoError(t, err)
	assert.Equal(t, "Просрочен платеж", decoded)

	svc.send = func(*gomail.Message) error { return errors.New("smtp down") }
	err = svc.Notify(context.Background(), Event{Type: EventBookingCompleted, RecipientCandidates: []string{"cust-1"}})
	assert.Error(t, err)

	assert.NoError(t, NewEmailService(cfg, nil).Notify(context.Background(), Event{RecipientCandidates: []string{"cust-1"}}))
}

func TestHTTPDirectory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/properties/prop-1", "/customers/cust-1":
			w.WriteHeader(http.StatusOK)
		case "/people/cust-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"email":"customer@example.com"}`))
		case "/salespersons/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	d := NewHTTPDirectory(server.URL+"/", time.Second)
	ctx := context.Background()

	ok, err := d.PropertyExists(ctx, "prop-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.CustomerExists(ctx, "cust-404")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.SalespersonExists(ctx, "broken")
	assert.Error(t, err)

	email, err := d.ContactEmail(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "customer@example.com", email)

	email, err = d.ContactEmail(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, email)
}

func TestCreateBookingDirectoryUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	env := newTestEnv(t, func(o *Options) {
		o.Directory = NewHTTPDirectory(server.URL, time.Second)
	})
	_, err := env.bookings.CreateRentalBooking(context.Background(), rentalDTO())
	assert.ErrorIs(t, err, ErrStorage)
}
