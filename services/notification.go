package services

import (
	"context"
	"errors"
	"time"

	"bookingledger/models"
	"bookingledger/utils"
)

// EventType представляет вид доменного события
type EventType string

const (
	EventBookingConfirmed  EventType = "BookingConfirmed"
	EventObligationSettled EventType = "ObligationSettled"
	EventBookingCompleted  EventType = "BookingCompleted"
	EventObligationOverdue EventType = "ObligationOverdue"
)

// Event - событие для внешнего сервиса уведомлений; доставку решает получатель
type Event struct {
	Type                EventType `json:"type"`
	BookingID           string    `json:"booking_id"`
	ObligationKey       string    `json:"obligation_key,omitempty"`
	RecipientCandidates []string  `json:"recipient_candidates"`
	OccurredAt          time.Time `json:"occurred_at"`
}

// Notifier принимает доменные события
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Role - перечислимая роль получателя
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleSalesperson Role = "SALESPERSON"
	RoleCustomer    Role = "CUSTOMER"
)

// RoleResolver возвращает идентификаторы пользователей с ролью в контексте бронирования
type RoleResolver interface {
	Resolve(ctx context.Context, role Role, booking *models.Booking) ([]string, error)
}

// StaticRoleResolver берет администраторов из конфигурации, остальные роли - из бронирования
type StaticRoleResolver struct {
	Admins []string
}

// Resolve реализует RoleResolver
func (r StaticRoleResolver) Resolve(_ context.Context, role Role, booking *models.Booking) ([]string, error) {
	switch role {
	case RoleAdmin:
		return append([]string(nil), r.Admins...), nil
	case RoleSalesperson:
		if booking.AssignedSalespersonID == "" {
			return nil, nil
		}
		return []string{booking.AssignedSalespersonID}, nil
	case RoleCustomer:
		return []string{booking.CustomerID}, nil
	}
	return nil, errors.New("unknown role " + string(role))
}

// MultiNotifier рассылает событие нескольким получателям и собирает ошибки
type MultiNotifier []Notifier

// Notify реализует Notifier
func (m MultiNotifier) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier пишет события в лог
type LogNotifier struct{}

// Notify реализует Notifier
func (LogNotifier) Notify(_ context.Context, event Event) error {
	utils.Logger().Infow("domain event",
		"type", event.Type,
		"booking_id", event.BookingID,
		"obligation_key", event.ObligationKey,
		"recipients", event.RecipientCandidates,
	)
	return nil
}

var eventRoles = map[EventType][]Role{
	EventBookingConfirmed:  {RoleCustomer, RoleSalesperson, RoleAdmin},
	EventObligationSettled: {RoleCustomer, RoleSalesperson, RoleAdmin},
	EventBookingCompleted:  {RoleCustomer, RoleSalesperson, RoleAdmin},
	EventObligationOverdue: {RoleCustomer, RoleSalesperson},
}

// publisher собирает получателей и отправляет событие; ошибки доставки только логируются
type publisher struct {
	notifier Notifier
	roles    RoleResolver
	now      func() time.Time
}

func (p *publisher) publish(ctx context.Context, typ EventType, booking *models.Booking, obligationKey string) {
	if p == nil || p.notifier == nil {
		return
	}

	seen := make(map[string]bool)
	var recipients []string
	for _, role := range eventRoles[typ] {
		if p.roles == nil {
			break
		}
		ids, err := p.roles.Resolve(ctx, role, booking)
		if err != nil {
			utils.LogError("Ошибка определения получателей %s для %s: %v", role, booking.BookingID, err)
			continue
		}
		for _, id := range ids {
			if id != "" && !seen[id] {
				seen[id] = true
				recipients = append(recipients, id)
			}
		}
	}

	event := Event{
		Type:                typ,
		BookingID:           booking.BookingID,
		ObligationKey:       obligationKey,
		RecipientCandidates: recipients,
		OccurredAt:          p.now(),
	}
	if err := p.notifier.Notify(ctx, event); err != nil {
		utils.LogError("Ошибка при отправке события %s по %s: %v", typ, booking.BookingID, err)
	}
}
