package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition возвращается при недопустимом переходе статуса бронирования
var ErrInvalidTransition = errors.New("invalid booking status transition")

func transitionError(from, to BookingStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// InForceStatus возвращает статус "в силе": ACTIVE для аренды, CONFIRMED для покупки
func (b *Booking) InForceStatus() BookingStatus {
	if b.Type == BookingTypeRental {
		return BookingStatusActive
	}
	return BookingStatusConfirmed
}

// Confirm переводит бронирование из PENDING в рабочее состояние
func (b *Booking) Confirm(at time.Time) error {
	target := b.InForceStatus()
	if b.Status != BookingStatusPending {
		return transitionError(b.Status, target)
	}
	b.Status = target
	b.ConfirmedAt = &at
	return nil
}

// Complete закрывает бронирование после погашения всех обязательств.
// Повторное завершение считается конфликтом: статус COMPLETED ставится ровно один раз.
func (b *Booking) Complete(at time.Time) error {
	if b.Status.IsTerminal() && b.Status != BookingStatusExpired {
		return transitionError(b.Status, BookingStatusCompleted)
	}
	b.Status = BookingStatusCompleted
	b.CompletionDate = &at
	return nil
}

// Cancel отменяет бронирование из любого нетерминального состояния
func (b *Booking) Cancel(reason string, at time.Time) error {
	if b.Status.IsTerminal() {
		return transitionError(b.Status, BookingStatusCancelled)
	}
	b.Status = BookingStatusCancelled
	b.CancelledAt = &at
	b.CancellationReason = reason
	return nil
}

// Expire помечает бронирование истекшим
func (b *Booking) Expire(at time.Time) error {
	if b.Status.IsTerminal() {
		return transitionError(b.Status, BookingStatusExpired)
	}
	b.Status = BookingStatusExpired
	b.ExpiredAt = &at
	return nil
}

// AcceptsPayments сообщает, можно ли гасить обязательства бронирования
func (b *Booking) AcceptsPayments() bool {
	return b.Status != BookingStatusCancelled && b.Status != BookingStatusCompleted
}
