package services

import (
	"context"
	"errors"
	"fmt"

	"bookingledger/config"

	"gopkg.in/gomail.v2"
)

// EmailService отправляет уведомления о событиях бронирования по email
type EmailService struct {
	dialer    *gomail.Dialer
	from      string
	directory Directory
	send      func(m *gomail.Message) error
}

// NewEmailService создает новый экземпляр EmailService
func NewEmailService(cfg *config.Config, directory Directory) *EmailService {
	dialer := gomail.NewDialer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
	)

	s := &EmailService{
		dialer:    dialer,
		from:      cfg.SMTP.From,
		directory: directory,
	}
	s.send = func(m *gomail.Message) error { return s.dialer.DialAndSend(m) }
	return s
}

// SendEmail отправляет email
func (s *EmailService) SendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.send(m); err != nil {
		return fmt.Errorf("ошибка отправки email: %v", err)
	}
	return nil
}

// Notify реализует Notifier: письмо каждому кандидату, у которого есть адрес
func (s *EmailService) Notify(ctx context.Context, event Event) error {
	if s.directory == nil {
		return nil
	}
	subject, body := renderEvent(event)

	var errs []error
	for _, personID := range event.RecipientCandidates {
		email, err := s.directory.ContactEmail(ctx, personID)
		if err != nil {
			errs = append(errs, fmt.Errorf("адрес для %s: %w", personID, err))
			continue
		}
		if email == "" {
			continue
		}
		if err := s.SendEmail(email, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func renderEvent(event Event) (string, string) {
	date := event.OccurredAt.Format("02.01.2006 15:04:05")
	switch event.Type {
	case EventBookingConfirmed:
		return "Бронирование подтверждено", fmt.Sprintf(`
		<h2>Бронирование подтверждено</h2>
		<p>Бронирование: %s</p>
		<p>Дата: %s</p>
	`, event.BookingID, date)
	case EventObligationSettled:
		return "Платеж получен", fmt.Sprintf(`
		<h2>Платеж получен</h2>
		<p>Бронирование: %s</p>
		<p>Период: %s</p>
		<p>Дата: %s</p>
	`, event.BookingID, event.ObligationKey, date)
	case EventBookingCompleted:
		return "Все платежи по бронированию погашены", fmt.Sprintf(`
		<h2>Поздравляем!</h2>
		<p>Все платежи по бронированию %s погашены.</p>
		<p>Дата: %s</p>
	`, event.BookingID, date)
	case EventObligationOverdue:
		return "Просрочен платеж", fmt.Sprintf(`
		<h2>Просрочен платеж</h2>
		<p>Бронирование: %s</p>
		<p>Период: %s</p>
		<p>Пожалуйста, внесите оплату как можно скорее.</p>
	`, event.BookingID, event.ObligationKey)
	}
	return string(event.Type), fmt.Sprintf("<p>%s: %s</p>", event.Type, event.BookingID)
}
