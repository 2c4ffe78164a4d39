package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"bookingledger/models"
	"bookingledger/utils"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StatementLine - строка банковской выписки (camt.053 Ntry)
type StatementLine struct {
	Reference     string          `json:"reference"`
	BankReference string          `json:"bank_reference"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	BookingDate   *time.Time      `json:"booking_date,omitempty"`
	Credit        bool            `json:"credit"`
}

// StatementReport - итог сверки выписки
type StatementReport struct {
	Entries           int             `json:"entries"`
	Reconciled        []string        `json:"reconciled"`
	AlreadyReconciled []string        `json:"already_reconciled"`
	Unmatched         []StatementLine `json:"unmatched"`
	Mismatched        []StatementLine `json:"mismatched"`
	Skipped           []StatementLine `json:"skipped"`
}

// ReconciliationService утверждает платежи и сверяет их с банком.
// Операции не меняют ни строки графика, ни статус бронирования.
type ReconciliationService struct {
	db   *gorm.DB
	opts Options
}

// NewReconciliationService создает новый экземпляр ReconciliationService
func NewReconciliationService(db *gorm.DB, opts Options) *ReconciliationService {
	return &ReconciliationService{db: db, opts: opts.withDefaults()}
}

// Approve утверждает платеж; повторное утверждение перезаписывает утверждающего
func (s *ReconciliationService) Approve(ctx context.Context, reference, approverID string) (*models.Payment, error) {
	const op = "Approve"
	if strings.TrimSpace(approverID) == "" {
		return nil, validationError(op, "не указан утверждающий")
	}
	return s.update(ctx, op, reference, approverID, func(p *models.Payment, now time.Time) (map[string]interface{}, error) {
		p.Approve(approverID, now)
		return map[string]interface{}{
			"approved_by_user_id": p.ApprovedByUserID,
			"approved_at":         p.ApprovedAt,
		}, nil
	})
}

// Reconcile отмечает платеж сверенным с банковской выпиской
func (s *ReconciliationService) Reconcile(ctx context.Context, reference, bankReference, actor string) (*models.Payment, error) {
	payment, err := s.update(ctx, "Reconcile", reference, actor, func(p *models.Payment, now time.Time) (map[string]interface{}, error) {
		p.MarkReconciled(bankReference, now)
		return map[string]interface{}{
			"is_reconciled":       p.IsReconciled,
			"reconciliation_date": p.ReconciliationDate,
			"bank_reference":      p.BankReference,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.opts.Metrics.RecordReconciled(1)
	return payment, nil
}

// Refund переводит платеж в REFUNDED; график бронирования не меняется
func (s *ReconciliationService) Refund(ctx context.Context, reference, actor string) (*models.Payment, error) {
	return s.update(ctx, "Refund", reference, actor, func(p *models.Payment, now time.Time) (map[string]interface{}, error) {
		if err := p.Refund(now); err != nil {
			return nil, conflictError("Refund", err, "платеж %s в статусе %s", p.Reference, p.PaymentStatus)
		}
		return map[string]interface{}{
			"payment_status": p.PaymentStatus,
			"refunded_at":    p.RefundedAt,
		}, nil
	})
}

func (s *ReconciliationService) update(ctx context.Context, op, reference, actor string, change func(p *models.Payment, now time.Time) (map[string]interface{}, error)) (*models.Payment, error) {
	var payment *models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = findPayment(tx, op, reference)
		if err != nil {
			return err
		}

		now := s.opts.Now()
		fields, err := change(payment, now)
		if err != nil {
			return err
		}
		fields["updated_by"] = actor
		fields["updated_at"] = now
		payment.UpdatedBy = actor
		payment.UpdatedAt = now

		return tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(fields).Error
	})
	if err != nil {
		return nil, classifyDBError(op, err, "платеж "+reference)
	}
	return payment, nil
}

// ParseStatement разбирает выписку ISO 20022 camt.053
func ParseStatement(r io.Reader) ([]StatementLine, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, validationError("ParseStatement", "неверный XML выписки: %v", err)
	}

	entries := doc.FindElements("//Stmt/Ntry")
	if len(entries) == 0 && doc.FindElement("//Stmt") == nil {
		return nil, validationError("ParseStatement", "в документе нет выписки (Stmt)")
	}

	lines := make([]StatementLine, 0, len(entries))
	for i, ntry := range entries {
		amtEl := ntry.FindElement("Amt")
		if amtEl == nil {
			return nil, validationError("ParseStatement", "строка %d: нет суммы", i+1)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(amtEl.Text()))
		if err != nil {
			return nil, validationError("ParseStatement", "строка %d: неверная сумма %q", i+1, amtEl.Text())
		}

		line := StatementLine{
			Amount:        amount,
			Currency:      strings.ToUpper(amtEl.SelectAttrValue("Ccy", "")),
			Credit:        childText(ntry, "CdtDbtInd") != "DBIT",
			BankReference: childText(ntry, "AcctSvcrRef"),
			Reference:     childText(ntry, ".//Refs/EndToEndId"),
		}
		if line.Reference == "" || line.Reference == "NOTPROVIDED" {
			line.Reference = childText(ntry, ".//RmtInf/Ustrd")
		}
		if d := childText(ntry, "BookgDt/Dt"); d != "" {
			if t, err := time.Parse("2006-01-02", d); err == nil {
				line.BookingDate = &t
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ImportStatement сверяет строки выписки с платежами по ссылке и сумме
func (s *ReconciliationService) ImportStatement(ctx context.Context, r io.Reader, actor string) (*StatementReport, error) {
	lines, err := ParseStatement(r)
	if err != nil {
		return nil, err
	}

	report := &StatementReport{Entries: len(lines)}
	for _, line := range lines {
		if !line.Credit || line.Reference == "" {
			report.Skipped = append(report.Skipped, line)
			continue
		}

		payment, err := findPayment(s.db.WithContext(ctx), "ImportStatement", line.Reference)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				report.Unmatched = append(report.Unmatched, line)
				continue
			}
			return nil, err
		}
		if !payment.TotalAmount.Equal(line.Amount) || (line.Currency != "" && line.Currency != payment.Currency) {
			report.Mismatched = append(report.Mismatched, line)
			continue
		}
		if payment.IsReconciled {
			report.AlreadyReconciled = append(report.AlreadyReconciled, payment.Reference)
			continue
		}

		bankRef := line.BankReference
		if bankRef == "" {
			bankRef = line.Reference
		}
		if _, err := s.Reconcile(ctx, payment.Reference, bankRef, actor); err != nil {
			return nil, fmt.Errorf("сверка платежа %s: %w", payment.Reference, err)
		}
		report.Reconciled = append(report.Reconciled, payment.Reference)
	}

	utils.LogInfo("Выписка обработана: строк %d, сверено %d, без пары %d, расхождений %d",
		report.Entries, len(report.Reconciled), len(report.Unmatched), len(report.Mismatched))
	return report, nil
}

func childText(el *etree.Element, path string) string {
	found := el.FindElement(path)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(found.Text())
}
