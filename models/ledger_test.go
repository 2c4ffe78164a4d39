package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rentalLedger() *Ledger {
	due := func(m time.Month) time.Time { return time.Date(2024, m, 5, 0, 0, 0, 0, time.UTC) }
	// намеренно не по порядку
	return NewLedger([]Obligation{
		{ID: 3, SequenceKey: "2024-03", Ordinal: 3, DueDate: due(time.March), Amount: decimal.NewFromInt(1000), Status: ObligationStatusPending},
		{ID: 1, SequenceKey: "2024-01", Ordinal: 1, DueDate: due(time.January), Amount: decimal.NewFromInt(1000), Status: ObligationStatusPending},
		{ID: 2, SequenceKey: "2024-02", Ordinal: 2, DueDate: due(time.February), Amount: decimal.NewFromInt(1000), Status: ObligationStatusPending},
	})
}

func TestLedgerOrdersByOrdinal(t *testing.T) {
	l := rentalLedger()
	require.Equal(t, 3, l.Len())

	keys := []string{}
	for _, o := range l.Items() {
		keys = append(keys, o.SequenceKey)
	}
	assert.Equal(t, []string{"2024-01", "2024-02", "2024-03"}, keys)
}

func TestLedgerFindReturnsCopy(t *testing.T) {
	l := rentalLedger()

	o, ok := l.FindBySequenceKey("2024-02")
	require.True(t, ok)
	o.Status = ObligationStatusPaid

	again, _ := l.FindBySequenceKey("2024-02")
	assert.Equal(t, ObligationStatusPending, again.Status)

	_, ok = l.FindBySequenceKey("2024-04")
	assert.False(t, ok)
}

func TestLedgerSettle(t *testing.T) {
	l := rentalLedger()
	paidAt := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)

	settled, allPaid, err := l.Settle("2024-02", 42, paidAt)
	require.NoError(t, err)
	assert.False(t, allPaid)
	assert.Equal(t, ObligationStatusPaid, settled.Status)
	require.NotNil(t, settled.PaymentID)
	assert.Equal(t, uint(42), *settled.PaymentID)
	assert.Equal(t, paidAt, *settled.PaidDate)

	// остальные строки не меняются
	assert.Len(t, l.AllPending(), 2)
	assert.Len(t, l.AllPaid(), 1)
	assert.Equal(t, 2, l.Unpaid())

	_, _, err = l.Settle("2024-02", 43, paidAt)
	assert.ErrorIs(t, err, ErrObligationPaid)

	_, _, err = l.Settle("2025-01", 44, paidAt)
	assert.ErrorIs(t, err, ErrUnknownSequenceKey)

	_, _, err = l.Settle("2024-01", 45, paidAt)
	require.NoError(t, err)
	_, allPaid, err = l.Settle("2024-03", 46, paidAt)
	require.NoError(t, err)
	assert.True(t, allPaid)
}

func TestLedgerSettleRequiresPayment(t *testing.T) {
	l := rentalLedger()
	_, _, err := l.Settle("2024-01", 0, time.Now())
	assert.ErrorIs(t, err, ErrMissingPayment)
	assert.Equal(t, 3, l.Unpaid())
}

func TestLedgerAllOverdue(t *testing.T) {
	l := rentalLedger()
	_, _, err := l.Settle("2024-01", 1, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	overdue := l.AllOverdue(time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC))
	require.Len(t, overdue, 1)
	assert.Equal(t, "2024-02", overdue[0].SequenceKey)

	// срок в тот же момент еще не просрочен
	assert.Empty(t, l.AllOverdue(time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)))
}

func TestObligationTransitions(t *testing.T) {
	o := Obligation{Amount: decimal.NewFromInt(500), Status: ObligationStatusPending}

	assert.ErrorIs(t, o.MarkLate(), ErrObligationNotOverdue)

	require.NoError(t, o.MarkOverdue(decimal.NewFromInt(25)))
	assert.Equal(t, ObligationStatusOverdue, o.Status)
	assert.True(t, o.AmountDue().Equal(decimal.NewFromInt(525)))

	require.NoError(t, o.MarkLate())
	assert.Equal(t, ObligationStatusLate, o.Status)
	assert.True(t, o.Status.IsUnpaid())

	require.NoError(t, o.MarkPaid(7, time.Now()))
	assert.ErrorIs(t, o.MarkOverdue(decimal.Zero), ErrObligationPaid)
}
