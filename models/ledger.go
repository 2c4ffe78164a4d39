package models

import (
	"errors"
	"sort"
	"time"
)

// ErrUnknownSequenceKey возвращается, если в графике нет такой строки
var ErrUnknownSequenceKey = errors.New("unknown obligation sequence key")

// Ledger - упорядоченный график обязательств одного бронирования с индексом по ключу.
// Строки меняются только через методы Ledger/Obligation.
type Ledger struct {
	items []Obligation
	index map[string]int
}

// NewLedger создает график из строк, упорядочивая их по Ordinal
func NewLedger(obligations []Obligation) *Ledger {
	items := make([]Obligation, len(obligations))
	copy(items, obligations)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Ordinal < items[j].Ordinal
	})

	index := make(map[string]int, len(items))
	for i, o := range items {
		index[o.SequenceKey] = i
	}
	return &Ledger{items: items, index: index}
}

// Len возвращает количество строк графика
func (l *Ledger) Len() int {
	return len(l.items)
}

// Items возвращает копию строк графика
func (l *Ledger) Items() []Obligation {
	out := make([]Obligation, len(l.items))
	copy(out, l.items)
	return out
}

// FindBySequenceKey возвращает строку графика по ключу
func (l *Ledger) FindBySequenceKey(key string) (*Obligation, bool) {
	i, ok := l.index[key]
	if !ok {
		return nil, false
	}
	o := l.items[i]
	return &o, true
}

// AllPending возвращает строки в статусе PENDING
func (l *Ledger) AllPending() []Obligation {
	return l.filter(func(o *Obligation) bool {
		return o.Status == ObligationStatusPending
	})
}

// AllOverdue возвращает неоплаченные строки со сроком раньше asOf
func (l *Ledger) AllOverdue(asOf time.Time) []Obligation {
	return l.filter(func(o *Obligation) bool {
		return o.IsOverdueAt(asOf)
	})
}

// AllPaid возвращает оплаченные строки
func (l *Ledger) AllPaid() []Obligation {
	return l.filter(func(o *Obligation) bool {
		return o.Status == ObligationStatusPaid
	})
}

// Unpaid возвращает количество неоплаченных строк
func (l *Ledger) Unpaid() int {
	n := 0
	for i := range l.items {
		if l.items[i].Status.IsUnpaid() {
			n++
		}
	}
	return n
}

// Settle отмечает строку оплаченной и сообщает, погашен ли график целиком
func (l *Ledger) Settle(key string, paymentID uint, paidAt time.Time) (*Obligation, bool, error) {
	i, ok := l.index[key]
	if !ok {
		return nil, false, ErrUnknownSequenceKey
	}
	if err := l.items[i].MarkPaid(paymentID, paidAt); err != nil {
		return nil, false, err
	}
	o := l.items[i]
	return &o, l.Unpaid() == 0, nil
}

func (l *Ledger) filter(keep func(o *Obligation) bool) []Obligation {
	var out []Obligation
	for i := range l.items {
		if keep(&l.items[i]) {
			out = append(out, l.items[i])
		}
	}
	return out
}
