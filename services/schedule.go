package services

import (
	"time"

	"bookingledger/models"

	"github.com/shopspring/decimal"
)

// RoundingPolicy определяет, куда уходит остаток от округления взносов вверх
type RoundingPolicy string

const (
	// RoundingKeepSurplus - взносы равны ceil(остаток/n), сумма графика может превышать остаток на целое число единиц
	RoundingKeepSurplus RoundingPolicy = "keep_surplus"
	// RoundingTrimLast - последний взнос уменьшается так, чтобы сумма совпала с остатком
	RoundingTrimLast RoundingPolicy = "trim_last"
)

// ParseRoundingPolicy разбирает политику из конфигурации
func ParseRoundingPolicy(s string) (RoundingPolicy, error) {
	switch RoundingPolicy(s) {
	case RoundingKeepSurplus, RoundingTrimLast:
		return RoundingPolicy(s), nil
	case "":
		return RoundingKeepSurplus, nil
	}
	return "", validationError("ParseRoundingPolicy", "неизвестная политика округления %q", s)
}

// GenerateRentalSchedule генерирует график аренды: одна строка на каждый календарный месяц
// от startDate до месяца, содержащего endDate, включительно
func GenerateRentalSchedule(terms models.RentalTerms, responsiblePersonID string) ([]models.Obligation, error) {
	const op = "GenerateRentalSchedule"

	if terms.StartDate.IsZero() || terms.EndDate.IsZero() {
		return nil, validationError(op, "даты начала и окончания аренды обязательны")
	}
	if !terms.EndDate.After(terms.StartDate) {
		return nil, validationError(op, "дата окончания должна быть позже даты начала")
	}
	if !terms.MonthlyRent.IsPositive() {
		return nil, validationError(op, "месячная аренда должна быть больше 0")
	}
	if terms.SecurityDeposit.IsNegative() {
		return nil, validationError(op, "залог не может быть отрицательным")
	}
	if terms.RentDueDay < 1 || terms.RentDueDay > 31 {
		return nil, validationError(op, "день оплаты должен быть от 1 до 31")
	}

	loc := terms.StartDate.Location()
	cursor := time.Date(terms.StartDate.Year(), terms.StartDate.Month(), 1, 0, 0, 0, 0, loc)
	last := time.Date(terms.EndDate.Year(), terms.EndDate.Month(), 1, 0, 0, 0, 0, loc)

	var schedule []models.Obligation
	for ordinal := 1; !cursor.After(last); ordinal++ {
		year, month := cursor.Year(), cursor.Month()
		day := terms.RentDueDay
		if dim := daysInMonth(year, month); day > dim {
			day = dim
		}

		schedule = append(schedule, models.Obligation{
			SequenceKey:         models.RentalKey(year, int(month)),
			Ordinal:             ordinal,
			Year:                year,
			MonthNumber:         int(month),
			DueDate:             time.Date(year, month, day, 0, 0, 0, 0, loc),
			Amount:              terms.MonthlyRent,
			Status:              models.ObligationStatusPending,
			LateFees:            decimal.Zero,
			ResponsiblePersonID: responsiblePersonID,
		})
		cursor = cursor.AddDate(0, 1, 0)
	}

	return schedule, nil
}

// GeneratePurchaseSchedule генерирует график взносов за покупку.
// Первый взнос наступает через месяц после создания бронирования.
func GeneratePurchaseSchedule(terms models.PurchaseTerms, createdAt time.Time, policy RoundingPolicy, responsiblePersonID string) ([]models.Obligation, error) {
	const op = "GeneratePurchaseSchedule"

	if !terms.TotalPropertyValue.IsPositive() {
		return nil, validationError(op, "стоимость объекта должна быть больше 0")
	}
	if terms.DownPayment.IsNegative() {
		return nil, validationError(op, "первый взнос не может быть отрицательным")
	}
	if terms.DownPayment.GreaterThanOrEqual(terms.TotalPropertyValue) {
		return nil, validationError(op, "первый взнос должен быть меньше стоимости объекта")
	}

	count := 1
	switch terms.PaymentTerms {
	case models.PaymentTermsFull:
	case models.PaymentTermsInstallments:
		if terms.InstallmentCount <= 0 {
			return nil, validationError(op, "количество взносов должно быть больше 0")
		}
		count = terms.InstallmentCount
	default:
		return nil, validationError(op, "неизвестные условия оплаты %q", terms.PaymentTerms)
	}

	amounts := splitInstallments(terms.RemainingBalance(), count, policy)
	if !amounts[count-1].IsPositive() {
		return nil, validationError(op, "остаток %s нельзя разделить на %d взносов", terms.RemainingBalance(), count)
	}

	schedule := make([]models.Obligation, count)
	for i := 0; i < count; i++ {
		n := i + 1
		schedule[i] = models.Obligation{
			SequenceKey:         models.InstallmentKey(n),
			Ordinal:             n,
			InstallmentNumber:   n,
			DueDate:             addMonthsClamped(createdAt, n),
			Amount:              amounts[i],
			Status:              models.ObligationStatusPending,
			LateFees:            decimal.Zero,
			ResponsiblePersonID: responsiblePersonID,
		}
	}
	return schedule, nil
}

// splitInstallments делит остаток на n взносов с округлением вверх до целых единиц валюты.
// Последний взнос забирает дробную часть излишка, поэтому излишек всегда целый и не больше n-1.
func splitInstallments(balance decimal.Decimal, n int, policy RoundingPolicy) []decimal.Decimal {
	per := balance.Div(decimal.NewFromInt(int64(n))).Ceil()

	amounts := make([]decimal.Decimal, n)
	for i := range amounts {
		amounts[i] = per
	}
	if n == 0 {
		return amounts
	}

	paidBefore := per.Mul(decimal.NewFromInt(int64(n - 1)))
	switch policy {
	case RoundingTrimLast:
		amounts[n-1] = balance.Sub(paidBefore)
	default:
		surplus := per.Mul(decimal.NewFromInt(int64(n))).Sub(balance)
		amounts[n-1] = balance.Sub(paidBefore).Add(surplus.Floor())
	}
	return amounts
}

// addMonthsClamped прибавляет месяцы, не перескакивая в следующий месяц (31 января + 1 = 29 февраля)
func addMonthsClamped(t time.Time, months int) time.Time {
	firstOfMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	day := t.Day()
	if dim := daysInMonth(firstOfMonth.Year(), firstOfMonth.Month()); day > dim {
		day = dim
	}
	return time.Date(firstOfMonth.Year(), firstOfMonth.Month(), day, 0, 0, 0, 0, t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
