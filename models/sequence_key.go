package models

import (
	"fmt"
	"strconv"
	"strings"
)

// RentalKey формирует ключ строки аренды вида "2024-02"
func RentalKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// InstallmentKey формирует ключ взноса вида "3"
func InstallmentKey(n int) string {
	return strconv.Itoa(n)
}

// ParseSequenceKey проверяет ключ для заданного вида бронирования и нормализует его
func ParseSequenceKey(bookingType BookingType, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch bookingType {
	case BookingTypeRental:
		parts := strings.Split(raw, "-")
		if len(parts) != 2 {
			return "", fmt.Errorf("rental sequence key must look like YYYY-MM, got %q", raw)
		}
		year, err := strconv.Atoi(parts[0])
		if err != nil || year < 1 {
			return "", fmt.Errorf("invalid year in sequence key %q", raw)
		}
		month, err := strconv.Atoi(parts[1])
		if err != nil || month < 1 || month > 12 {
			return "", fmt.Errorf("invalid month in sequence key %q", raw)
		}
		return RentalKey(year, month), nil
	case BookingTypePurchase:
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return "", fmt.Errorf("installment sequence key must be a positive number, got %q", raw)
		}
		return InstallmentKey(n), nil
	default:
		return "", fmt.Errorf("unknown booking type %q", bookingType)
	}
}
