package controllers

import (
	"net/http"

	"bookingledger/models"
	"bookingledger/services"

	"github.com/gorilla/mux"
)

// BookingController обрабатывает запросы, связанные с бронированиями
type BookingController struct {
	bookings *services.BookingService
}

// NewBookingController создает новый экземпляр BookingController
func NewBookingController(bookings *services.BookingService) *BookingController {
	return &BookingController{bookings: bookings}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type activeRequest struct {
	IsActive bool `json:"is_active"`
}

// CreateRental обрабатывает запрос на создание бронирования аренды
func (c *BookingController) CreateRental(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}

	var dto services.CreateRentalBookingDTO
	if !decodeJSON(w, r, &dto) {
		return
	}
	dto.CreatedBy = userID

	booking, err := c.bookings.CreateRentalBooking(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// CreatePurchase обрабатывает запрос на создание бронирования покупки
func (c *BookingController) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}

	var dto services.CreatePurchaseBookingDTO
	if !decodeJSON(w, r, &dto) {
		return
	}
	dto.CreatedBy = userID

	booking, err := c.bookings.CreatePurchaseBooking(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// GetBooking возвращает бронирование вместе с графиком
func (c *BookingController) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := c.bookings.GetBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// Obligations возвращает строки графика: все, pending или overdue (?status=)
func (c *BookingController) Obligations(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["id"]

	var (
		items []models.Obligation
		err   error
	)
	switch r.URL.Query().Get("status") {
	case "", "all":
		var ledger *models.Ledger
		ledger, err = c.bookings.Ledger(r.Context(), bookingID)
		if err == nil {
			items = ledger.Items()
		}
	case "pending":
		items, err = c.bookings.PendingFor(r.Context(), bookingID)
	case "overdue":
		asOf, perr := parseAsOf(r)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: perr.Error(), Kind: string(services.KindValidation)})
			return
		}
		items, err = c.bookings.OverdueFor(r.Context(), bookingID, asOf)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "status должен быть all, pending или overdue", Kind: string(services.KindValidation)})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Confirm подтверждает бронирование
func (c *BookingController) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	booking, err := c.bookings.Confirm(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// Cancel отменяет бронирование
func (c *BookingController) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	booking, err := c.bookings.Cancel(r.Context(), mux.Vars(r)["id"], req.Reason, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// Expire помечает бронирование истекшим
func (c *BookingController) Expire(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	booking, err := c.bookings.Expire(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// SetActive меняет флаг is_active
func (c *BookingController) SetActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	var req activeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	booking, err := c.bookings.SetActive(r.Context(), mux.Vars(r)["id"], req.IsActive, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// Delete снимает бронирование с публикации
func (c *BookingController) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	if err := c.bookings.SoftDelete(r.Context(), mux.Vars(r)["id"], userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttachDocuments добавляет ссылки на документы
func (c *BookingController) AttachDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	var docs []models.DocumentRef
	if !decodeJSON(w, r, &docs) {
		return
	}
	booking, err := c.bookings.AttachDocuments(r.Context(), mux.Vars(r)["id"], docs, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}
