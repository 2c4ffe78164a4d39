package controllers

import (
	"net/http"

	"bookingledger/services"

	"github.com/gorilla/mux"
)

// PaymentController обрабатывает запросы, связанные с платежами и сверкой
type PaymentController struct {
	payments       *services.PaymentService
	reconciliation *services.ReconciliationService
}

// NewPaymentController создает новый экземпляр PaymentController
func NewPaymentController(payments *services.PaymentService, reconciliation *services.ReconciliationService) *PaymentController {
	return &PaymentController{payments: payments, reconciliation: reconciliation}
}

type reconcileRequest struct {
	BankReference string `json:"bank_reference"`
}

// RecordPayment гасит строку графика {key} бронирования {id}
func (c *PaymentController) RecordPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}

	var dto services.RecordPaymentDTO
	if !decodeJSON(w, r, &dto) {
		return
	}
	vars := mux.Vars(r)
	dto.BookingID = vars["id"]
	dto.SequenceKey = vars["key"]
	dto.RecordedBy = userID

	result, err := c.payments.RecordPayment(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// RecordUnscheduled фиксирует платеж вне графика
func (c *PaymentController) RecordUnscheduled(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}

	var dto services.RecordUnscheduledPaymentDTO
	if !decodeJSON(w, r, &dto) {
		return
	}
	dto.BookingID = mux.Vars(r)["id"]
	dto.RecordedBy = userID

	payment, err := c.payments.RecordUnscheduledPayment(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// ListBookingPayments возвращает платежи бронирования
func (c *PaymentController) ListBookingPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := c.payments.ListBookingPayments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// GetPayment возвращает платеж по идентификатору
func (c *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := c.payments.GetPayment(r.Context(), mux.Vars(r)["ref"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// Approve утверждает платеж от имени текущего пользователя
func (c *PaymentController) Approve(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	payment, err := c.reconciliation.Approve(r.Context(), mux.Vars(r)["ref"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// Reconcile отмечает платеж сверенным
func (c *PaymentController) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	var req reconcileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	payment, err := c.reconciliation.Reconcile(r.Context(), mux.Vars(r)["ref"], req.BankReference, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// Refund возвращает платеж
func (c *PaymentController) Refund(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	payment, err := c.reconciliation.Refund(r.Context(), mux.Vars(r)["ref"], userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// ImportStatement принимает выписку camt.053 в теле запроса
func (c *PaymentController) ImportStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := actor(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()

	report, err := c.reconciliation.ImportStatement(r.Context(), http.MaxBytesReader(w, r.Body, 10<<20), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
