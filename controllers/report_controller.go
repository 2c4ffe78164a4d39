package controllers

import (
	"net/http"
	"strconv"
	"time"

	"bookingledger/models"
	"bookingledger/services"
)

// ReportController отдает отчеты по графикам и платежам
type ReportController struct {
	query *services.QueryService
}

// NewReportController создает новый экземпляр ReportController
func NewReportController(query *services.QueryService) *ReportController {
	return &ReportController{query: query}
}

func obligationFilter(r *http.Request) services.ObligationFilter {
	q := r.URL.Query()
	return services.ObligationFilter{
		BookingID:   q.Get("booking_id"),
		BookingType: models.BookingType(q.Get("booking_type")),
		CustomerID:  q.Get("customer_id"),
		Limit:       parseLimit(r),
	}
}

// PendingObligations возвращает все ожидающие оплаты строки
func (c *ReportController) PendingObligations(w http.ResponseWriter, r *http.Request) {
	views, err := c.query.PendingObligations(r.Context(), obligationFilter(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// OverdueObligations возвращает просроченные строки на дату as_of
func (c *ReportController) OverdueObligations(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: string(services.KindValidation)})
		return
	}
	views, err := c.query.OverdueObligations(r.Context(), asOf, obligationFilter(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// PaymentSummary возвращает сводку по платежам
func (c *ReportController) PaymentSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := services.PaymentFilter{
		BookingID:     q.Get("booking_id"),
		BookingType:   models.BookingType(q.Get("booking_type")),
		PaymentType:   models.PaymentType(q.Get("payment_type")),
		PaymentStatus: models.PaymentStatus(q.Get("payment_status")),
	}
	if raw := q.Get("reconciled"); raw != "" {
		reconciled, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "reconciled должен быть true или false", Kind: string(services.KindValidation)})
			return
		}
		filter.Reconciled = &reconciled
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: name + " должен быть датой YYYY-MM-DD", Kind: string(services.KindValidation)})
			return
		}
		*dst = &t
	}

	summary, err := c.query.PaymentSummary(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
