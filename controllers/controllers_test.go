package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bookingledger/database"
	"bookingledger/services"
	"bookingledger/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var jwtKey = []byte("controllers-test")

type apiClient struct {
	t      *testing.T
	router *mux.Router
	token  string
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	opts := services.Options{
		Directory: services.NewMemoryDirectory().
			AddProperty("prop-1").
			AddCustomer("cust-1", "").
			AddSalesperson("sales-1", ""),
		Roles:   services.StaticRoleResolver{Admins: []string{"admin-1"}},
		Metrics: utils.NewMetrics(),
		Now:     func() time.Time { return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC) },
	}
	svc := Services{
		Bookings:       services.NewBookingService(db, opts),
		Payments:       services.NewPaymentService(db, opts),
		Reconciliation: services.NewReconciliationService(db, opts),
		Query:          services.NewQueryService(db, opts),
		Overdue:        services.NewOverdueService(db, opts),
	}

	router := mux.NewRouter()
	RegisterRoutes(router, svc, jwtKey)
	router.PathPrefix("/ops").Handler(NewOpsEngine(db, svc.Overdue, utils.NewRateLimiter(100, time.Minute), jwtKey))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "user-1"}).SignedString(jwtKey)
	require.NoError(t, err)

	return &apiClient{t: t, router: router, token: token}
}

func (a *apiClient) do(method, path, body string) *httptest.ResponseRecorder {
	return a.request(method, path, body, true)
}

func (a *apiClient) request(method, path, body string, auth bool) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const rentalBody = `{
	"property_id": "prop-1",
	"customer_id": "cust-1",
	"assigned_salesperson_id": "sales-1",
	"start_date": "2024-01-01T00:00:00Z",
	"end_date": "2024-03-31T00:00:00Z",
	"monthly_rent": "1000",
	"rent_due_day": 5
}`

func createRental(t *testing.T, api *apiClient) string {
	t.Helper()
	rec := api.do(http.MethodPost, "/api/bookings/rental", rentalBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		BookingID string `json:"booking_id"`
		Status    string `json:"booking_status"`
		CreatedBy string `json:"created_by"`
	}](t, rec)
	assert.Equal(t, "PENDING", created.Status)
	assert.Equal(t, "user-1", created.CreatedBy)
	return created.BookingID
}

func TestAPIRequiresToken(t *testing.T) {
	api := newAPI(t)
	rec := api.request(http.MethodGet, "/api/bookings/RB-1", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	api := newAPI(t)
	id := createRental(t, api)

	rec := api.do(http.MethodPost, "/api/bookings/"+id+"/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/bookings/"+id+"/confirm", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode[errorResponse](t, rec).Kind)

	rec = api.do(http.MethodPost, "/api/bookings/"+id+"/obligations/2024-02/payments",
		`{"amount": 1000, "payment_method": "BANK_TRANSFER"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[struct {
		Payment struct {
			Reference  string `json:"payment_id"`
			RecordedBy string `json:"recorded_by_user_id"`
		} `json:"payment"`
		BookingStatus    string `json:"booking_status"`
		BookingCompleted bool   `json:"booking_completed"`
	}](t, rec)
	assert.Equal(t, "ACTIVE", result.BookingStatus)
	assert.False(t, result.BookingCompleted)
	assert.Equal(t, "user-1", result.Payment.RecordedBy)

	rec = api.do(http.MethodPost, "/api/bookings/"+id+"/obligations/2024-02/payments",
		`{"amount": 1000, "payment_method": "BANK_TRANSFER"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodPost, "/api/bookings/"+id+"/obligations/2025-01/payments",
		`{"amount": 1000, "payment_method": "CASH"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/api/bookings/"+id+"/obligations?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]interface{}](t, rec), 2)

	rec = api.do(http.MethodGet, "/api/bookings/"+id+"/obligations?status=overdue&as_of=2024-02-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]interface{}](t, rec), 1)

	rec = api.do(http.MethodGet, "/api/bookings/"+id+"/obligations?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ref := result.Payment.Reference
	rec = api.do(http.MethodPost, "/api/payments/"+ref+"/approve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	approved := decode[struct {
		ApprovedBy string `json:"approved_by_user_id"`
	}](t, rec)
	assert.Equal(t, "user-1", approved.ApprovedBy)

	rec = api.do(http.MethodPost, "/api/payments/"+ref+"/reconcile", `{"bank_reference": "BANK-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/api/bookings/"+id+"/payments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]interface{}](t, rec), 1)

	rec = api.do(http.MethodGet, "/api/reports/payments/summary?reconciled=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[struct {
		Count int64 `json:"count"`
	}](t, rec)
	assert.Equal(t, int64(1), summary.Count)

	rec = api.do(http.MethodDelete, "/api/bookings/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(http.MethodGet, "/api/bookings/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookingValidationOverHTTP(t *testing.T) {
	api := newAPI(t)

	rec := api.do(http.MethodPost, "/api/bookings/rental", `{"property_id": "prop-1"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := strings.Replace(rentalBody, `"rent_due_day": 5`, `"rent_due_day": 0`, 1)
	rec = api.do(http.MethodPost, "/api/bookings/rental", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decode[errorResponse](t, rec).Kind)

	rec = api.do(http.MethodPost, "/api/bookings/purchase", `{
		"property_id": "prop-1",
		"customer_id": "cust-1",
		"assigned_salesperson_id": "sales-1",
		"total_property_value": 1000000,
		"down_payment": 200000,
		"payment_terms": "INSTALLMENTS",
		"installment_count": 3
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	purchase := decode[struct {
		Obligations []struct {
			Amount string `json:"amount"`
		} `json:"obligation_schedule"`
	}](t, rec)
	require.Len(t, purchase.Obligations, 3)
	assert.Equal(t, "266667", purchase.Obligations[0].Amount)

	rec = api.do(http.MethodGet, "/api/reports/obligations/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]interface{}](t, rec), 3)

	rec = api.do(http.MethodGet, "/api/reports/obligations/overdue?as_of=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/api/reports/payments/summary?reconciled=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpsEngine(t *testing.T) {
	api := newAPI(t)
	id := createRental(t, api)

	rec := api.request(http.MethodGet, "/ops/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.request(http.MethodGet, "/ops/metrics", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodGet, "/ops/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPost, "/ops/jobs/mark-overdue?as_of=2024-02-10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[services.OverdueReport](t, rec)
	assert.Equal(t, 2, report.MarkedOverdue)

	rec = api.do(http.MethodPost, "/ops/jobs/expire-rentals?as_of=2024-04-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"expired": float64(1)}, decode[map[string]interface{}](t, rec))

	rec = api.do(http.MethodGet, "/api/bookings/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "EXPIRED", decode[map[string]interface{}](t, rec)["booking_status"])

	rec = api.do(http.MethodPost, "/ops/jobs/mark-overdue?as_of=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
