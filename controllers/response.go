package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bookingledger/middleware"
	"bookingledger/services"
	"bookingledger/utils"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeJSON отправляет ответ в формате JSON
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		utils.LogError("Ошибка при записи ответа: %v", err)
	}
}

// writeError переводит вид ошибки ядра в HTTP статус
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := services.KindOf(err)
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		// подробности хранилища остаются в логе
		utils.LogError("Внутренняя ошибка: %v", err)
		msg = "Internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: string(kind)})
}

// decodeJSON читает тело запроса в dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body", Kind: string(services.KindValidation)})
		return false
	}
	return true
}

// actor возвращает идентификатор пользователя из контекста запроса
func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

// parseAsOf читает момент отсчета из query: дата или RFC3339, по умолчанию текущее время
func parseAsOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("as_of должен быть датой YYYY-MM-DD или RFC3339")
	}
	return t, nil
}

func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
