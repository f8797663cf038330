// handler.go — основной обработчик API Backend Module.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/arturkryukov/itemstore/backend-module/internal/service"
)

// APIHandler — основной обработчик API Backend Module.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health *HealthHandler
	items  *service.ItemService
	users  *service.UserService
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	items *service.ItemService,
	users *service.UserService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health: health,
		items:  items,
		users:  users,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// paginationFromQuery извлекает параметры skip/limit из query string
// и нормализует их: skip >= 0, limit в диапазоне [1, 1000].
func paginationFromQuery(r *http.Request) (limit, skip int) {
	limit = 100
	skip = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			skip = n
		}
	}

	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}
	if skip < 0 {
		skip = 0
	}

	return limit, skip
}
