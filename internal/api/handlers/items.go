// items.go — обработчики /api/v1/items endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/itemstore/backend-module/internal/api/errors"
	"github.com/arturkryukov/itemstore/backend-module/internal/api/middleware"
	"github.com/arturkryukov/itemstore/backend-module/internal/domain/model"
	"github.com/arturkryukov/itemstore/backend-module/internal/domain/rbac"
	"github.com/arturkryukov/itemstore/backend-module/internal/service"
)

// itemResponse — item в API-представлении.
type itemResponse struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	OwnerID     string  `json:"owner_id"`
}

// itemCreateRequest — тело POST /api/v1/items.
type itemCreateRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

// itemUpdateRequest — тело PUT /api/v1/items/{id}.
// nil означает «поле не передано».
type itemUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func mapItem(item *model.Item) itemResponse {
	return itemResponse{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		OwnerID:     item.OwnerID,
	}
}

func mapItems(items []*model.Item) []itemResponse {
	result := make([]itemResponse, len(items))
	for i, item := range items {
		result[i] = mapItem(item)
	}
	return result
}

// itemIDFromURL извлекает числовой ID item из пути.
// Нечисловой ID неотличим от несуществующего — 404.
func itemIDFromURL(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ListItems — GET /api/v1/items?skip&limit&all_items.
// По умолчанию возвращает items вызывающего. all_items=true с realm-ролью
// admin возвращает все items; без роли admin параметр молча игнорируется.
func (h *APIHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "требуется аутентификация")
		return
	}

	limit, skip := paginationFromQuery(r)
	allItems := r.URL.Query().Get("all_items") == "true"
	isAdmin := p.HasRealmRoles(rbac.ModeAny, "admin")

	items, err := h.items.List(r.Context(), p.Sub, isAdmin, allItems, limit, skip)
	if err != nil {
		h.logger.Error("Ошибка получения списка items", "error", err)
		apierrors.InternalError(w, "Ошибка получения списка items")
		return
	}

	writeJSON(w, http.StatusOK, mapItems(items))
}

// ListOwnItems — GET /api/v1/items/me.
// Возвращает items вызывающего.
func (h *APIHandler) ListOwnItems(w http.ResponseWriter, r *http.Request) {
	sub, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "требуется аутентификация")
		return
	}

	limit, skip := paginationFromQuery(r)

	items, err := h.items.ListOwn(r.Context(), sub, limit, skip)
	if err != nil {
		h.logger.Error("Ошибка получения items пользователя", "error", err)
		apierrors.InternalError(w, "Ошибка получения items")
		return
	}

	writeJSON(w, http.StatusOK, mapItems(items))
}

// ListAllItemsAdmin — GET /api/v1/items/admin/all.
// Возвращает все items. Доступ: realm-роль admin
// (проверяется guard'ом маршрута, отказ — 403).
func (h *APIHandler) ListAllItemsAdmin(w http.ResponseWriter, r *http.Request) {
	limit, skip := paginationFromQuery(r)

	items, err := h.items.ListAll(r.Context(), limit, skip)
	if err != nil {
		h.logger.Error("Ошибка получения всех items", "error", err)
		apierrors.InternalError(w, "Ошибка получения items")
		return
	}

	writeJSON(w, http.StatusOK, mapItems(items))
}

// GetItem — GET /api/v1/items/{id}.
func (h *APIHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemIDFromURL(r)
	if !ok {
		apierrors.NotFound(w, "Item не найден")
		return
	}

	item, err := h.items.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Item не найден")
			return
		}
		h.logger.Error("Ошибка получения item", "item_id", id, "error", err)
		apierrors.InternalError(w, "Ошибка получения item")
		return
	}

	writeJSON(w, http.StatusOK, mapItem(item))
}

// CreateItem — POST /api/v1/items.
// Владелец нового item — вызывающий субъект.
func (h *APIHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	sub, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "требуется аутентификация")
		return
	}

	var req itemCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	item, err := h.items.Create(r.Context(), sub, &model.ItemCreate{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка создания item", "error", err)
		apierrors.InternalError(w, "Ошибка создания item")
		return
	}

	writeJSON(w, http.StatusCreated, mapItem(item))
}

// UpdateItem — PUT /api/v1/items/{id}.
// Частичное обновление: отсутствующие поля не меняются.
// Чужой item неотличим от несуществующего — 404.
func (h *APIHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	sub, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "требуется аутентификация")
		return
	}

	id, ok := itemIDFromURL(r)
	if !ok {
		apierrors.NotFound(w, "Item не найден")
		return
	}

	var req itemUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	item, err := h.items.Update(r.Context(), sub, id, &model.ItemUpdate{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Item не найден")
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		default:
			h.logger.Error("Ошибка обновления item", "item_id", id, "error", err)
			apierrors.InternalError(w, "Ошибка обновления item")
		}
		return
	}

	writeJSON(w, http.StatusOK, mapItem(item))
}

// DeleteItem — DELETE /api/v1/items/{id}.
// Чужой item неотличим от несуществующего — 404.
func (h *APIHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	sub, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "требуется аутентификация")
		return
	}

	id, ok := itemIDFromURL(r)
	if !ok {
		apierrors.NotFound(w, "Item не найден")
		return
	}

	if err := h.items.Delete(r.Context(), sub, id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Item не найден")
			return
		}
		h.logger.Error("Ошибка удаления item", "item_id", id, "error", err)
		apierrors.InternalError(w, "Ошибка удаления item")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
