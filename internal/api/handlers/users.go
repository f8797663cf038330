// users.go — обработчики /api/v1/users endpoints.
// Данные идентичности приходят из Keycloak; локальная запись users
// синхронизируется перед чтением и обновлением профиля.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/arturkryukov/itemstore/backend-module/internal/api/errors"
	"github.com/arturkryukov/itemstore/backend-module/internal/api/middleware"
	"github.com/arturkryukov/itemstore/backend-module/internal/domain/model"
	"github.com/arturkryukov/itemstore/backend-module/internal/service"
)

// principalResponse — данные аутентифицированного субъекта из токена.
type principalResponse struct {
	Sub               string                         `json:"sub"`
	Email             *openapi_types.Email           `json:"email,omitempty"`
	EmailVerified     *bool                          `json:"emailVerified,omitempty"`
	PreferredUsername *string                        `json:"preferredUsername,omitempty"`
	Name              *string                        `json:"name,omitempty"`
	GivenName         *string                        `json:"givenName,omitempty"`
	FamilyName        *string                        `json:"familyName,omitempty"`
	Locale            *string                        `json:"locale,omitempty"`
	RealmAccess       map[string][]string            `json:"realmAccess,omitempty"`
	ResourceAccess    map[string]map[string][]string `json:"resourceAccess,omitempty"`
}

// userResponse — локальная запись пользователя в API-представлении.
type userResponse struct {
	ID          string               `json:"id"`
	Username    string               `json:"username"`
	Email       *openapi_types.Email `json:"email"`
	Company     *string              `json:"company"`
	Position    *string              `json:"position"`
	Phone       *string              `json:"phone"`
	Address     *string              `json:"address"`
	ProfileData map[string]any       `json:"profileData"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// userUpdateRequest — тело PUT /api/v1/users/me/profile.
// Только бизнес-поля; username и email управляются синхронизацией.
// nil означает «поле не передано».
type userUpdateRequest struct {
	Company     *string        `json:"company"`
	Position    *string        `json:"position"`
	Phone       *string        `json:"phone"`
	Address     *string        `json:"address"`
	ProfileData map[string]any `json:"profile_data"`
}

// mapPrincipal конвертирует Principal в API-представление.
func mapPrincipal(p *middleware.Principal) principalResponse {
	resp := principalResponse{Sub: p.Sub}

	if p.Email != "" {
		email := openapi_types.Email(p.Email)
		resp.Email = &email
	}
	resp.EmailVerified = p.EmailVerified
	if p.PreferredUsername != "" {
		resp.PreferredUsername = &p.PreferredUsername
	}
	if p.Name != "" {
		resp.Name = &p.Name
	}
	if p.GivenName != "" {
		resp.GivenName = &p.GivenName
	}
	if p.FamilyName != "" {
		resp.FamilyName = &p.FamilyName
	}
	if p.Locale != "" {
		resp.Locale = &p.Locale
	}
	if len(p.RealmRoles) > 0 {
		resp.RealmAccess = map[string][]string{"roles": p.RealmRoles}
	}
	if len(p.ResourceRoles) > 0 {
		resp.ResourceAccess = make(map[string]map[string][]string, len(p.ResourceRoles))
		for client, roles := range p.ResourceRoles {
			resp.ResourceAccess[client] = map[string][]string{"roles": roles}
		}
	}

	return resp
}

// mapUser конвертирует domain model в API-представление.
func mapUser(u *model.User) userResponse {
	resp := userResponse{
		ID:          u.ID,
		Username:    u.Username,
		Company:     u.Company,
		Position:    u.Position,
		Phone:       u.Phone,
		Address:     u.Address,
		ProfileData: u.ProfileData,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
	if u.Email != nil {
		email := openapi_types.Email(*u.Email)
		resp.Email = &email
	}
	return resp
}

// syncPrincipal синхронизирует локальную запись пользователя
// с данными токена вызывающего.
func (h *APIHandler) syncPrincipal(r *http.Request, p *middleware.Principal) (*model.User, error) {
	var email *string
	if p.Email != "" {
		e := p.Email
		email = &e
	}
	return h.users.Sync(r.Context(), p.Sub, p.PreferredUsername, email)
}

// GetMe — GET /api/v1/users/me.
// Возвращает данные субъекта из токена без обращения к БД.
func (h *APIHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "требуется аутентификация")
		return
	}

	writeJSON(w, http.StatusOK, mapPrincipal(p))
}

// GetMyProfile — GET /api/v1/users/me/profile.
// Синхронизирует запись пользователя и возвращает профиль из БД.
func (h *APIHandler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "требуется аутентификация")
		return
	}

	user, err := h.syncPrincipal(r, p)
	if err != nil {
		if errors.Is(err, service.ErrConflict) {
			apierrors.Conflict(w, err.Error())
			return
		}
		h.logger.Error("Ошибка синхронизации пользователя", "user_id", p.Sub, "error", err)
		apierrors.InternalError(w, "Ошибка синхронизации пользователя")
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}

// UpdateMyProfile — PUT /api/v1/users/me/profile.
// Синхронизирует запись, затем частично обновляет бизнес-поля профиля.
func (h *APIHandler) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "требуется аутентификация")
		return
	}

	var req userUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	if _, err := h.syncPrincipal(r, p); err != nil {
		if errors.Is(err, service.ErrConflict) {
			apierrors.Conflict(w, err.Error())
			return
		}
		h.logger.Error("Ошибка синхронизации пользователя", "user_id", p.Sub, "error", err)
		apierrors.InternalError(w, "Ошибка синхронизации пользователя")
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), p.Sub, &model.UserUpdate{
		Company:     req.Company,
		Position:    req.Position,
		Phone:       req.Phone,
		Address:     req.Address,
		ProfileData: req.ProfileData,
	})
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Пользователь не найден")
			return
		}
		h.logger.Error("Ошибка обновления профиля", "user_id", p.Sub, "error", err)
		apierrors.InternalError(w, "Ошибка обновления профиля")
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}

// ListUsers — GET /api/v1/users.
// Возвращает список пользователей. Доступ: realm-роль admin
// (проверяется guard'ом маршрута).
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, skip := paginationFromQuery(r)

	users, err := h.users.List(r.Context(), limit, skip)
	if err != nil {
		h.logger.Error("Ошибка получения списка пользователей", "error", err)
		apierrors.InternalError(w, "Ошибка получения списка пользователей")
		return
	}

	result := make([]userResponse, len(users))
	for i, u := range users {
		result[i] = mapUser(u)
	}
	writeJSON(w, http.StatusOK, result)
}

// GetUser — GET /api/v1/users/{id}.
// Возвращает пользователя по ID. Доступ: realm-роль admin.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Пользователь не найден")
			return
		}
		h.logger.Error("Ошибка получения пользователя", "user_id", id, "error", err)
		apierrors.InternalError(w, "Ошибка получения пользователя")
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}
