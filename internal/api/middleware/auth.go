// Пакет middleware — HTTP middleware Backend Module:
// аутентификация через интроспекцию токенов Keycloak, проверка ролей,
// логирование запросов и метрики Prometheus.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/arturkryukov/itemstore/backend-module/internal/api/errors"
	"github.com/arturkryukov/itemstore/backend-module/internal/domain/rbac"
	"github.com/arturkryukov/itemstore/backend-module/internal/keycloak"
)

// contextKey — тип ключей контекста пакета middleware.
type contextKey string

const principalKey contextKey = "principal"

// Principal — аутентифицированный субъект запроса.
// Собирается из результата интроспекции токена; отсутствующие claims
// отображаются в нулевые значения.
type Principal struct {
	Sub               string
	PreferredUsername string
	Email             string
	EmailVerified     *bool
	Name              string
	GivenName         string
	FamilyName        string
	Locale            string
	RealmRoles        []string
	ResourceRoles     map[string][]string
}

// HasRealmRoles проверяет realm-роли субъекта.
func (p *Principal) HasRealmRoles(mode rbac.Mode, roles ...string) bool {
	return rbac.HasRoles(p.RealmRoles, roles, mode)
}

// HasClientRoles проверяет роли субъекта в рамках клиента.
func (p *Principal) HasClientRoles(clientID string, mode rbac.Mode, roles ...string) bool {
	return rbac.HasRoles(p.ResourceRoles[clientID], roles, mode)
}

// BuildPrincipal собирает Principal из результата интроспекции.
// Функция тотальна: любой активный токен даёт валидный Principal,
// даже если в нём нет ничего, кроме sub.
func BuildPrincipal(ti *keycloak.TokenIntrospection) *Principal {
	p := &Principal{
		Sub:               ti.Sub,
		PreferredUsername: ti.PreferredUsername,
		Email:             ti.Email,
		EmailVerified:     ti.EmailVerified,
		Name:              ti.Name,
		GivenName:         ti.GivenName,
		FamilyName:        ti.FamilyName,
		Locale:            ti.Locale,
		RealmRoles:        ti.RealmRoles(),
	}
	if len(ti.ResourceAccess) > 0 {
		p.ResourceRoles = make(map[string][]string, len(ti.ResourceAccess))
		for client, access := range ti.ResourceAccess {
			p.ResourceRoles[client] = access.Roles
		}
	}
	return p
}

// Introspector — интерфейс интроспекции токенов (реализуется
// keycloak.Client, в тестах подменяется фейком).
type Introspector interface {
	Introspect(ctx context.Context, token string) (*keycloak.TokenIntrospection, error)
}

// KeycloakAuth — middleware аутентификации через интроспекцию.
type KeycloakAuth struct {
	introspector Introspector
	logger       *slog.Logger
}

// NewKeycloakAuth создаёт middleware аутентификации.
func NewKeycloakAuth(introspector Introspector, logger *slog.Logger) *KeycloakAuth {
	return &KeycloakAuth{
		introspector: introspector,
		logger:       logger.With(slog.String("component", "auth")),
	}
}

// Middleware возвращает HTTP middleware, проверяющее bearer-токен
// каждого запроса через интроспекцию. Отсутствующий, неразборчивый
// или неактивный токен — 401. Недоступный Keycloak — тоже 401:
// fail-closed, без подтверждения интроспекцией запрос не допускается,
// локальных решений о допуске нет.
func (a *KeycloakAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r)
			if !ok {
				apierrors.Unauthorized(w, "требуется bearer-токен")
				return
			}

			ti, err := a.introspector.Introspect(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, keycloak.ErrTokenInactive):
					apierrors.Unauthorized(w, "токен неактивен")
				case errors.Is(err, keycloak.ErrIntrospectionFailed):
					a.logger.Warn("Интроспекция недоступна, запрос отклонён", slog.String("error", err.Error()))
					apierrors.Unauthorized(w, "не удалось проверить токен")
				default:
					a.logger.Error("Неожиданная ошибка интроспекции", slog.String("error", err.Error()))
					apierrors.InternalError(w, "внутренняя ошибка аутентификации")
				}
				return
			}

			if ti.Sub == "" {
				// Активный токен без sub не позволяет установить субъекта
				apierrors.Unauthorized(w, "токен не содержит subject")
				return
			}

			principal := BuildPrincipal(ti)
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken извлекает токен из заголовка Authorization.
// Схема Bearer нечувствительна к регистру.
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

// PrincipalFromContext возвращает Principal из контекста запроса.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// SubjectFromContext возвращает sub аутентифицированного субъекта.
func SubjectFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return "", false
	}
	return p.Sub, true
}

// RequireRealmRoles возвращает middleware, требующее realm-роли.
// Запрос без Principal в контексте — 401, без требуемых ролей — 403.
func RequireRealmRoles(mode rbac.Mode, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				apierrors.Unauthorized(w, "требуется аутентификация")
				return
			}
			if !p.HasRealmRoles(mode, roles...) {
				apierrors.Forbidden(w, "недостаточно прав")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireClientRoles возвращает middleware, требующее роли клиента.
func RequireClientRoles(clientID string, mode rbac.Mode, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				apierrors.Unauthorized(w, "требуется аутентификация")
				return
			}
			if !p.HasClientRoles(clientID, mode, roles...) {
				apierrors.Forbidden(w, "недостаточно прав")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
