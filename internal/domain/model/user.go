// Пакет model — доменные модели Backend Module.
package model

import "time"

// User — локальная запись пользователя, синхронизированная с Keycloak.
// Поле ID совпадает с Keycloak sub. Поля Username и Email управляются
// синхронизацией; бизнес-поля (Company, Position, Phone, Address,
// ProfileData) редактируются только самим пользователем.
type User struct {
	ID          string
	Username    string
	Email       *string
	Company     *string
	Position    *string
	Phone       *string
	Address     *string
	ProfileData map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserSync — данные синхронизации из токена Keycloak.
// Применяются upsert'ом при каждом аутентифицированном запросе.
type UserSync struct {
	ID       string
	Username string
	Email    *string
}

// UserUpdate — частичное обновление профиля пользователя.
// nil означает «поле не передано, не менять».
type UserUpdate struct {
	Company     *string
	Position    *string
	Phone       *string
	Address     *string
	ProfileData map[string]any
}

// IsEmpty возвращает true, если ни одно поле не передано.
func (u *UserUpdate) IsEmpty() bool {
	return u.Company == nil && u.Position == nil && u.Phone == nil &&
		u.Address == nil && u.ProfileData == nil
}
