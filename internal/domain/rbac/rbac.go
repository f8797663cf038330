// Пакет rbac — проверка ролей пользователя.
//
// Роли извлекаются из результата интроспекции токена Keycloak:
// realm-роли из claim realm_access.roles, клиентские роли из
// resource_access.<client>.roles. Пакет не знает о Keycloak —
// он работает с уже извлечёнными срезами ролей.
package rbac

// Mode — режим сопоставления требуемых ролей.
type Mode int

const (
	// ModeAny — достаточно хотя бы одной требуемой роли.
	ModeAny Mode = iota
	// ModeAll — требуются все перечисленные роли.
	ModeAll
)

// HasRoles проверяет, удовлетворяет ли набор granted требованию required
// в заданном режиме. Пустой required всегда удовлетворён.
func HasRoles(granted, required []string, mode Mode) bool {
	if len(required) == 0 {
		return true
	}

	set := toSet(granted)

	switch mode {
	case ModeAll:
		for _, r := range required {
			if !set[r] {
				return false
			}
		}
		return true
	default: // ModeAny
		for _, r := range required {
			if set[r] {
				return true
			}
		}
		return false
	}
}

// toSet преобразует срез ролей в множество для быстрого поиска.
func toSet(roles []string) map[string]bool {
	set := make(map[string]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return set
}
