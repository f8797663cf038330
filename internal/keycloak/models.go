package keycloak

// TokenIntrospection — ответ Keycloak на запрос интроспекции токена
// (RFC 7662). Все поля кроме Active опциональны: для неактивного
// токена Keycloak возвращает только {"active": false}.
type TokenIntrospection struct {
	Active            bool                    `json:"active"`
	Sub               string                  `json:"sub,omitempty"`
	Email             string                  `json:"email,omitempty"`
	EmailVerified     *bool                   `json:"email_verified,omitempty"`
	PreferredUsername string                  `json:"preferred_username,omitempty"`
	Name              string                  `json:"name,omitempty"`
	GivenName         string                  `json:"given_name,omitempty"`
	FamilyName        string                  `json:"family_name,omitempty"`
	Locale            string                  `json:"locale,omitempty"`
	Scope             string                  `json:"scope,omitempty"`
	ClientID          string                  `json:"client_id,omitempty"`
	TokenType         string                  `json:"token_type,omitempty"`
	Exp               int64                   `json:"exp,omitempty"`
	Iat               int64                   `json:"iat,omitempty"`
	RealmAccess       *RealmAccess            `json:"realm_access,omitempty"`
	ResourceAccess    map[string]ClientAccess `json:"resource_access,omitempty"`
}

// RealmAccess — realm-роли пользователя.
type RealmAccess struct {
	Roles []string `json:"roles"`
}

// ClientAccess — роли пользователя в рамках одного клиента.
type ClientAccess struct {
	Roles []string `json:"roles"`
}

// RealmRoles возвращает realm-роли пользователя.
// Отсутствующий claim трактуется как пустой набор ролей.
func (t *TokenIntrospection) RealmRoles() []string {
	if t.RealmAccess == nil {
		return nil
	}
	return t.RealmAccess.Roles
}

// ClientRoles возвращает роли пользователя для указанного клиента.
// Отсутствующий claim трактуется как пустой набор ролей.
func (t *TokenIntrospection) ClientRoles(clientID string) []string {
	access, ok := t.ResourceAccess[clientID]
	if !ok {
		return nil
	}
	return access.Roles
}
