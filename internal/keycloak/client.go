// Пакет keycloak — клиент интроспекции токенов Keycloak (RFC 7662).
//
// Backend Module не валидирует подпись токена локально: каждый
// bearer-токен отправляется на introspection endpoint realm'а.
// Решение о допуске принимается строго по ответу Keycloak (fail-closed).
package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrIntrospectionFailed — Keycloak недоступен или вернул
	// неожиданный ответ. Fail-closed: транслируется в 401.
	ErrIntrospectionFailed = errors.New("интроспекция токена недоступна")
	// ErrTokenInactive — Keycloak сообщил, что токен неактивен
	// (истёк, отозван или неизвестен). Транслируется в 401.
	ErrTokenInactive = errors.New("токен неактивен")
)

// Client — HTTP-клиент интроспекции токенов.
// Аутентифицируется на Keycloak через HTTP Basic (client credentials
// confidential-клиента).
type Client struct {
	introspectionURL string
	discoveryURL     string
	clientID         string
	clientSecret     string
	httpClient       *http.Client
	logger           *slog.Logger
}

// New создаёт клиент интроспекции.
// timeout ограничивает каждый запрос к Keycloak (fail-closed).
func New(introspectionURL, discoveryURL, clientID, clientSecret string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		introspectionURL: introspectionURL,
		discoveryURL:     discoveryURL,
		clientID:         clientID,
		clientSecret:     clientSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(slog.String("component", "keycloak")),
	}
}

// Introspect проверяет access token через introspection endpoint.
// Возвращает claims активного токена. Для неактивного токена возвращает
// ErrTokenInactive, при недоступности Keycloak — ErrIntrospectionFailed.
func (c *Client) Introspect(ctx context.Context, token string) (*TokenIntrospection, error) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.introspectionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса интроспекции: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Запрос интроспекции не выполнен", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrIntrospectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Error("Интроспекция вернула неожиданный статус",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return nil, fmt.Errorf("%w: статус %d", ErrIntrospectionFailed, resp.StatusCode)
	}

	var result TokenIntrospection
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: ошибка декодирования ответа: %v", ErrIntrospectionFailed, err)
	}

	if !result.Active {
		return nil, ErrTokenInactive
	}

	return &result, nil
}

// CheckReady проверяет доступность Keycloak через OIDC discovery
// документ realm'а. Используется в readiness-проверке.
func (c *Client) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.discoveryURL, nil)
	if err != nil {
		return "fail", fmt.Sprintf("ошибка создания запроса: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "fail", fmt.Sprintf("Keycloak недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "fail", fmt.Sprintf("Keycloak вернул статус %d", resp.StatusCode)
	}
	return "ok", "discovery документ доступен"
}
