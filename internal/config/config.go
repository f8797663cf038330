// Пакет config — загрузка и валидация конфигурации Backend Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Backend Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Разрешённые CORS origins (для фронтенда)
	CORSOrigins []string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Keycloak ---

	// URL Keycloak (например, https://keycloak.kryukov.lan)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Client ID confidential-клиента для интроспекции токенов
	KeycloakClientID string
	// Client Secret confidential-клиента
	KeycloakClientSecret string
	// Таймаут запроса интроспекции (fail-closed: по истечении — 401)
	IntrospectionTimeout time.Duration

	// --- Мониторинг зависимостей ---

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// BM_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("BM_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("BM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("BM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// BM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("BM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("BM_LOG_LEVEL: %w", err)
	}

	// BM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("BM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("BM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// BM_CORS_ORIGINS — разрешённые origins (по умолчанию фронтенд на localhost)
	cfg.CORSOrigins = parseCSV(getEnvDefault("BM_CORS_ORIGINS", "http://localhost:3000"))

	// --- PostgreSQL ---

	// BM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("BM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// BM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("BM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("BM_DB_PORT: %w", err)
	}

	// BM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("BM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// BM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("BM_DB_USER")
	if err != nil {
		return nil, err
	}

	// BM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("BM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// BM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("BM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("BM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Keycloak ---

	// BM_KEYCLOAK_URL — обязательный
	cfg.KeycloakURL, err = getEnvRequired("BM_KEYCLOAK_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	// BM_KEYCLOAK_REALM — realm (по умолчанию itemstore)
	cfg.KeycloakRealm = getEnvDefault("BM_KEYCLOAK_REALM", "itemstore")

	// BM_KEYCLOAK_CLIENT_ID — обязательный
	cfg.KeycloakClientID, err = getEnvRequired("BM_KEYCLOAK_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	// BM_KEYCLOAK_CLIENT_SECRET — обязательный
	cfg.KeycloakClientSecret, err = getEnvRequired("BM_KEYCLOAK_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	// BM_INTROSPECTION_TIMEOUT — таймаут интроспекции (по умолчанию 10s)
	cfg.IntrospectionTimeout, err = getEnvDuration("BM_INTROSPECTION_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BM_INTROSPECTION_TIMEOUT: %w", err)
	}

	// --- Мониторинг зависимостей ---

	// BM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("BM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// BM_DEPHEALTH_GROUP — имя группы в метриках (по умолчанию itemstore)
	cfg.DephealthGroup = getEnvDefault("BM_DEPHEALTH_GROUP", "itemstore")

	// --- Graceful shutdown ---

	// BM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("BM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL
// (используется для лейблов метрик topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IntrospectionEndpoint возвращает URL endpoint'а интроспекции токенов Keycloak.
func (c *Config) IntrospectionEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect",
		c.KeycloakURL, c.KeycloakRealm)
}

// DiscoveryEndpoint возвращает URL OIDC discovery документа realm.
// Используется для readiness-проверки доступности Keycloak.
func (c *Config) DiscoveryEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/.well-known/openid-configuration",
		c.KeycloakURL, c.KeycloakRealm)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
