// Пакет server — HTTP-сервер Backend Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/arturkryukov/itemstore/backend-module/internal/api/handlers"
	"github.com/arturkryukov/itemstore/backend-module/internal/api/middleware"
	"github.com/arturkryukov/itemstore/backend-module/internal/config"
	"github.com/arturkryukov/itemstore/backend-module/internal/domain/rbac"
)

// Server — HTTP-сервер Backend Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// auth — middleware интроспекции (может быть nil для тестирования без auth).
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, auth *middleware.KeycloakAuth) *Server {
	router := NewRouter(cfg, logger, handler, auth)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер с middleware и таблицей маршрутов.
// Вынесен отдельно для использования в тестах без запуска сервера.
func NewRouter(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, auth *middleware.KeycloakAuth) chi.Router {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Интроспекция токенов с исключениями для публичных endpoints.
	// Health и metrics проверяются Kubernetes напрямую, без API Gateway.
	if auth != nil {
		router.Use(authWithExclusions(auth, "/health/", "/metrics"))
	}

	// Публичные endpoints
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)

	// Guard admin-маршрутов: realm-роль admin, отказ — 403
	requireAdmin := middleware.RequireRealmRoles(rbac.ModeAny, "admin")

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", handler.ListItems)
			r.Post("/", handler.CreateItem)
			r.Get("/me", handler.ListOwnItems)
			r.With(requireAdmin).Get("/admin/all", handler.ListAllItemsAdmin)
			r.Get("/{id}", handler.GetItem)
			r.Put("/{id}", handler.UpdateItem)
			r.Delete("/{id}", handler.DeleteItem)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", handler.GetMe)
			r.Get("/me/profile", handler.GetMyProfile)
			r.Put("/me/profile", handler.UpdateMyProfile)
			r.With(requireAdmin).Get("/", handler.ListUsers)
			r.With(requireAdmin).Get("/{id}", handler.GetUser)
		})
	})

	return router
}

// authWithExclusions оборачивает auth.Middleware(), пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без токена.
func authWithExclusions(auth *middleware.KeycloakAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	authMiddleware := auth.Middleware()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Проверяем, начинается ли путь с исключённого префикса
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			// Применяем интроспекцию токена
			authMiddleware(next).ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
