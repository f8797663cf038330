// Точка входа Backend Module — бэкенд системы Itemstore.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует клиент интроспекции Keycloak, создаёт сервисный слой и
// API handlers, запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/arturkryukov/itemstore/backend-module/internal/api/handlers"
	"github.com/arturkryukov/itemstore/backend-module/internal/api/middleware"
	"github.com/arturkryukov/itemstore/backend-module/internal/config"
	"github.com/arturkryukov/itemstore/backend-module/internal/database"
	"github.com/arturkryukov/itemstore/backend-module/internal/keycloak"
	"github.com/arturkryukov/itemstore/backend-module/internal/repository"
	"github.com/arturkryukov/itemstore/backend-module/internal/server"
	"github.com/arturkryukov/itemstore/backend-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Backend Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждение о дефолтном значении topologymetrics
	if os.Getenv("BM_DEPHEALTH_GROUP") == "" {
		logger.Warn("BM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL будет идти через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиент интроспекции токенов Keycloak
	kcClient := keycloak.New(
		cfg.IntrospectionEndpoint(),
		cfg.DiscoveryEndpoint(),
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		cfg.IntrospectionTimeout,
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 6. Repositories
	userRepo := repository.NewUserRepository(pool)
	itemRepo := repository.NewItemRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 7. Services
	usersSvc := service.NewUserService(userRepo, txRunner, logger)
	itemsSvc := service.NewItemService(itemRepo, logger)

	// 8. Readiness checkers (PostgreSQL + Keycloak)
	pgChecker := database.NewReadinessChecker(pool)
	healthHandler := handlers.NewHealthHandler(pgChecker, kcClient)

	// 9. API handler
	apiHandler := handlers.NewAPIHandler(healthHandler, itemsSvc, usersSvc, logger)

	// 10. Middleware интроспекции токенов
	auth := middleware.NewKeycloakAuth(kcClient, logger)
	logger.Info("Middleware интроспекции инициализирован",
		slog.String("endpoint", cfg.IntrospectionEndpoint()),
		slog.String("timeout", cfg.IntrospectionTimeout.String()),
	)

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + Keycloak)
	var dephealthSvc *service.DephealthService
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"backend-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DiscoveryEndpoint(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, auth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Graceful shutdown фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Backend Module остановлен")
}
