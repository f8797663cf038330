package repository

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/arturkryukov/itemstore/backend-module/internal/config"
	"github.com/arturkryukov/itemstore/backend-module/internal/database"
	"github.com/arturkryukov/itemstore/backend-module/internal/domain/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool и функцию очистки.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("itemstore_test"),
		postgres.WithUsername("itemstore"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("BM_DB_HOST", host)
	os.Setenv("BM_DB_PORT", port.Port())
	os.Setenv("BM_DB_NAME", "itemstore_test")
	os.Setenv("BM_DB_USER", "itemstore")
	os.Setenv("BM_DB_PASSWORD", "test-password")
	os.Setenv("BM_DB_SSL_MODE", "disable")
	os.Setenv("BM_KEYCLOAK_URL", "http://localhost:8080")
	os.Setenv("BM_KEYCLOAK_CLIENT_ID", "test")
	os.Setenv("BM_KEYCLOAK_CLIENT_SECRET", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func strPtr(s string) *string { return &s }

// --- Тесты UserRepository ---

func TestUserSync(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	sub := uuid.New().String()

	// Первая синхронизация — создание записи
	user, err := repo.Sync(ctx, &model.UserSync{
		ID:       sub,
		Username: "alice",
		Email:    strPtr("alice@kryukov.lan"),
	})
	if err != nil {
		t.Fatalf("Sync() ошибка: %v", err)
	}
	if user.ID != sub {
		t.Errorf("ID = %q, хотели %q", user.ID, sub)
	}
	if user.Username != "alice" {
		t.Errorf("Username = %q, хотели alice", user.Username)
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	// Заполняем бизнес-поля
	user.Company = strPtr("Итемстор")
	user.Phone = strPtr("+7 900 000-00-00")
	if err := repo.Update(ctx, user); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}

	// Повторная синхронизация с новым username — бизнес-поля сохраняются
	user2, err := repo.Sync(ctx, &model.UserSync{
		ID:       sub,
		Username: "alice-renamed",
		Email:    strPtr("alice@kryukov.lan"),
	})
	if err != nil {
		t.Fatalf("Sync() повторный ошибка: %v", err)
	}
	if user2.Username != "alice-renamed" {
		t.Errorf("Username = %q, хотели alice-renamed", user2.Username)
	}
	if user2.Company == nil || *user2.Company != "Итемстор" {
		t.Errorf("Company = %v, бизнес-поле не должно затираться синхронизацией", user2.Company)
	}
	if !user2.CreatedAt.Equal(user.CreatedAt) {
		t.Errorf("CreatedAt изменился при повторной синхронизации")
	}
}

func TestUserSync_NilEmail(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	sub := uuid.New().String()
	user, err := repo.Sync(ctx, &model.UserSync{ID: sub, Username: "svc-" + sub})
	if err != nil {
		t.Fatalf("Sync() ошибка: %v", err)
	}
	if user.Email != nil {
		t.Errorf("Email = %v, хотели nil", user.Email)
	}
}

func TestUserGetUpdateList(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	sub := uuid.New().String()
	if _, err := repo.Sync(ctx, &model.UserSync{ID: sub, Username: "bob-" + sub}); err != nil {
		t.Fatalf("Sync() ошибка: %v", err)
	}

	// GetByID
	user, err := repo.GetByID(ctx, sub)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}

	// Update с profile_data
	user.Position = strPtr("инженер")
	user.ProfileData = map[string]any{"telegram": "@bob", "floor": float64(3)}
	if err := repo.Update(ctx, user); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}

	got, err := repo.GetByID(ctx, sub)
	if err != nil {
		t.Fatalf("GetByID() после Update ошибка: %v", err)
	}
	if got.Position == nil || *got.Position != "инженер" {
		t.Errorf("Position = %v, хотели инженер", got.Position)
	}
	if got.ProfileData["telegram"] != "@bob" {
		t.Errorf("ProfileData = %v", got.ProfileData)
	}

	// List
	list, err := repo.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) == 0 {
		t.Error("List() вернул пустой список")
	}

	// GetByID несуществующего
	if _, err := repo.GetByID(ctx, uuid.New().String()); err != ErrNotFound {
		t.Errorf("GetByID() неизвестного: %v, хотели ErrNotFound", err)
	}
}

// --- Тесты ItemRepository ---

func TestItemCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewItemRepository(pool)

	owner := uuid.New().String()
	item := &model.Item{
		Title:       "Первый item",
		Description: strPtr("описание"),
		OwnerID:     owner,
	}

	// Create
	if err := repo.Create(ctx, item); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if item.ID == 0 {
		t.Error("ID не установлен после Create")
	}

	// GetByID
	got, err := repo.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Title != "Первый item" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.OwnerID != owner {
		t.Errorf("OwnerID = %q, хотели %q", got.OwnerID, owner)
	}

	// Update
	item.Title = "Обновлённый item"
	item.Description = nil
	if err := repo.Update(ctx, item); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	got2, _ := repo.GetByID(ctx, item.ID)
	if got2.Title != "Обновлённый item" || got2.Description != nil {
		t.Errorf("После Update: Title=%q, Description=%v", got2.Title, got2.Description)
	}

	// Delete
	if err := repo.Delete(ctx, item.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := repo.GetByID(ctx, item.ID); err != ErrNotFound {
		t.Errorf("После Delete ожидали ErrNotFound, получили: %v", err)
	}
	if err := repo.Delete(ctx, item.ID); err != ErrNotFound {
		t.Errorf("Повторный Delete: %v, хотели ErrNotFound", err)
	}
}

func TestItemListByOwner(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewItemRepository(pool)

	owner1 := uuid.New().String()
	owner2 := uuid.New().String()

	for i, owner := range []string{owner1, owner1, owner2} {
		item := &model.Item{Title: "item", OwnerID: owner}
		if err := repo.Create(ctx, item); err != nil {
			t.Fatalf("Create() #%d ошибка: %v", i, err)
		}
	}

	list1, err := repo.ListByOwner(ctx, owner1, 10, 0)
	if err != nil {
		t.Fatalf("ListByOwner() ошибка: %v", err)
	}
	if len(list1) != 2 {
		t.Errorf("ListByOwner(owner1) вернул %d, хотели 2", len(list1))
	}
	for _, it := range list1 {
		if it.OwnerID != owner1 {
			t.Errorf("чужой item в выдаче: owner = %q", it.OwnerID)
		}
	}

	// Пагинация
	page, err := repo.ListByOwner(ctx, owner1, 1, 1)
	if err != nil {
		t.Fatalf("ListByOwner() с пагинацией ошибка: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("пагинация: вернул %d, хотели 1", len(page))
	}

	all, err := repo.List(ctx, 100, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(all) < 3 {
		t.Errorf("List() вернул %d, хотели >= 3", len(all))
	}
}
