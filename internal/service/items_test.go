package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/arturkryukov/itemstore/backend-module/internal/domain/model"
	"github.com/arturkryukov/itemstore/backend-module/internal/repository"
)

// testLogger возвращает логгер для тестов (только ошибки).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeItemRepo — in-memory реализация repository.ItemRepository.
// updateCalls считает обращения к Update для проверки no-op путей.
type fakeItemRepo struct {
	items       map[int64]*model.Item
	nextID      int64
	updateCalls int
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[int64]*model.Item), nextID: 1}
}

func (f *fakeItemRepo) Create(_ context.Context, item *model.Item) error {
	item.ID = f.nextID
	f.nextID++
	copied := *item
	f.items[item.ID] = &copied
	return nil
}

func (f *fakeItemRepo) GetByID(_ context.Context, id int64) (*model.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (f *fakeItemRepo) Update(_ context.Context, item *model.Item) error {
	f.updateCalls++
	if _, ok := f.items[item.ID]; !ok {
		return repository.ErrNotFound
	}
	copied := *item
	f.items[item.ID] = &copied
	return nil
}

func (f *fakeItemRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeItemRepo) List(_ context.Context, limit, offset int) ([]*model.Item, error) {
	var all []*model.Item
	for id := int64(1); id < f.nextID; id++ {
		if item, ok := f.items[id]; ok {
			copied := *item
			all = append(all, &copied)
		}
	}
	return paginate(all, limit, offset), nil
}

func (f *fakeItemRepo) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]*model.Item, error) {
	var own []*model.Item
	for id := int64(1); id < f.nextID; id++ {
		if item, ok := f.items[id]; ok && item.OwnerID == ownerID {
			copied := *item
			own = append(own, &copied)
		}
	}
	return paginate(own, limit, offset), nil
}

func paginate(items []*model.Item, limit, offset int) []*model.Item {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

func strPtr(s string) *string { return &s }

func TestItemCreate_OwnerForced(t *testing.T) {
	svc := NewItemService(newFakeItemRepo(), testLogger())

	item, err := svc.Create(context.Background(), "u1-sub", &model.ItemCreate{
		Title:       "мой item",
		Description: strPtr("описание"),
	})
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if item.ID == 0 {
		t.Error("ID не установлен")
	}
	if item.OwnerID != "u1-sub" {
		t.Errorf("OwnerID = %q, хотели u1-sub", item.OwnerID)
	}
}

func TestItemCreate_Validation(t *testing.T) {
	svc := NewItemService(newFakeItemRepo(), testLogger())

	tests := []struct {
		name  string
		title string
	}{
		{name: "пустой title", title: ""},
		{name: "только пробелы", title: "   "},
		{name: "слишком длинный title", title: strings.Repeat("x", 256)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "u1-sub", &model.ItemCreate{Title: tt.title})
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Create() = %v, ожидается ErrValidation", err)
			}
		})
	}
}

func TestItemGet(t *testing.T) {
	repo := newFakeItemRepo()
	svc := NewItemService(repo, testLogger())
	ctx := context.Background()

	item, _ := svc.Create(ctx, "u1-sub", &model.ItemCreate{Title: "item u1"})

	// Чтение по ID доступно любому аутентифицированному субъекту
	got, err := svc.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.ID != item.ID {
		t.Errorf("ID = %d, хотели %d", got.ID, item.ID)
	}

	if _, err := svc.Get(ctx, 99999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() несуществующего = %v, ожидается ErrNotFound", err)
	}
}

func TestItemList_AllItemsFallback(t *testing.T) {
	repo := newFakeItemRepo()
	svc := NewItemService(repo, testLogger())
	ctx := context.Background()

	svc.Create(ctx, "u1-sub", &model.ItemCreate{Title: "item 1"})
	svc.Create(ctx, "u1-sub", &model.ItemCreate{Title: "item 2"})
	svc.Create(ctx, "u2-sub", &model.ItemCreate{Title: "item 3"})

	// Обычный пользователь: только свои
	own, err := svc.List(ctx, "u1-sub", false, false, 100, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(own) != 2 {
		t.Errorf("List() вернул %d, хотели 2", len(own))
	}

	// all_items=true без роли admin — молча игнорируется
	fallback, err := svc.List(ctx, "u1-sub", false, true, 100, 0)
	if err != nil {
		t.Fatalf("List() с allItems ошибка: %v", err)
	}
	if len(fallback) != 2 {
		t.Errorf("List() с allItems без прав вернул %d, хотели 2 (только свои)", len(fallback))
	}

	// Администратор с all_items=true — все items
	all, err := svc.List(ctx, "admin-sub", true, true, 100, 0)
	if err != nil {
		t.Fatalf("List() администратором ошибка: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() администратором вернул %d, хотели 3", len(all))
	}

	// Администратор без all_items — только свои (ноль)
	adminOwn, err := svc.List(ctx, "admin-sub", true, false, 100, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(adminOwn) != 0 {
		t.Errorf("List() администратором без allItems вернул %d, хотели 0", len(adminOwn))
	}
}

func TestItemListOwn_Pagination(t *testing.T) {
	repo := newFakeItemRepo()
	svc := NewItemService(repo, testLogger())
	ctx := context.Background()

	for range 5 {
		svc.Create(ctx, "u1-sub", &model.ItemCreate{Title: "item"})
	}

	page, err := svc.ListOwn(ctx, "u1-sub", 2, 2)
	if err != nil {
		t.Fatalf("ListOwn() ошибка: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("ListOwn() вернул %d, хотели 2", len(page))
	}
}

func TestItemUpdate_PartialAndOwnership(t *testing.T) {
	repo := newFakeItemRepo()
	svc := NewItemService(repo, testLogger())
	ctx := context.Background()

	item, _ := svc.Create(ctx, "u1-sub", &model.ItemCreate{
		Title:       "исходный",
		Description: strPtr("описание"),
	})

	// Частичное обновление: только title, description сохраняется
	updated, err := svc.Update(ctx, "u1-sub", item.ID, &model.ItemUpdate{
		Title: strPtr("новый title"),
	})
	if err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	if updated.Title != "новый title" {
		t.Errorf("Title = %q", updated.Title)
	}
	if updated.Description == nil || *updated.Description != "описание" {
		t.Errorf("Description = %v, не должен меняться", updated.Description)
	}

	// Пустое обновление — no-op: item возвращается как есть,
	// запись в хранилище не выполняется
	writesBefore := repo.updateCalls
	same, err := svc.Update(ctx, "u1-sub", item.ID, &model.ItemUpdate{})
	if err != nil {
		t.Fatalf("Update() пустой ошибка: %v", err)
	}
	if same.Title != "новый title" {
		t.Errorf("Title = %q после пустого обновления", same.Title)
	}
	if repo.updateCalls != writesBefore {
		t.Error("пустое обновление не должно писать в хранилище")
	}

	// Пустое обновление чужого item всё равно ErrNotFound
	if _, err := svc.Update(ctx, "u2-sub", item.ID, &model.ItemUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("пустой Update() чужого = %v, ожидается ErrNotFound", err)
	}

	// Валидация нового title
	if _, err := svc.Update(ctx, "u1-sub", item.ID, &model.ItemUpdate{Title: strPtr("")}); !errors.Is(err, ErrValidation) {
		t.Errorf("Update() с пустым title = %v, ожидается ErrValidation", err)
	}

	// Чужой item — ErrNotFound, хранилище не меняется
	if _, err := svc.Update(ctx, "u2-sub", item.ID, &model.ItemUpdate{Title: strPtr("взлом")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() чужого = %v, ожидается ErrNotFound", err)
	}
	got, _ := svc.Get(ctx, item.ID)
	if got.Title != "новый title" {
		t.Errorf("Title = %q, чужое обновление не должно применяться", got.Title)
	}

	// Несуществующий item — тот же ErrNotFound
	if _, err := svc.Update(ctx, "u1-sub", 99999, &model.ItemUpdate{Title: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() несуществующего = %v, ожидается ErrNotFound", err)
	}
}

func TestItemDelete_Ownership(t *testing.T) {
	repo := newFakeItemRepo()
	svc := NewItemService(repo, testLogger())
	ctx := context.Background()

	item, _ := svc.Create(ctx, "u1-sub", &model.ItemCreate{Title: "удаляемый"})

	// Чужой item — ErrNotFound, item остаётся
	if err := svc.Delete(ctx, "u2-sub", item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() чужого = %v, ожидается ErrNotFound", err)
	}
	if _, err := svc.Get(ctx, item.ID); err != nil {
		t.Errorf("item не должен быть удалён: %v", err)
	}

	// Владелец удаляет
	if err := svc.Delete(ctx, "u1-sub", item.ID); err != nil {
		t.Fatalf("Delete() владельцем ошибка: %v", err)
	}
	if _, err := svc.Get(ctx, item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("после Delete: %v, ожидается ErrNotFound", err)
	}

	// Повторное удаление — ErrNotFound
	if err := svc.Delete(ctx, "u1-sub", item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete() = %v, ожидается ErrNotFound", err)
	}
}

func TestItemListAll(t *testing.T) {
	repo := newFakeItemRepo()
	svc := NewItemService(repo, testLogger())
	ctx := context.Background()

	svc.Create(ctx, "u1-sub", &model.ItemCreate{Title: "a"})
	svc.Create(ctx, "u2-sub", &model.ItemCreate{Title: "b"})

	all, err := svc.ListAll(ctx, 100, 0)
	if err != nil {
		t.Fatalf("ListAll() ошибка: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListAll() вернул %d, хотели 2", len(all))
	}
}
