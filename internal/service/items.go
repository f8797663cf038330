// items.go — сервис items: CRUD с проверкой владения.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arturkryukov/itemstore/backend-module/internal/domain/model"
	"github.com/arturkryukov/itemstore/backend-module/internal/repository"
)

// ItemService — сервис items.
//
// Операции изменения принимают subject (Keycloak sub) вызывающего.
// Чужой item неотличим от несуществующего: обе ситуации дают
// ErrNotFound, владение не раскрывается.
type ItemService struct {
	itemRepo repository.ItemRepository
	logger   *slog.Logger
}

// NewItemService создаёт сервис items.
func NewItemService(itemRepo repository.ItemRepository, logger *slog.Logger) *ItemService {
	return &ItemService{
		itemRepo: itemRepo,
		logger:   logger.With(slog.String("component", "item_service")),
	}
}

// validateItemTitle проверяет title при создании и обновлении.
func validateItemTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title не может быть пустым", ErrValidation)
	}
	if len(title) > 255 {
		return fmt.Errorf("%w: title длиннее 255 символов", ErrValidation)
	}
	return nil
}

// Create создаёт item. Владелец всегда — вызывающий субъект;
// owner из входных данных не принимается.
func (s *ItemService) Create(ctx context.Context, subject string, in *model.ItemCreate) (*model.Item, error) {
	if err := validateItemTitle(in.Title); err != nil {
		return nil, err
	}

	item := &model.Item{
		Title:       in.Title,
		Description: in.Description,
		OwnerID:     subject,
	}

	if err := s.itemRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("создание item: %w", err)
	}

	s.logger.Info("Item создан",
		slog.Int64("item_id", item.ID),
		slog.String("owner_id", subject),
	)
	return item, nil
}

// Get возвращает item по ID. Чтение доступно любому аутентифицированному
// субъекту; владение проверяется только при изменении.
func (s *ItemService) Get(ctx context.Context, id int64) (*model.Item, error) {
	item, err := s.itemRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение item: %w", err)
	}
	return item, nil
}

// List возвращает items вызывающего. Субъект с realm-ролью admin и
// allItems=true получает все items; allItems=true без роли admin
// молча игнорируется — возвращаются только собственные items.
func (s *ItemService) List(ctx context.Context, subject string, isAdmin, allItems bool, limit, offset int) ([]*model.Item, error) {
	if allItems && isAdmin {
		items, err := s.itemRepo.List(ctx, limit, offset)
		if err != nil {
			return nil, fmt.Errorf("получение всех items: %w", err)
		}
		return items, nil
	}

	return s.ListOwn(ctx, subject, limit, offset)
}

// ListOwn возвращает items, принадлежащие субъекту.
func (s *ItemService) ListOwn(ctx context.Context, subject string, limit, offset int) ([]*model.Item, error) {
	items, err := s.itemRepo.ListByOwner(ctx, subject, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение items владельца: %w", err)
	}
	return items, nil
}

// ListAll возвращает все items без фильтра по владельцу.
// Проверка роли администратора выполняется на уровне маршрута.
func (s *ItemService) ListAll(ctx context.Context, limit, offset int) ([]*model.Item, error) {
	items, err := s.itemRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение всех items: %w", err)
	}
	return items, nil
}

// Update частично обновляет item вызывающего. nil-поля не затрагиваются.
// Чужой или несуществующий item — ErrNotFound, хранилище не меняется.
func (s *ItemService) Update(ctx context.Context, subject string, id int64, update *model.ItemUpdate) (*model.Item, error) {
	if update.Title != nil {
		if err := validateItemTitle(*update.Title); err != nil {
			return nil, err
		}
	}

	item, err := s.itemRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение item для обновления: %w", err)
	}

	if item.OwnerID != subject {
		return nil, ErrNotFound
	}

	// Пустое обновление — no-op без записи в хранилище
	if update.IsEmpty() {
		return item, nil
	}

	if update.Title != nil {
		item.Title = *update.Title
	}
	if update.Description != nil {
		item.Description = update.Description
	}

	if err := s.itemRepo.Update(ctx, item); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("обновление item: %w", err)
	}

	s.logger.Info("Item обновлён", slog.Int64("item_id", id))
	return item, nil
}

// Delete удаляет item вызывающего.
// Чужой или несуществующий item — ErrNotFound, хранилище не меняется.
func (s *ItemService) Delete(ctx context.Context, subject string, id int64) error {
	item, err := s.itemRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("получение item для удаления: %w", err)
	}

	if item.OwnerID != subject {
		return ErrNotFound
	}

	if err := s.itemRepo.Delete(ctx, item.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("удаление item: %w", err)
	}

	s.logger.Info("Item удалён", slog.Int64("item_id", id))
	return nil
}
