package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/itemstore/backend-module/internal/domain/model"
)

// ItemRepository — интерфейс CRUD для таблицы items.
type ItemRepository interface {
	// Create создаёт item и заполняет item.ID.
	Create(ctx context.Context, item *model.Item) error
	// GetByID возвращает item по ID.
	GetByID(ctx context.Context, id int64) (*model.Item, error)
	// Update сохраняет изменённые поля item.
	Update(ctx context.Context, item *model.Item) error
	// Delete удаляет item по ID.
	Delete(ctx context.Context, id int64) error
	// List возвращает все items с пагинацией (админский обзор).
	List(ctx context.Context, limit, offset int) ([]*model.Item, error)
	// ListByOwner возвращает items владельца с пагинацией.
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Item, error)
}

// itemRepo — реализация ItemRepository.
type itemRepo struct {
	db DBTX
}

// NewItemRepository создаёт репозиторий items.
func NewItemRepository(db DBTX) ItemRepository {
	return &itemRepo{db: db}
}

const itemColumns = `id, title, description, owner_id`

func (r *itemRepo) Create(ctx context.Context, item *model.Item) error {
	query := `
		INSERT INTO items (title, description, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id`

	err := r.db.QueryRow(ctx, query, item.Title, item.Description, item.OwnerID).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("ошибка создания item: %w", err)
	}
	return nil
}

func (r *itemRepo) GetByID(ctx context.Context, id int64) (*model.Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM items WHERE id = $1`, itemColumns)

	item := &model.Item{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&item.ID, &item.Title, &item.Description, &item.OwnerID,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения item: %w", err)
	}
	return item, nil
}

func (r *itemRepo) Update(ctx context.Context, item *model.Item) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE items SET title = $2, description = $3 WHERE id = $1`,
		item.ID, item.Title, item.Description,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *itemRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *itemRepo) List(ctx context.Context, limit, offset int) ([]*model.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM items
		ORDER BY id
		LIMIT $1 OFFSET $2`, itemColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

func (r *itemRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*model.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM items
		WHERE owner_id = $1
		ORDER BY id
		LIMIT $2 OFFSET $3`, itemColumns)

	rows, err := r.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения items владельца: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// scanItems сканирует строки результата в срез items.
func scanItems(rows pgx.Rows) ([]*model.Item, error) {
	var result []*model.Item
	for rows.Next() {
		item := &model.Item{}
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.OwnerID); err != nil {
			return nil, fmt.Errorf("ошибка сканирования item: %w", err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}
