package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/itemstore/backend-module/internal/domain/model"
)

// UserRepository — интерфейс доступа к таблице users.
type UserRepository interface {
	// Sync создаёт или обновляет запись пользователя по данным токена.
	// Бизнес-поля (company, position и т.д.) не затрагиваются.
	Sync(ctx context.Context, sync *model.UserSync) (*model.User, error)
	// GetByID возвращает пользователя по ID (Keycloak sub).
	GetByID(ctx context.Context, id string) (*model.User, error)
	// Update обновляет бизнес-поля пользователя.
	Update(ctx context.Context, user *model.User) error
	// List возвращает пользователей с пагинацией.
	List(ctx context.Context, limit, offset int) ([]*model.User, error)
}

// userRepo — реализация UserRepository.
type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
// db может быть пулом или транзакцией.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, username, email, company, position, phone, address, profile_data, created_at, updated_at`

func (r *userRepo) Sync(ctx context.Context, sync *model.UserSync) (*model.User, error) {
	// Один upsert: идемпотентен и безопасен при конкурентных запросах
	// одного пользователя. Бизнес-поля не перечислены в SET и не трогаются.
	query := fmt.Sprintf(`
		INSERT INTO users (id, username, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			updated_at = now()
		RETURNING %s`, userColumns)

	user := &model.User{}
	err := r.db.QueryRow(ctx, query, sync.ID, sync.Username, sync.Email).Scan(
		&user.ID, &user.Username, &user.Email,
		&user.Company, &user.Position, &user.Phone, &user.Address,
		&user.ProfileData, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Username или email занят другой записью users
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("ошибка синхронизации пользователя: %w", err)
	}
	return user, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	user := &model.User{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email,
		&user.Company, &user.Position, &user.Phone, &user.Address,
		&user.ProfileData, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return user, nil
}

func (r *userRepo) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users SET
			company = $2,
			position = $3,
			phone = $4,
			address = $5,
			profile_data = $6,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		user.ID, user.Company, user.Position, user.Phone, user.Address, user.ProfileData,
	).Scan(&user.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, userColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(
			&user.ID, &user.Username, &user.Email,
			&user.Company, &user.Position, &user.Phone, &user.Address,
			&user.ProfileData, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, user)
	}
	return result, rows.Err()
}
