// users.go — сервис пользователей: синхронизация с Keycloak и профили.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/itemstore/backend-module/internal/domain/model"
	"github.com/arturkryukov/itemstore/backend-module/internal/repository"
)

// UserService — сервис пользователей.
//
// Источник истины по идентичности — Keycloak: локальная запись users
// создаётся и обновляется синхронизацией при каждом аутентифицированном
// запросе. Бизнес-поля профиля живут только локально.
type UserService struct {
	userRepo repository.UserRepository
	txRunner *repository.TxRunner
	logger   *slog.Logger
}

// NewUserService создаёт сервис пользователей.
// txRunner может быть nil (тесты без транзакций) — тогда обновление
// профиля выполняется вне транзакции.
func NewUserService(userRepo repository.UserRepository, txRunner *repository.TxRunner, logger *slog.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		txRunner: txRunner,
		logger:   logger.With(slog.String("component", "user_service")),
	}
}

// Sync создаёт или обновляет локальную запись пользователя по данным
// токена. Идемпотентен: повторный вызов с теми же данными ничего не
// меняет. При отсутствии preferred_username используется "unknown".
func (s *UserService) Sync(ctx context.Context, sub, preferredUsername string, email *string) (*model.User, error) {
	username := preferredUsername
	if username == "" {
		username = "unknown"
	}

	user, err := s.userRepo.Sync(ctx, &model.UserSync{
		ID:       sub,
		Username: username,
		Email:    email,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: username или email занят другим пользователем", ErrConflict)
		}
		return nil, fmt.Errorf("синхронизация пользователя: %w", err)
	}

	return user, nil
}

// Get возвращает пользователя по ID (Keycloak sub).
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return user, nil
}

// List возвращает пользователей с пагинацией.
func (s *UserService) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение списка пользователей: %w", err)
	}
	return users, nil
}

// UpdateProfile частично обновляет бизнес-поля профиля пользователя.
// nil-поля update не затрагиваются; переданный ProfileData заменяет
// сохранённый целиком. Чтение и запись выполняются в одной транзакции.
func (s *UserService) UpdateProfile(ctx context.Context, id string, update *model.UserUpdate) (*model.User, error) {
	var result *model.User

	apply := func(repo repository.UserRepository) error {
		user, err := repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("получение пользователя для обновления: %w", err)
		}

		// Пустое обновление — no-op без записи в хранилище
		if update.IsEmpty() {
			result = user
			return nil
		}

		if update.Company != nil {
			user.Company = update.Company
		}
		if update.Position != nil {
			user.Position = update.Position
		}
		if update.Phone != nil {
			user.Phone = update.Phone
		}
		if update.Address != nil {
			user.Address = update.Address
		}
		if update.ProfileData != nil {
			user.ProfileData = update.ProfileData
		}

		if err := repo.Update(ctx, user); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("обновление профиля: %w", err)
		}

		result = user
		return nil
	}

	var err error
	if s.txRunner != nil {
		err = s.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
			return apply(repository.NewUserRepository(tx))
		})
	} else {
		err = apply(s.userRepo)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Профиль пользователя обновлён", slog.String("user_id", id))
	return result, nil
}
