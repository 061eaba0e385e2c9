package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"task-board/internal/domain"
	"task-board/internal/repository"
)

// ErrUserExists is returned when the email is already registered.
var ErrUserExists = errors.New("user already exists")

type UserRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewUserRepository(db *sql.DB, dialect Dialect) repository.UserRepository {
	return &UserRepository{db: db, dialect: dialect}
}

func (r *UserRepository) Init(ctx context.Context) error {
	if err := execAll(ctx, r.db, r.dialect.usersSchema); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (int64, error) {
	user.CreatedAt = time.Now().UTC()

	const insert = `
INSERT INTO users (email, password_hash, created_at)
VALUES (?, ?, ?)`

	var id int64
	if r.dialect.returning {
		err := r.db.QueryRowContext(ctx, r.dialect.Rebind(insert+` RETURNING id`),
			user.Email,
			user.PasswordHash,
			user.CreatedAt,
		).Scan(&id)
		if err != nil {
			return 0, r.insertError(err)
		}
	} else {
		res, err := r.db.ExecContext(ctx, r.dialect.Rebind(insert),
			user.Email,
			user.PasswordHash,
			user.CreatedAt,
		)
		if err != nil {
			return 0, r.insertError(err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("user last insert id: %w", err)
		}
	}

	user.ID = id
	return id, nil
}

func (r *UserRepository) insertError(err error) error {
	if r.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrUserExists, err)
	}
	return fmt.Errorf("insert user: %w", err)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(`
SELECT id, email, password_hash, created_at
FROM users
WHERE email = ?`),
		email,
	)
	return scanUser(row)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(`
SELECT id, email, password_hash, created_at
FROM users
WHERE id = ?`),
		id,
	)
	return scanUser(row)
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}
