package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalab/vitalab-backend/internal/domain"
)

type UsersRepo interface {
	Create(ctx context.Context, p CreateUserParams) (*domain.User, error)
	FindActiveByPhone(ctx context.Context, phone string) (*domain.User, error)
	FindActiveByID(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context, keyword string, limit, offset int) ([]domain.User, int64, error)
	Update(ctx context.Context, id int64, req *domain.UpdateUserRequest) (*domain.User, error)
	UpdateAvatar(ctx context.Context, id int64, avatarPath string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SoftDelete(ctx context.Context, id int64) error
}

type CreateUserParams struct {
	PhoneNumber    string
	Email          string
	Nickname       string
	PasswordHash   string
	MembershipType string
	Status         string
	Role           string
}

type usersRepo struct {
	pool *pgxpool.Pool
}

func NewUsersRepo(pool *pgxpool.Pool) UsersRepo {
	return &usersRepo{pool: pool}
}

const userCols = `id, phone_number, email, nickname, password_hash, membership_type,
	COALESCE(avatar_path, ''), status, role, created_at, updated_at, deleted_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.PhoneNumber, &u.Email, &u.Nickname, &u.PasswordHash, &u.MembershipType,
		&u.AvatarPath, &u.Status, &u.Role, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *usersRepo) Create(ctx context.Context, p CreateUserParams) (*domain.User, error) {
	const q = `
		INSERT INTO users (phone_number, email, nickname, password_hash, membership_type, status, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanUser(r.pool.QueryRow(ctx, q,
		p.PhoneNumber, p.Email, p.Nickname, p.PasswordHash, p.MembershipType, p.Status, p.Role,
	))
}

func (r *usersRepo) FindActiveByPhone(ctx context.Context, phone string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE phone_number = $1 AND deleted_at IS NULL`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, phone))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *usersRepo) FindActiveByID(ctx context.Context, id int64) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = $1 AND deleted_at IS NULL`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *usersRepo) List(ctx context.Context, keyword string, limit, offset int) ([]domain.User, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
		SELECT ` + userCols + `, count(*) OVER () AS total
		FROM users
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR phone_number ILIKE '%' || $1 || '%'
		       OR nickname ILIKE '%' || $1 || '%'
		       OR email ILIKE '%' || $1 || '%')
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, keyword, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []domain.User
	var total int64
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(
			&u.ID, &u.PhoneNumber, &u.Email, &u.Nickname, &u.PasswordHash, &u.MembershipType,
			&u.AvatarPath, &u.Status, &u.Role, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}

	return users, total, rows.Err()
}

func (r *usersRepo) Update(ctx context.Context, id int64, req *domain.UpdateUserRequest) (*domain.User, error) {
	const q = `
		UPDATE users
		SET
			email = COALESCE($2, email),
			nickname = COALESCE($3, nickname),
			membership_type = COALESCE($4, membership_type),
			status = COALESCE($5, status),
			role = COALESCE($6, role),
			updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id, req.Email, req.Nickname, req.MembershipType, req.Status, req.Role))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *usersRepo) UpdateAvatar(ctx context.Context, id int64, avatarPath string) error {
	const q = `UPDATE users SET avatar_path = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, avatarPath)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *usersRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, passwordHash)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *usersRepo) SoftDelete(ctx context.Context, id int64) error {
	const q = `UPDATE users SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
