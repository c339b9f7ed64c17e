package postgres

import (
	"context"
	"database/sql"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/repository"
)

type userRepo struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, nom, email, password_hash, type_user, COALESCE(telephone, '') as telephone, created_at, updated_at`

func (r *userRepo) Create(ctx context.Context, user *entity.User) error {
	query := `INSERT INTO users (nom, email, password_hash, type_user, telephone)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		user.Nom, user.Email, user.PasswordHash, user.TypeUser, nullableString(user.Telephone),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return classifyPgError(err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *userRepo) GetByType(ctx context.Context, typeUser entity.TypeUser) ([]entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE type_user = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, typeUser)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []entity.User{}
	for rows.Next() {
		var u entity.User
		if err := rows.Scan(&u.ID, &u.Nom, &u.Email, &u.PasswordHash, &u.TypeUser, &u.Telephone, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *userRepo) scanOne(row *sql.Row) (*entity.User, error) {
	var u entity.User
	err := row.Scan(&u.ID, &u.Nom, &u.Email, &u.PasswordHash, &u.TypeUser, &u.Telephone, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
