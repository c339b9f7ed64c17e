package repository

import (
	"context"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	// GetByType retourne tous les utilisateurs d'une variante (ex: modérateurs).
	GetByType(ctx context.Context, typeUser entity.TypeUser) ([]entity.User, error)
}
