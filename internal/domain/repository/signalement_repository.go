package repository

import (
	"context"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
)

type SignalementRepository interface {
	// Create persiste l'agrégat et sa liste de médias (JSON) dans une
	// transaction unique, et renseigne l'ID généré.
	Create(ctx context.Context, s *entity.Signalement) error
	GetByID(ctx context.Context, id int64) (*entity.Signalement, error)
	GetAll(ctx context.Context, statut string) ([]entity.Signalement, error)
	// FindNearby retourne les signalements non supprimés dont la cellule H3
	// est voisine ou dans le rayon donné (mètres).
	FindNearby(ctx context.Context, h3Index string, lat, lon, radius float64) ([]entity.Signalement, error)
	UpdateStatus(ctx context.Context, id int64, statut entity.SignalementStatus) error
	Vote(ctx context.Context, id int64, positif bool, delta int) error
	SoftDelete(ctx context.Context, id int64) error
}
