package repository

import (
	"context"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
)

type NotificationRepository interface {
	// GetPreferences retourne les préférences de l'utilisateur, en les créant
	// avec les valeurs par défaut si elles n'existent pas encore.
	GetPreferences(ctx context.Context, userID int64) (*entity.NotificationPreferences, error)
	UpdatePreferences(ctx context.Context, prefs *entity.NotificationPreferences) error

	// FindLocationSubscribers retourne les utilisateurs ayant activé les
	// alertes de proximité et dont le point de référence est à moins de leur
	// propre rayon (km) du point donné.
	FindLocationSubscribers(ctx context.Context, lat, lon float64) ([]int64, error)

	// AppendHistory ajoute une ligne d'historique (append-only).
	AppendHistory(ctx context.Context, h *entity.NotificationHistory) error
	ListHistory(ctx context.Context, userID int64, limit int) ([]entity.NotificationHistory, error)
	MarkRead(ctx context.Context, userID, notificationID int64) error
	MarkClicked(ctx context.Context, userID, notificationID int64) error

	// InsertRealtime insère la ligne qui déclenche la livraison temps réel.
	InsertRealtime(ctx context.Context, n *entity.RealtimeNotification) error
}

type DeviceTokenRepository interface {
	// Register enregistre un jeton et désactive l'éventuel jeton actif
	// précédent du même couple (user, device_id).
	Register(ctx context.Context, t *entity.DeviceToken) error
	GetActiveByUser(ctx context.Context, userID int64) ([]entity.DeviceToken, error)
	Deactivate(ctx context.Context, userID int64, token string) error
	TouchLastUsed(ctx context.Context, tokenIDs []int64) error
}
