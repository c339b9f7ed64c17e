package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/repository"
)

type notificationRepo struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) repository.NotificationRepository {
	return &notificationRepo{db: db}
}

const prefsColumns = `id, user_id, push_enabled, realtime_enabled, email_enabled,
	new_signalements, comments_signalements, new_petitions, comments_petitions,
	new_publications, comments_publications, votes_signatures, authority_responses,
	mentions, status_changes, urgent_only, quiet_hours_enabled, quiet_hours_start,
	quiet_hours_end, location_enabled, location_radius, location_latitude,
	location_longitude, created_at, updated_at`

// GetPreferences crée la ligne avec les valeurs par défaut à la première
// consultation (upsert no-op si elle existe déjà), puis la retourne.
func (r *notificationRepo) GetPreferences(ctx context.Context, userID int64) (*entity.NotificationPreferences, error) {
	insert := `INSERT INTO notification_preferences (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, userID); err != nil {
		return nil, classifyPgError(err)
	}

	query := `SELECT ` + prefsColumns + ` FROM notification_preferences WHERE user_id = $1`
	var p entity.NotificationPreferences
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.ID, &p.UserID, &p.PushEnabled, &p.RealtimeEnabled, &p.EmailEnabled,
		&p.NewSignalements, &p.CommentsSignalements, &p.NewPetitions, &p.CommentsPetitions,
		&p.NewPublications, &p.CommentsPublications, &p.VotesSignatures, &p.AuthorityResponses,
		&p.Mentions, &p.StatusChanges, &p.UrgentOnly, &p.QuietHoursEnabled, &p.QuietHoursStart,
		&p.QuietHoursEnd, &p.LocationEnabled, &p.LocationRadius, &p.LocationLatitude,
		&p.LocationLongitude, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *notificationRepo) UpdatePreferences(ctx context.Context, p *entity.NotificationPreferences) error {
	query := `UPDATE notification_preferences SET
		push_enabled = $1, realtime_enabled = $2, email_enabled = $3,
		new_signalements = $4, comments_signalements = $5, new_petitions = $6,
		comments_petitions = $7, new_publications = $8, comments_publications = $9,
		votes_signatures = $10, authority_responses = $11, mentions = $12,
		status_changes = $13, urgent_only = $14, quiet_hours_enabled = $15,
		quiet_hours_start = $16, quiet_hours_end = $17, location_enabled = $18,
		location_radius = $19, location_latitude = $20, location_longitude = $21,
		updated_at = $22
		WHERE user_id = $23`
	_, err := r.db.ExecContext(ctx, query,
		p.PushEnabled, p.RealtimeEnabled, p.EmailEnabled,
		p.NewSignalements, p.CommentsSignalements, p.NewPetitions,
		p.CommentsPetitions, p.NewPublications, p.CommentsPublications,
		p.VotesSignatures, p.AuthorityResponses, p.Mentions,
		p.StatusChanges, p.UrgentOnly, p.QuietHoursEnabled,
		p.QuietHoursStart, p.QuietHoursEnd, p.LocationEnabled,
		p.LocationRadius, p.LocationLatitude, p.LocationLongitude,
		time.Now(), p.UserID,
	)
	return err
}

// FindLocationSubscribers applique la formule de haversine contre le rayon
// propre à chaque abonné (location_radius est en kilomètres).
func (r *notificationRepo) FindLocationSubscribers(ctx context.Context, lat, lon float64) ([]int64, error) {
	query := `SELECT user_id FROM notification_preferences
		WHERE location_enabled = TRUE
		  AND location_latitude IS NOT NULL
		  AND location_longitude IS NOT NULL
		  AND 6371 * acos(LEAST(1.0,
			cos(radians($1)) * cos(radians(location_latitude)) *
			cos(radians(location_longitude) - radians($2)) +
			sin(radians($1)) * sin(radians(location_latitude))
		  )) <= location_radius`
	rows, err := r.db.QueryContext(ctx, query, lat, lon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

func (r *notificationRepo) AppendHistory(ctx context.Context, h *entity.NotificationHistory) error {
	methods := h.DeliveryMethod
	if methods == nil {
		methods = []string{}
	}
	methodsJSON, err := json.Marshal(methods)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery methods: %w", err)
	}
	var metadataJSON []byte
	if h.Metadata != nil {
		if metadataJSON, err = json.Marshal(h.Metadata); err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `INSERT INTO notification_history
		(user_id, title, message, entity_type, entity_id, success, delivery_method, priority, category, sender_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query,
		h.UserID, h.Title, h.Message, nullableString(h.EntityType), h.EntityID,
		h.Success, methodsJSON, h.Priority, h.Category, h.SenderID, metadataJSON,
	).Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return classifyPgError(err)
	}
	return nil
}

func (r *notificationRepo) ListHistory(ctx context.Context, userID int64, limit int) ([]entity.NotificationHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, title, message, COALESCE(entity_type, '') as entity_type, entity_id,
		success, delivery_method, priority, category, read, clicked_at, sender_id, metadata, created_at
		FROM notification_history WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []entity.NotificationHistory{}
	for rows.Next() {
		var h entity.NotificationHistory
		var methodsJSON, metadataJSON []byte
		err := rows.Scan(&h.ID, &h.UserID, &h.Title, &h.Message, &h.EntityType, &h.EntityID,
			&h.Success, &methodsJSON, &h.Priority, &h.Category, &h.Read, &h.ClickedAt,
			&h.SenderID, &metadataJSON, &h.CreatedAt)
		if err != nil {
			return nil, err
		}
		if len(methodsJSON) > 0 {
			if err := json.Unmarshal(methodsJSON, &h.DeliveryMethod); err != nil {
				return nil, fmt.Errorf("failed to unmarshal delivery methods: %w", err)
			}
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &h.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (r *notificationRepo) MarkRead(ctx context.Context, userID, notificationID int64) error {
	query := `UPDATE notification_history SET read = TRUE WHERE id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, query, notificationID, userID)
	return err
}

func (r *notificationRepo) MarkClicked(ctx context.Context, userID, notificationID int64) error {
	query := `UPDATE notification_history SET read = TRUE, clicked_at = $1 WHERE id = $2 AND user_id = $3`
	_, err := r.db.ExecContext(ctx, query, time.Now(), notificationID, userID)
	return err
}

// InsertRealtime alimente la table observée par le backplane temps réel.
func (r *notificationRepo) InsertRealtime(ctx context.Context, n *entity.RealtimeNotification) error {
	var dataJSON []byte
	if n.Data != nil {
		var err error
		if dataJSON, err = json.Marshal(n.Data); err != nil {
			return fmt.Errorf("failed to marshal realtime data: %w", err)
		}
	}
	query := `INSERT INTO realtime_notifications (user_id, title, message, data)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, n.UserID, n.Title, n.Message, dataJSON).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return classifyPgError(err)
	}
	return nil
}
