package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/repository"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/errs"
)

type deviceTokenRepo struct {
	db *sql.DB
}

func NewDeviceTokenRepository(db *sql.DB) repository.DeviceTokenRepository {
	return &deviceTokenRepo{db: db}
}

// Register enregistre un jeton en désactivant d'abord le jeton actif du même
// couple (user, device_id). Le tout dans une transaction : au plus un jeton
// actif par appareil.
func (r *deviceTokenRepo) Register(ctx context.Context, t *entity.DeviceToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", errs.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	if t.DeviceID != "" {
		deactivate := `UPDATE device_tokens SET active = FALSE
			WHERE user_id = $1 AND device_id = $2 AND active AND token <> $3`
		if _, err := tx.ExecContext(ctx, deactivate, t.UserID, t.DeviceID, t.Token); err != nil {
			return classifyPgError(err)
		}
	}

	// Le jeton est unique globalement : s'il existe déjà on le réattribue.
	upsert := `INSERT INTO device_tokens (user_id, token, device_type, device_id, app_version, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			device_type = EXCLUDED.device_type,
			device_id = EXCLUDED.device_id,
			app_version = EXCLUDED.app_version,
			active = TRUE
		RETURNING id, created_at`
	err = tx.QueryRowContext(ctx, upsert,
		t.UserID, t.Token, t.DeviceType, nullableString(t.DeviceID), nullableString(t.AppVersion),
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return classifyPgError(err)
	}
	t.Active = true

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", errs.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *deviceTokenRepo) GetActiveByUser(ctx context.Context, userID int64) ([]entity.DeviceToken, error) {
	query := `SELECT id, user_id, token, device_type, COALESCE(device_id, '') as device_id,
		COALESCE(app_version, '') as app_version, active, created_at, last_used
		FROM device_tokens WHERE user_id = $1 AND active ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := []entity.DeviceToken{}
	for rows.Next() {
		var t entity.DeviceToken
		err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.DeviceType, &t.DeviceID,
			&t.AppVersion, &t.Active, &t.CreatedAt, &t.LastUsed)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *deviceTokenRepo) Deactivate(ctx context.Context, userID int64, token string) error {
	query := `UPDATE device_tokens SET active = FALSE WHERE user_id = $1 AND token = $2`
	_, err := r.db.ExecContext(ctx, query, userID, token)
	return err
}

func (r *deviceTokenRepo) TouchLastUsed(ctx context.Context, tokenIDs []int64) error {
	if len(tokenIDs) == 0 {
		return nil
	}
	query := `UPDATE device_tokens SET last_used = $1 WHERE id = ANY($2)`
	_, err := r.db.ExecContext(ctx, query, time.Now(), tokenIDs)
	return err
}
