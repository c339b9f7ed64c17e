package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/repository"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/errs"
)

type signalementRepo struct {
	db *sql.DB
}

func NewSignalementRepository(db *sql.DB) repository.SignalementRepository {
	return &signalementRepo{db: db}
}

const signalementColumns = `id, description, type_signalement, statut, nb_vote_positif, nb_vote_negatif,
	COALESCE(cible, '') as cible, moderateur_id, anonymat, republier_de, priorite,
	latitude, longitude, gps_accuracy, gps_altitude, gps_heading, gps_speed, gps_timestamp,
	COALESCE(adresse, '') as adresse, COALESCE(h3_index, '') as h3_index, citoyen_id, elements,
	created_at, deleted, deleted_at`

// Create insère l'agrégat dans une transaction unique. La liste de médias est
// sérialisée en JSON dans la colonne elements ; aucune table média séparée.
func (r *signalementRepo) Create(ctx context.Context, s *entity.Signalement) error {
	elements := s.Elements
	if elements == nil {
		elements = []entity.MediaElement{}
	}
	elementsJSON, err := json.Marshal(elements)
	if err != nil {
		return fmt.Errorf("failed to marshal media elements: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", errs.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	var lat, lon, acc, alt, heading, speed any
	var gpsTS any
	var adresse any
	if s.Location != nil {
		lat, lon = s.Location.Latitude, s.Location.Longitude
		acc, alt = s.Location.Accuracy, s.Location.Altitude
		heading, speed = s.Location.Heading, s.Location.Speed
		if !s.Location.Timestamp.IsZero() {
			gpsTS = s.Location.Timestamp
		}
		if s.Location.Address != "" {
			adresse = s.Location.Address
		}
	}

	query := `INSERT INTO signalements
		(description, type_signalement, statut, cible, moderateur_id, anonymat, republier_de, priorite,
		 latitude, longitude, gps_accuracy, gps_altitude, gps_heading, gps_speed, gps_timestamp, adresse,
		 h3_index, citoyen_id, elements, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id`
	err = tx.QueryRowContext(ctx, query,
		s.Description,
		s.TypeSignalement,
		s.Statut,
		nullableString(s.Cible),
		s.ModerateurID,
		s.Anonymat,
		s.RepublierDe,
		s.Priorite,
		lat, lon, acc, alt, heading, speed, gpsTS, adresse,
		nullableString(s.H3Index),
		s.CitoyenID,
		elementsJSON,
		s.CreatedAt,
	).Scan(&s.ID)
	if err != nil {
		return classifyPgError(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", errs.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *signalementRepo) GetByID(ctx context.Context, id int64) (*entity.Signalement, error) {
	query := `SELECT ` + signalementColumns + ` FROM signalements WHERE id = $1 AND NOT deleted`
	row := r.db.QueryRowContext(ctx, query, id)
	s, err := scanSignalement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *signalementRepo) GetAll(ctx context.Context, statut string) ([]entity.Signalement, error) {
	query := `SELECT ` + signalementColumns + ` FROM signalements WHERE NOT deleted`
	var args []interface{}
	if statut != "" {
		query += " AND statut = $1"
		args = append(args, statut)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSignalements(rows)
}

// FindNearby combine correspondance de cellule H3 et distance haversine (mètres).
func (r *signalementRepo) FindNearby(ctx context.Context, h3Index string, lat, lon, radius float64) ([]entity.Signalement, error) {
	query := `SELECT ` + signalementColumns + ` FROM signalements
		WHERE NOT deleted AND latitude IS NOT NULL
		AND (h3_index = $1 OR (
			6371000 * acos(LEAST(1.0,
				cos(radians($2)) * cos(radians(latitude)) * cos(radians(longitude) - radians($3))
				+ sin(radians($2)) * sin(radians(latitude))
			))
		) <= $4)
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, h3Index, lat, lon, radius)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSignalements(rows)
}

// UpdateStatus ne touche jamais un signalement soft-supprimé (statut gelé).
func (r *signalementRepo) UpdateStatus(ctx context.Context, id int64, statut entity.SignalementStatus) error {
	query := `UPDATE signalements SET statut = $1 WHERE id = $2 AND NOT deleted`
	_, err := r.db.ExecContext(ctx, query, statut, id)
	return err
}

// Vote incrémente un compteur sans jamais le laisser passer sous zéro.
func (r *signalementRepo) Vote(ctx context.Context, id int64, positif bool, delta int) error {
	col := "nb_vote_negatif"
	if positif {
		col = "nb_vote_positif"
	}
	query := fmt.Sprintf(`UPDATE signalements SET %s = GREATEST(0, %s + $1) WHERE id = $2 AND NOT deleted`, col, col)
	_, err := r.db.ExecContext(ctx, query, delta, id)
	return err
}

// SoftDelete pose le drapeau et l'instant ; les blobs objets restent en place.
func (r *signalementRepo) SoftDelete(ctx context.Context, id int64) error {
	query := `UPDATE signalements SET deleted = TRUE, deleted_at = $1 WHERE id = $2 AND NOT deleted`
	_, err := r.db.ExecContext(ctx, query, time.Now(), id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignalement(row rowScanner) (*entity.Signalement, error) {
	var s entity.Signalement
	var elementsJSON []byte
	var lat, lon, acc, alt, heading, speed sql.NullFloat64
	var gpsTS sql.NullTime
	var adresse string

	err := row.Scan(
		&s.ID, &s.Description, &s.TypeSignalement, &s.Statut, &s.NbVotePositif, &s.NbVoteNegatif,
		&s.Cible, &s.ModerateurID, &s.Anonymat, &s.RepublierDe, &s.Priorite,
		&lat, &lon, &acc, &alt, &heading, &speed, &gpsTS,
		&adresse, &s.H3Index, &s.CitoyenID, &elementsJSON,
		&s.CreatedAt, &s.Deleted, &s.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lon.Valid {
		loc := &entity.GPSLocation{
			Latitude:  lat.Float64,
			Longitude: lon.Float64,
			Accuracy:  acc.Float64,
			Altitude:  alt.Float64,
			Heading:   heading.Float64,
			Speed:     speed.Float64,
			Address:   adresse,
		}
		if gpsTS.Valid {
			loc.Timestamp = gpsTS.Time
		}
		s.Location = loc
	}

	if len(elementsJSON) > 0 {
		if err := json.Unmarshal(elementsJSON, &s.Elements); err != nil {
			return nil, fmt.Errorf("failed to unmarshal media elements: %w", err)
		}
	}
	return &s, nil
}

func collectSignalements(rows *sql.Rows) ([]entity.Signalement, error) {
	signalements := []entity.Signalement{}
	for rows.Next() {
		s, err := scanSignalement(rows)
		if err != nil {
			return nil, err
		}
		signalements = append(signalements, *s)
	}
	return signalements, rows.Err()
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
