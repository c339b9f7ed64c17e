package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/errs"
)

// classifyPgError mappe les erreurs driver vers les sentinelles de la couche
// au-dessus : violation de contrainte (classe 23) → ErrBadRequest, tout le
// reste → ErrStorageUnavailable, ce qui déclenche la compensation amont.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
			return fmt.Errorf("%w: constraint violation: %s", errs.ErrBadRequest, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
}
