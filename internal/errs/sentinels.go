// Package errs contient les erreurs sentinelles partagées entre les couches,
// utilisées pour un mapping stable vers les codes HTTP.
package errs

import "errors"

var (
	// ErrBadRequest indique une entrée invalide corrigeable par l'appelant.
	ErrBadRequest = errors.New("bad request")

	// ErrCoherenceFailed indique que l'IA a jugé texte et médias incohérents (mode strict).
	ErrCoherenceFailed = errors.New("coherence validation failed")

	// ErrStorageUnavailable indique que la base ou le stockage objet est injoignable.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrOversizedBlob indique un fichier dépassant la taille maximale autorisée.
	ErrOversizedBlob = errors.New("oversized blob")

	// ErrDisallowedMime indique un type MIME hors liste blanche.
	ErrDisallowedMime = errors.New("disallowed mime type")

	// ErrEmptyBlob indique un fichier vide.
	ErrEmptyBlob = errors.New("empty blob")

	// ErrUnsupportedMedia indique un média que le service IA ne sait pas vectoriser.
	ErrUnsupportedMedia = errors.New("unsupported media type")

	// ErrNotFound indique une entité inexistante.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indique un échec d'authentification.
	ErrUnauthorized = errors.New("unauthorized")
)
