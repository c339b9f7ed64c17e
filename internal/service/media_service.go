package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/errs"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/platform/cache"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/platform/storage"
	"go.uber.org/zap"
)

// MediaService est l'adaptateur de stockage des médias : upload vers le
// stockage objet, suppression idempotente, et frappe des URLs publiques.
type MediaService interface {
	// ValidateBlob vérifie taille et MIME sans toucher au stockage.
	ValidateBlob(data []byte, mimetype string) error
	// Upload valide taille et MIME, pousse les octets et retourne la métadonnée.
	Upload(ctx context.Context, data []byte, filename, mimetype string, reporterID int64, uctx entity.UploadContext) (*entity.MediaElement, error)
	// Delete est idempotent : true si l'objet n'existe plus à la sortie.
	Delete(ctx context.Context, storageKey string) bool
	// Info retourne la métadonnée recalculée d'un objet, nil s'il n'existe pas.
	Info(ctx context.Context, storageKey string) (*entity.MediaElement, error)
	Initialize(ctx context.Context) error
}

type mediaService struct {
	storage     storage.Storage
	urlCache    cache.Cache
	bucketName  string
	publicBase  string
	maxFileSize int64
	logger      *zap.Logger
}

func NewMediaService(s storage.Storage, urlCache cache.Cache, bucketName, publicBase string, maxFileSize int64, logger *zap.Logger) MediaService {
	return &mediaService{
		storage:     s,
		urlCache:    urlCache,
		bucketName:  bucketName,
		publicBase:  strings.TrimRight(publicBase, "/"),
		maxFileSize: maxFileSize,
		logger:      logger.Named("media"),
	}
}

func (s *mediaService) Initialize(ctx context.Context) error {
	exists, err := s.storage.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		return s.storage.MakeBucket(ctx, s.bucketName)
	}
	return nil
}

// ValidateBlob applique la politique taille + MIME sans effet de bord, pour
// permettre un rejet avant toute mutation.
func (s *mediaService) ValidateBlob(data []byte, mimetype string) error {
	if len(data) == 0 {
		return errs.ErrEmptyBlob
	}
	if int64(len(data)) > s.maxFileSize {
		return fmt.Errorf("%w: %d bytes (max %d)", errs.ErrOversizedBlob, len(data), s.maxFileSize)
	}
	if !MimeAllowed(mimetype) {
		return fmt.Errorf("%w: %s", errs.ErrDisallowedMime, mimetype)
	}
	return nil
}

func (s *mediaService) Upload(ctx context.Context, data []byte, filename, mimetype string, reporterID int64, uctx entity.UploadContext) (*entity.MediaElement, error) {
	if err := s.ValidateBlob(data, mimetype); err != nil {
		return nil, err
	}
	if s.storage == nil {
		return nil, fmt.Errorf("%w: object storage not configured", errs.ErrStorageUnavailable)
	}

	category := CategoryOf(mimetype)
	key := s.buildKey(reporterID, category, filename, uctx)

	if err := s.storage.Put(ctx, s.bucketName, key, data, mimetype); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}

	sum := md5.Sum(data)
	element := &entity.MediaElement{
		Filename:      SanitizeFilename(filename),
		StoragePath:   key,
		Mimetype:      mimetype,
		Category:      category,
		Size:          int64(len(data)),
		Hash:          hex.EncodeToString(sum[:]),
		UploadedAt:    time.Now(),
		UploadContext: uctx,
	}
	s.applyURLs(ctx, element)
	element.ApplyCategoryFlags()

	s.logger.Info("media uploaded",
		zap.String("key", key),
		zap.String("mimetype", mimetype),
		zap.Int64("size", element.Size),
	)
	return element, nil
}

func (s *mediaService) Delete(ctx context.Context, storageKey string) bool {
	if s.storage == nil {
		return false
	}
	if err := s.storage.Remove(ctx, s.bucketName, storageKey); err != nil {
		// Un objet déjà absent compte comme supprimé.
		info, statErr := s.storage.Stat(ctx, s.bucketName, storageKey)
		if statErr == nil && info == nil {
			return true
		}
		s.logger.Warn("media delete failed", zap.String("key", storageKey), zap.Error(err))
		return false
	}
	return true
}

// Info recalcule les URLs et répare la catégorie si la donnée historique
// diverge du MIME stocké.
func (s *mediaService) Info(ctx context.Context, storageKey string) (*entity.MediaElement, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("%w: object storage not configured", errs.ErrStorageUnavailable)
	}
	info, err := s.storage.Stat(ctx, s.bucketName, storageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
	}
	if info == nil {
		return nil, nil
	}

	element := &entity.MediaElement{
		Filename:    path.Base(storageKey),
		StoragePath: storageKey,
		Mimetype:    info.ContentType,
		Category:    CategoryOf(info.ContentType),
		Size:        info.Size,
	}
	s.applyURLs(ctx, element)
	element.ApplyCategoryFlags()
	return element, nil
}

// RepairCategory réaligne la catégorie d'une métadonnée relue sur son MIME.
// Retourne true si une divergence (donnée historique) a été corrigée.
func RepairCategory(m *entity.MediaElement) bool {
	want := CategoryOf(m.Mimetype)
	if m.Category == want {
		return false
	}
	m.Category = want
	m.ApplyCategoryFlags()
	return true
}

func (s *mediaService) buildKey(reporterID int64, category entity.MediaCategory, filename string, uctx entity.UploadContext) string {
	root := "users"
	if uctx == entity.ContextRepublication {
		root = "republications"
	}
	safe := SanitizeFilename(filename)
	return fmt.Sprintf("%s/%d/%s/%d_%s_%s", root, reporterID, category, time.Now().Unix(), rand8(), safe)
}

// applyURLs frappe l'ensemble des URLs publiques. Le cache évite de reformater
// l'URL canonique des clés déjà vues (état partagé en lecture).
func (s *mediaService) applyURLs(ctx context.Context, m *entity.MediaElement) {
	canonical, ok := s.urlCache.Get(ctx, m.StoragePath)
	if !ok {
		canonical = s.publicBase + "/" + m.StoragePath
		s.urlCache.Set(ctx, m.StoragePath, canonical)
	}

	m.URL = canonical
	m.DownloadURL = canonical + "?download=true"
	if m.Category == entity.MediaImages {
		m.ThumbnailURL = canonical + "?width=300&height=300&resize=cover&quality=80"
		m.PreviewURL = canonical + "?width=800&height=600&resize=contain&quality=85"
		m.FullURL = canonical + "?quality=100"
	}
}

// documentMimes liste les MIME explicitement classés documents.
var documentMimes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.oasis.opendocument.text":                           true,
	"application/vnd.oasis.opendocument.spreadsheet":                    true,
	"text/csv": true,
}

// CategoryOf mappe déterministiquement un type MIME vers sa catégorie de stockage.
func CategoryOf(mimetype string) entity.MediaCategory {
	mt := strings.ToLower(strings.TrimSpace(mimetype))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return entity.MediaImages
	case strings.HasPrefix(mt, "video/"):
		return entity.MediaVideos
	case strings.HasPrefix(mt, "audio/"):
		return entity.MediaAudios
	case documentMimes[mt], strings.HasPrefix(mt, "text/"):
		return entity.MediaDocuments
	default:
		return entity.MediaOthers
	}
}

// MimeAllowed applique la liste blanche : image/*, video/*, audio/*, text/*
// et les formats documents explicites.
func MimeAllowed(mimetype string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimetype))
	if mt == "" {
		return false
	}
	return strings.HasPrefix(mt, "image/") ||
		strings.HasPrefix(mt, "video/") ||
		strings.HasPrefix(mt, "audio/") ||
		strings.HasPrefix(mt, "text/") ||
		documentMimes[mt]
}

// SanitizeFilename neutralise un nom de fichier client : décomposition NFD,
// retrait des diacritiques, remplacement de tout caractère hors
// [A-Za-z0-9._-], réduction des '_' répétés, bornage du nom de base à
// 30 caractères. Idempotente.
func SanitizeFilename(name string) string {
	decomposed := norm.NFD.String(name)
	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue // marques combinantes (accents)
		}
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()

	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_.-")

	ext := path.Ext(s)
	base := strings.TrimSuffix(s, ext)
	if len(base) > 30 {
		base = base[:30]
	}
	base = strings.Trim(base, "_.-")
	if base == "" {
		return "file_" + rand8()
	}
	return base + ext
}

// rand8 retourne 8 caractères hexadécimaux aléatoires.
func rand8() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
