package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/errs"
)

// Mock de SignalementRepository pour les tests
type mockSignalementRepo struct {
	created   *entity.Signalement
	createErr error
	byID      map[int64]*entity.Signalement
	all       []entity.Signalement
}

func (m *mockSignalementRepo) Create(ctx context.Context, s *entity.Signalement) error {
	if m.createErr != nil {
		return m.createErr
	}
	s.ID = 101
	m.created = s
	return nil
}

func (m *mockSignalementRepo) GetByID(ctx context.Context, id int64) (*entity.Signalement, error) {
	return m.byID[id], nil
}

func (m *mockSignalementRepo) GetAll(ctx context.Context, statut string) ([]entity.Signalement, error) {
	return m.all, nil
}

func (m *mockSignalementRepo) FindNearby(ctx context.Context, h3Index string, lat, lon, radius float64) ([]entity.Signalement, error) {
	return m.all, nil
}

func (m *mockSignalementRepo) UpdateStatus(ctx context.Context, id int64, statut entity.SignalementStatus) error {
	return nil
}
func (m *mockSignalementRepo) Vote(ctx context.Context, id int64, positif bool, delta int) error {
	return nil
}
func (m *mockSignalementRepo) SoftDelete(ctx context.Context, id int64) error { return nil }

// stubMediaService simule l'adaptateur médias : la politique de validation est
// réelle, les uploads sont en mémoire.
type stubMediaService struct {
	uploaded  []string
	deleted   []string
	uploadErr map[string]error // par nom de fichier
}

func (m *stubMediaService) ValidateBlob(data []byte, mimetype string) error {
	if len(data) == 0 {
		return errs.ErrEmptyBlob
	}
	if !MimeAllowed(mimetype) {
		return fmt.Errorf("%w: %s", errs.ErrDisallowedMime, mimetype)
	}
	return nil
}

func (m *stubMediaService) Upload(ctx context.Context, data []byte, filename, mimetype string, reporterID int64, uctx entity.UploadContext) (*entity.MediaElement, error) {
	if err, ok := m.uploadErr[filename]; ok {
		return nil, err
	}
	key := fmt.Sprintf("users/%d/%s/%s", reporterID, CategoryOf(mimetype), SanitizeFilename(filename))
	m.uploaded = append(m.uploaded, key)
	element := &entity.MediaElement{
		Filename:      SanitizeFilename(filename),
		StoragePath:   key,
		Mimetype:      mimetype,
		Category:      CategoryOf(mimetype),
		Size:          int64(len(data)),
		UploadContext: uctx,
	}
	element.ApplyCategoryFlags()
	return element, nil
}

func (m *stubMediaService) Delete(ctx context.Context, storageKey string) bool {
	m.deleted = append(m.deleted, storageKey)
	return true
}

func (m *stubMediaService) Info(ctx context.Context, storageKey string) (*entity.MediaElement, error) {
	return nil, nil
}
func (m *stubMediaService) Initialize(ctx context.Context) error { return nil }

// stubAI pilote l'issue de chaque endpoint IA.
type stubAI struct {
	textErr      error
	mediaErr     error
	coherence    *CoherenceResult
	coherenceErr error
	category     *CategoryResult
	categoryErr  error
	priority     entity.SignalementPriority
	priorityErr  error
}

func (a *stubAI) TextFeatures(ctx context.Context, description string) (*TextFeatures, error) {
	if a.textErr != nil {
		return nil, a.textErr
	}
	return &TextFeatures{Vector: []float64{0.5, 0.5}, WordCount: 3}, nil
}

func (a *stubAI) MediaFeatures(ctx context.Context, data []byte, mimetype string) ([]float64, error) {
	if a.mediaErr != nil {
		return nil, a.mediaErr
	}
	return []float64{0.4, 0.6}, nil
}

func (a *stubAI) Coherence(ctx context.Context, textVec, mediaVec []float64, mode string) (*CoherenceResult, error) {
	if a.coherenceErr != nil {
		return nil, a.coherenceErr
	}
	if a.coherence != nil {
		return a.coherence, nil
	}
	return &CoherenceResult{IsValid: true, Similarity: 0.8}, nil
}

func (a *stubAI) Categorize(ctx context.Context, textVec, mediaVec []float64, description string) (*CategoryResult, error) {
	if a.categoryErr != nil {
		return nil, a.categoryErr
	}
	if a.category != nil {
		return a.category, nil
	}
	return &CategoryResult{Category: entity.CategorieVoirie, Confidence: 0.9}, nil
}

func (a *stubAI) Priority(ctx context.Context, typeSignalement, description string, medias []PriorityMedia) (entity.SignalementPriority, error) {
	if a.priorityErr != nil {
		return "", a.priorityErr
	}
	if a.priority != "" {
		return a.priority, nil
	}
	return entity.PriorityMoyenne, nil
}

func aiDown() *stubAI {
	unavailable := errors.New("connection refused")
	return &stubAI{
		textErr:      unavailable,
		mediaErr:     unavailable,
		coherenceErr: unavailable,
		categoryErr:  unavailable,
		priorityErr:  unavailable,
	}
}

// mockNotifier enregistre les destinataires notifiés.
type mockNotifier struct {
	dispatched []int64
}

func (m *mockNotifier) Dispatch(ctx context.Context, userID int64, n *NotificationInput) bool {
	m.dispatched = append(m.dispatched, userID)
	return true
}

func (m *mockNotifier) DispatchBulk(ctx context.Context, userIDs []int64, n *NotificationInput) int {
	m.dispatched = append(m.dispatched, userIDs...)
	return len(userIDs)
}

// mockPublisher capture les messages publiés (la publication est asynchrone).
type mockPublisher struct {
	published chan interface{}
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{published: make(chan interface{}, 8)}
}

func (m *mockPublisher) Publish(ctx context.Context, queueName string, message interface{}) error {
	m.published <- message
	return nil
}
func (m *mockPublisher) Close() {}

type testEnv struct {
	repo      *mockSignalementRepo
	media     *stubMediaService
	ai        *stubAI
	notifier  *mockNotifier
	publisher *mockPublisher
	service   SignalementService
}

func newTestEnv(ai *stubAI, strictMode bool) *testEnv {
	env := &testEnv{
		repo:      &mockSignalementRepo{},
		media:     &stubMediaService{},
		ai:        ai,
		notifier:  &mockNotifier{},
		publisher: newMockPublisher(),
	}
	env.service = NewSignalementService(env.repo, env.media, env.ai, env.notifier, env.publisher, strictMode, "standard", zap.NewNop())
	return env
}

func validInput() *CreateSignalementInput {
	return &CreateSignalementInput{
		Description: "Gros nid de poule devant le 12 rue Foo",
		CitoyenID:   42,
		HasLocation: true,
		Location:    &entity.GPSLocation{Latitude: 48.8566, Longitude: 2.3522},
		Medias: []MediaItem{
			{Data: []byte("fake-jpeg"), Filename: "photo.jpg", Mimetype: "image/jpeg"},
		},
	}
}

func TestCreateNominal(t *testing.T) {
	env := newTestEnv(&stubAI{priority: entity.PriorityHaute}, false)

	result, err := env.service.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if result.ID != 101 {
		t.Errorf("expected persisted id 101, got %d", result.ID)
	}
	if result.Type != entity.CategorieVoirie {
		t.Errorf("expected AI category, got %q", result.Type)
	}
	if result.Priorite != entity.PriorityHaute {
		t.Errorf("expected AI priority, got %q", result.Priorite)
	}
	if result.UploadedMedia != 1 || result.TotalMedia != 1 {
		t.Errorf("expected 1/1 media, got %d/%d", result.UploadedMedia, result.TotalMedia)
	}
	if env.repo.created.Statut != entity.StatusEnAttente {
		t.Errorf("new signalement must start en_attente, got %q", env.repo.created.Statut)
	}
	if env.repo.created.H3Index == "" {
		t.Error("expected h3 index for located signalement")
	}

	if result.Trace == nil || result.Trace.CategorySource != SourceAI || result.Trace.PrioritySource != SourceAI {
		t.Errorf("expected AI sources in trace, got %+v", result.Trace)
	}

	// Le déclarant est notifié en ligne.
	if len(env.notifier.dispatched) != 1 || env.notifier.dispatched[0] != 42 {
		t.Errorf("expected reporter 42 notified, got %v", env.notifier.dispatched)
	}

	// L'événement part sur la file (asynchrone).
	select {
	case msg := <-env.publisher.published:
		event, ok := msg.(SignalementEvent)
		if !ok {
			t.Fatalf("unexpected message type %T", msg)
		}
		if event.SignalementID != 101 || !event.HasLocation {
			t.Errorf("unexpected event %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a published event")
	}
}

func TestCreateAIDownFallsBack(t *testing.T) {
	env := newTestEnv(aiDown(), false)

	result, err := env.service.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("AI outage must not block ingestion: %v", err)
	}

	// "nid de poule" → repli par mots-clés.
	if result.Type != entity.CategorieVoirie {
		t.Errorf("expected keyword fallback voirie, got %q", result.Type)
	}
	if result.Priorite != entity.PriorityMoyenne {
		t.Errorf("expected default priority Moyenne, got %q", result.Priorite)
	}
	if result.Trace.ServiceAvailable {
		t.Error("trace should flag the AI service unavailable")
	}
	if result.Trace.CategorySource != SourceKeyword {
		t.Errorf("expected keyword source, got %q", result.Trace.CategorySource)
	}
	if result.Trace.CoherenceChecked {
		t.Error("coherence cannot be checked without vectors")
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(&stubAI{}, false)

	t.Run("description vide", func(t *testing.T) {
		input := validInput()
		input.Description = "   "
		_, err := env.service.Create(context.Background(), input)
		if !errors.Is(err, errs.ErrBadRequest) {
			t.Errorf("expected ErrBadRequest, got %v", err)
		}
	})

	t.Run("description trop longue", func(t *testing.T) {
		input := validInput()
		input.Description = strings.Repeat("a", 256)
		_, err := env.service.Create(context.Background(), input)
		if !errors.Is(err, errs.ErrBadRequest) {
			t.Errorf("expected ErrBadRequest, got %v", err)
		}
	})

	t.Run("coordonnées hors bornes", func(t *testing.T) {
		input := validInput()
		input.Location.Latitude = 91
		_, err := env.service.Create(context.Background(), input)
		if !errors.Is(err, errs.ErrBadRequest) {
			t.Errorf("expected ErrBadRequest, got %v", err)
		}
	})
}

// Un blob interdit rejette la requête entière avant tout effet de bord, même
// si d'autres blobs en amont sont valides.
func TestCreateDisallowedMimeRejectsAll(t *testing.T) {
	env := newTestEnv(&stubAI{}, false)

	input := validInput()
	input.Medias = []MediaItem{
		{Data: []byte("ok"), Filename: "a.jpg", Mimetype: "image/jpeg"},
		{Data: []byte("bad"), Filename: "b.exe", Mimetype: "application/x-msdownload"},
	}

	_, err := env.service.Create(context.Background(), input)
	if !errors.Is(err, errs.ErrDisallowedMime) {
		t.Fatalf("expected ErrDisallowedMime, got %v", err)
	}
	if len(env.media.uploaded) != 0 {
		t.Errorf("no blob may be uploaded on rejection, got %v", env.media.uploaded)
	}
	if env.repo.created != nil {
		t.Error("nothing may be persisted on rejection")
	}
}

// Republication : la métadonnée est réutilisée, les octets ne sont jamais
// retransférés.
func TestCreateRepublication(t *testing.T) {
	env := newTestEnv(&stubAI{}, false)

	origin := int64(33)
	input := &CreateSignalementInput{
		Description: "Republication : poubelle renversée",
		CitoyenID:   42,
		RepublierDe: &origin,
		Medias: []MediaItem{
			{StoragePath: "users/7/images/170_ab_photo.jpg", URL: "https://cdn.example.com/users/7/images/170_ab_photo.jpg", Mimetype: "image/jpeg", Filename: "photo.jpg"},
		},
	}

	result, err := env.service.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(env.media.uploaded) != 0 {
		t.Errorf("republication must not re-upload bytes, got %v", env.media.uploaded)
	}
	if result.UploadedMedia != 1 || result.TotalMedia != 1 {
		t.Errorf("expected 1/1 media, got %d/%d", result.UploadedMedia, result.TotalMedia)
	}

	element := env.repo.created.Elements[0]
	if element.StoragePath != "users/7/images/170_ab_photo.jpg" {
		t.Errorf("storage path must be reused verbatim, got %q", element.StoragePath)
	}
	if element.UploadContext != entity.ContextRepublication {
		t.Errorf("expected republication context, got %q", element.UploadContext)
	}
}

func TestCreateExternalURL(t *testing.T) {
	env := newTestEnv(&stubAI{}, false)

	input := validInput()
	input.Medias = []MediaItem{
		{ExternalURL: "https://example.com/photo.png", Mimetype: "image/png", Filename: "photo.png"},
	}

	result, err := env.service.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	element := env.repo.created.Elements[0]
	if element.UploadContext != entity.ContextExternalURL {
		t.Errorf("expected external_url context, got %q", element.UploadContext)
	}
	if element.URL != "https://example.com/photo.png" {
		t.Errorf("external URL must be kept, got %q", element.URL)
	}
	if result.UploadedMedia != 1 {
		t.Errorf("external element counts as included, got %d", result.UploadedMedia)
	}
}

// Échec partiel d'upload : warning, ordre préservé, la requête aboutit.
func TestCreatePartialUploadFailure(t *testing.T) {
	env := newTestEnv(&stubAI{}, false)
	env.media.uploadErr = map[string]error{"b.jpg": errors.New("minio timeout")}

	input := validInput()
	input.Medias = []MediaItem{
		{Data: []byte("1"), Filename: "a.jpg", Mimetype: "image/jpeg"},
		{Data: []byte("2"), Filename: "b.jpg", Mimetype: "image/jpeg"},
		{Data: []byte("3"), Filename: "c.jpg", Mimetype: "image/jpeg"},
	}

	result, err := env.service.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("partial failure must not fail the request: %v", err)
	}
	if result.UploadedMedia != 2 || result.TotalMedia != 3 {
		t.Errorf("expected 2/3 media, got %d/%d", result.UploadedMedia, result.TotalMedia)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "b.jpg") {
		t.Errorf("expected a warning naming b.jpg, got %v", result.Warnings)
	}
	// Ordre d'entrée préservé pour les éléments retenus.
	if env.repo.created.Elements[0].Filename != "a.jpg" || env.repo.created.Elements[1].Filename != "c.jpg" {
		t.Errorf("unexpected element order: %+v", env.repo.created.Elements)
	}
}

func TestCreateAllUploadsFailed(t *testing.T) {
	env := newTestEnv(&stubAI{}, false)
	env.media.uploadErr = map[string]error{"a.jpg": errors.New("minio down")}

	input := validInput()
	input.Medias = []MediaItem{{Data: []byte("1"), Filename: "a.jpg", Mimetype: "image/jpeg"}}

	_, err := env.service.Create(context.Background(), input)
	if !errors.Is(err, errs.ErrStorageUnavailable) {
		t.Errorf("expected ErrStorageUnavailable when every upload fails, got %v", err)
	}
	if env.repo.created != nil {
		t.Error("nothing may be persisted")
	}
}

// Échec du commit : les objets uploadés par la requête sont supprimés en
// compensation, l'appelant reçoit une erreur stockage.
func TestCreateCommitFailureCompensates(t *testing.T) {
	env := newTestEnv(&stubAI{}, false)
	env.repo.createErr = errors.New("connection reset")

	_, err := env.service.Create(context.Background(), validInput())
	if !errors.Is(err, errs.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}

	if len(env.media.uploaded) != 1 {
		t.Fatalf("expected 1 upload before commit, got %d", len(env.media.uploaded))
	}
	if len(env.media.deleted) != 1 || env.media.deleted[0] != env.media.uploaded[0] {
		t.Errorf("uploaded object must be compensated, uploaded=%v deleted=%v",
			env.media.uploaded, env.media.deleted)
	}
	if len(env.notifier.dispatched) != 0 {
		t.Error("no notification may be sent on a failed commit")
	}
}

func TestCreateStrictCoherence(t *testing.T) {
	incoherent := &stubAI{coherence: &CoherenceResult{IsValid: false, Similarity: 0.1}}

	t.Run("mode strict du processus : rejet", func(t *testing.T) {
		env := newTestEnv(incoherent, true)

		_, err := env.service.Create(context.Background(), validInput())
		if !errors.Is(err, errs.ErrCoherenceFailed) {
			t.Fatalf("expected ErrCoherenceFailed, got %v", err)
		}
		// Le rejet précède tout upload.
		if len(env.media.uploaded) != 0 {
			t.Errorf("strict rejection must precede uploads, got %v", env.media.uploaded)
		}
	})

	t.Run("mode strict demandé par la requête", func(t *testing.T) {
		env := newTestEnv(incoherent, false)
		input := validInput()
		input.Strict = true

		_, err := env.service.Create(context.Background(), input)
		if !errors.Is(err, errs.ErrCoherenceFailed) {
			t.Errorf("request flag must tighten validation, got %v", err)
		}
	})

	t.Run("mode permissif : warning implicite, création", func(t *testing.T) {
		env := newTestEnv(incoherent, false)

		result, err := env.service.Create(context.Background(), validInput())
		if err != nil {
			t.Fatalf("permissive mode must accept incoherent media: %v", err)
		}
		if result.Trace.CoherenceValid == nil || *result.Trace.CoherenceValid {
			t.Error("trace should record the failed coherence check")
		}
	})
}

func TestCreateWithoutLocation(t *testing.T) {
	env := newTestEnv(&stubAI{}, false)
	input := validInput()
	input.HasLocation = false
	input.Location = nil

	result, err := env.service.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if result.Location != nil {
		t.Error("expected no location in result")
	}
	if env.repo.created.H3Index != "" {
		t.Error("expected no h3 index without location")
	}
}

func TestGetByIDRepairsCategories(t *testing.T) {
	env := newTestEnv(&stubAI{}, false)
	env.repo.byID = map[int64]*entity.Signalement{
		5: {
			ID: 5,
			Elements: []entity.MediaElement{
				// Donnée historique : catégorie divergente du MIME.
				{Mimetype: "image/png", Category: entity.MediaOthers},
			},
		},
	}

	sig, err := env.service.GetByID(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if sig.Elements[0].Category != entity.MediaImages {
		t.Errorf("expected repaired category images, got %q", sig.Elements[0].Category)
	}
}

func TestFindNearbyRejectsBadCoordinates(t *testing.T) {
	env := newTestEnv(&stubAI{}, false)
	_, err := env.service.FindNearby(context.Background(), 120, 0, 500)
	if !errors.Is(err, errs.ErrBadRequest) {
		t.Errorf("expected ErrBadRequest, got %v", err)
	}
}
