package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bpradana/weave"
	"github.com/uber/h3-go/v4"
	"go.uber.org/zap"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/repository"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/errs"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/platform/queue"
)

const maxDescriptionLen = 255

// h3Resolution fixe la finesse de l'index géographique des signalements.
const h3Resolution = 10

// MediaItem est un média entrant, sous l'une des trois formes acceptées :
// octets bruts (upload normal), référence déjà stockée (republication), ou
// URL externe seule.
type MediaItem struct {
	// Forme (a) : upload standard.
	Data     []byte
	Filename string
	Mimetype string

	// Forme (b) : republication, métadonnée réutilisée telle quelle.
	StoragePath string
	URL         string

	// Forme (c) : URL externe.
	ExternalURL string
}

func (m *MediaItem) isStandard() bool      { return len(m.Data) > 0 }
func (m *MediaItem) isRepublication() bool { return m.StoragePath != "" }
func (m *MediaItem) isExternal() bool      { return !m.isStandard() && !m.isRepublication() && m.ExternalURL != "" }

// CreateSignalementInput porte l'intégralité d'une demande d'ingestion.
type CreateSignalementInput struct {
	Description  string
	CitoyenID    int64
	Cible        string
	HasLocation  bool
	Location     *entity.GPSLocation
	Anonymat     bool
	RepublierDe  *int64
	ModerateurID *int64
	// Strict permet à la requête d'opter pour la validation stricte ;
	// elle ne peut pas assouplir une configuration stricte du processus.
	Strict bool
	Medias []MediaItem
}

// CreateSignalementResult est la forme de réponse d'une ingestion réussie.
type CreateSignalementResult struct {
	ID            int64                      `json:"id"`
	Type          string                     `json:"type"`
	Priorite      entity.SignalementPriority `json:"priority"`
	UploadedMedia int                        `json:"uploaded_media"`
	TotalMedia    int                        `json:"total_media"`
	Location      *entity.GPSLocation        `json:"location,omitempty"`
	Warnings      []string                   `json:"warnings,omitempty"`
	Trace         *AITrace                   `json:"ai_trace,omitempty"`
}

// SignalementEvent est le message publié sur la file à la création, consommé
// par le worker de notification.
type SignalementEvent struct {
	SignalementID int64                      `json:"signalement_id"`
	Type          string                     `json:"type"`
	Priorite      entity.SignalementPriority `json:"priorite"`
	Description   string                     `json:"description"`
	CitoyenID     int64                      `json:"citoyen_id"`
	H3Index       string                     `json:"h3_index,omitempty"`
	Latitude      float64                    `json:"latitude,omitempty"`
	Longitude     float64                    `json:"longitude,omitempty"`
	HasLocation   bool                       `json:"has_location"`
}

// SignalementService orchestre l'ingestion d'un signalement : validation,
// phase IA, uploads, persistance transactionnelle avec compensation, et
// fan-out de notifications.
type SignalementService interface {
	Create(ctx context.Context, input *CreateSignalementInput) (*CreateSignalementResult, error)
	GetByID(ctx context.Context, id int64) (*entity.Signalement, error)
	GetAll(ctx context.Context, statut string) ([]entity.Signalement, error)
	FindNearby(ctx context.Context, lat, lon, radiusMeters float64) ([]entity.Signalement, error)
	Vote(ctx context.Context, id int64, positif bool) error
	SoftDelete(ctx context.Context, id int64) error
}

type signalementService struct {
	repo       repository.SignalementRepository
	media      MediaService
	ai         AIService
	notifier   NotificationService
	publisher  queue.Publisher
	strictMode bool
	aiMode     string
	logger     *zap.Logger
}

func NewSignalementService(
	repo repository.SignalementRepository,
	media MediaService,
	ai AIService,
	notifier NotificationService,
	publisher queue.Publisher,
	strictMode bool,
	aiMode string,
	logger *zap.Logger,
) SignalementService {
	return &signalementService{
		repo:       repo,
		media:      media,
		ai:         ai,
		notifier:   notifier,
		publisher:  publisher,
		strictMode: strictMode,
		aiMode:     aiMode,
		logger:     logger.Named("signalement"),
	}
}

func (s *signalementService) Create(ctx context.Context, input *CreateSignalementInput) (*CreateSignalementResult, error) {
	// 1. Validation : aucune mutation avant ce point.
	if strings.TrimSpace(input.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", errs.ErrBadRequest)
	}
	if len([]rune(input.Description)) > maxDescriptionLen {
		return nil, fmt.Errorf("%w: description exceeds %d characters", errs.ErrBadRequest, maxDescriptionLen)
	}
	if input.CitoyenID <= 0 {
		return nil, fmt.Errorf("%w: citoyen_id is required", errs.ErrBadRequest)
	}
	// Politique taille + MIME avant tout effet de bord : un blob interdit
	// rejette la requête entière, rien n'est uploadé ni persisté.
	for _, item := range input.Medias {
		if !item.isStandard() {
			continue
		}
		if err := s.media.ValidateBlob(item.Data, item.Mimetype); err != nil {
			return nil, fmt.Errorf("%w: %s", err, item.Filename)
		}
	}

	// 2. GPS : uniquement si has_location, bornes vérifiées.
	var location *entity.GPSLocation
	var h3Index string
	if input.HasLocation && input.Location != nil {
		if !input.Location.Valid() {
			return nil, fmt.Errorf("%w: coordinates out of range (lat %f, lon %f)",
				errs.ErrBadRequest, input.Location.Latitude, input.Location.Longitude)
		}
		location = input.Location
		cell := h3.LatLngToCell(h3.NewLatLng(location.Latitude, location.Longitude), h3Resolution)
		h3Index = cell.String()
	}

	// 3-4. Phase IA concurrente puis décision type/priorité.
	phase := s.runAIPhase(ctx, input)

	// Le mode strict de la requête ne peut qu'opter pour plus de rigueur.
	strict := s.strictMode || input.Strict
	if strict && phase.trace.CoherenceChecked && phase.trace.CoherenceValid != nil && !*phase.trace.CoherenceValid {
		return nil, fmt.Errorf("%w: similarity %.3f below threshold", errs.ErrCoherenceFailed, phase.trace.Similarity)
	}

	// 5-6. Uploads (forme a) et réutilisation de métadonnées (formes b/c),
	// en préservant l'ordre d'entrée.
	elements, uploadedKeys, warnings, err := s.collectMedia(ctx, input)
	if err != nil {
		return nil, err
	}

	sig := &entity.Signalement{
		Description:     input.Description,
		TypeSignalement: phase.category,
		Statut:          entity.StatusEnAttente,
		Cible:           input.Cible,
		ModerateurID:    input.ModerateurID,
		Anonymat:        input.Anonymat,
		RepublierDe:     input.RepublierDe,
		Priorite:        phase.priority,
		Location:        location,
		H3Index:         h3Index,
		CitoyenID:       input.CitoyenID,
		Elements:        elements,
		CreatedAt:       time.Now(),
	}

	if err := s.repo.Create(ctx, sig); err != nil {
		// 8. Compensation : suppression best-effort des objets fraîchement
		// uploadés par cette requête (forme a uniquement).
		s.compensate(ctx, uploadedKeys)
		s.logger.Error("commit failed, media compensated",
			zap.Int("compensated", len(uploadedKeys)), zap.Error(err))
		return nil, fmt.Errorf("%w: signalement commit failed", errs.ErrStorageUnavailable)
	}

	// 7. Fan-out : le reporter en direct, les modérateurs et abonnés via la
	// file. Aucun échec de notification ne remonte à l'appelant.
	s.notifyReporter(ctx, sig)
	s.publishEvent(ctx, sig)

	result := &CreateSignalementResult{
		ID:            sig.ID,
		Type:          sig.TypeSignalement,
		Priorite:      sig.Priorite,
		UploadedMedia: len(elements),
		TotalMedia:    len(input.Medias),
		Location:      location,
		Warnings:      warnings,
		Trace:         phase.trace,
	}
	return result, nil
}

// aiPhaseResult rassemble les décisions de la phase IA.
type aiPhaseResult struct {
	category string
	priority entity.SignalementPriority
	trace    *AITrace
}

// aiOutcome encapsule l'issue d'un sous-appel : les tâches du graphe ne
// retournent jamais d'erreur weave, la dégradation est portée par la valeur.
type aiOutcome[T any] struct {
	value   T
	err     error
	skipped bool
	elapsed time.Duration
}

// runAIPhase exécute les sous-appels IA en graphe de tâches : texte et médias
// en parallèle, cohérence et catégorisation après leurs dépendances, priorité
// après le choix du type. L'annulation du contexte interrompt tout le graphe.
func (s *signalementService) runAIPhase(ctx context.Context, input *CreateSignalementInput) *aiPhaseResult {
	trace := &AITrace{ServiceAvailable: true, CategorySource: SourceKeyword, PrioritySource: SourceDefault}

	standard := standardMedias(input.Medias)

	graph := weave.NewGraph()

	textTask, _ := weave.AddTask(graph, "text-features", func(tctx context.Context, _ weave.DependencyResolver) (aiOutcome[*TextFeatures], error) {
		started := time.Now()
		tf, err := s.ai.TextFeatures(tctx, input.Description)
		return aiOutcome[*TextFeatures]{value: tf, err: err, elapsed: time.Since(started)}, nil
	})

	mediaTasks := make([]*weave.Handle[aiOutcome[[]float64]], len(standard))
	mediaRefs := make([]weave.TaskReference, 0, len(standard)+1)
	mediaRefs = append(mediaRefs, textTask)
	for i, item := range standard {
		item := item
		handle, _ := weave.AddTask(graph, fmt.Sprintf("media-features-%d", i), func(tctx context.Context, _ weave.DependencyResolver) (aiOutcome[[]float64], error) {
			started := time.Now()
			vec, err := s.ai.MediaFeatures(tctx, item.Data, item.Mimetype)
			return aiOutcome[[]float64]{value: vec, err: err, elapsed: time.Since(started)}, nil
		})
		mediaTasks[i] = handle
		mediaRefs = append(mediaRefs, handle)
	}

	coherenceTask, _ := weave.AddTask(graph, "coherence", func(tctx context.Context, deps weave.DependencyResolver) (aiOutcome[*CoherenceResult], error) {
		text, _ := textTask.Value(deps)
		mediaMean := meanMediaVector(mediaTasks, deps)
		// Dégradation : sans vecteur texte ou sans aucun vecteur média,
		// la cohérence est sautée.
		if text.err != nil || text.value == nil || mediaMean == nil {
			return aiOutcome[*CoherenceResult]{skipped: true}, nil
		}
		started := time.Now()
		res, err := s.ai.Coherence(tctx, text.value.Vector, mediaMean, s.aiMode)
		return aiOutcome[*CoherenceResult]{value: res, err: err, elapsed: time.Since(started)}, nil
	}, weave.DependsOn(mediaRefs...))

	categorizeTask, _ := weave.AddTask(graph, "categorize", func(tctx context.Context, deps weave.DependencyResolver) (aiOutcome[*CategoryResult], error) {
		text, _ := textTask.Value(deps)
		if text.err != nil || text.value == nil {
			return aiOutcome[*CategoryResult]{skipped: true}, nil
		}
		mediaMean := meanMediaVector(mediaTasks, deps)
		started := time.Now()
		res, err := s.ai.Categorize(tctx, text.value.Vector, mediaMean, input.Description)
		return aiOutcome[*CategoryResult]{value: res, err: err, elapsed: time.Since(started)}, nil
	}, weave.DependsOn(mediaRefs...))

	priorityTask, _ := weave.AddTask(graph, "priority", func(tctx context.Context, deps weave.DependencyResolver) (aiOutcome[entity.SignalementPriority], error) {
		text, _ := textTask.Value(deps)
		if text.err != nil || text.value == nil {
			// Sans features texte, la priorité retombe sur Moyenne.
			return aiOutcome[entity.SignalementPriority]{skipped: true}, nil
		}
		cat, _ := categorizeTask.Value(deps)
		sigType := decideCategory(cat, input.Description)

		payload := make([]PriorityMedia, 0, len(standard))
		for _, item := range standard {
			payload = append(payload, PriorityMedia{Data: item.Data, Mimetype: item.Mimetype})
		}
		started := time.Now()
		p, err := s.ai.Priority(tctx, sigType, input.Description, payload)
		return aiOutcome[entity.SignalementPriority]{value: p, err: err, elapsed: time.Since(started)}, nil
	}, weave.DependsOn(textTask, categorizeTask))

	results, _, runErr := graph.Run(ctx)
	if runErr != nil {
		// Annulation ou panne du graphe : tout est dégradé.
		s.logger.Warn("ai phase aborted", zap.Error(runErr))
		trace.ServiceAvailable = false
		return &aiPhaseResult{
			category: FallbackCategory(input.Description),
			priority: entity.PriorityMoyenne,
			trace:    trace,
		}
	}

	text, _ := textTask.Value(results)
	recordCall(trace, "process_text", text.err, text.skipped, text.elapsed)
	trace.TextProcessed = text.err == nil && text.value != nil

	for i, handle := range mediaTasks {
		outcome, _ := handle.Value(results)
		recordCall(trace, fmt.Sprintf("process_media[%d]", i), outcome.err, outcome.skipped, outcome.elapsed)
		if outcome.err == nil && len(outcome.value) > 0 {
			trace.MediaProcessed++
		} else {
			trace.MediaFailed++
		}
	}

	coherence, _ := coherenceTask.Value(results)
	recordCall(trace, "validate", coherence.err, coherence.skipped, coherence.elapsed)
	if !coherence.skipped && coherence.err == nil && coherence.value != nil {
		trace.CoherenceChecked = true
		valid := coherence.value.IsValid
		trace.CoherenceValid = &valid
		trace.Similarity = coherence.value.Similarity
	}

	category, _ := categorizeTask.Value(results)
	recordCall(trace, "categorize", category.err, category.skipped, category.elapsed)
	if !category.skipped && category.err == nil && category.value != nil {
		trace.CategorySource = SourceAI
	}

	priority, _ := priorityTask.Value(results)
	recordCall(trace, "calculate_priority", priority.err, priority.skipped, priority.elapsed)

	finalPriority := entity.PriorityMoyenne
	if !priority.skipped && priority.err == nil && priority.value != "" {
		finalPriority = priority.value
		trace.PrioritySource = SourceAI
	}

	// service_available=false quand aucun sous-appel tenté n'a abouti.
	trace.ServiceAvailable = anyCallSucceeded(trace)

	return &aiPhaseResult{
		category: decideCategory(category, input.Description),
		priority: finalPriority,
		trace:    trace,
	}
}

func decideCategory(outcome aiOutcome[*CategoryResult], description string) string {
	if !outcome.skipped && outcome.err == nil && outcome.value != nil && outcome.value.Category != "" {
		return outcome.value.Category
	}
	return FallbackCategory(description)
}

func meanMediaVector(handles []*weave.Handle[aiOutcome[[]float64]], deps weave.DependencyResolver) []float64 {
	var sum []float64
	count := 0
	for _, h := range handles {
		outcome, err := h.Value(deps)
		if err != nil || outcome.err != nil || len(outcome.value) == 0 {
			continue // média manquant : on poursuit sans lui
		}
		if sum == nil {
			sum = make([]float64, len(outcome.value))
		}
		if len(outcome.value) != len(sum) {
			continue
		}
		for i, v := range outcome.value {
			sum[i] += v
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float64(count)
	}
	return sum
}

func recordCall(trace *AITrace, endpoint string, err error, skipped bool, elapsed time.Duration) {
	if skipped {
		return
	}
	call := AICallTrace{
		Endpoint: endpoint,
		Success:  err == nil,
		Duration: float64(elapsed.Milliseconds()),
	}
	if err != nil {
		call.Error = err.Error()
	}
	trace.Calls = append(trace.Calls, call)
}

func anyCallSucceeded(trace *AITrace) bool {
	for _, c := range trace.Calls {
		if c.Success {
			return true
		}
	}
	return false
}

func standardMedias(items []MediaItem) []MediaItem {
	out := make([]MediaItem, 0, len(items))
	for _, m := range items {
		if m.isStandard() {
			out = append(out, m)
		}
	}
	return out
}

// collectMedia traite les médias dans l'ordre d'entrée : upload pour la forme
// (a), réutilisation de métadonnées pour (b) et (c). Les échecs d'upload sont
// consignés en warnings ; la requête n'échoue que si tous les uploads de la
// forme (a) ont échoué alors qu'au moins un était demandé.
func (s *signalementService) collectMedia(ctx context.Context, input *CreateSignalementInput) ([]entity.MediaElement, []string, []string, error) {
	elements := []entity.MediaElement{}
	uploadedKeys := []string{}
	var warnings []string
	nStandard, uploadedStandard := 0, 0

	uctx := entity.ContextStandard
	if input.RepublierDe != nil {
		uctx = entity.ContextRepublication
	}

	for _, item := range input.Medias {
		switch {
		case item.isStandard():
			nStandard++
			element, err := s.media.Upload(ctx, item.Data, item.Filename, item.Mimetype, input.CitoyenID, uctx)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("upload failed for %s: %v", item.Filename, err))
				continue
			}
			uploadedStandard++
			uploadedKeys = append(uploadedKeys, element.StoragePath)
			elements = append(elements, *element)

		case item.isRepublication():
			element := entity.MediaElement{
				Filename:      SanitizeFilename(item.Filename),
				StoragePath:   item.StoragePath,
				Mimetype:      item.Mimetype,
				Category:      CategoryOf(item.Mimetype),
				URL:           item.URL,
				UploadedAt:    time.Now(),
				UploadContext: entity.ContextRepublication,
			}
			element.ApplyCategoryFlags()
			elements = append(elements, element)

		case item.isExternal():
			element := entity.MediaElement{
				Filename:      SanitizeFilename(item.Filename),
				Mimetype:      item.Mimetype,
				Category:      CategoryOf(item.Mimetype),
				URL:           item.ExternalURL,
				UploadedAt:    time.Now(),
				UploadContext: entity.ContextExternalURL,
			}
			element.ApplyCategoryFlags()
			elements = append(elements, element)

		default:
			warnings = append(warnings, "ignored empty media item")
		}
	}

	if nStandard > 0 && uploadedStandard == 0 {
		return nil, nil, nil, fmt.Errorf("%w: all media uploads failed", errs.ErrStorageUnavailable)
	}

	return elements, uploadedKeys, warnings, nil
}

// compensate supprime en best-effort les objets uploadés par cette requête.
// Les suppressions sont idempotentes ; on ne réessaie pas.
func (s *signalementService) compensate(ctx context.Context, keys []string) {
	for _, key := range keys {
		if !s.media.Delete(ctx, key) {
			s.logger.Warn("compensation delete failed, orphan blob", zap.String("key", key))
		}
	}
}

func (s *signalementService) notifyReporter(ctx context.Context, sig *entity.Signalement) {
	id := sig.ID
	s.notifier.Dispatch(ctx, sig.CitoyenID, &NotificationInput{
		Title:      "Signalement enregistré",
		Message:    fmt.Sprintf("Votre signalement %q a bien été enregistré.", truncate(sig.Description, 60)),
		EntityType: "signalement",
		EntityID:   &id,
		Priority:   entity.NotifNormal,
		Category:   entity.NotifCatSignalement,
		Data: map[string]any{
			"signalement_id": sig.ID,
			"type":           sig.TypeSignalement,
			"priorite":       sig.Priorite,
		},
	})
}

// publishEvent pousse l'événement de création vers le worker. Si la file est
// indisponible, l'événement est perdu côté asynchrone : le worker porte le
// fan-out modérateurs, et sa perte n'est jamais fatale pour la requête.
func (s *signalementService) publishEvent(ctx context.Context, sig *entity.Signalement) {
	if s.publisher == nil {
		return
	}
	event := SignalementEvent{
		SignalementID: sig.ID,
		Type:          sig.TypeSignalement,
		Priorite:      sig.Priorite,
		Description:   sig.Description,
		CitoyenID:     sig.CitoyenID,
		H3Index:       sig.H3Index,
	}
	if sig.Location != nil {
		event.HasLocation = true
		event.Latitude = sig.Location.Latitude
		event.Longitude = sig.Location.Longitude
	}
	// Contexte détaché : la publication ne doit pas être annulée par la fin
	// de la requête HTTP.
	go func() {
		if err := s.publisher.Publish(context.Background(), queue.QueueSignalementCreated, event); err != nil {
			s.logger.Warn("failed to publish signalement event", zap.Int64("id", sig.ID), zap.Error(err))
		}
	}()
}

func (s *signalementService) GetByID(ctx context.Context, id int64) (*entity.Signalement, error) {
	sig, err := s.repo.GetByID(ctx, id)
	if err != nil || sig == nil {
		return sig, err
	}
	repairMediaCategories(sig)
	return sig, nil
}

func (s *signalementService) GetAll(ctx context.Context, statut string) ([]entity.Signalement, error) {
	sigs, err := s.repo.GetAll(ctx, statut)
	if err != nil {
		return nil, err
	}
	for i := range sigs {
		repairMediaCategories(&sigs[i])
	}
	return sigs, nil
}

func (s *signalementService) FindNearby(ctx context.Context, lat, lon, radiusMeters float64) ([]entity.Signalement, error) {
	loc := entity.GPSLocation{Latitude: lat, Longitude: lon}
	if !loc.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range", errs.ErrBadRequest)
	}
	cell := h3.LatLngToCell(h3.NewLatLng(lat, lon), h3Resolution)
	sigs, err := s.repo.FindNearby(ctx, cell.String(), lat, lon, radiusMeters)
	if err != nil {
		return nil, err
	}
	for i := range sigs {
		repairMediaCategories(&sigs[i])
	}
	return sigs, nil
}

func (s *signalementService) Vote(ctx context.Context, id int64, positif bool) error {
	return s.repo.Vote(ctx, id, positif, 1)
}

func (s *signalementService) SoftDelete(ctx context.Context, id int64) error {
	return s.repo.SoftDelete(ctx, id)
}

// repairMediaCategories réaligne à la lecture les catégories divergentes des
// données historiques.
func repairMediaCategories(sig *entity.Signalement) {
	for i := range sig.Elements {
		RepairCategory(&sig.Elements[i])
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
