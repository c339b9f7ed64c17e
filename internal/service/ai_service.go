package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/errs"
)

// Budgets par endpoint. Pas de retry : le timeout est le budget.
const (
	textFeaturesTimeout  = 15 * time.Second
	imageFeaturesTimeout = 30 * time.Second
	videoFeaturesTimeout = 120 * time.Second
	coherenceTimeout     = 15 * time.Second
	categorizeTimeout    = 15 * time.Second
	priorityTimeout      = 15 * time.Second
)

// TextFeatures est le résultat de la vectorisation du texte.
type TextFeatures struct {
	Vector    []float64 `json:"vector"`
	Length    int       `json:"length"`
	WordCount int       `json:"word_count"`
}

// CoherenceResult est le verdict de cohérence texte/médias.
type CoherenceResult struct {
	IsValid    bool    `json:"is_valid"`
	Similarity float64 `json:"similarity"`
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
}

// CategoryResult est la catégorie prédite et ses scores.
type CategoryResult struct {
	Category   string             `json:"category"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores,omitempty"`
}

// PriorityMedia est un média transmis (en base64) au service de priorité.
type PriorityMedia struct {
	Data     []byte
	Mimetype string
}

// AIService est le client fin des cinq endpoints du service IA. Chaque appel
// peut échouer indépendamment ; l'appelant applique la politique de dégradation.
type AIService interface {
	TextFeatures(ctx context.Context, description string) (*TextFeatures, error)
	// MediaFeatures vectorise une image ou une vidéo ; tout autre MIME
	// retourne ErrUnsupportedMedia.
	MediaFeatures(ctx context.Context, data []byte, mimetype string) ([]float64, error)
	Coherence(ctx context.Context, textVec, mediaVec []float64, mode string) (*CoherenceResult, error)
	Categorize(ctx context.Context, textVec, mediaVec []float64, description string) (*CategoryResult, error)
	Priority(ctx context.Context, typeSignalement, description string, medias []PriorityMedia) (entity.SignalementPriority, error)
}

type aiService struct {
	baseURL     string
	priorityURL string
	client      *http.Client
	logger      *zap.Logger
}

// NewAIService construit le client. priorityURL pointe vers le service de
// calcul de priorité, exposé sur un port distinct.
func NewAIService(baseURL, priorityURL string, logger *zap.Logger) AIService {
	return &aiService{
		baseURL:     strings.TrimRight(baseURL, "/"),
		priorityURL: strings.TrimRight(priorityURL, "/"),
		// Le timeout effectif vient du contexte par appel.
		client: &http.Client{},
		logger: logger.Named("ai"),
	}
}

func (s *aiService) TextFeatures(ctx context.Context, description string) (*TextFeatures, error) {
	var out TextFeatures
	err := s.post(ctx, s.baseURL+"/process_text", textFeaturesTimeout,
		map[string]any{"text": description}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Vector) == 0 {
		return nil, fmt.Errorf("empty text vector")
	}
	return &out, nil
}

func (s *aiService) MediaFeatures(ctx context.Context, data []byte, mimetype string) ([]float64, error) {
	var endpoint string
	var timeout time.Duration
	switch {
	case strings.HasPrefix(mimetype, "image/"):
		endpoint, timeout = "/process_image", imageFeaturesTimeout
	case strings.HasPrefix(mimetype, "video/"):
		endpoint, timeout = "/process_video", videoFeaturesTimeout
	default:
		return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedMedia, mimetype)
	}

	var out struct {
		Vector []float64 `json:"vector"`
	}
	err := s.post(ctx, s.baseURL+endpoint, timeout, map[string]any{
		"data":     base64.StdEncoding.EncodeToString(data),
		"mimetype": mimetype,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Vector) == 0 {
		return nil, fmt.Errorf("empty media vector")
	}
	return out.Vector, nil
}

func (s *aiService) Coherence(ctx context.Context, textVec, mediaVec []float64, mode string) (*CoherenceResult, error) {
	var out CoherenceResult
	err := s.post(ctx, s.baseURL+"/validate", coherenceTimeout, map[string]any{
		"text_vector":  textVec,
		"media_vector": mediaVec,
		"mode":         mode,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *aiService) Categorize(ctx context.Context, textVec, mediaVec []float64, description string) (*CategoryResult, error) {
	payload := map[string]any{
		"text_vector": textVec,
		"description": description,
	}
	if len(mediaVec) > 0 {
		payload["media_vector"] = mediaVec
	}
	var out CategoryResult
	if err := s.post(ctx, s.baseURL+"/categorize", categorizeTimeout, payload, &out); err != nil {
		return nil, err
	}
	if out.Category == "" {
		return nil, fmt.Errorf("empty category")
	}
	return &out, nil
}

func (s *aiService) Priority(ctx context.Context, typeSignalement, description string, medias []PriorityMedia) (entity.SignalementPriority, error) {
	encoded := make([]map[string]string, 0, len(medias))
	for _, m := range medias {
		encoded = append(encoded, map[string]string{
			"data":     base64.StdEncoding.EncodeToString(m.Data),
			"mimetype": m.Mimetype,
		})
	}
	var out struct {
		Priority string `json:"priority"`
	}
	err := s.post(ctx, s.priorityURL+"/calculate_priority", priorityTimeout, map[string]any{
		"type":        typeSignalement,
		"description": description,
		"medias":      encoded,
	}, &out)
	if err != nil {
		return "", err
	}

	switch entity.SignalementPriority(out.Priority) {
	case entity.PriorityBasse, entity.PriorityMoyenne, entity.PriorityHaute:
		return entity.SignalementPriority(out.Priority), nil
	default:
		return "", fmt.Errorf("unknown priority %q", out.Priority)
	}
}

func (s *aiService) post(ctx context.Context, url string, timeout time.Duration, payload any, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ai service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ai service error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode ai response: %w", err)
	}
	return nil
}
