package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/errs"
)

// newAIStub démarre un serveur HTTP simulant le service IA ; routes renvoie
// la réponse JSON par chemin d'endpoint.
func newAIStub(t *testing.T, routes map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, ok := routes[r.URL.Path]
		if !ok {
			http.Error(w, "unexpected call "+r.URL.Path, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAITextFeatures(t *testing.T) {
	srv := newAIStub(t, map[string]any{
		"/process_text": map[string]any{"vector": []float64{0.1, 0.2}, "length": 20, "word_count": 4},
	})
	s := NewAIService(srv.URL, srv.URL, zap.NewNop())

	features, err := s.TextFeatures(context.Background(), "nid de poule rue Foo")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, features.Vector)
	assert.Equal(t, 4, features.WordCount)
}

func TestAITextFeaturesEmptyVector(t *testing.T) {
	srv := newAIStub(t, map[string]any{
		"/process_text": map[string]any{"vector": []float64{}},
	})
	s := NewAIService(srv.URL, srv.URL, zap.NewNop())

	_, err := s.TextFeatures(context.Background(), "x")
	assert.Error(t, err)
}

func TestAIMediaFeaturesRouting(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{"vector": []float64{1}})
	}))
	defer srv.Close()
	s := NewAIService(srv.URL, srv.URL, zap.NewNop())

	t.Run("image", func(t *testing.T) {
		_, err := s.MediaFeatures(context.Background(), []byte{1}, "image/jpeg")
		require.NoError(t, err)
		assert.Equal(t, "/process_image", gotPath)
	})

	t.Run("video", func(t *testing.T) {
		_, err := s.MediaFeatures(context.Background(), []byte{1}, "video/mp4")
		require.NoError(t, err)
		assert.Equal(t, "/process_video", gotPath)
	})

	t.Run("mime non vectorisable", func(t *testing.T) {
		_, err := s.MediaFeatures(context.Background(), []byte{1}, "application/pdf")
		assert.True(t, errors.Is(err, errs.ErrUnsupportedMedia))
	})
}

func TestAICoherence(t *testing.T) {
	srv := newAIStub(t, map[string]any{
		"/validate": map[string]any{"is_valid": false, "similarity": 0.12, "confidence": 0.9, "threshold": 0.5},
	})
	s := NewAIService(srv.URL, srv.URL, zap.NewNop())

	res, err := s.Coherence(context.Background(), []float64{1}, []float64{0}, "strict")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, 0.12, res.Similarity)
}

func TestAICategorize(t *testing.T) {
	srv := newAIStub(t, map[string]any{
		"/categorize": map[string]any{"category": entity.CategorieVoirie, "confidence": 0.87},
	})
	s := NewAIService(srv.URL, srv.URL, zap.NewNop())

	res, err := s.Categorize(context.Background(), []float64{1}, nil, "nid de poule")
	require.NoError(t, err)
	assert.Equal(t, entity.CategorieVoirie, res.Category)
}

func TestAIPriority(t *testing.T) {
	t.Run("priorité connue", func(t *testing.T) {
		srv := newAIStub(t, map[string]any{
			"/calculate_priority": map[string]any{"priority": "Haute"},
		})
		s := NewAIService(srv.URL, srv.URL, zap.NewNop())

		p, err := s.Priority(context.Background(), entity.CategorieSecurite, "agression", nil)
		require.NoError(t, err)
		assert.Equal(t, entity.PriorityHaute, p)
	})

	t.Run("priorité inconnue rejetée", func(t *testing.T) {
		srv := newAIStub(t, map[string]any{
			"/calculate_priority": map[string]any{"priority": "Critique"},
		})
		s := NewAIService(srv.URL, srv.URL, zap.NewNop())

		_, err := s.Priority(context.Background(), entity.CategorieSecurite, "x", nil)
		assert.Error(t, err)
	})
}

func TestAIServiceUnavailable(t *testing.T) {
	srv := newAIStub(t, map[string]any{}) // toute route répond 500
	s := NewAIService(srv.URL, srv.URL, zap.NewNop())

	_, err := s.TextFeatures(context.Background(), "x")
	assert.Error(t, err)
}
