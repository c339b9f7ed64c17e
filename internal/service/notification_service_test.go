package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/platform/push"
)

// Mock de NotificationRepository pour les tests
type mockNotifRepo struct {
	prefs    map[int64]*entity.NotificationPreferences
	prefsErr error
	history  []entity.NotificationHistory
	realtime []entity.RealtimeNotification
	rtErr    error
}

func (m *mockNotifRepo) GetPreferences(ctx context.Context, userID int64) (*entity.NotificationPreferences, error) {
	if m.prefsErr != nil {
		return nil, m.prefsErr
	}
	if p, ok := m.prefs[userID]; ok {
		return p, nil
	}
	return entity.DefaultPreferences(userID), nil
}

func (m *mockNotifRepo) UpdatePreferences(ctx context.Context, prefs *entity.NotificationPreferences) error {
	return nil
}

func (m *mockNotifRepo) FindLocationSubscribers(ctx context.Context, lat, lon float64) ([]int64, error) {
	return nil, nil
}

func (m *mockNotifRepo) AppendHistory(ctx context.Context, h *entity.NotificationHistory) error {
	m.history = append(m.history, *h)
	return nil
}

func (m *mockNotifRepo) ListHistory(ctx context.Context, userID int64, limit int) ([]entity.NotificationHistory, error) {
	return m.history, nil
}

func (m *mockNotifRepo) MarkRead(ctx context.Context, userID, notificationID int64) error    { return nil }
func (m *mockNotifRepo) MarkClicked(ctx context.Context, userID, notificationID int64) error { return nil }

func (m *mockNotifRepo) InsertRealtime(ctx context.Context, n *entity.RealtimeNotification) error {
	if m.rtErr != nil {
		return m.rtErr
	}
	m.realtime = append(m.realtime, *n)
	return nil
}

// Mock de DeviceTokenRepository pour les tests
type mockTokenRepo struct {
	tokens  []entity.DeviceToken
	touched []int64
}

func (m *mockTokenRepo) Register(ctx context.Context, t *entity.DeviceToken) error { return nil }
func (m *mockTokenRepo) GetActiveByUser(ctx context.Context, userID int64) ([]entity.DeviceToken, error) {
	return m.tokens, nil
}
func (m *mockTokenRepo) Deactivate(ctx context.Context, userID int64, token string) error { return nil }
func (m *mockTokenRepo) TouchLastUsed(ctx context.Context, tokenIDs []int64) error {
	m.touched = tokenIDs
	return nil
}

// Mock du client push
type mockPushClient struct {
	lastRequest *push.Request
	result      *push.Result
	err         error
}

func (m *mockPushClient) Send(ctx context.Context, req *push.Request) (*push.Result, error) {
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &push.Result{ID: "push-1", Recipients: len(req.Tokens)}, nil
}

func newTestNotificationService(nr *mockNotifRepo, tr *mockTokenRepo, pc *mockPushClient, at time.Time) *notificationService {
	s := NewNotificationService(nr, tr, pc, zap.NewNop()).(*notificationService)
	s.now = func() time.Time { return at }
	return s
}

func daytime() time.Time {
	return time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
}

func TestDispatchDeliversBothChannels(t *testing.T) {
	nr := &mockNotifRepo{prefs: map[int64]*entity.NotificationPreferences{}}
	tr := &mockTokenRepo{tokens: []entity.DeviceToken{
		{ID: 1, Token: "tok-a"},
		{ID: 2, Token: "tok-b"},
	}}
	pc := &mockPushClient{}
	s := newTestNotificationService(nr, tr, pc, daytime())

	ok := s.Dispatch(context.Background(), 5, &NotificationInput{
		Title:    "Nouveau signalement",
		Message:  "nid de poule",
		Priority: entity.NotifNormal,
		Category: entity.NotifCatSignalement,
	})
	if !ok {
		t.Fatal("expected delivery to succeed")
	}

	// Un seul appel passerelle avec tous les jetons groupés.
	if got := len(pc.lastRequest.Tokens); got != 2 {
		t.Errorf("expected 2 tokens in one push call, got %d", got)
	}
	if len(tr.touched) != 2 {
		t.Errorf("expected last_used touched for 2 tokens, got %v", tr.touched)
	}
	if len(nr.realtime) != 1 {
		t.Errorf("expected 1 realtime insert, got %d", len(nr.realtime))
	}

	if len(nr.history) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(nr.history))
	}
	h := nr.history[0]
	if !h.Success {
		t.Error("history row should be marked success")
	}
	if len(h.DeliveryMethod) != 2 {
		t.Errorf("expected both delivery methods recorded, got %v", h.DeliveryMethod)
	}
}

func TestDispatchDroppedLeavesNoTrace(t *testing.T) {
	t.Run("urgent_only écarte le trafic normal", func(t *testing.T) {
		prefs := entity.DefaultPreferences(9)
		prefs.UrgentOnly = true
		nr := &mockNotifRepo{prefs: map[int64]*entity.NotificationPreferences{9: prefs}}
		pc := &mockPushClient{}
		s := newTestNotificationService(nr, &mockTokenRepo{}, pc, daytime())

		ok := s.Dispatch(context.Background(), 9, &NotificationInput{
			Priority: entity.NotifNormal,
			Category: entity.NotifCatSignalement,
		})
		if ok {
			t.Error("expected drop")
		}
		// Aucune trace : ni historique, ni temps réel, ni push.
		if len(nr.history) != 0 {
			t.Errorf("dropped notification must not write history, got %d rows", len(nr.history))
		}
		if len(nr.realtime) != 0 {
			t.Error("dropped notification must not insert realtime")
		}
		if pc.lastRequest != nil {
			t.Error("dropped notification must not call push gateway")
		}
	})

	t.Run("catégorie désactivée", func(t *testing.T) {
		prefs := entity.DefaultPreferences(9)
		prefs.NewSignalements = false
		nr := &mockNotifRepo{prefs: map[int64]*entity.NotificationPreferences{9: prefs}}
		s := newTestNotificationService(nr, &mockTokenRepo{}, &mockPushClient{}, daytime())

		ok := s.Dispatch(context.Background(), 9, &NotificationInput{
			Priority: entity.NotifNormal,
			Category: entity.NotifCatSignalement,
		})
		if ok || len(nr.history) != 0 {
			t.Error("disabled category must drop without trace")
		}
	})

	t.Run("la modération passe même catégorie inconnue des préférences", func(t *testing.T) {
		prefs := entity.DefaultPreferences(9)
		prefs.NewSignalements = false
		nr := &mockNotifRepo{prefs: map[int64]*entity.NotificationPreferences{9: prefs}}
		s := newTestNotificationService(nr, &mockTokenRepo{}, &mockPushClient{}, daytime())

		ok := s.Dispatch(context.Background(), 9, &NotificationInput{
			Priority: entity.NotifHigh,
			Category: entity.NotifCatModeration,
		})
		if !ok {
			t.Error("moderation category should always pass the category filter")
		}
	})
}

func TestDispatchQuietHours(t *testing.T) {
	quietPrefs := func() *entity.NotificationPreferences {
		p := entity.DefaultPreferences(3)
		p.QuietHoursEnabled = true
		p.QuietHoursStart = "22:00"
		p.QuietHoursEnd = "08:00"
		return p
	}

	t.Run("fenêtre chevauchant minuit", func(t *testing.T) {
		nr := &mockNotifRepo{prefs: map[int64]*entity.NotificationPreferences{3: quietPrefs()}}
		at := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
		s := newTestNotificationService(nr, &mockTokenRepo{}, &mockPushClient{}, at)

		ok := s.Dispatch(context.Background(), 3, &NotificationInput{
			Priority: entity.NotifNormal,
			Category: entity.NotifCatSignalement,
		})
		if ok || len(nr.history) != 0 {
			t.Error("23:30 falls in 22:00-08:00, expected silent drop")
		}
	})

	t.Run("petit matin toujours dans la fenêtre", func(t *testing.T) {
		nr := &mockNotifRepo{prefs: map[int64]*entity.NotificationPreferences{3: quietPrefs()}}
		at := time.Date(2026, 3, 11, 7, 59, 0, 0, time.UTC)
		s := newTestNotificationService(nr, &mockTokenRepo{}, &mockPushClient{}, at)

		if s.Dispatch(context.Background(), 3, &NotificationInput{
			Priority: entity.NotifNormal,
			Category: entity.NotifCatSignalement,
		}) {
			t.Error("07:59 falls in 22:00-08:00, expected drop")
		}
	})

	t.Run("hors fenêtre la livraison reprend", func(t *testing.T) {
		nr := &mockNotifRepo{prefs: map[int64]*entity.NotificationPreferences{3: quietPrefs()}}
		at := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
		s := newTestNotificationService(nr, &mockTokenRepo{}, &mockPushClient{}, at)

		if !s.Dispatch(context.Background(), 3, &NotificationInput{
			Priority: entity.NotifNormal,
			Category: entity.NotifCatSignalement,
		}) {
			t.Error("midday is outside quiet hours, expected delivery")
		}
	})

	t.Run("urgent traverse les heures calmes", func(t *testing.T) {
		nr := &mockNotifRepo{prefs: map[int64]*entity.NotificationPreferences{3: quietPrefs()}}
		at := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
		s := newTestNotificationService(nr, &mockTokenRepo{}, &mockPushClient{}, at)

		if !s.Dispatch(context.Background(), 3, &NotificationInput{
			Priority: entity.NotifUrgent,
			Category: entity.NotifCatSignalement,
		}) {
			t.Error("urgent notification should bypass quiet hours")
		}
	})
}

func TestDispatchAllChannelsFail(t *testing.T) {
	// Pas de jeton actif et insertion temps réel en échec : la tentative est
	// consignée en échec dans l'historique.
	nr := &mockNotifRepo{
		prefs: map[int64]*entity.NotificationPreferences{},
		rtErr: errors.New("backplane down"),
	}
	s := newTestNotificationService(nr, &mockTokenRepo{}, &mockPushClient{}, daytime())

	ok := s.Dispatch(context.Background(), 7, &NotificationInput{
		Priority: entity.NotifNormal,
		Category: entity.NotifCatSignalement,
	})
	if ok {
		t.Error("expected failure when no channel delivers")
	}
	if len(nr.history) != 1 {
		t.Fatalf("attempted delivery must still write history, got %d rows", len(nr.history))
	}
	h := nr.history[0]
	if h.Success {
		t.Error("history row should be marked failed")
	}
	if len(h.DeliveryMethod) != 1 || h.DeliveryMethod[0] != entity.DeliveryFailed {
		t.Errorf("expected delivery_method [failed], got %v", h.DeliveryMethod)
	}
}

func TestDispatchBulkCountsSuccesses(t *testing.T) {
	// L'utilisateur 2 a tout coupé ; 1 et 3 reçoivent.
	muted := entity.DefaultPreferences(2)
	muted.UrgentOnly = true
	nr := &mockNotifRepo{prefs: map[int64]*entity.NotificationPreferences{2: muted}}
	s := newTestNotificationService(nr, &mockTokenRepo{}, &mockPushClient{}, daytime())

	count := s.DispatchBulk(context.Background(), []int64{1, 2, 3}, &NotificationInput{
		Priority: entity.NotifNormal,
		Category: entity.NotifCatSignalement,
	})
	if count != 2 {
		t.Errorf("expected 2 deliveries, got %d", count)
	}
}
