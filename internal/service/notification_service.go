package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/repository"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/platform/push"
)

// NotificationInput est une notification logique à livrer à un ou plusieurs
// destinataires.
type NotificationInput struct {
	Title      string
	Message    string
	EntityType string
	EntityID   *int64
	Priority   entity.NotificationPriority
	Category   string
	SenderID   *int64
	Data       map[string]any
}

// NotificationService livre une notification sur les canaux push et temps
// réel, sous réserve des préférences du destinataire, et consigne l'historique.
// Les échecs ne remontent jamais à l'appelant : le dispatcher ne retourne
// qu'un booléen par destinataire.
type NotificationService interface {
	// Dispatch retourne true si au moins un canal a abouti.
	Dispatch(ctx context.Context, userID int64, n *NotificationInput) bool
	// DispatchBulk applique Dispatch indépendamment à chaque destinataire et
	// retourne le nombre de livraisons réussies. Ordre non garanti.
	DispatchBulk(ctx context.Context, userIDs []int64, n *NotificationInput) int
}

type notificationService struct {
	notifRepo  repository.NotificationRepository
	tokenRepo  repository.DeviceTokenRepository
	pushClient push.Client
	logger     *zap.Logger
	now        func() time.Time
}

func NewNotificationService(notifRepo repository.NotificationRepository, tokenRepo repository.DeviceTokenRepository, pushClient push.Client, logger *zap.Logger) NotificationService {
	return &notificationService{
		notifRepo:  notifRepo,
		tokenRepo:  tokenRepo,
		pushClient: pushClient,
		logger:     logger.Named("notification"),
		now:        time.Now,
	}
}

func (s *notificationService) Dispatch(ctx context.Context, userID int64, n *NotificationInput) bool {
	prefs, err := s.notifRepo.GetPreferences(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load preferences", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}

	// Filtrage : une notification écartée ici ne laisse aucune trace,
	// pas même une ligne d'historique.
	if !s.passesFilters(prefs, n) {
		return false
	}

	var delivered []string

	if prefs.PushEnabled {
		if s.sendPush(ctx, userID, n) {
			delivered = append(delivered, entity.DeliveryPush)
		}
	}

	if prefs.RealtimeEnabled {
		if s.sendRealtime(ctx, userID, n) {
			delivered = append(delivered, entity.DeliveryRealtime)
		}
	}

	success := len(delivered) > 0
	methods := delivered
	if !success {
		methods = []string{entity.DeliveryFailed}
	}

	history := &entity.NotificationHistory{
		UserID:         userID,
		Title:          n.Title,
		Message:        n.Message,
		EntityType:     n.EntityType,
		EntityID:       n.EntityID,
		Success:        success,
		DeliveryMethod: methods,
		Priority:       n.Priority,
		Category:       n.Category,
		SenderID:       n.SenderID,
		Metadata:       n.Data,
	}
	if err := s.notifRepo.AppendHistory(ctx, history); err != nil {
		s.logger.Warn("failed to append history", zap.Int64("user_id", userID), zap.Error(err))
	}

	return success
}

func (s *notificationService) DispatchBulk(ctx context.Context, userIDs []int64, n *NotificationInput) int {
	count := 0
	for _, id := range userIDs {
		if s.Dispatch(ctx, id, n) {
			count++
		}
	}
	return count
}

// passesFilters applique urgent_only, les bascules par catégorie et les
// heures calmes. Urgent traverse tout.
func (s *notificationService) passesFilters(prefs *entity.NotificationPreferences, n *NotificationInput) bool {
	urgent := n.Priority == entity.NotifUrgent

	if prefs.UrgentOnly && !urgent {
		return false
	}

	if !s.categoryEnabled(prefs, n.Category) {
		return false
	}

	if prefs.QuietHoursEnabled && !urgent &&
		inQuietHours(s.now(), prefs.QuietHoursStart, prefs.QuietHoursEnd) {
		return false
	}

	return true
}

// categoryEnabled mappe la catégorie logique sur sa bascule de préférence.
// Les catégories système, test et modération passent toujours.
func (s *notificationService) categoryEnabled(prefs *entity.NotificationPreferences, category string) bool {
	switch category {
	case entity.NotifCatSignalement:
		return prefs.NewSignalements
	case entity.NotifCatCommentSignalement:
		return prefs.CommentsSignalements
	case entity.NotifCatPetition:
		return prefs.NewPetitions
	case entity.NotifCatCommentPetition:
		return prefs.CommentsPetitions
	case entity.NotifCatPublication:
		return prefs.NewPublications
	case entity.NotifCatCommentPublication:
		return prefs.CommentsPublications
	case entity.NotifCatVoteSignature:
		return prefs.VotesSignatures
	case entity.NotifCatReponseAutorite:
		return prefs.AuthorityResponses
	case entity.NotifCatMention:
		return prefs.Mentions
	case entity.NotifCatStatusChange:
		return prefs.StatusChanges
	default:
		return true
	}
}

// inQuietHours teste l'appartenance à la fenêtre [start, end] (bornes
// incluses), avec bascule de minuit quand start > end.
func inQuietHours(now time.Time, start, end string) bool {
	startMin, okS := parseClock(start)
	endMin, okE := parseClock(end)
	if !okS || !okE {
		return false
	}
	nowMin := now.Hour()*60 + now.Minute()

	if startMin <= endMin {
		return nowMin >= startMin && nowMin <= endMin
	}
	// Fenêtre chevauchant minuit, ex: 22:00 → 08:00.
	return nowMin >= startMin || nowMin <= endMin
}

func parseClock(v string) (int, bool) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// sendPush groupe tous les jetons actifs du destinataire dans un seul appel
// passerelle, puis met à jour last_used sur succès.
func (s *notificationService) sendPush(ctx context.Context, userID int64, n *NotificationInput) bool {
	tokens, err := s.tokenRepo.GetActiveByUser(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load device tokens", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	if len(tokens) == 0 {
		return false
	}

	raw := make([]string, len(tokens))
	ids := make([]int64, len(tokens))
	for i, t := range tokens {
		raw[i] = t.Token
		ids[i] = t.ID
	}

	result, err := s.pushClient.Send(ctx, &push.Request{
		Tokens:    raw,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		Priority:  string(n.Priority),
		Sound:     "default",
		ChannelID: n.Category,
	})
	if err != nil {
		s.logger.Warn("push delivery failed", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	if result.Recipients == 0 {
		return false
	}

	if err := s.tokenRepo.TouchLastUsed(ctx, ids); err != nil {
		s.logger.Warn("failed to touch last_used", zap.Error(err))
	}
	return true
}

func (s *notificationService) sendRealtime(ctx context.Context, userID int64, n *NotificationInput) bool {
	err := s.notifRepo.InsertRealtime(ctx, &entity.RealtimeNotification{
		UserID:  userID,
		Title:   n.Title,
		Message: n.Message,
		Data:    n.Data,
	})
	if err != nil {
		s.logger.Warn("realtime insert failed", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	return true
}
