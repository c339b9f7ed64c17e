package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/repository"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/platform/queue"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/service"
)

// NotificationConsumer consomme les événements de création de signalement et
// fait le fan-out asynchrone : modérateurs d'abord, puis abonnés de proximité.
// Le citoyen déclarant a déjà été notifié en ligne par le coordinateur.
type NotificationConsumer struct {
	consumer  queue.Consumer
	notifier  service.NotificationService
	userRepo  repository.UserRepository
	notifRepo repository.NotificationRepository
	logger    *zap.Logger
}

func NewNotificationConsumer(
	consumer queue.Consumer,
	notifier service.NotificationService,
	userRepo repository.UserRepository,
	notifRepo repository.NotificationRepository,
	logger *zap.Logger,
) *NotificationConsumer {
	return &NotificationConsumer{
		consumer:  consumer,
		notifier:  notifier,
		userRepo:  userRepo,
		notifRepo: notifRepo,
		logger:    logger.Named("notification_consumer"),
	}
}

func (c *NotificationConsumer) Start(ctx context.Context) error {
	c.logger.Info("starting consumer", zap.String("queue", queue.QueueSignalementCreated))

	handler := func(ctx context.Context, body []byte) error {
		var event service.SignalementEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return fmt.Errorf("failed to unmarshal signalement event: %w", err)
		}
		c.process(ctx, &event)
		return nil
	}

	return c.consumer.Consume(ctx, queue.QueueSignalementCreated, handler)
}

// process ne retourne pas d'erreur : un fan-out partiel ne doit pas renvoyer
// le message en file, les livraisons sont best-effort.
func (c *NotificationConsumer) process(ctx context.Context, event *service.SignalementEvent) {
	c.logger.Info("processing signalement event",
		zap.Int64("signalement_id", event.SignalementID),
		zap.String("type", event.Type))

	delivered := c.notifyModerators(ctx, event)
	subscribers := 0
	if event.HasLocation {
		subscribers = c.notifySubscribers(ctx, event)
	}

	c.logger.Info("fan-out done",
		zap.Int64("signalement_id", event.SignalementID),
		zap.Int("moderators_delivered", delivered),
		zap.Int("subscribers_delivered", subscribers))
}

func (c *NotificationConsumer) notifyModerators(ctx context.Context, event *service.SignalementEvent) int {
	moderators, err := c.userRepo.GetByType(ctx, entity.TypeModerateur)
	if err != nil {
		c.logger.Warn("failed to load moderators", zap.Error(err))
		return 0
	}
	ids := make([]int64, 0, len(moderators))
	for _, m := range moderators {
		// L'auteur peut être modérateur : il a déjà sa notification.
		if m.ID != event.CitoyenID {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return 0
	}

	priority := entity.NotifHigh
	if event.Priorite == entity.PriorityHaute {
		priority = entity.NotifUrgent
	}
	return c.notifier.DispatchBulk(ctx, ids, &service.NotificationInput{
		Title:      "Nouveau signalement à modérer",
		Message:    fmt.Sprintf("Signalement %s : %s", event.Type, event.Description),
		EntityType: "signalement",
		EntityID:   &event.SignalementID,
		Priority:   priority,
		Category:   entity.NotifCatModeration,
		Data: map[string]any{
			"signalement_id": event.SignalementID,
			"type":           event.Type,
		},
	})
}

func (c *NotificationConsumer) notifySubscribers(ctx context.Context, event *service.SignalementEvent) int {
	subscribers, err := c.notifRepo.FindLocationSubscribers(ctx, event.Latitude, event.Longitude)
	if err != nil {
		c.logger.Warn("failed to load location subscribers", zap.Error(err))
		return 0
	}
	ids := subscribers[:0]
	for _, id := range subscribers {
		if id != event.CitoyenID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0
	}

	return c.notifier.DispatchBulk(ctx, ids, &service.NotificationInput{
		Title:      "Nouveau signalement près de chez vous",
		Message:    fmt.Sprintf("%s : %s", event.Type, event.Description),
		EntityType: "signalement",
		EntityID:   &event.SignalementID,
		Priority:   entity.NotifNormal,
		Category:   entity.NotifCatSignalement,
		Data: map[string]any{
			"signalement_id": event.SignalementID,
			"latitude":       event.Latitude,
			"longitude":      event.Longitude,
		},
	})
}
