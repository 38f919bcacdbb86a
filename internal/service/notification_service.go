package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/task-service/internal/config"
	"github.com/spec-kit/task-service/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTaskCreated, n.handleTaskCreated)
	n.dispatcher.Subscribe(events.EventTaskStatusChanged, n.handleTaskStatusChanged)
	n.dispatcher.Subscribe(events.EventTaskAssigned, n.handleTaskAssigned)
	n.dispatcher.Subscribe(events.EventUserDeleted, n.handleUserDeleted)
}

func (n *NotificationService) handleTaskCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TaskCreated", zap.String("task_id", event.EntityID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTaskStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TaskStatusChanged", zap.String("task_id", event.EntityID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTaskAssigned(ctx context.Context, event events.Event) error {
	n.logger.Info("TaskAssigned", zap.String("task_id", event.EntityID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleUserDeleted(ctx context.Context, event events.Event) error {
	n.logger.Info("UserDeleted", zap.String("user_id", event.EntityID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("entity_id", event.EntityID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("entity_id", event.EntityID),
		zap.String("event_type", string(event.Type)))
}
