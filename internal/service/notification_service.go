package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/escalation-service/internal/config"
	"github.com/spec-kit/escalation-service/internal/events"
)

// NotificationService alerts supervisors about ledger activity.
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
	n.dispatcher.Subscribe(events.EventHelpRequestCreated, n.handleHelpRequestCreated)
	n.dispatcher.Subscribe(events.EventHelpRequestExpired, n.handleHelpRequestExpired)
	n.dispatcher.Subscribe(events.EventHelpRequestResolved, n.handleHelpRequestResolved)
}

func (n *NotificationService) handleHelpRequestCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("HelpRequestCreated", zap.String("help_request_id", event.HelpRequestID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleHelpRequestExpired(ctx context.Context, event events.Event) error {
	n.logger.Info("HelpRequestExpired", zap.String("help_request_id", event.HelpRequestID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleHelpRequestResolved(ctx context.Context, event events.Event) error {
	n.logger.Info("HelpRequestResolved", zap.String("help_request_id", event.HelpRequestID))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("help_request_id", event.HelpRequestID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("help_request_id", event.HelpRequestID),
		zap.String("event_type", string(event.Type)))
}
