package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-engine/internal/config"
	"github.com/spec-kit/support-engine/internal/events"
)

// EscalationService notifies human operators when a conversation leaves the
// automated path: unknown intents, collaborator faults, blocked drafts.
type EscalationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotifyConfig
	client     *http.Client
}

// NewEscalationService creates the service.
func NewEscalationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotifyConfig) *EscalationService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EscalationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		client:     &http.Client{Timeout: timeout},
	}
}

// RegisterHandlers subscribes to the events that need operator attention.
func (s *EscalationService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventEscalationRaised, s.handleEscalation)
	s.dispatcher.Subscribe(events.EventComplianceBlocked, s.handleComplianceBlocked)
	s.dispatcher.Subscribe(events.EventTicketResolved, s.handleResolved)
}

func (s *EscalationService) handleEscalation(ctx context.Context, event events.Event) error {
	s.logger.Warn("escalation raised",
		zap.String("ticket_ref", event.TicketRef),
		zap.Any("payload", event.Payload))
	return s.sendWebhook(ctx, event)
}

func (s *EscalationService) handleComplianceBlocked(ctx context.Context, event events.Event) error {
	s.logger.Warn("compliance blocked draft",
		zap.String("ticket_ref", event.TicketRef),
		zap.Any("payload", event.Payload))
	return s.sendWebhook(ctx, event)
}

func (s *EscalationService) handleResolved(_ context.Context, event events.Event) error {
	s.logger.Info("ticket resolved",
		zap.String("ticket_ref", event.TicketRef),
		zap.Any("payload", event.Payload))
	return nil
}

func (s *EscalationService) sendWebhook(ctx context.Context, event events.Event) error {
	if strings.TrimSpace(s.cfg.WebhookURL) == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("escalation webhook failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Warn("escalation webhook rejected", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
