// Package worker provides async audit persistence off the request path.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// AuditWriter consumes decision and rule-execution events from the EventBus
// and persists them. Writes are best-effort: a store failure is logged and
// swallowed so it can never surface on the request path.
type AuditWriter struct {
	bus  domain.EventBus
	repo domain.Repository

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds audit writer configuration.
type Config struct {
	// TenantIDs is the list of tenants to persist for. Empty subscribes
	// the tenant wildcard so every tenant's decisions are persisted.
	TenantIDs []string
}

// NewAuditWriter creates a new async audit writer.
func NewAuditWriter(bus domain.EventBus, repo domain.Repository) *AuditWriter {
	ctx, cancel := context.WithCancel(context.Background())
	return &AuditWriter{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins consuming audit events for the given tenants.
func (w *AuditWriter) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.TenantWildcard}
	}

	for _, tenantID := range tenants {
		if err := w.subscribeTenant(tenantID); err != nil {
			slog.Error("failed to start audit writer for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("audit writers started",
		"tenant_count", len(tenants),
	)

	return nil
}

// subscribeTenant wires both audit topics for one tenant.
func (w *AuditWriter) subscribeTenant(tenantID string) error {
	decSub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicDecision, w.handleDecision)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, decSub)

	execSub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicRuleAudit, w.handleRuleExecutions)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, execSub)

	slog.Info("audit writer started",
		"tenant_id", tenantID,
		"topics", []string{domain.TopicDecision, domain.TopicRuleAudit},
	)

	return nil
}

// handleDecision persists a decision audit copy.
func (w *AuditWriter) handleDecision(ctx context.Context, msg *domain.Message) error {
	var decision domain.Decision
	if err := json.Unmarshal(msg.Payload, &decision); err != nil {
		slog.Error("failed to parse decision message",
			"message_id", msg.ID,
			"error", err,
		)
		return nil
	}

	tenantID := decision.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}

	start := time.Now()
	if err := w.repo.SaveDecision(ctx, tenantID, &decision); err != nil {
		slog.Error("failed to save decision audit",
			"decision_id", decision.ID,
			"tenant_id", tenantID,
			"error", err,
		)
		return nil
	}

	slog.Debug("decision audit persisted",
		"decision_id", decision.ID,
		"tenant_id", tenantID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// handleRuleExecutions appends rule execution audit records.
func (w *AuditWriter) handleRuleExecutions(ctx context.Context, msg *domain.Message) error {
	var records []*domain.RuleExecutionRecord
	if err := json.Unmarshal(msg.Payload, &records); err != nil {
		slog.Error("failed to parse rule execution message",
			"message_id", msg.ID,
			"error", err,
		)
		return nil
	}

	if len(records) == 0 {
		return nil
	}

	tenantID := records[0].TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}

	if err := w.repo.AppendRuleExecutions(ctx, tenantID, records); err != nil {
		slog.Error("failed to append rule executions",
			"decision_id", records[0].DecisionID,
			"tenant_id", tenantID,
			"record_count", len(records),
			"error", err,
		)
		return nil
	}

	slog.Debug("rule executions persisted",
		"decision_id", records[0].DecisionID,
		"tenant_id", tenantID,
		"record_count", len(records),
	)

	return nil
}

// Stop gracefully stops the audit writer.
func (w *AuditWriter) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("audit writers stopped")
	return nil
}

// Stats returns audit writer statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current audit writer statistics.
func (w *AuditWriter) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
