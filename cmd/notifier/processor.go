package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/storeops/cart-recovery/internal/abandonment"
	"github.com/storeops/cart-recovery/internal/recovery"
)

// Processor delivers queued recovery messages through the configured
// webhook (the bridge into the real messaging channel). Delivery
// outcomes are recorded back on the abandonment log when a repository
// is available.
type Processor struct {
	webhookURL string
	client     *http.Client
	logs       abandonment.LogRepo
	logger     *slog.Logger
}

// NewProcessor creates a processor. logs may be nil in local setups;
// delivery then happens without bookkeeping.
func NewProcessor(webhookURL string, logs abandonment.LogRepo, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logs:       logs,
		logger:     logger,
	}
}

// Handle receives an SQS batch event and processes each message.
// Returning an error makes the runtime retry the batch; poisoned
// messages end up in the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("notifier error", "error", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg recovery.OutboundMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	p.logger.Info("delivering recovery message",
		"log_id", msg.LogID, "type", msg.Type, "template", msg.Template)

	if err := p.deliver(ctx, msg); err != nil {
		p.recordNote(ctx, msg.LogID, fmt.Sprintf("delivery failed: %v", err))
		return fmt.Errorf("deliver message for log %s: %w", msg.LogID, err)
	}

	p.recordNote(ctx, msg.LogID, "message delivered via "+msg.Template)
	return nil
}

func (p *Processor) deliver(ctx context.Context, msg recovery.OutboundMessage) error {
	if p.webhookURL == "" {
		// No channel configured; treat as delivered so local stacks
		// drain the queue.
		p.logger.Info("no delivery webhook configured, dropping message", "log_id", msg.LogID)
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal delivery payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delivery webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (p *Processor) recordNote(ctx context.Context, logID, note string) {
	if p.logs == nil || logID == "" {
		return
	}
	if _, err := p.logs.Update(ctx, logID, abandonment.Patch{Notes: &note}); err != nil {
		p.logger.Error("record delivery note", "log_id", logID, "error", err)
	}
}
