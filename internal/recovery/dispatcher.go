package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/storeops/cart-recovery/internal/abandonment"
	"github.com/storeops/cart-recovery/internal/aws"
)

// OutboundMessage is the payload enqueued for the delivery worker.
type OutboundMessage struct {
	LogID       string `json:"log_id"`
	ReferenceID string `json:"reference_id"`
	Type        string `json:"type"`
	Template    string `json:"template"`
	Contact     string `json:"contact,omitempty"`
	Body        string `json:"body"`
}

// Dispatcher renders a recovery message and hands it to the outbound
// queue, then marks the log contacted. Actual delivery (messaging app,
// e-mail) is the worker's concern.
type Dispatcher struct {
	composer  *Composer
	templates TemplateProvider
	logs      abandonment.LogRepo
	publisher *aws.Publisher
	logger    *slog.Logger
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(composer *Composer, templates TemplateProvider, logs abandonment.LogRepo, publisher *aws.Publisher, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		composer:  composer,
		templates: templates,
		logs:      logs,
		publisher: publisher,
		logger:    logger,
	}
}

// Dispatch renders templateName for the log and enqueues the result.
// The template must be among the ones available under the log's consent
// snapshot; asking for a withheld promotional template is an error, not
// a silent downgrade.
func (d *Dispatcher) Dispatch(ctx context.Context, logID, templateName string) (OutboundMessage, error) {
	log, err := d.logs.Get(ctx, logID)
	if err != nil {
		return OutboundMessage{}, err
	}
	if log == nil {
		return OutboundMessage{}, fmt.Errorf("dispatch: log %s not found", logID)
	}

	all, err := d.templates.Templates(ctx)
	if err != nil {
		return OutboundMessage{}, fmt.Errorf("load templates: %w", err)
	}

	var template *MessageTemplate
	for _, t := range d.composer.AvailableTemplates(*log, all) {
		if t.Name == templateName {
			t := t
			template = &t
			break
		}
	}
	if template == nil {
		return OutboundMessage{}, fmt.Errorf("dispatch: template %q not available for log %s", templateName, logID)
	}

	msg := OutboundMessage{
		LogID:       log.ID,
		ReferenceID: log.ReferenceID,
		Type:        log.Type,
		Template:    template.Name,
		Contact:     log.CustomerContact,
		Body:        d.composer.Render(*template, *log),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return OutboundMessage{}, fmt.Errorf("marshal outbound message: %w", err)
	}

	attrs := map[string]string{
		"log_id":   log.ID,
		"type":     log.Type,
		"template": template.Name,
	}
	if err := d.publisher.Send(ctx, string(body), attrs); err != nil {
		return OutboundMessage{}, fmt.Errorf("enqueue recovery message: %w", err)
	}

	if err := d.composer.MarkContacted(ctx, logID); err != nil {
		// The message is already on the queue; surface the bookkeeping
		// failure but keep the rendered result.
		d.logger.Error("mark contacted after dispatch", "log_id", logID, "error", err)
	}
	return msg, nil
}
