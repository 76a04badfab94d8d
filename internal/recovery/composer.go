package recovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/storeops/cart-recovery/internal/abandonment"
)

// Template kinds. Untagged templates fall back to keyword
// classification.
const (
	KindTransactional = "transactional"
	KindMarketing     = "marketing"
)

// MessageTemplate is an outbound message body with placeholders
// {name}, {product_list}, {total_value} and {checkout_link}.
type MessageTemplate struct {
	Name    string `json:"name" yaml:"name"`
	Kind    string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Content string `json:"content" yaml:"content"`
}

// TemplateProvider supplies the configured message templates. The
// settings module owns them; this core only consumes.
type TemplateProvider interface {
	Templates(ctx context.Context) ([]MessageTemplate, error)
}

// promotionalKeywords classifies untagged templates. The list carries
// the Portuguese forms used by the storefront alongside English ones.
var promotionalKeywords = []string{
	"cupom",
	"bônus",
	"bonus",
	"desconto",
	"oferta",
	"promo",
	"coupon",
	"discount",
	"% off",
	"sale",
}

// Promotional reports whether the template needs marketing consent.
// A kind tag wins; the keyword heuristic only covers untagged content.
func (t MessageTemplate) Promotional() bool {
	switch t.Kind {
	case KindMarketing:
		return true
	case KindTransactional:
		return false
	}
	content := strings.ToLower(t.Content)
	for _, kw := range promotionalKeywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

// Composer renders recovery messages from abandonment logs, gated by
// the consent snapshot stored on each log.
type Composer struct {
	logs         abandonment.LogRepo
	linkBase     string
	currency     string
	fallbackName string
}

// NewComposer returns a composer building checkout deep links from
// linkBase.
func NewComposer(logs abandonment.LogRepo, linkBase string) *Composer {
	return &Composer{
		logs:         logs,
		linkBase:     strings.TrimRight(linkBase, "/"),
		currency:     "R$",
		fallbackName: "cliente",
	}
}

// WithCurrency overrides the currency prefix used by {total_value}.
func (c *Composer) WithCurrency(symbol string) *Composer {
	c.currency = symbol
	return c
}

// AvailableTemplates filters templates by the log's consent snapshot.
// Without marketing consent — including when no consent record exists
// at all — promotional templates are withheld; transactional reminders
// are always available.
func (c *Composer) AvailableTemplates(log abandonment.Log, all []MessageTemplate) []MessageTemplate {
	marketingOK := log.Consent != nil && log.Consent.Marketing

	out := make([]MessageTemplate, 0, len(all))
	for _, t := range all {
		if !marketingOK && t.Promotional() {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Render substitutes the known placeholders. Unknown placeholders are
// left verbatim.
func (c *Composer) Render(template MessageTemplate, log abandonment.Log) string {
	name := c.fallbackName
	if fields := strings.Fields(log.CustomerName); len(fields) > 0 {
		name = fields[0]
	}

	products := make([]string, 0, len(log.Items))
	for _, it := range log.Items {
		products = append(products, fmt.Sprintf("%dx %s", it.Quantity, it.Name))
	}

	replacer := strings.NewReplacer(
		"{name}", name,
		"{product_list}", strings.Join(products, ", "),
		"{total_value}", fmt.Sprintf("%s %.2f", c.currency, log.Value),
		"{checkout_link}", c.CheckoutLink(log.ReferenceID),
	)
	return replacer.Replace(template.Content)
}

// CheckoutLink builds the deep link back into the checkout for a
// reference id.
func (c *Composer) CheckoutLink(referenceID string) string {
	return fmt.Sprintf("%s/checkout/%s", c.linkBase, referenceID)
}

// MarkContacted transitions the log from pending to contacted. Logs
// already past pending are left as they are.
func (c *Composer) MarkContacted(ctx context.Context, logID string) error {
	log, err := c.logs.Get(ctx, logID)
	if err != nil {
		return err
	}
	if log == nil {
		return fmt.Errorf("mark contacted: log %s not found", logID)
	}
	if log.Recovery != abandonment.RecoveryPending {
		return nil
	}
	contacted := abandonment.RecoveryContacted
	_, err = c.logs.Update(ctx, logID, abandonment.Patch{Recovery: &contacted})
	return err
}
