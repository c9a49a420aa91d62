package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/repo"
)

// Mailer delivers a single plain-text message.
type Mailer interface {
	Send(to, subject, body string) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	Logger zerolog.Logger
}

// Send implements Mailer.
func (m LogMailer) Send(to, subject, body string) error {
	m.Logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email")
	return nil
}

// EmailNotifier sends transactional emails for selected topics.
type EmailNotifier struct {
	Mail         Mailer
	Enabled      bool
	TopicToggles map[string]bool
	// Recipient maps an order owner to an address. Defaults to RecipientFromOwner.
	Recipient func(owner string) string
}

// RecipientFromOwner returns owner when it is itself an email address. Guest owners never are.
func RecipientFromOwner(owner string) string {
	owner = strings.TrimSpace(owner)
	if owner == "" || !strings.Contains(owner, "@") {
		return ""
	}
	addr, err := mail.ParseAddress(owner)
	if err != nil {
		return ""
	}
	return addr.Address
}

// Notify implements events.Notifier.
func (n EmailNotifier) Notify(_ context.Context, event repo.DomainEvent) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	owner, _ := payload["userId"].(string)
	resolve := n.Recipient
	if resolve == nil {
		resolve = RecipientFromOwner
	}
	to := resolve(owner)
	if to == "" {
		return nil
	}
	subject, ok := subjectFor(event.Topic)
	if !ok {
		return nil
	}
	return n.Mail.Send(to, subject, bodyFor(event.Topic, payload, event.OccurredAt))
}

func subjectFor(topic string) (string, bool) {
	switch topic {
	case events.TopicOrderCreated:
		return "Order received", true
	case events.TopicOrderStatus:
		return "Order status updated", true
	default:
		return "", false
	}
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	summary := fmt.Sprintf("Event %s at %s.", topic, occurred.UTC().Format(time.RFC3339))
	if orderID, ok := payload["orderId"].(string); ok && orderID != "" {
		summary += fmt.Sprintf("\nOrder: %s", orderID)
	}
	if total, ok := payload["totalAmount"].(string); ok && total != "" {
		summary += fmt.Sprintf("\nTotal: $%s", total)
	}
	if status, ok := payload["status"].(string); ok && status != "" {
		summary += fmt.Sprintf("\nStatus: %s", status)
	}
	return summary
}
