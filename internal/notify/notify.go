// Package notify delivers run summaries to a messaging sink. Delivery is
// fire-and-forget: a failed notification is logged by the caller but never
// fails the run.
package notify

import "context"

// Severity tags a message for rendering; Slack maps it to attachment color.
type Severity string

const (
	SeverityGood   Severity = "good"
	SeverityDanger Severity = "danger"
)

// Notifier is a sink for a formatted message and a severity tag.
type Notifier interface {
	Notify(ctx context.Context, severity Severity, text string) error
}

// Nop discards every message. Used when no webhook is configured.
type Nop struct{}

func (Nop) Notify(ctx context.Context, severity Severity, text string) error {
	return nil
}
