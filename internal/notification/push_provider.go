package notification

import "context"

// Provider delivers notifications to an external service.
type Provider interface {
	// GetName returns the provider name used in logs and metrics.
	GetName() string
	// ValidateConfig checks the provider configuration without sending.
	ValidateConfig() error
	// Send delivers one notification.
	Send(ctx context.Context, n *Notification) error
	// SupportsType reports whether the provider wants notifications of t.
	SupportsType(t Type) bool
}
