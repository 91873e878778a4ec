package notifications

import (
	"context"

	"github.com/deviantnotify/deviant-notify/internal/models"
)

// Sink delivers notifications to one kind of host
type Sink interface {
	Send(ctx context.Context, n *Notification) error
	Clear(ctx context.Context, id string) error
	// SupportsButtons reports whether the host renders clickable buttons
	SupportsButtons() bool
}

// OptionsSource exposes the current user options
type OptionsSource interface {
	Get() models.Options
}
