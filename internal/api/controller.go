package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"github.com/deviantnotify/deviant-notify/internal/config"
	"github.com/deviantnotify/deviant-notify/internal/models"
	"github.com/deviantnotify/deviant-notify/internal/notifications"
	"github.com/deviantnotify/deviant-notify/internal/options"
	"github.com/deviantnotify/deviant-notify/internal/storage"
)

// testMessageMax bounds the random counts used by testMessage
const testMessageMax = 256

// Site pages opened by notification buttons
const (
	feedbackPage = "/notifications/feedback"
	notesPage    = "/notifications/notes"
	watchPage    = "/notifications/watch"
)

type OptionsManager interface {
	Get() models.Options
	Process(ctx context.Context, patch map[string]json.RawMessage) (*options.ErrorCollection, error)
}

type ReadStateManager interface {
	Update(ctx context.Context, patch []byte) error
	MarkAllRead(ctx context.Context) error
	Clear(ctx context.Context) error
	Migrate(ctx context.Context, from, to storage.StorageInterface) error
	Backend() storage.StorageInterface
}

// Monitor exposes the latest snapshot
type Monitor interface {
	PopupData() models.PopupData
	OptionsData() models.OptionsData
	OnSiteUpdate(bodyClass string) bool
	Broadcast()
}

// Notifier is the badge and notification presenter
type Notifier interface {
	Show(ctx context.Context, counts models.Counts, id string, opts models.Options) error
	Clear(ctx context.Context, id string) error
	ArmTimeout(id string)
	SetBadgeColor(color string)
	ResolveButton(id string, index int) notifications.Action
}

type Scheduler interface {
	Restart(immediate bool) error
}

// Backends are the two read-state stores selected by useSyncStorage
type Backends struct {
	Local storage.StorageInterface
	Sync  storage.StorageInterface
}

func (b Backends) For(useSync bool) storage.StorageInterface {
	if useSync {
		return b.Sync
	}
	return b.Local
}

// Controller executes RPC requests against the running services
type Controller struct {
	options        OptionsManager
	readState      ReadStateManager
	monitor        Monitor
	notifier       Notifier
	scheduler      Scheduler
	backends       Backends
	allowedDomains []string
	randomCount    func() int
}

func NewController(cfg *config.Config, opts OptionsManager, readState ReadStateManager, monitor Monitor, notifier Notifier, scheduler Scheduler, backends Backends) *Controller {
	return &Controller{
		options:        opts,
		readState:      readState,
		monitor:        monitor,
		notifier:       notifier,
		scheduler:      scheduler,
		backends:       backends,
		allowedDomains: cfg.AllowedDomains,
		randomCount:    func() int { return rand.IntN(testMessageMax + 1) },
	}
}

// Dispatch runs req and returns its response, nil for actions without one
func (c *Controller) Dispatch(ctx context.Context, req Request) (any, error) {
	switch r := req.(type) {
	case UpdateOptions:
		return c.updateOptions(ctx, r)
	case GetPopupData:
		return c.monitor.PopupData(), nil
	case GetOptionsData:
		return c.monitor.OptionsData(), nil
	case SetMarkRead:
		if err := c.readState.Update(ctx, r.Patch); err != nil {
			return nil, fmt.Errorf("failed to update read state: %w", err)
		}
		return nil, c.restart(true)
	case ClearMarkRead:
		if err := c.readState.Clear(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear read state: %w", err)
		}
		return nil, c.restart(true)
	case TestMessage:
		return nil, c.testMessage(ctx, r)
	case InstantUpdate:
		return nil, c.restart(true)
	case OnSiteUpdate:
		return nil, c.restart(c.monitor.OnSiteUpdate(r.BodyClass))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action())
}

func (c *Controller) updateOptions(ctx context.Context, r UpdateOptions) (*UpdateOptionsResponse, error) {
	errs, err := c.options.Process(ctx, r.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to save options: %w", err)
	}

	if err := c.restart(true); err != nil {
		return nil, err
	}
	c.monitor.Broadcast()

	if errs.Count() > 0 {
		for _, key := range errs.Keys() {
			logrus.WithField("key", key).Warnf("Failed to set option: %v", errs.All()[key])
		}
		return &UpdateOptionsResponse{Status: false, Errors: errs.All()}, nil
	}
	return &UpdateOptionsResponse{Status: true}, nil
}

// testMessage shows a notification with random counts under the test id.
// Invalid overrides are skipped and the stored value is used instead.
func (c *Controller) testMessage(ctx context.Context, r TestMessage) error {
	if err := c.notifier.Clear(ctx, notifications.TestNotificationID); err != nil {
		logrus.Warnf("Failed to clear test notification: %v", err)
	}

	opts := c.options.Get()
	for key, raw := range r.Overrides {
		if messages := options.Apply(&opts, key, raw, c.allowedDomains); len(messages) > 0 {
			logrus.WithField("key", key).Debugf("Ignoring test override: %v", messages)
		}
	}

	counts := models.NewCounts()
	counts.Feedback[models.FeedbackComments] = c.randomCount()
	counts.Messages = c.randomCount()

	return c.notifier.Show(ctx, counts, notifications.TestNotificationID, opts)
}

// OnOptionChange applies the side effects of a single changed option
func (c *Controller) OnOptionChange(ctx context.Context, key string, prev, next models.Options) {
	switch key {
	case options.KeyBadgeColor:
		c.notifier.SetBadgeColor(next.BadgeColor)
	case options.KeyNotifEnabled:
		if !next.NotifEnabled {
			if err := c.notifier.Clear(ctx, notifications.NotificationID); err != nil {
				logrus.Warnf("Failed to clear notification: %v", err)
			}
		}
	case options.KeyNotifTimeout:
		if next.NotifTimeout != 0 {
			c.notifier.ArmTimeout(notifications.NotificationID)
		}
	case options.KeyUseSyncStorage:
		to := c.backends.For(next.UseSyncStorage)
		if prev.UseSyncStorage == next.UseSyncStorage || c.readState.Backend() == to {
			return
		}
		if err := c.readState.Migrate(ctx, c.backends.For(prev.UseSyncStorage), to); err != nil {
			logrus.Errorf("Failed to migrate read state, keeping useSyncStorage=%t: %v", prev.UseSyncStorage, err)
			c.revertSyncStorage(ctx, prev.UseSyncStorage)
		}
	}
}

// revertSyncStorage puts useSyncStorage back to the backend the read state is
// still on. The resulting change notification finds nothing to migrate.
func (c *Controller) revertSyncStorage(ctx context.Context, useSync bool) {
	raw, err := json.Marshal(useSync)
	if err != nil {
		logrus.Errorf("Failed to encode useSyncStorage: %v", err)
		return
	}
	if _, err := c.options.Process(ctx, map[string]json.RawMessage{options.KeyUseSyncStorage: raw}); err != nil {
		logrus.Errorf("Failed to restore useSyncStorage=%t: %v", useSync, err)
	}
}

// HandleButton runs the action behind a clicked notification button and
// returns the page to open, if any. The notification is cleared either way.
func (c *Controller) HandleButton(ctx context.Context, id string, index int) (string, error) {
	var redirect string
	switch action := c.notifier.ResolveButton(id, index); action {
	case notifications.ActionOpenFeedback:
		redirect = c.pageURL(feedbackPage)
	case notifications.ActionOpenNotes:
		redirect = c.pageURL(notesPage)
	case notifications.ActionOpenWatch:
		redirect = c.pageURL(watchPage)
	case notifications.ActionMarkAllRead:
		if err := c.readState.MarkAllRead(ctx); err != nil {
			return "", fmt.Errorf("failed to mark all read: %w", err)
		}
		if err := c.restart(true); err != nil {
			return "", err
		}
	case notifications.ActionDismiss, notifications.ActionNone:
	}

	if err := c.notifier.Clear(ctx, id); err != nil {
		logrus.Warnf("Failed to clear notification %s: %v", id, err)
	}
	return redirect, nil
}

func (c *Controller) pageURL(path string) string {
	return "https://" + c.options.Get().PreferredDomain + path
}

func (c *Controller) restart(immediate bool) error {
	if err := c.scheduler.Restart(immediate); err != nil {
		return fmt.Errorf("failed to restart scheduler: %w", err)
	}
	return nil
}
