package notifications

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deviantnotify/deviant-notify/internal/models"
)

const (
	// NotificationID identifies the regular unread notification
	NotificationID = "Deviant-Notify"
	// TestNotificationID identifies notifications sent from the options screen
	TestNotificationID = "Deviant-Notify-Test"

	notificationTitle   = "DeviantArt"
	notificationMessage = "You have unread notifications"
	notificationIcon    = "img/notif-128.png"
)

// Action is what a notification button does
type Action string

const (
	ActionNone         Action = ""
	ActionOpenFeedback Action = "openFeedback"
	ActionOpenNotes    Action = "openNotes"
	ActionOpenWatch    Action = "openWatch"
	ActionDismiss      Action = "dismiss"
	ActionMarkAllRead  Action = "markAllRead"
)

// ButtonIndexes maps each action to its button position, -1 when absent
type ButtonIndexes struct {
	Feedback int
	Messages int
	Watch    int
	Dismiss  int
	Read     int
}

func defaultButtonIndexes() ButtonIndexes {
	return ButtonIndexes{Feedback: -1, Messages: -1, Watch: -1, Dismiss: -1, Read: -1}
}

// Button is one clickable notification action
type Button struct {
	Title   string `json:"title"`
	IconURL string `json:"iconUrl,omitempty"`
}

// Detail is one non-zero category of a notification, under its readable name
type Detail struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Notification is a rendered notification ready for a sink
type Notification struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Message string   `json:"message"`
	IconURL string   `json:"iconUrl"`
	Buttons []Button `json:"buttons,omitempty"`
	Details []Detail `json:"details,omitempty"`
	Persist bool     `json:"persist"`
	Sound   bool     `json:"sound"`
}

// Presenter owns the badge and the notifications shown for each snapshot
type Presenter struct {
	sink        Sink
	options     OptionsSource
	badge       *Badge
	notifMaxNew int
	notesMaxNew int
	timeoutUnit time.Duration

	mu      sync.Mutex
	indexes map[string]ButtonIndexes
	timers  map[string]*time.Timer
}

// NewPresenter creates a presenter delivering through sink
func NewPresenter(sink Sink, options OptionsSource, notifMaxNew, notesMaxNew int) *Presenter {
	return &Presenter{
		sink:        sink,
		options:     options,
		badge:       NewBadge(options.Get().BadgeColor),
		notifMaxNew: notifMaxNew,
		notesMaxNew: notesMaxNew,
		timeoutUnit: time.Second,
		indexes:     map[string]ButtonIndexes{NotificationID: defaultButtonIndexes()},
		timers:      make(map[string]*time.Timer),
	}
}

// BadgeText is the text currently on the badge
func (p *Presenter) BadgeText() string {
	return p.badge.Text()
}

// SetBadgeColor changes the signed-in badge colour
func (p *Presenter) SetBadgeColor(color string) {
	p.badge.SetColor(color)
}

// Publish updates the badge from a finished snapshot and notifies when the new
// count went up
func (p *Presenter) Publish(ctx context.Context, counts, newCounts models.Counts, signedIn bool) {
	if !signedIn {
		p.badge.SetSignedOut()
		return
	}

	opts := p.options.Get()
	p.badge.SetColor(opts.BadgeColor)

	if _, notify := p.badge.Update(newCounts.Total()); !notify {
		return
	}

	if err := p.Show(ctx, newCounts, NotificationID, opts); err != nil {
		logrus.Errorf("Failed to show notification: %v", err)
	}
}

// Show renders counts and hands the notification to the sink, honouring the
// enabled and sound preferences in opts
func (p *Presenter) Show(ctx context.Context, counts models.Counts, id string, opts models.Options) error {
	if !opts.NotifEnabled {
		if opts.NotifSound {
			logrus.Debugf("Notifications disabled, only playing sound for %s", id)
		}
		return nil
	}

	p.cancelTimer(id)

	n := p.Build(counts, id, opts)
	if err := p.sink.Send(ctx, n); err != nil {
		return fmt.Errorf("failed to send notification %s: %w", id, err)
	}

	if !n.Persist {
		p.armTimeout(id, opts.NotifTimeout)
	}
	return nil
}

// Build renders counts into a notification and records which button does what
func (p *Presenter) Build(counts models.Counts, id string, opts models.Options) *Notification {
	feedback := counts.FeedbackSum()
	watch := counts.WatchSum()
	indexes := defaultButtonIndexes()

	var buttons []Button
	var glyphs []string

	if feedback > 0 {
		buttons = append(buttons, Button{
			Title:   strings.Join([]string{"View", CapWithPlus(feedback, p.notifMaxNew), Plural(feedback, "Notification", false)}, " "),
			IconURL: fmt.Sprintf("img/bell-%s.svg", opts.BellIconStyle),
		})
		glyphs = append(glyphs, "🔔")
		indexes.Feedback = len(buttons) - 1
	}
	if counts.Messages > 0 {
		buttons = append(buttons, Button{
			Title:   strings.Join([]string{"View", CapWithPlus(counts.Messages, p.notesMaxNew), Plural(counts.Messages, "Note", false)}, " "),
			IconURL: fmt.Sprintf("img/chat-%s.svg", opts.ChatIconStyle),
		})
		glyphs = append(glyphs, "📝")
		indexes.Messages = len(buttons) - 1
	}
	if watch > 0 {
		buttons = append(buttons, Button{
			Title:   strings.Join([]string{"View", CapWithPlus(watch, p.notifMaxNew), Plural(watch, "Watched Item", false)}, " "),
			IconURL: fmt.Sprintf("img/watch-%s.svg", opts.WatchIconStyle),
		})
		glyphs = append(glyphs, "🥽")
		indexes.Watch = len(buttons) - 1
	}

	n := &Notification{
		ID:      id,
		Title:   notificationTitle,
		Message: notificationMessage,
		IconURL: notificationIcon,
		Details: breakdown(counts),
		Persist: opts.NotifTimeout == 0,
		Sound:   opts.NotifSound,
	}

	switch {
	case !p.sink.SupportsButtons():
		n.Message += bodyLines(buttons, glyphs, opts.NotifIcons, "\n\n")
		indexes = defaultButtonIndexes()
	case len(buttons) > 2:
		// at most two buttons fit, the detail moves into the body
		n.Message += bodyLines(buttons, nil, false, "\n")
		n.Buttons = []Button{{Title: "Dismiss"}, {Title: "Mark all read"}}
		indexes = defaultButtonIndexes()
		indexes.Dismiss, indexes.Read = 0, 1
	default:
		if !opts.NotifIcons {
			for i := range buttons {
				buttons[i].IconURL = ""
			}
		}
		n.Buttons = buttons
	}

	p.mu.Lock()
	p.indexes[id] = indexes
	p.mu.Unlock()

	return n
}

// breakdown lists every non-zero leaf in display order
func breakdown(counts models.Counts) []Detail {
	var details []Detail
	for _, t := range append(append([]models.FeedbackType{}, models.FeedbackTypes...), models.FeedbackAggregate) {
		if n := counts.Feedback[t]; n > 0 {
			details = append(details, Detail{Name: models.FeedbackReadableNames[t], Count: n})
		}
	}
	if counts.Messages > 0 {
		details = append(details, Detail{Name: "Note", Count: counts.Messages})
	}
	for _, t := range models.WatchTypes {
		if n := counts.Watch[t]; n > 0 {
			details = append(details, Detail{Name: models.WatchReadableNames[t], Count: n})
		}
	}
	return details
}

// bodyLines lists the button titles without their leading verb
func bodyLines(buttons []Button, glyphs []string, icons bool, lead string) string {
	var b strings.Builder
	b.WriteString(":" + lead)
	for i, btn := range buttons {
		if i > 0 {
			b.WriteString("\n")
		}
		if icons && i < len(glyphs) {
			b.WriteString(glyphs[i] + "   ")
		}
		b.WriteString(strings.TrimPrefix(btn.Title, "View "))
	}
	return b.String()
}

// ButtonIndexes returns the mapping recorded for id
func (p *Presenter) ButtonIndexes(id string) ButtonIndexes {
	p.mu.Lock()
	defer p.mu.Unlock()
	if indexes, ok := p.indexes[id]; ok {
		return indexes
	}
	return defaultButtonIndexes()
}

// ResolveButton maps a clicked button back to its action
func (p *Presenter) ResolveButton(id string, index int) Action {
	indexes := p.ButtonIndexes(id)
	switch {
	case index < 0:
		return ActionNone
	case index == indexes.Feedback:
		return ActionOpenFeedback
	case index == indexes.Messages:
		return ActionOpenNotes
	case index == indexes.Watch:
		return ActionOpenWatch
	case index == indexes.Dismiss:
		return ActionDismiss
	case index == indexes.Read:
		return ActionMarkAllRead
	}
	return ActionNone
}

// ArmTimeout (re)starts the auto-dismiss timer for id using the configured
// timeout. A timeout of zero keeps the notification open.
func (p *Presenter) ArmTimeout(id string) {
	p.armTimeout(id, p.options.Get().NotifTimeout)
}

func (p *Presenter) armTimeout(id string, seconds int) {
	p.cancelTimer(id)
	if seconds <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(time.Duration(seconds)*p.timeoutUnit, func() {
		p.mu.Lock()
		current := p.timers[id] == timer
		if current {
			delete(p.timers, id)
		}
		p.mu.Unlock()

		// a newer timer owns this id now
		if !current {
			return
		}
		if err := p.sink.Clear(context.Background(), id); err != nil {
			logrus.Warnf("Failed to clear notification %s: %v", id, err)
		}
	})
	p.timers[id] = timer
}

func (p *Presenter) cancelTimer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if timer, ok := p.timers[id]; ok {
		timer.Stop()
		delete(p.timers, id)
	}
}

// HasTimer reports whether an auto-dismiss timer is pending for id
func (p *Presenter) HasTimer(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.timers[id]
	return ok
}

// Clear dismisses the notification and forgets its timer
func (p *Presenter) Clear(ctx context.Context, id string) error {
	p.cancelTimer(id)
	return p.sink.Clear(ctx, id)
}
