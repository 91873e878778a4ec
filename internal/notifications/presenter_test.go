package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deviantnotify/deviant-notify/internal/config"
	"github.com/deviantnotify/deviant-notify/internal/models"
)

type recordingSink struct {
	mu      sync.Mutex
	buttons bool
	sent    []*Notification
	cleared []string
}

func (r *recordingSink) Send(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingSink) Clear(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, id)
	return nil
}

func (r *recordingSink) SupportsButtons() bool {
	return r.buttons
}

func (r *recordingSink) sentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingSink) clearedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cleared)
}

type staticOptions struct {
	opts models.Options
}

func (s *staticOptions) Get() models.Options {
	return s.opts.Clone()
}

func newTestPresenter(sink Sink, opts models.Options) *Presenter {
	p := NewPresenter(sink, &staticOptions{opts: opts}, 24, 50)
	p.timeoutUnit = time.Millisecond
	return p
}

func countsWith(feedback, notes, watch int) models.Counts {
	c := models.NewCounts()
	c.Feedback[models.FeedbackComments] = feedback
	c.Messages = notes
	c.Watch[models.WatchDeviations] = watch
	return c
}

func TestShortenCount(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{9999, "9999"},
		{10000, "10k"},
		{12500, "13k"},
		{999499, "999k"},
		{1500000, "2m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShortenCount(tt.in))
	}
}

func TestCapWithPlusAndPlural(t *testing.T) {
	assert.Equal(t, "50+", CapWithPlus(51, 50))
	assert.Equal(t, "50", CapWithPlus(50, 50))
	assert.Equal(t, "Note", Plural(1, "Note", false))
	assert.Equal(t, "Notes", Plural(0, "Note", false))
	assert.Equal(t, "3 Watched Items", Plural(3, "Watched Item", true))
}

func TestBadge_Update(t *testing.T) {
	b := NewBadge("#3a4e27")

	changed, notify := b.Update(3)
	assert.True(t, changed)
	assert.True(t, notify)
	assert.Equal(t, "3", b.Text())

	changed, notify = b.Update(3)
	assert.False(t, changed)
	assert.False(t, notify)

	changed, notify = b.Update(2)
	assert.True(t, changed)
	assert.False(t, notify, "decrease changes the text without notifying")

	changed, notify = b.Update(0)
	assert.True(t, changed)
	assert.False(t, notify)
	assert.Equal(t, "", b.Text())

	b.SetSignedOut()
	assert.Equal(t, SignedOutText, b.Text())
	assert.Equal(t, SignedOutColor, b.Color())

	changed, notify = b.Update(1)
	assert.True(t, changed)
	assert.True(t, notify)
	assert.Equal(t, "#3a4e27", b.Color())
}

func TestPresenter_BuildWithButtons(t *testing.T) {
	sink := &recordingSink{buttons: true}
	p := newTestPresenter(sink, models.DefaultOptions("x"))

	n := p.Build(countsWith(0, 51, 2), NotificationID, models.DefaultOptions("x"))

	require.Len(t, n.Buttons, 2)
	assert.Equal(t, "View 50+ Notes", n.Buttons[0].Title)
	assert.Equal(t, "img/chat-black.svg", n.Buttons[0].IconURL)
	assert.Equal(t, "View 2 Watched Items", n.Buttons[1].Title)
	assert.Equal(t, "You have unread notifications", n.Message)

	assert.Equal(t, ActionOpenNotes, p.ResolveButton(NotificationID, 0))
	assert.Equal(t, ActionOpenWatch, p.ResolveButton(NotificationID, 1))
	assert.Equal(t, ActionNone, p.ResolveButton(NotificationID, 2))
	assert.Equal(t, ActionNone, p.ResolveButton("unknown", 0))
}

func TestPresenter_BuildCollapsesThreeButtons(t *testing.T) {
	sink := &recordingSink{buttons: true}
	p := newTestPresenter(sink, models.DefaultOptions("x"))

	n := p.Build(countsWith(1, 2, 30), NotificationID, models.DefaultOptions("x"))

	require.Len(t, n.Buttons, 2)
	assert.Equal(t, "Dismiss", n.Buttons[0].Title)
	assert.Equal(t, "Mark all read", n.Buttons[1].Title)
	assert.Equal(t, "You have unread notifications:\n1 Notification\n2 Notes\n24+ Watched Items", n.Message)

	assert.Equal(t, ActionDismiss, p.ResolveButton(NotificationID, 0))
	assert.Equal(t, ActionMarkAllRead, p.ResolveButton(NotificationID, 1))
}

func TestPresenter_BuildWithoutButtons(t *testing.T) {
	sink := &recordingSink{}
	opts := models.DefaultOptions("x")
	p := newTestPresenter(sink, opts)

	n := p.Build(countsWith(5, 0, 1), NotificationID, opts)
	assert.Empty(t, n.Buttons)
	assert.Equal(t, "You have unread notifications:\n\n🔔   5 Notifications\n🥽   1 Watched Item", n.Message)

	opts.NotifIcons = false
	n = p.Build(countsWith(5, 0, 0), NotificationID, opts)
	assert.Equal(t, "You have unread notifications:\n\n5 Notifications", n.Message)
	assert.Equal(t, ActionNone, p.ResolveButton(NotificationID, 0))
}

func TestPresenter_BuildDetails(t *testing.T) {
	p := newTestPresenter(&recordingSink{}, models.DefaultOptions("x"))

	counts := models.NewCounts()
	counts.Feedback[models.FeedbackReplies] = 3
	counts.Watch[models.WatchGroupDeviations] = 1
	counts.Watch[models.WatchJournals] = 4

	n := p.Build(counts, NotificationID, models.DefaultOptions("x"))
	assert.Equal(t, []Detail{
		{Name: "Reply", Count: 3},
		{Name: "Group Deviation", Count: 1},
		{Name: "Post", Count: 4},
	}, n.Details)

	assert.Empty(t, p.Build(models.NewCounts(), NotificationID, models.DefaultOptions("x")).Details)
}

func TestPresenter_PublishNotifiesOnIncrease(t *testing.T) {
	sink := &recordingSink{}
	p := newTestPresenter(sink, models.DefaultOptions("x"))
	ctx := context.Background()

	p.Publish(ctx, countsWith(3, 0, 0), countsWith(3, 0, 0), true)
	assert.Equal(t, 1, sink.sentCount())
	assert.Equal(t, "3", p.BadgeText())

	p.Publish(ctx, countsWith(3, 0, 0), countsWith(3, 0, 0), true)
	assert.Equal(t, 1, sink.sentCount())

	p.Publish(ctx, countsWith(1, 0, 0), countsWith(1, 0, 0), true)
	assert.Equal(t, 1, sink.sentCount())

	p.Publish(ctx, models.NewCounts(), models.NewCounts(), false)
	assert.Equal(t, SignedOutText, p.BadgeText())
	assert.Equal(t, 1, sink.sentCount())
}

func TestPresenter_ShowRespectsEnabled(t *testing.T) {
	sink := &recordingSink{}
	opts := models.DefaultOptions("x")
	opts.NotifEnabled = false
	p := newTestPresenter(sink, opts)

	require.NoError(t, p.Show(context.Background(), countsWith(1, 0, 0), NotificationID, opts))
	assert.Zero(t, sink.sentCount())
}

func TestPresenter_TimeoutClearsNotification(t *testing.T) {
	sink := &recordingSink{}
	opts := models.DefaultOptions("x")
	opts.NotifTimeout = 20
	p := newTestPresenter(sink, opts)

	require.NoError(t, p.Show(context.Background(), countsWith(1, 0, 0), NotificationID, opts))
	assert.True(t, p.HasTimer(NotificationID))

	require.Eventually(t, func() bool { return sink.clearedCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, p.HasTimer(NotificationID))
}

func TestPresenter_ZeroTimeoutPersists(t *testing.T) {
	sink := &recordingSink{}
	opts := models.DefaultOptions("x")
	opts.NotifTimeout = 0
	p := newTestPresenter(sink, opts)

	require.NoError(t, p.Show(context.Background(), countsWith(1, 0, 0), NotificationID, opts))
	assert.True(t, sink.sent[0].Persist)
	assert.False(t, p.HasTimer(NotificationID))

	p.ArmTimeout(NotificationID)
	assert.False(t, p.HasTimer(NotificationID))
}

func TestPresenter_RearmReplacesTimer(t *testing.T) {
	sink := &recordingSink{}
	opts := models.DefaultOptions("x")
	opts.NotifTimeout = 10000
	p := newTestPresenter(sink, opts)

	p.ArmTimeout(NotificationID)
	p.ArmTimeout(NotificationID)
	assert.True(t, p.HasTimer(NotificationID))

	require.NoError(t, p.Clear(context.Background(), NotificationID))
	assert.False(t, p.HasTimer(NotificationID))
	assert.Equal(t, 1, sink.clearedCount())
}

func TestTeamsSink_Send(t *testing.T) {
	var received TeamsMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewTeamsSink(server.URL, "https://notify.example.com/")
	p := newTestPresenter(sink, models.DefaultOptions("x"))
	n := p.Build(countsWith(2, 1, 0), NotificationID, models.DefaultOptions("x"))

	require.NoError(t, sink.Send(context.Background(), n))

	assert.Equal(t, "MessageCard", received.Type)
	require.Len(t, received.PotentialAction, 2)
	assert.Equal(t, "View 2 Notifications", received.PotentialAction[0].Name)
	assert.Equal(t, "https://notify.example.com/notifications/Deviant-Notify/buttons/1", received.PotentialAction[1].Targets[0].URI)
	require.Len(t, received.Sections, 1)
	assert.Equal(t, []TeamsFact{{Name: "Comment", Value: "2"}, {Name: "Note", Value: "1"}}, received.Sections[0].Facts)
}

func TestTeamsSink_SendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := NewTeamsSink(server.URL, "").Send(context.Background(), &Notification{ID: NotificationID})
	assert.Error(t, err)
}

func TestEmailSink_BuildMessage(t *testing.T) {
	sink := NewEmailSink(&config.Config{
		SMTPHost:          "smtp.example.com",
		SMTPPort:          587,
		SMTPUsername:      "bot@example.com",
		NotificationEmail: "me@example.com",
	})
	assert.False(t, sink.SupportsButtons())

	m, err := sink.buildMessage(&Notification{Title: "DeviantArt", Message: "You have unread notifications:\n\n2 Notes"})
	require.NoError(t, err)
	assert.Equal(t, []string{"me@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"DeviantArt - You have unread notifications"}, m.GetHeader("Subject"))
}

func TestNewSink(t *testing.T) {
	sink, err := NewSink(&config.Config{NotificationChannel: "log"})
	require.NoError(t, err)
	assert.IsType(t, &LogSink{}, sink)

	sink, err = NewSink(&config.Config{NotificationChannel: "teams", TeamsWebhookURL: "https://hook"})
	require.NoError(t, err)
	assert.True(t, sink.SupportsButtons())

	_, err = NewSink(&config.Config{NotificationChannel: "pager"})
	assert.Error(t, err)
}
