package monitoring

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deviantnotify/deviant-notify/internal/models"
	"github.com/deviantnotify/deviant-notify/internal/upstream"
)

type pageOrErr struct {
	page *upstream.Page
	err  error
}

// fakeUpstream serves canned pages keyed by request
type fakeUpstream struct {
	mu    sync.Mutex
	pages map[string]pageOrErr
	calls []upstream.PageRequest

	username   string
	signInErr  error
	session    *upstream.Session
	sessionErr error

	signInCalls atomic.Int32
	release     chan struct{}
	panicOn     string
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		pages:    map[string]pageOrErr{},
		username: "kat",
		session:  &upstream.Session{RequestID: "abc", Username: "kat", BodyClass: "theme-light"},
	}
}

func keyOf(req upstream.PageRequest) string {
	return fmt.Sprintf("%s|%s|%s", req.Path, req.Query["messagetype"], req.Cursor)
}

func (f *fakeUpstream) serve(req upstream.PageRequest, page *upstream.Page) {
	f.pages[keyOf(req)] = pageOrErr{page: page}
}

func (f *fakeUpstream) fail(req upstream.PageRequest, err error) {
	f.pages[keyOf(req)] = pageOrErr{err: err}
}

func (f *fakeUpstream) FetchCategoryPage(ctx context.Context, req upstream.PageRequest) (*upstream.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	result, ok := f.pages[keyOf(req)]
	f.mu.Unlock()

	if f.panicOn != "" && req.Query["messagetype"] == f.panicOn {
		panic("boom")
	}
	if !ok {
		return &upstream.Page{Results: []upstream.Item{}}, nil
	}
	return result.page, result.err
}

func (f *fakeUpstream) SignedInUser() (string, error) {
	f.signInCalls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.username, f.signInErr
}

func (f *fakeUpstream) ResolveSession(ctx context.Context) (*upstream.Session, error) {
	return f.session, f.sessionErr
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeOptions returns first for the first Get and then for every later one
type fakeOptions struct {
	mu    sync.Mutex
	gets  int
	first models.Options
	later *models.Options
}

func staticOptions(opts models.Options) *fakeOptions {
	return &fakeOptions{first: opts}
}

func (f *fakeOptions) Get() models.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.gets > 1 && f.later != nil {
		return f.later.Clone()
	}
	return f.first.Clone()
}

type fakeReadState struct {
	state models.ReadState
}

func (f *fakeReadState) Get() models.ReadState {
	return f.state.Clone()
}

type published struct {
	counts    models.Counts
	newCounts models.Counts
	signedIn  bool
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []published
}

func (f *fakePublisher) Publish(_ context.Context, counts, newCounts models.Counts, signedIn bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, published{counts: counts, newCounts: newCounts, signedIn: signedIn})
}

func (f *fakePublisher) BadgeText() string {
	return ""
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []models.PopupData
}

func (f *fakeBroadcaster) Broadcast(data models.PopupData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// itemsAt builds one item per offset, in hours after epoch
func itemsAt(hours ...int) []upstream.Item {
	items := make([]upstream.Item, len(hours))
	for i, h := range hours {
		items[i] = upstream.Item{TS: epoch.Add(time.Duration(h) * time.Hour).Format(time.RFC3339)}
	}
	return items
}

func pageOf(total int, items []upstream.Item) *upstream.Page {
	return &upstream.Page{Total: total, Results: items}
}

func timeAt(hours int) *time.Time {
	t := epoch.Add(time.Duration(hours) * time.Hour)
	return &t
}
