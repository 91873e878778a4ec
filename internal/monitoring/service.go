package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deviantnotify/deviant-notify/internal/config"
	"github.com/deviantnotify/deviant-notify/internal/models"
	"github.com/deviantnotify/deviant-notify/internal/upstream"
)

// recheckAfter is how stale the last check may get before a site visit triggers one
const recheckAfter = 30 * time.Second

// Upstream is the part of the upstream client a refresh needs
type Upstream interface {
	PageFetcher
	SignedInUser() (string, error)
	ResolveSession(ctx context.Context) (*upstream.Session, error)
}

// ReadStateSource exposes the current read watermarks
type ReadStateSource interface {
	Get() models.ReadState
}

// Publisher receives every finished snapshot. It owns the badge.
type Publisher interface {
	Publish(ctx context.Context, counts, newCounts models.Counts, signedIn bool)
	BadgeText() string
}

// Broadcaster pushes popup data to connected clients
type Broadcaster interface {
	Broadcast(data models.PopupData)
}

// Service runs refresh cycles and holds the latest snapshot
type Service struct {
	upstream   Upstream
	aggregator *Aggregator
	options    OptionsSource
	readState  ReadStateSource
	publisher  Publisher
	metrics    *Metrics
	now        func() time.Time

	running atomic.Bool

	mu          sync.RWMutex
	broadcaster Broadcaster
	counts      models.Counts
	newCounts   models.Counts
	signedIn    bool
	username    string
	autoTheme   string
	updating    bool
	lastCheck   *time.Time
}

// NewService creates a new monitoring service
func NewService(cfg *config.Config, client Upstream, options OptionsSource, readState ReadStateSource, publisher Publisher, metrics *Metrics) *Service {
	aggregator := NewAggregator(client, options, cfg.PageLimit, cfg.NotesMaxNew)
	aggregator.metrics = metrics

	return &Service{
		upstream:   client,
		aggregator: aggregator,
		options:    options,
		readState:  readState,
		publisher:  publisher,
		metrics:    metrics,
		now:        time.Now,
		counts:     models.NewCounts(),
		newCounts:  models.NewCounts(),
		autoTheme:  models.Themes[0],
	}
}

// SetBroadcaster attaches the push channel used after every state change
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

// Refresh runs one full check. A call made while another is running returns
// immediately without doing anything.
func (s *Service) Refresh(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		logrus.Debug("Refresh already in progress, skipping")
		return nil
	}
	defer s.running.Store(false)

	start := s.now()
	s.setUpdating(true)
	defer s.setUpdating(false)

	if _, err := s.upstream.SignedInUser(); err != nil {
		s.publishSignedOut(ctx)
		s.metrics.ObserveRefresh("signed_out", time.Since(start))
		return err
	}

	session, err := s.upstream.ResolveSession(ctx)
	if errors.Is(err, upstream.ErrNotSignedIn) {
		s.publishSignedOut(ctx)
		s.metrics.ObserveRefresh("signed_out", time.Since(start))
		return err
	}
	if err != nil {
		logrus.Errorf("Failed to resolve session: %v", err)
		s.metrics.ObserveRefresh("session_error", time.Since(start))
		return fmt.Errorf("failed to resolve session: %w", err)
	}

	opts := s.options.Get()
	read := s.readState.Get()
	counts := models.NewCounts()
	fresh := models.NewCounts()

	var wg sync.WaitGroup
	wg.Add(3)

	go s.settle(&wg, models.GroupFeedback, func() error {
		totals, news, err := s.aggregator.Feedback(ctx, opts.BetaNotificationsSupport, read)
		if err != nil {
			return err
		}
		counts.Feedback, fresh.Feedback = totals, news
		return nil
	})

	go s.settle(&wg, models.GroupWatch, func() error {
		totals, news, err := s.aggregator.Watch(ctx, read)
		if err != nil {
			return err
		}
		counts.Watch, fresh.Watch = totals, news
		return nil
	})

	go s.settle(&wg, models.GroupMessages, func() error {
		total, news, err := s.aggregator.Messages(ctx, read)
		if err != nil {
			return err
		}
		counts.Messages, fresh.Messages = total, news
		return nil
	})

	wg.Wait()

	checked := s.now()
	s.mu.Lock()
	s.counts = counts
	s.newCounts = fresh
	s.signedIn = true
	s.username = session.Username
	s.lastCheck = &checked
	s.autoTheme = ThemeFromBodyClass(session.BodyClass)
	s.mu.Unlock()

	s.publisher.Publish(ctx, counts, fresh, true)
	s.metrics.SetCounts(counts, fresh)
	s.metrics.ObserveRefresh("ok", time.Since(start))

	logrus.Infof("Refresh completed for %s: %d unread, %d new", session.Username, counts.Total(), fresh.Total())
	return nil
}

// settle runs fn and swallows its error or panic so the other groups are not
// affected. The group keeps its zero defaults on failure.
func (s *Service) settle(wg *sync.WaitGroup, group models.Group, fn func() error) {
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Counting %s panicked: %v", group, r)
			s.metrics.IncFetchFailures(group)
		}
	}()

	if err := fn(); err != nil {
		logrus.Errorf("Failed to count %s: %v", group, err)
		s.metrics.IncFetchFailures(group)
	}
}

func (s *Service) publishSignedOut(ctx context.Context) {
	s.mu.Lock()
	s.signedIn = false
	s.username = ""
	s.counts = models.NewCounts()
	s.newCounts = models.NewCounts()
	s.mu.Unlock()

	logrus.Info("Not signed in, skipping refresh")
	s.publisher.Publish(ctx, models.NewCounts(), models.NewCounts(), false)
}

func (s *Service) setUpdating(updating bool) {
	s.mu.Lock()
	s.updating = updating
	s.mu.Unlock()
	s.Broadcast()
}

// Broadcast pushes the current popup data to the attached broadcaster
func (s *Service) Broadcast() {
	s.mu.RLock()
	b := s.broadcaster
	s.mu.RUnlock()
	if b != nil {
		b.Broadcast(s.PopupData())
	}
}

// OptionsData returns the data the options screen needs
func (s *Service) OptionsData() models.OptionsData {
	opts := s.options.Get()

	s.mu.RLock()
	autoTheme := s.autoTheme
	s.mu.RUnlock()

	return models.OptionsData{
		Version: config.Version,
		Prefs:   opts,
		Theme:   ResolveTheme(opts.Theme, autoTheme),
	}
}

// PopupData returns the latest snapshot with session meta
func (s *Service) PopupData() models.PopupData {
	optionsData := s.OptionsData()
	badge := s.publisher.BadgeText()

	s.mu.RLock()
	defer s.mu.RUnlock()

	data := models.PopupData{
		Counts:      s.counts.Clone(),
		NewCounts:   s.newCounts.Clone(),
		SignedIn:    s.signedIn,
		Username:    s.username,
		AutoTheme:   s.autoTheme,
		Updating:    s.updating,
		Badge:       badge,
		OptionsData: optionsData,
	}
	if s.lastCheck != nil {
		checked := *s.lastCheck
		data.LastCheck = &checked
	}
	return data
}

// OnSiteUpdate records the theme seen on a site page and reports whether a
// recheck is due
func (s *Service) OnSiteUpdate(bodyClass string) bool {
	if bodyClass != "" {
		s.mu.Lock()
		s.autoTheme = ThemeFromBodyClass(bodyClass)
		s.mu.Unlock()
	}
	return s.NeedsRecheck()
}

// NeedsRecheck is true when signed out or the last check is stale
func (s *Service) NeedsRecheck() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.signedIn || s.lastCheck == nil {
		return true
	}
	return s.now().Sub(*s.lastCheck) > recheckAfter
}
