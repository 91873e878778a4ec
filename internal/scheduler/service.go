package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/deviantnotify/deviant-notify/internal/models"
)

const cookieDebounce = 250 * time.Millisecond

// Refresher runs one check cycle
type Refresher interface {
	Refresh(ctx context.Context) error
}

// OptionsSource provides the update interval
type OptionsSource interface {
	Get() models.Options
}

// CookieReloader re-reads the session cookies from disk
type CookieReloader interface {
	ReloadCookies() error
}

// Service handles scheduling of refresh cycles
type Service struct {
	refresher Refresher
	options   OptionsSource
	cron      *cron.Cron

	mu       sync.Mutex
	entry    cron.EntryID
	interval int
	ctx      context.Context
	cancel   context.CancelFunc
	running  sync.WaitGroup
}

// NewService creates a new scheduler service
func NewService(refresher Refresher, options OptionsSource) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		refresher: refresher,
		options:   options,
		cron:      cron.New(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the scheduled refreshes and runs the first one right away
func (s *Service) Start() error {
	if err := s.Restart(true); err != nil {
		return err
	}
	s.cron.Start()
	logrus.Infof("Scheduler started, refreshing every %d minute(s)", s.Interval())
	return nil
}

// Restart replaces the periodic entry with one using the current interval.
// With immediate set a refresh runs straight away.
func (s *Service) Restart(immediate bool) error {
	interval := s.options.Get().UpdateInterval
	if interval < 1 {
		interval = 1
	}

	s.mu.Lock()
	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	entry, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", interval), s.run)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	s.entry = entry
	s.interval = interval
	s.mu.Unlock()

	logrus.Debugf("Refresh scheduled every %d minute(s), immediate=%t", interval, immediate)

	if immediate {
		s.running.Add(1)
		go func() {
			defer s.running.Done()
			s.run()
		}()
	}
	return nil
}

func (s *Service) run() {
	if s.ctx.Err() != nil {
		return
	}
	logrus.Debug("Starting scheduled refresh")
	if err := s.refresher.Refresh(s.ctx); err != nil {
		logrus.Warnf("Scheduled refresh failed: %v", err)
	}
}

// Interval is the active period in minutes
func (s *Service) Interval() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Entries reports how many periodic entries are registered
func (s *Service) Entries() int {
	return len(s.cron.Entries())
}

// WatchCookies reloads the cookie jar and rechecks whenever the cookie file
// changes. The parent directory is watched so the file may appear later.
func (s *Service) WatchCookies(path string, reloader CookieReloader) error {
	if path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create cookie watcher: %w", err)
	}

	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	go func() {
		defer w.Close()
		debounce := time.NewTimer(time.Hour)
		debounce.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(cookieDebounce)
				}
			case <-debounce.C:
				logrus.Info("Cookie file changed, reloading session")
				if err := reloader.ReloadCookies(); err != nil {
					logrus.Errorf("Cookie reload failed: %v", err)
					continue
				}
				if err := s.Restart(true); err != nil {
					logrus.Errorf("Failed to restart scheduler: %v", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logrus.Errorf("Cookie watch error: %v", err)
			}
		}
	}()
	return nil
}

// Stop stops the scheduler and waits for running refreshes
func (s *Service) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.running.Wait()
	logrus.Info("Scheduler stopped")
}
