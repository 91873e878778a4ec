package options

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/deviantnotify/deviant-notify/internal/models"
	"github.com/deviantnotify/deviant-notify/internal/storage"
)

// StorageKey is where the options live in the local backend
const StorageKey = "options"

// ChangeFunc is called once per successfully applied key, after the new
// values have been persisted
type ChangeFunc func(ctx context.Context, key string, prev, next models.Options)

// Manager owns the in-memory options and keeps them in step with storage
type Manager struct {
	mu             sync.RWMutex
	values         models.Options
	storage        storage.StorageInterface
	allowedDomains []string
	observers      []ChangeFunc
	firstRun       bool
}

// NewManager creates a manager holding the defaults until Load is called
func NewManager(store storage.StorageInterface, allowedDomains []string) *Manager {
	return &Manager{
		values:         models.DefaultOptions(allowedDomains[0]),
		storage:        store,
		allowedDomains: allowedDomains,
	}
}

// Get returns a copy of the current options
func (m *Manager) Get() models.Options {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values.Clone()
}

// OnChange registers fn to run after every applied key
func (m *Manager) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Load reads the persisted options, lays them over the defaults and runs the
// result through validation. Observers are not notified.
func (m *Manager) Load(ctx context.Context) (*ErrorCollection, error) {
	stored := map[string]json.RawMessage{}

	data, err := m.storage.Retrieve(ctx, StorageKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		m.firstRun = true
	case err != nil:
		logrus.Errorf("Failed to read stored options, using defaults: %v", err)
	default:
		if err := json.Unmarshal(data, &stored); err != nil {
			logrus.Errorf("Stored options are corrupt, using defaults: %v", err)
			stored = map[string]json.RawMessage{}
		}
	}

	untrusted, err := optionsToPatch(models.DefaultOptions(m.allowedDomains[0]))
	if err != nil {
		return nil, err
	}
	for key, value := range stored {
		untrusted[key] = value
	}

	return m.process(ctx, untrusted, false)
}

// Init loads the persisted options and then applies the seed file at
// seedPath if nothing was persisted yet. Validation messages from both steps
// are returned together.
func (m *Manager) Init(ctx context.Context, seedPath string) (*ErrorCollection, error) {
	errs, err := m.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load options: %w", err)
	}

	seedErrs, err := m.Seed(ctx, seedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to seed options: %w", err)
	}
	for key, messages := range seedErrs.All() {
		errs.Add(key, messages...)
	}
	return errs, nil
}

// Process validates and applies patch. Valid keys are applied even when others
// fail. The returned error is only set when persisting failed, in which case
// nothing was applied.
func (m *Manager) Process(ctx context.Context, patch map[string]json.RawMessage) (*ErrorCollection, error) {
	return m.process(ctx, patch, true)
}

// Seed applies the YAML file at path when no options were persisted before Load
func (m *Manager) Seed(ctx context.Context, path string) (*ErrorCollection, error) {
	if path == "" || !m.firstRun {
		return NewErrorCollection(), nil
	}

	patch, err := LoadSeedFile(path)
	if err != nil {
		return nil, err
	}

	logrus.Infof("Seeding options from %s", path)
	return m.process(ctx, patch, false)
}

func (m *Manager) process(ctx context.Context, patch map[string]json.RawMessage, notify bool) (*ErrorCollection, error) {
	errs := NewErrorCollection()

	keys := make([]string, 0, len(patch))
	for key := range patch {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	m.mu.Lock()
	prev := m.values.Clone()
	next := m.values.Clone()

	var applied []string
	for _, key := range keys {
		if messages := Apply(&next, key, patch[key], m.allowedDomains); len(messages) > 0 {
			errs.Add(key, messages...)
			continue
		}
		applied = append(applied, key)
	}

	if err := m.persist(ctx, next); err != nil {
		m.mu.Unlock()
		return errs, err
	}
	m.values = next
	observers := append([]ChangeFunc{}, m.observers...)
	m.mu.Unlock()

	if notify {
		for _, key := range applied {
			for _, fn := range observers {
				fn(ctx, key, prev, next.Clone())
			}
		}
	}

	return errs, nil
}

func (m *Manager) persist(ctx context.Context, values models.Options) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	if err := m.storage.Store(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("failed to store options: %w", err)
	}
	return nil
}

// LoadSeedFile reads a YAML mapping of option keys into a patch for Process
func LoadSeedFile(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read options file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse options file: %w", err)
	}

	patch := make(map[string]json.RawMessage, len(raw))
	for key, value := range raw {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("option %s cannot be encoded: %w", key, err)
		}
		patch[key] = encoded
	}
	return patch, nil
}

func optionsToPatch(values models.Options) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	patch := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return nil, err
	}
	return patch, nil
}
