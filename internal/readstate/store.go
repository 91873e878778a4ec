package readstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deviantnotify/deviant-notify/internal/models"
	"github.com/deviantnotify/deviant-notify/internal/storage"
)

// StorageKey is where the read state lives in whichever backend is active
const StorageKey = "readState"

// Store holds the per-category read watermarks
type Store struct {
	mu      sync.Mutex
	state   models.ReadState
	backend storage.StorageInterface
	now     func() time.Time
}

// NewStore creates a store where nothing has been read yet
func NewStore(backend storage.StorageInterface) *Store {
	return &Store{
		state:   models.NewReadState(),
		backend: backend,
		now:     time.Now,
	}
}

// Get returns a copy of the current watermarks
func (s *Store) Get() models.ReadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Backend returns the storage currently holding the read state
func (s *Store) Backend() storage.StorageInterface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// Load merges the persisted state into memory. Leaves missing from storage keep
// their current value and a corrupt payload is logged and ignored.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.backend.Retrieve(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read read state: %w", err)
	}

	next := s.state.Clone()
	if err := models.MergeJSON(&next, data, coerceTimestamp); err != nil {
		logrus.Errorf("Stored read state is corrupt, keeping current values: %v", err)
		return nil
	}
	s.state = next
	return nil
}

// Update merges a partial read state and persists the result
func (s *Store) Update(ctx context.Context, patch []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	if err := models.MergeJSON(&next, patch, coerceTimestamp); err != nil {
		return err
	}
	return s.commit(ctx, next)
}

// MarkRead sets the selected leaves to the current time
func (s *Store) MarkRead(ctx context.Context, leaves ...models.Leaf) error {
	for _, leaf := range leaves {
		if !validLeaf(leaf) {
			return fmt.Errorf("unknown category %s/%s", leaf.Group, leaf.Type)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	next := s.state.Clone()
	for _, leaf := range leaves {
		ts := now
		next.Set(&ts, leaf)
	}
	return s.commit(ctx, next)
}

// MarkAllRead sets every leaf to the current time
func (s *Store) MarkAllRead(ctx context.Context) error {
	leaves := make([]models.Leaf, 0, len(models.Groups))
	for _, g := range models.Groups {
		leaves = append(leaves, models.Leaf{Group: g})
	}
	return s.MarkRead(ctx, leaves...)
}

// Clear forgets every watermark
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, models.NewReadState())
}

// Migrate moves the persisted state from one backend to another and makes to
// the active backend. Nothing stored in from is a no-op move. When writing to
// the destination fails, the source is left as it was.
func (s *Store) Migrate(ctx context.Context, from, to storage.StorageInterface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := from.Retrieve(ctx, StorageKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.backend = to
		return nil
	case err != nil:
		return fmt.Errorf("failed to read read state for migration: %w", err)
	}

	if err := to.Store(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("failed to copy read state: %w", err)
	}
	s.backend = to

	if err := from.Delete(ctx, StorageKey); err != nil {
		logrus.Warnf("Read state copied but old copy could not be removed: %v", err)
	}
	return nil
}

// commit persists next and swaps it in. Callers hold mu.
func (s *Store) commit(ctx context.Context, next models.ReadState) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal read state: %w", err)
	}
	if err := s.backend.Store(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("failed to store read state: %w", err)
	}
	s.state = next
	return nil
}

// coerceTimestamp turns a leaf into a date. Anything that is not an RFC 3339
// string becomes nil.
func coerceTimestamp(raw json.RawMessage) (*time.Time, bool) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, true
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, true
	}
	return &ts, true
}

func validLeaf(leaf models.Leaf) bool {
	switch leaf.Group {
	case models.GroupMessages:
		return leaf.Type == ""
	case models.GroupFeedback:
		return leaf.Type == "" || leaf.Type == string(models.FeedbackAggregate) || models.IsValidFeedbackType(leaf.Type)
	case models.GroupWatch:
		return leaf.Type == "" || models.IsValidWatchType(leaf.Type)
	}
	return false
}
