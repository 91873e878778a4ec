package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorruptTree is returned when a persisted or patched tree is not a JSON object
var ErrCorruptTree = errors.New("corrupt category tree")

// Tree holds one value per leaf category. Every known leaf is always present.
type Tree[T any] struct {
	Messages T                  `json:"messages"`
	Feedback map[FeedbackType]T `json:"feedback"`
	Watch    map[WatchType]T    `json:"watch"`
}

// Counts is a snapshot of one integer per leaf category
type Counts = Tree[int]

// ReadState holds the last acknowledged timestamp per leaf; nil means never
type ReadState = Tree[*time.Time]

// NewTree builds a tree with every known leaf set to def
func NewTree[T any](def T) Tree[T] {
	t := Tree[T]{
		Messages: def,
		Feedback: make(map[FeedbackType]T, len(feedbackLeaves)),
		Watch:    make(map[WatchType]T, len(WatchTypes)),
	}
	for _, k := range feedbackLeaves {
		t.Feedback[k] = def
	}
	for _, k := range WatchTypes {
		t.Watch[k] = def
	}
	return t
}

// NewCounts returns an all-zero count snapshot
func NewCounts() Counts {
	return NewTree(0)
}

// NewReadState returns a read state where nothing was ever acknowledged
func NewReadState() ReadState {
	return NewTree[*time.Time](nil)
}

// Clone copies the leaf maps. Leaf values themselves are copied by value, so
// pointer leaves must be replaced rather than mutated.
func (t Tree[T]) Clone() Tree[T] {
	out := Tree[T]{
		Messages: t.Messages,
		Feedback: make(map[FeedbackType]T, len(t.Feedback)),
		Watch:    make(map[WatchType]T, len(t.Watch)),
	}
	for k, v := range t.Feedback {
		out.Feedback[k] = v
	}
	for k, v := range t.Watch {
		out.Watch[k] = v
	}
	return out
}

// Set assigns val to every leaf selected by leaf
func (t *Tree[T]) Set(val T, leaf Leaf) {
	switch leaf.Group {
	case GroupMessages:
		t.Messages = val
	case GroupFeedback:
		for _, k := range feedbackLeaves {
			if leaf.Type == "" || string(k) == leaf.Type {
				t.Feedback[k] = val
			}
		}
	case GroupWatch:
		for _, k := range WatchTypes {
			if leaf.Type == "" || string(k) == leaf.Type {
				t.Watch[k] = val
			}
		}
	}
}

// FeedbackSum adds up every feedback leaf
func (c Counts) FeedbackSum() int {
	sum := 0
	for _, v := range c.Feedback {
		sum += v
	}
	return sum
}

// WatchSum adds up every watch leaf
func (c Counts) WatchSum() int {
	sum := 0
	for _, v := range c.Watch {
		sum += v
	}
	return sum
}

// Total is the grand total across all groups
func (c Counts) Total() int {
	return c.Messages + c.FeedbackSum() + c.WatchSum()
}

// MergeJSON merges a (possibly partial) JSON tree into dst. Keys missing from
// raw are left alone, unknown keys are ignored, and each present leaf goes
// through coerce. When coerce reports false the leaf is left unchanged.
func MergeJSON[T any](dst *Tree[T], raw []byte, coerce func(json.RawMessage) (T, bool)) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptTree, err)
	}

	if v, ok := top[string(GroupMessages)]; ok {
		if val, ok := coerce(v); ok {
			dst.Messages = val
		}
	}
	if v, ok := top[string(GroupFeedback)]; ok {
		mergeGroup(dst.Feedback, v, coerce)
	}
	if v, ok := top[string(GroupWatch)]; ok {
		mergeGroup(dst.Watch, v, coerce)
	}

	return nil
}

func mergeGroup[K ~string, T any](dst map[K]T, raw json.RawMessage, coerce func(json.RawMessage) (T, bool)) {
	var group map[string]json.RawMessage
	if err := json.Unmarshal(raw, &group); err != nil {
		return
	}

	for key := range dst {
		v, ok := group[string(key)]
		if !ok {
			continue
		}
		if val, ok := coerce(v); ok {
			dst[key] = val
		}
	}
}
