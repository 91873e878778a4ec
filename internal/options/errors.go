package options

import "sort"

// ErrorCollection accumulates validation messages per option key
type ErrorCollection struct {
	collection map[string][]string
	total      int
}

// NewErrorCollection creates an empty collection
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{collection: make(map[string][]string)}
}

// Add appends messages under key
func (e *ErrorCollection) Add(key string, messages ...string) {
	e.collection[key] = append(e.collection[key], messages...)
	e.total += len(messages)
}

// Count is the total number of messages across all keys
func (e *ErrorCollection) Count() int {
	if e == nil {
		return 0
	}
	return e.total
}

// All returns the messages keyed by option name
func (e *ErrorCollection) All() map[string][]string {
	if e == nil {
		return map[string][]string{}
	}
	return e.collection
}

// Keys returns the failing option names in sorted order
func (e *ErrorCollection) Keys() []string {
	keys := make([]string, 0, len(e.All()))
	for k := range e.All() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
