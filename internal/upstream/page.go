package upstream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deviantnotify/deviant-notify/internal/models"
)

const (
	feedbackPath = "/_napi/da-messagecentre/api/feedback"
	watchPath    = "/_napi/da-messagecentre/api/watch"
	notesPath    = "/_napi/da-messagecentre/api/notes"
)

// PageRequest describes one category page to fetch
type PageRequest struct {
	Path   string
	Query  map[string]string
	Cursor string
}

// FeedbackRequest asks for one feedback type, unstacked
func FeedbackRequest(t models.FeedbackType, limit int) PageRequest {
	return PageRequest{
		Path: feedbackPath,
		Query: map[string]string{
			"messagetype": string(t),
			"stacked":     "false",
			"limit":       strconv.Itoa(limit),
		},
	}
}

// AggregateRequest asks for the combined notification feed
func AggregateRequest(limit int) PageRequest {
	return PageRequest{
		Path:  feedbackPath,
		Query: map[string]string{"limit": strconv.Itoa(limit)},
	}
}

// WatchRequest asks for one watch type, unstacked
func WatchRequest(t models.WatchType, limit int) PageRequest {
	return PageRequest{
		Path: watchPath,
		Query: map[string]string{
			"messagetype": string(t),
			"stacked":     "false",
			"limit":       strconv.Itoa(limit),
		},
	}
}

// NotesRequest asks for one page of notes starting at cursor
func NotesRequest(limit int, cursor string) PageRequest {
	return PageRequest{
		Path:   notesPath,
		Query:  map[string]string{"limit": strconv.Itoa(limit)},
		Cursor: cursor,
	}
}

// Item is one entry of a category page
type Item struct {
	TS string
}

// Time parses the item timestamp. ok is false when it cannot be read.
func (i Item) Time() (time.Time, bool) {
	if i.TS == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05-0700", "2006-01-02T15:04:05.000-0700"} {
		if ts, err := time.Parse(layout, i.TS); err == nil {
			return ts, true
		}
	}
	if secs, err := strconv.ParseInt(i.TS, 10, 64); err == nil {
		return time.Unix(secs, 0), true
	}
	return time.Time{}, false
}

// Page is a validated category response
type Page struct {
	Total   int
	Type    string
	Results []Item
	HasMore bool
	Cursor  string
}

type wirePage struct {
	Counts *struct {
		Total *float64 `json:"total"`
	} `json:"counts"`
	Settings *struct {
		Type *string `json:"type"`
	} `json:"settings"`
	Results *[]json.RawMessage `json:"results"`
	HasMore *bool              `json:"hasMore"`
	Cursor  *string            `json:"cursor"`
}

// ParsePage validates the minimal response shape shared by every category endpoint
func ParsePage(body []byte) (*Page, error) {
	var wire wirePage
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}

	switch {
	case wire.Counts == nil || wire.Counts.Total == nil:
		return nil, fmt.Errorf("%w: missing counts.total", ErrMalformedPage)
	case wire.Settings == nil || wire.Settings.Type == nil:
		return nil, fmt.Errorf("%w: missing settings.type", ErrMalformedPage)
	case wire.Results == nil:
		return nil, fmt.Errorf("%w: missing results", ErrMalformedPage)
	case wire.HasMore == nil:
		return nil, fmt.Errorf("%w: missing hasMore", ErrMalformedPage)
	}

	page := &Page{
		Total:   int(*wire.Counts.Total),
		Type:    *wire.Settings.Type,
		HasMore: *wire.HasMore,
		Results: make([]Item, 0, len(*wire.Results)),
	}
	if wire.Cursor != nil {
		page.Cursor = *wire.Cursor
	}

	for _, raw := range *wire.Results {
		var entry struct {
			TS json.RawMessage `json:"ts"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			page.Results = append(page.Results, Item{})
			continue
		}
		page.Results = append(page.Results, Item{TS: strings.Trim(string(entry.TS), `"`)})
	}

	return page, nil
}
