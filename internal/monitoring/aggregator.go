package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deviantnotify/deviant-notify/internal/models"
	"github.com/deviantnotify/deviant-notify/internal/upstream"
)

// PageFetcher performs a single category page request
type PageFetcher interface {
	FetchCategoryPage(ctx context.Context, req upstream.PageRequest) (*upstream.Page, error)
}

// OptionsSource exposes the current user options
type OptionsSource interface {
	Get() models.Options
}

// Aggregator turns category pages into totals and new-item counts
type Aggregator struct {
	fetcher     PageFetcher
	options     OptionsSource
	metrics     *Metrics
	pageLimit   int
	notesMaxNew int
}

// NewAggregator creates an aggregator. notesMaxNew bounds how far the notes
// backlog is followed.
func NewAggregator(fetcher PageFetcher, options OptionsSource, pageLimit, notesMaxNew int) *Aggregator {
	return &Aggregator{
		fetcher:     fetcher,
		options:     options,
		pageLimit:   pageLimit,
		notesMaxNew: notesMaxNew,
	}
}

// Feedback counts the feedback group. With aggregate set only the aggregate
// leaf is fetched, otherwise only the individual types are.
func (a *Aggregator) Feedback(ctx context.Context, aggregate bool, read models.ReadState) (map[models.FeedbackType]int, map[models.FeedbackType]int, error) {
	all := []models.FeedbackType{models.FeedbackAggregate}
	request := func(models.FeedbackType) upstream.PageRequest { return upstream.AggregateRequest(a.pageLimit) }
	disabled := func() []string { return nil }

	if !aggregate {
		all = models.FeedbackTypes
		request = func(t models.FeedbackType) upstream.PageRequest { return upstream.FeedbackRequest(t, a.pageLimit) }
		disabled = func() []string { return a.options.Get().FeedbackDisabled }
	}

	totals, fresh := collectGroup(ctx, a.fetcher, all, disabled, request, func(t models.FeedbackType) *time.Time {
		return read.Feedback[t]
	}, a.leafFailed(models.GroupFeedback))

	// every snapshot carries every feedback leaf
	for k := range models.NewCounts().Feedback {
		if _, ok := totals[k]; !ok {
			totals[k] = 0
			fresh[k] = 0
		}
	}
	return totals, fresh, nil
}

// Watch counts the enabled watch types
func (a *Aggregator) Watch(ctx context.Context, read models.ReadState) (map[models.WatchType]int, map[models.WatchType]int, error) {
	totals, fresh := collectGroup(ctx, a.fetcher, models.WatchTypes,
		func() []string { return a.options.Get().WatchDisabled },
		func(t models.WatchType) upstream.PageRequest { return upstream.WatchRequest(t, a.pageLimit) },
		func(t models.WatchType) *time.Time { return read.Watch[t] },
		a.leafFailed(models.GroupWatch),
	)
	return totals, fresh, nil
}

func (a *Aggregator) leafFailed(group models.Group) func(leaf string, err error) {
	return func(leaf string, err error) {
		logrus.Warnf("Failed to fetch %s, counting it as 0: %v", leaf, err)
		a.metrics.IncFetchFailures(group)
	}
}

// Messages follows the notes cursor until pagination ends, the cursor stops
// moving, the backlog reaches read items, or the new count passes the cap.
// Past the cap the new count is pinned to cap+1.
func (a *Aggregator) Messages(ctx context.Context, read models.ReadState) (int, int, error) {
	total, fresh := 0, 0
	cursor := ""

	for first := true; ; first = false {
		page, err := a.fetcher.FetchCategoryPage(ctx, upstream.NotesRequest(a.pageLimit, cursor))
		if errors.Is(err, upstream.ErrMalformedPage) {
			logrus.Warnf("Skipping malformed notes page: %v", err)
			break
		}
		if err != nil {
			return 0, 0, fmt.Errorf("failed to fetch notes: %w", err)
		}

		if first {
			total = page.Total
		}

		newer := countNewer(page.Results, read.Messages)
		fresh += newer
		if fresh > a.notesMaxNew {
			fresh = a.notesMaxNew + 1
			break
		}

		if !page.HasMore || page.Cursor == "" || page.Cursor == cursor || reachesRead(page.Results, read.Messages) {
			break
		}
		cursor = page.Cursor
	}

	return total, fresh, nil
}

type pageResult[K ~string] struct {
	key  K
	page *upstream.Page
	err  error
}

// collectGroup fetches every enabled leaf in parallel. A leaf whose page is
// malformed or whose fetch fails stays at zero without touching its siblings.
// Leaves disabled when the fetches finish are forced back to zero.
func collectGroup[K ~string](
	ctx context.Context,
	fetcher PageFetcher,
	all []K,
	disabled func() []string,
	request func(K) upstream.PageRequest,
	watermark func(K) *time.Time,
	failed func(leaf string, err error),
) (map[K]int, map[K]int) {
	totals := make(map[K]int, len(all))
	fresh := make(map[K]int, len(all))
	for _, k := range all {
		totals[k] = 0
		fresh[k] = 0
	}

	active := activeLeaves(all, disabled())
	if len(active) == 0 {
		return totals, fresh
	}

	var wg sync.WaitGroup
	resultsChan := make(chan pageResult[K], len(active))

	for _, leaf := range active {
		wg.Add(1)
		go func(k K) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					resultsChan <- pageResult[K]{key: k, err: fmt.Errorf("panic: %v", r)}
				}
			}()
			page, err := fetcher.FetchCategoryPage(ctx, request(k))
			resultsChan <- pageResult[K]{key: k, page: page, err: err}
		}(leaf)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for result := range resultsChan {
		switch {
		case errors.Is(result.err, upstream.ErrMalformedPage):
			logrus.Warnf("Skipping malformed %s page: %v", result.key, result.err)
		case result.err != nil:
			failed(string(result.key), result.err)
		default:
			totals[result.key] = result.page.Total
			fresh[result.key] = countNewer(result.page.Results, watermark(result.key))
		}
	}

	off := toKeys[K](disabled())
	for _, k := range all {
		if !contains(active, k) || contains(off, k) {
			totals[k] = 0
			fresh[k] = 0
		}
	}

	return totals, fresh
}

// countNewer counts items strictly newer than watermark. A nil watermark means
// nothing was ever read.
func countNewer(items []upstream.Item, watermark *time.Time) int {
	since := time.Unix(0, 0)
	if watermark != nil {
		since = *watermark
	}

	count := 0
	for _, item := range items {
		ts, ok := item.Time()
		if ok && ts.After(since) {
			count++
		}
	}
	return count
}

// reachesRead reports whether any item with a readable timestamp is at or
// before the watermark. Items without one never end the backlog.
func reachesRead(items []upstream.Item, watermark *time.Time) bool {
	if watermark == nil {
		return false
	}
	for _, item := range items {
		if ts, ok := item.Time(); ok && !ts.After(*watermark) {
			return true
		}
	}
	return false
}

func activeLeaves[K ~string](all []K, disabled []string) []K {
	off := toKeys[K](disabled)
	active := make([]K, 0, len(all))
	for _, k := range all {
		if !contains(off, k) {
			active = append(active, k)
		}
	}
	return active
}

func toKeys[K ~string](values []string) []K {
	keys := make([]K, len(values))
	for i, v := range values {
		keys[i] = K(v)
	}
	return keys
}

func contains[K comparable](list []K, value K) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
