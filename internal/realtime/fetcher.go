package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/cenkalti/backoff/v4"

	"subwaywatch/internal/transit"
)

// Endpoint is one GTFS-RT feed URL. A feed usually carries several routes.
type Endpoint struct {
	Name string
	URL  string
}

// Metrics receives fetch observations. A nil Metrics disables reporting.
type Metrics interface {
	ObserveFetch(feed string, d time.Duration, err error)
	SetRouteTrips(route string, n int)
	SetLastUpdate(t time.Time)
}

// UpdateFunc is called after the store changes.
type UpdateFunc func(ctx context.Context, schedule transit.Schedule, at time.Time)

// Options configures a Fetcher.
type Options struct {
	Endpoints  []Endpoint
	RouteFeeds map[string]string // route id -> endpoint name
	APIKey     string
	Location   *time.Location // display timezone for arrival strings

	PollInterval time.Duration
	Timeout      time.Duration
	MaxElapsed   time.Duration // retry budget for one endpoint fetch
	Cooldown     time.Duration // on-demand refresh is a no-op within this window

	Metrics Metrics
}

// ErrUnknownRoute is returned by RefreshRoute for routes without a feed.
var ErrUnknownRoute = errors.New("unknown route")

// Fetcher polls GTFS-RT trip update feeds and updates the store.
type Fetcher struct {
	opts     Options
	store    *Store
	client   *http.Client
	cooldown gcache.Cache
	logger   *slog.Logger

	mu        sync.RWMutex
	stops     transit.StopLookup
	listeners []UpdateFunc

	reportMu sync.Mutex
	reported map[string]bool // routes with a trips gauge
}

// NewFetcher creates a GTFS-RT feed fetcher.
func NewFetcher(opts Options, store *Store, logger *slog.Logger) *Fetcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 60 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 30 * time.Second
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 60 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Fetcher{
		opts:     opts,
		store:    store,
		client:   &http.Client{Timeout: opts.Timeout},
		cooldown: gcache.New(len(opts.Endpoints) + 1).LRU().Expiration(opts.Cooldown).Build(),
		logger:   logger,
		stops:    transit.StopTable{},
		reported: make(map[string]bool),
	}
}

// SetStops replaces the stop name lookup used when normalizing feeds.
func (f *Fetcher) SetStops(stops transit.StopLookup) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = stops
}

// OnUpdate registers fn to run after each poll cycle or refresh.
func (f *Fetcher) OnUpdate(fn UpdateFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

// Interval returns the poll interval.
func (f *Fetcher) Interval() time.Duration {
	return f.opts.PollInterval
}

// Start polls every endpoint immediately and then every poll interval.
// Blocks until the context is cancelled.
func (f *Fetcher) Start(ctx context.Context) {
	f.Poll(ctx)

	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.Poll(ctx)
		case <-ctx.Done():
			f.logger.Info("GTFS-RT fetcher stopped")
			return
		}
	}
}

type result struct {
	schedule transit.Schedule
	status   FeedStatus
	err      error
}

// Poll fetches all endpoints concurrently and merges them in configured
// order. Failed endpoints are skipped. If every endpoint fails the previous
// schedule is kept.
func (f *Fetcher) Poll(ctx context.Context) transit.Schedule {
	results := make([]result, len(f.opts.Endpoints))

	var wg sync.WaitGroup
	for i, ep := range f.opts.Endpoints {
		wg.Add(1)
		go func(i int, ep Endpoint) {
			defer wg.Done()
			sched, status, err := f.fetchEndpoint(ctx, ep)
			results[i] = result{schedule: sched, status: status, err: err}
		}(i, ep)
	}
	wg.Wait()

	now := time.Now()
	merged := transit.Schedule{}
	statuses := make([]FeedStatus, 0, len(results))
	ok := 0
	for _, r := range results {
		statuses = append(statuses, r.status)
		if r.err != nil {
			continue
		}
		ok++
		merged = merged.Merge(r.schedule)
	}

	if ok == 0 && len(results) > 0 {
		for _, st := range statuses {
			f.store.SetFeedStatus(st)
		}
		f.logger.Error("all GTFS-RT feeds failed, keeping previous schedule", "feeds", len(results))
		sched, _ := f.store.Snapshot()
		return sched
	}

	f.store.Replace(merged, now, statuses)
	f.report(merged, now)
	f.logger.Info("GTFS-RT schedule updated",
		"feeds", ok,
		"failed", len(results)-ok,
		"routes", len(merged),
		"trips", merged.TripCount(),
	)
	f.notify(ctx, merged, now)
	return merged
}

// RefreshRoute refetches the feed serving routeID unless an earlier refresh
// of that feed succeeded within the cooldown window. Scheduled polls do not
// start the cooldown. It reports whether a fetch happened.
func (f *Fetcher) RefreshRoute(ctx context.Context, routeID string) (bool, error) {
	ep, ok := f.endpointForRoute(routeID)
	if !ok {
		return false, fmt.Errorf("refresh %s: %w", routeID, ErrUnknownRoute)
	}
	if _, err := f.cooldown.Get(ep.Name); err == nil {
		f.logger.Debug("refresh within cooldown", "route", routeID, "feed", ep.Name)
		return false, nil
	}

	sched, status, err := f.fetchEndpoint(ctx, ep)
	if err != nil {
		f.store.SetFeedStatus(status)
		return false, err
	}

	f.cooldown.Set(ep.Name, struct{}{})
	f.store.Merge(sched, status.FetchedAt, status, f.routesServedBy(ep.Name)...)
	merged, at := f.store.Snapshot()
	f.report(merged, at)
	f.logger.Info("route refreshed", "route", routeID, "feed", ep.Name, "trips", status.Trips)
	f.notify(ctx, merged, at)
	return true, nil
}

func (f *Fetcher) endpointForRoute(routeID string) (Endpoint, bool) {
	name, ok := f.opts.RouteFeeds[routeID]
	if !ok {
		return Endpoint{}, false
	}
	for _, ep := range f.opts.Endpoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return Endpoint{}, false
}

func (f *Fetcher) routesServedBy(feed string) []string {
	var routes []string
	for route, name := range f.opts.RouteFeeds {
		if name == feed {
			routes = append(routes, route)
		}
	}
	sort.Strings(routes)
	return routes
}

// fetchEndpoint fetches and normalizes one endpoint with retries.
func (f *Fetcher) fetchEndpoint(ctx context.Context, ep Endpoint) (transit.Schedule, FeedStatus, error) {
	start := time.Now()
	status := FeedStatus{Name: ep.Name, URL: ep.URL, FetchedAt: start}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          2,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      f.opts.MaxElapsed,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	notify := func(err error, wait time.Duration) {
		f.logger.Warn("GTFS-RT fetch failed, retrying", "feed", ep.Name, "error", err, "wait", wait)
	}
	sched, err := backoff.RetryNotifyWithData(func() (transit.Schedule, error) {
		return f.fetchOnce(ctx, ep)
	}, backoff.WithContext(b, ctx), notify)

	if f.opts.Metrics != nil {
		f.opts.Metrics.ObserveFetch(ep.Name, time.Since(start), err)
	}
	if err != nil {
		status.LastError = err.Error()
		f.logger.Warn("GTFS-RT feed skipped", "feed", ep.Name, "error", err)
		return nil, status, err
	}

	status.OK = true
	status.Trips = sched.TripCount()
	for route := range sched {
		status.Routes = append(status.Routes, route)
	}
	sort.Strings(status.Routes)
	return sched, status, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, ep Endpoint) (transit.Schedule, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	if f.opts.APIKey != "" {
		req.Header.Set("x-api-key", f.opts.APIKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transit.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: %s returned %d", transit.ErrFeedUnavailable, ep.Name, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", transit.ErrFeedUnavailable, err)
	}

	f.mu.RLock()
	stops := f.stops
	f.mu.RUnlock()

	sched, err := transit.ParseFeed(body, stops, f.opts.Location)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return sched, nil
}

// report sets the trips gauge of every route in sched. Configured or
// previously reported routes missing from sched are reset to zero.
func (f *Fetcher) report(sched transit.Schedule, at time.Time) {
	if f.opts.Metrics == nil {
		return
	}
	f.reportMu.Lock()
	defer f.reportMu.Unlock()
	for route := range f.opts.RouteFeeds {
		f.reported[route] = true
	}
	for route, fd := range sched {
		f.reported[route] = true
		f.opts.Metrics.SetRouteTrips(route, len(fd.Trips))
	}
	for route := range f.reported {
		if _, ok := sched[route]; !ok {
			f.opts.Metrics.SetRouteTrips(route, 0)
		}
	}
	f.opts.Metrics.SetLastUpdate(at)
}

func (f *Fetcher) notify(ctx context.Context, sched transit.Schedule, at time.Time) {
	f.mu.RLock()
	listeners := append([]UpdateFunc(nil), f.listeners...)
	f.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, sched, at)
	}
}
