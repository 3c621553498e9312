package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MvRens/ha-enever/internal/enever"
)

const (
	// maxDailyAttempts caps the number of fetch attempts per sub-feed per
	// civil day, so a broken upstream cannot burn through the monthly
	// request allowance.
	maxDailyAttempts = 2

	// emptyStateInterval is the tick interval while no price data is
	// cached yet, steadyInterval once at least one batch is held.
	emptyStateInterval = 5 * time.Second
	steadyInterval     = time.Minute
)

// ErrClosed is returned by Tick after Close was called.
var ErrClosed = errors.New("coordinator: closed")

// Clock abstracts wall-clock time so freshness rules can be tested
// deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns a Clock backed by time.Now.
func RealClock() Clock { return realClock{} }

// RequestObserver is notified right before every outbound API request.
type RequestObserver interface {
	CountAPIRequest(feed string)
}

// TickReport describes what a single Tick did.
type TickReport struct {
	// Requests is the number of API requests issued during the tick.
	Requests int

	// TodayErr and TomorrowErr hold the fetch errors for the respective
	// sub-feed, nil when no request was made or the request succeeded.
	TodayErr    error
	TomorrowErr error
}

// Failed reports whether any sub-feed fetch failed during the tick.
func (r TickReport) Failed() bool {
	return r.TodayErr != nil || r.TomorrowErr != nil
}

// Coordinator drives one feed-pair: it evaluates freshness on every tick,
// fetches expired batches within the throttle and daily-attempt limits, and
// persists the resulting state. State updates are copy-on-write, so a
// *State handed out by Current is never mutated afterwards.
type Coordinator struct {
	feed     Feed
	store    *Store
	clock    Clock
	log      *logrus.Entry
	location *time.Location

	// tickMu serializes whole ticks so an on-demand refresh cannot
	// interleave with the worker loop.
	tickMu sync.Mutex

	mu        sync.Mutex
	observers []RequestObserver
	data      *State
	interval  time.Duration
	loaded    bool
	closed    bool
}

// New creates a Coordinator for the given feed. The first Tick restores the
// persisted state without touching the network.
func New(feed Feed, store *Store, clock Clock, location *time.Location, log *logrus.Entry) *Coordinator {
	if clock == nil {
		clock = RealClock()
	}
	if location == nil {
		location = time.Local
	}
	return &Coordinator{
		feed:     feed,
		store:    store,
		clock:    clock,
		log:      log.WithField("feed", feed.StorageKey()),
		location: location,
		data:     NewState(),
		interval: emptyStateInterval,
	}
}

// Feed returns the feed-pair this coordinator drives.
func (c *Coordinator) Feed() Feed { return c.feed }

// Current returns the latest state. The returned value must be treated as
// read-only.
func (c *Coordinator) Current() *State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Interval returns the delay until the next tick should run.
func (c *Coordinator) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Attach registers an observer for outbound API requests.
func (c *Coordinator) Attach(obs RequestObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, obs)
}

// Detach removes a previously attached observer. Detaching an observer that
// was never attached is a no-op.
func (c *Coordinator) Detach(obs RequestObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, o := range c.observers {
		if o == obs {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			return
		}
	}
}

// Close stops the coordinator. Subsequent Ticks return ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Tick runs one update cycle. The very first tick only restores persisted
// state; later ticks evaluate freshness and fetch what expired. Fetch
// failures are reported but never clear previously cached data.
func (c *Coordinator) Tick(ctx context.Context) (TickReport, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return TickReport{}, ErrClosed
	}
	loaded := c.loaded
	prev := c.data
	observers := make([]RequestObserver, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	if !loaded {
		state, err := c.store.Load(ctx)
		if err != nil {
			return TickReport{}, err
		}
		c.log.WithFields(logrus.Fields{
			"today":    len(state.Today),
			"tomorrow": len(state.Tomorrow),
		}).Info("restored persisted prices")
		c.publish(state)
		return TickReport{}, nil
	}

	now := c.clock.Now().In(c.location)
	day := now.Format(attemptDayLayout)

	next := prev.Clone()
	changed := false

	// Attempt counters reset on the first tick of each civil day.
	if next.TodayAttemptDay != day {
		if next.TodayAttempts != 0 || next.TodayAttemptDay != "" {
			changed = true
		}
		next.TodayAttempts = 0
		next.TodayAttemptDay = day
	}
	if next.TomorrowAttemptDay != day {
		if next.TomorrowAttempts != 0 || next.TomorrowAttemptDay != "" {
			changed = true
		}
		next.TomorrowAttempts = 0
		next.TomorrowAttemptDay = day
	}

	var report TickReport

	if c.feed.ShouldUpdateToday(now, next) &&
		c.throttleOpen(now, next.TodayLastRequest) &&
		next.TodayAttempts < maxDailyAttempts {
		next.TodayAttempts++
		changed = true
		report.Requests++
		c.notify(observers)

		batch, err := c.feed.FetchToday(ctx)
		if err != nil {
			report.TodayErr = err
			c.logFailure("today", err)
		} else {
			next.Today = batch
			ts := now
			next.TodayLastRequest = &ts
			c.log.WithField("quotes", len(batch)).Info("updated today prices")
		}
	}

	if c.feed.ShouldUpdateTomorrow(now, next) &&
		c.throttleOpen(now, next.TomorrowLastRequest) &&
		next.TomorrowAttempts < maxDailyAttempts {
		next.TomorrowAttempts++
		changed = true
		report.Requests++
		c.notify(observers)

		batch, err := c.feed.FetchTomorrow(ctx)
		if err != nil {
			report.TomorrowErr = err
			c.logFailure("tomorrow", err)
		} else {
			next.Tomorrow = batch
			ts := now
			next.TomorrowLastRequest = &ts
			c.log.WithField("quotes", len(batch)).Info("updated tomorrow prices")
		}
	}

	if changed {
		if err := c.store.Save(ctx, next); err != nil {
			return report, err
		}
	}

	c.publish(next)
	return report, nil
}

// throttleOpen reports whether enough time passed since the last successful
// request for another attempt.
func (c *Coordinator) throttleOpen(now time.Time, lastRequest *time.Time) bool {
	if lastRequest == nil {
		return true
	}
	return !now.Before(lastRequest.Add(c.feed.RequestInterval()))
}

func (c *Coordinator) notify(observers []RequestObserver) {
	for _, obs := range observers {
		obs.CountAPIRequest(c.feed.StorageKey())
	}
}

func (c *Coordinator) logFailure(subFeed string, err error) {
	c.log.WithFields(logrus.Fields{
		"sub_feed": subFeed,
		"kind":     enever.Classify(err),
	}).WithError(err).Warn("price update failed")
}

func (c *Coordinator) publish(state *State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = state
	c.loaded = true
	if state.Today.Empty() && state.Tomorrow.Empty() {
		c.interval = emptyStateInterval
	} else {
		c.interval = steadyInterval
	}
}
