package coordinator

import (
	"context"
	"time"

	"github.com/MvRens/ha-enever/internal/enever"
)

// tomorrowAvailableHour is the local hour from which the electricity prices
// for the next day are expected to be published (usually 15:00, at most
// 16:00).
const tomorrowAvailableHour = 15

// Feed describes one feed-pair's fetch and freshness behavior. The shared
// tick algorithm in Coordinator covers everything else.
type Feed interface {
	// StorageKey returns the persistence key postfix for this feed-pair.
	StorageKey() string

	// RequestInterval is the minimum time between requests for one sub-feed.
	// The lower the faster prices update after a failure, but the more of
	// the monthly quota is used up.
	RequestInterval() time.Duration

	// FetchToday fetches the current day's batch.
	FetchToday(ctx context.Context) (enever.FeedBatch, error)

	// FetchTomorrow fetches the next day's batch, or (nil, nil) when the
	// feed has no forward data.
	FetchTomorrow(ctx context.Context) (enever.FeedBatch, error)

	// ShouldUpdateToday reports whether the cached today batch is absent or
	// no longer valid at the given time.
	ShouldUpdateToday(now time.Time, state *State) bool

	// ShouldUpdateTomorrow reports the same for the tomorrow batch.
	ShouldUpdateTomorrow(now time.Time, state *State) bool
}

// GasFeed updates once per day. Gas prices are effective from 06:00 and
// remain valid for 24 hours; there is no forward feed.
type GasFeed struct {
	api enever.API
}

func NewGasFeed(api enever.API) *GasFeed {
	return &GasFeed{api: api}
}

func (f *GasFeed) StorageKey() string { return "gas" }

// Gas cannot fall back on yesterday's tomorrow prices, so retry fairly
// quickly when an update fails.
func (f *GasFeed) RequestInterval() time.Duration { return 15 * time.Minute }

func (f *GasFeed) FetchToday(ctx context.Context) (enever.FeedBatch, error) {
	return f.api.GasToday(ctx)
}

func (f *GasFeed) FetchTomorrow(ctx context.Context) (enever.FeedBatch, error) {
	return nil, nil
}

func (f *GasFeed) ShouldUpdateToday(now time.Time, state *State) bool {
	if state.Today.Empty() {
		return true
	}
	// Update as soon as the prices expire; new ones should be available
	// right away or within the hour.
	validTo := state.Today.Start().Add(24 * time.Hour)
	return !now.Before(validTo)
}

func (f *GasFeed) ShouldUpdateTomorrow(now time.Time, state *State) bool {
	return false
}

// ElectricityFeed updates today's batch at the date change and fetches
// tomorrow's batch once it is published in the afternoon. Since yesterday's
// tomorrow batch covers the gap after midnight, the throttle can be longer
// than for gas.
type ElectricityFeed struct {
	api        enever.API
	resolution string
	location   *time.Location
}

// NewElectricityFeed creates the electricity feed-pair. Resolution is the
// configured interval length in minutes ("60" or "15"); it scopes the
// storage key so that switching resolution never reuses incompatible cached
// batches.
func NewElectricityFeed(api enever.API, resolution string, location *time.Location) *ElectricityFeed {
	if resolution == "" {
		resolution = "60"
	}
	if location == nil {
		location = time.Local
	}
	return &ElectricityFeed{api: api, resolution: resolution, location: location}
}

func (f *ElectricityFeed) StorageKey() string { return "electricity." + f.resolution }

func (f *ElectricityFeed) RequestInterval() time.Duration { return time.Hour }

func (f *ElectricityFeed) FetchToday(ctx context.Context) (enever.FeedBatch, error) {
	return f.api.ElectricityToday(ctx)
}

func (f *ElectricityFeed) FetchTomorrow(ctx context.Context) (enever.FeedBatch, error) {
	return f.api.ElectricityTomorrow(ctx)
}

func (f *ElectricityFeed) ShouldUpdateToday(now time.Time, state *State) bool {
	if state.Today.Empty() {
		return true
	}
	// New prices are available right at midnight.
	y1, m1, d1 := now.In(f.location).Date()
	y2, m2, d2 := state.Today.Start().In(f.location).Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

func (f *ElectricityFeed) ShouldUpdateTomorrow(now time.Time, state *State) bool {
	local := now.In(f.location)
	if state.Tomorrow.Empty() {
		return local.Hour() >= tomorrowAvailableHour
	}
	// Once the cached batch's own date reaches the publication hour it no
	// longer counts as "tomorrow" and a fresh batch is due.
	y, m, d := state.Tomorrow.Start().In(f.location).Date()
	validTo := time.Date(y, m, d, tomorrowAvailableHour, 0, 0, 0, f.location)
	return !local.Before(validTo)
}
