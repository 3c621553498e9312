package sensor

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MvRens/ha-enever/internal/coordinator"
	"github.com/MvRens/ha-enever/internal/enever"
)

const (
	// Gas prices publish around 06:00 but apply from midnight; the sensor
	// accepts a batch from two hours before its start until 24 hours after,
	// bridging the gap until the next day's publication.
	gasValidBefore = 2 * time.Hour
	gasValidAfter  = 24 * time.Hour
)

// PricePoint is a single timestamped price for one provider.
type PricePoint struct {
	Time  time.Time
	Price decimal.Decimal
}

// GasSensor exposes the current gas price for one provider. Negative prices
// are treated as upstream glitches and the previous value is kept.
type GasSensor struct {
	provider string

	mu   sync.Mutex
	last *decimal.Decimal
}

// NewGasSensor creates a gas price sensor for the given provider code.
func NewGasSensor(provider string) *GasSensor {
	return &GasSensor{provider: provider}
}

// Provider returns the provider code this sensor reads.
func (s *GasSensor) Provider() string { return s.provider }

// Value returns the gas price valid at now, or nil when no valid price is
// available.
func (s *GasSensor) Value(now time.Time, state *coordinator.State) *decimal.Decimal {
	if state == nil || state.Today.Empty() {
		return nil
	}

	start := state.Today.Start()
	if now.Before(start.Add(-gasValidBefore)) || !now.Before(start.Add(gasValidAfter)) {
		return nil
	}

	price, ok := state.Today[0].Price(s.provider)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if price.IsNegative() {
		return s.last
	}
	s.last = &price
	return &price
}

// ElectricitySensor exposes current and aggregate electricity prices for one
// provider at one feed resolution.
type ElectricitySensor struct {
	provider   string
	resolution time.Duration
	location   *time.Location
}

// NewElectricitySensor creates an electricity price sensor. resolution is
// the feed resolution in minutes ("60" or "15").
func NewElectricitySensor(provider, resolution string, location *time.Location) *ElectricitySensor {
	if location == nil {
		location = time.Local
	}
	d := time.Hour
	if resolution == "15" {
		d = 15 * time.Minute
	}
	return &ElectricitySensor{provider: provider, resolution: d, location: location}
}

// Provider returns the provider code this sensor reads.
func (s *ElectricitySensor) Provider() string { return s.provider }

// Current returns the price of the interval containing now, or nil when no
// cached interval covers it.
func (s *ElectricitySensor) Current(now time.Time, state *coordinator.State) *decimal.Decimal {
	batch := s.todayBatch(now, state)
	for _, q := range batch {
		if !now.Before(q.Time) && now.Before(q.Time.Add(s.resolution)) {
			if price, ok := q.Price(s.provider); ok {
				return &price
			}
			return nil
		}
	}
	return nil
}

// TodayPrices returns the known prices for the current day, one point per
// interval the provider published.
func (s *ElectricitySensor) TodayPrices(now time.Time, state *coordinator.State) []PricePoint {
	return s.points(s.todayBatch(now, state))
}

// TomorrowPrices returns the known prices for the next day.
func (s *ElectricitySensor) TomorrowPrices(state *coordinator.State) []PricePoint {
	if state == nil {
		return nil
	}
	return s.points(state.Tomorrow)
}

// TodayAverage returns the mean of today's published prices, ignoring
// intervals the provider did not price. Nil when no prices are known.
func (s *ElectricitySensor) TodayAverage(now time.Time, state *coordinator.State) *decimal.Decimal {
	return s.average(s.todayBatch(now, state))
}

// TomorrowAverage returns the mean of tomorrow's published prices.
func (s *ElectricitySensor) TomorrowAverage(state *coordinator.State) *decimal.Decimal {
	if state == nil {
		return nil
	}
	return s.average(state.Tomorrow)
}

// todayBatch picks the batch that actually covers today's civil date. Right
// after midnight the "today" batch still holds yesterday's schedule until
// the next refresh; if the cached "tomorrow" batch covers the current date
// it is presented as today instead.
func (s *ElectricitySensor) todayBatch(now time.Time, state *coordinator.State) enever.FeedBatch {
	if state == nil {
		return nil
	}
	local := now.In(s.location)
	if covers(state.Today, local, s.location) {
		return state.Today
	}
	if covers(state.Tomorrow, local, s.location) {
		return state.Tomorrow
	}
	return state.Today
}

func covers(batch enever.FeedBatch, local time.Time, location *time.Location) bool {
	if batch.Empty() {
		return false
	}
	y1, m1, d1 := batch.Start().In(location).Date()
	y2, m2, d2 := local.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func (s *ElectricitySensor) points(batch enever.FeedBatch) []PricePoint {
	var out []PricePoint
	for _, q := range batch {
		if price, ok := q.Price(s.provider); ok {
			out = append(out, PricePoint{Time: q.Time, Price: price})
		}
	}
	return out
}

func (s *ElectricitySensor) average(batch enever.FeedBatch) *decimal.Decimal {
	var sum decimal.Decimal
	count := 0
	for _, q := range batch {
		if price, ok := q.Price(s.provider); ok {
			sum = sum.Add(price)
			count++
		}
	}
	if count == 0 {
		return nil
	}
	avg := sum.Div(decimal.NewFromInt(int64(count)))
	return &avg
}
