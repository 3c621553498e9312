package sensor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MvRens/ha-enever/internal/coordinator"
	"github.com/MvRens/ha-enever/internal/enever"
)

func testLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func gasState(loc *time.Location, price string) *coordinator.State {
	return &coordinator.State{
		Today: enever.FeedBatch{{
			Time:   time.Date(2024, 1, 15, 6, 0, 0, 0, loc),
			Prices: map[string]decimal.Decimal{"ZP": decimal.RequireFromString(price)},
		}},
	}
}

func TestGasSensorValidityWindow(t *testing.T) {
	loc := testLocation(t)
	state := gasState(loc, "1.05")
	s := NewGasSensor("ZP")

	cases := []struct {
		now       time.Time
		available bool
	}{
		{time.Date(2024, 1, 15, 3, 59, 0, 0, loc), false}, // before start-2h
		{time.Date(2024, 1, 15, 4, 0, 0, 0, loc), true},   // window opens
		{time.Date(2024, 1, 15, 12, 0, 0, 0, loc), true},
		{time.Date(2024, 1, 16, 5, 59, 0, 0, loc), true},  // just inside start+24h
		{time.Date(2024, 1, 16, 6, 0, 0, 0, loc), false},  // window closes
		{time.Date(2024, 1, 16, 7, 0, 0, 0, loc), false},  // an hour past the window
	}
	for _, c := range cases {
		got := s.Value(c.now, state)
		if (got != nil) != c.available {
			t.Errorf("Value(%v) available = %v, want %v", c.now, got != nil, c.available)
		}
	}

	if v := s.Value(time.Date(2024, 1, 15, 12, 0, 0, 0, loc), state); v == nil || !v.Equal(decimal.RequireFromString("1.05")) {
		t.Errorf("price = %v, want 1.05", v)
	}
}

func TestGasSensorNegativePriceKeepsPrevious(t *testing.T) {
	loc := testLocation(t)
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, loc)
	s := NewGasSensor("ZP")

	if v := s.Value(now, gasState(loc, "1.05")); v == nil || !v.Equal(decimal.RequireFromString("1.05")) {
		t.Fatalf("initial price = %v, want 1.05", v)
	}

	// Negative prices are upstream glitches; the previous value holds.
	if v := s.Value(now, gasState(loc, "-0.50")); v == nil || !v.Equal(decimal.RequireFromString("1.05")) {
		t.Errorf("price after negative = %v, want previous 1.05", v)
	}

	if v := s.Value(now, gasState(loc, "1.10")); v == nil || !v.Equal(decimal.RequireFromString("1.10")) {
		t.Errorf("recovered price = %v, want 1.10", v)
	}
}

func TestGasSensorNegativeWithoutPreviousIsUnavailable(t *testing.T) {
	loc := testLocation(t)
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, loc)
	s := NewGasSensor("ZP")

	if v := s.Value(now, gasState(loc, "-0.50")); v != nil {
		t.Errorf("expected nil without a previous value, got %v", v)
	}
}

func TestGasSensorMissingProvider(t *testing.T) {
	loc := testLocation(t)
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, loc)
	s := NewGasSensor("EN")

	if v := s.Value(now, gasState(loc, "1.05")); v != nil {
		t.Errorf("expected nil for a provider without a price, got %v", v)
	}
	if v := s.Value(now, coordinator.NewState()); v != nil {
		t.Errorf("expected nil for an empty state, got %v", v)
	}
}

func electricityState(loc *time.Location, day time.Time, prices []string) *coordinator.State {
	state := &coordinator.State{}
	for i, p := range prices {
		quote := enever.PriceQuote{
			Time:   day.Add(time.Duration(i) * time.Hour),
			Prices: map[string]decimal.Decimal{},
		}
		if p != "" {
			quote.Prices["ZP"] = decimal.RequireFromString(p)
		}
		state.Today = append(state.Today, quote)
	}
	return state
}

func TestElectricityCurrentPrice(t *testing.T) {
	loc := testLocation(t)
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, loc)
	state := electricityState(loc, day, []string{"0.20", "0.25", "0.30"})

	s := NewElectricitySensor("ZP", "60", loc)

	if v := s.Current(day.Add(90*time.Minute), state); v == nil || !v.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("price at 01:30 = %v, want 0.25", v)
	}
	if v := s.Current(day.Add(2*time.Hour), state); v == nil || !v.Equal(decimal.RequireFromString("0.30")) {
		t.Errorf("price at 02:00 = %v, want 0.30", v)
	}
	// Past the last interval there is no current price.
	if v := s.Current(day.Add(3*time.Hour), state); v != nil {
		t.Errorf("price at 03:00 = %v, want nil", v)
	}
}

func TestElectricityAverageSkipsAbsentPrices(t *testing.T) {
	loc := testLocation(t)
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, loc)
	now := day.Add(time.Hour)

	state := electricityState(loc, day, []string{"1.0", "", "3.0"})
	s := NewElectricitySensor("ZP", "60", loc)

	avg := s.TodayAverage(now, state)
	if avg == nil || !avg.Equal(decimal.RequireFromString("2")) {
		t.Errorf("average = %v, want 2", avg)
	}

	empty := electricityState(loc, day, []string{"", ""})
	if avg := s.TodayAverage(now, empty); avg != nil {
		t.Errorf("average with no prices = %v, want nil", avg)
	}
}

func TestElectricityTomorrowAsTodayFallback(t *testing.T) {
	loc := testLocation(t)
	s := NewElectricitySensor("ZP", "60", loc)

	// Shortly after midnight the today batch still holds yesterday's
	// schedule; the cached tomorrow batch covers the current date.
	yesterday := time.Date(2024, 1, 14, 0, 0, 0, 0, loc)
	today := time.Date(2024, 1, 15, 0, 0, 0, 0, loc)

	state := &coordinator.State{
		Today: enever.FeedBatch{{
			Time:   yesterday,
			Prices: map[string]decimal.Decimal{"ZP": decimal.RequireFromString("0.20")},
		}},
		Tomorrow: enever.FeedBatch{{
			Time:   today,
			Prices: map[string]decimal.Decimal{"ZP": decimal.RequireFromString("0.40")},
		}},
	}

	now := today.Add(30 * time.Minute)
	if v := s.Current(now, state); v == nil || !v.Equal(decimal.RequireFromString("0.40")) {
		t.Errorf("price after midnight = %v, want 0.40 from the tomorrow batch", v)
	}
	if avg := s.TodayAverage(now, state); avg == nil || !avg.Equal(decimal.RequireFromString("0.4")) {
		t.Errorf("average after midnight = %v, want 0.4", avg)
	}
}

func TestElectricityQuarterHourIntervals(t *testing.T) {
	loc := testLocation(t)
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, loc)

	state := &coordinator.State{
		Today: enever.FeedBatch{
			{Time: day, Prices: map[string]decimal.Decimal{"ZP": decimal.RequireFromString("0.20")}},
			{Time: day.Add(15 * time.Minute), Prices: map[string]decimal.Decimal{"ZP": decimal.RequireFromString("0.22")}},
		},
	}

	s := NewElectricitySensor("ZP", "15", loc)
	if v := s.Current(day.Add(10*time.Minute), state); v == nil || !v.Equal(decimal.RequireFromString("0.20")) {
		t.Errorf("price at 00:10 = %v, want 0.20", v)
	}
	if v := s.Current(day.Add(20*time.Minute), state); v == nil || !v.Equal(decimal.RequireFromString("0.22")) {
		t.Errorf("price at 00:20 = %v, want 0.22", v)
	}
}
