package coordinator

import (
	"testing"
	"time"

	"github.com/MvRens/ha-enever/internal/enever"
)

func TestGasTodayStalesAfter24Hours(t *testing.T) {
	loc := testLocation(t)
	feed := NewGasFeed(&fakeAPI{})

	state := &State{
		Today: enever.FeedBatch{quoteAt(time.Date(2024, 1, 1, 6, 0, 0, 0, loc), "1.05")},
	}

	cases := []struct {
		now  time.Time
		want bool
	}{
		{time.Date(2024, 1, 1, 7, 0, 0, 0, loc), false},
		{time.Date(2024, 1, 2, 5, 59, 0, 0, loc), false},
		{time.Date(2024, 1, 2, 6, 0, 0, 0, loc), true},
		{time.Date(2024, 1, 2, 7, 0, 0, 0, loc), true},
	}
	for _, c := range cases {
		if got := feed.ShouldUpdateToday(c.now, state); got != c.want {
			t.Errorf("ShouldUpdateToday(%v) = %v, want %v", c.now, got, c.want)
		}
	}

	if !feed.ShouldUpdateToday(time.Date(2024, 1, 1, 7, 0, 0, 0, loc), NewState()) {
		t.Error("empty state should always update")
	}
	if feed.ShouldUpdateTomorrow(time.Date(2024, 1, 1, 16, 0, 0, 0, loc), state) {
		t.Error("gas has no tomorrow sub-feed")
	}
}

func TestElectricityTodayStalesAtMidnight(t *testing.T) {
	loc := testLocation(t)
	feed := NewElectricityFeed(&fakeAPI{}, "60", loc)

	state := &State{
		Today: enever.FeedBatch{quoteAt(time.Date(2024, 1, 1, 0, 0, 0, 0, loc), "0.25")},
	}

	if feed.ShouldUpdateToday(time.Date(2024, 1, 1, 23, 59, 0, 0, loc), state) {
		t.Error("schedule for today should not refetch")
	}
	if !feed.ShouldUpdateToday(time.Date(2024, 1, 2, 0, 1, 0, 0, loc), state) {
		t.Error("schedule from yesterday should refetch after midnight")
	}
}

func TestElectricityTomorrowAvailableFromFifteen(t *testing.T) {
	loc := testLocation(t)
	feed := NewElectricityFeed(&fakeAPI{}, "60", loc)

	empty := NewState()
	if feed.ShouldUpdateTomorrow(time.Date(2024, 1, 1, 14, 59, 0, 0, loc), empty) {
		t.Error("tomorrow prices are not published before 15:00")
	}
	if !feed.ShouldUpdateTomorrow(time.Date(2024, 1, 1, 15, 0, 0, 0, loc), empty) {
		t.Error("tomorrow prices should be fetched from 15:00")
	}

	// A cached tomorrow batch for Jan 2 stays fresh until Jan 2 15:00,
	// when the Jan 3 schedule becomes available.
	state := &State{
		Tomorrow: enever.FeedBatch{quoteAt(time.Date(2024, 1, 2, 0, 0, 0, 0, loc), "0.30")},
	}
	if feed.ShouldUpdateTomorrow(time.Date(2024, 1, 1, 16, 0, 0, 0, loc), state) {
		t.Error("cached tomorrow batch refetched on the same day")
	}
	if feed.ShouldUpdateTomorrow(time.Date(2024, 1, 2, 14, 0, 0, 0, loc), state) {
		t.Error("cached batch refetched before the next publication time")
	}
	if !feed.ShouldUpdateTomorrow(time.Date(2024, 1, 2, 15, 0, 0, 0, loc), state) {
		t.Error("stale tomorrow batch not refetched after publication time")
	}
}

func TestFeedStorageKeys(t *testing.T) {
	if key := NewGasFeed(&fakeAPI{}).StorageKey(); key != "gas" {
		t.Errorf("gas key = %q", key)
	}
	loc := testLocation(t)
	if key := NewElectricityFeed(&fakeAPI{}, "60", loc).StorageKey(); key != "electricity.60" {
		t.Errorf("hourly key = %q", key)
	}
	if key := NewElectricityFeed(&fakeAPI{}, "15", loc).StorageKey(); key != "electricity.15" {
		t.Errorf("quarter-hour key = %q", key)
	}
}
