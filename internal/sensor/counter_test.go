package sensor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MvRens/ha-enever/internal/storage"
)

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func TestRequestCounterCountsAndPersists(t *testing.T) {
	st := storage.NewMemory()
	c := NewRequestCounter(st, 730, testLog())
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	c.clock = func() time.Time { return now }

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	c.CountAPIRequest("gas")
	c.CountAPIRequest("electricity.60")
	if c.Value() != 2 {
		t.Fatalf("count = %d, want 2", c.Value())
	}

	// A new counter over the same storage picks up the persisted count.
	other := NewRequestCounter(st, 730, testLog())
	other.clock = func() time.Time { return now }
	if err := other.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if other.Value() != 2 {
		t.Errorf("restored count = %d, want 2", other.Value())
	}
}

func TestRequestCounterMonthRollover(t *testing.T) {
	st := storage.NewMemory()
	c := NewRequestCounter(st, 730, testLog())
	now := time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)
	c.clock = func() time.Time { return now }

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	c.CountAPIRequest("gas")
	c.CountAPIRequest("gas")

	// Crossing into February resets the count.
	now = time.Date(2024, 2, 1, 0, 5, 0, 0, time.UTC)
	if c.Value() != 0 {
		t.Errorf("count after rollover = %d, want 0", c.Value())
	}

	c.CountAPIRequest("gas")
	if c.Value() != 1 {
		t.Errorf("count = %d, want 1", c.Value())
	}
}

func TestRequestCounterDiscardsStaleMonth(t *testing.T) {
	st := storage.NewMemory()
	ctx := context.Background()

	// Simulate a counter persisted in a previous month.
	st.SetSetting(ctx, "api_request_count", "500")
	st.SetSetting(ctx, "api_request_month", "2023-12")

	c := NewRequestCounter(st, 730, testLog())
	c.clock = func() time.Time { return time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC) }

	if err := c.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Value() != 0 {
		t.Errorf("count = %d, want 0 after month change", c.Value())
	}
}

func TestRequestCounterSyncPersistsRollover(t *testing.T) {
	st := storage.NewMemory()
	ctx := context.Background()

	c := NewRequestCounter(st, 730, testLog())
	now := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	c.clock = func() time.Time { return now }
	if err := c.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	c.CountAPIRequest("gas")

	now = time.Date(2024, 2, 1, 0, 1, 0, 0, time.UTC)
	if err := c.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	month, _ := st.GetSetting(ctx, "api_request_month")
	count, _ := st.GetSetting(ctx, "api_request_count")
	if month != "2024-02" || count != "0" {
		t.Errorf("persisted %s/%s, want 2024-02/0", month, count)
	}
}
