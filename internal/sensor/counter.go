package sensor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MvRens/ha-enever/internal/metrics"
	"github.com/MvRens/ha-enever/internal/storage"
)

const (
	settingRequestCount = "api_request_count"
	settingRequestMonth = "api_request_month"

	monthLayout = "2006-01"

	counterWriteTimeout = 5 * time.Second
)

// RequestCounter tracks how many pricing API requests were issued this
// month. The count is persisted with a month tag so it survives restarts
// and resets automatically when the month rolls over.
type RequestCounter struct {
	st    storage.Storage
	clock func() time.Time
	log   *logrus.Entry
	quota int

	mu    sync.Mutex
	count int
	month string
}

// NewRequestCounter creates a counter with the given monthly quota. The
// quota is informational; the counter never blocks requests itself.
func NewRequestCounter(st storage.Storage, quota int, log *logrus.Entry) *RequestCounter {
	return &RequestCounter{
		st:    st,
		clock: time.Now,
		log:   log,
		quota: quota,
	}
}

// Load restores the persisted count. A stored count from a previous month
// is discarded.
func (c *RequestCounter) Load(ctx context.Context) error {
	stored, err := c.st.GetSetting(ctx, settingRequestCount)
	if err != nil {
		return err
	}
	month, err := c.st.GetSetting(ctx, settingRequestMonth)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.month = c.clock().Format(monthLayout)
	c.count = 0
	if month == c.month && stored != "" {
		if n, err := strconv.Atoi(stored); err == nil {
			c.count = n
		}
	}

	metrics.MonthlyRequestCount.Set(float64(c.count))
	metrics.MonthlyRequestQuota.Set(float64(c.quota))
	return nil
}

// CountAPIRequest increments the counter for one outbound request.
func (c *RequestCounter) CountAPIRequest(feed string) {
	metrics.APIRequestsTotal.WithLabelValues(feed).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollover()
	c.count++
	metrics.MonthlyRequestCount.Set(float64(c.count))

	if c.quota > 0 && c.count > c.quota {
		c.log.WithFields(logrus.Fields{
			"count": c.count,
			"quota": c.quota,
		}).Warn("monthly request quota exceeded")
	}

	c.persist()
}

// Value returns the current month's request count.
func (c *RequestCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	return c.count
}

// Quota returns the configured monthly allowance.
func (c *RequestCounter) Quota() int { return c.quota }

// Sync re-checks the month tag and persists the current count. Meant to be
// run periodically so the rollover happens even on idle days.
func (c *RequestCounter) Sync(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	if err := c.st.SetSetting(ctx, settingRequestCount, strconv.Itoa(c.count)); err != nil {
		return err
	}
	return c.st.SetSetting(ctx, settingRequestMonth, c.month)
}

// rollover resets the count when the month changed. Caller holds the lock.
func (c *RequestCounter) rollover() {
	month := c.clock().Format(monthLayout)
	if month == c.month {
		return
	}
	c.log.WithFields(logrus.Fields{
		"previous_month": c.month,
		"requests":       c.count,
	}).Info("resetting monthly request counter")
	c.month = month
	c.count = 0
	metrics.MonthlyRequestCount.Set(0)
}

// persist writes the count best-effort. Caller holds the lock.
func (c *RequestCounter) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), counterWriteTimeout)
	defer cancel()
	if err := c.st.SetSetting(ctx, settingRequestCount, strconv.Itoa(c.count)); err != nil {
		c.log.WithError(err).Warn("failed to persist request count")
		return
	}
	if err := c.st.SetSetting(ctx, settingRequestMonth, c.month); err != nil {
		c.log.WithError(err).Warn("failed to persist request count month")
	}
}
