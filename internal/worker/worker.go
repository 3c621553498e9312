package worker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/MvRens/ha-enever/internal/alerting"
	"github.com/MvRens/ha-enever/internal/coordinator"
	"github.com/MvRens/ha-enever/internal/enever"
	"github.com/MvRens/ha-enever/internal/metrics"
	"github.com/MvRens/ha-enever/internal/notification"
	"github.com/MvRens/ha-enever/internal/sensor"
	"github.com/MvRens/ha-enever/internal/storage"
)

// settingTickInterval overrides the coordinator tick cadence when set. The
// value is integer seconds or a standard cron expression.
const settingTickInterval = "tick_interval"

// Runner drives the feed coordinators. Each coordinator gets its own loop;
// tick outcomes are recorded in metrics and the scheduled_jobs table, and
// repeated failures raise alerts.
type Runner struct {
	Coordinators []*coordinator.Coordinator
	Storage      storage.Storage
	Counter      *sensor.RequestCounter
	Alerter      *alerting.Alerter
	Notifier     *notification.Service
	Log          *logrus.Entry
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, coord := range r.Coordinators {
		wg.Add(1)
		go func(coord *coordinator.Coordinator) {
			defer wg.Done()
			r.runFeed(ctx, coord)
		}(coord)
	}

	// The counter month tag must roll over even when no requests happen,
	// so re-check it every midnight.
	var sched *cron.Cron
	if r.Counter != nil {
		sched = cron.New()
		sched.AddFunc("@midnight", func() {
			if err := r.Counter.Sync(context.Background()); err != nil {
				r.Log.WithError(err).Warn("request counter sync failed")
			}
		})
		sched.Start()
	}

	<-ctx.Done()
	if sched != nil {
		sched.Stop()
	}
	wg.Wait()
	return ctx.Err()
}

// runFeed ticks one coordinator until ctx is cancelled. The delay between
// ticks follows the coordinator, unless a tick_interval setting overrides
// it.
func (r *Runner) runFeed(ctx context.Context, coord *coordinator.Coordinator) {
	feed := coord.Feed().StorageKey()
	log := r.Log.WithField("feed", feed)
	jobName := "update_" + feed

	consecutiveFailures := 0

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		started := time.Now()
		report, err := coord.Tick(ctx)
		if err != nil {
			log.WithError(err).Error("tick failed")
			metrics.UpdateJobMetrics(jobName, started, err)
			timer.Reset(coord.Interval())
			continue
		}

		r.recordRequests(feed, report)

		runErr := report.TodayErr
		if runErr == nil {
			runErr = report.TomorrowErr
		}

		if report.Failed() {
			consecutiveFailures++
			r.handleFailure(ctx, feed, report, consecutiveFailures)
		} else if report.Requests > 0 {
			consecutiveFailures = 0
			if r.Notifier != nil {
				r.Notifier.ClearInvalidToken()
			}
		}

		metrics.UpdateJobMetrics(jobName, started, runErr)
		if report.Requests > 0 {
			r.updateJobRow(ctx, jobName, started, runErr, log)
		}
		r.updateCacheGauges(feed, coord)

		timer.Reset(r.nextDelay(ctx, coord, log))
	}
}

func (r *Runner) recordRequests(feed string, report coordinator.TickReport) {
	if report.TodayErr != nil {
		metrics.APIRequestErrorsTotal.WithLabelValues(feed, enever.Classify(report.TodayErr)).Inc()
	}
	if report.TomorrowErr != nil {
		metrics.APIRequestErrorsTotal.WithLabelValues(feed, enever.Classify(report.TomorrowErr)).Inc()
	}
}

func (r *Runner) handleFailure(ctx context.Context, feed string, report coordinator.TickReport, failures int) {
	for subFeed, err := range map[string]error{"today": report.TodayErr, "tomorrow": report.TomorrowErr} {
		if err == nil {
			continue
		}
		kind := enever.Classify(err)

		if kind == "invalid_token" && r.Notifier != nil {
			r.Notifier.NotifyInvalidToken(feed)
		}

		if r.Alerter != nil {
			alert := alerting.FeedAlert{
				Feed:                feed,
				SubFeed:             subFeed,
				Kind:                kind,
				Error:               err.Error(),
				ConsecutiveFailures: failures,
				Timestamp:           time.Now(),
			}
			if alertErr := r.Alerter.SendFeedAlert(ctx, alert); alertErr != nil {
				r.Log.WithError(alertErr).Warn("failed to send feed alert")
			}
		}
	}
}

func (r *Runner) updateJobRow(ctx context.Context, jobName string, started time.Time, runErr error, log *logrus.Entry) {
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	dur := time.Since(started)
	if err := r.Storage.UpdateScheduledJob(ctx, jobName, started, dur, runErr == nil, errMsg); err != nil {
		log.WithError(err).Warn("update scheduled job row failed")
	}
}

func (r *Runner) updateCacheGauges(feed string, coord *coordinator.Coordinator) {
	state := coord.Current()
	metrics.PriceQuotesCached.WithLabelValues(feed, "today").Set(float64(len(state.Today)))
	metrics.PriceQuotesCached.WithLabelValues(feed, "tomorrow").Set(float64(len(state.Tomorrow)))
}

// nextDelay returns the coordinator's own interval unless a tick_interval
// setting overrides it with integer seconds or a cron expression.
func (r *Runner) nextDelay(ctx context.Context, coord *coordinator.Coordinator, log *logrus.Entry) time.Duration {
	delay := coord.Interval()

	setting, err := r.Storage.GetSetting(ctx, settingTickInterval)
	if err != nil || setting == "" {
		return delay
	}

	if v, err := strconv.Atoi(setting); err == nil && v > 0 {
		return time.Duration(v) * time.Second
	}
	if sched, err := cron.ParseStandard(setting); err == nil {
		now := time.Now()
		return sched.Next(now).Sub(now)
	}

	log.WithField("setting", setting).Warn("invalid tick interval setting, using default")
	return delay
}
