package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/MvRens/ha-enever/internal/alerting"
	"github.com/MvRens/ha-enever/internal/api"
	"github.com/MvRens/ha-enever/internal/auth"
	"github.com/MvRens/ha-enever/internal/config"
	"github.com/MvRens/ha-enever/internal/coordinator"
	"github.com/MvRens/ha-enever/internal/enever"
	"github.com/MvRens/ha-enever/internal/metrics"
	"github.com/MvRens/ha-enever/internal/notification"
	"github.com/MvRens/ha-enever/internal/sensor"
	"github.com/MvRens/ha-enever/internal/storage"
	"github.com/MvRens/ha-enever/internal/worker"
)

// app bundles everything the serve and worker commands share.
type app struct {
	cfg          config.Config
	log          *logrus.Entry
	storage      storage.Storage
	coordinators map[string]*coordinator.Coordinator
	counter      *sensor.RequestCounter
	runner       *worker.Runner
}

func buildApp(ctx context.Context, cfg config.Config, log *logrus.Entry) (*app, error) {
	if cfg.Enever.Token == "" {
		return nil, errors.New("no API token configured, set ENEVER_TOKEN")
	}

	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := storage.Open(ctx, storage.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		return nil, err
	}

	client := enever.NewClient(enever.ClientConfig{
		BaseURL:    cfg.Enever.BaseURL,
		Token:      cfg.Enever.Token,
		Resolution: cfg.Enever.Resolution,
		Location:   location,
	})

	var feeds []coordinator.Feed
	if cfg.Feeds.Gas {
		feeds = append(feeds, coordinator.NewGasFeed(client))
	}
	if cfg.Feeds.Electricity {
		feeds = append(feeds, coordinator.NewElectricityFeed(client, cfg.Enever.Resolution, location))
	}
	if len(feeds) == 0 {
		st.Close()
		return nil, errors.New("no feeds enabled")
	}

	coordinators := make(map[string]*coordinator.Coordinator, len(feeds))
	var list []*coordinator.Coordinator
	for _, feed := range feeds {
		store := coordinator.NewStore(st, feed.StorageKey(), location)
		coord := coordinator.New(feed, store, nil, location, log)
		coordinators[feed.StorageKey()] = coord
		list = append(list, coord)
	}

	var counter *sensor.RequestCounter
	if cfg.Counter.Enabled {
		counter = sensor.NewRequestCounter(st, cfg.Counter.MonthlyQuota, log)
		if err := counter.Load(ctx); err != nil {
			st.Close()
			return nil, err
		}
		for _, coord := range list {
			coord.Attach(counter)
		}
	}
	metrics.MonthlyRequestQuota.Set(float64(cfg.Counter.MonthlyQuota))

	alertCfg := alerting.NewAlertConfig(cfg.Alert.WebhookURL, cfg.Alert.WebhookType, cfg.Alert.MinFailures)
	notifier := notification.NewService(notification.Config{
		APIKey: cfg.Email.SendGridKey,
		From:   cfg.Email.From,
		To:     cfg.Email.To,
	}, log)

	runner := &worker.Runner{
		Coordinators: list,
		Storage:      st,
		Counter:      counter,
		Alerter:      alerting.NewAlerter(alertCfg, log),
		Notifier:     notifier,
		Log:          log,
	}

	return &app{
		cfg:          cfg,
		log:          log,
		storage:      st,
		coordinators: coordinators,
		counter:      counter,
		runner:       runner,
	}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the feed update worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.storage.Close()

			var authService *auth.Service
			if cfg.HTTP.AuthEnabled {
				authService, err = auth.NewService(a.storage)
				if err != nil {
					return err
				}
			}

			location, _ := cfg.Location()
			server := api.NewServer(api.Deps{
				Coordinators: a.coordinators,
				Counter:      a.counter,
				Storage:      a.storage,
				Auth:         authService,
				Location:     location,
				Log:          log,
				AuthRequired: cfg.HTTP.AuthEnabled,
			})

			httpServer := &http.Server{
				Addr:    cfg.HTTP.Addr,
				Handler: server.NewMux(),
			}

			errCh := make(chan error, 2)
			go func() {
				log.WithField("addr", cfg.HTTP.Addr).Info("http server listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			go func() {
				if err := a.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the feed update worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.storage.Close()

			if err := a.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
