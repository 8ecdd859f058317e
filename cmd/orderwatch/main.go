// Command orderwatch runs one viewer's order engine against the order service
// and logs what it sees.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kendall-kelly/marketplace-orders/config"
	"github.com/kendall-kelly/marketplace-orders/lastviewed"
	"github.com/kendall-kelly/marketplace-orders/negotiation"
	"github.com/kendall-kelly/marketplace-orders/optimistic"
	"github.com/kendall-kelly/marketplace-orders/session"
	"github.com/kendall-kelly/marketplace-orders/syncer"
	"github.com/kendall-kelly/marketplace-orders/transport"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("err", err))
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	markers, err := lastviewed.OpenSQLite(cfg.MarkerDB)
	if err != nil {
		logger.Error("failed to open marker store", slog.Any("err", err))
		os.Exit(1)
	}

	var opts []transport.Option
	if cfg.Token != "" {
		opts = append(opts, transport.WithToken(cfg.Token))
	}
	api := transport.NewHTTPClient(cfg.APIURL, opts...)

	hub := syncer.NewLocalHub(logger)
	syncCfg := syncer.Config{
		Scope:        transport.Scope(cfg.Scope),
		PollInterval: cfg.PollInterval,
		ListTimeout:  cfg.ListTimeout,
		FetchTimeout: cfg.FetchTimeout,
		Channel:      hub.Join(),
		Logger:       logger,
	}
	if cfg.FeedEnabled {
		feedURL, err := syncer.FeedURL(cfg.APIURL)
		if err != nil {
			logger.Error("invalid feed url", slog.Any("err", err))
			os.Exit(1)
		}
		syncCfg.FeedURL = feedURL
		if cfg.Token != "" {
			syncCfg.FeedHeader = http.Header{"Authorization": []string{"Bearer " + cfg.Token}}
		}
	}

	sess := session.New(session.Options{
		ViewerID: cfg.ViewerID,
		API:      api,
		Markers:  markers,
		Notifier: optimistic.LogNotifier{Logger: logger},
		Sync:     syncCfg,
		Logger:   logger,
	})
	watch(sess.Bus(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("watching orders",
		slog.String("api", cfg.APIURL),
		slog.String("viewer_id", cfg.ViewerID),
		slog.Bool("feed", cfg.FeedEnabled))

	if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("order engine stopped", slog.Any("err", err))
		os.Exit(1)
	}
	logger.Info("orderwatch exited")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func watch(bus *syncer.Bus, logger *slog.Logger) {
	bus.OnReloaded(func(_ context.Context, orders []negotiation.Order) {
		unread := 0
		for _, o := range orders {
			if o.HasUnreadCounterOffer {
				unread++
			}
		}
		logger.Info("orders reloaded", slog.Int("count", len(orders)), slog.Int("unread", unread))
	})
	bus.OnMerged(func(_ context.Context, o negotiation.Order) {
		logger.Info("order updated",
			slog.String("order_id", o.ID),
			slog.String("order_number", o.OrderNumber),
			slog.String("status", string(o.Status)),
			slog.Bool("unread_counter", o.HasUnreadCounterOffer))
	})
	bus.OnSignal(func(_ context.Context, s syncer.Signal) {
		logger.Debug("order signal",
			slog.String("order_id", s.OrderID),
			slog.String("action", string(s.Action)))
	})
}
