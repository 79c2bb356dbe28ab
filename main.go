package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-engine/internal/auctionclock"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/broadcast"
	"auction-engine/internal/config"
	model "auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/internal/sequencer"
	"auction-engine/internal/server"
	"auction-engine/internal/telemetry"
	"auction-engine/utils"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
)

const serviceName = "auction-engine"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "auction engine failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("set log level: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sink, closeSink, err := openSink(cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	dispatcher := notify.NewDispatcher(sink, 0, 0)
	defer dispatcher.Close()

	hub := broadcast.NewHub()
	engine := bidding.NewBiddingService(store, hub, dispatcher, clock.New(), engineConfig(cfg))
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer engine.Stop()

	if cfg.SeedDemo {
		seedDemoAuctions(ctx, engine)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.SetupRouter(engine, cfg.SubscriberBuffer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		utils.Info("starting auction server", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	utils.Info("shutting down auction server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("http server shutdown error", map[string]any{"error": err.Error()})
	}
	return nil
}

func engineConfig(cfg config.Config) bidding.Config {
	return bidding.Config{
		Policy: auctionclock.Policy{
			TriggerWindow:   cfg.ExtensionTriggerWindow,
			ExtensionAmount: cfg.ExtensionAmount,
		},
		MaxExtensions:    cfg.MaxExtensions,
		DefaultIncrement: cfg.MinBidIncrement,
		Rules:            cfg.Rules(),
		Sequencer: sequencer.Config{
			QueueSize:   cfg.QueueSize,
			MaxWait:     cfg.QueueWait,
			IdleTimeout: cfg.QueueIdleTimeout,
		},
	}
}

// openStore picks postgres when a database URL is configured, memory otherwise
func openStore(ctx context.Context, cfg config.Config) (repository.AuctionStore, func(), error) {
	if cfg.DatabaseURL == "" {
		utils.Warn("no database configured, auction records are kept in memory", nil)
		return repository.NewMemoryRepo(), func() {}, nil
	}
	repo, err := repository.NewPostgresRepo(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres store: %w", err)
	}
	return repo, func() {
		if err := repo.Close(); err != nil {
			utils.Error("failed to close postgres store", map[string]any{"error": err.Error()})
		}
	}, nil
}

// openSink publishes notifications to NATS when configured and logs them otherwise
func openSink(cfg config.Config) (notify.Sink, func(), error) {
	if cfg.NATSURL == "" {
		return notify.LogSink{}, func() {}, nil
	}
	nc, err := notify.ConnectNATS(cfg.NATSURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	return notify.NewNATSSink(nc, notify.DefaultSubjectPrefix), func() {
		if err := nc.Drain(); err != nil {
			utils.Warn("nats drain failed", map[string]any{"error": err.Error()})
		}
	}, nil
}

// seedDemoAuctions opens a few sample auctions for local development
func seedDemoAuctions(ctx context.Context, engine *bidding.BiddingService) {
	now := time.Now().UTC()
	reserve := decimal.NewFromInt(50000)
	listings := []model.AuctionListing{
		{ListingID: "listing1", OwnerID: "seller1", Currency: "JPY", StartingPrice: decimal.NewFromInt(30000), ReservePrice: &reserve, MinBidIncrement: decimal.NewFromInt(1000), EndTime: now.Add(time.Hour)},
		{ListingID: "listing2", OwnerID: "seller1", Currency: "JPY", StartingPrice: decimal.NewFromInt(5000), MinBidIncrement: decimal.NewFromInt(500), EndTime: now.Add(10 * time.Minute)},
		{ListingID: "listing3", OwnerID: "seller2", Currency: "USD", StartingPrice: decimal.NewFromInt(150), EndTime: now.Add(24 * time.Hour)},
	}

	for _, l := range listings {
		a, err := engine.OpenAuction(ctx, l)
		if err != nil {
			utils.Warn("failed to seed demo auction", map[string]any{"listing_id": l.ListingID, "error": err.Error()})
			continue
		}
		utils.Info("seeded demo auction", map[string]any{"auction_id": a.AuctionID, "listing_id": l.ListingID})
	}
}
