// internal/bot/runner.go
package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ledgersnipe/xrpl-bot/internal/config"
	"github.com/ledgersnipe/xrpl-bot/internal/events"
	"github.com/ledgersnipe/xrpl-bot/internal/ledger"
	"github.com/ledgersnipe/xrpl-bot/internal/notify"
	"github.com/ledgersnipe/xrpl-bot/internal/position"
	"github.com/ledgersnipe/xrpl-bot/internal/pricing"
	"github.com/ledgersnipe/xrpl-bot/internal/tickets"
	"github.com/ledgersnipe/xrpl-bot/internal/trader"
)

// Runner wires every component together and drives the bot's lifecycle.
type Runner struct {
	logger     *zap.Logger
	config     *config.Config
	shutdownCh chan os.Signal
}

// NewRunner creates a runner from loaded configuration.
func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		logger:     logger,
		config:     cfg,
		shutdownCh: make(chan os.Signal, 1),
	}
}

// Run starts the bot and blocks until a shutdown signal, a fatal connection
// fault, or context cancellation.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		sig := <-r.shutdownCh
		r.logger.Info("📡 Signal received: " + sig.String())
		cancel()
	}()

	shutdown := NewShutdownHandler(r.logger, 30*time.Second)
	defer shutdown.Shutdown()

	// Connection layer
	sup := ledger.NewSupervisor(ledger.SupervisorConfig{
		URL:            r.config.WebSocketURL,
		Account:        r.config.Account,
		ReconnectDelay: r.config.ReconnectDelay,
		MaxAttempts:    r.config.ReconnectMaxAttempts,
	}, r.logger)
	shutdown.AddFunc("supervisor", func() error {
		sup.Close()
		return nil
	})

	client := ledger.NewClient(sup, r.logger)
	submitter := ledger.NewTrader(client, r.config.Account, r.logger)

	// Durable state
	store, err := r.openStore()
	if err != nil {
		return fmt.Errorf("open position store: %w", err)
	}
	shutdown.Add("position_store", store)

	// Tickets
	allocator := tickets.NewAllocator(r.config.Account, r.config.TicketLowWater, client, submitter, r.logger)

	// Notifications
	var sink notify.Sink
	if r.config.WebhookURL != "" {
		sink = notify.NewWebhookSink(r.config.WebhookURL)
	} else {
		sink = notify.NewLogSink(r.logger)
	}
	dispatcher := notify.NewDispatcher(sink, &notify.DispatcherConfig{
		Pacing: r.config.NotifyPacing,
	}, r.logger)
	shutdown.AddFunc("dispatcher", func() error {
		dispatcher.Close()
		return nil
	})

	bus := events.NewBus(r.logger, 100)
	shutdown.AddFunc("event_bus", func() error {
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		return bus.Shutdown(shutdownCtx)
	})
	notify.BindBus(bus, dispatcher)

	// Trading
	quoter := pricing.NewBookQuoter(client, r.logger)
	evaluator := trader.NewEvaluator(trader.EvaluatorConfig{
		Interval: r.config.PollInterval,
	}, store, quoter, submitter, allocator, bus, r.logger)

	sniper := trader.NewSniper(trader.SniperConfig{
		Account:         r.config.Account,
		WatchCurrencies: r.config.WatchCurrencies,
		SpendDrops:      r.config.SpendDrops,
		MaxUnitPrice:    r.config.MaxUnitPrice,
		TrustLimit:      r.config.TrustLimit,
		BurstSize:       r.config.BurstSize,
		BurstPacing:     r.config.BurstPacing,
		RefillDelay:     r.config.RefillDelay,
		RevokeDelay:     r.config.RevokeDelay,
		Multipliers:     r.config.TargetMultipliers,
		Fractions:       r.config.TargetFractions,
	}, submitter, allocator, allocator, store, bus, r.logger)
	shutdown.AddFunc("sniper", func() error {
		sniper.Wait()
		return nil
	})

	// The stream handler must be registered before the first connection so
	// the initial subscription replay already feeds it.
	sup.OnTransaction(sniper.HandleTransaction)

	if _, err := sup.Acquire(runCtx); err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	if err := allocator.Refill(runCtx); err != nil {
		r.logger.Warn("Initial ticket refill failed", zap.Error(err))
	}

	go allocator.RunRefillLoop(runCtx, r.config.RefillTick)
	go evaluator.Run(runCtx)

	r.logger.Info("🚀 Bot running",
		zap.Strings("watch_currencies", r.config.WatchCurrencies),
		zap.Int("ladder_slots", len(r.config.TargetMultipliers)))

	select {
	case <-runCtx.Done():
		r.logger.Info("👋 Bot shutting down gracefully")
		return nil
	case err := <-sup.Fatal():
		// Reconnection attempts are exhausted; continuing without a
		// stream would silently trade blind.
		r.logger.Error("💥 Ledger connection permanently lost", zap.Error(err))
		bus.PublishSync(runCtx, events.ConnectionTerminalEvent{
			BaseEvent: events.BaseEvent{EventType: events.ConnectionTerminal, EventTime: time.Now().UTC()},
			Reason:    err.Error(),
		})
		cancel()
		return err
	}
}

// openStore selects the configured persistence backend.
func (r *Runner) openStore() (position.Store, error) {
	switch r.config.StoreBackend {
	case "badger":
		return position.NewBadgerStore(r.config.BadgerDir, r.logger)
	default:
		return position.NewFileStore(r.config.DataFile, r.logger)
	}
}

// Shutdown flushes the logger on exit.
func (r *Runner) Shutdown() {
	if err := r.logger.Sync(); err != nil {
		if !os.IsNotExist(err) &&
			err.Error() != "sync /dev/stdout: invalid argument" &&
			err.Error() != "sync /dev/stderr: inappropriate ioctl for device" {
			fmt.Fprintf(os.Stderr, "failed to sync logger during shutdown: %v\n", err)
		}
	}
}
