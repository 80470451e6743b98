// internal/trader/sniper.go
package trader

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ledgersnipe/xrpl-bot/internal/events"
	"github.com/ledgersnipe/xrpl-bot/internal/ledger"
	"github.com/ledgersnipe/xrpl-bot/internal/position"
)

// issuerState tracks where a watched issuer is in its listing lifecycle.
type issuerState int

const (
	stateMonitored issuerState = iota + 1
	stateTrustGranted
)

// Buyer submits trust-line and acquisition transactions.
type Buyer interface {
	CreateTrustLine(ctx context.Context, currency, issuer, limit string) error
	RemoveTrustLine(ctx context.Context, currency, issuer string) error
	BuyTokens(ctx context.Context, currency, issuer string, spendDrops int64, wantUnits decimal.Decimal, ticket uint32) (*ledger.SubmitResult, error)
}

// Refiller tops up the ticket pool after a burst drains it.
type Refiller interface {
	Refill(ctx context.Context) error
}

// SniperConfig contains acquisition settings.
type SniperConfig struct {
	Account         string
	WatchCurrencies []string
	SpendDrops      int64
	MaxUnitPrice    float64
	TrustLimit      string
	BurstSize       int
	BurstPacing     time.Duration
	RefillDelay     time.Duration
	RevokeDelay     time.Duration
	Multipliers     []float64
	Fractions       []float64
}

// Sniper reacts to the ledger transaction stream: it spots a new issuer
// listing a watched currency, waits for the listing to go live, then fires
// a burst of buy attempts and opens a position on the first fill.
//
// Per-issuer lifecycle: monitored on the listing signal, trust-granted on
// the first third-party TrustSet toward the issuer, then retired after the
// buy sequence so the same issuer is never processed twice.
type Sniper struct {
	cfg     SniperConfig
	buyer   Buyer
	tickets TicketReserver
	refill  Refiller
	store   position.Store
	bus     *events.Bus
	logger  *zap.Logger

	watched map[string]bool // currency code -> watched

	mu        sync.Mutex
	states    map[position.Key]issuerState
	processed map[position.Key]bool

	wg sync.WaitGroup
}

// NewSniper creates an acquisition trigger.
func NewSniper(cfg SniperConfig, buyer Buyer, tickets TicketReserver, refill Refiller, store position.Store, bus *events.Bus, logger *zap.Logger) *Sniper {
	watched := make(map[string]bool, len(cfg.WatchCurrencies))
	for _, c := range cfg.WatchCurrencies {
		watched[c] = true
	}
	return &Sniper{
		cfg:       cfg,
		buyer:     buyer,
		tickets:   tickets,
		refill:    refill,
		store:     store,
		bus:       bus,
		logger:    logger.Named("sniper"),
		watched:   watched,
		states:    make(map[position.Key]issuerState),
		processed: make(map[position.Key]bool),
	}
}

// HandleTransaction is the stream callback. It must never block: state
// transitions are cheap map operations, and the buy sequence runs on its
// own goroutine.
func (s *Sniper) HandleTransaction(ev ledger.TxEvent) {
	if !ev.Validated || ev.EngineResult != "tesSUCCESS" {
		return
	}

	tx := ev.Transaction
	switch tx.TransactionType {
	case "OfferCreate":
		s.onListingSignal(tx)
	case "TrustSet":
		s.onTrustGrant(tx)
	}
}

// onListingSignal monitors an issuer that starts offering a watched currency.
func (s *Sniper) onListingSignal(tx ledger.Transaction) {
	if tx.TakerGets == nil || tx.TakerGets.Native {
		return
	}
	if !s.watched[tx.TakerGets.Currency] {
		return
	}
	if tx.TakerGets.Issuer != tx.Account {
		// Only the issuer's own listing counts as the signal; resellers
		// offering the same token do not open the window.
		return
	}

	key := position.Key{
		Currency: tx.TakerGets.Currency,
		Issuer:   tx.TakerGets.Issuer,
		Account:  s.cfg.Account,
	}

	s.mu.Lock()
	if s.processed[key] || s.states[key] != 0 {
		s.mu.Unlock()
		return
	}
	s.states[key] = stateMonitored
	s.mu.Unlock()

	s.logger.Info("👀 Issuer monitored",
		zap.String("currency", key.Currency),
		zap.String("issuer", key.Issuer))

	if s.bus != nil {
		_ = s.bus.Publish(events.IssuerMonitoredEvent{
			BaseEvent: events.BaseEvent{EventType: events.IssuerMonitored, EventTime: time.Now().UTC()},
			Currency:  key.Currency,
			Issuer:    key.Issuer,
		})
	}
}

// onTrustGrant fires the buy sequence when a monitored issuer receives its
// first third-party trust line. A grant for an unmonitored issuer is
// ignored, and a duplicate grant is idempotent.
func (s *Sniper) onTrustGrant(tx ledger.Transaction) {
	if tx.LimitAmount == nil || tx.Account == s.cfg.Account {
		return
	}

	key := position.Key{
		Currency: tx.LimitAmount.Currency,
		Issuer:   tx.LimitAmount.Issuer,
		Account:  s.cfg.Account,
	}

	s.mu.Lock()
	if s.states[key] != stateMonitored {
		s.mu.Unlock()
		return
	}
	s.states[key] = stateTrustGranted
	s.mu.Unlock()

	s.logger.Info("🤝 Trust granted, starting buy sequence",
		zap.String("currency", key.Currency),
		zap.String("issuer", key.Issuer))

	if s.bus != nil {
		_ = s.bus.Publish(events.BaseEvent{EventType: events.TrustGranted, EventTime: time.Now().UTC()})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.buySequence(context.Background(), key)
	}()
}

// buySequence establishes the trust line, runs the paced burst of buy
// attempts and retires the issuer. Refill and revocation are scheduled on
// independent timers that run as no-ops when already irrelevant.
func (s *Sniper) buySequence(ctx context.Context, key position.Key) {
	log := s.logger.With(
		zap.String("currency", key.Currency),
		zap.String("issuer", key.Issuer))

	defer s.retire(key)

	if err := s.buyer.CreateTrustLine(ctx, key.Currency, key.Issuer, s.cfg.TrustLimit); err != nil {
		log.Error("Trust line creation failed, aborting buy sequence", zap.Error(err))
		return
	}

	acquired := s.runBurst(ctx, key, log)

	time.AfterFunc(s.cfg.RefillDelay, func() {
		if err := s.refill.Refill(context.Background()); err != nil {
			s.logger.Warn("Post-burst ticket refill failed", zap.Error(err))
		}
	})

	if !acquired {
		// The line has no balance behind it; drop it so the reserve is
		// released. With a filled position the line must stay.
		time.AfterFunc(s.cfg.RevokeDelay, func() {
			if err := s.buyer.RemoveTrustLine(context.Background(), key.Currency, key.Issuer); err != nil {
				s.logger.Warn("Trust line revocation failed", zap.Error(err))
			}
		})
	}
}

// runBurst submits up to BurstSize immediate-or-cancel buys. Every attempt
// consumes one fresh ticket; an empty pool skips the attempt rather than
// blocking. The burst ends on the first fill.
func (s *Sniper) runBurst(ctx context.Context, key position.Key, log *zap.Logger) bool {
	spendXRP := decimal.NewFromInt(s.cfg.SpendDrops).Div(decimal.NewFromInt(ledger.DropsPerXRP))
	wantUnits := spendXRP.Div(decimal.NewFromFloat(s.cfg.MaxUnitPrice))

	for attempt := 1; attempt <= s.cfg.BurstSize; attempt++ {
		if attempt > 1 {
			time.Sleep(s.cfg.BurstPacing)
		}

		ticket, ok := s.tickets.Reserve()
		if !ok {
			log.Warn("Ticket pool empty, skipping buy attempt", zap.Int("attempt", attempt))
			continue
		}

		res, err := s.buyer.BuyTokens(ctx, key.Currency, key.Issuer, s.cfg.SpendDrops, wantUnits, ticket)
		if err != nil {
			log.Error("Buy attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if !res.Accepted || !res.DeliveredUnits.IsPositive() {
			log.Info("Buy attempt not filled",
				zap.Int("attempt", attempt),
				zap.String("engine_result", res.EngineResult))
			continue
		}

		s.openPosition(ctx, key, res, log)
		return true
	}

	log.Info("Burst exhausted without a fill")
	return false
}

// openPosition records the confirmed acquisition and announces it.
func (s *Sniper) openPosition(ctx context.Context, key position.Key, res *ledger.SubmitResult, log *zap.Logger) {
	outlay := res.DeliveredXRP
	if outlay.IsZero() {
		outlay = decimal.NewFromInt(s.cfg.SpendDrops).Div(decimal.NewFromInt(ledger.DropsPerXRP))
	}

	targets, err := position.BuildLadder(s.cfg.Multipliers, s.cfg.Fractions)
	if err != nil {
		log.Error("Refusing to open position with broken ladder tables", zap.Error(err))
		return
	}

	pos := position.NewPosition(key, outlay, res.DeliveredUnits, targets)
	if err := s.store.Create(ctx, pos); err != nil {
		log.Error("Failed to persist new position", zap.Error(err))
		return
	}

	log.Info("✅ Position opened",
		zap.String("units", res.DeliveredUnits.String()),
		zap.String("outlay_xrp", outlay.String()),
		zap.String("tx_hash", res.Hash))

	if s.bus != nil {
		_ = s.bus.Publish(events.TokenAcquiredEvent{
			BaseEvent: events.BaseEvent{EventType: events.TokenAcquired, EventTime: time.Now().UTC()},
			Currency:  key.Currency,
			Issuer:    key.Issuer,
			Account:   key.Account,
			Units:     res.DeliveredUnits,
			SpentXRP:  outlay,
			TxHash:    res.Hash,
		})
	}
}

// retire marks an issuer fully processed. Later listing signals or grants
// for the same issuer are dropped permanently.
func (s *Sniper) retire(key position.Key) {
	s.mu.Lock()
	delete(s.states, key)
	s.processed[key] = true
	s.mu.Unlock()
}

// Wait blocks until in-flight buy sequences finish. Scheduled refill and
// revocation timers are fire-and-forget and are not waited on.
func (s *Sniper) Wait() {
	s.wg.Wait()
}
