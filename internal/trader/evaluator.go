// internal/trader/evaluator.go
package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ledgersnipe/xrpl-bot/internal/events"
	"github.com/ledgersnipe/xrpl-bot/internal/ledger"
	"github.com/ledgersnipe/xrpl-bot/internal/position"
	"github.com/ledgersnipe/xrpl-bot/internal/pricing"
)

// Seller submits a partial liquidation against the ledger.
type Seller interface {
	SellTokens(ctx context.Context, currency, issuer string, units, wantXRP decimal.Decimal, ticket uint32) (*ledger.SubmitResult, error)
}

// TicketReserver hands out pre-reserved sequence numbers.
type TicketReserver interface {
	Reserve() (uint32, bool)
}

// EvaluatorConfig contains ladder evaluation settings.
type EvaluatorConfig struct {
	// Interval between evaluation passes.
	Interval time.Duration
}

// Evaluator walks open positions on a fixed cadence and fires the next
// take-profit rung when the market price reaches its multiplier. Passes
// never overlap: the ticker loop runs a pass to completion before the
// next one starts.
type Evaluator struct {
	cfg     EvaluatorConfig
	store   position.Store
	quoter  pricing.Quoter
	seller  Seller
	tickets TicketReserver
	bus     *events.Bus
	logger  *zap.Logger
}

// NewEvaluator creates a ladder evaluator.
func NewEvaluator(cfg EvaluatorConfig, store position.Store, quoter pricing.Quoter, seller Seller, tickets TicketReserver, bus *events.Bus, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		cfg:     cfg,
		store:   store,
		quoter:  quoter,
		seller:  seller,
		tickets: tickets,
		bus:     bus,
		logger:  logger.Named("evaluator"),
	}
}

// Run evaluates positions until the context is cancelled.
func (e *Evaluator) Run(ctx context.Context) {
	e.logger.Info("📊 Ladder evaluator started",
		zap.Duration("interval", e.cfg.Interval))

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Ladder evaluator stopped")
			return
		case <-ticker.C:
			e.RunPass(ctx)
		}
	}
}

// RunPass evaluates every open position once, in store order. Each position
// is handled independently: a failure on one never blocks the rest.
func (e *Evaluator) RunPass(ctx context.Context) {
	positions, err := e.store.ReadAll(ctx)
	if err != nil {
		e.logger.Error("Failed to load positions", zap.Error(err))
		return
	}

	for _, pos := range positions {
		if ctx.Err() != nil {
			return
		}
		e.evaluate(ctx, pos)
	}
}

// evaluate checks a single position and fires at most one ladder slot.
func (e *Evaluator) evaluate(ctx context.Context, pos *position.Position) {
	log := e.logger.With(zap.String("position", pos.Key.String()))

	if pos.UnitBalance.IsZero() {
		return
	}

	slot := pos.NextSlot()
	if slot < 0 {
		return
	}

	price, err := e.quoter.UnitPrice(ctx, pos.Key.Currency, pos.Key.Issuer)
	if err != nil {
		// No usable quote this pass; the position is retried next pass.
		log.Debug("Quote unavailable, skipping", zap.Error(err))
		return
	}

	entry := pos.InitialUnitPrice()
	if entry.IsZero() {
		log.Warn("Position has zero entry price, skipping")
		return
	}

	threshold := entry.Mul(pos.Targets[slot].Multiplier)
	if price.LessThan(threshold) {
		return
	}

	log.Info("⚡ Target reached",
		zap.Int("slot", slot),
		zap.String("multiplier", pos.Targets[slot].Multiplier.String()),
		zap.String("price_xrp", price.String()),
		zap.String("threshold_xrp", threshold.String()))

	e.fire(ctx, pos, slot, price, log)
}

// fire sells the slot's fraction of the initial holding and records the
// outcome. The sell quantity is a fraction of the INITIAL units, capped by
// whatever is still held, so late rungs always have inventory.
func (e *Evaluator) fire(ctx context.Context, pos *position.Position, slot int, price decimal.Decimal, log *zap.Logger) {
	units := pos.InitialUnits.Mul(pos.Targets[slot].SellFraction)
	if units.GreaterThan(pos.UnitBalance) {
		units = pos.UnitBalance
	}
	if units.IsZero() {
		return
	}

	ticket, ok := e.tickets.Reserve()
	if !ok {
		// No submission without a ticket. The slot stays unachieved and
		// is retried once the pool refills.
		log.Warn("Ticket pool empty, deferring liquidation", zap.Int("slot", slot))
		return
	}

	wantXRP := units.Mul(price)
	res, err := e.seller.SellTokens(ctx, pos.Key.Currency, pos.Key.Issuer, units, wantXRP, ticket)
	if err != nil {
		log.Error("Liquidation submit failed", zap.Int("slot", slot), zap.Error(err))
		return
	}
	if !res.Accepted {
		log.Warn("Liquidation rejected by ledger",
			zap.Int("slot", slot),
			zap.String("engine_result", res.EngineResult))
		return
	}

	proceeds := res.DeliveredXRP
	if proceeds.IsZero() {
		proceeds = wantXRP
	}

	var remaining decimal.Decimal
	err = e.store.Update(ctx, pos.Key, func(p *position.Position) error {
		if slot >= len(p.Targets) {
			return fmt.Errorf("ladder slot %d out of range (%d targets)", slot, len(p.Targets))
		}
		p.Targets[slot].Achieved = true
		p.UnitBalance = p.UnitBalance.Sub(units)
		if p.UnitBalance.IsNegative() {
			p.UnitBalance = decimal.Zero
		}
		p.RealizedProceeds = p.RealizedProceeds.Add(proceeds)
		p.UpdatedAt = time.Now().UTC()
		remaining = p.UnitBalance
		return nil
	})
	if err != nil {
		log.Error("Failed to persist liquidation", zap.Int("slot", slot), zap.Error(err))
		return
	}

	log.Info("💥 Target liquidated",
		zap.Int("slot", slot),
		zap.String("units_sold", units.String()),
		zap.String("proceeds_xrp", proceeds.String()),
		zap.String("remaining", remaining.String()))

	if e.bus != nil {
		_ = e.bus.Publish(events.TargetLiquidatedEvent{
			BaseEvent: events.BaseEvent{
				EventType: events.TargetLiquidated,
				EventTime: time.Now().UTC(),
			},
			Currency:    pos.Key.Currency,
			Issuer:      pos.Key.Issuer,
			Account:     pos.Key.Account,
			SlotIndex:   slot,
			Multiplier:  pos.Targets[slot].Multiplier,
			UnitsSold:   units,
			ProceedsXRP: proceeds,
			Remaining:   remaining,
			TxHash:      res.Hash,
		})
	}
}
