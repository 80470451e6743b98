// internal/tickets/allocator.go
package tickets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CreateBatch is how many new tickets a dry refill requests from the network.
const CreateBatch = 5

// Lister reads the reserved-but-unused ticket sequences an account holds.
type Lister interface {
	TicketSequences(ctx context.Context, account string) ([]uint32, error)
}

// Creator requests brand-new tickets. Fee costing; only used when the
// refreshed pool is still below the low-water mark.
type Creator interface {
	CreateTickets(ctx context.Context, count int) error
}

// Allocator owns the pool of pre-reserved transaction sequence tickets and
// hands them out exclusively. The raw pool is never exposed; the lock covers
// only in-memory pop/replace, never a network call.
type Allocator struct {
	mu   sync.Mutex
	pool []uint32

	account  string
	lowWater int
	lister   Lister
	creator  Creator
	logger   *zap.Logger
}

// NewAllocator creates an empty allocator; call Refill before first use.
func NewAllocator(account string, lowWater int, lister Lister, creator Creator, logger *zap.Logger) *Allocator {
	if lowWater <= 0 {
		lowWater = 10
	}
	return &Allocator{
		account:  account,
		lowWater: lowWater,
		lister:   lister,
		creator:  creator,
		logger:   logger.Named("tickets"),
	}
}

// Reserve removes and returns the lowest available ticket. The second return
// is false when the pool is empty; callers treat that as "skip this attempt"
// rather than an error, and never block waiting for one.
func (a *Allocator) Reserve() (uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.pool) == 0 {
		return 0, false
	}

	ticket := a.pool[0]
	a.pool = a.pool[1:]
	return ticket, true
}

// Size returns the current pool size.
func (a *Allocator) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pool)
}

// NeedsRefill reports whether the pool is below the low-water mark.
func (a *Allocator) NeedsRefill() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pool) < a.lowWater
}

// Refill queries the ledger for all outstanding tickets and replaces the
// pool wholesale. If the refreshed count is still below the low-water mark
// it requests CreateBatch new tickets from the network; those land in the
// pool on a later refill once the ledger reports them.
func (a *Allocator) Refill(ctx context.Context) error {
	seqs, err := a.lister.TicketSequences(ctx, a.account)
	if err != nil {
		return fmt.Errorf("refresh ticket pool: %w", err)
	}

	a.mu.Lock()
	a.pool = seqs
	size := len(a.pool)
	a.mu.Unlock()

	a.logger.Debug("Ticket pool replaced", zap.Int("size", size))

	if size < a.lowWater {
		a.logger.Info("🎫 Ticket pool below low-water mark, requesting more",
			zap.Int("size", size),
			zap.Int("low_water", a.lowWater))
		if err := a.creator.CreateTickets(ctx, CreateBatch); err != nil {
			return fmt.Errorf("create tickets: %w", err)
		}
	}

	return nil
}

// RunRefillLoop refills on a fixed tick whenever the pool is low. Network
// errors are logged and retried on the next tick; they never stop the loop.
func (a *Allocator) RunRefillLoop(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("Refill loop stopped")
			return
		case <-ticker.C:
			if !a.NeedsRefill() {
				continue
			}
			if err := a.Refill(ctx); err != nil {
				a.logger.Warn("⚠️  Ticket refill failed, will retry", zap.Error(err))
			}
		}
	}
}
