// internal/tickets/allocator_test.go
package tickets

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeLedger struct {
	mu      sync.Mutex
	tickets []uint32
	listErr error
	created int
}

func (f *fakeLedger) TicketSequences(_ context.Context, _ string) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]uint32, len(f.tickets))
	copy(out, f.tickets)
	return out, nil
}

func (f *fakeLedger) CreateTickets(_ context.Context, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created += count
	return nil
}

func newTestAllocator(t *testing.T, ledger *fakeLedger, lowWater int) *Allocator {
	return NewAllocator("rTestAccount", lowWater, ledger, ledger, zaptest.NewLogger(t))
}

func TestReserveHandsOutLowestFirst(t *testing.T) {
	ledger := &fakeLedger{tickets: []uint32{301, 305, 310}}
	alloc := newTestAllocator(t, ledger, 2)
	require.NoError(t, alloc.Refill(context.Background()))

	ticket, ok := alloc.Reserve()
	require.True(t, ok)
	assert.Equal(t, uint32(301), ticket)

	ticket, ok = alloc.Reserve()
	require.True(t, ok)
	assert.Equal(t, uint32(305), ticket)

	ticket, ok = alloc.Reserve()
	require.True(t, ok)
	assert.Equal(t, uint32(310), ticket)

	_, ok = alloc.Reserve()
	assert.False(t, ok, "empty pool must signal empty, not block")
}

func TestReserveConcurrentNoDoubleHandout(t *testing.T) {
	const poolSize = 20
	const callers = 100

	seqs := make([]uint32, poolSize)
	for i := range seqs {
		seqs[i] = uint32(500 + i)
	}
	ledger := &fakeLedger{tickets: seqs}
	alloc := newTestAllocator(t, ledger, 1)
	require.NoError(t, alloc.Refill(context.Background()))

	results := make([]uint32, callers)
	oks := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], oks[i] = alloc.Reserve()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint32]bool)
	granted := 0
	for i := 0; i < callers; i++ {
		if !oks[i] {
			continue
		}
		granted++
		assert.False(t, seen[results[i]], "ticket %d handed out twice", results[i])
		seen[results[i]] = true
	}
	assert.Equal(t, poolSize, granted, "exactly the pool size must be granted")
	assert.Equal(t, 0, alloc.Size())
}

func TestRefillReplacesPoolWholesale(t *testing.T) {
	ledger := &fakeLedger{tickets: []uint32{100, 101, 102}}
	alloc := newTestAllocator(t, ledger, 2)
	require.NoError(t, alloc.Refill(context.Background()))

	// Consume one, then the ledger reports a fresh set.
	_, ok := alloc.Reserve()
	require.True(t, ok)

	ledger.mu.Lock()
	ledger.tickets = []uint32{200, 201, 202, 203}
	ledger.mu.Unlock()

	require.NoError(t, alloc.Refill(context.Background()))
	assert.Equal(t, 4, alloc.Size())

	ticket, ok := alloc.Reserve()
	require.True(t, ok)
	assert.Equal(t, uint32(200), ticket, "stale pool entries must be gone")
}

func TestRefillRequestsCreationWhenStillLow(t *testing.T) {
	ledger := &fakeLedger{tickets: []uint32{700, 701}}
	alloc := newTestAllocator(t, ledger, 10)
	require.NoError(t, alloc.Refill(context.Background()))

	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	assert.Equal(t, CreateBatch, ledger.created)
}

func TestRefillSkipsCreationWhenPoolHealthy(t *testing.T) {
	seqs := make([]uint32, 15)
	for i := range seqs {
		seqs[i] = uint32(400 + i)
	}
	ledger := &fakeLedger{tickets: seqs}
	alloc := newTestAllocator(t, ledger, 10)
	require.NoError(t, alloc.Refill(context.Background()))

	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	assert.Equal(t, 0, ledger.created)
}

func TestRefillErrorLeavesPoolUsable(t *testing.T) {
	ledger := &fakeLedger{tickets: []uint32{900, 901}}
	alloc := newTestAllocator(t, ledger, 1)
	require.NoError(t, alloc.Refill(context.Background()))

	ledger.mu.Lock()
	ledger.listErr = errors.New("connection reset")
	ledger.mu.Unlock()

	err := alloc.Refill(context.Background())
	require.Error(t, err)

	// The previous pool still serves reservations.
	ticket, ok := alloc.Reserve()
	require.True(t, ok)
	assert.Equal(t, uint32(900), ticket)
}

func TestNeedsRefill(t *testing.T) {
	ledger := &fakeLedger{tickets: []uint32{1, 2, 3}}
	alloc := newTestAllocator(t, ledger, 3)

	assert.True(t, alloc.NeedsRefill(), "empty pool is always below the mark")

	require.NoError(t, alloc.Refill(context.Background()))
	assert.False(t, alloc.NeedsRefill())

	_, _ = alloc.Reserve()
	assert.True(t, alloc.NeedsRefill())
}
