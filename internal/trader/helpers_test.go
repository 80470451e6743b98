// internal/trader/helpers_test.go
package trader

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ledgersnipe/xrpl-bot/internal/ledger"
	"github.com/ledgersnipe/xrpl-bot/internal/position"
)

// memStore is an in-memory position.Store for tests.
type memStore struct {
	mu        sync.Mutex
	positions []*position.Position
}

func newMemStore() *memStore {
	return &memStore{}
}

func (s *memStore) Create(_ context.Context, pos *position.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.positions {
		if existing.Key == pos.Key {
			return nil
		}
	}
	clone := clonePosition(pos)
	s.positions = append(s.positions, clone)
	return nil
}

func (s *memStore) Update(_ context.Context, key position.Key, mutate func(*position.Position) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pos := range s.positions {
		if pos.Key == key {
			return mutate(pos)
		}
	}
	return fmt.Errorf("update %s: %w", key, position.ErrNotFound)
}

func (s *memStore) ReadAll(_ context.Context) ([]*position.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*position.Position, len(s.positions))
	for i, pos := range s.positions {
		out[i] = clonePosition(pos)
	}
	return out, nil
}

func (s *memStore) Remove(_ context.Context, key position.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, pos := range s.positions {
		if pos.Key == key {
			s.positions = append(s.positions[:i], s.positions[i+1:]...)
			return nil
		}
	}
	return position.ErrNotFound
}

func (s *memStore) Close() error { return nil }

func (s *memStore) get(key position.Key) *position.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pos := range s.positions {
		if pos.Key == key {
			return clonePosition(pos)
		}
	}
	return nil
}

func clonePosition(pos *position.Position) *position.Position {
	clone := *pos
	clone.Targets = append([]position.TargetSlot(nil), pos.Targets...)
	return &clone
}

// fakeQuoter returns a fixed price or error and counts calls.
type fakeQuoter struct {
	mu    sync.Mutex
	price decimal.Decimal
	err   error
	calls int
}

func (q *fakeQuoter) UnitPrice(_ context.Context, _, _ string) (decimal.Decimal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return decimal.Zero, q.err
	}
	return q.price, nil
}

func (q *fakeQuoter) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

// fakeTickets hands out a fixed set of tickets.
type fakeTickets struct {
	mu   sync.Mutex
	pool []uint32
}

func newFakeTickets(tickets ...uint32) *fakeTickets {
	return &fakeTickets{pool: tickets}
}

func (f *fakeTickets) Reserve() (uint32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pool) == 0 {
		return 0, false
	}
	t := f.pool[0]
	f.pool = f.pool[1:]
	return t, true
}

func (f *fakeTickets) Refill(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pool = append(f.pool, 900, 901, 902)
	return nil
}

type sellCall struct {
	currency string
	units    decimal.Decimal
	ticket   uint32
}

// fakeSeller records sell submissions.
type fakeSeller struct {
	mu     sync.Mutex
	calls  []sellCall
	result *ledger.SubmitResult
	err    error
}

func (f *fakeSeller) SellTokens(_ context.Context, currency, _ string, units, _ decimal.Decimal, ticket uint32) (*ledger.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sellCall{currency: currency, units: units, ticket: ticket})
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &ledger.SubmitResult{EngineResult: "tesSUCCESS", Accepted: true, Hash: "SELLHASH"}, nil
}

func (f *fakeSeller) sellCalls() []sellCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sellCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeBuyer records trust-line and buy submissions for sniper tests.
type fakeBuyer struct {
	mu          sync.Mutex
	trustCalls  int
	revokeCalls int
	buyCalls    []uint32 // tickets consumed, in order
	buyResults  []*ledger.SubmitResult
	trustErr    error
}

func (f *fakeBuyer) CreateTrustLine(_ context.Context, _, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trustCalls++
	return f.trustErr
}

func (f *fakeBuyer) RemoveTrustLine(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeCalls++
	return nil
}

func (f *fakeBuyer) BuyTokens(_ context.Context, _, _ string, _ int64, _ decimal.Decimal, ticket uint32) (*ledger.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buyCalls = append(f.buyCalls, ticket)
	if len(f.buyResults) > 0 {
		res := f.buyResults[0]
		f.buyResults = f.buyResults[1:]
		return res, nil
	}
	return &ledger.SubmitResult{EngineResult: "tecKILLED", Accepted: false}, nil
}

func (f *fakeBuyer) stats() (trust, revoke int, buys []uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buys = make([]uint32, len(f.buyCalls))
	copy(buys, f.buyCalls)
	return f.trustCalls, f.revokeCalls, buys
}

func filledBuy(units, xrp string) *ledger.SubmitResult {
	return &ledger.SubmitResult{
		EngineResult:   "tesSUCCESS",
		Accepted:       true,
		Hash:           "BUYHASH",
		DeliveredXRP:   decimal.RequireFromString(xrp),
		DeliveredUnits: decimal.RequireFromString(units),
	}
}

func missedBuy() *ledger.SubmitResult {
	return &ledger.SubmitResult{EngineResult: "tecKILLED", Accepted: false}
}
