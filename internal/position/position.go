// internal/position/position.go
package position

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Key identifies a position: one token held by one account.
type Key struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
	Account  string `json:"account"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s.%s@%s", k.Currency, k.Issuer, k.Account)
}

// TargetSlot is one rung of the take-profit ladder. Achieved is permanent:
// once set it is never reset, which is also what makes every liquidation
// attempt independently retryable across polling passes.
type TargetSlot struct {
	Multiplier   decimal.Decimal `json:"multiplier"`
	SellFraction decimal.Decimal `json:"sell_fraction"`
	Achieved     bool            `json:"achieved"`
}

// Position is the durable record of an open or partially closed holding.
type Position struct {
	Key Key `json:"key"`

	InitialOutlay    decimal.Decimal `json:"initial_outlay"`    // XRP spent on acquisition
	RealizedProceeds decimal.Decimal `json:"realized_proceeds"` // XRP accumulated from sells
	InitialUnits     decimal.Decimal `json:"initial_units"`
	UnitBalance      decimal.Decimal `json:"unit_balance"` // monotonically non-increasing

	Targets []TargetSlot `json:"targets"` // evaluated strictly in order

	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPosition builds a fresh position from a confirmed acquisition.
func NewPosition(key Key, outlay, units decimal.Decimal, targets []TargetSlot) *Position {
	now := time.Now().UTC()
	slots := make([]TargetSlot, len(targets))
	copy(slots, targets)
	return &Position{
		Key:           key,
		InitialOutlay: outlay,
		InitialUnits:  units,
		UnitBalance:   units,
		Targets:       slots,
		OpenedAt:      now,
		UpdatedAt:     now,
	}
}

// InitialUnitPrice returns the effective acquisition price per unit.
func (p *Position) InitialUnitPrice() decimal.Decimal {
	if p.InitialUnits.IsZero() {
		return decimal.Zero
	}
	return p.InitialOutlay.Div(p.InitialUnits)
}

// NextSlot returns the index of the first unachieved target, or -1 when the
// whole ladder is done. Because slots are strictly sequential, this is the
// only slot the evaluator may consider in a pass.
func (p *Position) NextSlot() int {
	for i := range p.Targets {
		if !p.Targets[i].Achieved {
			return i
		}
	}
	return -1
}

// BuildLadder converts the configured multiplier/fraction tables into slots.
// Both tables must be the same length; a mismatch means the configuration is
// broken and no ladder may be built from it.
func BuildLadder(multipliers, fractions []float64) ([]TargetSlot, error) {
	if len(multipliers) != len(fractions) {
		return nil, fmt.Errorf("ladder tables misaligned: %d multipliers vs %d fractions",
			len(multipliers), len(fractions))
	}

	slots := make([]TargetSlot, len(multipliers))
	for i := range multipliers {
		slots[i] = TargetSlot{
			Multiplier:   decimal.NewFromFloat(multipliers[i]),
			SellFraction: decimal.NewFromFloat(fractions[i]),
		}
	}
	return slots, nil
}
