// internal/position/position_test.go
package position

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() Key {
	return Key{Currency: "ABC", Issuer: "rIssuer", Account: "rHolder"}
}

func TestNewPositionCopiesTargets(t *testing.T) {
	targets, err := BuildLadder([]float64{2, 4}, []float64{0.5, 0.5})
	require.NoError(t, err)

	pos := NewPosition(testKey(), decimal.NewFromInt(10), decimal.NewFromInt(1000), targets)

	targets[0].Achieved = true
	assert.False(t, pos.Targets[0].Achieved, "position must own its ladder")

	assert.True(t, pos.UnitBalance.Equal(pos.InitialUnits))
	assert.True(t, pos.RealizedProceeds.IsZero())
}

func TestInitialUnitPrice(t *testing.T) {
	pos := NewPosition(testKey(), decimal.NewFromInt(10), decimal.NewFromInt(1000), nil)
	assert.Equal(t, "0.01", pos.InitialUnitPrice().String())

	empty := NewPosition(testKey(), decimal.NewFromInt(10), decimal.Zero, nil)
	assert.True(t, empty.InitialUnitPrice().IsZero())
}

func TestNextSlotWalksInOrder(t *testing.T) {
	targets, err := BuildLadder([]float64{2, 4, 6}, []float64{0.5, 0.3, 0.2})
	require.NoError(t, err)
	pos := NewPosition(testKey(), decimal.NewFromInt(10), decimal.NewFromInt(1000), targets)

	assert.Equal(t, 0, pos.NextSlot())

	pos.Targets[0].Achieved = true
	assert.Equal(t, 1, pos.NextSlot())

	pos.Targets[1].Achieved = true
	pos.Targets[2].Achieved = true
	assert.Equal(t, -1, pos.NextSlot(), "fully achieved ladder has no next slot")
}

func TestBuildLadderRejectsMisalignedTables(t *testing.T) {
	_, err := BuildLadder([]float64{2, 4, 6}, []float64{0.5, 0.5})
	require.Error(t, err)

	_, err = BuildLadder(nil, nil)
	require.NoError(t, err)
}
