package pool_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/FelipePaivaVale/BOTCC/internal/pool"
)

func defaultEngine() *pool.Engine {
	return pool.NewEngine(
		decimal.NewFromFloat(1.5),
		decimal.NewFromFloat(2.0),
		decimal.NewFromFloat(1.1),
	)
}

func TestFairMultiplier_EmptyPool(t *testing.T) {
	e := defaultEngine()
	assert.True(t, e.FairMultiplier(0, 0).Equal(decimal.NewFromFloat(1.5)))
}

func TestFairMultiplier_EmptyChosenSide(t *testing.T) {
	e := defaultEngine()
	assert.True(t, e.FairMultiplier(0, 100).Equal(decimal.NewFromFloat(2.0)))
}

func TestFairMultiplier_FloorApplies(t *testing.T) {
	e := defaultEngine()
	// total/chosen = 1.0, below the floor
	assert.True(t, e.FairMultiplier(100, 0).Equal(decimal.NewFromFloat(1.1)))
	// heavily favored side still floored
	assert.True(t, e.FairMultiplier(1000, 50).Equal(decimal.NewFromFloat(1.1)))
}

func TestFairMultiplier_Proportional(t *testing.T) {
	e := defaultEngine()
	// 200/50 = 4.0
	assert.True(t, e.FairMultiplier(50, 150).Equal(decimal.NewFromFloat(4.0)))
	// 300/100 = 3.0
	assert.True(t, e.FairMultiplier(100, 200).Equal(decimal.NewFromFloat(3.0)))
	// 250/100 = 2.5
	assert.True(t, e.FairMultiplier(100, 150).Equal(decimal.NewFromFloat(2.5)))
}

func TestFairMultiplier_Rounding(t *testing.T) {
	e := defaultEngine()
	// 100/30 = 3.333... rounds to 3.33
	assert.True(t, e.FairMultiplier(30, 70).Equal(decimal.NewFromFloat(3.33)))
}

func TestQuoteSides(t *testing.T) {
	e := defaultEngine()
	q := e.QuoteSides(50, 150)
	assert.True(t, q.MultiplierA.Equal(decimal.NewFromFloat(4.0)))
	assert.True(t, q.MultiplierB.Equal(decimal.NewFromFloat(1.33)))
	assert.Equal(t, int64(50), q.TotalA)
	assert.Equal(t, int64(150), q.TotalB)
}

func TestPayout_FloorsToWholeCoins(t *testing.T) {
	assert.Equal(t, int64(2000), pool.Payout(1000, decimal.NewFromFloat(2.0)))
	assert.Equal(t, int64(1100), pool.Payout(1000, decimal.NewFromFloat(1.1)))
	// 333 * 1.33 = 442.89 -> 442
	assert.Equal(t, int64(442), pool.Payout(333, decimal.NewFromFloat(1.33)))
}
