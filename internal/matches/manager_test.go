package matches_test

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FelipePaivaVale/BOTCC/internal/betting"
	"github.com/FelipePaivaVale/BOTCC/internal/config"
	"github.com/FelipePaivaVale/BOTCC/internal/database"
	"github.com/FelipePaivaVale/BOTCC/internal/matches"
	"github.com/FelipePaivaVale/BOTCC/internal/pool"
)

func newFixture(t *testing.T) (*matches.Manager, *betting.Service, *database.Database) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	cfg := &config.Config{
		StartingBalance:     5000,
		DailyGrant:          1000,
		NeutralMultiplier:   decimal.NewFromFloat(1.5),
		EmptySideMultiplier: decimal.NewFromFloat(2.0),
		MinMultiplier:       decimal.NewFromFloat(1.1),
	}
	engine := pool.NewEngine(cfg.NeutralMultiplier, cfg.EmptySideMultiplier, cfg.MinMultiplier)
	return matches.NewManager(db, engine), betting.NewService(db, engine, cfg), db
}

func TestStartMatch_Validation(t *testing.T) {
	mgr, _, _ := newFixture(t)

	_, err := mgr.StartMatch("", "Blue")
	assert.ErrorIs(t, err, matches.ErrBadSides)
	_, err = mgr.StartMatch("Red", "Red")
	assert.ErrorIs(t, err, matches.ErrBadSides)
}

func TestStartMatch_DuplicateSideInOpenMatch(t *testing.T) {
	mgr, _, _ := newFixture(t)

	_, err := mgr.StartMatch("Red", "Blue")
	require.NoError(t, err)

	_, err = mgr.StartMatch("Red", "Green")
	assert.ErrorIs(t, err, matches.ErrDuplicateSide)
	_, err = mgr.StartMatch("Green", "Blue")
	assert.ErrorIs(t, err, matches.ErrDuplicateSide)

	// Distinct sides are fine, several matches may run at once.
	_, err = mgr.StartMatch("Green", "Yellow")
	require.NoError(t, err)
}

func TestStartMatch_SideFreeAgainAfterFinalize(t *testing.T) {
	mgr, _, _ := newFixture(t)

	match, err := mgr.StartMatch("Red", "Blue")
	require.NoError(t, err)
	_, err = mgr.Finalize(match.ID, "Red")
	require.NoError(t, err)

	_, err = mgr.StartMatch("Red", "Blue")
	assert.NoError(t, err, "finalized matches do not hold their side labels")
}

// The end-to-end scenario: register with 5000 coins, bet 1000 on Red with
// an empty pool opposite (2.0 quote), win, end at 6000.
func TestFinalize_EndToEnd(t *testing.T) {
	mgr, svc, _ := newFixture(t)

	_, err := svc.Register(1, "alice")
	require.NoError(t, err)

	match, err := mgr.StartMatch("Red", "Blue")
	require.NoError(t, err)

	mult, err := svc.PlaceBet(1, match.ID, "Red", 1000)
	require.NoError(t, err)
	assert.True(t, mult.Equal(decimal.NewFromFloat(1.5)))

	balance, err := svc.Balance(1)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), balance)

	settlement, err := mgr.Finalize(match.ID, "Red")
	require.NoError(t, err)
	assert.Equal(t, 1, settlement.Winners)
	assert.Equal(t, int64(1500), settlement.TotalOut)
	assert.Equal(t, database.MatchFinalized, settlement.Match.Status)
	assert.Equal(t, "Red", settlement.Match.Winner)

	balance, err = svc.Balance(1)
	require.NoError(t, err)
	assert.Equal(t, int64(5500), balance)

	// Settlement is final: a second call is rejected, nobody is re-paid.
	_, err = mgr.Finalize(match.ID, "Red")
	assert.ErrorIs(t, err, matches.ErrMatchNotOpen)

	balance, err = svc.Balance(1)
	require.NoError(t, err)
	assert.Equal(t, int64(5500), balance)
}

func TestFinalize_PaysFrozenMultiplierFloored(t *testing.T) {
	mgr, svc, _ := newFixture(t)

	_, err := svc.Register(1, "alice")
	require.NoError(t, err)
	_, err = svc.Register(2, "bob")
	require.NoError(t, err)

	match, err := mgr.StartMatch("Red", "Blue")
	require.NoError(t, err)

	// alice seeds Red, bob takes the empty Blue side at the 2.0 cap.
	_, err = svc.PlaceBet(1, match.ID, "Red", 1000)
	require.NoError(t, err)
	mult, err := svc.PlaceBet(2, match.ID, "Blue", 333)
	require.NoError(t, err)
	require.True(t, mult.Equal(decimal.NewFromFloat(2.0)))

	settlement, err := mgr.Finalize(match.ID, "Blue")
	require.NoError(t, err)
	assert.Equal(t, 1, settlement.Winners)
	assert.Equal(t, int64(666), settlement.TotalOut)

	// bob: 5000 - 333 + floor(333*2.0) = 5333
	balance, err := svc.Balance(2)
	require.NoError(t, err)
	assert.Equal(t, int64(5333), balance)

	// alice lost her stake
	balance, err = svc.Balance(1)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), balance)
}

func TestFinalize_Validation(t *testing.T) {
	mgr, _, _ := newFixture(t)

	_, err := mgr.Finalize(42, "Red")
	assert.ErrorIs(t, err, matches.ErrMatchNotFound)

	match, err := mgr.StartMatch("Red", "Blue")
	require.NoError(t, err)

	_, err = mgr.Finalize(match.ID, "Green")
	assert.ErrorIs(t, err, matches.ErrInvalidSide)

	got, err := mgr.Get(match.ID)
	require.NoError(t, err)
	assert.Equal(t, database.MatchOpen, got.Status, "failed finalize mutates nothing")
}

func TestFinalize_ConsumesAllBets(t *testing.T) {
	mgr, svc, db := newFixture(t)

	_, err := svc.Register(1, "alice")
	require.NoError(t, err)
	_, err = svc.Register(2, "bob")
	require.NoError(t, err)

	match, err := mgr.StartMatch("Red", "Blue")
	require.NoError(t, err)
	_, err = svc.PlaceBet(1, match.ID, "Red", 500)
	require.NoError(t, err)
	_, err = svc.PlaceBet(2, match.ID, "Blue", 500)
	require.NoError(t, err)

	_, err = mgr.Finalize(match.ID, "Red")
	require.NoError(t, err)

	bets, err := db.BetsByMatch(match.ID)
	require.NoError(t, err)
	assert.Empty(t, bets, "winning and losing bets both consumed")
}

func TestCancel_RefundsRawStakesAndConservesSupply(t *testing.T) {
	mgr, svc, db := newFixture(t)

	_, err := svc.Register(1, "alice")
	require.NoError(t, err)
	_, err = svc.Register(2, "bob")
	require.NoError(t, err)

	supplyBefore, err := db.TotalSupply()
	require.NoError(t, err)

	match, err := mgr.StartMatch("Red", "Blue")
	require.NoError(t, err)
	_, err = svc.PlaceBet(1, match.ID, "Red", 1000)
	require.NoError(t, err)
	_, err = svc.PlaceBet(2, match.ID, "Blue", 250)
	require.NoError(t, err)

	cancellation, err := mgr.Cancel(match.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cancellation.Refunded)
	assert.Equal(t, int64(1250), cancellation.TotalOut)

	// Raw stakes back, multipliers not applied.
	balance, err := svc.Balance(1)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)
	balance, err = svc.Balance(2)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)

	supplyAfter, err := db.TotalSupply()
	require.NoError(t, err)
	assert.Equal(t, supplyBefore, supplyAfter)

	// The match is gone along with its bets.
	_, err = mgr.Get(match.ID)
	assert.ErrorIs(t, err, matches.ErrMatchNotFound)
	bets, err := db.BetsByMatch(match.ID)
	require.NoError(t, err)
	assert.Empty(t, bets)
}

func TestCancel_Validation(t *testing.T) {
	mgr, _, _ := newFixture(t)

	_, err := mgr.Cancel(42)
	assert.ErrorIs(t, err, matches.ErrMatchNotFound)

	match, err := mgr.StartMatch("Red", "Blue")
	require.NoError(t, err)
	_, err = mgr.Finalize(match.ID, "Red")
	require.NoError(t, err)

	_, err = mgr.Cancel(match.ID)
	assert.ErrorIs(t, err, matches.ErrMatchNotOpen)
}

func TestPoolQuote(t *testing.T) {
	mgr, svc, _ := newFixture(t)

	_, err := svc.Register(1, "alice")
	require.NoError(t, err)

	match, err := mgr.StartMatch("Red", "Blue")
	require.NoError(t, err)

	quote, err := mgr.PoolQuote(match.ID)
	require.NoError(t, err)
	assert.True(t, quote.Quote.MultiplierA.Equal(decimal.NewFromFloat(1.5)))
	assert.True(t, quote.Quote.MultiplierB.Equal(decimal.NewFromFloat(1.5)))

	_, err = svc.PlaceBet(1, match.ID, "Red", 100)
	require.NoError(t, err)

	quote, err = mgr.PoolQuote(match.ID)
	require.NoError(t, err)
	assert.True(t, quote.Quote.MultiplierA.Equal(decimal.NewFromFloat(1.1)), "loaded side floored")
	assert.True(t, quote.Quote.MultiplierB.Equal(decimal.NewFromFloat(2.0)), "empty side capped")
	assert.Equal(t, int64(100), quote.Quote.TotalA)
	assert.Equal(t, int64(0), quote.Quote.TotalB)
}

func TestListOpenAndHistory(t *testing.T) {
	mgr, _, _ := newFixture(t)

	open, err := mgr.ListOpen()
	require.NoError(t, err)
	assert.Empty(t, open)

	first, err := mgr.StartMatch("Red", "Blue")
	require.NoError(t, err)
	_, err = mgr.StartMatch("Green", "Yellow")
	require.NoError(t, err)

	open, err = mgr.ListOpen()
	require.NoError(t, err)
	assert.Len(t, open, 2)

	_, err = mgr.Finalize(first.ID, "Blue")
	require.NoError(t, err)

	open, err = mgr.ListOpen()
	require.NoError(t, err)
	assert.Len(t, open, 1)

	history, err := mgr.History(5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, "Blue", history[0].Winner)
	assert.NotNil(t, history[0].FinalizedAt)
}
