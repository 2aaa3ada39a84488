// Package pool computes pari-mutuel payout multipliers.
//
// The pool has no house margin: winners split the whole pot in proportion
// to how outnumbered their side was when they bet. All functions here are
// pure; pool totals come from the caller, freshly read from the store.
package pool

import "github.com/shopspring/decimal"

// Engine derives fair multipliers from live pool totals. The constants are
// configuration because the game's revisions never agreed on them.
type Engine struct {
	neutral   decimal.Decimal // quoted when both pools are empty
	emptySide decimal.Decimal // quoted for the first bet on an empty side
	floor     decimal.Decimal // minimum multiplier, keeps every win profitable
}

// NewEngine creates a pool engine with the given multiplier constants.
func NewEngine(neutral, emptySide, floor decimal.Decimal) *Engine {
	return &Engine{neutral: neutral, emptySide: emptySide, floor: floor}
}

// FairMultiplier quotes the payout multiplier for a side holding chosen
// coins against a side holding opposite coins. The caller passes pre-bet
// totals: the wager being quoted is not part of chosen yet.
func (e *Engine) FairMultiplier(chosen, opposite int64) decimal.Decimal {
	if chosen == 0 && opposite == 0 {
		return e.neutral
	}
	if chosen == 0 {
		// First bet on an empty side is rewarded, but capped so an empty
		// pool never quotes an unbounded multiplier.
		return e.emptySide
	}

	total := decimal.NewFromInt(chosen + opposite)
	odd := total.Div(decimal.NewFromInt(chosen)).Round(2)
	if odd.LessThan(e.floor) {
		return e.floor
	}
	return odd
}

// Quote holds both sides' current multipliers plus the pool totals they
// were derived from, for display.
type Quote struct {
	MultiplierA decimal.Decimal
	MultiplierB decimal.Decimal
	TotalA      int64
	TotalB      int64
}

// QuoteSides computes display multipliers for a match's two sides from the
// current pool totals.
func (e *Engine) QuoteSides(totalA, totalB int64) Quote {
	return Quote{
		MultiplierA: e.FairMultiplier(totalA, totalB),
		MultiplierB: e.FairMultiplier(totalB, totalA),
		TotalA:      totalA,
		TotalB:      totalB,
	}
}

// Payout returns the coins credited for a winning wager: the frozen
// multiplier applied to the stake, rounded down to whole coins.
func Payout(amount int64, multiplier decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(multiplier).Floor().IntPart()
}
