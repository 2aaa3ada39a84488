// Package matches owns the match state machine: open matches accept bets,
// finalize pays the winning pool and cancel refunds everyone. Both exits
// are terminal and consume the match's bet records exactly once.
package matches

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/FelipePaivaVale/BOTCC/internal/database"
	"github.com/FelipePaivaVale/BOTCC/internal/pool"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	ErrMatchNotOpen  = errors.New("match is not open")
	ErrInvalidSide   = errors.New("side is not part of this match")
	ErrDuplicateSide = errors.New("side already has an open match")
	ErrBadSides      = errors.New("match needs two distinct side names")
)

// Manager drives match lifecycle transitions. Authorization is the
// caller's problem: whoever invokes Finalize or Cancel is trusted.
type Manager struct {
	store  *database.Database
	engine *pool.Engine

	// serializes the duplicate-side check in StartMatch
	startMu sync.Mutex
}

// NewManager creates a match lifecycle manager.
func NewManager(store *database.Database, engine *pool.Engine) *Manager {
	return &Manager{store: store, engine: engine}
}

// StartMatch opens a new match between two sides. A side name may appear
// in at most one open match at a time.
func (m *Manager) StartMatch(sideA, sideB string) (*database.Match, error) {
	sideA = strings.TrimSpace(sideA)
	sideB = strings.TrimSpace(sideB)
	if sideA == "" || sideB == "" || sideA == sideB {
		return nil, ErrBadSides
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()

	open, err := m.store.OpenMatches()
	if err != nil {
		return nil, fmt.Errorf("start match: %w", err)
	}
	for _, existing := range open {
		if existing.Side(sideA) || existing.Side(sideB) {
			return nil, ErrDuplicateSide
		}
	}

	match := &database.Match{SideA: sideA, SideB: sideB, Status: database.MatchOpen}
	if err := m.store.CreateMatch(match); err != nil {
		return nil, fmt.Errorf("start match: %w", err)
	}

	log.Info().Int64("match", match.ID).Str("side_a", sideA).Str("side_b", sideB).Msg("Match started")
	return match, nil
}

// Settlement summarizes a finalized match.
type Settlement struct {
	Match    database.Match
	Winners  int
	TotalOut int64
}

// Finalize marks the winner, pays every winning bet its frozen multiplier
// and consumes all bet records. The whole settlement runs under the match
// lock, so no bet can be admitted against a match mid-settlement, and a
// second Finalize sees the flipped state and is rejected rather than
// paying twice.
func (m *Manager) Finalize(matchID int64, winner string) (*Settlement, error) {
	unlock := m.store.LockMatch(matchID)
	defer unlock()

	match, err := m.store.GetMatch(matchID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("finalize: %w", err)
	}
	if match.Status != database.MatchOpen {
		return nil, ErrMatchNotOpen
	}
	if !match.Side(winner) {
		return nil, ErrInvalidSide
	}

	settlement := &Settlement{}
	err = m.store.Transaction(func(tx *database.Database) error {
		winning, err := tx.BetsByMatchSide(matchID, winner)
		if err != nil {
			return err
		}
		for _, bet := range winning {
			payout := pool.Payout(bet.Amount, bet.Multiplier)
			if err := tx.Credit(bet.AccountID, payout, database.EntryPayout, matchID); err != nil {
				return err
			}
			settlement.Winners++
			settlement.TotalOut += payout
		}

		now := time.Now()
		match.Status = database.MatchFinalized
		match.Winner = winner
		match.FinalizedAt = &now
		if err := tx.SaveMatch(match); err != nil {
			return err
		}
		return tx.DeleteBetsByMatch(matchID)
	})
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	settlement.Match = *match
	log.Info().
		Int64("match", matchID).
		Str("winner", winner).
		Int("winners", settlement.Winners).
		Int64("paid_out", settlement.TotalOut).
		Msg("Match finalized")
	return settlement, nil
}

// Cancellation summarizes a cancelled match.
type Cancellation struct {
	Match    database.Match
	Refunded int
	TotalOut int64
}

// Cancel refunds every bet's raw stake, deletes the bets and deletes the
// match. Meant for matches created in error; the command surface is
// expected to confirm before calling since this is irreversible.
func (m *Manager) Cancel(matchID int64) (*Cancellation, error) {
	unlock := m.store.LockMatch(matchID)
	defer unlock()

	match, err := m.store.GetMatch(matchID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("cancel: %w", err)
	}
	if match.Status != database.MatchOpen {
		return nil, ErrMatchNotOpen
	}

	cancellation := &Cancellation{Match: *match}
	err = m.store.Transaction(func(tx *database.Database) error {
		bets, err := tx.BetsByMatch(matchID)
		if err != nil {
			return err
		}
		for _, bet := range bets {
			if err := tx.Credit(bet.AccountID, bet.Amount, database.EntryRefund, matchID); err != nil {
				return err
			}
			cancellation.Refunded++
			cancellation.TotalOut += bet.Amount
		}
		if err := tx.DeleteBetsByMatch(matchID); err != nil {
			return err
		}
		return tx.DeleteMatch(matchID)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}

	log.Info().
		Int64("match", matchID).
		Int("refunded", cancellation.Refunded).
		Int64("returned", cancellation.TotalOut).
		Msg("Match cancelled")
	return cancellation, nil
}

// Get returns a match by id.
func (m *Manager) Get(matchID int64) (*database.Match, error) {
	match, err := m.store.GetMatch(matchID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("get match: %w", err)
	}
	return match, nil
}

// MatchQuote is an open match with its live per-side multipliers.
type MatchQuote struct {
	Match database.Match
	Quote pool.Quote
}

// ListOpen returns every open match with current pool quotes.
func (m *Manager) ListOpen() ([]MatchQuote, error) {
	open, err := m.store.OpenMatches()
	if err != nil {
		return nil, fmt.Errorf("list open: %w", err)
	}
	quotes := make([]MatchQuote, 0, len(open))
	for _, match := range open {
		totals, err := m.store.PoolTotals(match.ID)
		if err != nil {
			return nil, fmt.Errorf("list open pool: %w", err)
		}
		quotes = append(quotes, MatchQuote{
			Match: match,
			Quote: m.engine.QuoteSides(totals[match.SideA], totals[match.SideB]),
		})
	}
	return quotes, nil
}

// PoolQuote returns the live per-side multipliers for one open match.
func (m *Manager) PoolQuote(matchID int64) (*MatchQuote, error) {
	match, err := m.Get(matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != database.MatchOpen {
		return nil, ErrMatchNotOpen
	}
	totals, err := m.store.PoolTotals(matchID)
	if err != nil {
		return nil, fmt.Errorf("pool quote: %w", err)
	}
	quote := m.engine.QuoteSides(totals[match.SideA], totals[match.SideB])
	return &MatchQuote{Match: *match, Quote: quote}, nil
}

// History returns the most recently finalized matches, newest first.
func (m *Manager) History(limit int) ([]database.Match, error) {
	if limit < 1 {
		limit = 5
	}
	history, err := m.store.FinalizedMatches(limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return history, nil
}
