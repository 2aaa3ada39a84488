// Package betting admits wagers and owns the account side of the coin
// ledger: registration, balances, stats and the daily grant.
package betting

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/FelipePaivaVale/BOTCC/internal/config"
	"github.com/FelipePaivaVale/BOTCC/internal/database"
	"github.com/FelipePaivaVale/BOTCC/internal/pool"
)

// Service validates and admits wagers against the ledger store.
type Service struct {
	store  *database.Database
	engine *pool.Engine
	cfg    *config.Config
}

// NewService creates a betting service.
func NewService(store *database.Database, engine *pool.Engine, cfg *config.Config) *Service {
	return &Service{store: store, engine: engine, cfg: cfg}
}

// Register creates an account with the configured starting balance.
func (s *Service) Register(accountID int64, name string) (*database.Account, error) {
	unlock := s.store.LockAccount(accountID)
	defer unlock()

	if _, err := s.store.GetAccount(accountID); err == nil {
		return nil, ErrAlreadyRegistered
	} else if !database.IsNotFound(err) {
		return nil, fmt.Errorf("register: %w", err)
	}

	account := &database.Account{ID: accountID, Name: name}
	err := s.store.Transaction(func(tx *database.Database) error {
		if err := tx.CreateAccount(account); err != nil {
			return err
		}
		return tx.Credit(accountID, s.cfg.StartingBalance, database.EntryRegister, 0)
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	account.Balance = s.cfg.StartingBalance
	log.Info().Int64("account", accountID).Str("name", name).Msg("Account registered")
	return account, nil
}

// Balance returns the account's current balance.
func (s *Service) Balance(accountID int64) (int64, error) {
	account, err := s.store.GetAccount(accountID)
	if err != nil {
		if database.IsNotFound(err) {
			return 0, ErrNotRegistered
		}
		return 0, fmt.Errorf("balance: %w", err)
	}
	return account.Balance, nil
}

// Profile returns the account together with its lifetime betting stats.
func (s *Service) Profile(accountID int64) (*database.Account, *database.AccountStats, error) {
	account, err := s.store.GetAccount(accountID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, nil, ErrNotRegistered
		}
		return nil, nil, fmt.Errorf("profile: %w", err)
	}
	stats, err := s.store.GetAccountStats(accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("profile stats: %w", err)
	}
	return account, stats, nil
}

// PlaceBet validates and admits one wager. The multiplier is computed from
// the pre-bet pool totals and frozen on the bet record; the debit and the
// record are one store transaction, held under the match and account locks
// so no settlement or competing debit interleaves.
func (s *Service) PlaceBet(accountID, matchID int64, side string, amount int64) (decimal.Decimal, error) {
	unlockMatch := s.store.LockMatch(matchID)
	defer unlockMatch()
	unlockAccount := s.store.LockAccount(accountID)
	defer unlockAccount()

	match, err := s.store.GetMatch(matchID)
	if err != nil {
		if database.IsNotFound(err) {
			return decimal.Zero, ErrMatchNotOpen
		}
		return decimal.Zero, fmt.Errorf("place bet: %w", err)
	}
	if match.Status != database.MatchOpen {
		return decimal.Zero, ErrMatchNotOpen
	}
	if !match.Side(side) {
		return decimal.Zero, ErrInvalidSide
	}
	if _, err := s.store.GetAccount(accountID); err != nil {
		if database.IsNotFound(err) {
			return decimal.Zero, ErrNotRegistered
		}
		return decimal.Zero, fmt.Errorf("place bet: %w", err)
	}
	if amount <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	totals, err := s.store.PoolTotals(matchID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("place bet pool: %w", err)
	}
	multiplier := s.engine.FairMultiplier(totals[side], totals[match.Opposite(side)])

	err = s.store.Transaction(func(tx *database.Database) error {
		ok, err := tx.DebitIfSufficient(accountID, amount, database.EntryBet, matchID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientBalance
		}
		return tx.CreateBet(&database.Bet{
			AccountID:  accountID,
			MatchID:    matchID,
			Side:       side,
			Amount:     amount,
			Multiplier: multiplier,
		})
	})
	if err != nil {
		return decimal.Zero, err
	}

	log.Info().
		Int64("account", accountID).
		Int64("match", matchID).
		Str("side", side).
		Int64("amount", amount).
		Str("multiplier", multiplier.String()).
		Msg("Bet admitted")
	return multiplier, nil
}

// BetView is a pending bet joined with its match for display.
type BetView struct {
	Bet   database.Bet
	Match database.Match
}

// MyBets lists the account's pending bets. Settled bets are consumed at
// settlement; their outcome lives in the journal.
func (s *Service) MyBets(accountID int64) ([]BetView, error) {
	bets, err := s.store.BetsByAccount(accountID)
	if err != nil {
		return nil, fmt.Errorf("my bets: %w", err)
	}
	views := make([]BetView, 0, len(bets))
	for _, bet := range bets {
		match, err := s.store.GetMatch(bet.MatchID)
		if err != nil {
			if database.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("my bets: %w", err)
		}
		views = append(views, BetView{Bet: bet, Match: *match})
	}
	return views, nil
}

// Leaderboard returns the richest accounts. limit is clamped to 1..20.
func (s *Service) Leaderboard(limit int) ([]database.Account, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 20 {
		limit = 20
	}
	accounts, err := s.store.TopAccounts(limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return accounts, nil
}

// GrantDaily credits the configured daily amount, once per calendar day.
func (s *Service) GrantDaily(accountID int64) (int64, error) {
	unlock := s.store.LockAccount(accountID)
	defer unlock()

	if _, err := s.store.GetAccount(accountID); err != nil {
		if database.IsNotFound(err) {
			return 0, ErrNotRegistered
		}
		return 0, fmt.Errorf("daily grant: %w", err)
	}

	now := time.Now()
	grant, err := s.store.GetDailyGrant(accountID)
	switch {
	case err == nil:
		if sameDay(grant.LastGrant, now) {
			return 0, ErrAlreadyGranted
		}
	case database.IsNotFound(err):
		grant = &database.DailyGrant{AccountID: accountID}
	default:
		return 0, fmt.Errorf("daily grant: %w", err)
	}

	grant.LastGrant = now
	grant.TotalGranted += s.cfg.DailyGrant

	err = s.store.Transaction(func(tx *database.Database) error {
		if err := tx.Credit(accountID, s.cfg.DailyGrant, database.EntryDaily, 0); err != nil {
			return err
		}
		return tx.SaveDailyGrant(grant)
	})
	if err != nil {
		return 0, fmt.Errorf("daily grant: %w", err)
	}

	log.Info().Int64("account", accountID).Int64("amount", s.cfg.DailyGrant).Msg("Daily grant claimed")
	return s.cfg.DailyGrant, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
