package database

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is the single source of truth for accounts, matches and bets.
// Components never cache balances or pool totals across calls.
type Database struct {
	db           *gorm.DB
	accountLocks *lockMap
	matchLocks   *lockMap
}

// Match lifecycle states. A cancelled match is deleted outright, so only
// these two are ever persisted.
const (
	MatchOpen      = "open"
	MatchFinalized = "finalized"
)

// Journal entry kinds, one per way coins can move.
const (
	EntryRegister = "register"
	EntryBet      = "bet"
	EntryPayout   = "payout"
	EntryRefund   = "refund"
	EntryDaily    = "daily"
)

// Models

type Account struct {
	ID        int64 `gorm:"primaryKey"` // externally assigned chat user id
	Name      string
	Balance   int64 `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Match struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	SideA       string `gorm:"index"`
	SideB       string `gorm:"index"`
	Status      string `gorm:"index"`
	Winner      string
	FinalizedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Side reports whether label is one of the match's two sides.
func (m *Match) Side(label string) bool {
	return label == m.SideA || label == m.SideB
}

// Opposite returns the other side's label.
func (m *Match) Opposite(label string) string {
	if label == m.SideA {
		return m.SideB
	}
	return m.SideA
}

// Bet is one admitted wager. The multiplier is frozen at admission time and
// never recomputed. Rows are consumed exactly once at settlement.
type Bet struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	AccountID  int64  `gorm:"index"`
	MatchID    int64  `gorm:"index"`
	Side       string `gorm:"index"`
	Amount     int64
	Multiplier decimal.Decimal `gorm:"type:decimal(10,2)"`
	CreatedAt  time.Time
}

type DailyGrant struct {
	AccountID    int64 `gorm:"primaryKey"`
	LastGrant    time.Time
	TotalGranted int64
	UpdatedAt    time.Time
}

// LedgerEntry is an append-only journal row, one per balance movement.
type LedgerEntry struct {
	Ref       string `gorm:"primaryKey"`
	AccountID int64  `gorm:"index"`
	MatchID   int64  `gorm:"index"` // 0 for movements not tied to a match
	Kind      string `gorm:"index"`
	Delta     int64  // signed coin movement
	CreatedAt time.Time
}

// New opens the database at dbPath and migrates the schema. A postgres://
// DSN selects PostgreSQL, anything else is treated as a SQLite file path.
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&Account{}, &Match{}, &Bet{}, &DailyGrant{}, &LedgerEntry{}); err != nil {
		return nil, err
	}

	return &Database{
		db:           db,
		accountLocks: newLockMap(),
		matchLocks:   newLockMap(),
	}, nil
}

// Transaction runs fn inside a store transaction. The Database handed to fn
// shares the lock maps with the parent so nested locking keeps working.
func (d *Database) Transaction(fn func(tx *Database) error) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx, accountLocks: d.accountLocks, matchLocks: d.matchLocks})
	})
}

// LockAccount serializes read-modify-write sections on one account.
// The returned func releases the lock.
func (d *Database) LockAccount(accountID int64) func() {
	return d.accountLocks.lock(accountID)
}

// LockMatch serializes bet admission against lifecycle transitions on one
// match.
func (d *Database) LockMatch(matchID int64) func() {
	return d.matchLocks.lock(matchID)
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// Account operations

func (d *Database) CreateAccount(account *Account) error {
	return d.db.Create(account).Error
}

func (d *Database) GetAccount(id int64) (*Account, error) {
	var account Account
	err := d.db.First(&account, "id = ?", id).Error
	return &account, err
}

// TopAccounts returns up to limit accounts ordered by balance, richest
// first.
func (d *Database) TopAccounts(limit int) ([]Account, error) {
	var accounts []Account
	err := d.db.Order("balance DESC").Limit(limit).Find(&accounts).Error
	return accounts, err
}

// Credit atomically adds amount to the account's balance and journals the
// movement. amount must be positive.
func (d *Database) Credit(accountID, amount int64, kind string, matchID int64) error {
	res := d.db.Model(&Account{}).
		Where("id = ?", accountID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return d.journal(accountID, matchID, kind, amount)
}

// DebitIfSufficient atomically subtracts amount from the account's balance,
// but only if the balance covers it. Returns false when it does not. The
// conditional update is what keeps two racing debits from both passing a
// stale balance check.
func (d *Database) DebitIfSufficient(accountID, amount int64, kind string, matchID int64) (bool, error) {
	res := d.db.Model(&Account{}).
		Where("id = ? AND balance >= ?", accountID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := d.journal(accountID, matchID, kind, -amount); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Database) journal(accountID, matchID int64, kind string, delta int64) error {
	return d.db.Create(&LedgerEntry{
		Ref:       uuid.New().String(),
		AccountID: accountID,
		MatchID:   matchID,
		Kind:      kind,
		Delta:     delta,
		CreatedAt: time.Now(),
	}).Error
}

// Match operations

func (d *Database) CreateMatch(match *Match) error {
	return d.db.Create(match).Error
}

func (d *Database) GetMatch(id int64) (*Match, error) {
	var match Match
	err := d.db.First(&match, "id = ?", id).Error
	return &match, err
}

func (d *Database) SaveMatch(match *Match) error {
	return d.db.Save(match).Error
}

func (d *Database) DeleteMatch(id int64) error {
	return d.db.Delete(&Match{}, "id = ?", id).Error
}

func (d *Database) OpenMatches() ([]Match, error) {
	var matches []Match
	err := d.db.Where("status = ?", MatchOpen).Order("id").Find(&matches).Error
	return matches, err
}

func (d *Database) FinalizedMatches(limit int) ([]Match, error) {
	var matches []Match
	err := d.db.Where("status = ?", MatchFinalized).Order("id DESC").Limit(limit).Find(&matches).Error
	return matches, err
}

// Bet operations

func (d *Database) CreateBet(bet *Bet) error {
	return d.db.Create(bet).Error
}

func (d *Database) BetsByMatch(matchID int64) ([]Bet, error) {
	var bets []Bet
	err := d.db.Where("match_id = ?", matchID).Order("id").Find(&bets).Error
	return bets, err
}

func (d *Database) BetsByMatchSide(matchID int64, side string) ([]Bet, error) {
	var bets []Bet
	err := d.db.Where("match_id = ? AND side = ?", matchID, side).Order("id").Find(&bets).Error
	return bets, err
}

func (d *Database) BetsByAccount(accountID int64) ([]Bet, error) {
	var bets []Bet
	err := d.db.Where("account_id = ?", accountID).Order("id DESC").Find(&bets).Error
	return bets, err
}

func (d *Database) DeleteBetsByMatch(matchID int64) error {
	return d.db.Delete(&Bet{}, "match_id = ?", matchID).Error
}

// PoolTotals recomputes the wagered sum per side for a match from its bet
// rows. Sides with no bets are absent from the map.
func (d *Database) PoolTotals(matchID int64) (map[string]int64, error) {
	type sideTotal struct {
		Side  string
		Total int64
	}
	var rows []sideTotal
	err := d.db.Model(&Bet{}).
		Select("side, COALESCE(SUM(amount), 0) as total").
		Where("match_id = ?", matchID).
		Group("side").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int64, len(rows))
	for _, row := range rows {
		totals[row.Side] = row.Total
	}
	return totals, nil
}

// Daily grant operations

func (d *Database) GetDailyGrant(accountID int64) (*DailyGrant, error) {
	var grant DailyGrant
	err := d.db.First(&grant, "account_id = ?", accountID).Error
	return &grant, err
}

func (d *Database) SaveDailyGrant(grant *DailyGrant) error {
	grant.UpdatedAt = time.Now()
	return d.db.Save(grant).Error
}

// Journal operations

// AccountStats aggregates an account's betting activity from the journal.
// Bet rows are consumed at settlement, so lifetime numbers live here.
type AccountStats struct {
	TotalBets    int64
	TotalWagered int64
	Wins         int64
}

func (d *Database) GetAccountStats(accountID int64) (*AccountStats, error) {
	stats := &AccountStats{}

	err := d.db.Model(&LedgerEntry{}).
		Where("account_id = ? AND kind = ?", accountID, EntryBet).
		Count(&stats.TotalBets).Error
	if err != nil {
		return nil, err
	}

	var wagered struct {
		Total int64
	}
	err = d.db.Model(&LedgerEntry{}).
		Select("COALESCE(-SUM(delta), 0) as total").
		Where("account_id = ? AND kind = ?", accountID, EntryBet).
		Scan(&wagered).Error
	if err != nil {
		return nil, err
	}
	stats.TotalWagered = wagered.Total

	err = d.db.Model(&LedgerEntry{}).
		Where("account_id = ? AND kind = ?", accountID, EntryPayout).
		Count(&stats.Wins).Error
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// RecentEntries returns the newest journal rows for an account.
func (d *Database) RecentEntries(accountID int64, limit int) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := d.db.Where("account_id = ?", accountID).
		Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// TotalSupply sums every account balance. Used by tests to check that
// settlement and cancellation conserve coins.
func (d *Database) TotalSupply() (int64, error) {
	var result struct {
		Total int64
	}
	err := d.db.Model(&Account{}).Select("COALESCE(SUM(balance), 0) as total").Scan(&result).Error
	return result.Total, err
}
