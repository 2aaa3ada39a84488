// Package bot is the chat command surface for the betting game.
//
// telegram.go - command dispatch over Telegram long polling. All game
// rules live in the betting and matches packages; this layer only parses
// commands, checks who is allowed to run the admin ones and renders
// results.
package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/FelipePaivaVale/BOTCC/internal/betting"
	"github.com/FelipePaivaVale/BOTCC/internal/config"
	"github.com/FelipePaivaVale/BOTCC/internal/matches"
)

// Bot handles Telegram interactions for the betting game
type Bot struct {
	api     *tgbotapi.BotAPI
	cfg     *config.Config
	bets    *betting.Service
	matches *matches.Manager
	stopCh  chan struct{}
}

// New creates the Telegram bot front end.
func New(cfg *config.Config, bets *betting.Service, manager *matches.Manager) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot connected")

	return &Bot{
		api:     api,
		cfg:     cfg,
		bets:    bets,
		matches: manager,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start begins the bot's command listener
func (b *Bot) Start() {
	go b.listenForCommands()
}

// Stop stops the bot
func (b *Bot) Stop() {
	close(b.stopCh)
}

func (b *Bot) listenForCommands() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				go b.handleMessage(update.Message)
			}
			if update.CallbackQuery != nil {
				go b.handleCallback(update.CallbackQuery)
			}
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if b.cfg.AllowedChatID != 0 && chatID != b.cfg.AllowedChatID {
		return
	}
	if !msg.IsCommand() {
		return
	}

	userID := msg.From.ID
	args := msg.CommandArguments()

	log.Debug().
		Int64("chat_id", chatID).
		Int64("user_id", userID).
		Str("command", msg.Command()).
		Msg("Received command")

	switch msg.Command() {
	case "start", "help":
		b.cmdHelp(chatID)
	case "register":
		b.cmdRegister(chatID, userID, displayName(msg.From))
	case "balance":
		b.cmdBalance(chatID, userID)
	case "bet":
		b.cmdBet(chatID, userID, args)
	case "odds":
		b.cmdOdds(chatID)
	case "mybets":
		b.cmdMyBets(chatID, userID)
	case "history":
		b.cmdHistory(chatID, args)
	case "rank":
		b.cmdRank(chatID, userID, args)
	case "daily":
		b.cmdDaily(chatID, userID)
	case "startmatch":
		b.cmdStartMatch(chatID, userID, args)
	case "finish":
		b.cmdFinish(chatID, userID, args)
	case "cancelmatch":
		b.cmdCancelMatch(chatID, userID, args)
	default:
		b.sendText(chatID, "❓ Unknown command. Use /help for available commands.")
	}
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	data := cb.Data

	log.Debug().
		Int64("chat_id", chatID).
		Str("data", data).
		Msg("Received callback")

	b.api.Request(tgbotapi.NewCallback(cb.ID, ""))

	// Destructive cancel goes through an explicit confirm step. Only the
	// admin who can issue /cancelmatch can confirm it.
	switch {
	case strings.HasPrefix(data, "cancel_confirm:"):
		if !b.cfg.IsAdmin(cb.From.ID) {
			return
		}
		matchID, err := strconv.ParseInt(strings.TrimPrefix(data, "cancel_confirm:"), 10, 64)
		if err != nil {
			return
		}
		b.confirmCancel(chatID, matchID)
	case strings.HasPrefix(data, "cancel_abort:"):
		if !b.cfg.IsAdmin(cb.From.ID) {
			return
		}
		b.sendText(chatID, "Cancellation aborted.")
	}
}

// Commands

func (b *Bot) cmdHelp(chatID int64) {
	text := `🎲 *Betting Game Commands*

*Getting started:*
/register - Join the game and receive your starting coins
/balance - Your coins, bets and win rate
/daily - Claim free daily coins

*Betting:*
/bet <side> <amount> - Wager coins on a side of an open match
/odds - Live multipliers for every open match
/mybets - Your pending bets

*Standings:*
/rank [limit] - Leaderboard of richest players
/history [limit] - Recently finished matches

*Admin:*
/startmatch <sideA> <sideB> - Open a new match
/finish <match> <winner> - Declare the winner and pay out
/cancelmatch <match> - Cancel a match and refund all bets`

	b.sendMarkdown(chatID, text)
}

func (b *Bot) cmdRegister(chatID, userID int64, name string) {
	account, err := b.bets.Register(userID, name)
	if err != nil {
		if errors.Is(err, betting.ErrAlreadyRegistered) {
			b.sendText(chatID, "You are already registered!")
			return
		}
		b.sendFailure(chatID, err)
		return
	}
	b.sendText(chatID, fmt.Sprintf("🎉 %s, you are registered and received %d coins!", name, account.Balance))
}

func (b *Bot) cmdBalance(chatID, userID int64) {
	account, stats, err := b.bets.Profile(userID)
	if err != nil {
		if errors.Is(err, betting.ErrNotRegistered) {
			b.sendText(chatID, "You are not registered. Use /register first.")
			return
		}
		b.sendFailure(chatID, err)
		return
	}

	winRate := 0.0
	if stats.TotalBets > 0 {
		winRate = float64(stats.Wins) / float64(stats.TotalBets) * 100
	}

	text := fmt.Sprintf(`💰 *Profile: %s*

🪙 *Balance:* %d coins
🎰 *Total wagered:* %d coins

*Performance:*
├ Bets: %d
├ Wins: %d
└ Win rate: %.1f%%`,
		escapeMarkdown(account.Name),
		account.Balance,
		stats.TotalWagered,
		stats.TotalBets,
		stats.Wins,
		winRate,
	)

	b.sendMarkdown(chatID, text)
}

func (b *Bot) cmdBet(chatID, userID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.sendText(chatID, "⚠️ Usage: /bet <side> <amount>")
		return
	}
	side := fields[0]
	amount, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		b.sendText(chatID, "⚠️ Amount must be a whole number of coins.")
		return
	}

	// A side name belongs to at most one open match, so the side alone
	// identifies the match.
	matchID, side, found, err := b.resolveSide(side)
	if err != nil {
		b.sendFailure(chatID, err)
		return
	}
	if !found {
		b.sendText(chatID, "No open match has that side. Use /odds to see open matches.")
		return
	}

	multiplier, err := b.bets.PlaceBet(userID, matchID, side, amount)
	if err != nil {
		switch {
		case errors.Is(err, betting.ErrMatchNotOpen):
			b.sendText(chatID, "That match is no longer open.")
		case errors.Is(err, betting.ErrInvalidSide):
			b.sendText(chatID, "Invalid side. Pick one of the match's two sides.")
		case errors.Is(err, betting.ErrNotRegistered):
			b.sendText(chatID, "You are not registered. Use /register first.")
		case errors.Is(err, betting.ErrInvalidAmount):
			b.sendText(chatID, "The amount must be positive.")
		case errors.Is(err, betting.ErrInsufficientBalance):
			b.sendText(chatID, "Insufficient balance!")
		default:
			b.sendFailure(chatID, err)
		}
		return
	}

	b.sendText(chatID, fmt.Sprintf("✅ Bet of %d coins on %s registered! Multiplier: %sx", amount, side, multiplier.String()))
}

func (b *Bot) cmdOdds(chatID int64) {
	quotes, err := b.matches.ListOpen()
	if err != nil {
		b.sendFailure(chatID, err)
		return
	}
	if len(quotes) == 0 {
		b.sendText(chatID, "No open matches right now!")
		return
	}

	var sb strings.Builder
	sb.WriteString("📊 *Open Matches*\n\n")
	for _, q := range quotes {
		sb.WriteString(fmt.Sprintf(`*Match %d: %s vs %s*
🔵 %s: %sx
🔴 %s: %sx
💸 Pool: %d coins

`,
			q.Match.ID,
			escapeMarkdown(q.Match.SideA), escapeMarkdown(q.Match.SideB),
			escapeMarkdown(q.Match.SideA), q.Quote.MultiplierA.String(),
			escapeMarkdown(q.Match.SideB), q.Quote.MultiplierB.String(),
			q.Quote.TotalA+q.Quote.TotalB,
		))
	}
	sb.WriteString("Use /bet <side> <amount> to join.")

	b.sendMarkdown(chatID, sb.String())
}

func (b *Bot) cmdMyBets(chatID, userID int64) {
	views, err := b.bets.MyBets(userID)
	if err != nil {
		b.sendFailure(chatID, err)
		return
	}
	if len(views) == 0 {
		b.sendText(chatID, "You have no pending bets.")
		return
	}

	var sb strings.Builder
	sb.WriteString("🎟 *Your Pending Bets*\n\n")
	for _, v := range views {
		sb.WriteString(fmt.Sprintf(`*Match %d: %s vs %s*
├ Side: %s
├ Stake: %d coins
└ Multiplier: %sx

`,
			v.Match.ID,
			escapeMarkdown(v.Match.SideA), escapeMarkdown(v.Match.SideB),
			escapeMarkdown(v.Bet.Side),
			v.Bet.Amount,
			v.Bet.Multiplier.String(),
		))
	}

	b.sendMarkdown(chatID, sb.String())
}

func (b *Bot) cmdHistory(chatID int64, args string) {
	limit := 5
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil {
		limit = n
	}

	history, err := b.matches.History(limit)
	if err != nil {
		b.sendFailure(chatID, err)
		return
	}
	if len(history) == 0 {
		b.sendText(chatID, "No finished matches yet!")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🕘 *Last %d Matches*\n\n", len(history)))
	for _, match := range history {
		when := ""
		if match.FinalizedAt != nil {
			when = match.FinalizedAt.Format("2006-01-02")
		}
		sb.WriteString(fmt.Sprintf("*Match %d:* %s vs %s\n└ Winner: %s (%s)\n\n",
			match.ID,
			escapeMarkdown(match.SideA), escapeMarkdown(match.SideB),
			escapeMarkdown(match.Winner), when,
		))
	}

	b.sendMarkdown(chatID, sb.String())
}

func (b *Bot) cmdRank(chatID, userID int64, args string) {
	limit := 10
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil {
		limit = n
	}
	if limit < 1 || limit > 20 {
		b.sendText(chatID, "Please pick a limit between 1 and 20.")
		return
	}

	accounts, err := b.bets.Leaderboard(limit)
	if err != nil {
		b.sendFailure(chatID, err)
		return
	}
	if len(accounts) == 0 {
		b.sendText(chatID, "Nobody is registered yet!")
		return
	}

	medals := []string{"🥇", "🥈", "🥉"}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🏆 *Top %d Players*\n\n", len(accounts)))
	for i, account := range accounts {
		prefix := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			prefix = medals[i]
		}
		sb.WriteString(fmt.Sprintf("%s %s — %d coins\n", prefix, escapeMarkdown(account.Name), account.Balance))
	}

	if balance, err := b.bets.Balance(userID); err == nil {
		sb.WriteString(fmt.Sprintf("\n_Your balance: %d coins_", balance))
	}

	b.sendMarkdown(chatID, sb.String())
}

func (b *Bot) cmdDaily(chatID, userID int64) {
	amount, err := b.bets.GrantDaily(userID)
	if err != nil {
		switch {
		case errors.Is(err, betting.ErrNotRegistered):
			b.sendText(chatID, "You need to /register first.")
		case errors.Is(err, betting.ErrAlreadyGranted):
			b.sendText(chatID, "⏳ You already claimed your daily coins. Come back tomorrow!")
		default:
			b.sendFailure(chatID, err)
		}
		return
	}

	balance, _ := b.bets.Balance(userID)
	b.sendText(chatID, fmt.Sprintf("🎉 Daily claim complete! +%d coins. Balance: %d coins.", amount, balance))
}

// Admin commands

func (b *Bot) cmdStartMatch(chatID, userID int64, args string) {
	if !b.cfg.IsAdmin(userID) {
		b.sendText(chatID, "❌ Only admins can start matches.")
		return
	}

	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.sendText(chatID, "⚠️ Usage: /startmatch <sideA> <sideB>")
		return
	}

	match, err := b.matches.StartMatch(fields[0], fields[1])
	if err != nil {
		switch {
		case errors.Is(err, matches.ErrBadSides):
			b.sendText(chatID, "A match needs two distinct side names.")
		case errors.Is(err, matches.ErrDuplicateSide):
			b.sendText(chatID, "One of those sides already has an open match!")
		default:
			b.sendFailure(chatID, err)
		}
		return
	}

	text := fmt.Sprintf(`🏆 *NEW MATCH!*

*Match %d:* %s vs %s

Bet with /bet <side> <amount>`,
		match.ID, escapeMarkdown(match.SideA), escapeMarkdown(match.SideB))
	b.sendMarkdown(chatID, text)
}

func (b *Bot) cmdFinish(chatID, userID int64, args string) {
	if !b.cfg.IsAdmin(userID) {
		b.sendText(chatID, "❌ Only admins can finish matches.")
		return
	}

	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.sendText(chatID, "⚠️ Usage: /finish <match> <winner>")
		return
	}
	matchID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		b.sendText(chatID, "⚠️ Match id must be a number.")
		return
	}

	settlement, err := b.matches.Finalize(matchID, fields[1])
	if err != nil {
		switch {
		case errors.Is(err, matches.ErrMatchNotFound):
			b.sendText(chatID, fmt.Sprintf("Match %d not found.", matchID))
		case errors.Is(err, matches.ErrMatchNotOpen):
			b.sendText(chatID, "That match is already settled.")
		case errors.Is(err, matches.ErrInvalidSide):
			b.sendText(chatID, "The winner must be one of the match's sides.")
		default:
			b.sendFailure(chatID, err)
		}
		return
	}

	b.sendText(chatID, fmt.Sprintf("🏁 %s won match %d! Paid %d coins to %d winner(s).",
		settlement.Match.Winner, matchID, settlement.TotalOut, settlement.Winners))
}

func (b *Bot) cmdCancelMatch(chatID, userID int64, args string) {
	if !b.cfg.IsAdmin(userID) {
		b.sendText(chatID, "❌ Only admins can cancel matches.")
		return
	}

	matchID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		b.sendText(chatID, "⚠️ Usage: /cancelmatch <match>")
		return
	}

	match, err := b.matches.Get(matchID)
	if err != nil {
		if errors.Is(err, matches.ErrMatchNotFound) {
			b.sendText(chatID, fmt.Sprintf("Match %d not found.", matchID))
			return
		}
		b.sendFailure(chatID, err)
		return
	}

	text := fmt.Sprintf(`⚠️ *CONFIRM CANCELLATION*

Match %d: %s vs %s
Every bet on it will be refunded. This cannot be undone.`,
		match.ID, escapeMarkdown(match.SideA), escapeMarkdown(match.SideB))

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", fmt.Sprintf("cancel_confirm:%d", matchID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Abort", fmt.Sprintf("cancel_abort:%d", matchID)),
		),
	)

	b.sendMarkdownWithKeyboard(chatID, text, keyboard)
}

func (b *Bot) confirmCancel(chatID, matchID int64) {
	cancellation, err := b.matches.Cancel(matchID)
	if err != nil {
		switch {
		case errors.Is(err, matches.ErrMatchNotFound):
			b.sendText(chatID, fmt.Sprintf("Match %d not found.", matchID))
		case errors.Is(err, matches.ErrMatchNotOpen):
			b.sendText(chatID, "That match is already settled.")
		default:
			b.sendFailure(chatID, err)
		}
		return
	}

	b.sendText(chatID, fmt.Sprintf("✅ Match %d cancelled. Refunded %d coins across %d bet(s).",
		matchID, cancellation.TotalOut, cancellation.Refunded))
}

// Helpers

// resolveSide finds the open match owning a side label.
func (b *Bot) resolveSide(side string) (int64, string, bool, error) {
	quotes, err := b.matches.ListOpen()
	if err != nil {
		return 0, "", false, err
	}
	for _, q := range quotes {
		if strings.EqualFold(q.Match.SideA, side) {
			return q.Match.ID, q.Match.SideA, true, nil
		}
		if strings.EqualFold(q.Match.SideB, side) {
			return q.Match.ID, q.Match.SideB, true, nil
		}
	}
	return 0, "", false, nil
}

func (b *Bot) sendFailure(chatID int64, err error) {
	log.Error().Err(err).Msg("Command failed")
	b.sendText(chatID, "❌ Something went wrong. Try again in a moment.")
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMarkdownWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}

func displayName(user *tgbotapi.User) string {
	if user.UserName != "" {
		return user.UserName
	}
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	return name
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
