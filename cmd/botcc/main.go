package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/FelipePaivaVale/BOTCC/internal/betting"
	"github.com/FelipePaivaVale/BOTCC/internal/bot"
	"github.com/FelipePaivaVale/BOTCC/internal/config"
	"github.com/FelipePaivaVale/BOTCC/internal/database"
	"github.com/FelipePaivaVale/BOTCC/internal/matches"
	"github.com/FelipePaivaVale/BOTCC/internal/pool"
)

func main() {
	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("BOTCC - coin betting game")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	log.Info().Msg("✅ Ledger store ready")

	engine := pool.NewEngine(cfg.NeutralMultiplier, cfg.EmptySideMultiplier, cfg.MinMultiplier)
	bets := betting.NewService(db, engine, cfg)
	manager := matches.NewManager(db, engine)
	log.Info().
		Str("neutral", cfg.NeutralMultiplier.String()).
		Str("empty_side", cfg.EmptySideMultiplier.String()).
		Str("floor", cfg.MinMultiplier.String()).
		Msg("✅ Pool engine ready")

	tg, err := bot.New(cfg, bets, manager)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start Telegram bot")
	}
	tg.Start()

	log.Info().Int("admins", len(cfg.AdminIDs)).Msg("🚀 Bot running...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("🛑 Shutting down...")
	tg.Stop()
	log.Info().Msg("👋 Goodbye!")
}
