// Command cashbot runs the cash-flow accounting Telegram bot over a
// Google Sheets ledger.
//
// Usage:
//
//	cashbot                  run the bot (config.yaml + env)
//	cashbot --config path    run with an explicit config file
//	cashbot setup            first-run terminal configuration wizard
//
// Required configuration (yaml or env): telegram_token / TELEGRAM_TOKEN,
// spreadsheet_id / SPREADSHEET_ID, credentials_file /
// GOOGLE_CREDENTIALS_FILE.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ivmorgun/cashbot/config"
	"github.com/ivmorgun/cashbot/internal/journal"
	"github.com/ivmorgun/cashbot/internal/services/dialog"
	"github.com/ivmorgun/cashbot/internal/services/funds"
	"github.com/ivmorgun/cashbot/internal/services/sheets"
	"github.com/ivmorgun/cashbot/internal/setup"
	"github.com/ivmorgun/cashbot/internal/telegram"
	"github.com/ivmorgun/cashbot/pkg/retrier"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	configPath := flag.String("config", "", "path to yaml config")
	flag.Parse()

	cfg, err := config.Get(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := sheets.NewClient(ctx, cfg.CredentialsFile, cfg.SpreadsheetID, cfg.RequestTimeout)
	if err != nil {
		logger.Fatal("sheets client init failed", zap.Error(err))
	}

	retry := retrier.New(retrier.WithRetryIf(sheets.TransientError))
	ledger := sheets.NewLedger(client, sheets.NewCache(cfg.CacheTTL), retry, logger)

	rules, err := funds.NewRuleStore(cfg.FundRulesPath, logger)
	if err != nil {
		logger.Fatal("fund rules init failed", zap.Error(err))
	}
	distributor := funds.NewDistributor(ledger, rules, logger)

	opJournal, err := journal.New(cfg.JournalDir)
	if err != nil {
		logger.Fatal("operation journal init failed", zap.Error(err))
	}
	defer opJournal.Close()

	bot := telegram.NewBot(cfg.TelegramToken, logger)
	sessions := dialog.NewMemoryStore(dialog.DefaultSessionTTL)
	machine := dialog.NewMachine(bot, ledger, distributor, rules, opJournal, sessions, logger)
	router := telegram.NewRouter(machine, cfg.AllowedUserIDs, logger)

	logger.Info("cashbot started",
		zap.String("spreadsheet", cfg.SpreadsheetID),
		zap.Int("allowed_users", len(cfg.AllowedUserIDs)))

	if err := bot.Run(ctx, router.Dispatch); err != nil && ctx.Err() == nil {
		logger.Fatal("bot stopped", zap.Error(err))
	}
	logger.Info("cashbot stopped")
}
