package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"rabbitluck-bot/internal/api"
	"rabbitluck-bot/internal/balance"
	"rabbitluck-bot/internal/bot"
	"rabbitluck-bot/internal/config"
	"rabbitluck-bot/internal/database"
	"rabbitluck-bot/internal/ledger"
	"rabbitluck-bot/internal/logger"
	"rabbitluck-bot/internal/metrics"
	"rabbitluck-bot/internal/referral"
	"rabbitluck-bot/internal/resolver"
	"rabbitluck-bot/internal/toncenter"
	"rabbitluck-bot/internal/worker"

	"github.com/mymmrac/telego"
)

func main() {
	// Load Configuration
	cfg := config.LoadConfig()

	log := logger.Setup(logger.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to Database
	db, err := database.ConnectPostgres(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to database")
	}

	// Connect to Redis
	rdb, err := database.ConnectRedis(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to redis")
	}
	defer rdb.Close()

	m := metrics.Default()
	orders := ledger.New(db)
	counters := balance.NewStore(rdb)

	chain := toncenter.NewClient(cfg.TonCenterURL, cfg.TonCenterKey, cfg.TonCenterRPS)
	chain.Metrics = m
	res := resolver.New(chain, cfg.ResolverAttempts, cfg.ResolverDelay, log.WithField("component", "resolver"))

	reconciler, err := worker.NewReconciler(worker.ReconcilerConfig{
		Ledger:         orders,
		Resolver:       res,
		Chain:          chain,
		Balances:       counters,
		TokenAddress:   cfg.TokenAddress,
		ConversionRate: cfg.ConversionRate,
		DetailLimit:    cfg.DetailLimit,
		MatchMode:      cfg.DestinationMode,
		MaxAttempts:    cfg.OrderMaxAttempts,
		MaxAge:         cfg.OrderMaxAge,
		Metrics:        m,
		Log:            log,
	})
	if err != nil {
		log.WithError(err).Fatal("Could not build reconciler")
	}
	balanceSync := worker.NewBalanceSync(orders, counters, log)
	// Counters must exist before anything increments them.
	if err := balanceSync.SyncOnce(ctx); err != nil {
		log.WithError(err).Warn("Initial balance sync incomplete")
	}
	referrals := referral.NewEngine(orders, counters, nil, m, log)

	var tgBot *bot.Bot
	if cfg.BotToken != "" {
		tgBot, err = bot.NewBot(cfg.BotToken, referrals, bot.Options{
			PlayURL:        cfg.BotPlayURL,
			PhotoURL:       cfg.BotPhotoURL,
			CampaignsURL:   cfg.BotCampaignsURL,
			SupportContact: cfg.BotSupportContact,
		}, log, telego.WithDiscardLogger())
		if err != nil {
			log.WithError(err).Fatal("Could not create bot")
		}
		referrals.Premium = tgBot
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN is empty, chat surface disabled")
	}

	server, err := api.NewServer(api.Config{
		Ledger:       orders,
		Counters:     counters,
		Referrals:    referrals,
		AllowedCIDRs: cfg.APIAllowedCIDRs,
		Log:          log,
	})
	if err != nil {
		log.WithError(err).Fatal("Could not build http server")
	}

	var wg sync.WaitGroup
	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			log.WithField("worker", name).Debug("stopped")
		}()
	}

	run("reconciler", func() {
		worker.NewScheduler("reconciler", cfg.ReconcileInterval, reconciler.ReconcileOnce, log).Start(ctx)
	})
	run("balance_sync", func() {
		worker.NewScheduler("balance_sync", cfg.BalanceSyncInterval, balanceSync.SyncOnce, log).Start(ctx)
	})
	run("http", func() {
		if err := server.Run(ctx, cfg.HTTPAddr); err != nil {
			log.WithError(err).Error("http server stopped")
			stop()
		}
	})
	if tgBot != nil {
		run("bot", func() {
			if err := tgBot.Start(ctx); err != nil {
				log.WithError(err).Error("bot stopped")
			}
		})
	}

	log.Info("Service started successfully")
	<-ctx.Done()
	log.Info("Shutting down")
	wg.Wait()
}
