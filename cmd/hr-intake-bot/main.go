// Command hr-intake-bot runs the HR intake Telegram bot: the conversation,
// the staff-channel cards with their Bitrix24 cases, and the HTTP surface
// (webhook, ops API, /health, /metrics).
//
// Usage:
//
//	hr-intake-bot [--env-file .env.dev] [--transport poll|webhook]
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/hr-intake-bot/internal/bitrix"
	"github.com/tbourn/hr-intake-bot/internal/bot"
	"github.com/tbourn/hr-intake-bot/internal/config"
	"github.com/tbourn/hr-intake-bot/internal/conversation"
	httpapi "github.com/tbourn/hr-intake-bot/internal/http"
	"github.com/tbourn/hr-intake-bot/internal/i18n"
	"github.com/tbourn/hr-intake-bot/internal/observability"
	"github.com/tbourn/hr-intake-bot/internal/repo"
	"github.com/tbourn/hr-intake-bot/internal/services"
	"github.com/tbourn/hr-intake-bot/internal/store"
	"github.com/tbourn/hr-intake-bot/internal/sysutil"
	"github.com/tbourn/hr-intake-bot/internal/telegram"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = ""

const (
	purgeEvery      = time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var envFile, transport string
	flags := pflag.NewFlagSet("hr-intake-bot", pflag.ContinueOnError)
	flags.StringVar(&envFile, "env-file", ".env.dev", "dotenv file loaded before the environment is read")
	flags.StringVar(&transport, "transport", "", "update delivery, poll or webhook (overrides TRANSPORT_MODE)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	if transport != "" {
		_ = os.Setenv("TRANSPORT_MODE", transport)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	sysutil.SetupLogger(os.Stderr, cfg.LogPretty, cfg.OTEL.ServiceName)
	sysutil.SetLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dep := observability.Deployment{
		Version:    sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev"),
		Transport:  cfg.Telegram.Transport,
		BitrixMode: string(cfg.Bitrix.Mode),
	}
	observability.RecordBuildInfo(dep)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, dep)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("update log: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("update log migrate: %w", err)
	}

	if cfg.Bitrix.WebhookBase == "" {
		log.Warn().Msg("BITRIX_WEBHOOK_BASE is empty; cards are posted without backend cases")
	}
	bridge, err := bitrix.New(bitrix.Config{
		BaseURL:      cfg.Bitrix.WebhookBase,
		Mode:         cfg.Bitrix.Mode,
		EntityTypeID: cfg.Bitrix.EntityTypeID,
		CategoryID:   cfg.Bitrix.CategoryID,
		StageID:      cfg.Bitrix.StageID,
		TaskTimeout:  cfg.Bitrix.TaskTimeout,
		CRMTimeout:   cfg.Bitrix.CRMTimeout,
		RPS:          cfg.Bitrix.RPS,
		Burst:        cfg.Bitrix.Burst,
	})
	if err != nil {
		return err
	}

	catalog := i18n.Default()
	st := store.New(store.Options{
		Prefix:          cfg.Intake.IDPrefix,
		HistoryCapacity: cfg.Intake.ExportLookback,
		IndexCapacity:   cfg.Intake.IndexCapacity,
	})
	tg := telegram.New(cfg.Telegram.APIBase, cfg.Telegram.Token, cfg.Telegram.Timeout)

	submissions := &services.SubmissionService{
		Store:         st,
		Bridge:        bridge,
		Channel:       tg,
		Catalog:       catalog,
		StaffChatID:   cfg.Telegram.SupportChatID,
		ResponsibleID: cfg.Bitrix.ResponsibleID,
		StaffLang:     cfg.Intake.StaffLang,
	}
	status := &services.StatusService{
		Store:       st,
		Bridge:      bridge,
		Channel:     tg,
		Catalog:     catalog,
		StaffChatID: cfg.Telegram.SupportChatID,
		StaffLang:   cfg.Intake.StaffLang,
	}
	reports := &services.ReportService{Store: st, Catalog: catalog, Lang: cfg.Intake.StaffLang}

	engine := conversation.NewEngine(catalog, &bot.ChatMessenger{API: tg}, submissions)
	dispatcher := &bot.Dispatcher{
		API:       tg,
		Engine:    engine,
		Status:    status,
		Reports:   reports,
		Catalog:   catalog,
		DB:        db,
		DedupTTL:  cfg.DedupTTL,
		AdminIDs:  cfg.Telegram.AdminIDs,
		StaffLang: cfg.Intake.StaffLang,
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	deps := httpapi.Deps{Reports: reports, DB: db}
	if cfg.Telegram.Transport == config.TransportWebhook {
		deps.Dispatcher = dispatcher
	}
	httpapi.RegisterRoutes(router, deps, cfg)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("transport", cfg.Telegram.Transport).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		purgeLoop(gctx, db)
		return nil
	})

	switch cfg.Telegram.Transport {
	case config.TransportWebhook:
		if err := registerWebhook(ctx, tg, cfg.Telegram); err != nil {
			stop()
			_ = g.Wait()
			return err
		}
	default:
		poller := &bot.Poller{
			API:     tg,
			Handler: dispatcher,
			Timeout: cfg.Telegram.PollTimeout,
		}
		g.Go(func() error {
			log.Info().Dur("timeout", cfg.Telegram.PollTimeout).Msg("long polling started")
			return poller.Run(gctx)
		})
	}

	err = g.Wait()
	log.Info().Msg("shutdown complete")
	return err
}

// registerWebhook points Telegram at WEBHOOK_URL + WEBHOOK_PATH. Without a
// public URL the webhook is assumed to be registered out of band.
func registerWebhook(ctx context.Context, tg *telegram.Client, tc config.TelegramConfig) error {
	if tc.WebhookURL == "" {
		log.Warn().Msg("WEBHOOK_URL is empty; skipping setWebhook")
		return nil
	}
	url := tc.WebhookURL + tc.WebhookPath
	if err := tg.SetWebhook(ctx, url, tc.WebhookSecret); err != nil {
		return fmt.Errorf("setWebhook: %w", err)
	}
	log.Info().Str("path", tc.WebhookPath).Msg("webhook registered")
	return nil
}

// purgeLoop drops expired update-log records until ctx is cancelled.
func purgeLoop(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(purgeEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpired(ctx, db, now)
			if err != nil {
				log.Warn().Err(err).Msg("update log purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("update log purged")
			}
		}
	}
}
