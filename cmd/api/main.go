package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"kyatlotto/internal/api"
	"kyatlotto/internal/auth"
	"kyatlotto/internal/lottery"
	"kyatlotto/internal/notify"
	"kyatlotto/internal/store"
)

type notifier interface {
	api.Notifier
	lottery.Notifier
}

func newNotifier(cfg config, logger *log.Logger) notifier {
	if !cfg.NotifyEnabled {
		return notify.Nop{}
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Printf("telegram notifications disabled: %v", err)
		return notify.Nop{}
	}
	logger.Printf("telegram notifications via @%s", bot.Self.UserName)
	return notify.NewTelegram(bot, cfg.AdminChatID, logger)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}

	v, err := newViper()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	cfg, err := loadConfig(v)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	logger := log.New(os.Stdout, "", log.LstdFlags)
	if cfg.AdminToken == "" {
		logger.Printf("ADMIN_TOKEN is not set; admin routes will reject every request")
	}

	st := store.New(pool)
	notifications := newNotifier(cfg, logger)

	lot := lottery.NewService(st, cfg.Lottery, logger, lottery.WithNotifier(notifications))
	authn := auth.NewAuthenticator(cfg.BotToken, cfg.AuthMaxAge, st, auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL))

	if _, err := lot.ActiveRound(ctx); err != nil {
		log.Fatalf("open active round: %v", err)
	}

	sched, err := lottery.NewScheduler(lot, cfg.SchedulerInterval, logger)
	if err != nil {
		log.Fatalf("scheduler error: %v", err)
	}
	sched.Start()

	srv := api.NewServer(st, lot, authn, cfg.AdminToken, logger,
		api.WithNotifier(notifications),
		api.WithAllowedOrigins(cfg.FrontendURL),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	sched.Stop(ctxShutdown)
}
