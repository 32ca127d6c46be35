package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"kyatlotto/internal/auth"
	"kyatlotto/internal/lottery"
)

type config struct {
	DatabaseURL       string
	Port              string
	BotToken          string
	JWTSecret         string
	JWTTTL            time.Duration
	AdminToken        string
	AdminChatID       int64
	FrontendURL       string
	NotifyEnabled     bool
	AuthMaxAge        time.Duration
	SchedulerInterval string
	Lottery           lottery.Config
}

// newViper reads an optional config.yaml from the working directory or
// ./configs. Environment variables take precedence over the file.
func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("configs")
	v.AutomaticEnv()

	v.SetDefault("PORT", "3000")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("JWT_TTL", auth.DefaultTokenTTL.String())
	v.SetDefault("AUTH_MAX_AGE", auth.DefaultMaxAge.String())
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("NOTIFY_ENABLED", true)
	v.SetDefault("ROUND_DURATION_MINUTES", int(lottery.DefaultRoundDuration/time.Minute))
	v.SetDefault("MIN_BET", lottery.DefaultMinBet)
	v.SetDefault("PAYOUT_PERCENT", lottery.DefaultPayoutPercent)
	v.SetDefault("SCHEDULER_INTERVAL", lottery.DefaultSchedulerInterval)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

func loadConfig(v *viper.Viper) (config, error) {
	dbURL := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if dbURL == "" {
		user := strings.TrimSpace(v.GetString("DB_USER"))
		password := strings.TrimSpace(v.GetString("DB_PASSWORD"))
		name := strings.TrimSpace(v.GetString("DB_NAME"))
		if user == "" || password == "" || name == "" {
			return config{}, errors.New("DATABASE_URL or DB_USER/DB_PASSWORD/DB_NAME are required")
		}
		dbURL = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			strings.TrimSpace(v.GetString("DB_HOST")),
			strings.TrimSpace(v.GetString("DB_PORT")),
			user,
			password,
			name,
			strings.TrimSpace(v.GetString("DB_SSLMODE")),
		)
	}

	botToken := strings.TrimSpace(v.GetString("TELEGRAM_BOT_TOKEN"))
	if botToken == "" {
		return config{}, errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	jwtSecret := strings.TrimSpace(v.GetString("JWT_SECRET"))
	if jwtSecret == "" {
		return config{}, errors.New("JWT_SECRET is required")
	}

	roundMinutes := v.GetInt("ROUND_DURATION_MINUTES")
	if roundMinutes <= 0 {
		return config{}, fmt.Errorf("ROUND_DURATION_MINUTES must be positive, got %d", roundMinutes)
	}
	percent := v.GetInt64("PAYOUT_PERCENT")
	if percent <= 0 || percent > 100 {
		return config{}, fmt.Errorf("PAYOUT_PERCENT must be in 1..100, got %d", percent)
	}

	jwtTTL, err := durationSetting(v, "JWT_TTL")
	if err != nil {
		return config{}, err
	}
	authMaxAge, err := durationSetting(v, "AUTH_MAX_AGE")
	if err != nil {
		return config{}, err
	}

	return config{
		DatabaseURL:       dbURL,
		Port:              strings.TrimSpace(v.GetString("PORT")),
		BotToken:          botToken,
		JWTSecret:         jwtSecret,
		JWTTTL:            jwtTTL,
		AdminToken:        strings.TrimSpace(v.GetString("ADMIN_TOKEN")),
		AdminChatID:       v.GetInt64("ADMIN_CHAT_ID"),
		FrontendURL:       strings.TrimSpace(v.GetString("FRONTEND_URL")),
		NotifyEnabled:     v.GetBool("NOTIFY_ENABLED"),
		AuthMaxAge:        authMaxAge,
		SchedulerInterval: strings.TrimSpace(v.GetString("SCHEDULER_INTERVAL")),
		Lottery: lottery.Config{
			RoundDuration: time.Duration(roundMinutes) * time.Minute,
			MinBet:        v.GetInt64("MIN_BET"),
			PayoutPercent: percent,
		},
	}, nil
}

// durationSetting reads key as a Go duration ("24h") or a whole number of
// seconds ("86400"). Anything under one second is rejected.
func durationSetting(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%s must be positive, got %q", key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("%s must be at least 1s, got %s", key, d)
	}
	return d, nil
}
