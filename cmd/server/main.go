package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"barbershop/backend/internal/cache"
	"barbershop/backend/internal/calendar"
	"barbershop/backend/internal/config"
	"barbershop/backend/internal/events"
	"barbershop/backend/internal/httpapi"
	"barbershop/backend/internal/logging"
	"barbershop/backend/internal/notify"
	"barbershop/backend/internal/service"
	"barbershop/backend/internal/store"
	filestore "barbershop/backend/internal/store/file"
	"barbershop/backend/internal/store/memory"
	mongostore "barbershop/backend/internal/store/mongo"
	pgstore "barbershop/backend/internal/store/postgres"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}
	loc, err := time.LoadLocation(cfg.ShopTimezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.ShopTimezone).Msg("unknown shop timezone")
	}
	deposit, err := decimal.NewFromString(cfg.DepositAmount)
	if err != nil {
		log.Fatal().Err(err).Str("deposit", cfg.DepositAmount).Msg("invalid deposit amount")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 4)

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("repository unavailable")
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	busyCache := cache.BusyCache(cache.NoopBusyCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisBusyCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, busy feed will not be cached")
		} else {
			busyCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Str("addr", cfg.RedisAddr).Msg("cache: redis")
		}
	} else {
		log.Info().Msg("cache: noop")
	}

	bridge := calendar.Bridge(calendar.NewNoopBridge())
	if cfg.CalendarURL != "" {
		bridge = calendar.NewHTTPBridge(cfg.CalendarURL, time.Duration(cfg.CalendarTimeoutSeconds)*time.Second)
		log.Info().Msg("calendar: http bridge")
	} else {
		log.Info().Msg("calendar: disabled")
	}

	publisher := events.Publisher(events.NewNoopPublisher())
	if brokers := events.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(brokers, cfg.KafkaTopicPrefix)
		publisher = kafkaPublisher
		closers = append(closers, kafkaPublisher.Close)
		log.Info().Strs("brokers", brokers).Msg("events: kafka")
	} else {
		log.Info().Msg("events: noop")
	}

	svc := service.New(repo, bridge, busyCache, publisher, service.Options{
		Location:     loc,
		DedupeWindow: time.Duration(cfg.BookingDedupeSeconds) * time.Second,
		BusyCacheTTL: time.Duration(cfg.BusyCacheTTLSeconds) * time.Second,
		Composer: notify.Composer{
			ShopName:    cfg.ShopName,
			ShopPhone:   cfg.ShopPhone,
			CountryCode: cfg.PhoneCountryCode,
			Deposit:     deposit,
			Location:    loc,
		},
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ShopPassword, cfg.EmployeePassword)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go svc.RunExpirySweeper(sweepCtx, time.Duration(cfg.ExpirySweepSeconds)*time.Second)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("barbershop backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopSweeper()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// openRepository picks the backend: postgres, then mongo, then the JSON file.
// A configured database that cannot be reached is fatal rather than silently
// replaced by local storage.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		log.Info().Msg("repository: postgres")
		return pg, pg.Close, nil
	case cfg.MongoURI != "":
		mg, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo: %w", err)
		}
		log.Info().Str("database", cfg.MongoDatabase).Msg("repository: mongo")
		return mg, mg.Close, nil
	case cfg.InMemory():
		log.Warn().Msg("repository: in-memory, data is lost on restart")
		return memory.New(), nil, nil
	default:
		fs, err := filestore.Open(cfg.DataFile)
		if err != nil {
			return nil, nil, fmt.Errorf("file store: %w", err)
		}
		log.Info().Str("path", cfg.DataFile).Msg("repository: file")
		return fs, nil, nil
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.ShopPassword == "" {
		return fmt.Errorf("SHOP_PASSWORD must be set")
	}
	if err := validatePasswordStrength(cfg.ShopPassword); err != nil {
		return fmt.Errorf("SHOP_PASSWORD is too weak: %w", err)
	}
	if cfg.EmployeePassword != "" {
		if err := validatePasswordStrength(cfg.EmployeePassword); err != nil {
			return fmt.Errorf("EMPLOYEE_PASSWORD is too weak: %w", err)
		}
	}
	return nil
}

// validatePasswordStrength rejects short passwords, single repeated
// characters and a list of well-known defaults.
func validatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("at least 8 characters required")
	}
	known := map[string]bool{
		"password": true, "12345678": true, "123456789": true, "barbershop": true,
		"admin123": true, "qwertyui": true, "11111111": true, "00000000": true,
		"password1": true, "letmein1": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character password not allowed")
	}
	return nil
}
