package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/roniherschmann/linkpulse/internal/auth"
	"github.com/roniherschmann/linkpulse/internal/cache"
	"github.com/roniherschmann/linkpulse/internal/config"
	"github.com/roniherschmann/linkpulse/internal/core"
	"github.com/roniherschmann/linkpulse/internal/events"
	"github.com/roniherschmann/linkpulse/internal/geo"
	httpapi "github.com/roniherschmann/linkpulse/internal/http"
	"github.com/roniherschmann/linkpulse/internal/store"
)

func main() {
	// Fast JSON logs by default; pretty if running in a TTY/dev
	if isatty() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}
	zerolog.DefaultContextLogger = &log.Logger

	cfg := config.Load()

	var dsnFlag string
	flag.StringVar(&dsnFlag, "dsn", "", "database DSN (overrides env DB_DSN)")
	flag.Parse()
	if dsnFlag != "" {
		cfg.DBDSN = dsnFlag
	}

	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	st, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open store")
	}
	defer st.Close()

	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrate schema")
		}
	}

	var resolver geo.Resolver = geo.Nop{}
	if cfg.GeoIPPath != "" {
		mm, err := geo.OpenMaxMind(cfg.GeoIPPath)
		if err != nil {
			log.Warn().Err(err).Msg("geoip disabled")
		} else {
			defer mm.Close()
			resolver = mm
		}
	}

	var recent cache.Recent = cache.NewMemory(cfg.RecentCacheTTL)
	if cfg.RedisAddr != "" {
		client, err := cache.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using in-process cache")
		} else {
			defer client.Close()
			recent = cache.NewRedis(client, cfg.RecentCacheTTL)
		}
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.RabbitMQURL != "" {
		pub, err := events.DialAMQP(cfg.RabbitMQURL, cfg.ClickExchange)
		if err != nil {
			log.Warn().Err(err).Msg("click events disabled")
		} else {
			defer pub.Close()
			publisher = pub
		}
	}

	loc, _ := time.LoadLocation(cfg.StatsTimezone)
	svc := core.NewService(st, resolver, recent, publisher, core.Options{
		SlugLength:   cfg.SlugLength,
		SlugAttempts: cfg.SlugAttempts,
		CountryTopN:  cfg.CountryTopN,
		Location:     loc,
	})

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = randomSecret()
		log.Warn().Msg("JWT_SECRET not set; tokens will not survive a restart")
	}
	authSvc := auth.NewService(st, auth.Options{
		Issuer:    cfg.TOTPIssuer,
		Account:   cfg.TOTPAccount,
		JWTSecret: secret,
		TokenTTL:  cfg.TokenTTL,
	})

	// Prewarm cache
	if n := cfg.CachePrewarm; n > 0 {
		if err := svc.PrewarmCache(ctx, n); err != nil {
			log.Warn().Err(err).Msg("cache prewarm")
		}
	}

	// HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpapi.NewRouter(cfg, svc, authSvc),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.Port).Str("driver", cfg.DBDriver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("bye")
}

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.DBDriver == "postgres" {
		pg, err := store.OpenPostgres(cfg.DBDSN, cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	db, err := sql.Open("sqlite3", cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	// Connection pool tuning
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return store.NewSQLite(db), nil
}

func randomSecret() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msg("generate jwt secret")
	}
	return []byte(hex.EncodeToString(b))
}

func isatty() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
