package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port            int
	BaseURL         string // used for returning absolute short URLs
	ShutdownTimeout time.Duration
	StaticDir       string // prebuilt dashboard bundle, optional
	CORSOrigins     []string
	LogLevel        string

	DBDriver     string // sqlite | postgres
	DBDSN        string
	AutoMigrate  bool
	CachePrewarm int

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RecentCacheTTL time.Duration

	RabbitMQURL   string
	ClickExchange string

	GeoIPPath     string
	StatsTimezone string
	CountryTopN   int

	SlugLength   int
	SlugAttempts int

	JWTSecret   string
	TokenTTL    time.Duration
	TOTPIssuer  string
	TOTPAccount string

	CreateRateRPS   float64
	CreateRateBurst int
	LoginRateRPS    float64
	LoginRateBurst  int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func getbool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getlist(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads .env (if present) into the process environment and builds the
// config from it. Variables already set in the environment win over .env.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("load .env")
	}

	return Config{
		Port:            getint("PORT", 8080),
		BaseURL:         getenv("BASE_URL", ""),
		ShutdownTimeout: getduration("SHUTDOWN_TIMEOUT", 10*time.Second),
		StaticDir:       getenv("STATIC_DIR", ""),
		CORSOrigins:     getlist("CORS_ORIGINS", []string{"*"}),
		LogLevel:        getenv("LOG_LEVEL", "info"),

		DBDriver:     strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBDSN:        getenv("DB_DSN", "file:linkpulse.db?_foreign_keys=on"),
		AutoMigrate:  getbool("AUTO_MIGRATE", true),
		CachePrewarm: getint("CACHE_PREWARM", 100),

		RedisAddr:      getenv("REDIS_ADDR", ""),
		RedisPassword:  getenv("REDIS_PASSWORD", ""),
		RedisDB:        getint("REDIS_DB", 0),
		RecentCacheTTL: getduration("RECENT_CACHE_TTL", 30*time.Second),

		RabbitMQURL:   getenv("RABBITMQ_URL", ""),
		ClickExchange: getenv("CLICK_EXCHANGE", "linkpulse.clicks"),

		GeoIPPath:     getenv("GEOIP_DB", ""),
		StatsTimezone: getenv("STATS_TIMEZONE", "Asia/Kolkata"),
		CountryTopN:   getint("COUNTRY_TOP_N", 7),

		SlugLength:   getint("SLUG_LENGTH", 6),
		SlugAttempts: getint("SLUG_ATTEMPTS", 10),

		JWTSecret:   getenv("JWT_SECRET", ""),
		TokenTTL:    getduration("TOKEN_TTL", 24*time.Hour),
		TOTPIssuer:  getenv("TOTP_ISSUER", "LinkPulse"),
		TOTPAccount: getenv("TOTP_ACCOUNT", "admin"),

		CreateRateRPS:   getfloat("CREATE_RATE_RPS", 2.0),
		CreateRateBurst: getint("CREATE_RATE_BURST", 5),
		LoginRateRPS:    getfloat("LOGIN_RATE_RPS", 0.2),
		LoginRateBurst:  getint("LOGIN_RATE_BURST", 5),
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("DB_DSN is required")
	}
	if _, err := time.LoadLocation(c.StatsTimezone); err != nil {
		return fmt.Errorf("STATS_TIMEZONE: %w", err)
	}
	if c.SlugLength < 4 {
		return fmt.Errorf("SLUG_LENGTH must be at least 4, got %d", c.SlugLength)
	}
	if c.SlugAttempts < 1 {
		return fmt.Errorf("SLUG_ATTEMPTS must be positive, got %d", c.SlugAttempts)
	}
	if c.CountryTopN < 1 {
		return fmt.Errorf("COUNTRY_TOP_N must be positive, got %d", c.CountryTopN)
	}
	return nil
}
