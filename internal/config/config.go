package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Destination match modes for the reconciler.
const (
	MatchAccepted = "accepted"
	MatchLast     = "last"
)

type Config struct {
	DBUser     string
	DBPassword string
	DBName     string
	DBHost     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	BotToken          string
	BotPlayURL        string
	BotPhotoURL       string
	BotCampaignsURL   string
	BotSupportContact string

	TonCenterURL    string
	TonCenterKey    string
	TonCenterRPS    float64
	TokenAddress    string
	ConversionRate  int64
	DestinationMode string

	ResolverAttempts int
	ResolverDelay    time.Duration
	DetailLimit      int

	ReconcileInterval   time.Duration
	BalanceSyncInterval time.Duration
	OrderMaxAttempts    int
	OrderMaxAge         time.Duration

	HTTPAddr        string
	APIAllowedCIDRs []string

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return &Config{
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "tbooks"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		BotToken:          getEnv("TELEGRAM_BOT_TOKEN", ""),
		BotPlayURL:        getEnv("BOT_PLAY_URL", "https://t.me/rabbitluckbot/admin?startapp=pop4"),
		BotPhotoURL:       getEnv("BOT_PHOTO_URL", ""),
		BotCampaignsURL:   getEnv("BOT_CAMPAIGNS_URL", "https://t.me/rabbitluckbot/admin"),
		BotSupportContact: getEnv("BOT_SUPPORT_CONTACT", "https://t.me/Rabbitlucksupportbot"),

		TonCenterURL:    getEnv("TONCENTER_API_URL", "https://toncenter.com"),
		TonCenterKey:    getEnv("TONCENTER_API_KEY", ""),
		TonCenterRPS:    getEnvFloat("TONCENTER_RPS", 1),
		TokenAddress:    getEnv("TON_TOKEN_ADDRESS", "0:C9179592448CE934A2FC8E11DF08EA0F2EFE8238A8DD4A40F11104826686F471"),
		ConversionRate:  int64(getEnvInt("POINTS_CONVERSION_RATE", 5000)),
		DestinationMode: getEnv("DESTINATION_MATCH_MODE", MatchAccepted),

		ResolverAttempts: getEnvInt("RESOLVER_MAX_ATTEMPTS", 60),
		ResolverDelay:    getEnvDuration("RESOLVER_DELAY", time.Second),
		DetailLimit:      getEnvInt("TX_DETAIL_LIMIT", 128),

		ReconcileInterval:   getEnvDuration("RECONCILE_INTERVAL", 10*time.Second),
		BalanceSyncInterval: getEnvDuration("BALANCE_SYNC_INTERVAL", 5*time.Second),
		OrderMaxAttempts:    getEnvInt("ORDER_MAX_ATTEMPTS", 0),
		OrderMaxAge:         getEnvDuration("ORDER_MAX_AGE", 0),

		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		APIAllowedCIDRs: getEnvList("API_ALLOWED_CIDRS"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 10),
	}
}

// Validate reports settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ConversionRate <= 0 {
		errs = append(errs, fmt.Errorf("POINTS_CONVERSION_RATE must be positive, got %d", c.ConversionRate))
	}
	if c.ResolverAttempts <= 0 {
		errs = append(errs, fmt.Errorf("RESOLVER_MAX_ATTEMPTS must be positive, got %d", c.ResolverAttempts))
	}
	if c.ResolverDelay < 0 {
		errs = append(errs, fmt.Errorf("RESOLVER_DELAY must not be negative, got %s", c.ResolverDelay))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, fmt.Errorf("RECONCILE_INTERVAL must be positive, got %s", c.ReconcileInterval))
	}
	if c.BalanceSyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("BALANCE_SYNC_INTERVAL must be positive, got %s", c.BalanceSyncInterval))
	}
	if c.TonCenterRPS <= 0 {
		errs = append(errs, fmt.Errorf("TONCENTER_RPS must be positive, got %v", c.TonCenterRPS))
	}
	if c.DestinationMode != MatchAccepted && c.DestinationMode != MatchLast {
		errs = append(errs, fmt.Errorf("DESTINATION_MATCH_MODE must be %q or %q, got %q", MatchAccepted, MatchLast, c.DestinationMode))
	}
	if strings.TrimSpace(c.TokenAddress) == "" {
		errs = append(errs, errors.New("TON_TOKEN_ADDRESS is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return value
}

func getEnvFloat(key string, fallback float64) float64 {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		log.Printf("Invalid %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return value
}

func getEnvList(key string) []string {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
