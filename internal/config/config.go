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
	"github.com/shopspring/decimal"
)

var AppEnv Config

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port           string
	StoreDriver    string
	MongoURI       string
	DBName         string
	DatabaseURL    string
	MemorySeed     string
	JWTSecret      string
	RedisURL       string
	IdempotencyTTL time.Duration
	KafkaBrokers   string
	KafkaTopic     string
	TracingStdout  bool

	CheckoutTimeout     time.Duration
	DeliveryLeadTime    time.Duration
	ShippingFee         decimal.Decimal
	TaxRate             decimal.Decimal
	OrderNumberAttempts int
}

// Load reads .env (when present) and the process environment into AppEnv.
func Load() error {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}

	cfg, err := FromEnv()
	if err != nil {
		return err
	}
	AppEnv = cfg
	return nil
}

func FromEnv() (Config, error) {
	shippingFee, err := getDecimalEnv("SHIPPING_FEE", decimal.Zero)
	if err != nil {
		return Config{}, err
	}
	taxRate, err := getDecimalEnv("TAX_RATE", decimal.Zero)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:           getEnvOrDefault("PORT", "8080"),
		StoreDriver:    strings.ToLower(getEnvOrDefault("STORE_DRIVER", DriverMongo)),
		MongoURI:       getEnvOrDefault("MONGO_URI", ""),
		DBName:         getEnvOrDefault("DB_NAME", "orderengine"),
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", ""),
		MemorySeed:     getEnvOrDefault("MEMORY_SEED", ""),
		JWTSecret:      getEnvOrDefault("JWT_SECRET", ""),
		RedisURL:       getEnvOrDefault("REDIS_URL", ""),
		IdempotencyTTL: getDurationEnv("IDEMPOTENCY_TTL", 24, time.Hour),
		KafkaBrokers:   getEnvOrDefault("KAFKA_BROKERS", ""),
		KafkaTopic:     getEnvOrDefault("KAFKA_ORDER_TOPIC", "orders.created"),
		TracingStdout:  getBoolEnv("TRACING_STDOUT"),

		CheckoutTimeout:     getDurationEnv("CHECKOUT_TIMEOUT", 10, time.Second),
		DeliveryLeadTime:    getDurationEnv("DELIVERY_LEAD_DAYS", 7, 24*time.Hour),
		ShippingFee:         shippingFee,
		TaxRate:             taxRate,
		OrderNumberAttempts: getIntEnv("ORDER_NUMBER_ATTEMPTS", 5),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.ShippingFee.IsNegative() {
		errs = append(errs, errors.New("SHIPPING_FEE must not be negative"))
	}
	if c.TaxRate.IsNegative() {
		errs = append(errs, errors.New("TAX_RATE must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}

func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && parsed
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
