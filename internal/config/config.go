package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Provide(Load, NewCommissionPolicyHolder)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	Commission CommissionConfig
}

// CommissionConfig groups the option-driven knobs of the commission
// engine so they are passed in once at construction instead of being
// looked up ad hoc.
type CommissionConfig struct {
	// MLMEnabled turns the upline cascade on or off. The direct sale
	// commission is always created.
	MLMEnabled bool `mapstructure:"mlmEnabled"`
	// MaxCascadeDepth bounds the upline walk. Depth 1 is the direct
	// affiliate's referrer.
	MaxCascadeDepth int `mapstructure:"maxCascadeDepth"`
	// DefaultRate is the percentage applied when an affiliate has no
	// qualifying tier row.
	DefaultRate float64 `mapstructure:"defaultRate"`
	// LifetimeAttribution links a customer to the affiliate of their
	// first referred purchase and credits later orders to them.
	LifetimeAttribution bool `mapstructure:"lifetimeAttribution"`
	// DebitRatePerSecond and DebitBurst bound metered debit calls per
	// balance when Redis is configured.
	DebitRatePerSecond float64 `mapstructure:"debitRatePerSecond"`
	DebitBurst         int     `mapstructure:"debitBurst"`
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "affina"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "affina"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenvInt("SMTP_PORT", 587),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", "noreply@affina.local"),

		Commission: CommissionConfig{
			MLMEnabled:          getenvBool("COMMISSION_MLM_ENABLED", true),
			MaxCascadeDepth:     getenvInt("COMMISSION_MAX_CASCADE_DEPTH", 3),
			DefaultRate:         getenvFloat("COMMISSION_DEFAULT_RATE", 10),
			LifetimeAttribution: getenvBool("COMMISSION_LIFETIME_ATTRIBUTION", true),
			DebitRatePerSecond:  getenvFloat("CREDIT_DEBIT_RATE_PER_SECOND", 20),
			DebitBurst:          getenvInt("CREDIT_DEBIT_BURST", 40),
		},
	}
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
