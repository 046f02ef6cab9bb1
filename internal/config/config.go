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

type Config struct {
	AppEnv     string
	ServerPort int
	LogLevel   string

	JWTAccessSecret  []byte
	JWTRefreshSecret []byte
	JWTIssuer        string

	StoreDriver string
	MongoURI    string
	MongoDB     string
	DatabaseURL string
	SQLitePath  string

	RedisURL string

	KafkaBrokers       []string
	KafkaActivityTopic string
	KafkaMailTopic     string

	ESURL           string
	ESUser          string
	ESPassword      string
	ESActivityIndex string

	RateLimitAttempts int
	RateLimitWindow   time.Duration

	LoginMaxFailures  int
	LoginLockDuration time.Duration

	PublicBaseURL string
	CSRFEnabled   bool

	SeedSuperadminEmail    string
	SeedSuperadminPassword string
}

func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	return Config{
		AppEnv:     EnvDefault("APP_ENV", "development"),
		ServerPort: EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:   EnvDefault("LOG_LEVEL", "info"),

		JWTAccessSecret:  []byte(os.Getenv("JWT_SECRET")),
		JWTRefreshSecret: []byte(os.Getenv("JWT_REFRESH_SECRET")),
		JWTIssuer:        EnvDefault("JWT_ISSUER", "govlink"),

		StoreDriver: EnvDefault("STORE_DRIVER", "mongo"),
		MongoURI:    EnvDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     EnvDefault("MONGO_DB", "govlink"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  EnvDefault("SQLITE_PATH", "govlink.db"),

		RedisURL: os.Getenv("REDIS_URL"),

		KafkaBrokers:       CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaActivityTopic: EnvDefault("KAFKA_ACTIVITY_TOPIC", "auth_events"),
		KafkaMailTopic:     EnvDefault("KAFKA_MAIL_TOPIC", "notification_emails"),

		ESURL:           os.Getenv("ES_URL"),
		ESUser:          os.Getenv("ES_USER"),
		ESPassword:      os.Getenv("ES_PASSWORD"),
		ESActivityIndex: EnvDefault("ES_ACTIVITY_INDEX", "auth-activity"),

		RateLimitAttempts: EnvIntDefault("RATE_LIMIT_ATTEMPTS", 5),
		RateLimitWindow:   EnvDurationDefault("RATE_LIMIT_WINDOW", 15*time.Minute),

		LoginMaxFailures:  EnvIntDefault("LOGIN_MAX_FAILURES", 5),
		LoginLockDuration: EnvDurationDefault("LOGIN_LOCK_DURATION", 15*time.Minute),

		PublicBaseURL: EnvDefault("PUBLIC_BASE_URL", "http://localhost:3000"),
		CSRFEnabled:   EnvBoolDefault("CSRF_ENABLED", false),

		SeedSuperadminEmail:    os.Getenv("SEED_SUPERADMIN_EMAIL"),
		SeedSuperadminPassword: os.Getenv("SEED_SUPERADMIN_PASSWORD"),
	}
}

func (c Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Validate reports every setting the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if len(c.JWTAccessSecret) == 0 {
		errs = append(errs, errors.New("missing required env JWT_SECRET"))
	}
	if len(c.JWTRefreshSecret) == 0 {
		errs = append(errs, errors.New("missing required env JWT_REFRESH_SECRET"))
	}
	switch c.StoreDriver {
	case "mongo", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("missing required env DATABASE_URL for STORE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.RateLimitAttempts <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_ATTEMPTS and RATE_LIMIT_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func EnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
