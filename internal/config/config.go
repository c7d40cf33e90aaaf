package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"socialsync/internal/logging"
)

// Store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreFirebase = "firebase"
)

// Change bus backends
const (
	BusLocal = "local"
	BusRedis = "redis"
)

// Identity providers
const (
	IdentityJWT      = "jwt"
	IdentityFirebase = "firebase"
)

// Push providers
const (
	PushNone = "none"
	PushExpo = "expo"
	PushFCM  = "fcm"
)

// Notification delete modes. Persist removes records from the store,
// acknowledge only reports the ids back without touching the store.
const (
	NotificationDeletePersist     = "persist"
	NotificationDeleteAcknowledge = "acknowledge"
)

type Config struct {
	ServerPort string

	StoreBackend string
	BusBackend   string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisURL string

	JWTSecret        string
	IdentityProvider string

	AccessTokenMaxAge  int
	RefreshTokenMaxAge int

	FirebaseProjectID   string
	FirebaseClientEmail string
	FirebasePrivateKey  string
	FirebaseDatabaseURL string

	PushProvider string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string

	NotificationDeleteMode string

	RateLimitRPS   float64
	RateLimitBurst int

	WorkerCount int

	LogLevel  string
	LogFormat string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logging.Log.Info("No .env file found or error loading it, relying on environment variables")
	}

	cfg := &Config{
		ServerPort: envOr("SERVER_PORT", "8080"),

		StoreBackend: strings.ToLower(envOr("STORE_BACKEND", StoreMemory)),
		BusBackend:   strings.ToLower(envOr("BUS_BACKEND", BusLocal)),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     envOr("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  envOr("DB_SSLMODE", "require"),

		RedisURL: os.Getenv("REDIS_URL"),

		JWTSecret:        os.Getenv("JWT_SECRET"),
		IdentityProvider: strings.ToLower(envOr("IDENTITY_PROVIDER", IdentityJWT)),

		AccessTokenMaxAge:  positiveInt("ACCESS_TOKEN_MAX_AGE", 900),
		RefreshTokenMaxAge: positiveInt("REFRESH_TOKEN_MAX_AGE", 2592000),

		FirebaseProjectID:   os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseClientEmail: os.Getenv("FIREBASE_CLIENT_EMAIL"),
		FirebasePrivateKey:  os.Getenv("FIREBASE_PRIVATE_KEY"),
		FirebaseDatabaseURL: os.Getenv("FIREBASE_DATABASE_URL"),

		PushProvider: strings.ToLower(envOr("PUSH_PROVIDER", PushNone)),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicURL:       os.Getenv("R2_PUBLIC_URL"),

		NotificationDeleteMode: strings.ToLower(envOr("NOTIFICATION_DELETE_MODE", NotificationDeletePersist)),

		RateLimitRPS:   positiveFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: positiveInt("RATE_LIMIT_BURST", 20),

		WorkerCount: positiveInt("WORKER_COUNT", 2),

		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects option combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			return fmt.Errorf("postgres store requires DB_HOST, DB_USER and DB_NAME")
		}
	case StoreFirebase:
		if c.FirebaseDatabaseURL == "" {
			return fmt.Errorf("firebase store requires FIREBASE_DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.BusBackend {
	case BusLocal:
	case BusRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis bus requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown BUS_BACKEND %q", c.BusBackend)
	}

	switch c.IdentityProvider {
	case IdentityJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required")
		}
	case IdentityFirebase:
	default:
		return fmt.Errorf("unknown IDENTITY_PROVIDER %q", c.IdentityProvider)
	}

	switch c.PushProvider {
	case PushNone, PushExpo, PushFCM:
	default:
		return fmt.Errorf("unknown PUSH_PROVIDER %q", c.PushProvider)
	}

	switch c.NotificationDeleteMode {
	case NotificationDeletePersist, NotificationDeleteAcknowledge:
	default:
		return fmt.Errorf("unknown NOTIFICATION_DELETE_MODE %q", c.NotificationDeleteMode)
	}

	if c.NeedsFirebase() && (c.FirebaseProjectID == "" || c.FirebaseClientEmail == "" || c.FirebasePrivateKey == "") {
		return fmt.Errorf("firebase features require FIREBASE_PROJECT_ID, FIREBASE_CLIENT_EMAIL and FIREBASE_PRIVATE_KEY")
	}

	return nil
}

// NeedsFirebase reports whether any configured component talks to Firebase.
func (c *Config) NeedsFirebase() bool {
	return c.StoreBackend == StoreFirebase || c.IdentityProvider == IdentityFirebase || c.PushProvider == PushFCM
}

// HasMediaStorage reports whether R2 credentials are present.
func (c *Config) HasMediaStorage() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicURL != ""
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func positiveInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func positiveFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
