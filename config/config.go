package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"smokeFreeAPI/internal/logger"
)

// Server is the API server configuration, read from the environment after
// an optional .env file.
type Server struct {
	Port        string `env:"PORT" envDefault:"3333"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`

	ClerkSecretKey string `env:"CLERK_SECRET_KEY"`
	// DevJWTSecret switches auth to HS256 tokens signed with this secret.
	// Local development and end-to-end tests only.
	DevJWTSecret string `env:"DEV_JWT_SECRET"`
	// ClerkWebhookSecret verifies svix signatures on /webhooks/clerk.
	ClerkWebhookSecret string `env:"CLERK_WEBHOOK_SECRET"`

	MetricsUser string `env:"METRICS_USER"`
	MetricsPass string `env:"METRICS_PASS"`
	PprofSecret string `env:"PPROF_SECRET"`

	FCMServiceAccountJSON string `env:"FCM_SERVICE_ACCOUNT_JSON"`
	FCMCredentialsFile    string `env:"FCM_CREDENTIALS_FILE" envDefault:"./serviceAccountKey.json"`
	DispatchWorkers       int    `env:"NOTIFICATION_WORKERS" envDefault:"5"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"30"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`
}

// Client configures the quitctl device client. Flags override these.
type Client struct {
	ServerURL      string        `env:"QUITCTL_SERVER_URL" envDefault:"http://localhost:3333"`
	DataDir        string        `env:"QUITCTL_DATA_DIR" envDefault:"~/.config/quitctl"`
	RequestTimeout time.Duration `env:"QUITCTL_REQUEST_TIMEOUT" envDefault:"10s"`
	MaxRetries     int           `env:"QUITCTL_MAX_RETRIES" envDefault:"3"`
	RetryBaseDelay time.Duration `env:"QUITCTL_RETRY_BASE_DELAY" envDefault:"500ms"`
	LogLevel       string        `env:"QUITCTL_LOG_LEVEL" envDefault:"warn"`
	// Token overrides the keyring; handy for scripts and CI.
	Token string `env:"QUITCTL_TOKEN"`
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found")
	}
}

func LoadServer() (*Server, error) {
	loadDotEnv()
	cfg, err := env.ParseAs[Server]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}
	if cfg.ClerkSecretKey == "" && cfg.DevJWTSecret == "" {
		return nil, fmt.Errorf("CLERK_SECRET_KEY or DEV_JWT_SECRET must be set")
	}
	return &cfg, nil
}

func LoadClient() (*Client, error) {
	loadDotEnv()
	cfg, err := env.ParseAs[Client]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	return &cfg, nil
}
