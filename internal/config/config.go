package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config represents the application configuration structure.
// It contains settings for the environment, HTTP server, database connection,
// scan processing, uploads, the push channel, AI extraction, the terminal
// display and graceful shutdown behavior.
type Config struct {
	// Environment specifies the current running environment (development, production, etc.)
	Environment string `env:"ENVIRONMENT" env-default:"development" yaml:"environment"`
	// LogLevel overrides the level implied by Environment when set (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" env-default:"" yaml:"logLevel"`

	// HTTP contains all HTTP server related configurations
	HTTP struct {
		// Addr is the address and port the HTTP server will listen on
		Addr string `env:"HTTP_ADDR" env-default:":8080" yaml:"addr"`
		// PublicURL is the address clients use to reach the server, used by the CLI
		PublicURL string `env:"HTTP_PUBLIC_URL" env-default:"http://localhost:8080" yaml:"publicURL"`
		// ReadTimeout is the maximum duration for reading the entire request, including the body
		ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"1m" yaml:"readTimeout"`
		// ReadHeaderTimeout is the amount of time allowed to read request headers
		ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" env-default:"10s" yaml:"readHeaderTimeout"`
		// WriteTimeout is the maximum duration before timing out writes of the response
		WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"5m" yaml:"writeTimeout"`
		// IdleTimeout is the maximum amount of time to wait for the next request when keep-alives are enabled
		IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"2m" yaml:"idleTimeout"`
		// RequestTimeout is the maximum time allowed for processing a single request.
		// Synchronous scans run within it.
		RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" env-default:"4m" yaml:"requestTimeout"`
		// MaxHeaderBytes controls the maximum number of bytes the server will read parsing the request header
		MaxHeaderBytes int `env:"HTTP_MAX_HEADER_BYTES" env-default:"0" yaml:"maxHeaderBytes"`
		// MaxUploadSize limits the size of uploaded documents in bytes
		MaxUploadSize int64 `env:"HTTP_MAX_UPLOAD_SIZE" env-default:"52428800" yaml:"maxUploadSize"`
		// MetricsPath defines the URL path where metrics are exposed
		MetricsPath string `env:"HTTP_METRICS_PATH" env-default:"/metrics" yaml:"metricsPath"`
	} `yaml:"http"`

	// Database contains all database connection related configurations
	Database struct {
		// Username for database authentication
		Username string `env:"DATABASE_USERNAME" env-default:"myuser" yaml:"username"`
		// Password for database authentication
		Password string `env:"DATABASE_PASSWORD" env-default:"mypassword" yaml:"password"`
		// Host is the database server hostname or IP address
		Host string `env:"DATABASE_HOST" env-default:"localhost" yaml:"host"`
		// Port is the database server port number
		Port int `env:"DATABASE_PORT" env-default:"5432" yaml:"port"`
		// SslMode defines the SSL mode for the database connection
		SslMode string `env:"DATABASE_SSL_MODE" env-default:"disable" yaml:"sslMode"`
		// DatabaseName is the name of the database to connect to
		DatabaseName string `env:"DATABASE_NAME" env-default:"qrscanner" yaml:"name"`
		// MaxOpenConnections limits the number of open connections to the database
		MaxOpenConnections int `env:"DATABASE_MAX_OPEN_CONNECTIONS" env-default:"10" yaml:"maxOpenConnections"`
		// MaxIdleConnections limits the number of connections in the idle connection pool
		MaxIdleConnections int `env:"DATABASE_MAX_IDLE_CONNECTIONS" env-default:"8" yaml:"maxIdleConnections"`
		// ConnMaxLifetime is the maximum amount of time a connection may be reused
		ConnMaxLifetime time.Duration `env:"DATABASE_CONNECTION_MAX_LIFETIME" env-default:"3m" yaml:"connMaxLifetime"`
		// ConnMaxIdleTime is the maximum amount of time a connection may be idle
		ConnMaxIdleTime time.Duration `env:"DATABASE_CONNECTION_MAX_IDLE_TIME" env-default:"3m" yaml:"connMaxIdleTime"`
	} `yaml:"database"`

	// Scanner configures the processing of scans
	Scanner struct {
		// Workers is the number of scans processed at once
		Workers int `env:"SCANNER_WORKERS" env-default:"10" yaml:"workers"`
		// Concurrency bounds the URL validations of a page running at once
		Concurrency int `env:"SCANNER_CONCURRENCY" env-default:"4" yaml:"concurrency"`
		// MaxAttempts is the number of times a scan job is tried before giving up
		MaxAttempts int `env:"SCANNER_MAX_ATTEMPTS" env-default:"3" yaml:"maxAttempts"`
		// RetrySnooze delays scans interrupted by AI provider rate limiting
		RetrySnooze time.Duration `env:"SCANNER_RETRY_SNOOZE" env-default:"1m" yaml:"retrySnooze"`
		// UserAgent is sent with URL validation requests
		UserAgent string `env:"SCANNER_USER_AGENT" env-default:"QR-Scanner/1.0" yaml:"userAgent"`
	} `yaml:"scanner"`

	// Uploads configures where uploaded documents are kept and for how long
	Uploads struct {
		// Dir is the directory uploads are stored in
		Dir string `env:"UPLOADS_DIR" env-default:"uploads" yaml:"dir"`
		// Retention is how long scans and their uploads are kept
		Retention time.Duration `env:"UPLOADS_RETENTION" env-default:"24h" yaml:"retention"`
		// CleanupInterval is the period of the expired scans cleanup
		CleanupInterval time.Duration `env:"UPLOADS_CLEANUP_INTERVAL" env-default:"1h" yaml:"cleanupInterval"`
	} `yaml:"uploads"`

	// Push configures the push channel connections
	Push struct {
		// WriteWait bounds a single write to a client
		WriteWait time.Duration `env:"PUSH_WRITE_WAIT" env-default:"10s" yaml:"writeWait"`
		// PongWait is how long a client may stay silent before it is dropped
		PongWait time.Duration `env:"PUSH_PONG_WAIT" env-default:"60s" yaml:"pongWait"`
		// MaxMessageSize limits messages sent by clients in bytes
		MaxMessageSize int64 `env:"PUSH_MAX_MESSAGE_SIZE" env-default:"65536" yaml:"maxMessageSize"`
		// SendBuffer is the number of broadcasts queued per client
		SendBuffer int `env:"PUSH_SEND_BUFFER" env-default:"256" yaml:"sendBuffer"`
	} `yaml:"push"`

	// AI configures the extraction of values from page text
	AI struct {
		// APIKey of the Gemini API; extraction is disabled when empty
		APIKey string `env:"AI_API_KEY" env-default:"" yaml:"apiKey"`
		// Model is the Gemini model used
		Model string `env:"AI_MODEL" env-default:"gemini-2.5-flash" yaml:"model"`
		// BaseURL of the Gemini API
		BaseURL string `env:"AI_BASE_URL" env-default:"https://generativelanguage.googleapis.com" yaml:"baseURL"`
		// Timeout bounds a single extraction request
		Timeout time.Duration `env:"AI_TIMEOUT" env-default:"1m" yaml:"timeout"`
	} `yaml:"ai"`

	// Display configures how results are rendered by the CLI and exports
	Display struct {
		// ExtractionText selects the text shown for extracted items: raw or base
		ExtractionText string `env:"DISPLAY_EXTRACTION_TEXT" env-default:"base" yaml:"extractionText"`
	} `yaml:"display"`

	// GracefulShutdownTimeout is the maximum duration to wait for ongoing requests to complete during shutdown
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT" env-default:"10s" yaml:"gracefulShutdownTimeout"` //nolint: lll
}

// Load receives the path for yaml config file and returns a filled Config struct.
// Without a path, the configuration is read from the environment only.
func Load(configPath string) (*Config, error) {
	var cfg Config
	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("could not read config from environment: %w", err)
		}

		return &cfg, nil
	}

	err := cleanenv.ReadConfig(configPath, &cfg)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	return &cfg, nil
}
