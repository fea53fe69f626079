// Package config loads the service configuration from an optional env file
// and the process environment. Credentials are only ever read from here.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration.
type Config struct {
	Server     ServerConfig
	Logging    LoggingConfig
	HTTPClient HTTPClientConfig
	Admin      AdminConfig
	Media      MediaConfig
	Storage    StorageConfig
	Gateway    GatewayConfig
	Model      ModelConfig
	Audit      AuditConfig
	Jobs       JobsConfig
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	APIKey          string        // Shared key required in X-API-Key; empty disables the check
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// HTTPClientConfig configures the client shared by every outbound call.
// A zero Timeout means the client never gives up on a slow upstream.
type HTTPClientConfig struct {
	Timeout time.Duration
}

// AdminConfig points at the administration service that owns request records.
type AdminConfig struct {
	BaseURL string
}

// MediaConfig points at the messaging platform media store.
type MediaConfig struct {
	BaseURL string
	Token   string
}

// StorageConfig configures rendition uploads.
type StorageConfig struct {
	Bucket          string
	CredentialsFile string // Empty uses Application Default Credentials
	CDNBaseURL      string
}

// GatewayConfig configures the payment gateway client.
type GatewayConfig struct {
	BaseURL string
	Token   string
}

// ModelConfig configures the vision model used for receipt extraction.
type ModelConfig struct {
	APIKey string
	Name   string
}

// AuditConfig configures the BigQuery extraction audit. An empty Project disables it.
type AuditConfig struct {
	Project string
	Dataset string
	Table   string
}

// Enabled reports whether extraction audit rows should be written.
func (a AuditConfig) Enabled() bool {
	return a.Project != ""
}

// JobsConfig configures the in-memory payment verification queue.
type JobsConfig struct {
	QueueSize  int
	Workers    int
	MaxRetries int
}

// validate collects every configuration problem into a single error.
func (c *Config) validate() error {
	var validationErrors []string

	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}
	if c.HTTPClient.Timeout < 0 {
		validationErrors = append(validationErrors, "HTTP_CLIENT_TIMEOUT must not be negative")
	}

	if c.Admin.BaseURL == "" {
		validationErrors = append(validationErrors, "ADMIN_API_URL is required")
	}
	if c.Media.BaseURL == "" {
		validationErrors = append(validationErrors, "MEDIA_STORE_URL is required")
	}
	if c.Media.Token == "" {
		validationErrors = append(validationErrors, "MEDIA_STORE_TOKEN is required")
	}
	if c.Storage.Bucket == "" {
		validationErrors = append(validationErrors, "GCS_BUCKET is required")
	}
	if c.Storage.CDNBaseURL == "" {
		validationErrors = append(validationErrors, "CDN_BASE_URL is required")
	}
	if c.Gateway.BaseURL == "" {
		validationErrors = append(validationErrors, "GATEWAY_API_URL is required")
	}
	if c.Gateway.Token == "" {
		validationErrors = append(validationErrors, "GATEWAY_TOKEN is required")
	}
	if c.Model.APIKey == "" {
		validationErrors = append(validationErrors, "GEMINI_API_KEY is required")
	}
	if c.Model.Name == "" {
		validationErrors = append(validationErrors, "GEMINI_MODEL is required")
	}

	if c.Audit.Enabled() && c.Audit.Dataset == "" {
		validationErrors = append(validationErrors, "BIGQUERY_DATASET is required when BIGQUERY_PROJECT is set")
	}

	if c.Jobs.QueueSize <= 0 {
		validationErrors = append(validationErrors, "JOB_QUEUE_SIZE must be greater than 0")
	}
	if c.Jobs.Workers <= 0 {
		validationErrors = append(validationErrors, "JOB_WORKERS must be greater than 0")
	}
	if c.Jobs.MaxRetries < 0 {
		validationErrors = append(validationErrors, "JOB_MAX_RETRIES must not be negative")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
