package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultName is the base name of the optional env file, looked up as
// ./configs/receipt-validator.env and ./receipt-validator.env.
const DefaultName = "receipt-validator"

// Load reads configuration from <name>.env (if present) and the environment.
func Load(name string) (*Config, error) {
	return loadConfig(fmt.Sprintf("%s.env", name), "env")
}

// loadConfig layers defaults, the config file and environment variables,
// then validates the result.
func loadConfig(configName, configType string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configName)
	if configType != "" {
		v.SetConfigType(configType)
	}

	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.AutomaticEnv()

	config := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("SERVER_PORT"),
			APIKey:          v.GetString("API_KEY"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		HTTPClient: HTTPClientConfig{
			Timeout: v.GetDuration("HTTP_CLIENT_TIMEOUT"),
		},
		Admin: AdminConfig{
			BaseURL: trimURL(v.GetString("ADMIN_API_URL")),
		},
		Media: MediaConfig{
			BaseURL: trimURL(v.GetString("MEDIA_STORE_URL")),
			Token:   v.GetString("MEDIA_STORE_TOKEN"),
		},
		Storage: StorageConfig{
			Bucket:          v.GetString("GCS_BUCKET"),
			CredentialsFile: v.GetString("GCS_CREDENTIALS_FILE"),
			CDNBaseURL:      trimURL(v.GetString("CDN_BASE_URL")),
		},
		Gateway: GatewayConfig{
			BaseURL: trimURL(v.GetString("GATEWAY_API_URL")),
			Token:   v.GetString("GATEWAY_TOKEN"),
		},
		Model: ModelConfig{
			APIKey: v.GetString("GEMINI_API_KEY"),
			Name:   v.GetString("GEMINI_MODEL"),
		},
		Audit: AuditConfig{
			Project: v.GetString("BIGQUERY_PROJECT"),
			Dataset: v.GetString("BIGQUERY_DATASET"),
			Table:   v.GetString("BIGQUERY_TABLE"),
		},
		Jobs: JobsConfig{
			QueueSize:  v.GetInt("JOB_QUEUE_SIZE"),
			Workers:    v.GetInt("JOB_WORKERS"),
			MaxRetries: v.GetInt("JOB_MAX_RETRIES"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "30s")
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "120s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "60s")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_CLIENT_TIMEOUT", "0s")

	v.SetDefault("GATEWAY_API_URL", "https://api.mercadopago.com/v1")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")

	v.SetDefault("BIGQUERY_DATASET", "receipts")
	v.SetDefault("BIGQUERY_TABLE", "receipt_extractions")

	v.SetDefault("JOB_QUEUE_SIZE", 100)
	v.SetDefault("JOB_WORKERS", 5)
	v.SetDefault("JOB_MAX_RETRIES", 0)
}

func trimURL(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}
