// Package config loads runtime settings for the COMETS batch services.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Email     EmailConfig     `mapstructure:"email"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// URLRoot is the externally visible base URL used to build results links.
	URLRoot string `mapstructure:"url_root"`
}

type QueueConfig struct {
	URL      string `mapstructure:"url"`
	Stream   string `mapstructure:"stream"`
	Subject  string `mapstructure:"subject"`
	Consumer string `mapstructure:"consumer"`
	// VisibilityTimeout is how long a leased message stays invisible to
	// other consumers before redelivery (JetStream AckWait).
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	// PollInterval is how long the worker sleeps after an empty poll.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// ReceiveWait bounds a single long-poll receive call.
	ReceiveWait time.Duration `mapstructure:"receive_wait"`
}

type StorageConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretKey       string `mapstructure:"secret_key"`
	InputKeyPrefix  string `mapstructure:"input_key_prefix"`
	OutputKeyPrefix string `mapstructure:"output_key_prefix"`
	// ResultRetention is how long result archives stay downloadable.
	ResultRetention time.Duration `mapstructure:"result_retention"`
	// DownloadURLTTL bounds the lifetime of presigned download links.
	DownloadURLTTL time.Duration `mapstructure:"download_url_ttl"`
}

type EmailConfig struct {
	Sender string `mapstructure:"sender"`
	Admin  string `mapstructure:"admin"`
}

type ExecutorConfig struct {
	// RscriptPath is the Rscript binary used to run batch models.
	RscriptPath string `mapstructure:"rscript_path"`
	// ScriptFile is the R entry point sourced by the runner.
	ScriptFile string `mapstructure:"script_file"`
	// Timeout bounds a single batch model run; zero means no bound.
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type IngestionConfig struct {
	MaxUploadSize     int64         `mapstructure:"max_upload_size"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8095)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.url_root", "http://localhost:8095")
	v.SetDefault("queue.url", "nats://localhost:4222")
	v.SetDefault("queue.stream", "BATCH_JOBS")
	v.SetDefault("queue.subject", "batch.jobs.models")
	v.SetDefault("queue.consumer", "batch-processor")
	v.SetDefault("queue.visibility_timeout", "30s")
	v.SetDefault("queue.poll_interval", "60s")
	v.SetDefault("queue.receive_wait", "20s")
	v.SetDefault("storage.bucket", "comets-batch")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.input_key_prefix", "input/")
	v.SetDefault("storage.output_key_prefix", "output/")
	v.SetDefault("storage.result_retention", "168h")
	v.SetDefault("storage.download_url_ttl", "15m")
	v.SetDefault("email.sender", "do-not-reply@comets-analytics.org")
	v.SetDefault("email.admin", "comets-admin@comets-analytics.org")
	v.SetDefault("executor.rscript_path", "Rscript")
	v.SetDefault("executor.script_file", "comets.R")
	v.SetDefault("executor.timeout", "0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("ingestion.max_upload_size", 52428800)
	v.SetDefault("ingestion.rate_limit_enabled", true)
	v.SetDefault("ingestion.rate_limit_requests", 20)
	v.SetDefault("ingestion.rate_limit_window", "1m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/comets/batch")
	}

	// Environment variables override
	v.SetEnvPrefix("COMETS")
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Queue.VisibilityTimeout < 2*time.Second {
		return nil, fmt.Errorf("queue.visibility_timeout must be at least 2s, got %s", cfg.Queue.VisibilityTimeout)
	}

	return &cfg, nil
}
