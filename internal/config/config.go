package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Import
		Canonical
		CanonicalSync
		Audit
		Tasks
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	Import struct {
		ErrorBudget   int   // Malformed blocks tolerated before the file is rejected
		MaxUploadSize int64 // Upload cap in bytes
	}
	Canonical struct {
		ProviderBaseURL  string // Override for tests; empty means the public catalog
		ProviderTimeout  time.Duration
		CacheTTL         time.Duration // Alias cache entry lifetime
		AutoThreshold    float64
		ConfirmThreshold float64
		TitleWeight      float64
		AuthorWeight     float64
		ISBNWeight       float64
	}
	CanonicalSync struct {
		Enabled   bool
		Schedule  string // Cron format: "*/30 * * * *" = every 30 minutes
		BatchSize int    // Provisional records per sweep
	}
	Audit struct {
		Dir           string
		RetentionDays int // Days to keep audit events (default: 30)
	}
	Tasks struct {
		Enabled           bool
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("audit_dir", "./audit")
	v.SetDefault("audit_retention_days", 30)

	// Import defaults
	v.SetDefault("import_error_budget", DefaultErrorBudget)
	v.SetDefault("import_max_upload_size", 10*1024*1024)

	// Canonical resolution defaults
	v.SetDefault("canonical_provider_base_url", "")
	v.SetDefault("canonical_provider_timeout", "10s")
	v.SetDefault("canonical_cache_ttl", "30m")
	v.SetDefault("canonical_auto_threshold", 0.90)
	v.SetDefault("canonical_confirm_threshold", 0.70)
	v.SetDefault("canonical_title_weight", 0.60)
	v.SetDefault("canonical_author_weight", 0.25)
	v.SetDefault("canonical_isbn_weight", 0.15)

	// Reconciliation sweep defaults
	v.SetDefault("canonical_sync_enabled", true)
	v.SetDefault("canonical_sync_schedule", "*/30 * * * *")
	v.SetDefault("canonical_sync_batch_size", 50)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "5m")
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Import: Import{
			ErrorBudget:   v.GetInt("IMPORT_ERROR_BUDGET"),
			MaxUploadSize: v.GetInt64("IMPORT_MAX_UPLOAD_SIZE"),
		},
		Canonical: Canonical{
			ProviderBaseURL:  v.GetString("CANONICAL_PROVIDER_BASE_URL"),
			ProviderTimeout:  v.GetDuration("CANONICAL_PROVIDER_TIMEOUT"),
			CacheTTL:         v.GetDuration("CANONICAL_CACHE_TTL"),
			AutoThreshold:    v.GetFloat64("CANONICAL_AUTO_THRESHOLD"),
			ConfirmThreshold: v.GetFloat64("CANONICAL_CONFIRM_THRESHOLD"),
			TitleWeight:      v.GetFloat64("CANONICAL_TITLE_WEIGHT"),
			AuthorWeight:     v.GetFloat64("CANONICAL_AUTHOR_WEIGHT"),
			ISBNWeight:       v.GetFloat64("CANONICAL_ISBN_WEIGHT"),
		},
		CanonicalSync: CanonicalSync{
			Enabled:   v.GetBool("CANONICAL_SYNC_ENABLED"),
			Schedule:  v.GetString("CANONICAL_SYNC_SCHEDULE"),
			BatchSize: v.GetInt("CANONICAL_SYNC_BATCH_SIZE"),
		},
		Audit: Audit{
			Dir:           v.GetString("AUDIT_DIR"),
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
	}
}
