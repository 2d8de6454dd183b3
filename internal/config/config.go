package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Library
		Search
		Auth
		Tasks
		Scheduler
		Audit
		Setup
		Contact
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
		LogLevel                 string // debug, info, warn, error, silent
		BaseURL                  string
	}
	Database struct {
		Path string
	}
	Library struct {
		PerPageItems   int
		RequestTimeout time.Duration // Timeout for Goodreads and cover downloads
		CoversDir      string
	}
	Search struct {
		CacheSize       int
		ReindexSchedule string // Cron format: "0 3 * * *" = daily at 03:00
	}
	Auth struct {
		SecretKey        string // Signs activation tokens and CSRF cookies, auto-generated if empty
		SessionLifetime  time.Duration
		TokenExpiry      time.Duration
		ActivationExpiry time.Duration
		BcryptCost       int
		SecureCookies    bool // Set to false for local dev without HTTPS

		// Rate limiting configuration
		MaxLoginAttempts int           // Max failed attempts before lockout (default: 5)
		RateLimitWindow  time.Duration // Time window for counting attempts (default: 15m)
		LockoutDuration  time.Duration // How long to lock out (default: 30m)
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Scheduler struct {
		Enabled              bool
		TokenSweepSchedule   string
		AuditCleanupSchedule string
	}
	Audit struct {
		Dir           string
		RetentionDays int // Days to keep audit events (default: 30)
	}
	Setup struct {
		CreateDefaultRecords bool
		AdminUsername        string
		AdminEmail           string
		AdminPassword        string // Generated and logged on first start if empty
	}
	Contact struct {
		Email string
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("log_level", "info")
	v.SetDefault("base_url", "http://localhost:8188")
	v.SetDefault("database_path", DefaultDatabasePath)

	v.SetDefault("per_page_items", 20)
	v.SetDefault("request_timeout", "60s")
	v.SetDefault("covers_dir", DefaultCoversDir)

	v.SetDefault("search_cache_size", 256)
	v.SetDefault("search_reindex_schedule", "0 3 * * *") // Daily at 03:00

	// Auth defaults
	v.SetDefault("auth_secret_key", "")           // Auto-generated if empty
	v.SetDefault("auth_session_lifetime", "24h")  // 24 hours
	v.SetDefault("auth_token_expiry", "1h")       // API bearer tokens
	v.SetDefault("auth_activation_expiry", "90m") // Activation links
	v.SetDefault("auth_bcrypt_cost", 12)          // bcrypt cost factor
	v.SetDefault("auth_secure_cookies", true)     // HTTPS-only cookies
	v.SetDefault("auth_max_login_attempts", 5)    // Max failed attempts
	v.SetDefault("auth_rate_limit_window", "15m") // Window for counting attempts
	v.SetDefault("auth_lockout_duration", "30m")  // Lockout duration

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	v.SetDefault("scheduler_enabled", true)
	v.SetDefault("token_sweep_schedule", "*/30 * * * *")
	v.SetDefault("audit_cleanup_schedule", "0 4 * * *")

	v.SetDefault("audit_dir", "./audit")
	v.SetDefault("audit_retention_days", 30)

	v.SetDefault("setup_create_default_records", true)
	v.SetDefault("setup_admin_username", "Admin")
	v.SetDefault("setup_admin_email", DefaultContactEmail)
	v.SetDefault("setup_admin_password", "")

	v.SetDefault("contact_email", DefaultContactEmail)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
			LogLevel:                 strings.ToLower(v.GetString("LOG_LEVEL")),
			BaseURL:                  strings.TrimRight(v.GetString("BASE_URL"), "/"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Library: Library{
			PerPageItems:   v.GetInt("PER_PAGE_ITEMS"),
			RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
			CoversDir:      v.GetString("COVERS_DIR"),
		},
		Search: Search{
			CacheSize:       v.GetInt("SEARCH_CACHE_SIZE"),
			ReindexSchedule: v.GetString("SEARCH_REINDEX_SCHEDULE"),
		},
		Auth: Auth{
			SecretKey:        v.GetString("AUTH_SECRET_KEY"),
			SessionLifetime:  v.GetDuration("AUTH_SESSION_LIFETIME"),
			TokenExpiry:      v.GetDuration("AUTH_TOKEN_EXPIRY"),
			ActivationExpiry: v.GetDuration("AUTH_ACTIVATION_EXPIRY"),
			BcryptCost:       v.GetInt("AUTH_BCRYPT_COST"),
			SecureCookies:    v.GetBool("AUTH_SECURE_COOKIES"),
			MaxLoginAttempts: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
			RateLimitWindow:  v.GetDuration("AUTH_RATE_LIMIT_WINDOW"),
			LockoutDuration:  v.GetDuration("AUTH_LOCKOUT_DURATION"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Scheduler: Scheduler{
			Enabled:              v.GetBool("SCHEDULER_ENABLED"),
			TokenSweepSchedule:   v.GetString("TOKEN_SWEEP_SCHEDULE"),
			AuditCleanupSchedule: v.GetString("AUDIT_CLEANUP_SCHEDULE"),
		},
		Audit: Audit{
			Dir:           v.GetString("AUDIT_DIR"),
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Setup: Setup{
			CreateDefaultRecords: v.GetBool("SETUP_CREATE_DEFAULT_RECORDS"),
			AdminUsername:        v.GetString("SETUP_ADMIN_USERNAME"),
			AdminEmail:           v.GetString("SETUP_ADMIN_EMAIL"),
			AdminPassword:        v.GetString("SETUP_ADMIN_PASSWORD"),
		},
		Contact: Contact{
			Email: v.GetString("CONTACT_EMAIL"),
		},
	}
}
