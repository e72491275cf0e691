package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string `mapstructure:"port"`
	Env      string `mapstructure:"env"`
	BasePath string `mapstructure:"base_path"`
	DataDir  string `mapstructure:"data_dir"`

	// Alert queue
	MaxQueue       int           `mapstructure:"max_queue"`
	DisplaySeconds int           `mapstructure:"display_seconds"`
	TickSlack      time.Duration `mapstructure:"tick_slack"`

	// Operator identity and sessions
	AdminUser     string        `mapstructure:"admin_user"`
	AdminPassHash string        `mapstructure:"admin_pass_hash"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`

	// Shared secret for the external submission endpoint; empty disables it.
	ExternalKey string `mapstructure:"external_key"`

	// Mirror config editing
	MirrorConfigPath  string        `mapstructure:"mirror_config_path"`
	SchemaDir         string        `mapstructure:"schema_dir"`
	ConfigEvalTimeout time.Duration `mapstructure:"config_eval_timeout"`
	ReloadURL         string        `mapstructure:"reload_url"`

	// Backends
	RedisURL    string `mapstructure:"redis_url"`
	DatabaseURL string `mapstructure:"database_url"`
	AuditDBPath string `mapstructure:"audit_db_path"`

	DisplayWhitelist   []string `mapstructure:"display_whitelist"`
	RateLimitWhitelist []string `mapstructure:"rate_limit_whitelist"`
}

// Load reads configuration from the environment (SR_ prefix) and, when
// SR_CONFIG_FILE is set, from that settings file. A .env file is loaded
// first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if file := os.Getenv("SR_CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// PORT is honoured for platforms that inject it.
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SR_PORT") == "" {
		v.Set("port", port)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	cfg.DisplayWhitelist = splitList(v.Get("display_whitelist"))
	cfg.RateLimitWhitelist = splitList(v.Get("rate_limit_whitelist"))
	cfg.BasePath = normalizeBasePath(cfg.BasePath)
	if cfg.AuditDBPath == "" {
		cfg.AuditDBPath = filepath.Join(cfg.DataDir, "audit.db")
	}
	if v.IsSet("cookie_secure") {
		cfg.CookieSecure = v.GetBool("cookie_secure")
	} else {
		cfg.CookieSecure = !cfg.IsDevelopment()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "/home/pi"
	}

	v.SetDefault("port", "8080")
	v.SetDefault("env", "development")
	v.SetDefault("base_path", "/mm-simple-remote")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("max_queue", 25)
	v.SetDefault("display_seconds", 20)
	v.SetDefault("tick_slack", 50*time.Millisecond)
	v.SetDefault("admin_user", "")
	v.SetDefault("admin_pass_hash", "")
	v.SetDefault("session_ttl", 12*time.Hour)
	v.SetDefault("external_key", "")
	v.SetDefault("mirror_config_path", filepath.Join(home, "MagicMirror", "config", "config.js"))
	v.SetDefault("schema_dir", "./schemas")
	v.SetDefault("config_eval_timeout", 2*time.Second)
	v.SetDefault("reload_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("database_url", "")
	v.SetDefault("audit_db_path", "")
	v.SetDefault("display_whitelist", "127.0.0.1,::1")
	v.SetDefault("rate_limit_whitelist", "")
}

func (c *Config) validate() error {
	if c.MaxQueue <= 0 {
		return errors.New("max_queue must be positive")
	}
	if c.DisplaySeconds <= 0 {
		return errors.New("display_seconds must be positive")
	}
	// In production, an operator identity is required
	if c.Env == "production" {
		if c.AdminUser == "" || c.AdminPassHash == "" {
			return errors.New("SR_ADMIN_USER and SR_ADMIN_PASS_HASH are required in production")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// DisplayDuration is how long each alert stays active.
func (c *Config) DisplayDuration() time.Duration {
	return time.Duration(c.DisplaySeconds) * time.Second
}

// QueueFile is the path of the durable alert queue.
func (c *Config) QueueFile() string {
	return filepath.Join(c.DataDir, "alerts.json")
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// splitList accepts either a list (settings file) or a comma-separated
// string (environment).
func splitList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, p := range val {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
	}

	var out []string
	for _, entry := range parts {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
