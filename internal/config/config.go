// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	Scraper ScraperConfig `mapstructure:"scraper"`
	Robots  RobotsConfig  `mapstructure:"robots"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Parser  ParserConfig  `mapstructure:"parser"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SiteConfig identifies the target forum site.
type SiteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
}

// ScraperConfig bounds a crawl run.
type ScraperConfig struct {
	ForumIDs       []int   `mapstructure:"forum_ids"`
	StartPage      int     `mapstructure:"start_page"`
	MaxPages       int     `mapstructure:"max_pages"`
	MaxThreadPages int     `mapstructure:"max_thread_pages"`
	DelaySeconds   float64 `mapstructure:"delay_seconds"`
}

// RobotsConfig controls crawl-policy handling.
type RobotsConfig struct {
	// FailClosed denies all paths when robots.txt cannot be fetched.
	// The default is permissive: allow with a logged warning.
	FailClosed bool `mapstructure:"fail_closed"`
}

// HTTPConfig configures HTTP client behavior.
type HTTPConfig struct {
	TimeoutSeconds    int `mapstructure:"timeout_seconds"`
	MaxRetries        int `mapstructure:"max_retries"`
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds"`
}

// ParserConfig bounds what the extractor accepts.
type ParserConfig struct {
	MinContentLength int `mapstructure:"min_content_length"`
	MaxTitleLength   int `mapstructure:"max_title_length"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DB.DSN == "" {
		cfg.DB.DSN = dsnFromEnv()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://talk.newagtalk.com")
	v.SetDefault("site.user_agent", "AgTalk-Respectful-Scraper/1.0 (Educational Purpose)")
	v.SetDefault("scraper.forum_ids", []int{3})
	v.SetDefault("scraper.start_page", 1)
	v.SetDefault("scraper.max_pages", 10)
	v.SetDefault("scraper.max_thread_pages", 10)
	v.SetDefault("scraper.delay_seconds", 2.0)
	v.SetDefault("robots.fail_closed", false)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.retry_delay_seconds", 5)
	v.SetDefault("parser.min_content_length", 10)
	v.SetDefault("parser.max_title_length", 200)
	v.SetDefault("logging.development", true)
}

// dsnFromEnv mirrors the standard libpq environment: DATABASE_URL wins,
// otherwise a DSN is assembled from the PG* variables.
func dsnFromEnv() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	host := envOr("PGHOST", "localhost")
	port := envOr("PGPORT", "5432")
	name := envOr("PGDATABASE", "agtalk")
	user := envOr("PGUSER", "postgres")
	pass := envOr("PGPASSWORD", "postgres")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=prefer",
		url.QueryEscape(user), url.QueryEscape(pass), host, port, name)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.Site.BaseURL, "http://") && !strings.HasPrefix(c.Site.BaseURL, "https://") {
		return fmt.Errorf("site.base_url must start with http:// or https://")
	}
	if c.Site.UserAgent == "" {
		return fmt.Errorf("site.user_agent must be set")
	}
	if len(c.Scraper.ForumIDs) == 0 {
		return fmt.Errorf("scraper.forum_ids must include at least one forum")
	}
	for _, id := range c.Scraper.ForumIDs {
		if id < 1 {
			return fmt.Errorf("scraper.forum_ids must be positive, got %d", id)
		}
	}
	if c.Scraper.StartPage < 1 {
		return fmt.Errorf("scraper.start_page must be >= 1")
	}
	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("scraper.max_pages must be >= 1")
	}
	if c.Scraper.MaxThreadPages < 1 {
		return fmt.Errorf("scraper.max_thread_pages must be >= 1")
	}
	if c.Scraper.DelaySeconds < 1.0 {
		return fmt.Errorf("scraper.delay_seconds must be at least 1.0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Parser.MinContentLength < 1 {
		return fmt.Errorf("parser.min_content_length must be >= 1")
	}
	return nil
}

// Delay converts the configured inter-request delay into a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Scraper.DelaySeconds * float64(time.Second))
}

// Timeout converts the HTTP timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetryDelay converts the HTTP retry delay into a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.HTTP.RetryDelaySeconds) * time.Second
}
