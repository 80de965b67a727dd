// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/donkey-crawler/internal/crawler"
)

// Provider names accepted by the store and sink sections.
const (
	ProviderRedis         = "redis"
	ProviderMemory        = "memory"
	ProviderElasticsearch = "elasticsearch"
	ProviderPostgres      = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Site    SiteConfig    `mapstructure:"site"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Store   StoreConfig   `mapstructure:"store"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SiteConfig names the crawled domain and its category table. An empty
// category list selects the site's built-in table.
type SiteConfig struct {
	Domain        string             `mapstructure:"domain"`
	Categories    []crawler.Category `mapstructure:"categories"`
	MissThreshold int64              `mapstructure:"miss_threshold"`
}

// CrawlerConfig governs the herd and the fetcher.
type CrawlerConfig struct {
	Agents         int    `mapstructure:"agents"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	IdleBackoffMs  int    `mapstructure:"idle_backoff_ms"`
	MaxBackoffMs   int    `mapstructure:"max_backoff_ms"`
}

// StoreConfig selects the progress store.
type StoreConfig struct {
	Provider string      `mapstructure:"provider"`
	Redis    RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SinkConfig selects where extracted records go.
type SinkConfig struct {
	Provider      string              `mapstructure:"provider"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
}

// ElasticsearchConfig holds cluster connection settings.
type ElasticsearchConfig struct {
	URL      string `mapstructure:"url"`
	Index    string `mapstructure:"index"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	APIKey   string `mapstructure:"api_key"`
}

// PostgresConfig holds relational sink settings.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DONKEY")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("site.domain", "imobiliare.ro")
	v.SetDefault("site.miss_threshold", 3)
	v.SetDefault("crawler.agents", 4)
	v.SetDefault("crawler.user_agent", "donkey-crawler/0.1")
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.idle_backoff_ms", 1000)
	v.SetDefault("crawler.max_backoff_ms", 30000)
	v.SetDefault("store.provider", ProviderRedis)
	v.SetDefault("store.redis.address", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("sink.provider", ProviderElasticsearch)
	v.SetDefault("sink.elasticsearch.url", "http://localhost:9200")
	v.SetDefault("sink.elasticsearch.index", "listings")
	v.SetDefault("sink.postgres.table", "listings")
	v.SetDefault("sink.postgres.max_conns", 4)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if strings.TrimSpace(c.Site.Domain) == "" {
		return fmt.Errorf("site.domain is required")
	}
	if c.Site.MissThreshold <= 0 {
		return fmt.Errorf("site.miss_threshold must be > 0")
	}
	if c.Crawler.Agents <= 0 {
		return fmt.Errorf("crawler.agents must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.IdleBackoffMs < 0 || c.Crawler.MaxBackoffMs < 0 {
		return fmt.Errorf("crawler backoff values must be >= 0")
	}
	switch c.Store.Provider {
	case ProviderRedis:
		if c.Store.Redis.Address == "" {
			return fmt.Errorf("store.redis.address is required for the redis store")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("unknown store.provider %q", c.Store.Provider)
	}
	switch c.Sink.Provider {
	case ProviderElasticsearch:
		if c.Sink.Elasticsearch.URL == "" {
			return fmt.Errorf("sink.elasticsearch.url is required for the elasticsearch sink")
		}
	case ProviderPostgres:
		if c.Sink.Postgres.DSN == "" {
			return fmt.Errorf("sink.postgres.dsn is required for the postgres sink")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("unknown sink.provider %q", c.Sink.Provider)
	}
	return nil
}

// FetchTimeout is the per-request fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// IdleBackoff is the pause after a discovery step that found no work.
func (c Config) IdleBackoff() time.Duration {
	return time.Duration(c.Crawler.IdleBackoffMs) * time.Millisecond
}

// MaxBackoff caps the retry delay after store failures.
func (c Config) MaxBackoff() time.Duration {
	return time.Duration(c.Crawler.MaxBackoffMs) * time.Millisecond
}
