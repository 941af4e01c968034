// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Courier  CourierConfig           `mapstructure:"courier"`
	Server   ServerConfig            `mapstructure:"server"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Logging  LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses    []string `mapstructure:"addresses"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	URL          string   `mapstructure:"url"` // Single URL for backwards compatibility
	DisableRetry bool     `mapstructure:"disable_retry"`
}

// GetAddresses returns Addresses, falling back to URL.
func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Search courier ---

// CourierConfig drives the default search strategy.
type CourierConfig struct {
	IncludeFrozen              bool            `mapstructure:"include_frozen"`
	MaxConcurrentShardRequests int             `mapstructure:"max_concurrent_shard_requests"`
	SearchTimeout              int             `mapstructure:"search_timeout"` // milliseconds
	Routing                    RoutingConfig   `mapstructure:"routing"`
	Secondary                  SecondaryConfig `mapstructure:"secondary"`
	Settings                   SettingsConfig  `mapstructure:"settings"`
}

// RoutingConfig holds the cold-data routing heuristic.
type RoutingConfig struct {
	ThresholdDays int      `mapstructure:"threshold_days"`
	EligibleHosts []string `mapstructure:"eligible_hosts"`
}

// SecondaryConfig points at the archival (Hive) query proxy.
type SecondaryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	DefaultBaseURL string `mapstructure:"default_base_url"`
	Path           string `mapstructure:"path"`
	Timeout        int    `mapstructure:"timeout"` // milliseconds
}

// SettingsConfig names the persisted client settings.
type SettingsConfig struct {
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout"` // milliseconds
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
