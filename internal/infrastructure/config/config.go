package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides. Nested fields are
// addressed by their upper-cased path, e.g. GRAYLOGIC_MQTT_BROKER_HOST or
// GRAYLOGIC_SECURITY_JWT_SECRET.
const EnvPrefix = "GRAYLOGIC"

// minJWTSecretLength is the shortest HMAC key accepted for agent tokens.
const minJWTSecretLength = 32

// Config holds the complete arbiter configuration.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Security    SecurityConfig    `yaml:"security"`
	Arbitration ArbitrationConfig `yaml:"arbitration"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Frontend    FrontendConfig    `yaml:"frontend"`
	Catalog     CatalogConfig     `yaml:"catalog"`
}

// SiteConfig identifies the installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode" split_words:"true"`
	BusyTimeout int    `yaml:"busy_timeout" split_words:"true"` // seconds
}

// MQTTConfig contains broker connection settings. The broker is only
// contacted when Enabled is set.
type MQTTConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Broker    MQTTBrokerConfig `yaml:"broker"`
	Auth      MQTTAuthConfig   `yaml:"auth"`
	QoS       int              `yaml:"qos"`
	Reconnect ReconnectConfig  `yaml:"reconnect"`
}

// MQTTBrokerConfig locates the broker.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id" split_words:"true"`
}

// MQTTAuthConfig holds broker credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ReconnectConfig controls the client's reconnect backoff, in seconds.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" split_words:"true"`
	MaxDelay     int `yaml:"max_delay" split_words:"true"`
	MaxAttempts  int `yaml:"max_attempts" split_words:"true"` // 0 = unlimited
}

// APIConfig contains the HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// ConsoleDir serves the operator console from disk instead of the
	// embedded copy. Empty uses the embedded assets.
	ConsoleDir string `yaml:"console_dir" split_words:"true"`
}

// TLSConfig holds certificate paths for HTTPS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file" split_words:"true"`
	KeyFile  string `yaml:"key_file" split_words:"true"`
}

// APITimeoutConfig holds server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" split_words:"true"`
}

// WebSocketConfig tunes the activity stream.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int64  `yaml:"max_message_size" split_words:"true"`
	PingInterval   int    `yaml:"ping_interval" split_words:"true"` // seconds
	PongTimeout    int    `yaml:"pong_timeout" split_words:"true"`  // seconds
}

// InfluxDBConfig enables optional time-series export of activity.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size" split_words:"true"`
	FlushInterval int    `yaml:"flush_interval" split_words:"true"` // seconds
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stdout, stderr
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig configures agent bearer tokens.
type JWTConfig struct {
	Secret         string        `yaml:"secret"`
	Issuer         string        `yaml:"issuer"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl" split_words:"true"`
}

// ArbitrationConfig bounds lock lifetimes.
type ArbitrationConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl" split_words:"true"`
	MaxTTL     time.Duration `yaml:"max_ttl" split_words:"true"` // 0 = unbounded
}

// DispatchConfig bounds how long issue waits for a handler.
type DispatchConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout" split_words:"true"`
}

// FrontendConfig selects which protocols this instance serves and how
// endpoint configuration is read.
type FrontendConfig struct {
	Protocols    []string      `yaml:"protocols"`
	ConfigKeys   []string      `yaml:"config_keys" split_words:"true"`
	SyncInterval time.Duration `yaml:"sync_interval" split_words:"true"` // 0 = no periodic sync
}

// CatalogConfig points at an optional seed file imported at startup.
type CatalogConfig struct {
	SeedFile string `yaml:"seed_file" split_words:"true"`
}

// Load reads configuration from a YAML file, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic Arbiter",
		},
		Database: DatabaseConfig{
			Path:        "./data/arbiter.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-arbiter",
			},
			QoS: 1,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "graylogic",
			Bucket:        "arbiter",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer:         "graylogic-arbiter",
				AccessTokenTTL: 8 * time.Hour,
			},
		},
		Arbitration: ArbitrationConfig{
			DefaultTTL: 30 * time.Second,
			MaxTTL:     time.Hour,
		},
		Dispatch: DispatchConfig{
			DefaultTimeout: 5 * time.Second,
		},
		Frontend: FrontendConfig{
			Protocols:    []string{"loopback"},
			ConfigKeys:   []string{"protocolConfig"},
			SyncInterval: time.Minute,
		},
	}
}

// applyEnvOverrides overlays GRAYLOGIC_* environment variables. Variables
// that are not set leave the file value untouched.
func applyEnvOverrides(cfg *Config) error {
	return envconfig.Process(EnvPrefix, cfg)
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Site.ID == "" {
		errs = append(errs, errors.New("site.id is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, errors.New("database.busy_timeout must not be negative"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1, or 2, got %d", c.MQTT.QoS))
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, errors.New("mqtt.broker.host is required when mqtt is enabled"))
	}
	if slices.Contains(c.Frontend.Protocols, "mqtt") && !c.MQTT.Enabled {
		errs = append(errs, errors.New("frontend.protocols includes mqtt but mqtt.enabled is false"))
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port must be between 1 and 65535, got %d", c.API.Port))
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, errors.New("api.tls.cert_file and api.tls.key_file are required when tls is enabled"))
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, errors.New("influxdb.url is required when influxdb is enabled"))
	}

	switch {
	case c.Security.JWT.Secret == "":
		errs = append(errs, errors.New("security.jwt.secret is required (set GRAYLOGIC_SECURITY_JWT_SECRET)"))
	case len(c.Security.JWT.Secret) < minJWTSecretLength:
		errs = append(errs, fmt.Errorf("security.jwt.secret must be at least %d characters", minJWTSecretLength))
	}

	if c.Arbitration.DefaultTTL <= 0 {
		errs = append(errs, errors.New("arbitration.default_ttl must be positive"))
	}
	if c.Arbitration.MaxTTL < 0 {
		errs = append(errs, errors.New("arbitration.max_ttl must not be negative"))
	}
	if c.Arbitration.MaxTTL > 0 && c.Arbitration.MaxTTL < c.Arbitration.DefaultTTL {
		errs = append(errs, errors.New("arbitration.max_ttl must not be shorter than arbitration.default_ttl"))
	}
	if c.Dispatch.DefaultTimeout <= 0 {
		errs = append(errs, errors.New("dispatch.default_timeout must be positive"))
	}
	if len(c.Frontend.Protocols) == 0 {
		errs = append(errs, errors.New("frontend.protocols must name at least one protocol"))
	}
	if c.Frontend.SyncInterval < 0 {
		errs = append(errs, errors.New("frontend.sync_interval must not be negative"))
	}

	return errors.Join(errs...)
}

// GetReadTimeout returns the API read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// BusyTimeoutDuration returns the SQLite busy timeout.
func (d DatabaseConfig) BusyTimeoutDuration() time.Duration {
	return time.Duration(d.BusyTimeout) * time.Second
}
