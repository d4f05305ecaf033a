package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/waweb-dev/waweb/internal/errors"
	"github.com/waweb-dev/waweb/internal/logging"
	"github.com/waweb-dev/waweb/pkg/client"
	"github.com/waweb-dev/waweb/pkg/signal"
)

const (
	// ConfigName is the base name of the configuration file (waweb.yaml).
	ConfigName = "waweb"

	// EnvPrefix prefixes environment overrides, e.g. WAWEB_CLIENT_URL.
	EnvPrefix = "WAWEB"

	// DefaultDataDir holds keys, sessions and credentials.
	DefaultDataDir = ".waweb"

	// DefaultMetricsAddr is the listen address of the metrics server.
	DefaultMetricsAddr = "127.0.0.1:9464"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config is the complete command configuration.
type Config struct {
	// DataDir is the root for file based state.
	DataDir string `mapstructure:"data_dir"`

	Client  ClientConfig  `mapstructure:"client"`
	Crypto  CryptoConfig  `mapstructure:"crypto"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// configFile is the file the config was read from, if any.
	configFile string
}

// ClientConfig mirrors client.Config.
type ClientConfig struct {
	URL               string        `mapstructure:"url"`
	Origin            string        `mapstructure:"origin"`
	Proxy             string        `mapstructure:"proxy"`
	UserAgent         string        `mapstructure:"user_agent"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	AutoReconnect     bool          `mapstructure:"auto_reconnect"`
	BinaryNodes       bool          `mapstructure:"binary_nodes"`
	Backoff           BackoffConfig `mapstructure:"backoff"`
}

// BackoffConfig mirrors client.BackoffConfig.
type BackoffConfig struct {
	Initial     time.Duration `mapstructure:"initial"`
	Max         time.Duration `mapstructure:"max"`
	Factor      float64       `mapstructure:"factor"`
	Jitter      float64       `mapstructure:"jitter"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// CryptoConfig selects the key agreement and prekey pool size.
type CryptoConfig struct {
	Agreement   string `mapstructure:"agreement"`
	PreKeyCount int    `mapstructure:"prekey_count"`
}

// StoreConfig selects where keys and sessions live.
type StoreConfig struct {
	// Backend is memory, file, sqlite or s3.
	Backend string `mapstructure:"backend"`

	// SQLitePath defaults to <data_dir>/waweb.db.
	SQLitePath string `mapstructure:"sqlite_path"`

	// CacheTTL caches sessions in memory in front of the backend. Zero
	// disables the cache.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	S3 S3Config `mapstructure:"s3"`
}

// S3Config configures the object store backend.
type S3Config struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	c := client.DefaultConfig()

	v.SetDefault("data_dir", DefaultDataDir)

	v.SetDefault("client.url", c.URL)
	v.SetDefault("client.origin", c.Origin)
	v.SetDefault("client.proxy", "")
	v.SetDefault("client.user_agent", c.UserAgent)
	v.SetDefault("client.connect_timeout", c.ConnectTimeout)
	v.SetDefault("client.handshake_timeout", c.HandshakeTimeout)
	v.SetDefault("client.keepalive_interval", c.KeepAliveInterval)
	v.SetDefault("client.request_timeout", c.RequestTimeout)
	v.SetDefault("client.auto_reconnect", c.AutoReconnect)
	v.SetDefault("client.binary_nodes", c.BinaryNodes)
	v.SetDefault("client.backoff.initial", c.Backoff.Initial)
	v.SetDefault("client.backoff.max", c.Backoff.Max)
	v.SetDefault("client.backoff.factor", c.Backoff.Factor)
	v.SetDefault("client.backoff.jitter", c.Backoff.Jitter)
	v.SetDefault("client.backoff.max_attempts", c.Backoff.MaxAttempts)

	v.SetDefault("crypto.agreement", signal.X25519.Name())
	v.SetDefault("crypto.prekey_count", signal.DefaultPreKeyCount)

	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.cache_ttl", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("metrics.addr", DefaultMetricsAddr)
	v.SetDefault("metrics.namespace", "waweb")
}

// BindFlags defines the global flags on fs and binds them to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.String("config", "", "path to config file (default ./waweb.yaml or $HOME/.waweb/waweb.yaml)")
	fs.String("data-dir", DefaultDataDir, "directory for keys, sessions and credentials")
	fs.String("url", client.DefaultURL, "websocket endpoint")
	fs.String("proxy", "", "proxy URL (socks5:// or http://)")
	fs.String("store", BackendFile, "key store backend: memory, file, sqlite or s3")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "console", "log format: console or json")
	fs.Bool("binary", false, "send nodes as binary frames")

	bindings := map[string]string{
		"data_dir":            "data-dir",
		"client.url":          "url",
		"client.proxy":        "proxy",
		"client.binary_nodes": "binary",
		"store.backend":       "store",
		"log.level":           "log-level",
		"log.format":          "log-format",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

// NewViper returns a viper instance reading waweb.yaml and WAWEB_*
// variables, with defaults registered.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, DefaultDataDir))
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the configuration. An explicit path must exist; otherwise a
// missing file falls back to defaults, environment and flags.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, errors.New("W102").Wrap(err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.New("W102").Wrap(err)
	}
	cfg.configFile = v.ConfigFileUsed()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills fields derived from other fields.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = filepath.Join(c.DataDir, "waweb.db")
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendSQLite:
	case BackendS3:
		if c.Store.S3.Bucket == "" {
			return errors.New("W101").WithDetail("store.s3.bucket is required for the s3 backend")
		}
	default:
		return errors.New("W103").WithDetail(fmt.Sprintf("store.backend %q is not one of memory, file, sqlite or s3", c.Store.Backend))
	}
	if c.Store.CacheTTL < 0 {
		return errors.New("W101").WithDetail("store.cache_ttl must not be negative")
	}
	if _, err := signal.AgreementByName(c.Crypto.Agreement); err != nil {
		return errors.New("W101").WithDetail(fmt.Sprintf("crypto.agreement %q is not x25519 or x448", c.Crypto.Agreement))
	}
	if c.Crypto.PreKeyCount <= 0 {
		return errors.New("W101").WithDetail("crypto.prekey_count must be positive")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errors.New("W101").Wrap(err)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("W101").WithDetail("metrics.addr is required when metrics are enabled")
	}
	if err := c.ClientConfig(nil).Validate(); err != nil {
		return errors.New("W101").Wrap(err)
	}
	return nil
}

// File returns the config file that was read, or "".
func (c *Config) File() string {
	return c.configFile
}

// ClientConfig converts to a client.Config carrying creds.
func (c *Config) ClientConfig(creds *client.Credentials) *client.Config {
	cc := client.DefaultConfig()
	cc.URL = c.Client.URL
	cc.Origin = c.Client.Origin
	cc.ProxyURL = c.Client.Proxy
	cc.UserAgent = c.Client.UserAgent
	cc.ConnectTimeout = c.Client.ConnectTimeout
	cc.HandshakeTimeout = c.Client.HandshakeTimeout
	cc.KeepAliveInterval = c.Client.KeepAliveInterval
	cc.RequestTimeout = c.Client.RequestTimeout
	cc.AutoReconnect = c.Client.AutoReconnect
	cc.BinaryNodes = c.Client.BinaryNodes
	cc.Backoff = client.BackoffConfig{
		Initial:     c.Client.Backoff.Initial,
		Max:         c.Client.Backoff.Max,
		Factor:      c.Client.Backoff.Factor,
		Jitter:      c.Client.Backoff.Jitter,
		MaxAttempts: c.Client.Backoff.MaxAttempts,
	}
	cc.Credentials = creds
	return cc
}

// LoggingConfig converts to a logging.Config. Console output is always on.
func (c *Config) LoggingConfig() logging.Config {
	lc := logging.Config{
		Level:   c.Log.Level,
		Format:  c.Log.Format,
		Console: true,
	}
	if c.Log.File != "" {
		lc.File = &logging.FileConfig{
			Filename:   c.Log.File,
			MaxSize:    c.Log.MaxSize,
			MaxBackups: c.Log.MaxBackups,
			MaxAge:     c.Log.MaxAge,
			Compress:   c.Log.Compress,
		}
	}
	return lc
}

// SignalOptions returns the manager options for the crypto settings.
func (c *Config) SignalOptions() []signal.Option {
	agr, err := signal.AgreementByName(c.Crypto.Agreement)
	if err != nil {
		agr = signal.X25519
	}
	return []signal.Option{signal.WithAgreement(agr), signal.WithPreKeyCount(c.Crypto.PreKeyCount)}
}

// CredentialsPath is where the login tokens are persisted.
func (c *Config) CredentialsPath() string {
	return filepath.Join(c.DataDir, "credentials.json")
}
