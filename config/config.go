// Package config loads kvbridge settings with precedence env > file > defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "KVBRIDGE"

type Config struct {
	Log     Log     `mapstructure:"log"`
	Storage Storage `mapstructure:"storage"`
	RPC     RPC     `mapstructure:"rpc"`
	HTTP    HTTP    `mapstructure:"http"`
	Bridge  Bridge  `mapstructure:"bridge"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Storage selects the backend the bridge forwards to.
type Storage struct {
	Backend string `mapstructure:"backend"`
	// Quota is a byte limit for memory and bolt, an entry limit for redis.
	Quota   int64         `mapstructure:"quota"`
	Bucket  string        `mapstructure:"bucket"`
	Path    string        `mapstructure:"path"`
	Addr    string        `mapstructure:"addr"`
	DB      int           `mapstructure:"db"`
	Pass    string        `mapstructure:"password"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RPC struct {
	Listen     string `mapstructure:"listen"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	ClientCA   string `mapstructure:"client_ca"`
	ServerAddr string `mapstructure:"server_addr"`
}

type HTTP struct {
	Listen       string `mapstructure:"listen"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

type Bridge struct {
	ReportUnavailable bool          `mapstructure:"report_unavailable"`
	ResultTimeout     time.Duration `mapstructure:"result_timeout"`
	Workers           int           `mapstructure:"workers"`
}

func Default() *Config {
	return &Config{
		Log:     Log{Level: "info", Format: "text"},
		Storage: Storage{Backend: "memory", Bucket: "storage", Path: "storage.db", Addr: "127.0.0.1:6379", Timeout: 5 * time.Second},
		RPC:     RPC{Listen: "127.0.0.1:9999", ServerAddr: "127.0.0.1:9999"},
		HTTP:    HTTP{MaxBodyBytes: 1 << 20},
		Bridge:  Bridge{ResultTimeout: 5 * time.Second, Workers: 10000},
	}
}

type Loader struct {
	file string
}

func NewLoader(file string) *Loader {
	return &Loader{file: file}
}

func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if l.file != "" {
		v.SetConfigFile(l.file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.file, err)
		}
	}
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.quota", d.Storage.Quota)
	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.addr", d.Storage.Addr)
	v.SetDefault("storage.db", d.Storage.DB)
	v.SetDefault("storage.password", d.Storage.Pass)
	v.SetDefault("storage.timeout", d.Storage.Timeout)
	v.SetDefault("rpc.listen", d.RPC.Listen)
	v.SetDefault("rpc.cert_file", d.RPC.CertFile)
	v.SetDefault("rpc.key_file", d.RPC.KeyFile)
	v.SetDefault("rpc.client_ca", d.RPC.ClientCA)
	v.SetDefault("rpc.server_addr", d.RPC.ServerAddr)
	v.SetDefault("http.listen", d.HTTP.Listen)
	v.SetDefault("http.max_body_bytes", d.HTTP.MaxBodyBytes)
	v.SetDefault("bridge.report_unavailable", d.Bridge.ReportUnavailable)
	v.SetDefault("bridge.result_timeout", d.Bridge.ResultTimeout)
	v.SetDefault("bridge.workers", d.Bridge.Workers)
}

// bindEnv binds every key explicitly; AutomaticEnv alone does not reach
// keys that only exist in nested structs during Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Backend) {
	case "memory", "bolt", "redis":
	default:
		return fmt.Errorf("unsupported storage.backend %q (supported: memory, bolt, redis)", c.Storage.Backend)
	}
	if c.Storage.Quota < 0 {
		return fmt.Errorf("storage.quota must not be negative")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must not be negative")
	}
	if c.Bridge.ResultTimeout <= 0 {
		return fmt.Errorf("bridge.result_timeout must be positive")
	}
	if (c.RPC.CertFile == "") != (c.RPC.KeyFile == "") {
		return fmt.Errorf("rpc.cert_file and rpc.key_file must be set together")
	}
	if c.RPC.ClientCA != "" && c.RPC.CertFile == "" {
		return fmt.Errorf("rpc.client_ca requires rpc.cert_file")
	}
	return nil
}
