package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "HUDDLE"

type Config struct {
	Mode            string        `mapstructure:"mode"`
	Port            int           `mapstructure:"port"`
	StaticPath      string        `mapstructure:"static_path"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	Secret          string        `mapstructure:"secret"`
	LogLevel        string        `mapstructure:"log_level"`
	Backpressure    string        `mapstructure:"backpressure_policy"`
	AdmissionLimit  int           `mapstructure:"admission_limit"`
	AdmissionWindow time.Duration `mapstructure:"admission_window"`
	SendBuffer      int           `mapstructure:"send_buffer"`
}

// ClientConfig drives the headless participant.
type ClientConfig struct {
	ServerURL       string        `mapstructure:"server_url"`
	Nickname        string        `mapstructure:"nickname"`
	STUNURLs        []string      `mapstructure:"stun_urls"`
	DownloadDir     string        `mapstructure:"download_dir"`
	Video           bool          `mapstructure:"video"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
}

func newViper(kind string) (*viper.Viper, string) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return v, fmt.Sprintf("config/%s.%s.yaml", kind, env)
}

func read(v *viper.Viper, fileName string) {
	v.SetConfigFile(fileName)
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		return
	}
	log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
}

func ServerDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "huddle-dev-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("backpressure_policy", "drop")
	v.SetDefault("admission_limit", 10)
	v.SetDefault("admission_window", "10s")
	v.SetDefault("send_buffer", 64)
}

func ClientDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("nickname", "")
	v.SetDefault("stun_urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("download_dir", "./downloads")
	v.SetDefault("video", false)
	v.SetDefault("max_upload_bytes", 10_000_000)
	v.SetDefault("transfer_timeout", "2m")
	v.SetDefault("log_level", "info")
}

func Load() (*Config, error) {
	v, fileName := newViper("config")
	ServerDefaults(v)
	read(v, fileName)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("server config")
	return &cfg, nil
}

// LoadClient reads the client configuration. bind lets the caller attach
// command line flags to the same keys before values are resolved.
func LoadClient(bind func(v *viper.Viper) error) (*ClientConfig, error) {
	v, fileName := newViper("client")
	ClientDefaults(v)
	read(v, fileName)
	if bind != nil {
		if err := bind(v); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	return &cfg, nil
}

// Level parses a zerolog level name, falling back to info.
func Level(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || name == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
