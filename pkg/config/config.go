package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"moodiary/pkg/celebrate"
)

// EnvPrefix is prepended to every environment override, e.g. DIARY_SERVER_ADDR
const EnvPrefix = "DIARY"

// Config holds application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Diary   DiaryConfig   `mapstructure:"diary"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StorageConfig locates the diary's files
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	UploadsDir string `mapstructure:"uploads_dir"`
	BackupDir  string `mapstructure:"backup_dir"`
	Watch      bool   `mapstructure:"watch"`
}

// DiaryConfig holds page behaviour
type DiaryConfig struct {
	RecentLimit       int    `mapstructure:"recent_limit"`
	Owner             string `mapstructure:"owner"`
	Birthday          string `mapstructure:"birthday"`
	DefaultBackground string `mapstructure:"default_background"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig toggles the /metrics endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DiaryFile is the JSON array of entries
func (c *Config) DiaryFile() string {
	return filepath.Join(c.Storage.DataDir, "diary.json")
}

// SettingsFile is the JSON object holding bg_url
func (c *Config) SettingsFile() string {
	return filepath.Join(c.Storage.DataDir, "settings.json")
}

// New returns a viper instance with defaults and environment binding set up.
// Callers may bind command-line flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads configuration: defaults, then the config file (configFile if
// given, else an optional moodiary.yaml in the working directory), then .env
// and DIARY_* environment variables.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("moodiary")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.uploads_dir", "uploads")
	v.SetDefault("storage.backup_dir", "backups")
	v.SetDefault("storage.watch", true)

	v.SetDefault("diary.recent_limit", 10)
	v.SetDefault("diary.owner", "")
	v.SetDefault("diary.birthday", "08-19")
	v.SetDefault("diary.default_background", "https://images.unsplash.com/photo-1503264116251-35a269479413")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("metrics.enabled", true)
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.Storage.DataDir) == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if strings.TrimSpace(cfg.Storage.UploadsDir) == "" {
		return fmt.Errorf("storage.uploads_dir is required")
	}
	if cfg.Diary.RecentLimit <= 0 {
		return fmt.Errorf("diary.recent_limit must be positive")
	}
	if _, err := celebrate.ParseBirthday(cfg.Diary.Birthday); err != nil {
		return err
	}
	switch cfg.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console")
	}
	return nil
}
