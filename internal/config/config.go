package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Serverless  bool            `mapstructure:"serverless"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Provider    ProviderConfig  `mapstructure:"provider"`
	Forecast    ForecastConfig  `mapstructure:"forecast"`
	Training    TrainingConfig  `mapstructure:"training"`
	Inference   InferenceConfig `mapstructure:"inference"`
	Broadcast   BroadcastConfig `mapstructure:"broadcast"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ProviderConfig points at the external historical-series/quote provider.
type ProviderConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Timeout         string `mapstructure:"timeout"`
	DefaultExchange string `mapstructure:"default_exchange"`
}

type ForecastConfig struct {
	LookbackWindow int    `mapstructure:"lookback_window"`
	Epochs         int    `mapstructure:"epochs"`
	HiddenUnits    int    `mapstructure:"hidden_units"`
	CacheTTL       string `mapstructure:"cache_ttl"`
	SweepInterval  string `mapstructure:"sweep_interval"`
}

// TrainingConfig controls the out-of-process trained-model worker.
type TrainingConfig struct {
	WorkerCommand string   `mapstructure:"worker_command"`
	WorkerArgs    []string `mapstructure:"worker_args"`
	ModelDir      string   `mapstructure:"model_dir"`
	Timeout       string   `mapstructure:"timeout"`
}

// InferenceConfig points at the optional cloud inference backend.
type InferenceConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Timeout  string `mapstructure:"timeout"`
}

type BroadcastConfig struct {
	Interval       string   `mapstructure:"interval"`
	DefaultSymbols []string `mapstructure:"default_symbols"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("inference.api_key", "INFERENCE_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind INFERENCE_API_KEY environment variable: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	for name, d := range map[string]string{
		"provider.timeout":        config.Provider.Timeout,
		"forecast.cache_ttl":      config.Forecast.CacheTTL,
		"forecast.sweep_interval": config.Forecast.SweepInterval,
		"training.timeout":        config.Training.Timeout,
		"inference.timeout":       config.Inference.Timeout,
		"broadcast.interval":      config.Broadcast.Interval,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return nil, fmt.Errorf("invalid %s duration: %w", name, err)
		}
	}

	if config.Forecast.LookbackWindow < 2 {
		return nil, fmt.Errorf("forecast lookback window must be at least 2, got %d", config.Forecast.LookbackWindow)
	}

	return &config, nil
}

// Duration parses a config duration string, falling back when unset or invalid.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("serverless", false)

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "stockcast")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("provider.base_url", "http://localhost:3001")
	viper.SetDefault("provider.timeout", "15s")
	viper.SetDefault("provider.default_exchange", "NSE")

	viper.SetDefault("forecast.lookback_window", 20)
	viper.SetDefault("forecast.epochs", 60)
	viper.SetDefault("forecast.hidden_units", 16)
	viper.SetDefault("forecast.cache_ttl", "5m")
	viper.SetDefault("forecast.sweep_interval", "1m")

	viper.SetDefault("training.worker_command", "python3")
	viper.SetDefault("training.worker_args", []string{"workers/lstm_worker.py"})
	viper.SetDefault("training.model_dir", "./models")
	viper.SetDefault("training.timeout", "10m")

	viper.SetDefault("inference.endpoint", "")
	viper.SetDefault("inference.api_key", "")
	viper.SetDefault("inference.timeout", "30s")

	viper.SetDefault("broadcast.interval", "30s")
	viper.SetDefault("broadcast.default_symbols", []string{"RELIANCE.NS", "TCS.NS", "HDFCBANK.NS", "INFY.NS", "ICICIBANK.NS"})
}
