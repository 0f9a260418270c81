// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultBackendURL = "http://127.0.0.1:8000"
	DefaultRelayURL   = "http://127.0.0.1:3000"
	DefaultMaxChars   = 500
)

// Load reads configs/config.yaml (plus config.<env>.yaml) with environment
// overrides and returns a validated Config.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			// unset variables expand to "" so defaults apply
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills values that are commonly supplied as bare
// environment variables rather than through the nested key scheme.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Relay.BackendURL == "" {
		for _, key := range []string{"BACKEND_URL", "NEXT_PUBLIC_BACKEND_URL"} {
			if val := os.Getenv(key); val != "" {
				cfg.Relay.BackendURL = val
				break
			}
		}
	}
	if cfg.Session.RelayURL == "" {
		if val := os.Getenv("RELAY_URL"); val != "" {
			cfg.Session.RelayURL = val
		}
	}
	if cfg.Transcript.Redis.Address == "" {
		if val := os.Getenv("REDIS_ADDRESS"); val != "" {
			cfg.Transcript.Redis.Address = val
		}
	}
	if cfg.Transcript.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Transcript.Postgres.User = val
		}
	}
	if cfg.Transcript.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Transcript.Postgres.Password = val
		}
	}
}

// setDefaults registers defaults for keys where zero is a meaningful
// setting, so only an absent key falls back.
func setDefaults(v *viper.Viper) {
	v.SetDefault("speech.rate", 1.0)
	v.SetDefault("speech.pitch", 1.0)
	v.SetDefault("speech.volume", 0.8)
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "insurebot-chat"
	}

	if cfg.Relay.ListenAddress == "" {
		cfg.Relay.ListenAddress = ":3000"
	}
	if cfg.Relay.BackendURL == "" {
		cfg.Relay.BackendURL = DefaultBackendURL
	}
	cfg.Relay.BackendURL = strings.TrimRight(cfg.Relay.BackendURL, "/")
	if cfg.Relay.MaxBodyBytes == 0 {
		cfg.Relay.MaxBodyBytes = 1 << 20
	}
	if cfg.Relay.ShutdownGrace == 0 {
		cfg.Relay.ShutdownGrace = 30000
	}

	if cfg.Session.RelayURL == "" {
		cfg.Session.RelayURL = DefaultRelayURL
	}
	cfg.Session.RelayURL = strings.TrimRight(cfg.Session.RelayURL, "/")

	if cfg.Speech.MaxChars == 0 {
		cfg.Speech.MaxChars = DefaultMaxChars
	}

	if cfg.Transcript.Driver == "" {
		cfg.Transcript.Driver = "none"
	}
	if cfg.Transcript.FilePath == "" {
		cfg.Transcript.FilePath = "conversation_logs.txt"
	}
	if cfg.Transcript.Redis.Stream == "" {
		cfg.Transcript.Redis.Stream = "insurebot:transcripts"
	}
	if cfg.Transcript.Redis.MaxLength == 0 {
		cfg.Transcript.Redis.MaxLength = 10000
	}
	if cfg.Transcript.Postgres.MaxConnections == 0 {
		cfg.Transcript.Postgres.MaxConnections = 10
	}
	if cfg.Transcript.Postgres.MaxIdle == 0 {
		cfg.Transcript.Postgres.MaxIdle = 2
	}
	if cfg.Transcript.Postgres.SSLMode == "" {
		cfg.Transcript.Postgres.SSLMode = "disable"
	}
	if cfg.Transcript.Postgres.Table == "" {
		cfg.Transcript.Postgres.Table = "chat_transcripts"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = ":8080"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if !strings.HasPrefix(cfg.Relay.BackendURL, "http://") && !strings.HasPrefix(cfg.Relay.BackendURL, "https://") {
		return fmt.Errorf("relay.backend_url must be an http(s) URL, got %q", cfg.Relay.BackendURL)
	}
	if cfg.Relay.BackendTimeout < 0 {
		return fmt.Errorf("relay.backend_timeout must not be negative")
	}
	if cfg.Session.SendTimeout < 0 {
		return fmt.Errorf("session.send_timeout must not be negative")
	}
	if cfg.Speech.MaxChars < 0 {
		return fmt.Errorf("speech.max_chars must not be negative")
	}
	if cfg.Speech.Rate <= 0 {
		return fmt.Errorf("speech.rate must be positive")
	}
	if cfg.Speech.Pitch < 0 {
		return fmt.Errorf("speech.pitch must not be negative")
	}
	if cfg.Speech.Volume < 0 || cfg.Speech.Volume > 1 {
		return fmt.Errorf("speech.volume must be between 0 and 1")
	}

	switch cfg.Transcript.Driver {
	case "none", "file":
	case "redis":
		if cfg.Transcript.Redis.Address == "" {
			return fmt.Errorf("transcript.redis.address is required for the redis driver")
		}
	case "postgres":
		if cfg.Transcript.Postgres.Host == "" {
			return fmt.Errorf("transcript.postgres.host is required for the postgres driver")
		}
		if cfg.Transcript.Postgres.Database == "" {
			return fmt.Errorf("transcript.postgres.database is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown transcript.driver %q", cfg.Transcript.Driver)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
