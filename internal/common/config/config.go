// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Relay      RelayConfig      `mapstructure:"relay"`
	Session    SessionConfig    `mapstructure:"session"`
	Speech     SpeechConfig     `mapstructure:"speech"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// --- Core App Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// RelayConfig holds settings for the POST /chat relay server.
type RelayConfig struct {
	ListenAddress  string `mapstructure:"listen_address"`
	BackendURL     string `mapstructure:"backend_url"`
	BackendTimeout int    `mapstructure:"backend_timeout"` // milliseconds, 0 disables
	MaxBodyBytes   int64  `mapstructure:"max_body_bytes"`
	ShutdownGrace  int    `mapstructure:"shutdown_grace"` // milliseconds
}

// SessionConfig holds settings for console sessions talking to the relay.
type SessionConfig struct {
	RelayURL    string `mapstructure:"relay_url"`
	SendTimeout int    `mapstructure:"send_timeout"` // milliseconds, 0 disables
}

// SpeechConfig holds text-to-speech settings.
type SpeechConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Command  string   `mapstructure:"command"`
	Args     []string `mapstructure:"args"`
	MaxChars int      `mapstructure:"max_chars"`
	Rate     float64  `mapstructure:"rate"`
	Pitch    float64  `mapstructure:"pitch"`
	Volume   float64  `mapstructure:"volume"`

	// Optional speech-to-text command printing one transcript per line.
	RecognizerCommand string   `mapstructure:"recognizer_command"`
	RecognizerArgs    []string `mapstructure:"recognizer_args"`
}

// TranscriptConfig selects where completed turns are recorded.
type TranscriptConfig struct {
	Driver   string         `mapstructure:"driver"` // none, file, redis, postgres
	FilePath string         `mapstructure:"file_path"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Stream    string `mapstructure:"stream"`
	MaxLength int64  `mapstructure:"max_length"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	Table          string `mapstructure:"table"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig controls the health/metrics listener.
type MetricsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listen_address"`
}
