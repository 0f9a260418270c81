// internal/relay/config.go
package relay

import (
	"strings"
	"time"

	"insurebot-chat/internal/common/config"
)

type Config struct {
	BackendURL   string
	Timeout      time.Duration // 0 leaves the backend call unbounded
	MaxBodyBytes int64
}

func LoadConfig(cfg config.RelayConfig) *Config {
	return &Config{
		BackendURL:   cfg.BackendURL,
		Timeout:      config.GetDuration(cfg.BackendTimeout),
		MaxBodyBytes: cfg.MaxBodyBytes,
	}
}

// ChatURL is the backend endpoint every turn is forwarded to.
func (c *Config) ChatURL() string {
	return strings.TrimRight(c.BackendURL, "/") + "/chat"
}
