// Package transcript records completed chat turns seen by the relay.
package transcript

import (
	"context"
	"fmt"
	"time"

	"insurebot-chat/internal/common/config"
	"insurebot-chat/internal/common/database"
)

// Entry is one relayed turn: the last user message and the reply text.
type Entry struct {
	SessionID           string    `json:"sessionId"`
	RequestID           string    `json:"requestId"`
	Timestamp           time.Time `json:"timestamp"`
	UserMessage         string    `json:"userMessage"`
	Reply               string    `json:"reply"`
	RecommendationCount int       `json:"recommendationCount"`
}

// Sink stores entries. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, e Entry) error
	Name() string
	Close() error
}

// Pinger is implemented by sinks backed by a network store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks s when it is backed by a network store and succeeds
// otherwise.
func Ping(ctx context.Context, s Sink) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// New builds the sink selected by cfg.Driver.
func New(cfg config.TranscriptConfig) (Sink, error) {
	switch cfg.Driver {
	case "", "none":
		return Nop{}, nil
	case "file":
		return NewFileSink(cfg.FilePath), nil
	case "redis":
		client, err := database.NewRedis(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisSink(client.Client, cfg.Redis.Stream, cfg.Redis.MaxLength), nil
	case "postgres":
		client, err := database.NewPostgres(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		sink, err := NewPostgresSink(client.DB, cfg.Postgres.Table)
		if err != nil {
			client.Close()
			return nil, err
		}
		return sink, nil
	}
	return nil, fmt.Errorf("unknown transcript driver %q", cfg.Driver)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
func (Nop) Name() string                        { return "none" }
func (Nop) Close() error                        { return nil }
