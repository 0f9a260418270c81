package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"insurebot-chat/internal/common/database"
)

// RedisSink appends entries to a capped Redis stream.
type RedisSink struct {
	conn   *database.RedisClient
	stream string
	maxLen int64
}

func NewRedisSink(client *redis.Client, stream string, maxLen int64) *RedisSink {
	return &RedisSink{conn: &database.RedisClient{Client: client}, stream: stream, maxLen: maxLen}
}

func (s *RedisSink) Record(ctx context.Context, e Entry) error {
	args := s.xaddArgs(e)
	if err := s.conn.Client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// xaddArgs keeps field order stable so the stream entries read the same
// for every consumer.
func (s *RedisSink) xaddArgs(e Entry) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: []interface{}{
			"session_id", e.SessionID,
			"request_id", e.RequestID,
			"timestamp", e.Timestamp.UTC().Format(time.RFC3339Nano),
			"user_message", e.UserMessage,
			"reply", e.Reply,
			"recommendations", e.RecommendationCount,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return args
}

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Close() error {
	return s.conn.Close()
}
