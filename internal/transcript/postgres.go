package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"insurebot-chat/internal/common/database"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// PostgresSink inserts entries into a table shaped like:
//
//	CREATE TABLE chat_transcripts (
//	    id                   BIGSERIAL PRIMARY KEY,
//	    session_id           TEXT,
//	    request_id           TEXT,
//	    created_at           TIMESTAMPTZ NOT NULL,
//	    user_message         TEXT NOT NULL,
//	    reply                TEXT NOT NULL,
//	    recommendation_count INT NOT NULL DEFAULT 0
//	);
type PostgresSink struct {
	conn   *database.PostgresClient
	insert string
}

func NewPostgresSink(db *sql.DB, table string) (*PostgresSink, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid transcript table name %q", table)
	}
	return &PostgresSink{
		conn: &database.PostgresClient{DB: db},
		insert: fmt.Sprintf(
			"INSERT INTO %s (session_id, request_id, created_at, user_message, reply, recommendation_count) VALUES ($1, $2, $3, $4, $5, $6)",
			table,
		),
	}, nil
}

func (s *PostgresSink) Record(ctx context.Context, e Entry) error {
	_, err := s.conn.DB.ExecContext(ctx, s.insert,
		e.SessionID, e.RequestID, e.Timestamp.UTC(), e.UserMessage, e.Reply, e.RecommendationCount)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Close() error {
	return s.conn.Close()
}
