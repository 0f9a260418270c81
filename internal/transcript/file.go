package transcript

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

const separatorWidth = 60

// FileSink appends human-readable blocks to a log file.
type FileSink struct {
	path string
	mu   sync.Mutex
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatBlock(e)); err != nil {
		return fmt.Errorf("write transcript file: %w", err)
	}
	return nil
}

func formatBlock(e Entry) string {
	sep := strings.Repeat("=", separatorWidth)
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n[%s]", sep, e.Timestamp.Format("2006-01-02 15:04:05"))
	if e.SessionID != "" {
		fmt.Fprintf(&b, " session=%s", e.SessionID)
	}
	fmt.Fprintf(&b, "\nUSER: %s\n\nBOT: %s\n%s\n\n\n", e.UserMessage, e.Reply, sep)
	return b.String()
}

func (s *FileSink) Name() string { return "file" }
func (s *FileSink) Close() error { return nil }
