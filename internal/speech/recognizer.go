package speech

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"insurebot-chat/internal/common/config"
)

// RecognitionEvent is one update from a dictation session. Results holds
// the best transcript of every result so far; ResultIndex is the first
// result that changed.
type RecognitionEvent struct {
	ResultIndex int
	Results     []string
}

// Transcript joins the results from ResultIndex onwards.
func (e RecognitionEvent) Transcript() string {
	start := e.ResultIndex
	if start < 0 {
		start = 0
	}
	if start >= len(e.Results) {
		return ""
	}
	return strings.Join(e.Results[start:], "")
}

// Recognizer runs one dictation session. The channel closes when the
// session ends.
type Recognizer interface {
	Start(ctx context.Context) (<-chan RecognitionEvent, error)
}

// Dictate runs a single session and hands the running transcript to sink
// after every event. It returns the last transcript delivered.
func Dictate(ctx context.Context, r Recognizer, sink func(string)) (string, error) {
	if r == nil {
		return "", ErrRecognitionUnavailable
	}
	events, err := r.Start(ctx)
	if err != nil {
		return "", err
	}

	var last string
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return last, nil
			}
			last = ev.Transcript()
			sink(last)
		}
	}
}

// CommandRecognizer runs a speech-to-text tool that prints one finalised
// phrase per line on stdout.
type CommandRecognizer struct {
	Path string
	Args []string
}

// DetectRecognizer resolves the configured recognizer command.
func DetectRecognizer(cfg config.SpeechConfig) (*CommandRecognizer, error) {
	if cfg.RecognizerCommand == "" {
		return nil, ErrRecognitionUnavailable
	}
	path, err := lookPath(cfg.RecognizerCommand)
	if err != nil {
		return nil, ErrRecognitionUnavailable
	}
	return &CommandRecognizer{Path: path, Args: cfg.RecognizerArgs}, nil
}

func (c *CommandRecognizer) Start(ctx context.Context) (<-chan RecognitionEvent, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recognizer stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recognizer: %w", err)
	}

	events := make(chan RecognitionEvent)
	go func() {
		defer close(events)
		defer cmd.Wait()
		emitLines(ctx, stdout, events)
	}()
	return events, nil
}

// emitLines turns each non-empty line into a new result.
func emitLines(ctx context.Context, r io.Reader, events chan<- RecognitionEvent) {
	var results []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(results) > 0 {
			line = " " + line
		}
		results = append(results, line)
		ev := RecognitionEvent{Results: append([]string(nil), results...)}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
