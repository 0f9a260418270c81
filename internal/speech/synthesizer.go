package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"insurebot-chat/internal/common/config"
)

var (
	ErrSynthesisUnavailable   = errors.New("speech synthesis unavailable")
	ErrRecognitionUnavailable = errors.New("speech recognition unavailable")
)

// Voice holds utterance settings relative to the engine default: 1 is
// normal rate/pitch, volume runs from 0 to 1.
type Voice struct {
	Rate   float64
	Pitch  float64
	Volume float64
}

func DefaultVoice() Voice {
	return Voice{Rate: 1, Pitch: 1, Volume: 0.8}
}

// Synthesizer speaks text and returns once playback finished or ctx was
// cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, text string, v Voice) error
}

// CommandSynthesizer drives a text-to-speech command line tool.
type CommandSynthesizer struct {
	Path string
	Args []string
}

// knownEngines are tried in order when no command is configured.
var knownEngines = []string{"espeak-ng", "espeak", "say", "spd-say"}

var lookPath = exec.LookPath

// DetectSynthesizer resolves the configured command, or the first known
// engine on PATH.
func DetectSynthesizer(cfg config.SpeechConfig) (*CommandSynthesizer, error) {
	candidates := knownEngines
	if cfg.Command != "" {
		candidates = []string{cfg.Command}
	}
	for _, name := range candidates {
		if path, err := lookPath(name); err == nil {
			return &CommandSynthesizer{Path: path, Args: cfg.Args}, nil
		}
	}
	return nil, ErrSynthesisUnavailable
}

func (c *CommandSynthesizer) Speak(ctx context.Context, text string, v Voice) error {
	engine := filepath.Base(c.Path)
	args := append([]string{}, c.Args...)
	args = append(args, voiceArgs(engine, v)...)
	textArgs, stdin := textInput(engine, text)
	args = append(args, textArgs...)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", filepath.Base(c.Path), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// voiceArgs maps Voice onto the flags of the engines we know about.
func voiceArgs(engine string, v Voice) []string {
	switch engine {
	case "espeak", "espeak-ng":
		return []string{
			"-s", itoa(175 * v.Rate),
			"-p", itoa(50 * v.Pitch),
			"-a", itoa(100 * v.Volume),
		}
	case "say":
		return []string{"-r", itoa(175 * v.Rate)}
	case "spd-say":
		return []string{
			"-w",
			"-r", itoa(100*v.Rate - 100),
			"-p", itoa(100*v.Pitch - 100),
			"-i", itoa(200*v.Volume - 100),
		}
	}
	return nil
}

// textInput places the utterance so a leading "-" (a markdown bullet) is
// never parsed as a flag. getopt engines take "--"; say reads stdin.
func textInput(engine, text string) (args []string, stdin string) {
	switch engine {
	case "espeak", "espeak-ng", "spd-say":
		return []string{"--", text}, ""
	case "say":
		return []string{"-f", "-"}, text
	}
	return []string{text}, ""
}

func itoa(f float64) string {
	return strconv.Itoa(int(f + 0.5))
}
