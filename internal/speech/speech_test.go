package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insurebot-chat/internal/common/config"
	"insurebot-chat/internal/common/logger"
)

// ==========================
// CleanText
// ==========================

func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		max      int
		expected string
	}{
		{"bold and heading", "**Bold** and # Heading text", 500, "Bold and Heading text"},
		{"italic", "*really* good", 500, "really good"},
		{"nested heading", "### Plans\nTerm cover", 500, "Plans\nTerm cover"},
		{"hash without space kept", "Plan #1 is best", 500, "Plan #1 is best"},
		{"plain", "hello", 500, "hello"},
		{"default cap", strings.Repeat("a", 600), 0, strings.Repeat("a", 500)},
		{"custom cap", "abcdef", 3, "abc"},
		{"cap counts runes", "₹₹₹₹", 2, "₹₹"},
		{"cap applied after cleaning", "**ab**cd", 3, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanText(tt.text, tt.max))
		})
	}
}

// ==========================
// Player
// ==========================

type fakeSynth struct {
	mu       sync.Mutex
	spoken   []string
	started  chan string
	block    bool
	err      error
	canceled int
}

func newFakeSynth(block bool) *fakeSynth {
	return &fakeSynth{started: make(chan string, 10), block: block}
}

func (f *fakeSynth) Speak(ctx context.Context, text string, _ Voice) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
	f.started <- text
	if f.block {
		<-ctx.Done()
		f.mu.Lock()
		f.canceled++
		f.mu.Unlock()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeSynth) Spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func TestPlayer_Unavailable(t *testing.T) {
	p := NewPlayer(nil)
	assert.False(t, p.Available())
	assert.ErrorIs(t, p.Play(context.Background(), "hi"), ErrSynthesisUnavailable)
	assert.False(t, p.IsPlaying())
}

func TestPlayer_PlaysCleanedText(t *testing.T) {
	synth := newFakeSynth(false)
	p := NewPlayer(synth, WithLogger(logger.NewTestLogger(t)))

	require.NoError(t, p.Play(context.Background(), "**Bold** and # Heading text"))
	p.Wait()

	assert.Equal(t, []string{"Bold and Heading text"}, synth.Spoken())
	assert.False(t, p.IsPlaying())
}

func TestPlayer_SpeakingFlag(t *testing.T) {
	synth := newFakeSynth(true)
	p := NewPlayer(synth)

	require.NoError(t, p.Play(context.Background(), "hello"))
	<-synth.started
	assert.True(t, p.IsPlaying())

	p.Stop()
	assert.False(t, p.IsPlaying())
	assert.Equal(t, 1, synth.canceled)
}

func TestPlayer_FlagClearsOnError(t *testing.T) {
	synth := newFakeSynth(false)
	synth.err = errors.New("audio device busy")
	p := NewPlayer(synth, WithLogger(logger.NewTestLogger(t)))

	require.NoError(t, p.Play(context.Background(), "hello"))
	p.Wait()
	assert.False(t, p.IsPlaying())
}

func TestPlayer_NewUtteranceReplacesCurrent(t *testing.T) {
	synth := newFakeSynth(true)
	p := NewPlayer(synth)

	require.NoError(t, p.Play(context.Background(), "first"))
	assert.Equal(t, "first", <-synth.started)

	require.NoError(t, p.Play(context.Background(), "second"))
	assert.Equal(t, "second", <-synth.started)

	// the first utterance was cancelled before the second began
	synth.mu.Lock()
	assert.Equal(t, 1, synth.canceled)
	synth.mu.Unlock()
	assert.True(t, p.IsPlaying())

	p.Stop()
	assert.Equal(t, []string{"first", "second"}, synth.Spoken())
}

func TestPlayer_EmptyTextStopsOnly(t *testing.T) {
	synth := newFakeSynth(true)
	p := NewPlayer(synth)

	require.NoError(t, p.Play(context.Background(), "talking"))
	<-synth.started

	require.NoError(t, p.Play(context.Background(), "**"))
	assert.False(t, p.IsPlaying())
	assert.Equal(t, []string{"talking"}, synth.Spoken())
}

func TestPlayer_StopWithoutUtterance(t *testing.T) {
	p := NewPlayer(newFakeSynth(false))
	p.Stop()
	p.Wait()
	assert.False(t, p.IsPlaying())
}

// ==========================
// Synthesizer discovery
// ==========================

func withLookPath(t *testing.T, found map[string]string) {
	t.Helper()
	orig := lookPath
	lookPath = func(name string) (string, error) {
		if p, ok := found[name]; ok {
			return p, nil
		}
		return "", errors.New("not found")
	}
	t.Cleanup(func() { lookPath = orig })
}

func TestDetectSynthesizer(t *testing.T) {
	withLookPath(t, map[string]string{"espeak": "/usr/bin/espeak", "say": "/usr/bin/say"})

	s, err := DetectSynthesizer(config.SpeechConfig{})
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/espeak", s.Path)

	s, err = DetectSynthesizer(config.SpeechConfig{Command: "say", Args: []string{"-v", "Rishi"}})
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/say", s.Path)
	assert.Equal(t, []string{"-v", "Rishi"}, s.Args)

	_, err = DetectSynthesizer(config.SpeechConfig{Command: "festival"})
	assert.ErrorIs(t, err, ErrSynthesisUnavailable)
}

func TestDetectSynthesizer_NothingInstalled(t *testing.T) {
	withLookPath(t, nil)
	_, err := DetectSynthesizer(config.SpeechConfig{})
	assert.ErrorIs(t, err, ErrSynthesisUnavailable)
}

func TestVoiceArgs(t *testing.T) {
	v := DefaultVoice()
	assert.Equal(t, []string{"-s", "175", "-p", "50", "-a", "80"}, voiceArgs("espeak", v))
	assert.Equal(t, []string{"-s", "175", "-p", "50", "-a", "80"}, voiceArgs("espeak-ng", v))
	assert.Equal(t, []string{"-r", "175"}, voiceArgs("say", v))
	assert.Equal(t, []string{"-w", "-r", "0", "-p", "0", "-i", "60"}, voiceArgs("spd-say", v))
	assert.Nil(t, voiceArgs("festival", v))
}

func TestTextInput(t *testing.T) {
	args, stdin := textInput("espeak", "- HDFC Life")
	assert.Equal(t, []string{"--", "- HDFC Life"}, args)
	assert.Empty(t, stdin)

	args, _ = textInput("spd-say", "-x")
	assert.Equal(t, []string{"--", "-x"}, args)

	args, stdin = textInput("say", "- HDFC Life")
	assert.Equal(t, []string{"-f", "-"}, args)
	assert.Equal(t, "- HDFC Life", stdin)

	args, _ = textInput("festival", "hello")
	assert.Equal(t, []string{"hello"}, args)
}

// fakeEngine installs a shell script under the given engine name that
// records its argv and stdin.
func fakeEngine(t *testing.T, name string) (path, argsFile, stdinFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	stdinFile = filepath.Join(dir, "stdin")
	script := "#!/bin/sh\nfor a in \"$@\"; do printf '%s\\n' \"$a\"; done > " + argsFile + "\ncat > " + stdinFile + "\n"
	path = filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path, argsFile, stdinFile
}

func TestCommandSynthesizer_BulletTextIsNotAFlag(t *testing.T) {
	path, argsFile, _ := fakeEngine(t, "espeak")
	synth := &CommandSynthesizer{Path: path}

	require.NoError(t, synth.Speak(context.Background(), "- HDFC Life", DefaultVoice()))

	got, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "-s\n175\n-p\n50\n-a\n80\n--\n- HDFC Life\n", string(got))
}

func TestCommandSynthesizer_SayReadsStdin(t *testing.T) {
	path, argsFile, stdinFile := fakeEngine(t, "say")
	synth := &CommandSynthesizer{Path: path}

	require.NoError(t, synth.Speak(context.Background(), "- ICICI iProtect", DefaultVoice()))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "-r\n175\n-f\n-\n", string(args))
	stdin, err := os.ReadFile(stdinFile)
	require.NoError(t, err)
	assert.Equal(t, "- ICICI iProtect", string(stdin))
}

// ==========================
// Dictation
// ==========================

type fakeRecognizer struct {
	events []RecognitionEvent
	err    error
}

func (f *fakeRecognizer) Start(ctx context.Context) (<-chan RecognitionEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan RecognitionEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func TestRecognitionEvent_Transcript(t *testing.T) {
	assert.Equal(t, "I am thirty", RecognitionEvent{Results: []string{"I am", " thirty"}}.Transcript())
	assert.Equal(t, " thirty", RecognitionEvent{ResultIndex: 1, Results: []string{"I am", " thirty"}}.Transcript())
	assert.Equal(t, "", RecognitionEvent{ResultIndex: 5, Results: []string{"x"}}.Transcript())
	assert.Equal(t, "x", RecognitionEvent{ResultIndex: -1, Results: []string{"x"}}.Transcript())
}

func TestDictate(t *testing.T) {
	r := &fakeRecognizer{events: []RecognitionEvent{
		{Results: []string{"I am"}},
		{Results: []string{"I am", " 30 years old"}},
		{ResultIndex: 1, Results: []string{"I am", " 30 years old", " non-smoker"}},
	}}

	var seen []string
	last, err := Dictate(context.Background(), r, func(s string) { seen = append(seen, s) })
	require.NoError(t, err)

	assert.Equal(t, []string{"I am", "I am 30 years old", " 30 years old non-smoker"}, seen)
	assert.Equal(t, " 30 years old non-smoker", last)
}

func TestDictate_Unavailable(t *testing.T) {
	_, err := Dictate(context.Background(), nil, func(string) {})
	assert.ErrorIs(t, err, ErrRecognitionUnavailable)

	_, err = Dictate(context.Background(), &fakeRecognizer{err: errors.New("no microphone")}, func(string) {})
	assert.EqualError(t, err, "no microphone")
}

func TestDictate_ContextCancelled(t *testing.T) {
	ch := make(chan RecognitionEvent)
	r := recognizerFunc(func(context.Context) (<-chan RecognitionEvent, error) { return ch, nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Dictate(ctx, r, func(string) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type recognizerFunc func(ctx context.Context) (<-chan RecognitionEvent, error)

func (f recognizerFunc) Start(ctx context.Context) (<-chan RecognitionEvent, error) { return f(ctx) }

func TestEmitLines(t *testing.T) {
	events := make(chan RecognitionEvent, 10)
	emitLines(context.Background(), strings.NewReader("show me\n\n  return of premium plans \n"), events)
	close(events)

	var got []string
	for ev := range events {
		got = append(got, ev.Transcript())
	}
	assert.Equal(t, []string{"show me", "show me return of premium plans"}, got)
}

func TestDetectRecognizer(t *testing.T) {
	withLookPath(t, map[string]string{"vosk-stream": "/opt/bin/vosk-stream"})

	_, err := DetectRecognizer(config.SpeechConfig{})
	assert.ErrorIs(t, err, ErrRecognitionUnavailable)

	_, err = DetectRecognizer(config.SpeechConfig{RecognizerCommand: "whisper"})
	assert.ErrorIs(t, err, ErrRecognitionUnavailable)

	r, err := DetectRecognizer(config.SpeechConfig{RecognizerCommand: "vosk-stream", RecognizerArgs: []string{"--lang", "en-in"}})
	require.NoError(t, err)
	assert.Equal(t, "/opt/bin/vosk-stream", r.Path)
	assert.Equal(t, []string{"--lang", "en-in"}, r.Args)
}
