// Package console is the terminal front end: it reads user lines, drives a
// chat session and prints rendered replies.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	apperrors "insurebot-chat/internal/common/errors"
	"insurebot-chat/internal/common/logger"
	"insurebot-chat/internal/models"
	"insurebot-chat/internal/session"
	"insurebot-chat/internal/speech"
)

const BusyText = "Analyzing your profile..."

// SampleQuestions are offered before the first message.
var SampleQuestions = []string{
	"I am 30 years old, earning 50 lakhs, non-smoker.",
	"I have 25 lakh in loans and earn 80 lakh per year.",
	"Show me return of premium plans.",
}

const helpText = `Commands:
  /samples     list sample questions
  /1 /2 /3     send a sample question
  /mic         dictate a message; Enter sends it
  /send        send the dictated message
  /clear       discard the dictated message
  /history     list the conversation with message numbers
  /speak [N]   read message N aloud (default: the latest reply)
  /mute        toggle spoken replies
  /stop        stop speaking
  /recs        show the latest recommended plans
  /help        show this help
  /quit        leave
`

// Notifier prints session notices on the console output.
type Notifier struct {
	mu  sync.Mutex
	out io.Writer
}

func NewNotifier(out io.Writer) *Notifier {
	return &Notifier{out: out}
}

func (n *Notifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, "✓ %s\n", msg)
}

func (n *Notifier) Warn(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, "! %s\n", msg)
}

type Console struct {
	session    *session.Session
	player     *speech.Player
	recognizer speech.Recognizer
	renderer   Renderer
	out        io.Writer
	logger     logger.Logger

	muted         bool
	speechOff     bool
	speechWarned  bool
	dictateWarned bool

	// dictated text waiting for /send or an empty line
	pending string
}

type Option func(*Console)

func WithPlayer(p *speech.Player) Option {
	return func(c *Console) { c.player = p }
}

func WithRecognizer(r speech.Recognizer) Option {
	return func(c *Console) { c.recognizer = r }
}

func WithRenderer(r Renderer) Option {
	return func(c *Console) { c.renderer = r }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Console) { c.logger = l }
}

// Muted starts the console with speech muted. /mute turns it back on.
func Muted(m bool) Option {
	return func(c *Console) { c.muted = m }
}

// SpeechOff disables speech for the whole run. Nothing is spoken and the
// missing-engine warning is not shown.
func SpeechOff(off bool) Option {
	return func(c *Console) { c.speechOff = off }
}

func New(sess *session.Session, out io.Writer, opts ...Option) *Console {
	c := &Console{
		session:  sess,
		player:   speech.NewPlayer(nil),
		renderer: PlainRenderer{},
		out:      out,
		logger:   logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run reads lines from in until EOF, /quit or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	defer c.player.Stop()

	fmt.Fprintln(c.out, "Hi! I'm your AI-powered insurance advisor. Let's find the perfect term life insurance plan for you.")
	c.printSamples()
	fmt.Fprintln(c.out, "Type /help for commands.")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(c.out, "> ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := c.handleLine(ctx, line); quit {
				return nil
			}
		}
	}
}

func (c *Console) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		if c.pending != "" {
			c.sendPending(ctx)
		}
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.pending = ""
		c.send(ctx, line)
		return false
	}

	fields := strings.Fields(strings.ToLower(line))
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprint(c.out, helpText)
	case "/samples":
		c.printSamples()
	case "/mute":
		if c.speechOff {
			fmt.Fprintln(c.out, "Speech is turned off.")
			break
		}
		c.muted = !c.muted
		if c.muted {
			c.player.Stop()
			fmt.Fprintln(c.out, "Speech muted.")
		} else {
			fmt.Fprintln(c.out, "Speech on.")
		}
	case "/stop":
		c.player.Stop()
	case "/recs":
		c.showRecommendations()
	case "/mic":
		c.dictate(ctx)
	case "/send":
		if c.pending == "" {
			fmt.Fprintln(c.out, "Nothing to send.")
			break
		}
		c.sendPending(ctx)
	case "/clear":
		if c.pending != "" {
			c.pending = ""
			fmt.Fprintln(c.out, "Dictated message discarded.")
		}
	case "/history":
		c.showHistory()
	case "/speak":
		c.speakMessage(ctx, args)
	default:
		if n, err := strconv.Atoi(strings.TrimPrefix(cmd, "/")); err == nil && n >= 1 && n <= len(SampleQuestions) {
			q := SampleQuestions[n-1]
			fmt.Fprintf(c.out, "> %s\n", q)
			c.send(ctx, q)
			return false
		}
		fmt.Fprintf(c.out, "Unknown command %q. Type /help for commands.\n", line)
	}
	return false
}

func (c *Console) send(ctx context.Context, text string) {
	fmt.Fprintln(c.out, BusyText)
	reply, err := c.session.SendMessage(ctx, text)
	if err != nil {
		return
	}

	c.print(reply.Message.Content)
	if len(reply.Recommendations) > 0 {
		c.print(formatRecommendations(reply.Recommendations))
	}
	if reply.OK() && !c.muted {
		c.speak(ctx, reply.Message.Content)
	}
}

func (c *Console) sendPending(ctx context.Context) {
	text := c.pending
	c.pending = ""
	c.send(ctx, text)
}

func (c *Console) speak(ctx context.Context, text string) {
	if c.speechOff {
		return
	}
	err := c.player.Play(ctx, text)
	if errors.Is(err, speech.ErrSynthesisUnavailable) {
		if !c.speechWarned {
			c.speechWarned = true
			c.logger.Warn("speech disabled", map[string]interface{}{
				"code": apperrors.NewCapabilityUnavailableError("speech synthesis").Code,
			})
			fmt.Fprintln(c.out, apperrors.SpeechUnsupported)
		}
		return
	}
	if err != nil {
		c.logger.WithError(err).Warn("speech failed", nil)
	}
}

// speakMessage reads one logged message aloud. With no argument it picks
// the newest assistant reply; otherwise args[0] is a 1-based log position.
func (c *Console) speakMessage(ctx context.Context, args []string) {
	switch {
	case c.speechOff:
		fmt.Fprintln(c.out, "Speech is turned off.")
		return
	case c.muted:
		fmt.Fprintln(c.out, "Speech is muted. Type /mute to turn it on.")
		return
	}

	msgs := c.session.Messages()
	idx := -1
	if len(args) == 0 {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == models.RoleAssistant {
				idx = i
				break
			}
		}
		if idx < 0 {
			fmt.Fprintln(c.out, "No reply to speak yet.")
			return
		}
	} else {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(msgs) {
			fmt.Fprintf(c.out, "No message %s. Type /history to list messages.\n", args[0])
			return
		}
		idx = n - 1
	}
	c.speak(ctx, msgs[idx].Content)
}

func (c *Console) showHistory() {
	msgs := c.session.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(c.out, "No messages yet.")
		return
	}
	for i, m := range msgs {
		who := "You"
		if m.Role == models.RoleAssistant {
			who = "Advisor"
		}
		fmt.Fprintf(c.out, "%3d. %s: %s\n", i+1, who, preview(m.Content, 72))
	}
}

// preview returns the first line of text cut to max runes.
func preview(text string, max int) string {
	line, _, more := strings.Cut(text, "\n")
	r := []rune(line)
	if len(r) > max {
		return string(r[:max]) + "…"
	}
	if more {
		return line + " …"
	}
	return line
}

func (c *Console) dictate(ctx context.Context) {
	if c.speechOff {
		fmt.Fprintln(c.out, "Speech is turned off.")
		return
	}
	c.player.Stop()
	fmt.Fprintln(c.out, "Listening...")
	text, err := speech.Dictate(ctx, c.recognizer, func(partial string) {
		fmt.Fprintf(c.out, "\r… %s", partial)
	})
	if errors.Is(err, speech.ErrRecognitionUnavailable) {
		if !c.dictateWarned {
			c.dictateWarned = true
			c.logger.Warn("dictation disabled", map[string]interface{}{
				"code": apperrors.NewCapabilityUnavailableError("speech recognition").Code,
			})
		}
		fmt.Fprintln(c.out, apperrors.DictationUnsupported)
		return
	}
	if err != nil {
		c.logger.WithError(err).Warn("dictation failed", nil)
		fmt.Fprintln(c.out)
		return
	}
	fmt.Fprintln(c.out)

	text = strings.TrimSpace(text)
	if text == "" {
		fmt.Fprintln(c.out, "Nothing heard.")
		return
	}
	c.pending = text
	fmt.Fprintf(c.out, "Dictated: %s\n", text)
	fmt.Fprintln(c.out, "Press Enter or type /send to send it, /clear to discard it, or type a replacement.")
}

func (c *Console) showRecommendations() {
	recs := c.session.Recommendations()
	if len(recs) == 0 {
		fmt.Fprintln(c.out, "No recommendations yet. Tell me about your age, income and loans.")
		return
	}
	c.print(formatRecommendations(recs))
}

func (c *Console) print(markdown string) {
	out, err := c.renderer.Render(markdown)
	if err != nil {
		c.logger.WithError(err).Debug("markdown render failed", nil)
		out = markdown + "\n"
	}
	fmt.Fprint(c.out, out)
}

func (c *Console) printSamples() {
	fmt.Fprintln(c.out, "Try asking:")
	for i, q := range SampleQuestions {
		fmt.Fprintf(c.out, "  /%d  %s\n", i+1, q)
	}
}
