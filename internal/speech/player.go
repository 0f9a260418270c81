package speech

import (
	"context"
	"sync"
	"sync/atomic"

	"insurebot-chat/internal/common/logger"
	"insurebot-chat/internal/common/observability"
)

// Player owns the single playback channel. Starting an utterance cancels
// the current one and waits for it to stop first.
type Player struct {
	synth    Synthesizer
	voice    Voice
	maxChars int
	logger   logger.Logger
	obs      *observability.Observability

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	speaking atomic.Bool
}

type PlayerOption func(*Player)

func WithVoice(v Voice) PlayerOption {
	return func(p *Player) { p.voice = v }
}

func WithMaxChars(n int) PlayerOption {
	return func(p *Player) { p.maxChars = n }
}

func WithLogger(l logger.Logger) PlayerOption {
	return func(p *Player) { p.logger = l }
}

func WithObservability(o *observability.Observability) PlayerOption {
	return func(p *Player) { p.obs = o }
}

// NewPlayer accepts a nil synth; Play then reports ErrSynthesisUnavailable.
func NewPlayer(synth Synthesizer, opts ...PlayerOption) *Player {
	p := &Player{
		synth:    synth,
		voice:    DefaultVoice(),
		maxChars: DefaultMaxChars,
		logger:   logger.NewNoOpLogger(),
		obs:      observability.Noop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Available reports whether a synthesizer is attached.
func (p *Player) Available() bool { return p.synth != nil }

// Play starts speaking text in the background and returns immediately.
func (p *Player) Play(ctx context.Context, text string) error {
	if p.synth == nil {
		return ErrSynthesisUnavailable
	}
	cleaned := CleanText(text, p.maxChars)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	if cleaned == "" {
		return nil
	}

	uctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	p.speaking.Store(true)
	p.obs.RecordUtterance(ctx)

	go func() {
		defer close(done)
		err := p.synth.Speak(uctx, cleaned, p.voice)
		p.speaking.Store(false)
		if err != nil && uctx.Err() == nil {
			p.logger.WithError(err).Warn("utterance failed", nil)
		}
	}()
	return nil
}

// Stop cancels the current utterance and waits for it to end.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
		p.cancel, p.done = nil, nil
	}
	p.speaking.Store(false)
}

// IsPlaying reports whether an utterance is in progress.
func (p *Player) IsPlaying() bool { return p.speaking.Load() }

// Wait blocks until the current utterance, if any, has finished.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}
