// Package session keeps the ordered conversation for one console lifetime
// and drives each turn through the relay.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperrors "insurebot-chat/internal/common/errors"
	"insurebot-chat/internal/common/logger"
	"insurebot-chat/internal/common/observability"
	"insurebot-chat/internal/models"
)

var ErrEmptyMessage = errors.New("message is empty")

// Transport carries the full history to the relay and returns its reply.
type Transport interface {
	Send(ctx context.Context, sessionID string, messages []models.Message) (*models.ChatResponse, error)
}

// Notifier shows short-lived notices to the user.
type Notifier interface {
	Success(msg string)
	Warn(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Warn(string)    {}

// Failure describes why a turn fell back to the apology.
type Failure struct {
	Code   apperrors.ErrorCode
	Notice string
	Err    error
}

func (f *Failure) Error() string {
	return string(f.Code) + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Reply is the outcome of one turn. Message is always renderable; Failure
// is nil when the relay answered.
type Reply struct {
	Message         models.Message
	Recommendations []models.Recommendation
	Analysis        json.RawMessage
	Failure         *Failure
}

func (r Reply) OK() bool { return r.Failure == nil }

// Session owns one conversation. All methods are safe for concurrent use;
// SendMessage calls run one at a time in arrival order of the lock.
type Session struct {
	id        string
	transport Transport
	notifier  Notifier
	logger    logger.Logger
	obs       *observability.Observability
	timeout   time.Duration

	sendMu     sync.Mutex
	busy       atomic.Bool
	log        Log
	enrichment Enrichment
}

type Option func(*Session)

func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func WithObservability(o *observability.Observability) Option {
	return func(s *Session) { s.obs = o }
}

// WithTimeout bounds each turn. Zero means only ctx bounds it.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

func New(transport Transport, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		transport: transport,
		notifier:  nopNotifier{},
		logger:    logger.NewNoOpLogger(),
		obs:       observability.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(map[string]interface{}{"sessionId": s.id})
	return s
}

func (s *Session) ID() string { return s.id }

// Busy reports whether a turn is waiting on the relay.
func (s *Session) Busy() bool { return s.busy.Load() }

// Messages returns a copy of the log in append order.
func (s *Session) Messages() []models.Message { return s.log.Snapshot() }

// Recommendations returns the latest plans received, or nil.
func (s *Session) Recommendations() []models.Recommendation {
	return s.enrichment.Recommendations()
}

// Analysis returns the latest analysis object, or nil.
func (s *Session) Analysis() json.RawMessage { return s.enrichment.Analysis() }

// SendMessage appends text as a user turn, sends the whole history and
// appends the answer. Only empty input is reported as an error; relay
// problems produce an apology Reply with Failure set.
func (s *Session) SendMessage(ctx context.Context, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyMessage
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	history := s.log.Append(models.NewUserMessage(text))
	s.busy.Store(true)
	defer s.busy.Store(false)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.transport.Send(ctx, s.id, history)
	if err != nil {
		return s.fail(ctx, start, err), nil
	}

	reply := Reply{Message: models.NewAssistantMessage(resp.Response)}
	s.log.Append(reply.Message)

	if resp.HasRecommendations() {
		recs, err := models.DecodeRecommendations(resp.Recommendations)
		if err != nil {
			s.logger.WithError(err).Warn("ignoring undecodable recommendations", nil)
		} else {
			reply.Recommendations = recs
			s.enrichment.SetRecommendations(recs)
			s.notifier.Success(apperrors.PlansReadyNotice)
		}
	}
	if resp.HasAnalysis() {
		reply.Analysis = resp.Analysis
		s.enrichment.SetAnalysis(resp.Analysis)
	}

	s.obs.RecordTurn(ctx, time.Since(start), "ok")
	s.logger.Info("turn completed", map[string]interface{}{
		"messages":        s.log.Len(),
		"recommendations": len(reply.Recommendations),
		"duration":        time.Since(start).String(),
	})
	return reply, nil
}

func (s *Session) fail(ctx context.Context, start time.Time, err error) Reply {
	stdErr := apperrors.Normalize(err)
	if stdErr.Code == apperrors.ErrCodeInternal {
		stdErr = apperrors.NewTransportError(err)
	}

	apology := models.NewAssistantMessage(apperrors.SessionApology)
	s.log.Append(apology)
	s.notifier.Warn(apperrors.SendFailedNotice)

	s.obs.RecordTurn(context.WithoutCancel(ctx), time.Since(start), "failed")
	s.logger.WithError(err).Error("turn failed", map[string]interface{}{
		"code": stdErr.Code,
	})

	return Reply{
		Message: apology,
		Failure: &Failure{Code: stdErr.Code, Notice: apperrors.SendFailedNotice, Err: err},
	}
}
