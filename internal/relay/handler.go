// internal/relay/handler.go
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	apperrors "insurebot-chat/internal/common/errors"
	httpclient "insurebot-chat/internal/common/http"
	"insurebot-chat/internal/common/logger"
	"insurebot-chat/internal/common/metrics"
	"insurebot-chat/internal/common/validation"
	"insurebot-chat/internal/models"
	"insurebot-chat/internal/transcript"
)

const Route = "/chat"

var (
	ErrBackendUnreachable = errors.New("BACKEND_UNREACHABLE")
	ErrBackendStatus      = errors.New("BACKEND_STATUS")
	ErrBackendMalformed   = errors.New("BACKEND_MALFORMED")
)

// Handler serves POST /chat. It keeps no per-request state and is safe for
// concurrent use.
type Handler struct {
	config    *Config
	client    *httpclient.Client
	validator *validation.Validator
	sink      transcript.Sink
	logger    logger.Logger
	now       func() time.Time
}

// Option customises a Handler.
type Option func(*Handler)

// WithClient replaces the backend HTTP client.
func WithClient(c *httpclient.Client) Option {
	return func(h *Handler) { h.client = c }
}

// WithTranscript sets the sink completed turns are recorded to.
func WithTranscript(s transcript.Sink) Option {
	return func(h *Handler) { h.sink = s }
}

func NewHandler(config *Config, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		config:    config,
		client:    httpclient.NewClient(0),
		validator: validation.ChatRequest(),
		sink:      transcript.Nop{},
		logger:    log.With(map[string]interface{}{"component": "relay"}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// forwardResult carries what the backend said for one turn.
type forwardResult struct {
	reply  models.ChatResponse
	status int
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method not allowed"})
		return
	}

	start := h.now()
	metrics.RelayInFlight.Inc()
	defer metrics.RelayInFlight.Dec()

	requestID := r.Header.Get(httpclient.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	sessionID := r.Header.Get(httpclient.SessionIDHeader)
	log := h.logger.With(map[string]interface{}{
		"requestId": requestID,
		"sessionId": sessionID,
	})

	body, err := h.readBody(w, r)
	if err != nil {
		h.rejectInvalid(w, log, start, err.Error())
		return
	}
	if res := h.validator.Validate(body); !res.Valid {
		h.rejectInvalid(w, log, start, res.Summary())
		return
	}

	messages := gjson.GetBytes(body, "messages")
	log.Info("forwarding chat turn", map[string]interface{}{
		"messageCount": len(messages.Array()),
	})

	ctx := r.Context()
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	result, err := h.forward(ctx, messages.Raw, httpclient.CorrelationHeader(sessionID, requestID))
	if err != nil {
		stdErr := upstreamError(err)
		log.WithError(err).Error("backend call failed", map[string]interface{}{
			"code":   stdErr.Code,
			"status": result.status,
		})
		metrics.UpstreamFailures.WithLabelValues(failureReason(err)).Inc()
		h.observe(stdErr.HTTPStatus(), metrics.OutcomeUpstreamError, start)
		writeJSON(w, stdErr.HTTPStatus(), models.ErrorResponse{
			Error:    apperrors.ProcessingFailed,
			Response: apperrors.RelayApology,
		})
		return
	}

	h.record(r.Context(), log, transcript.Entry{
		SessionID:           sessionID,
		RequestID:           requestID,
		Timestamp:           h.now(),
		UserMessage:         lastUserMessage(messages),
		Reply:               result.reply.Response,
		RecommendationCount: int(gjson.GetBytes(result.reply.Recommendations, "#").Int()),
	})

	log.Info("chat turn relayed", map[string]interface{}{
		"hasRecommendations": result.reply.HasRecommendations(),
		"hasAnalysis":        result.reply.HasAnalysis(),
		"duration":           h.now().Sub(start).String(),
	})
	h.observe(http.StatusOK, metrics.OutcomeOK, start)
	writeJSON(w, http.StatusOK, result.reply)
}

// upstreamError keeps a StandardError already in the chain and wraps
// anything else as an upstream failure.
func upstreamError(err error) *apperrors.StandardError {
	if apperrors.CodeOf(err) == apperrors.ErrCodeUpstreamFailed {
		return apperrors.Normalize(err)
	}
	return apperrors.NewUpstreamError(err)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	src := r.Body
	if h.config.MaxBodyBytes > 0 {
		src = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (h *Handler) rejectInvalid(w http.ResponseWriter, log logger.Logger, start time.Time, details string) {
	stdErr := apperrors.NewValidationError(details)
	log.Warn("rejected chat request", map[string]interface{}{
		"code":    stdErr.Code,
		"details": details,
	})
	h.observe(stdErr.HTTPStatus(), metrics.OutcomeValidationError, start)
	writeJSON(w, stdErr.HTTPStatus(), models.ErrorResponse{Error: apperrors.MessagesRequired})
}

// forward posts the message list unchanged and reshapes the backend reply.
func (h *Handler) forward(ctx context.Context, rawMessages string, header http.Header) (forwardResult, error) {
	payload := make([]byte, 0, len(rawMessages)+14)
	payload = append(payload, `{"messages":`...)
	payload = append(payload, rawMessages...)
	payload = append(payload, '}')

	resp, err := h.client.PostJSON(ctx, h.config.ChatURL(), payload, header)
	if err != nil {
		return forwardResult{}, fmt.Errorf("%w: %w", ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	result := forwardResult{status: resp.StatusCode}
	if !httpclient.IsSuccess(resp.StatusCode) {
		io.Copy(io.Discard, resp.Body)
		return result, fmt.Errorf("%w: %w", ErrBackendStatus, apperrors.NewUpstreamStatusError(resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, fmt.Errorf("%w: read body: %w", ErrBackendUnreachable, err)
	}
	reply, err := Reshape(data)
	if err != nil {
		return result, err
	}
	result.reply = reply
	return result, nil
}

// Reshape keeps response, recommendations and analysis from a backend body
// and drops every other field. A missing or non-string response becomes "",
// recommendations that are not a list and analysis that is not an object
// become null.
func Reshape(data []byte) (models.ChatResponse, error) {
	if !gjson.ValidBytes(data) {
		return models.ChatResponse{}, fmt.Errorf("%w: invalid JSON", ErrBackendMalformed)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return models.ChatResponse{}, fmt.Errorf("%w: body is not an object", ErrBackendMalformed)
	}

	var out models.ChatResponse
	if resp := root.Get("response"); resp.Type == gjson.String {
		out.Response = resp.Str
	}
	if recs := root.Get("recommendations"); recs.IsArray() {
		out.Recommendations = json.RawMessage(recs.Raw)
	}
	if analysis := root.Get("analysis"); analysis.IsObject() {
		out.Analysis = json.RawMessage(analysis.Raw)
	}
	return out, nil
}

func (h *Handler) record(ctx context.Context, log logger.Logger, e transcript.Entry) {
	if err := h.sink.Record(ctx, e); err != nil {
		metrics.TranscriptWriteFailures.WithLabelValues(h.sink.Name()).Inc()
		log.WithError(err).Warn("transcript write failed", map[string]interface{}{
			"driver": h.sink.Name(),
		})
	}
}

func (h *Handler) observe(status int, outcome string, start time.Time) {
	metrics.RelayRequests.WithLabelValues(outcome).Inc()
	metrics.RelayDuration.WithLabelValues(outcome).Observe(h.now().Sub(start).Seconds())
	h.logger.Debug("request observed", map[string]interface{}{"status": status, "outcome": outcome})
}

// lastUserMessage finds the newest user-authored content in the forwarded
// list. Elements are not validated, so anything unexpected is skipped.
func lastUserMessage(messages gjson.Result) string {
	items := messages.Array()
	for i := len(items) - 1; i >= 0; i-- {
		role, ok := models.ParseRole(items[i].Get("role").String())
		if ok && role == models.RoleUser {
			return items[i].Get("content").String()
		}
	}
	return ""
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrBackendStatus):
		return "status"
	case errors.Is(err, ErrBackendMalformed):
		return "malformed"
	}
	return "unreachable"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
