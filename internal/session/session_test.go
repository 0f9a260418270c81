package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "insurebot-chat/internal/common/errors"
	httpclient "insurebot-chat/internal/common/http"
	"insurebot-chat/internal/common/logger"
	"insurebot-chat/internal/models"
)

// ==========================
// Test doubles
// ==========================

type transportFunc func(ctx context.Context, sessionID string, messages []models.Message) (*models.ChatResponse, error)

func (f transportFunc) Send(ctx context.Context, sessionID string, messages []models.Message) (*models.ChatResponse, error) {
	return f(ctx, sessionID, messages)
}

type recordingNotifier struct {
	mu       sync.Mutex
	success  []string
	warnings []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.success = append(n.success, msg)
}

func (n *recordingNotifier) Warn(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, msg)
}

func replyWith(text string) transportFunc {
	return func(context.Context, string, []models.Message) (*models.ChatResponse, error) {
		return &models.ChatResponse{Response: text}, nil
	}
}

func newTestSession(t *testing.T, tr Transport, opts ...Option) (*Session, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	opts = append([]Option{WithNotifier(n), WithLogger(logger.NewTestLogger(t))}, opts...)
	return New(tr, opts...), n
}

// ==========================
// SendMessage
// ==========================

func TestSendMessage_RoundTrip(t *testing.T) {
	var sent []models.Message
	s, n := newTestSession(t, transportFunc(func(_ context.Context, _ string, msgs []models.Message) (*models.ChatResponse, error) {
		sent = msgs
		return &models.ChatResponse{Response: "hello"}, nil
	}))

	reply, err := s.SendMessage(context.Background(), "hi")
	require.NoError(t, err)

	assert.True(t, reply.OK())
	assert.Equal(t, models.NewAssistantMessage("hello"), reply.Message)
	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}, s.Messages())
	assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "hi"}}, sent)
	assert.False(t, s.Busy())
	assert.Empty(t, n.success)
	assert.Empty(t, n.warnings)
}

func TestSendMessage_SendsFullHistory(t *testing.T) {
	var calls [][]models.Message
	s, _ := newTestSession(t, transportFunc(func(_ context.Context, _ string, msgs []models.Message) (*models.ChatResponse, error) {
		calls = append(calls, msgs)
		return &models.ChatResponse{Response: "ok"}, nil
	}))

	_, err := s.SendMessage(context.Background(), "first")
	require.NoError(t, err)
	_, err = s.SendMessage(context.Background(), "second")
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.Len(t, calls[0], 1)
	assert.Equal(t, []models.Message{
		models.NewUserMessage("first"),
		models.NewAssistantMessage("ok"),
		models.NewUserMessage("second"),
	}, calls[1])
	assert.Len(t, s.Messages(), 4)
}

func TestSendMessage_EmptyInputIsNoop(t *testing.T) {
	called := false
	s, n := newTestSession(t, transportFunc(func(context.Context, string, []models.Message) (*models.ChatResponse, error) {
		called = true
		return nil, nil
	}))

	for _, text := range []string{"", "   ", "\n\t"} {
		reply, err := s.SendMessage(context.Background(), text)
		assert.ErrorIs(t, err, ErrEmptyMessage)
		assert.Equal(t, Reply{}, reply)
	}

	assert.False(t, called)
	assert.Empty(t, s.Messages())
	assert.False(t, s.Busy())
	assert.Empty(t, n.warnings)
}

func TestSendMessage_TransportFailureAppendsApology(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
	}{
		{"transport error", apperrors.NewTransportError(errors.New("connection refused")), apperrors.ErrCodeTransportFailed},
		{"plain error", errors.New("boom"), apperrors.ErrCodeTransportFailed},
		{"context canceled", context.Canceled, apperrors.ErrCodeTransportFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, n := newTestSession(t, transportFunc(func(context.Context, string, []models.Message) (*models.ChatResponse, error) {
				return nil, tt.err
			}))

			reply, err := s.SendMessage(context.Background(), "hi")
			require.NoError(t, err)

			require.NotNil(t, reply.Failure)
			assert.False(t, reply.OK())
			assert.Equal(t, tt.code, reply.Failure.Code)
			assert.ErrorIs(t, reply.Failure, tt.err)
			assert.Equal(t, apperrors.SessionApology, reply.Message.Content)

			msgs := s.Messages()
			require.Len(t, msgs, 2)
			assert.Equal(t, models.NewUserMessage("hi"), msgs[0])
			assert.Equal(t, models.NewAssistantMessage(apperrors.SessionApology), msgs[1])
			assert.Equal(t, []string{apperrors.SendFailedNotice}, n.warnings)
			assert.False(t, s.Busy())
		})
	}
}

func TestSendMessage_StoresRecommendations(t *testing.T) {
	recs := json.RawMessage(`[{"company":"HDFC Life","product_name":"Click 2 Protect","premium_estimate":12000,"csr":99.1,"score":0.92,"usp":"High CSR"}]`)
	responses := []*models.ChatResponse{
		{Response: "Here are your plans", Recommendations: recs, Analysis: json.RawMessage(`{"risk":"low"}`)},
		{Response: "Anything else?", Recommendations: json.RawMessage(`null`)},
	}
	i := 0
	s, n := newTestSession(t, transportFunc(func(context.Context, string, []models.Message) (*models.ChatResponse, error) {
		r := responses[i]
		i++
		return r, nil
	}))

	reply, err := s.SendMessage(context.Background(), "I am 30 years old, earning 50 lakhs, non-smoker.")
	require.NoError(t, err)
	require.Len(t, reply.Recommendations, 1)
	assert.Equal(t, "HDFC Life", reply.Recommendations[0].Company)
	assert.JSONEq(t, `{"risk":"low"}`, string(reply.Analysis))
	assert.Equal(t, []string{apperrors.PlansReadyNotice}, n.success)

	reply, err = s.SendMessage(context.Background(), "thanks")
	require.NoError(t, err)
	assert.Nil(t, reply.Recommendations)

	// previous plans stay visible
	require.Len(t, s.Recommendations(), 1)
	assert.Equal(t, "Click 2 Protect", s.Recommendations()[0].ProductName)
	assert.JSONEq(t, `{"risk":"low"}`, string(s.Analysis()))
	assert.Len(t, n.success, 1)
}

func TestSendMessage_UndecodableRecommendationsIgnored(t *testing.T) {
	s, n := newTestSession(t, transportFunc(func(context.Context, string, []models.Message) (*models.ChatResponse, error) {
		return &models.ChatResponse{Response: "ok", Recommendations: json.RawMessage(`[1,2]`)}, nil
	}))

	reply, err := s.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.True(t, reply.OK())
	assert.Nil(t, s.Recommendations())
	assert.Empty(t, n.success)
}

func TestSendMessage_BusyWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	s, _ := newTestSession(t, transportFunc(func(context.Context, string, []models.Message) (*models.ChatResponse, error) {
		close(entered)
		<-release
		return &models.ChatResponse{Response: "done"}, nil
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.SendMessage(context.Background(), "hi")
	}()

	<-entered
	assert.True(t, s.Busy())
	close(release)
	<-done
	assert.False(t, s.Busy())
}

func TestSendMessage_SerializesConcurrentSends(t *testing.T) {
	firstEntered := make(chan struct{})
	releaseFirst := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	s, _ := newTestSession(t, transportFunc(func(_ context.Context, _ string, msgs []models.Message) (*models.ChatResponse, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(firstEntered)
			<-releaseFirst
		}
		return &models.ChatResponse{Response: "reply to " + msgs[len(msgs)-1].Content}, nil
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.SendMessage(context.Background(), "one")
	}()
	<-firstEntered

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.SendMessage(context.Background(), "two")
	}()

	// second send is queued behind the first
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, s.Messages(), 1)

	close(releaseFirst)
	wg.Wait()

	assert.Equal(t, []models.Message{
		models.NewUserMessage("one"),
		models.NewAssistantMessage("reply to one"),
		models.NewUserMessage("two"),
		models.NewAssistantMessage("reply to two"),
	}, s.Messages())
}

func TestSendMessage_Timeout(t *testing.T) {
	s, _ := newTestSession(t, transportFunc(func(ctx context.Context, _ string, _ []models.Message) (*models.ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), WithTimeout(20*time.Millisecond))

	reply, err := s.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	require.NotNil(t, reply.Failure)
	assert.ErrorIs(t, reply.Failure, context.DeadlineExceeded)
}

func TestSession_IDAndSnapshotIsolation(t *testing.T) {
	s, _ := newTestSession(t, replyWith("hello"), WithID("fixed-id"))
	assert.Equal(t, "fixed-id", s.ID())

	_, err := s.SendMessage(context.Background(), "hi")
	require.NoError(t, err)

	msgs := s.Messages()
	msgs[0].Content = "tampered"
	assert.Equal(t, "hi", s.Messages()[0].Content)

	other := New(replyWith("x"))
	assert.Len(t, other.ID(), 36)
	assert.NotEqual(t, other.ID(), New(replyWith("x")).ID())
}

// ==========================
// HTTPTransport
// ==========================

func TestHTTPTransport_Send(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"response":"hello","recommendations":null,"analysis":{"a":1}}`)
	}))
	defer server.Close()

	tr := NewHTTPTransport(server.URL+"/", httpclient.NewClientWith(server.Client()))
	resp, err := tr.Send(context.Background(), "sess-1", []models.Message{
		models.NewUserMessage("hi"),
		models.NewAssistantMessage("hey"),
		models.NewUserMessage("plans?"),
	})
	require.NoError(t, err)

	assert.Equal(t, "hello", resp.Response)
	assert.False(t, resp.HasRecommendations())
	assert.True(t, resp.HasAnalysis())
	assert.JSONEq(t, `{"messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hey"},{"role":"user","content":"plans?"}]}`, string(gotBody))
	assert.Equal(t, "sess-1", gotHeader.Get(httpclient.SessionIDHeader))
	assert.NotEmpty(t, gotHeader.Get(httpclient.RequestIDHeader))
}

func TestHTTPTransport_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"relay 500", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error":"Failed to process chat message","response":"sorry"}`)
		}},
		{"relay 400", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}},
		{"undecodable body", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `<html>`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			tr := NewHTTPTransport(server.URL, nil)
			_, err := tr.Send(context.Background(), "", nil)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTransportFailed))
		})
	}
}

func TestHTTPTransport_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	s, n := newTestSession(t, NewHTTPTransport(url, nil))
	reply, err := s.SendMessage(context.Background(), "hi")
	require.NoError(t, err)

	require.NotNil(t, reply.Failure)
	assert.Equal(t, apperrors.ErrCodeTransportFailed, reply.Failure.Code)
	assert.Equal(t, apperrors.SessionApology, reply.Message.Content)
	assert.Equal(t, []string{apperrors.SendFailedNotice}, n.warnings)
}
