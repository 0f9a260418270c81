package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	apperrors "insurebot-chat/internal/common/errors"
	httpclient "insurebot-chat/internal/common/http"
	"insurebot-chat/internal/models"
)

// HTTPTransport posts the history to the relay's /chat endpoint.
type HTTPTransport struct {
	client *httpclient.Client
	url    string
}

func NewHTTPTransport(relayURL string, client *httpclient.Client) *HTTPTransport {
	if client == nil {
		client = httpclient.NewClient(0)
	}
	return &HTTPTransport{
		client: client,
		url:    strings.TrimRight(relayURL, "/") + "/chat",
	}
}

func (t *HTTPTransport) Send(ctx context.Context, sessionID string, messages []models.Message) (*models.ChatResponse, error) {
	if messages == nil {
		messages = []models.Message{}
	}
	body, err := json.Marshal(models.ChatRequest{Messages: messages})
	if err != nil {
		return nil, apperrors.NewTransportError(fmt.Errorf("encode request: %w", err))
	}

	resp, err := t.client.PostJSON(ctx, t.url, body, httpclient.CorrelationHeader(sessionID, uuid.NewString()))
	if err != nil {
		return nil, apperrors.NewTransportError(err)
	}
	defer resp.Body.Close()

	if !httpclient.IsSuccess(resp.StatusCode) {
		io.Copy(io.Discard, resp.Body)
		return nil, apperrors.NewTransportError(fmt.Errorf("relay returned %d", resp.StatusCode))
	}

	var out models.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.NewTransportError(fmt.Errorf("decode reply: %w", err))
	}
	return &out, nil
}
