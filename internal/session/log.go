package session

import (
	"encoding/json"
	"sync"

	"insurebot-chat/internal/models"
)

// Log is the append-only message history.
type Log struct {
	mu       sync.RWMutex
	messages []models.Message
}

// Append adds m and returns a copy of the log including it.
func (l *Log) Append(m models.Message) []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, m)
	return append([]models.Message(nil), l.messages...)
}

func (l *Log) Snapshot() []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Message(nil), l.messages...)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Enrichment holds the latest structured data that came with a reply. A
// reply without recommendations leaves the previous ones in place.
type Enrichment struct {
	mu              sync.RWMutex
	recommendations []models.Recommendation
	analysis        json.RawMessage
}

func (e *Enrichment) SetRecommendations(recs []models.Recommendation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recommendations = append([]models.Recommendation(nil), recs...)
}

func (e *Enrichment) SetAnalysis(raw json.RawMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.analysis = append(json.RawMessage(nil), raw...)
}

func (e *Enrichment) Recommendations() []models.Recommendation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.recommendations == nil {
		return nil
	}
	return append([]models.Recommendation(nil), e.recommendations...)
}

func (e *Enrichment) Analysis() json.RawMessage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.analysis == nil {
		return nil
	}
	return append(json.RawMessage(nil), e.analysis...)
}
