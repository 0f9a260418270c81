package models

import (
	"encoding/json"
	"fmt"
)

// Recommendation is an insurance plan suggestion computed by the backend.
type Recommendation struct {
	Company         string  `json:"company"`
	ProductName     string  `json:"product_name"`
	PremiumEstimate float64 `json:"premium_estimate"`
	CSR             float64 `json:"csr"`
	Score           float64 `json:"score"`
	USP             string  `json:"usp"`
}

// DecodeRecommendations parses a pass-through recommendations payload.
// A null or empty payload yields nil without error.
func DecodeRecommendations(raw json.RawMessage) ([]Recommendation, error) {
	if !isPresent(raw) {
		return nil, nil
	}
	var recs []Recommendation
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	return recs, nil
}
