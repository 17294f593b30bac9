package storage

import (
	"encoding/json"
	"time"
)

// HistoryRecord is one served recommendation.
type HistoryRecord struct {
	ID          string          `json:"id"`
	RequestID   string          `json:"requestId,omitempty"`
	Fingerprint string          `json:"fingerprint"`
	Story       string          `json:"story"`
	Tier        string          `json:"tier"`
	CandidateID string          `json:"candidateId"`
	Score       float64         `json:"score"`
	Context     json.RawMessage `json:"context"`
	CreatedAt   time.Time       `json:"createdAt"`
}
