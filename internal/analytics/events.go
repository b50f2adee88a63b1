package analytics

import "time"

type EventType string

const (
	EventSearch       EventType = "search"
	EventZeroResult   EventType = "zero_result"
	EventSearchFailed EventType = "search_failed"
	EventCorpusReload EventType = "corpus_reload"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	Outcome   string    `json:"outcome"`
	MatchAll  bool      `json:"match_all"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Workers   int       `json:"workers"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type CorpusEvent struct {
	Type      EventType `json:"type"`
	Status    string    `json:"status"`
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	LatencyMs int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e SearchEvent) key() string { return string(e.Type) }

func (e CorpusEvent) key() string { return string(e.Type) }
