package zerodb

import "time"

// MemoryEntry is an append-only tagged record. The platform has no tables
// for users or tasks, so memories double as rows.
type MemoryEntry struct {
	ID        string         `json:"id,omitempty"`
	AgentID   string         `json:"agent_id"`
	SessionID string         `json:"session_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"memory_metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// MemoryQuery filters GetMemory. Empty strings match everything.
type MemoryQuery struct {
	AgentID   string
	SessionID string
	Role      string
	Skip      int
	Limit     int
}

type Vector struct {
	ID        string         `json:"id,omitempty"`
	Embedding []float64      `json:"vector_embedding"`
	Namespace string         `json:"namespace"`
	Metadata  map[string]any `json:"vector_metadata"`
	Document  string         `json:"document"`
	Source    string         `json:"source"`
	CreatedAt time.Time      `json:"created_at"`
}

type VectorMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"vector_metadata"`
	Document string         `json:"document"`
}

type SearchResult struct {
	Vectors []VectorMatch `json:"vectors"`
}

type Event struct {
	ID        string         `json:"id,omitempty"`
	Topic     string         `json:"topic"`
	Payload   map[string]any `json:"event_payload"`
	CreatedAt time.Time      `json:"created_at"`
}

type AgentLog struct {
	AgentID   string         `json:"agent_id"`
	SessionID string         `json:"session_id"`
	Level     string         `json:"log_level"`
	Message   string         `json:"log_message"`
	Payload   map[string]any `json:"raw_payload"`
}

// RLHFEntry is one feedback record used to tune suggestions later.
type RLHFEntry struct {
	AgentID      string         `json:"agent_id"`
	SessionID    string         `json:"session_id"`
	FeedbackType string         `json:"feedback_type"`
	Rating       float64        `json:"feedback_rating"`
	Comments     string         `json:"feedback_comments"`
	Metadata     map[string]any `json:"rlhf_metadata"`
}

type FileUpload struct {
	Data        []byte
	Filename    string
	ContentType string
	Metadata    map[string]any
}

type StoredFile struct {
	FileID      string         `json:"file_id"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type,omitempty"`
	SizeBytes   int            `json:"size_bytes"`
	Metadata    map[string]any `json:"file_metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Status is the free-form health payload returned by GetDatabaseStatus.
type Status map[string]any
