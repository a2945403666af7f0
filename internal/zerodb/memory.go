package zerodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
)

var errNoEmbedder = errors.New("zerodb: documents must carry embeddings")

// MemoryClient is an in-process Client. Vector similarity is served by
// chromem-go with one collection per namespace and dimension, since
// chromem rejects queries whose dimension differs from the stored documents.
type MemoryClient struct {
	mu       sync.Mutex
	closed   bool
	memories []MemoryEntry
	vectors  map[string]Vector
	events   []Event
	logs     []AgentLog
	feedback []RLHFEntry
	files    map[string]StoredFile
	blobs    map[string][]byte

	vdb *chromem.DB
	now func() time.Time
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		vectors: make(map[string]Vector),
		files:   make(map[string]StoredFile),
		blobs:   make(map[string][]byte),
		vdb:     chromem.NewDB(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

func collectionName(namespace string, dim int) string {
	return fmt.Sprintf("%s_%d", namespace, dim)
}

func (c *MemoryClient) StoreMemory(_ context.Context, m MemoryEntry) (MemoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return MemoryEntry{}, ErrClosed
	}

	m.ID = uuid.New().String()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = c.now()
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	c.memories = append(c.memories, m)
	return m, nil
}

func (c *MemoryClient) GetMemory(_ context.Context, q MemoryQuery) ([]MemoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	var matched []MemoryEntry
	for _, m := range c.memories {
		if q.AgentID != "" && m.AgentID != q.AgentID {
			continue
		}
		if q.SessionID != "" && m.SessionID != q.SessionID {
			continue
		}
		if q.Role != "" && m.Role != q.Role {
			continue
		}
		matched = append(matched, m)
	}

	return page(matched, q.Skip, q.Limit), nil
}

func page[T any](items []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	items = items[skip:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

func (c *MemoryClient) UpsertVector(ctx context.Context, v Vector) (Vector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Vector{}, ErrClosed
	}
	if len(v.Embedding) == 0 {
		return Vector{}, errors.New("zerodb: empty embedding")
	}

	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.Namespace == "" {
		v.Namespace = "default"
	}
	v.CreatedAt = c.now()

	col, err := c.vdb.GetOrCreateCollection(collectionName(v.Namespace, len(v.Embedding)), nil, noEmbedding)
	if err != nil {
		return Vector{}, fmt.Errorf("vector collection: %w", err)
	}

	emb := make([]float32, len(v.Embedding))
	for i, f := range v.Embedding {
		emb[i] = float32(f)
	}
	doc := chromem.Document{
		ID:        v.ID,
		Embedding: emb,
		Content:   v.Document,
		Metadata:  map[string]string{"source": v.Source},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return Vector{}, fmt.Errorf("add vector: %w", err)
	}

	c.vectors[v.ID] = v
	return v, nil
}

func (c *MemoryClient) SearchVectors(ctx context.Context, query []float64, limit int, namespace string) (SearchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return SearchResult{}, ErrClosed
	}

	out := SearchResult{Vectors: []VectorMatch{}}
	col := c.vdb.GetCollection(collectionName(namespace, len(query)), noEmbedding)
	if col == nil || limit <= 0 {
		return out, nil
	}

	n := min(limit, col.Count())
	if n == 0 {
		return out, nil
	}

	emb := make([]float32, len(query))
	for i, f := range query {
		emb[i] = float32(f)
	}
	results, err := col.QueryEmbedding(ctx, emb, n, nil, nil)
	if err != nil {
		return SearchResult{}, fmt.Errorf("query vectors: %w", err)
	}

	for _, r := range results {
		v := c.vectors[r.ID]
		out.Vectors = append(out.Vectors, VectorMatch{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Metadata: v.Metadata,
			Document: r.Content,
		})
	}
	return out, nil
}

func (c *MemoryClient) PublishEvent(_ context.Context, topic string, payload map[string]any) (Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Event{}, ErrClosed
	}

	e := Event{ID: uuid.New().String(), Topic: topic, Payload: payload, CreatedAt: c.now()}
	c.events = append(c.events, e)
	return e, nil
}

func (c *MemoryClient) LogAgentActivity(_ context.Context, l AgentLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if l.Level == "" {
		l.Level = "INFO"
	}
	c.logs = append(c.logs, l)
	return nil
}

func (c *MemoryClient) LogRLHF(_ context.Context, e RLHFEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.feedback = append(c.feedback, e)
	return nil
}

func (c *MemoryClient) StoreFile(_ context.Context, f FileUpload) (StoredFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return StoredFile{}, ErrClosed
	}

	sf := StoredFile{
		FileID:      uuid.New().String(),
		Filename:    f.Filename,
		ContentType: f.ContentType,
		SizeBytes:   len(f.Data),
		Metadata:    f.Metadata,
		CreatedAt:   c.now(),
	}
	c.files[sf.FileID] = sf
	c.blobs[sf.FileID] = append([]byte(nil), f.Data...)
	return sf, nil
}

func (c *MemoryClient) GetDatabaseStatus(_ context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	namespaces := map[string]int{}
	for _, v := range c.vectors {
		namespaces[v.Namespace]++
	}
	return Status{
		"status":     "healthy",
		"backend":    "memory",
		"memories":   len(c.memories),
		"vectors":    len(c.vectors),
		"namespaces": namespaces,
		"events":     len(c.events),
		"files":      len(c.files),
	}, nil
}

func (c *MemoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Events returns published events for a topic, oldest first. An empty topic
// returns every event.
func (c *MemoryClient) Events(topic string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Event
	for _, e := range c.events {
		if topic == "" || e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

// AgentLogs returns agent activity logged under agentID.
func (c *MemoryClient) AgentLogs(agentID string) []AgentLog {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []AgentLog
	for _, l := range c.logs {
		if agentID == "" || l.AgentID == agentID {
			out = append(out, l)
		}
	}
	return out
}

// Feedback returns RLHF entries of the given type.
func (c *MemoryClient) Feedback(feedbackType string) []RLHFEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []RLHFEntry
	for _, e := range c.feedback {
		if feedbackType == "" || e.FeedbackType == feedbackType {
			out = append(out, e)
		}
	}
	return out
}

// Vectors returns stored vectors of a namespace ordered by creation.
func (c *MemoryClient) Vectors(namespace string) []Vector {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Vector
	for _, v := range c.vectors {
		if v.Namespace == namespace {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// File returns the bytes stored under id.
func (c *MemoryClient) File(id string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blobs[id]
	return b, ok
}
