// Package db is the self-hosted platform backend: a zerodb.Client that keeps
// memories, vectors, events and files in PostgreSQL or SQLite.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

type Store struct {
	conn    *sql.DB
	driver  string
	dialect dialect
	version int
	now     func() time.Time
}

var _ zerodb.Client = (*Store)(nil)

// Open connects, runs migrations, and returns a ready Store. The caller
// owns Close.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	conn, err := Connect(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}

	d := dialects[driver]
	version, err := migrate(ctx, conn, d)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Store{
		conn:    conn,
		driver:  driver,
		dialect: d,
		version: version,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Close() error { return s.conn.Close() }

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMap(raw string) (map[string]any, error) {
	m := map[string]any{}
	if raw == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *Store) StoreMemory(ctx context.Context, m zerodb.MemoryEntry) (zerodb.MemoryEntry, error) {
	m.ID = uuid.New().String()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}

	meta, err := encodeJSON(m.Metadata)
	if err != nil {
		return zerodb.MemoryEntry{}, fmt.Errorf("encode memory metadata: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO memories (id, agent_id, session_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.AgentID, m.SessionID, m.Role, m.Content, meta, m.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return zerodb.MemoryEntry{}, fmt.Errorf("insert memory: %w", err)
	}
	return m, nil
}

func (s *Store) GetMemory(ctx context.Context, q zerodb.MemoryQuery) ([]zerodb.MemoryEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, col+" = $"+strconv.Itoa(len(args)))
	}
	add("agent_id", q.AgentID)
	add("session_id", q.SessionID)
	add("role", q.Role)

	query := `SELECT id, agent_id, session_id, role, content, metadata, created_at FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	limit := s.dialect.noLimit
	if q.Limit > 0 {
		args = append(args, q.Limit)
		limit = "$" + strconv.Itoa(len(args))
	}
	args = append(args, max(q.Skip, 0))
	query += " LIMIT " + limit + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	out := []zerodb.MemoryEntry{}
	for rows.Next() {
		var (
			m             zerodb.MemoryEntry
			meta, created string
		)
		if err := rows.Scan(&m.ID, &m.AgentID, &m.SessionID, &m.Role, &m.Content, &meta, &created); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if m.Metadata, err = decodeMap(meta); err != nil {
			return nil, fmt.Errorf("decode memory %s: %w", m.ID, err)
		}
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpsertVector(ctx context.Context, v zerodb.Vector) (zerodb.Vector, error) {
	if len(v.Embedding) == 0 {
		return zerodb.Vector{}, errors.New("empty embedding")
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.Namespace == "" {
		v.Namespace = "default"
	}
	v.CreatedAt = s.now()

	emb, err := json.Marshal(v.Embedding)
	if err != nil {
		return zerodb.Vector{}, fmt.Errorf("encode embedding: %w", err)
	}
	meta, err := encodeJSON(v.Metadata)
	if err != nil {
		return zerodb.Vector{}, fmt.Errorf("encode vector metadata: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO vectors (id, namespace, embedding, metadata, document, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			namespace = excluded.namespace,
			embedding = excluded.embedding,
			metadata  = excluded.metadata,
			document  = excluded.document,
			source    = excluded.source
	`, v.ID, v.Namespace, string(emb), meta, v.Document, v.Source, v.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return zerodb.Vector{}, fmt.Errorf("upsert vector: %w", err)
	}
	return v, nil
}

// SearchVectors ranks a namespace by cosine similarity in process. Vectors
// of another dimension are skipped.
func (s *Store) SearchVectors(ctx context.Context, query []float64, limit int, namespace string) (zerodb.SearchResult, error) {
	out := zerodb.SearchResult{Vectors: []zerodb.VectorMatch{}}
	if limit <= 0 || len(query) == 0 {
		return out, nil
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, embedding, metadata, document FROM vectors WHERE namespace = $1`, namespace)
	if err != nil {
		return zerodb.SearchResult{}, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, rawEmb, rawMeta, doc string
			emb                      []float64
		)
		if err := rows.Scan(&id, &rawEmb, &rawMeta, &doc); err != nil {
			return zerodb.SearchResult{}, fmt.Errorf("scan vector: %w", err)
		}
		if err := json.Unmarshal([]byte(rawEmb), &emb); err != nil || len(emb) != len(query) {
			continue
		}
		meta, err := decodeMap(rawMeta)
		if err != nil {
			continue
		}
		out.Vectors = append(out.Vectors, zerodb.VectorMatch{
			ID:       id,
			Score:    zerodb.Cosine(query, emb),
			Metadata: meta,
			Document: doc,
		})
	}
	if err := rows.Err(); err != nil {
		return zerodb.SearchResult{}, err
	}

	sort.SliceStable(out.Vectors, func(i, j int) bool { return out.Vectors[i].Score > out.Vectors[j].Score })
	if len(out.Vectors) > limit {
		out.Vectors = out.Vectors[:limit]
	}
	return out, nil
}

func (s *Store) PublishEvent(ctx context.Context, topic string, payload map[string]any) (zerodb.Event, error) {
	e := zerodb.Event{ID: uuid.New().String(), Topic: topic, Payload: payload, CreatedAt: s.now()}

	raw, err := encodeJSON(payload)
	if err != nil {
		return zerodb.Event{}, fmt.Errorf("encode event payload: %w", err)
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO events (id, topic, payload, created_at) VALUES ($1, $2, $3, $4)`,
		e.ID, topic, raw, e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return zerodb.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return e, nil
}

// Events lists stored events for a topic, oldest first.
func (s *Store) Events(ctx context.Context, topic string) ([]zerodb.Event, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, topic, payload, created_at FROM events WHERE topic = $1 ORDER BY seq`, topic)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []zerodb.Event
	for rows.Next() {
		var (
			e            zerodb.Event
			raw, created string
		)
		if err := rows.Scan(&e.ID, &e.Topic, &raw, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.Payload, err = decodeMap(raw); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", e.ID, err)
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) LogAgentActivity(ctx context.Context, l zerodb.AgentLog) error {
	if l.Level == "" {
		l.Level = "INFO"
	}
	raw, err := encodeJSON(l.Payload)
	if err != nil {
		return fmt.Errorf("encode agent payload: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO agent_logs (agent_id, session_id, level, message, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, l.AgentID, l.SessionID, l.Level, l.Message, raw, s.now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert agent log: %w", err)
	}
	return nil
}

func (s *Store) LogRLHF(ctx context.Context, e zerodb.RLHFEntry) error {
	raw, err := encodeJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode rlhf metadata: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO rlhf_logs (agent_id, session_id, feedback_type, rating, comments, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.AgentID, e.SessionID, e.FeedbackType, e.Rating, e.Comments, raw, s.now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert rlhf log: %w", err)
	}
	return nil
}

func (s *Store) StoreFile(ctx context.Context, f zerodb.FileUpload) (zerodb.StoredFile, error) {
	sf := zerodb.StoredFile{
		FileID:      uuid.New().String(),
		Filename:    f.Filename,
		ContentType: f.ContentType,
		SizeBytes:   len(f.Data),
		Metadata:    f.Metadata,
		CreatedAt:   s.now(),
	}

	raw, err := encodeJSON(f.Metadata)
	if err != nil {
		return zerodb.StoredFile{}, fmt.Errorf("encode file metadata: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO files (id, filename, content_type, size_bytes, data, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sf.FileID, sf.Filename, sf.ContentType, sf.SizeBytes, f.Data, raw, sf.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return zerodb.StoredFile{}, fmt.Errorf("insert file: %w", err)
	}
	return sf, nil
}

// File returns a stored file and its bytes.
func (s *Store) File(ctx context.Context, id string) (zerodb.StoredFile, []byte, error) {
	var (
		sf            zerodb.StoredFile
		data          []byte
		meta, created string
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, filename, content_type, size_bytes, data, metadata, created_at
		FROM files WHERE id = $1
	`, id).Scan(&sf.FileID, &sf.Filename, &sf.ContentType, &sf.SizeBytes, &data, &meta, &created)
	if err != nil {
		return zerodb.StoredFile{}, nil, fmt.Errorf("get file %s: %w", id, err)
	}
	if sf.Metadata, err = decodeMap(meta); err != nil {
		return zerodb.StoredFile{}, nil, fmt.Errorf("decode file %s: %w", id, err)
	}
	sf.CreatedAt = parseTime(created)
	return sf, data, nil
}

func (s *Store) GetDatabaseStatus(ctx context.Context) (zerodb.Status, error) {
	if err := s.conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	st := zerodb.Status{
		"status":         "healthy",
		"backend":        s.driver,
		"schema_version": s.version,
	}
	for _, table := range []string{"memories", "vectors", "events", "agent_logs", "rlhf_logs", "files"} {
		var n int
		if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		st[table] = n
	}
	return st, nil
}
