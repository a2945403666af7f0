package zerodb

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout = 30 * time.Second

	// tokenRefreshMargin re-signs the service token this long before it expires.
	tokenRefreshMargin = 5 * time.Minute
)

type HTTPConfig struct {
	BaseURL   string
	APIKey    string
	ProjectID string
	Secret    string
	Subject   string
	Email     string
	Timeout   time.Duration
}

// HTTPClient is the Client backed by the ZeroDB REST API.
type HTTPClient struct {
	baseURL   string
	projectID string
	apiKey    string
	secret    []byte
	subject   string
	email     string
	http      *http.Client
	log       zerolog.Logger
	closed    atomic.Bool
	now       func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewHTTPClient(cfg HTTPConfig, logger zerolog.Logger) (*HTTPClient, error) {
	if cfg.APIKey == "" || cfg.ProjectID == "" {
		return nil, errors.New("zerodb: api key and project id must be set")
	}
	if cfg.Secret == "" {
		return nil, errors.New("zerodb: service secret must be set")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &HTTPClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		projectID: cfg.ProjectID,
		apiKey:    cfg.APIKey,
		secret:    []byte(cfg.Secret),
		subject:   cfg.Subject,
		email:     cfg.Email,
		http:      &http.Client{Timeout: timeout},
		log:       logger.With().Str("component", "zerodb").Logger(),
		now:       time.Now,
	}
	if _, err := c.bearer(); err != nil {
		return nil, err
	}
	return c, nil
}

// bearer returns the cached service token, re-signing it once it is
// within tokenRefreshMargin of expiry.
func (c *HTTPClient) bearer() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.tokenExp.Add(-tokenRefreshMargin)) {
		return c.token, nil
	}

	token, err := ServiceToken(c.secret, c.subject, c.email, now)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	c.token = token
	c.tokenExp = now.Add(serviceTokenTTL)
	return token, nil
}

func (c *HTTPClient) path(p string) string {
	return c.baseURL + "/projects/" + url.PathEscape(c.projectID) + "/database" + p
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, in, out any) error {
	if c.closed.Load() {
		return ErrClosed
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	token, err := c.bearer()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.path(endpoint), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", endpoint).Msg("zerodb request failed")
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{StatusCode: res.StatusCode, Body: string(raw)}
		c.log.Error().Int("status", res.StatusCode).Str("endpoint", endpoint).Msg("zerodb api error")
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) StoreMemory(ctx context.Context, m MemoryEntry) (MemoryEntry, error) {
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	body := map[string]any{
		"agent_id":        m.AgentID,
		"session_id":      m.SessionID,
		"role":            m.Role,
		"content":         m.Content,
		"memory_metadata": m.Metadata,
	}

	out := m
	if err := c.do(ctx, http.MethodPost, "/memory/store", body, &out); err != nil {
		return MemoryEntry{}, err
	}
	return out, nil
}

func (c *HTTPClient) GetMemory(ctx context.Context, q MemoryQuery) ([]MemoryEntry, error) {
	v := url.Values{}
	v.Set("skip", strconv.Itoa(q.Skip))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.AgentID != "" {
		v.Set("agent_id", q.AgentID)
	}
	if q.SessionID != "" {
		v.Set("session_id", q.SessionID)
	}
	if q.Role != "" {
		v.Set("role", q.Role)
	}

	var out []MemoryEntry
	if err := c.do(ctx, http.MethodGet, "/memory?"+v.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) UpsertVector(ctx context.Context, vec Vector) (Vector, error) {
	body := map[string]any{
		"vector_embedding": vec.Embedding,
		"namespace":        vec.Namespace,
		"vector_metadata":  vec.Metadata,
		"document":         vec.Document,
		"source":           vec.Source,
	}

	out := vec
	if err := c.do(ctx, http.MethodPost, "/vectors/upsert", body, &out); err != nil {
		return Vector{}, err
	}
	return out, nil
}

func (c *HTTPClient) SearchVectors(ctx context.Context, query []float64, limit int, namespace string) (SearchResult, error) {
	body := map[string]any{
		"query_vector": query,
		"limit":        limit,
		"namespace":    namespace,
	}

	var out SearchResult
	if err := c.do(ctx, http.MethodPost, "/vectors/search", body, &out); err != nil {
		return SearchResult{}, err
	}
	return out, nil
}

func (c *HTTPClient) PublishEvent(ctx context.Context, topic string, payload map[string]any) (Event, error) {
	body := map[string]any{
		"topic":         topic,
		"event_payload": payload,
	}

	out := Event{Topic: topic, Payload: payload}
	if err := c.do(ctx, http.MethodPost, "/events/publish", body, &out); err != nil {
		return Event{}, err
	}
	return out, nil
}

func (c *HTTPClient) LogAgentActivity(ctx context.Context, l AgentLog) error {
	if l.Level == "" {
		l.Level = "INFO"
	}
	if l.Payload == nil {
		l.Payload = map[string]any{}
	}
	return c.do(ctx, http.MethodPost, "/agent/log", l, nil)
}

func (c *HTTPClient) LogRLHF(ctx context.Context, e RLHFEntry) error {
	return c.do(ctx, http.MethodPost, "/rlhf/log", e, nil)
}

func (c *HTTPClient) StoreFile(ctx context.Context, f FileUpload) (StoredFile, error) {
	key := uuid.New().String()
	body := map[string]any{
		"file_key":      key,
		"file_name":     f.Filename,
		"content_type":  f.ContentType,
		"size_bytes":    len(f.Data),
		"file_data":     base64.StdEncoding.EncodeToString(f.Data),
		"file_metadata": f.Metadata,
	}

	out := StoredFile{
		FileID:      key,
		Filename:    f.Filename,
		ContentType: f.ContentType,
		SizeBytes:   len(f.Data),
		Metadata:    f.Metadata,
	}
	if err := c.do(ctx, http.MethodPost, "/files/upload", body, &out); err != nil {
		return StoredFile{}, err
	}
	if out.FileID == "" {
		out.FileID = key
	}
	return out, nil
}

func (c *HTTPClient) GetDatabaseStatus(ctx context.Context) (Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.http.CloseIdleConnections()
	return nil
}
