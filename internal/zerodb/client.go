// Package zerodb talks to the ZeroDB data platform: memory records,
// vectors, events, agent and feedback logs, and file storage.
package zerodb

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Namespaces and agents shared by the services writing to the platform.
const (
	NamespaceTasks          = "tasks"
	NamespaceRewards        = "rewards"
	NamespaceRewardPatterns = "reward_patterns"
	NamespaceUserBehavior   = "user_behavior"
)

var (
	ErrClosed    = errors.New("zerodb: client closed")
	ErrScanLimit = errors.New("zerodb: memory scan exceeded page limit")
)

const maxScanPages = 1000

// Client is the data platform surface used by the service. Every method is
// an independent call with no transactional guarantees across calls.
type Client interface {
	StoreMemory(ctx context.Context, m MemoryEntry) (MemoryEntry, error)
	GetMemory(ctx context.Context, q MemoryQuery) ([]MemoryEntry, error)
	UpsertVector(ctx context.Context, v Vector) (Vector, error)
	SearchVectors(ctx context.Context, query []float64, limit int, namespace string) (SearchResult, error)
	PublishEvent(ctx context.Context, topic string, payload map[string]any) (Event, error)
	LogAgentActivity(ctx context.Context, l AgentLog) error
	LogRLHF(ctx context.Context, e RLHFEntry) error
	StoreFile(ctx context.Context, f FileUpload) (StoredFile, error)
	GetDatabaseStatus(ctx context.Context) (Status, error)
	Close() error
}

// APIError is returned for non-2xx platform responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zerodb api error: %d - %s", e.StatusCode, e.Body)
}

// ScanMemory pages through GetMemory until a page comes back empty or
// brings no entry it has not already seen. The platform may cap the page
// size, so a short page does not end the scan.
func ScanMemory(ctx context.Context, c Client, q MemoryQuery, pageSize int) ([]MemoryEntry, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	var out []MemoryEntry
	seen := make(map[string]struct{})
	q.Skip = 0
	q.Limit = pageSize
	for pages := 0; ; pages++ {
		if pages == maxScanPages {
			return nil, fmt.Errorf("%w (%d pages of %d)", ErrScanLimit, pages, pageSize)
		}
		page, err := c.GetMemory(ctx, q)
		if err != nil {
			return nil, err
		}

		fresh := 0
		for _, m := range page {
			if m.ID != "" {
				if _, dup := seen[m.ID]; dup {
					continue
				}
				seen[m.ID] = struct{}{}
			}
			out = append(out, m)
			fresh++
		}
		if fresh == 0 {
			return out, nil
		}
		q.Skip += len(page)
	}
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
