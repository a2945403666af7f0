package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AINative-Studio/rewardsy/internal/ai"
	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

const (
	EventsAgentID   = "rewardsy_events"
	BehaviorAgentID = "rewardsy_behavior"

	TopicTasksGlobal = "tasks_global"
)

// UserTasksTopic is the per-user task event topic.
func UserTasksTopic(userID string) string {
	return "user_" + userID + "_tasks"
}

// Activity is one entry of a user's activity feed.
type Activity struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	TaskID      string    `json:"task_id,omitempty"`
}

// Tracker records user behavior and task events. All methods are
// best-effort: platform failures are logged, never returned.
type Tracker struct {
	client zerodb.Client
	log    zerolog.Logger
	now    func() time.Time
}

func NewTracker(client zerodb.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		client: client,
		log:    logger.With().Str("component", "tracker").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// TrackUserBehavior stores the action as a memory, a behavior vector and a
// scored feedback entry.
func (t *Tracker) TrackUserBehavior(ctx context.Context, userID, action string, actx map[string]any) {
	if actx == nil {
		actx = map[string]any{}
	}
	if err := t.trackUserBehavior(ctx, userID, action, actx); err != nil {
		t.log.Warn().Err(err).Str("user_id", userID).Str("action", action).Msg("track user behavior failed")
	}
}

func (t *Tracker) trackUserBehavior(ctx context.Context, userID, action string, actx map[string]any) error {
	ts := t.now().Format(time.RFC3339Nano)

	sessionID, _ := actx["session_id"].(string)
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	behavior := map[string]any{
		"user_id":    userID,
		"action":     action,
		"context":    actx,
		"timestamp":  ts,
		"session_id": sessionID,
	}

	_, err := t.client.StoreMemory(ctx, zerodb.MemoryEntry{
		AgentID:   "user_behavior_" + userID,
		SessionID: sessionID,
		Role:      "user",
		Content:   "User action: " + action,
		Metadata:  behavior,
	})
	if err != nil {
		return fmt.Errorf("store behavior: %w", err)
	}

	contextType, ok := actx["type"]
	if !ok {
		contextType = "unknown"
	}
	_, err = t.client.UpsertVector(ctx, zerodb.Vector{
		Embedding: ai.Vectorize(action, actx),
		Namespace: zerodb.NamespaceUserBehavior,
		Metadata: map[string]any{
			"user_id":      userID,
			"action":       action,
			"timestamp":    ts,
			"context_type": contextType,
		},
		Document: fmt.Sprintf("User %s performed %s", userID, action),
		Source:   "behavior_tracking",
	})
	if err != nil {
		return fmt.Errorf("store behavior vector: %w", err)
	}

	err = t.client.LogRLHF(ctx, zerodb.RLHFEntry{
		AgentID:      BehaviorAgentID,
		SessionID:    sessionID,
		FeedbackType: "user_behavior",
		Rating:       ai.BehaviorScore(action, actx),
		Comments:     "User behavior tracking: " + action,
		Metadata:     behavior,
	})
	if err != nil {
		return fmt.Errorf("log behavior feedback: %w", err)
	}
	return nil
}

// PublishTaskEvent fans a task event out to the user's topic and the global
// topic, then keeps a replayable copy for the activity feed.
func (t *Tracker) PublishTaskEvent(ctx context.Context, eventType, userID, taskID string, taskData any) {
	if err := t.publishTaskEvent(ctx, eventType, userID, taskID, taskData); err != nil {
		t.log.Warn().Err(err).Str("user_id", userID).Str("event_type", eventType).Msg("publish task event failed")
	}
}

func (t *Tracker) publishTaskEvent(ctx context.Context, eventType, userID, taskID string, taskData any) error {
	payload := map[string]any{
		"event_type": eventType,
		"task_data":  taskData,
		"user_id":    userID,
		"timestamp":  t.now().Format(time.RFC3339Nano),
		"event_id":   uuid.New().String(),
	}

	for _, topic := range []string{UserTasksTopic(userID), TopicTasksGlobal} {
		if _, err := t.client.PublishEvent(ctx, topic, payload); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	}

	_, err := t.client.StoreMemory(ctx, zerodb.MemoryEntry{
		AgentID:   EventsAgentID,
		SessionID: uuid.New().String(),
		Role:      "system",
		Content:   "Task event: " + eventType,
		Metadata: map[string]any{
			"event_type": eventType,
			"event_id":   payload["event_id"],
			"user_id":    userID,
			"task_id":    taskID,
			"timestamp":  payload["timestamp"],
		},
	})
	if err != nil {
		return fmt.Errorf("store task event: %w", err)
	}
	return nil
}

// ActivityFeed returns the user's task events, newest first.
func (t *Tracker) ActivityFeed(ctx context.Context, userID string, limit int) []Activity {
	memories, err := zerodb.ScanMemory(ctx, t.client, zerodb.MemoryQuery{AgentID: EventsAgentID, Role: "system"}, 100)
	if err != nil {
		t.log.Warn().Err(err).Str("user_id", userID).Msg("activity feed failed")
		return []Activity{}
	}

	out := []Activity{}
	for _, m := range memories {
		if uid, _ := m.Metadata["user_id"].(string); uid != userID {
			continue
		}
		a := Activity{
			Description: m.Content,
			Timestamp:   m.CreatedAt,
		}
		a.ID, _ = m.Metadata["event_id"].(string)
		a.Type, _ = m.Metadata["event_type"].(string)
		a.TaskID, _ = m.Metadata["task_id"].(string)
		if raw, ok := m.Metadata["timestamp"].(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				a.Timestamp = ts
			}
		}
		out = append(out, a)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
