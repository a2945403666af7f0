package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AINative-Studio/rewardsy/internal/ai"
	"github.com/AINative-Studio/rewardsy/internal/analytics"
	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

const (
	FilesAgentID = "rewardsy_files"

	TopicTaskCreated = "task_created"
	TopicTaskUpdated = "task_updated"
	TopicTaskDeleted = "task_deleted"

	taskSchemaVersion = 1
	scanPageSize      = 100
	defaultListLimit  = 100
)

func agentID(userID string) string { return "user_" + userID }

// record is a task version as stored in memory metadata.
type record struct {
	Type          string     `json:"type"`
	TaskID        string     `json:"task_id"`
	UserID        string     `json:"user_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	DueDate       *time.Time `json:"due_date"`
	ScheduledTime *time.Time `json:"scheduled_time"`
	Priority      Priority   `json:"priority"`
	Status        Status     `json:"status"`
	Rewards       []Reward   `json:"rewards"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	SchemaVersion int        `json:"schema_version"`
}

func recordOf(t Task) record {
	return record{
		Type:          "task",
		TaskID:        t.ID,
		UserID:        t.UserID,
		Title:         t.Title,
		Description:   t.Description,
		DueDate:       t.DueDate,
		ScheduledTime: t.ScheduledTime,
		Priority:      t.Priority,
		Status:        t.Status,
		Rewards:       t.Rewards,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		SchemaVersion: taskSchemaVersion,
	}
}

func (r record) task() Task {
	t := Task{
		ID:            r.TaskID,
		UserID:        r.UserID,
		Title:         r.Title,
		Description:   r.Description,
		DueDate:       r.DueDate,
		ScheduledTime: r.ScheduledTime,
		Priority:      r.Priority,
		Status:        r.Status,
		Rewards:       r.Rewards,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Rewards == nil {
		t.Rewards = []Reward{}
	}
	return t
}

// toMetadata and fromMetadata go through JSON so that values read back from
// any backend (numbers as float64, times as strings) decode the same way.
func toMetadata(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

func fromMetadata(m map[string]any, out any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	return nil
}

// Service is the task facade. Tasks are event-sourced: every create and
// update appends a version and delete appends a tombstone.
type Service struct {
	client  zerodb.Client
	engine  *ai.Engine
	tracker *analytics.Tracker
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(client zerodb.Client, engine *ai.Engine, tracker *analytics.Tracker, logger zerolog.Logger) *Service {
	return &Service{
		client:  client,
		engine:  engine,
		tracker: tracker,
		log:     logger.With().Str("component", "tasks").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreateTask(ctx context.Context, userID string, in TaskCreate) (Task, bool) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("rejected task")
		return Task{}, false
	}

	now := s.now()
	task := Task{
		ID:            uuid.New().String(),
		UserID:        userID,
		Title:         in.Title,
		Description:   in.Description,
		DueDate:       in.DueDate,
		ScheduledTime: in.ScheduledTime,
		Priority:      in.Priority,
		Status:        StatusPending,
		Rewards:       in.Rewards,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if len(task.Rewards) == 0 {
		s.engine.IndexTask(ctx, task.ID, task.Title, task.Description)
		for _, sug := range s.engine.Suggest(ctx, task.Title, task.Description, string(task.Priority)) {
			task.Rewards = append(task.Rewards, Reward{
				Type:        sug.Type,
				Description: sug.Description,
				Cost:        sug.Cost,
				IsActive:    true,
			})
		}
	}
	if task.Rewards == nil {
		task.Rewards = []Reward{}
	}

	if err := s.storeVersion(ctx, task, "Task created: "+task.Title); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("create task failed")
		return Task{}, false
	}

	s.publish(ctx, TopicTaskCreated, map[string]any{
		"task_id":   task.ID,
		"user_id":   userID,
		"title":     task.Title,
		"timestamp": now.Format(time.RFC3339Nano),
	})

	err := s.client.LogAgentActivity(ctx, zerodb.AgentLog{
		AgentID:   ai.AgentID,
		SessionID: task.ID,
		Level:     "INFO",
		Message:   "Task created: " + task.Title,
		Payload: map[string]any{
			"task_id":       task.ID,
			"user_id":       userID,
			"priority":      task.Priority,
			"rewards_count": len(task.Rewards),
		},
	})
	if err != nil {
		s.log.Warn().Err(err).Str("task_id", task.ID).Msg("log task creation failed")
	}

	s.tracker.PublishTaskEvent(ctx, TopicTaskCreated, userID, task.ID, task)
	return task, true
}

func (s *Service) storeVersion(ctx context.Context, t Task, content string) error {
	meta, err := toMetadata(recordOf(t))
	if err != nil {
		return err
	}
	_, err = s.client.StoreMemory(ctx, zerodb.MemoryEntry{
		AgentID:   agentID(t.UserID),
		SessionID: t.ID,
		Role:      "task",
		Content:   content,
		Metadata:  meta,
	})
	if err != nil {
		return fmt.Errorf("store task %s: %w", t.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, topic string, payload map[string]any) {
	if _, err := s.client.PublishEvent(ctx, topic, payload); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}

// load folds every stored version of the user's tasks. Later versions win
// and tombstoned tasks are dropped. When only is set the fold is limited to
// that task.
func (s *Service) load(ctx context.Context, userID, only string) (map[string]Task, error) {
	memories, err := zerodb.ScanMemory(ctx, s.client, zerodb.MemoryQuery{AgentID: agentID(userID)}, scanPageSize)
	if err != nil {
		return nil, err
	}

	latest := map[string]Task{}
	deleted := map[string]bool{}
	for _, m := range memories {
		kind, _ := m.Metadata["type"].(string)
		id, _ := m.Metadata["task_id"].(string)
		if id == "" || (only != "" && id != only) {
			continue
		}

		switch {
		case m.Role == "system" && kind == "task_deletion":
			deleted[id] = true
		case m.Role == "task":
			var rec record
			if err := fromMetadata(m.Metadata, &rec); err != nil {
				s.log.Warn().Err(err).Str("memory_id", m.ID).Msg("skip malformed task version")
				continue
			}
			if rec.UserID != "" && rec.UserID != userID {
				continue
			}
			t := rec.task()
			t.UserID = userID
			if prev, ok := latest[id]; ok && t.UpdatedAt.Before(prev.UpdatedAt) {
				continue
			}
			latest[id] = t
		}
	}

	for id := range deleted {
		delete(latest, id)
	}
	return latest, nil
}

// GetTasks lists the user's live tasks ordered by creation.
func (s *Service) GetTasks(ctx context.Context, userID string, skip, limit int) []Task {
	folded, err := s.load(ctx, userID, "")
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("list tasks failed")
		return []Task{}
	}

	out := make([]Task, 0, len(folded))
	for _, t := range folded {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if skip >= len(out) {
		return []Task{}
	}
	out = out[skip:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Service) GetTask(ctx context.Context, taskID, userID string) (Task, bool) {
	folded, err := s.load(ctx, userID, taskID)
	if err != nil {
		s.log.Warn().Err(err).Str("task_id", taskID).Msg("get task failed")
		return Task{}, false
	}
	t, ok := folded[taskID]
	return t, ok
}

func (s *Service) UpdateTask(ctx context.Context, taskID, userID string, in TaskUpdate) (Task, bool) {
	if err := in.Validate(); err != nil {
		s.log.Warn().Err(err).Str("task_id", taskID).Msg("rejected task update")
		return Task{}, false
	}

	task, ok := s.GetTask(ctx, taskID, userID)
	if !ok {
		return Task{}, false
	}

	changes, err := toMetadata(in)
	if err != nil {
		s.log.Warn().Err(err).Str("task_id", taskID).Msg("encode task changes failed")
		return Task{}, false
	}

	if in.Title != nil {
		task.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		task.Description = strings.TrimSpace(*in.Description)
	}
	if in.DueDate != nil {
		task.DueDate = in.DueDate
	}
	if in.ScheduledTime != nil {
		task.ScheduledTime = in.ScheduledTime
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}
	if in.Status != nil {
		task.Status = *in.Status
	}
	if in.Rewards != nil {
		task.Rewards = *in.Rewards
		if task.Rewards == nil {
			task.Rewards = []Reward{}
		}
	}
	task.UpdatedAt = s.now()

	if err := s.storeVersion(ctx, task, "Task updated: "+task.Title); err != nil {
		s.log.Warn().Err(err).Str("task_id", taskID).Msg("update task failed")
		return Task{}, false
	}

	s.publish(ctx, TopicTaskUpdated, map[string]any{
		"task_id":   taskID,
		"user_id":   userID,
		"changes":   changes,
		"timestamp": task.UpdatedAt.Format(time.RFC3339Nano),
	})
	s.tracker.PublishTaskEvent(ctx, TopicTaskUpdated, userID, taskID, task)
	return task, true
}

// DeleteTask appends a tombstone. It reports false only when the tombstone
// could not be stored.
func (s *Service) DeleteTask(ctx context.Context, taskID, userID string) bool {
	now := s.now().Format(time.RFC3339Nano)

	s.publish(ctx, TopicTaskDeleted, map[string]any{
		"task_id":   taskID,
		"user_id":   userID,
		"timestamp": now,
	})

	_, err := s.client.StoreMemory(ctx, zerodb.MemoryEntry{
		AgentID:   agentID(userID),
		SessionID: taskID,
		Role:      "system",
		Content:   "Task deleted: " + taskID,
		Metadata: map[string]any{
			"type":       "task_deletion",
			"task_id":    taskID,
			"user_id":    userID,
			"deleted_at": now,
		},
	})
	if err != nil {
		s.log.Warn().Err(err).Str("task_id", taskID).Msg("delete task failed")
		return false
	}

	s.tracker.PublishTaskEvent(ctx, TopicTaskDeleted, userID, taskID, map[string]any{"task_id": taskID})
	return true
}

// StoreRewardAttachment uploads a file that backs a task's reward.
func (s *Service) StoreRewardAttachment(ctx context.Context, userID, taskID string, data []byte, filename, contentType string) (zerodb.StoredFile, bool) {
	now := s.now().Format(time.RFC3339Nano)

	stored, err := s.client.StoreFile(ctx, zerodb.FileUpload{
		Data:        data,
		Filename:    filename,
		ContentType: contentType,
		Metadata: map[string]any{
			"user_id":     userID,
			"task_id":     taskID,
			"upload_type": "reward_attachment",
			"timestamp":   now,
		},
	})
	if err != nil {
		s.log.Warn().Err(err).Str("task_id", taskID).Str("filename", filename).Msg("store attachment failed")
		return zerodb.StoredFile{}, false
	}

	err = s.client.LogAgentActivity(ctx, zerodb.AgentLog{
		AgentID:   FilesAgentID,
		SessionID: taskID,
		Level:     "INFO",
		Message:   "Reward attachment uploaded: " + filename,
		Payload: map[string]any{
			"file_id":    stored.FileID,
			"task_id":    taskID,
			"user_id":    userID,
			"size_bytes": stored.SizeBytes,
		},
	})
	if err != nil {
		s.log.Warn().Err(err).Str("file_id", stored.FileID).Msg("log attachment failed")
	}
	return stored, true
}

// SuggestRewards exposes the engine for ad-hoc suggestions.
func (s *Service) SuggestRewards(ctx context.Context, title, description string, priority Priority) []ai.Suggestion {
	if priority == "" {
		priority = PriorityMedium
	}
	return s.engine.Suggest(ctx, title, description, string(priority))
}

func (s *Service) DatabaseStatus(ctx context.Context) map[string]any {
	st, err := s.client.GetDatabaseStatus(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("database status failed")
		return map[string]any{"error": err.Error()}
	}
	return st
}
