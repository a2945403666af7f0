// Package ai holds the rule-based reward engine and the behavior
// vectorizer. Nothing here calls a model; embeddings are synthetic features
// stored so similar tasks can be looked up later.
package ai

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

const (
	AgentID = "rewardsy_ai"

	patternSearchLimit = 10
	taskSearchLimit    = 5

	// placeholder until users can rate suggestions
	defaultFeedbackRating = 0.8
)

type Engine struct {
	client zerodb.Client
	log    zerolog.Logger
}

func NewEngine(client zerodb.Client, logger zerolog.Logger) *Engine {
	return &Engine{
		client: client,
		log:    logger.With().Str("component", "suggest").Logger(),
	}
}

// Suggest returns at most MaxSuggestions rewards for a task. It never fails:
// when the batch cannot be recorded it returns Fallback.
func (e *Engine) Suggest(ctx context.Context, title, description, priority string) (out []Suggestion) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("title", title).Msg("reward suggestion panicked")
			out = Fallback()
		}
	}()

	s, err := e.suggest(ctx, title, description, priority)
	if err != nil {
		e.log.Warn().Err(err).Str("title", title).Msg("reward suggestions fell back")
		return Fallback()
	}
	return s
}

func (e *Engine) suggest(ctx context.Context, title, description, priority string) ([]Suggestion, error) {
	emb := RewardEmbedding(title, description, priority)

	// advisory only; matches are counted, not merged
	similar := 0
	res, err := e.client.SearchVectors(ctx, emb, patternSearchLimit, zerodb.NamespaceRewardPatterns)
	if err != nil {
		e.log.Warn().Err(err).Msg("reward pattern search failed")
	} else {
		similar = len(res.Vectors)
	}

	all := RuleSuggestions(title, description, priority)
	top := all[:min(MaxSuggestions, len(all))]

	for i, s := range top {
		vec := append(slices.Clone(emb), float64(i))
		_, err := e.client.UpsertVector(ctx, zerodb.Vector{
			Embedding: vec,
			Namespace: zerodb.NamespaceRewardPatterns,
			Metadata: map[string]any{
				"reward_type":        s.Type,
				"description":        s.Description,
				"cost":               s.Cost,
				"task_priority":      priority,
				"suggestion_context": "ai_generated",
			},
			Document: s.Type + ": " + s.Description,
			Source:   "reward_suggestion",
		})
		if err != nil {
			e.log.Warn().Err(err).Int("position", i).Msg("store reward pattern failed")
		}
	}

	err = e.client.LogRLHF(ctx, zerodb.RLHFEntry{
		AgentID:      AgentID,
		SessionID:    uuid.New().String(),
		FeedbackType: "reward_suggestion",
		Rating:       defaultFeedbackRating,
		Comments:     "AI-generated reward suggestions",
		Metadata: map[string]any{
			"task_title":        title,
			"task_priority":     priority,
			"suggestions_count": len(all),
			"vector_embedding":  emb[:5],
		},
	})
	if err != nil {
		return nil, fmt.Errorf("log suggestion feedback: %w", err)
	}

	err = e.client.LogAgentActivity(ctx, zerodb.AgentLog{
		AgentID:   AgentID,
		SessionID: uuid.New().String(),
		Level:     "INFO",
		Message:   fmt.Sprintf("Generated %d reward suggestions", len(all)),
		Payload: map[string]any{
			"task_title":             title,
			"priority":               priority,
			"embedding_dimensions":   len(emb),
			"similar_patterns_found": similar,
			"suggestions":            all,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("log suggestion activity: %w", err)
	}

	return slices.Clone(top), nil
}

// IndexTask records a new task's embedding and probes for rewards given to
// similar tasks. Failures are logged and dropped.
func (e *Engine) IndexTask(ctx context.Context, taskID, title, description string) {
	emb := TaskEmbedding(title, description)

	_, err := e.client.UpsertVector(ctx, zerodb.Vector{
		Embedding: emb,
		Namespace: zerodb.NamespaceTasks,
		Metadata: map[string]any{
			"task_id": taskID,
			"title":   title,
			"type":    "task_embedding",
		},
		Document: title + " " + description,
		Source:   "task_creation",
	})
	if err != nil {
		e.log.Warn().Err(err).Str("task_id", taskID).Msg("index task failed")
		return
	}

	res, err := e.client.SearchVectors(ctx, emb, taskSearchLimit, zerodb.NamespaceRewards)
	if err != nil {
		e.log.Warn().Err(err).Str("task_id", taskID).Msg("similar task search failed")
		return
	}

	err = e.client.LogAgentActivity(ctx, zerodb.AgentLog{
		AgentID: AgentID,
		Level:   "INFO",
		Message: fmt.Sprintf("Generated reward suggestions for task %s", taskID),
		Payload: map[string]any{
			"task_id":             taskID,
			"similar_tasks_found": len(res.Vectors),
			"embedding_vector":    emb,
		},
	})
	if err != nil {
		e.log.Warn().Err(err).Str("task_id", taskID).Msg("log task index failed")
	}
}
