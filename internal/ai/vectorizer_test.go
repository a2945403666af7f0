package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorize_Login(t *testing.T) {
	v := Vectorize("login", map[string]any{})

	assert.Len(t, v, VectorDims)
	assert.Equal(t, []float64{0.5, 0, 0, 0, 1}, v[:5])
	assert.Equal(t, 1.0, v[9])
}

func TestVectorize_Defaults(t *testing.T) {
	v := Vectorize("something_new", nil)

	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0, 0, 0.5, 0.5, 1}, v)
}

func TestVectorize_Context(t *testing.T) {
	v := Vectorize("task_completed", map[string]any{
		"task_priority_high": true,
		"time_spent_minutes": 90,
		"success_rate":       "0.75",
		"engagement_score":   0.2,
	})

	assert.Equal(t, []float64{0.8, 1.0, 0.9, 0, 0}, v[:5])
	assert.Equal(t, 1.0, v[5])
	assert.InDelta(t, 1.5, v[6], 1e-9)
	assert.InDelta(t, 0.75, v[7], 1e-9)
	assert.InDelta(t, 0.2, v[8], 1e-9)
}

func TestVectorize_BadContextUsesDefault(t *testing.T) {
	v := Vectorize("login", map[string]any{"success_rate": "lots", "time_spent_minutes": []int{1}})

	assert.Equal(t, 0.5, v[7])
	assert.Equal(t, 0.0, v[6])
}

func TestVectorize_Deterministic(t *testing.T) {
	ctx := map[string]any{"time_spent_minutes": 30}
	assert.Equal(t, Vectorize("reward_claimed", ctx), Vectorize("reward_claimed", ctx))
}

func TestBehaviorScore_Base(t *testing.T) {
	tests := []struct {
		action string
		want   float64
	}{
		{"task_completed", 1.0},
		{"reward_claimed", 0.9},
		{"task_created", 0.7},
		{"login", 0.6},
		{"task_deleted", 0.3},
		{"task_uncompleted", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got := BehaviorScore(tt.action, map[string]any{})
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestBehaviorScore_Bonuses(t *testing.T) {
	assert.InDelta(t, 0.8, BehaviorScore("task_created", map[string]any{"task_priority": "high"}), 1e-9)
	assert.InDelta(t, 0.5, BehaviorScore("task_deleted", map[string]any{"completed_on_time": true}), 1e-9)
	assert.InDelta(t, 0.4, BehaviorScore("task_deleted", map[string]any{"streak_count": 4}), 1e-9)
	assert.InDelta(t, 0.3, BehaviorScore("task_deleted", map[string]any{"streak_count": 3}), 1e-9)
	assert.InDelta(t, 0.3, BehaviorScore("task_deleted", map[string]any{"completed_on_time": false}), 1e-9)
}

func TestBehaviorScore_Clamped(t *testing.T) {
	got := BehaviorScore("task_completed", map[string]any{
		"task_priority":     "high",
		"completed_on_time": true,
		"streak_count":      10,
	})
	assert.Equal(t, 1.0, got)
}
