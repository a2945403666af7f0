package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// VectorDims is the length of every behavior vector.
const VectorDims = 10

var actionWeights = map[string][5]float64{
	"task_created":   {1.0, 0.8, 0.0, 0.0, 0.0},
	"task_completed": {0.8, 1.0, 0.9, 0.0, 0.0},
	"task_deleted":   {0.2, 0.0, 0.0, 1.0, 0.0},
	"reward_claimed": {0.9, 0.8, 1.0, 0.0, 0.0},
	"login":          {0.5, 0.0, 0.0, 0.0, 1.0},
}

var unknownActionWeights = [5]float64{0.5, 0.5, 0.5, 0.5, 0.5}

var baseScores = map[string]float64{
	"task_created":   0.7,
	"task_completed": 1.0,
	"task_deleted":   0.3,
	"reward_claimed": 0.9,
	"login":          0.6,
}

const unknownActionScore = 0.5

// Vectorize encodes a user action and its context as a fixed 10-dim vector.
// The first five components identify the action; the rest come from context
// keys, falling back to defaults when a key is missing or not numeric.
func Vectorize(action string, ctx map[string]any) []float64 {
	w, ok := actionWeights[action]
	if !ok {
		w = unknownActionWeights
	}

	v := make([]float64, VectorDims)
	copy(v, w[:])
	v[5] = floatOr(ctx, "task_priority_high", 0)
	v[6] = floatOr(ctx, "time_spent_minutes", 0) / 60.0
	v[7] = floatOr(ctx, "success_rate", 0.5)
	v[8] = floatOr(ctx, "engagement_score", 0.5)
	v[9] = 1.0
	return v
}

// BehaviorScore rates an action in [0,1] for the feedback log.
func BehaviorScore(action string, ctx map[string]any) float64 {
	score, ok := baseScores[action]
	if !ok {
		score = unknownActionScore
	}

	if p, ok := ctx["task_priority"]; ok && p != nil && fmt.Sprint(p) == "high" {
		score += 0.1
	}
	if truthy(ctx["completed_on_time"]) {
		score += 0.2
	}
	if streak, ok := toFloat(ctx["streak_count"]); ok && streak > 3 {
		score += 0.1
	}

	return min(1.0, score)
}

func floatOr(ctx map[string]any, key string, def float64) float64 {
	v, ok := ctx[key]
	if !ok {
		return def
	}
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	return f
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}
