package ai

import (
	"strings"
	"unicode/utf8"
)

// keyword groups scored by RewardEmbedding, in vector order
var embeddingKeywords = [][]string{
	{"work", "job"},
	{"exercise", "fitness"},
	{"learn", "study"},
	{"creative", "art"},
	{"urgent", "asap"},
}

// TaskText joins title and description the way every matcher sees them.
func TaskText(title, description string) string {
	var b strings.Builder
	b.Grow(len(title) + len(description) + 1)
	b.WriteString(title)
	b.WriteString(" ")
	b.WriteString(description)
	return strings.ToLower(b.String())
}

// containsAny reports substring matches, so "art" also hits "start".
func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func flag(ok bool) float64 {
	if ok {
		return 1.0
	}
	return 0.5
}

func priorityWeight(priority string) float64 {
	switch priority {
	case "high":
		return 1.0
	case "medium":
		return 0.7
	default:
		return 0.4
	}
}

// RewardEmbedding is the synthetic 10-dim task embedding used to look up
// and record reward patterns.
func RewardEmbedding(title, description, priority string) []float64 {
	text := TaskText(title, description)

	emb := make([]float64, 0, VectorDims)
	emb = append(emb,
		float64(utf8.RuneCountInString(title))/50.0,
		float64(utf8.RuneCountInString(description))/200.0,
		priorityWeight(priority),
	)
	for _, group := range embeddingKeywords {
		emb = append(emb, flag(containsAny(text, group...)))
	}
	emb = append(emb,
		0.8,
		float64(len(strings.Fields(text)))/20.0,
	)
	return emb
}

// TaskEmbedding is the smaller 5-dim vector stored per task on creation.
func TaskEmbedding(title, description string) []float64 {
	text := TaskText(title, description)
	return []float64{
		float64(utf8.RuneCountInString(title)) / 100.0,
		float64(utf8.RuneCountInString(description)) / 100.0,
		flag(strings.Contains(text, "urgent")),
		flag(strings.Contains(text, "important")),
		0.8,
	}
}
