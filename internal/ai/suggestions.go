package ai

// Suggestion is a candidate reward. It becomes a stored reward only when a
// caller attaches it to a task.
type Suggestion struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Cost        int    `json:"cost"`
}

// MaxSuggestions caps every list returned by Engine.Suggest.
const MaxSuggestions = 5

var tierSuggestions = map[string][]Suggestion{
	"high": {
		{Type: "treat", Description: "Order your favorite meal", Cost: 3},
		{Type: "entertainment", Description: "Watch a movie you've been wanting to see", Cost: 2},
		{Type: "relaxation", Description: "Take a long bath or shower", Cost: 1},
	},
	"medium": {
		{Type: "break", Description: "20 minutes of your favorite music", Cost: 2},
		{Type: "treat", Description: "Cup of premium coffee or tea", Cost: 1},
		{Type: "activity", Description: "Call a friend or family member", Cost: 1},
	},
	"low": {
		{Type: "break", Description: "10 minutes of meditation", Cost: 1},
		{Type: "treat", Description: "Healthy snack break", Cost: 1},
		{Type: "activity", Description: "Quick walk outside", Cost: 1},
	},
}

type keywordBonus struct {
	keywords    []string
	suggestions []Suggestion
}

// applied in order; every matching group appends its entries
var keywordBonuses = []keywordBonus{
	{
		keywords: []string{"work", "project"},
		suggestions: []Suggestion{
			{Type: "professional", Description: "Update LinkedIn or portfolio", Cost: 2},
			{Type: "networking", Description: "Read industry article", Cost: 1},
		},
	},
	{
		keywords: []string{"exercise", "workout"},
		suggestions: []Suggestion{
			{Type: "health", Description: "Protein smoothie or healthy meal", Cost: 2},
			{Type: "relaxation", Description: "Hot shower and stretching", Cost: 1},
		},
	},
	{
		keywords: []string{"learn", "study"},
		suggestions: []Suggestion{
			{Type: "educational", Description: "Watch educational video on topic you enjoy", Cost: 2},
			{Type: "break", Description: "Browse interesting articles", Cost: 1},
		},
	},
}

var fallbackSuggestions = []Suggestion{
	{Type: "break", Description: "15 minutes of your favorite music", Cost: 1},
	{Type: "treat", Description: "Cup of coffee or tea", Cost: 1},
	{Type: "activity", Description: "Quick walk or stretch", Cost: 1},
}

// Fallback returns the fixed list served when suggestion generation fails.
func Fallback() []Suggestion {
	return append([]Suggestion(nil), fallbackSuggestions...)
}

// RuleSuggestions is the full rule-based candidate list: the priority tier
// first, then keyword bonuses. Unknown priorities use the low tier.
func RuleSuggestions(title, description, priority string) []Suggestion {
	tier, ok := tierSuggestions[priority]
	if !ok {
		tier = tierSuggestions["low"]
	}

	out := append([]Suggestion(nil), tier...)
	text := TaskText(title, description)
	for _, b := range keywordBonuses {
		if containsAny(text, b.keywords...) {
			out = append(out, b.suggestions...)
		}
	}
	return out
}
