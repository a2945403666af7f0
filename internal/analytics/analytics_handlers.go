package analytics

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

const defaultActivityLimit = 50

// GET /user/activity?limit=50
func ActivityHandler(t *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		limit := defaultActivityLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		activities := t.ActivityFeed(r.Context(), uid, limit)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"activities": activities})
	}
}

type behaviorReq struct {
	Action  string         `json:"action"`
	Context map[string]any `json:"context"`
}

// POST /user/behavior
func BehaviorHandler(t *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req behaviorReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		req.Action = strings.TrimSpace(req.Action)
		if req.Action == "" {
			http.Error(w, "action is required", http.StatusBadRequest)
			return
		}

		env := FromRequest(r)
		t.TrackUserBehavior(r.Context(), uid, req.Action, env.Context(req.Context))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}
