package events

import (
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/AINative-Studio/rewardsy/internal/auth"
	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

const EventsAgentID = "rewardsy_events"

// UserTopics lists the topics a user's socket follows.
func UserTopics(userID string) []string {
	return []string{
		"user_" + userID + "_tasks",
		"user_" + userID + "_rewards",
		"user_" + userID + "_notifications",
		TopicSystemAnnouncements,
	}
}

// NewUpgrader accepts same-origin requests, requests without an Origin
// header and the listed origins.
func NewUpgrader(origins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
				return true
			}
			return slices.Contains(origins, origin)
		},
	}
}

// GET /ws
func WSHandler(hub *Hub, client zerodb.Client, upgrader *websocket.Upgrader, logger zerolog.Logger) http.HandlerFunc {
	log := logger.With().Str("component", "ws").Logger()

	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the error response
			log.Warn().Err(err).Str("user_id", uid).Msg("websocket upgrade failed")
			return
		}

		topics := UserTopics(uid)
		err = client.LogAgentActivity(r.Context(), zerodb.AgentLog{
			AgentID:   EventsAgentID,
			SessionID: uuid.New().String(),
			Level:     "INFO",
			Message:   "User " + uid + " subscribed to real-time events",
			Payload: map[string]any{
				"user_id": uid,
				"topics":  topics,
			},
		})
		if err != nil {
			log.Warn().Err(err).Str("user_id", uid).Msg("log subscription failed")
		}

		hub.serve(uid, ws)
	}
}
