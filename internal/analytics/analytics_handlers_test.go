package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

func withUser(r *http.Request, uid string) *http.Request {
	return r.WithContext(WithUserID(r.Context(), uid))
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Platform", " iOS ")
	r.Header.Set("X-App-Version", "1.4.0")
	r.Header.Set("X-Session-Id", "s-9")
	r = withUser(r, "u1")

	env := FromRequest(r)
	assert.Equal(t, "ios", env.Platform)
	assert.Equal(t, "1.4.0", env.AppVersion)
	assert.Equal(t, "s-9", env.SessionID)
	assert.Equal(t, "u1", env.UserID)

	r.Header.Set("X-Platform", "toaster")
	assert.Equal(t, "unknown", FromRequest(r).Platform)
}

func TestEnvelopeContext_CallerKeysWin(t *testing.T) {
	env := Envelope{SessionID: "s-env", Platform: "web"}

	out := env.Context(map[string]any{"session_id": "s-body", "streak_count": 4})
	assert.Equal(t, "s-body", out["session_id"])
	assert.Equal(t, "web", out["platform"])
	assert.Equal(t, 4, out["streak_count"])
	assert.NotContains(t, out, "app_version")
}

func TestActivityHandler(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.PublishTaskEvent(context.Background(), "task_created", "u1", "t1", nil)

	rec := httptest.NewRecorder()
	ActivityHandler(tr)(rec, withUser(httptest.NewRequest(http.MethodGet, "/user/activity?limit=10", nil), "u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Activities []Activity `json:"activities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Activities, 1)
	assert.Equal(t, "task_created", body.Activities[0].Type)
}

func TestActivityHandler_Errors(t *testing.T) {
	tr, _ := newTestTracker(t)

	rec := httptest.NewRecorder()
	ActivityHandler(tr)(rec, httptest.NewRequest(http.MethodGet, "/user/activity", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	ActivityHandler(tr)(rec, withUser(httptest.NewRequest(http.MethodGet, "/user/activity?limit=zero", nil), "u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBehaviorHandler(t *testing.T) {
	tr, c := newTestTracker(t)

	body := `{"action":"reward_claimed","context":{"reward_type":"small"}}`
	r := httptest.NewRequest(http.MethodPost, "/user/behavior", strings.NewReader(body))
	r.Header.Set("X-Session-Id", "s-7")
	r.Header.Set("X-Platform", "android")

	rec := httptest.NewRecorder()
	BehaviorHandler(tr)(rec, withUser(r, "u1"))

	require.Equal(t, http.StatusAccepted, rec.Code)

	mems, err := c.GetMemory(context.Background(), zerodb.MemoryQuery{AgentID: "user_behavior_u1"})
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "s-7", mems[0].SessionID)

	actx, ok := mems[0].Metadata["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "android", actx["platform"])
	assert.Equal(t, "small", actx["reward_type"])
}

func TestBehaviorHandler_BadInput(t *testing.T) {
	tr, _ := newTestTracker(t)

	cases := map[string]string{
		"invalid json":   `{`,
		"missing action": `{"action":"  "}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/user/behavior", strings.NewReader(body))
			BehaviorHandler(tr)(rec, withUser(r, "u1"))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
