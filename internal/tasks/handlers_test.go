package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AINative-Studio/rewardsy/internal/ai"
	"github.com/AINative-Studio/rewardsy/internal/analytics"
	"github.com/AINative-Studio/rewardsy/internal/auth"
	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

type fixture struct {
	client  *zerodb.MemoryClient
	svc     *Service
	tracker *analytics.Tracker
	mux     *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := zerodb.NewMemoryClient()
	tracker := analytics.NewTracker(c, zerolog.Nop())
	svc := NewService(c, ai.NewEngine(c, zerolog.Nop()), tracker, zerolog.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks", ListTasksHandler(svc))
	mux.HandleFunc("POST /tasks", CreateTaskHandler(svc, tracker))
	mux.HandleFunc("GET /tasks/{id}", GetTaskHandler(svc))
	mux.HandleFunc("PUT /tasks/{id}", UpdateTaskHandler(svc, tracker))
	mux.HandleFunc("DELETE /tasks/{id}", DeleteTaskHandler(svc, tracker))
	mux.HandleFunc("POST /tasks/{id}/attachments", UploadAttachmentHandler(svc))
	mux.HandleFunc("POST /ai/suggest-reward", SuggestRewardHandler(svc))
	mux.HandleFunc("GET /admin/zerodb/status", StatusHandler(svc))

	return &fixture{client: c, svc: svc, tracker: tracker, mux: mux}
}

func (f *fixture) do(t *testing.T, uid string, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if uid != "" {
		r = r.WithContext(auth.WithUser(r.Context(), auth.User{ID: uid, Email: uid + "@example.com"}))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, r)
	return rec
}

func (f *fixture) create(t *testing.T, uid, body string) Task {
	t.Helper()
	rec := f.do(t, uid, httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var task Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	return task
}

func TestTaskCRUDHandlers(t *testing.T) {
	f := newFixture(t)

	task := f.create(t, "u1", `{"title":"Finish report","description":"Q3","priority":"high"}`)
	assert.Equal(t, StatusPending, task.Status)
	assert.NotEmpty(t, task.Rewards)

	created := f.client.Feedback("user_behavior")
	require.Len(t, created, 1)
	assert.Equal(t, "task_created", created[0].Metadata["action"])

	rec := f.do(t, "u1", httptest.NewRequest(http.MethodGet, "/tasks/"+task.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, "u1", httptest.NewRequest(http.MethodGet, "/tasks?skip=0&limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = f.do(t, "u1", httptest.NewRequest(http.MethodPut, "/tasks/"+task.ID, strings.NewReader(`{"status":"completed"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var updated Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, StatusCompleted, updated.Status)
	assert.Equal(t, "Q3", updated.Description)
	assert.Len(t, f.client.Feedback("user_behavior"), 2)

	rec = f.do(t, "u1", httptest.NewRequest(http.MethodDelete, "/tasks/"+task.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, "u1", httptest.NewRequest(http.MethodGet, "/tasks/"+task.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	feed := f.tracker.ActivityFeed(context.Background(), "u1", 50)
	require.Len(t, feed, 3)
	assert.Equal(t, "task_deleted", feed[0].Type)
}

func TestUpdateTaskHandler_EmptyBodyIsNoop(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "u1", `{"title":"Finish report","priority":"high"}`)

	rec := f.do(t, "u1", httptest.NewRequest(http.MethodPut, "/tasks/"+task.ID, strings.NewReader(`{}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var got Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, task.Title, got.Title)
	assert.Equal(t, task.UpdatedAt.Unix(), got.UpdatedAt.Unix())
	assert.Empty(t, f.client.Events(TopicTaskUpdated))

	rec = f.do(t, "u1", httptest.NewRequest(http.MethodPut, "/tasks/missing", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskHandlers_Errors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "", httptest.NewRequest(http.MethodGet, "/tasks", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, "u1", httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(`{"title":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "detail")

	rec = f.do(t, "u1", httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(`{"title":"x","rewards":[{"type":"text","description":"d","cost":-3}]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "u1", httptest.NewRequest(http.MethodGet, "/tasks?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "u1", httptest.NewRequest(http.MethodPut, "/tasks/missing", strings.NewReader(`{"title":"x"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, "u1", httptest.NewRequest(http.MethodPut, "/tasks/missing", strings.NewReader(`{"status":"done"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	task := f.create(t, "u1", `{"title":"mine"}`)
	rec = f.do(t, "u2", httptest.NewRequest(http.MethodGet, "/tasks/"+task.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadAttachmentHandler(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, "u1", `{"title":"Draw a comic"}`)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "badge.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("gold star"))
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/tasks/"+task.ID+"/attachments", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(t, "u1", r)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stored zerodb.StoredFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, "badge.txt", stored.Filename)

	data, ok := f.client.File(stored.FileID)
	require.True(t, ok)
	assert.Equal(t, "gold star", string(data))

	r = httptest.NewRequest(http.MethodPost, "/tasks/"+task.ID+"/attachments", strings.NewReader("nope"))
	r.Header.Set("Content-Type", "text/plain")
	assert.Equal(t, http.StatusBadRequest, f.do(t, "u1", r).Code)

	r = httptest.NewRequest(http.MethodPost, "/tasks/unknown/attachments", strings.NewReader(""))
	assert.Equal(t, http.StatusNotFound, f.do(t, "u1", r).Code)
}

func TestSuggestRewardHandler(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "u1", httptest.NewRequest(http.MethodPost, "/ai/suggest-reward", strings.NewReader(`{"title":"Go for a workout"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []ai.Suggestion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	want := ai.RuleSuggestions("Go for a workout", "", "medium")
	require.Greater(t, len(want), ai.MaxSuggestions)
	assert.Equal(t, want[:ai.MaxSuggestions], got)

	rec = f.do(t, "u1", httptest.NewRequest(http.MethodPost, "/ai/suggest-reward", strings.NewReader(`{"description":"no title"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusHandler(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "u1", httptest.NewRequest(http.MethodGet, "/admin/zerodb/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"error"`)
}
