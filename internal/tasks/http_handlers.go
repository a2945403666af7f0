package tasks

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/AINative-Studio/rewardsy/internal/analytics"
	"github.com/AINative-Studio/rewardsy/internal/auth"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"detail": msg})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

// GET /tasks?skip=0&limit=100
func ListTasksHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		skip, err := intParam(r, "skip", 0)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		limit, err := intParam(r, "limit", defaultListLimit)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, svc.GetTasks(r.Context(), uid, skip, limit))
	}
}

// POST /tasks
func CreateTaskHandler(svc *Service, tracker *analytics.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body TaskCreate
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid json")
			return
		}
		body.Normalize()
		if err := body.Validate(); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}

		task, ok := svc.CreateTask(r.Context(), uid, body)
		if !ok {
			writeDetail(w, http.StatusInternalServerError, "Failed to create task")
			return
		}

		env := analytics.FromRequest(r)
		tracker.TrackUserBehavior(r.Context(), uid, "task_created", env.Context(map[string]any{
			"task_priority":   string(task.Priority),
			"has_description": task.Description != "",
		}))

		writeJSON(w, http.StatusCreated, task)
	}
}

// GET /tasks/{id}
func GetTaskHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		task, ok := svc.GetTask(r.Context(), r.PathValue("id"), uid)
		if !ok {
			writeDetail(w, http.StatusNotFound, "Task not found")
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

// PUT /tasks/{id}
func UpdateTaskHandler(svc *Service, tracker *analytics.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		taskID := r.PathValue("id")

		var body TaskUpdate
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := body.Validate(); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}

		before, ok := svc.GetTask(r.Context(), taskID, uid)
		if !ok {
			writeDetail(w, http.StatusNotFound, "Task not found")
			return
		}
		if body.Empty() {
			writeJSON(w, http.StatusOK, before)
			return
		}

		task, ok := svc.UpdateTask(r.Context(), taskID, uid, body)
		if !ok {
			writeDetail(w, http.StatusInternalServerError, "Failed to update task")
			return
		}

		if task.Status == StatusCompleted && before.Status != StatusCompleted {
			env := analytics.FromRequest(r)
			tracker.TrackUserBehavior(r.Context(), uid, "task_completed", env.Context(map[string]any{
				"task_priority": string(task.Priority),
				"task_id":       task.ID,
			}))
		}

		writeJSON(w, http.StatusOK, task)
	}
}

// DELETE /tasks/{id}
func DeleteTaskHandler(svc *Service, tracker *analytics.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		taskID := r.PathValue("id")

		if !svc.DeleteTask(r.Context(), taskID, uid) {
			writeDetail(w, http.StatusNotFound, "Task not found")
			return
		}

		env := analytics.FromRequest(r)
		tracker.TrackUserBehavior(r.Context(), uid, "task_deleted", env.Context(map[string]any{
			"task_id": taskID,
		}))

		w.WriteHeader(http.StatusNoContent)
	}
}
