package tasks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/AINative-Studio/rewardsy/internal/auth"
)

const maxAttachmentBytes = 10 << 20

// POST /tasks/{id}/attachments (multipart field "file")
func UploadAttachmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		taskID := r.PathValue("id")

		if _, ok := svc.GetTask(r.Context(), taskID, uid); !ok {
			writeDetail(w, http.StatusNotFound, "Task not found")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentBytes+(1<<20))
		f, hdr, err := r.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeDetail(w, http.StatusRequestEntityTooLarge, "file too large")
				return
			}
			writeDetail(w, http.StatusBadRequest, "file is required")
			return
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, maxAttachmentBytes+1))
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "read file failed")
			return
		}
		if len(data) > maxAttachmentBytes {
			writeDetail(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}

		contentType := hdr.Header.Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}

		stored, ok := svc.StoreRewardAttachment(r.Context(), uid, taskID, data, hdr.Filename, contentType)
		if !ok {
			writeDetail(w, http.StatusInternalServerError, "Failed to upload file")
			return
		}
		writeJSON(w, http.StatusOK, stored)
	}
}

type suggestReq struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
}

// POST /ai/suggest-reward
func SuggestRewardHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserIDFromContext(r.Context()); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body suggestReq
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid json")
			return
		}
		body.Title = strings.TrimSpace(body.Title)
		if body.Title == "" {
			writeDetail(w, http.StatusBadRequest, "title is required")
			return
		}

		writeJSON(w, http.StatusOK, svc.SuggestRewards(r.Context(), body.Title, body.Description, body.Priority))
	}
}

// GET /admin/zerodb/status
func StatusHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.DatabaseStatus(r.Context()))
	}
}
