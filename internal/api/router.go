// Package api wires handlers into the HTTP surface of the service.
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/AINative-Studio/rewardsy/internal/analytics"
	"github.com/AINative-Studio/rewardsy/internal/auth"
	"github.com/AINative-Studio/rewardsy/internal/events"
	"github.com/AINative-Studio/rewardsy/internal/tasks"
	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

type Deps struct {
	Client  zerodb.Client
	Users   *auth.Users
	Tasks   *tasks.Service
	Tracker *analytics.Tracker
	Hub     *events.Hub

	JWTSecret      []byte
	TokenTTL       time.Duration
	AllowedOrigins []string
	Version        string
	Logger         zerolog.Logger
}

func NewRouter(d Deps) http.Handler {
	mw := auth.New(d.JWTSecret, d.Users)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "Rewardsy API is running",
			"version": d.Version,
		})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	// ----- AUTH -----
	mux.HandleFunc("POST /signup", auth.SignupHandler(d.Users))
	mux.HandleFunc("POST /login", auth.LoginHandler(d.Users, d.JWTSecret, d.TokenTTL))
	mux.HandleFunc("GET /me", mw.Wrap(auth.MeHandler()))
	mux.HandleFunc("POST /logout", mw.Wrap(auth.LogoutHandler()))

	// ----- TASKS -----
	mux.HandleFunc("GET /tasks", mw.Wrap(tasks.ListTasksHandler(d.Tasks)))
	mux.HandleFunc("POST /tasks", mw.Wrap(tasks.CreateTaskHandler(d.Tasks, d.Tracker)))
	mux.HandleFunc("GET /tasks/{id}", mw.Wrap(tasks.GetTaskHandler(d.Tasks)))
	mux.HandleFunc("PUT /tasks/{id}", mw.Wrap(tasks.UpdateTaskHandler(d.Tasks, d.Tracker)))
	mux.HandleFunc("DELETE /tasks/{id}", mw.Wrap(tasks.DeleteTaskHandler(d.Tasks, d.Tracker)))
	mux.HandleFunc("POST /tasks/{id}/attachments", mw.Wrap(tasks.UploadAttachmentHandler(d.Tasks)))
	mux.HandleFunc("POST /ai/suggest-reward", mw.Wrap(tasks.SuggestRewardHandler(d.Tasks)))

	// ----- ACTIVITY -----
	mux.HandleFunc("GET /user/activity", mw.Wrap(analytics.ActivityHandler(d.Tracker)))
	mux.HandleFunc("POST /user/behavior", mw.Wrap(analytics.BehaviorHandler(d.Tracker)))

	mux.HandleFunc("GET /admin/zerodb/status", mw.Wrap(tasks.StatusHandler(d.Tasks)))
	mux.HandleFunc("GET /ws", mw.Wrap(events.WSHandler(d.Hub, d.Client, events.NewUpgrader(d.AllowedOrigins), d.Logger)))

	c := cors.New(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return accessLog(d.Logger, c.Handler(mux))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func accessLog(logger zerolog.Logger, next http.Handler) http.Handler {
	log := logger.With().Str("component", "http").Logger()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
