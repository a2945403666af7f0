package analytics

import (
	"context"
	"net/http"
	"strings"
)

type CtxKey string

const (
	ctxUserIDKey CtxKey = "analytics_user_id"
)

// Envelope is the request metadata folded into every tracked action.
type Envelope struct {
	UserID     string
	SessionID  string
	Platform   string
	AppVersion string
	Locale     string
}

// FromRequest extracts envelope fields from request headers.
func FromRequest(r *http.Request) Envelope {
	platform := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Platform")))
	switch platform {
	case "ios", "android", "web":
	default:
		platform = "unknown"
	}

	locale := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if locale == "" {
		locale = strings.TrimSpace(r.Header.Get("X-Device-Locale"))
	}

	env := Envelope{
		SessionID:  strings.TrimSpace(r.Header.Get("X-Session-Id")),
		Platform:   platform,
		AppVersion: strings.TrimSpace(r.Header.Get("X-App-Version")),
		Locale:     locale,
	}
	if uid, ok := UserIDFromContext(r.Context()); ok {
		env.UserID = uid
	}
	return env
}

// Context merges the envelope into a behavior context. Keys already set
// by the caller win.
func (e Envelope) Context(base map[string]any) map[string]any {
	out := make(map[string]any, len(base)+4)
	for k, v := range base {
		out[k] = v
	}

	put := func(k, v string) {
		if v == "" {
			return
		}
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	put("session_id", e.SessionID)
	put("platform", e.Platform)
	put("app_version", e.AppVersion)
	put("locale", e.Locale)
	return out
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(ctxUserIDKey).(string)
	return uid, ok && uid != ""
}
