package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AINative-Studio/rewardsy/internal/analytics"
	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

var testSecret = []byte("test-secret")

func signup(t *testing.T, users *Users, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	SignupHandler(users)(rec, r)
	return rec
}

func TestSignupHandler(t *testing.T) {
	users := newTestUsers(t, zerodb.NewMemoryClient())

	rec := signup(t, users, `{"email":"ada@example.com","password":"correct-horse","name":"Ada"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hashed")
	assert.NotContains(t, rec.Body.String(), "$2a$")

	var u User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, "Ada", u.Name)

	rec = signup(t, users, `{"email":"ada@example.com","password":"correct-horse"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already registered")
}

func TestSignupHandler_Validation(t *testing.T) {
	users := newTestUsers(t, zerodb.NewMemoryClient())

	cases := map[string]string{
		"bad json":       `{`,
		"bad email":      `{"email":"not-an-email","password":"correct-horse"}`,
		"short password": `{"email":"ada@example.com","password":"short"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := signup(t, users, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"detail"`)
		})
	}
}

func login(t *testing.T, users *Users, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	LoginHandler(users, testSecret, time.Hour)(rec, r)
	return rec
}

func TestLoginHandler_FormAndJSON(t *testing.T) {
	users := newTestUsers(t, zerodb.NewMemoryClient())
	require.Equal(t, http.StatusCreated, signup(t, users, `{"email":"ada@example.com","password":"correct-horse"}`).Code)

	form := url.Values{"username": {"ada@example.com"}, "password": {"correct-horse"}}
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := login(t, users, r)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		User        struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bearer", body.TokenType)
	assert.Equal(t, "ada@example.com", body.User.Email)

	claims, err := ParseToken(testSecret, body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, body.User.ID, claims.UserID)

	r = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"ada@example.com","password":"correct-horse"}`))
	r.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusOK, login(t, users, r).Code)
}

func TestLoginHandler_BadCredentials(t *testing.T) {
	users := newTestUsers(t, zerodb.NewMemoryClient())
	require.Equal(t, http.StatusCreated, signup(t, users, `{"email":"ada@example.com","password":"correct-horse"}`).Code)

	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"ada@example.com","password":"wrong-horse"}`))
	assert.Equal(t, http.StatusUnauthorized, login(t, users, r).Code)

	r = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"bob@example.com","password":"correct-horse"}`))
	assert.Equal(t, http.StatusUnauthorized, login(t, users, r).Code)

	r = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"ada@example.com"}`))
	assert.Equal(t, http.StatusBadRequest, login(t, users, r).Code)
}

func TestMiddleware(t *testing.T) {
	users := newTestUsers(t, zerodb.NewMemoryClient())
	u, ok := users.CreateUser(t.Context(), "ada@example.com", "correct-horse", "")
	require.True(t, ok)

	token, err := GenerateToken(testSecret, time.Hour, u.Email, u.ID)
	require.NoError(t, err)

	var gotUser, gotAnalytics string
	next := func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserIDFromContext(r.Context())
		gotAnalytics, _ = analytics.UserIDFromContext(r.Context())
		MeHandler()(w, r)
	}
	h := New(testSecret, users).Wrap(next)

	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, u.ID, gotUser)
	assert.Equal(t, u.ID, gotAnalytics)
	assert.Contains(t, rec.Body.String(), "ada@example.com")

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	r = httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ghost, err := GenerateToken(testSecret, time.Hour, "ghost@example.com", "x")
	require.NoError(t, err)
	r = httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer "+ghost)
	rec = httptest.NewRecorder()
	h(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParseToken_RejectsExpiredAndForeign(t *testing.T) {
	expired, err := GenerateToken(testSecret, -time.Minute, "ada@example.com", "u1")
	require.NoError(t, err)
	_, err = ParseToken(testSecret, expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := GenerateToken([]byte("other"), time.Hour, "ada@example.com", "u1")
	require.NoError(t, err)
	_, err = ParseToken(testSecret, foreign)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogoutHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LogoutHandler()(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}
