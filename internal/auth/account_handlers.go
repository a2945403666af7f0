package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/mail"
	"time"

	"github.com/hay-kot/criterio"
)

const minPasswordLen = 8

func writeDetail(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"detail": msg})
}

func validEmail(s string) error {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return fmt.Errorf("invalid email %q", s)
	}
	return nil
}

func validPassword(s string) error {
	if len(s) < minPasswordLen {
		return fmt.Errorf("must be at least %d characters", minPasswordLen)
	}
	return nil
}

type signupReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (s signupReq) validate() error {
	return criterio.ValidateStruct(
		criterio.Run("email", s.Email, validEmail),
		criterio.Run("password", s.Password, validPassword),
	)
}

// POST /signup
func SignupHandler(users *Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body signupReq
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid json")
			return
		}
		body.Email = normalizeEmail(body.Email)

		if err := body.validate(); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}

		user, err := users.Register(r.Context(), body.Email, body.Password, body.Name)
		if errors.Is(err, ErrEmailTaken) {
			writeDetail(w, http.StatusBadRequest, "Email already registered")
			return
		}
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Failed to create user")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(user)
	}
}

var errNoCredentials = errors.New("username and password are required")

// credentials accepts the OAuth2 password form (username, password) or a
// JSON body (email, password).
func credentials(r *http.Request) (string, string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return "", "", fmt.Errorf("parse form: %w", err)
		}
		user, pass := r.PostFormValue("username"), r.PostFormValue("password")
		if user == "" || pass == "" {
			return "", "", errNoCredentials
		}
		return user, pass, nil
	}

	var body struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("decode body: %w", err)
	}
	email := body.Email
	if email == "" {
		email = body.Username
	}
	if email == "" || body.Password == "" {
		return "", "", errNoCredentials
	}
	return email, body.Password, nil
}

// POST /login
func LoginHandler(users *Users, secret []byte, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, password, err := credentials(r)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}

		user, ok := users.GetUserByEmail(r.Context(), email)
		if !ok || !VerifyPassword(user.HashedPassword, password) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
			return
		}

		token, err := GenerateToken(secret, ttl, user.Email, user.ID)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "token generation failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"token_type":   "bearer",
			"user": map[string]any{
				"id":    user.ID,
				"email": user.Email,
				"name":  user.Name,
			},
		})
	}
}

// GET /me
func MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(user)
	}
}

func LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// tokens are stateless; the client drops its copy
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
		})
	}
}
