package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

const (
	SystemAgentID    = "rewardsy_system"
	TopicUserCreated = "user_created"

	userSchemaVersion = 1
	scanPageSize      = 100
)

var ErrEmailTaken = errors.New("email already registered")

type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// userRecord is the memory metadata a user is stored as.
type userRecord struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	HashedPassword string `json:"hashed_password"`
	CreatedAt      string `json:"created_at"`
	SchemaVersion  int    `json:"schema_version"`
}

func (r userRecord) user() User {
	u := User{
		ID:             r.UserID,
		Email:          r.Email,
		Name:           r.Name,
		HashedPassword: r.HashedPassword,
	}
	if ts, err := time.Parse(time.RFC3339Nano, r.CreatedAt); err == nil {
		u.CreatedAt = ts
	}
	return u
}

// Users stores accounts as system memories and keeps an email index in
// front of them.
type Users struct {
	client zerodb.Client
	log    zerolog.Logger
	index  *ristretto.Cache
	scans  singleflight.Group
	cost   int

	// creating serializes account creation per email.
	mu       sync.Mutex
	creating map[string]*emailLock
}

type emailLock struct {
	sync.Mutex
	refs int
}

func NewUsers(client zerodb.Client, logger zerolog.Logger) (*Users, error) {
	index, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1e4,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create user index: %w", err)
	}
	return &Users{
		client:   client,
		log:      logger.With().Str("component", "users").Logger(),
		index:    index,
		cost:     bcrypt.DefaultCost,
		creating: make(map[string]*emailLock),
	}, nil
}

func (u *Users) Close() {
	u.index.Close()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *Users) lockEmail(email string) func() {
	u.mu.Lock()
	l, ok := u.creating[email]
	if !ok {
		l = &emailLock{}
		u.creating[email] = l
	}
	l.refs++
	u.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.creating, email)
		}
		u.mu.Unlock()
	}
}

// CreateUser hashes the password and stores the account. The name defaults
// to the local part of the email. It reports false when the email is taken
// or the store fails.
func (u *Users) CreateUser(ctx context.Context, email, password, name string) (User, bool) {
	user, err := u.Register(ctx, email, password, name)
	if err != nil {
		u.log.Warn().Err(err).Str("email", normalizeEmail(email)).Msg("create user failed")
		return User{}, false
	}
	return user, true
}

// Register creates the account unless the email is already registered.
// Concurrent registrations of one email are serialized, so only the first
// succeeds and the rest get ErrEmailTaken.
func (u *Users) Register(ctx context.Context, email, password, name string) (User, error) {
	email = normalizeEmail(email)
	unlock := u.lockEmail(email)
	defer unlock()

	if _, exists := u.GetUserByEmail(ctx, email); exists {
		return User{}, ErrEmailTaken
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	rec := userRecord{
		UserID:         uuid.New().String(),
		Email:          email,
		Name:           name,
		HashedPassword: string(hash),
		CreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
		SchemaVersion:  userSchemaVersion,
	}

	_, err = u.client.StoreMemory(ctx, zerodb.MemoryEntry{
		AgentID:   SystemAgentID,
		SessionID: rec.UserID,
		Role:      "user",
		Content:   "User created: " + email,
		Metadata: map[string]any{
			"user_id":         rec.UserID,
			"email":           rec.Email,
			"name":            rec.Name,
			"hashed_password": rec.HashedPassword,
			"created_at":      rec.CreatedAt,
			"schema_version":  rec.SchemaVersion,
		},
	})
	if err != nil {
		return User{}, fmt.Errorf("store user: %w", err)
	}

	_, err = u.client.PublishEvent(ctx, TopicUserCreated, map[string]any{
		"user_id":   rec.UserID,
		"email":     rec.Email,
		"timestamp": rec.CreatedAt,
	})
	if err != nil {
		u.log.Warn().Err(err).Str("user_id", rec.UserID).Msg("publish user_created failed")
	}

	user := rec.user()
	u.index.Set(email, user, 1)
	u.index.Wait()
	return user, nil
}

// GetUserByEmail consults the index, then falls back to scanning stored
// accounts. Concurrent misses for one email share a single scan.
func (u *Users) GetUserByEmail(ctx context.Context, email string) (User, bool) {
	email = normalizeEmail(email)
	if email == "" {
		return User{}, false
	}

	if v, ok := u.index.Get(email); ok {
		if user, ok := v.(User); ok {
			return user, true
		}
	}

	v, err, _ := u.scans.Do(email, func() (any, error) {
		return u.scan(ctx, email)
	})
	if err != nil {
		u.log.Warn().Err(err).Str("email", email).Msg("user lookup failed")
		return User{}, false
	}

	user, ok := v.(*User)
	if !ok || user == nil {
		return User{}, false
	}
	u.index.Set(email, *user, 1)
	u.index.Wait()
	return *user, true
}

func (u *Users) scan(ctx context.Context, email string) (*User, error) {
	memories, err := zerodb.ScanMemory(ctx, u.client, zerodb.MemoryQuery{AgentID: SystemAgentID, Role: "user"}, scanPageSize)
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}

	var found *User
	for _, m := range memories {
		rec, err := decodeUser(m.Metadata)
		if err != nil {
			u.log.Warn().Err(err).Str("memory_id", m.ID).Msg("skip malformed user record")
			continue
		}
		if normalizeEmail(rec.Email) != email {
			continue
		}
		user := rec.user()
		if user.CreatedAt.IsZero() {
			user.CreatedAt = m.CreatedAt
		}
		found = &user
	}
	return found, nil
}

func decodeUser(meta map[string]any) (userRecord, error) {
	var rec userRecord
	b, err := json.Marshal(meta)
	if err != nil {
		return rec, fmt.Errorf("encode user metadata: %w", err)
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("decode user metadata: %w", err)
	}
	if rec.SchemaVersion == 0 {
		rec.SchemaVersion = userSchemaVersion
	}
	return rec, nil
}

func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
