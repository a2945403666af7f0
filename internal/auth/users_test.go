package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

func newTestUsers(t *testing.T, c zerodb.Client) *Users {
	t.Helper()
	u, err := NewUsers(c, zerolog.Nop())
	require.NoError(t, err)
	u.cost = bcrypt.MinCost
	t.Cleanup(u.Close)
	return u
}

// countingClient counts memory reads.
type countingClient struct {
	zerodb.Client
	mu    sync.Mutex
	reads int
}

func (c *countingClient) GetMemory(ctx context.Context, q zerodb.MemoryQuery) ([]zerodb.MemoryEntry, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.Client.GetMemory(ctx, q)
}

type downClient struct {
	zerodb.Client
}

func (downClient) StoreMemory(context.Context, zerodb.MemoryEntry) (zerodb.MemoryEntry, error) {
	return zerodb.MemoryEntry{}, errors.New("down")
}

func (downClient) GetMemory(context.Context, zerodb.MemoryQuery) ([]zerodb.MemoryEntry, error) {
	return nil, errors.New("down")
}

func TestCreateUser_StoresAndPublishes(t *testing.T) {
	c := zerodb.NewMemoryClient()
	users := newTestUsers(t, c)
	ctx := context.Background()

	u, ok := users.CreateUser(ctx, " Ada@Example.com ", "correct-horse", "")
	require.True(t, ok)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, "ada", u.Name)
	assert.True(t, VerifyPassword(u.HashedPassword, "correct-horse"))
	assert.False(t, VerifyPassword(u.HashedPassword, "wrong"))

	mems, err := c.GetMemory(ctx, zerodb.MemoryQuery{AgentID: SystemAgentID, Role: "user"})
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "User created: ada@example.com", mems[0].Content)
	assert.Equal(t, 1, mems[0].Metadata["schema_version"])

	require.Len(t, c.Events(TopicUserCreated), 1)
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	c := zerodb.NewMemoryClient()
	users := newTestUsers(t, c)
	ctx := context.Background()

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := users.Register(ctx, "ada@example.com", "correct-horse", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrEmailTaken)
	}
	assert.Equal(t, 1, created)

	mems, err := c.GetMemory(ctx, zerodb.MemoryQuery{AgentID: SystemAgentID, Role: "user"})
	require.NoError(t, err)
	assert.Len(t, mems, 1)
	assert.Empty(t, users.creating)

	_, ok := users.CreateUser(ctx, "ADA@example.com", "correct-horse", "")
	assert.False(t, ok)
}

func TestGetUserByEmail_ScansOnIndexMiss(t *testing.T) {
	c := zerodb.NewMemoryClient()
	ctx := context.Background()

	created, ok := newTestUsers(t, c).CreateUser(ctx, "ada@example.com", "correct-horse", "Ada")
	require.True(t, ok)

	counting := &countingClient{Client: c}
	fresh := newTestUsers(t, counting)

	got, ok := fresh.GetUserByEmail(ctx, "ADA@example.com")
	require.True(t, ok)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, created.HashedPassword, got.HashedPassword)

	reads := counting.reads
	_, ok = fresh.GetUserByEmail(ctx, "ada@example.com")
	require.True(t, ok)
	assert.Equal(t, reads, counting.reads, "second lookup is served from the index")

	_, ok = fresh.GetUserByEmail(ctx, "nobody@example.com")
	assert.False(t, ok)
}

func TestGetUserByEmail_Failures(t *testing.T) {
	users := newTestUsers(t, downClient{})

	_, ok := users.GetUserByEmail(context.Background(), "ada@example.com")
	assert.False(t, ok)

	_, ok = users.CreateUser(context.Background(), "ada@example.com", "correct-horse", "")
	assert.False(t, ok)

	_, ok = users.GetUserByEmail(context.Background(), "")
	assert.False(t, ok)
}
