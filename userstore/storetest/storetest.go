// Package storetest checks that an otpgate.UserDirectory behaves the way the
// engine expects. Store packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty directory. It is called once per subtest.
type Factory func(t *testing.T) otpgate.UserDirectory

func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndFind", func(t *testing.T) { testCreateAndFind(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
}

// NewUser returns a verified user with a fresh id.
func NewUser(email string) *otpgate.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &otpgate.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         "Test User",
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		Profile: otpgate.Profile{
			Headline: "Engineer",
			Bio:      "Writes Go.",
			Skills:   []string{"go", "redis"},
			Location: "Remote",
		},
		Verified:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testCreateAndFind(t *testing.T, s otpgate.UserDirectory) {
	ctx := context.Background()
	u := NewUser("find@example.com")
	require.NoError(t, s.Create(ctx, u))

	byEmail, err := s.FindByEmail(ctx, u.Email)
	require.NoError(t, err)
	assertSameUser(t, u, byEmail)

	byID, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assertSameUser(t, u, byID)
}

func testNotFound(t *testing.T, s otpgate.UserDirectory) {
	ctx := context.Background()

	_, err := s.FindByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, otpgate.ErrUserNotFound)

	_, err = s.FindByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, otpgate.ErrUserNotFound)

	_, err = s.FindByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, otpgate.ErrUserNotFound)
}

func testDuplicateEmail(t *testing.T, s otpgate.UserDirectory) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewUser("dup@example.com")))

	err := s.Create(ctx, NewUser("dup@example.com"))
	assert.ErrorIs(t, err, otpgate.ErrConflict)
}

func testConcurrentCreate(t *testing.T, s otpgate.UserDirectory) {
	ctx := context.Background()
	const workers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
		others    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Create(ctx, NewUser("race@example.com"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, otpgate.ErrConflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, others)
	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, conflicts)
}

func assertSameUser(t *testing.T, want, got *otpgate.User) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.PasswordHash, got.PasswordHash)
	assert.Equal(t, want.Profile, got.Profile)
	assert.Equal(t, want.Verified, got.Verified)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", want.CreatedAt, got.CreatedAt)
}
