// Package memory is a process-local otpgate.UserDirectory.
package memory

import (
	"context"
	"sync"

	"github.com/MrEthical07/otpgate"
)

// Store keeps users in maps guarded by one mutex. The email index is checked
// and written under the same lock, so Create is atomic.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*otpgate.User
	byEmail map[string]string
}

func New() *Store {
	return &Store{
		byID:    make(map[string]*otpgate.User),
		byEmail: make(map[string]string),
	}
}

func (s *Store) FindByEmail(_ context.Context, email string) (*otpgate.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, otpgate.ErrUserNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) FindByID(_ context.Context, id string) (*otpgate.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, otpgate.ErrUserNotFound
	}
	return clone(u), nil
}

func (s *Store) Create(_ context.Context, user *otpgate.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[user.Email]; exists {
		return otpgate.ErrConflict
	}
	if _, exists := s.byID[user.ID]; exists {
		return otpgate.ErrConflict
	}

	s.byID[user.ID] = clone(user)
	s.byEmail[user.Email] = user.ID
	return nil
}

// Len reports how many users are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func clone(u *otpgate.User) *otpgate.User {
	out := *u
	out.Profile.Skills = append([]string(nil), u.Profile.Skills...)
	return &out
}
