package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrPendingNotFound         = errors.New("pending registrant not found")
	ErrPendingRedisUnavailable = errors.New("pending registrant redis unavailable")
)

// PendingRecord is a staged, not-yet-verified registration. PasswordHash is
// already an argon2id PHC string when it reaches the store.
type PendingRecord struct {
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	PasswordHash string   `json:"password_hash"`
	Headline     string   `json:"headline,omitempty"`
	Bio          string   `json:"bio,omitempty"`
	Skills       []string `json:"skills,omitempty"`
	Location     string   `json:"location,omitempty"`
	CreatedAt    int64    `json:"created_at"`
}

// PendingStore holds at most one staged registrant per email.
type PendingStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPendingStore(redisClient redis.UniversalClient, prefix string) *PendingStore {
	if prefix == "" {
		prefix = "pending"
	}
	return &PendingStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PendingStore) key(email string) string {
	return s.prefix + ":" + email
}

// Save upserts the record for rec.Email and resets its lifetime to ttl.
func (s *PendingStore) Save(ctx context.Context, rec *PendingRecord, ttl time.Duration) error {
	if rec == nil || rec.Email == "" {
		return errors.New("pending record email is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(rec.Email), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingRedisUnavailable, err)
	}
	return nil
}

func (s *PendingStore) Get(ctx context.Context, email string) (*PendingRecord, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPendingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPendingRedisUnavailable, err)
	}

	var rec PendingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// A record we cannot read is as good as gone.
		_ = s.redis.Del(ctx, s.key(email)).Err()
		return nil, ErrPendingNotFound
	}
	return &rec, nil
}

func (s *PendingStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingRedisUnavailable, err)
	}
	return nil
}
