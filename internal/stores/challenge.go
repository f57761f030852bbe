package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeRecordVersionV1 = 1
	challengeRecordSize      = 1 + 1 + 2 + 8 + 32
)

// Purpose codes stored in the record header.
const (
	PurposeRegister uint8 = 1
	PurposeLogin    uint8 = 2
)

var (
	ErrChallengeNotFound         = errors.New("otp challenge not found")
	ErrChallengeExpired          = errors.New("otp challenge expired")
	ErrChallengeMismatch         = errors.New("otp challenge code mismatch")
	ErrChallengeAttemptsExceeded = errors.New("otp challenge attempts exceeded")
	ErrChallengeRedisUnavailable = errors.New("otp challenge redis unavailable")
)

// consumeChallengeLua atomically performs GET→validate→DEL/SET on a challenge record.
// Only a match deletes the key. Expired and exhausted records stay until the
// Redis TTL so a resend can still find the handshake they belong to; an
// exhausted record reads as not_found.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = max attempts (int string)
// ARGV[3] = current unix time in milliseconds (int string)
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "expired", "attempts_exceeded", "code_mismatch"
var consumeChallengeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowMs = tonumber(ARGV[3])

-- version(1) purpose(1) attempts(2 big-endian) expiresAtMs(8 big-endian) hash(32)
if string.len(data) ~= 44 or string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local attempts = string.byte(data, 3) * 256 + string.byte(data, 4)

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 5, 12)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if attempts >= maxAttempts then
  return {err='not_found'}
end

if nowMs > expiresAt then
  return {err='expired'}
end

local storedHash = string.sub(data, 13, 44)
if storedHash ~= providedHash then
  attempts = attempts + 1
  local newData = string.sub(data, 1, 2) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 5)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('SET', KEYS[1], newData, 'KEEPTTL')
  else
    redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  end
  if attempts >= maxAttempts then
    return {err='attempts_exceeded'}
  end
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// ChallengeRecord is the single outstanding OTP for one (purpose, email) pair.
// ExpiresAt is unix milliseconds.
type ChallengeRecord struct {
	Purpose   uint8
	Attempts  uint16
	ExpiresAt int64
	CodeHash  [32]byte
}

// ChallengeStore keeps one challenge slot per (purpose, email). Save replaces
// whatever the slot held, which is what invalidates older codes on resend.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ChallengeStore) key(purpose uint8, email string) string {
	return fmt.Sprintf("%s:%d:%s", s.prefix, purpose, email)
}

// Save overwrites the slot. ttl is the Redis lifetime of the key and should
// outlive ExpiresAt so late attempts can still be reported as expired.
func (s *ChallengeStore) Save(ctx context.Context, email string, record *ChallengeRecord, ttl time.Duration) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(record.Purpose, email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	return nil
}

// Consume checks providedHash against the stored challenge. On a match the
// record is deleted and returned; every other outcome is reported as an error.
func (s *ChallengeStore) Consume(
	ctx context.Context,
	purpose uint8,
	email string,
	providedHash [32]byte,
	maxAttempts int,
	now time.Time,
) (*ChallengeRecord, error) {
	result, err := consumeChallengeLua.Run(ctx, s.redis,
		[]string{s.key(purpose, email)},
		string(providedHash[:]),
		maxAttempts,
		now.UnixMilli(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrChallengeNotFound
		case "expired":
			return nil, ErrChallengeExpired
		case "attempts_exceeded":
			return nil, ErrChallengeAttemptsExceeded
		case "code_mismatch":
			return nil, ErrChallengeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrChallengeRedisUnavailable)
	}

	record, decErr := decodeChallengeRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, decErr)
	}

	// Lua string equality is not constant-time.
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrChallengeMismatch
	}

	return record, nil
}

// Peek returns the stored record without touching attempts. Used for
// diagnostics and tests.
func (s *ChallengeStore) Peek(ctx context.Context, purpose uint8, email string) (*ChallengeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(purpose, email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	return decodeChallengeRecord(data)
}

func encodeChallengeRecord(record *ChallengeRecord) ([]byte, error) {
	if record.Purpose == 0 {
		return nil, errors.New("challenge record purpose is required")
	}

	var buf bytes.Buffer
	buf.Grow(challengeRecordSize)

	buf.WriteByte(challengeRecordVersionV1)
	buf.WriteByte(record.Purpose)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*ChallengeRecord, error) {
	if len(data) != challengeRecordSize {
		return nil, errors.New("invalid challenge record size")
	}
	if data[0] != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &ChallengeRecord{
		Purpose:   data[1],
		Attempts:  binary.BigEndian.Uint16(data[2:4]),
		ExpiresAt: int64(binary.BigEndian.Uint64(data[4:12])),
	}
	copy(record.CodeHash[:], data[12:])
	return record, nil
}
