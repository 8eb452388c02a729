package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound  = 0
	rotateStatusExpired   = 1
	rotateStatusReused    = 2
	rotateStatusRotated   = 3
	rotateStatusDuplicate = 4
)

// extendIndexLua keeps the subject index alive exactly as long as its
// longest-lived record. Prepended to scripts that add index members.
const extendIndexLua = `
local function extend_index(key, exp, now)
  local ttl = redis.call("PTTL", key)
  if ttl < 0 or now + ttl < exp then
    redis.call("PEXPIREAT", key, exp)
  end
end
`

// recordTokenLua inserts a record unless the digest already exists.
// KEYS[1] = record key, KEYS[2] = subject index key
// ARGV = token hash, subject, user agent, ip, expires (unix ms), created (unix ms)
var recordTokenLua = redis.NewScript(extendIndexLua + `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "sub", ARGV[2], "ua", ARGV[3], "ip", ARGV[4], "exp", ARGV[5], "created", ARGV[6], "rep", "")
redis.call("PEXPIREAT", KEYS[1], ARGV[5])
redis.call("SADD", KEYS[2], ARGV[1])
extend_index(KEYS[2], tonumber(ARGV[5]), tonumber(ARGV[6]))
return 1
`)

// rotateTokenLua links the predecessor to its successor and inserts the
// successor in one script execution.
// KEYS[1] = old record key, KEYS[2] = new record key
// ARGV[1] = now (unix ms), ARGV[2] = new hash, ARGV[3] = user agent,
// ARGV[4] = ip, ARGV[5] = new expiry (unix ms), ARGV[6] = subject index prefix
var rotateTokenLua = redis.NewScript(extendIndexLua + `
local old = redis.call("HMGET", KEYS[1], "sub", "exp", "rep")
local sub = old[1]
if not sub then
  return {0}
end

local rep = old[3]
if rep and rep ~= "" then
  return {2, sub}
end

local exp = tonumber(old[2])
if not exp or exp <= tonumber(ARGV[1]) then
  return {1, sub}
end

if redis.call("EXISTS", KEYS[2]) == 1 then
  return {4, sub}
end

redis.call("HSET", KEYS[2], "sub", sub, "ua", ARGV[3], "ip", ARGV[4], "exp", ARGV[5], "created", ARGV[1], "rep", "")
redis.call("PEXPIREAT", KEYS[2], ARGV[5])
redis.call("HSET", KEYS[1], "rep", ARGV[2])
redis.call("SADD", ARGV[6] .. sub, ARGV[2])
extend_index(ARGV[6] .. sub, tonumber(ARGV[5]), tonumber(ARGV[1]))

return {3, sub}
`)

// revokeSubjectLua deletes every indexed record and the index itself.
// KEYS[1] = subject index key, ARGV[1] = record key prefix
var revokeSubjectLua = redis.NewScript(`
local hashes = redis.call("SMEMBERS", KEYS[1])
local deleted = 0
for _, hash in ipairs(hashes) do
  deleted = deleted + redis.call("DEL", ARGV[1] .. hash)
end
redis.call("DEL", KEYS[1])
return deleted
`)

// Redis is a Ledger backed by one hash per token digest plus a set per
// subject. Records expire with their tokens.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ Ledger = (*Redis)(nil)

// NewRedis returns a Redis ledger. prefix namespaces every key.
func NewRedis(redisClient redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "rt"
	}
	return &Redis{redis: redisClient, prefix: prefix, now: time.Now}
}

// WithClock overrides the clock used for expiry checks.
func (r *Redis) WithClock(now func() time.Time) *Redis {
	r.now = now
	return r
}

func (r *Redis) key(hash string) string {
	return r.prefix + ":t:" + hash
}

func (r *Redis) subjectPrefix() string {
	return r.prefix + ":s:"
}

func (r *Redis) subjectKey(subjectID string) string {
	return r.subjectPrefix() + subjectID
}

// Record inserts a new refresh token record.
func (r *Redis) Record(ctx context.Context, token, subjectID string, dev Device, expiresAt time.Time) error {
	hash := HashToken(token)
	created, err := recordTokenLua.Run(ctx, r.redis,
		[]string{r.key(hash), r.subjectKey(subjectID)},
		hash, subjectID, dev.UserAgent, dev.IP, expiresAt.UnixMilli(), r.now().UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if created == 0 {
		return ErrDuplicateToken
	}
	return nil
}

// Find returns the record for token or ErrNotFound.
func (r *Redis) Find(ctx context.Context, token string) (*Record, error) {
	hash := HashToken(token)
	fields, err := r.redis.HGetAll(ctx, r.key(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRecord(hash, fields)
}

// Rotate marks oldToken as replaced by newToken and inserts the successor atomically.
func (r *Redis) Rotate(ctx context.Context, oldToken, newToken string, newExpiry time.Time, dev Device) (*Record, error) {
	oldHash := HashToken(oldToken)
	newHash := HashToken(newToken)

	result, err := rotateTokenLua.Run(ctx, r.redis,
		[]string{r.key(oldHash), r.key(newHash)},
		r.now().UnixMilli(), newHash, dev.UserAgent, dev.IP, newExpiry.UnixMilli(), r.subjectPrefix(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrUnavailable)
	}

	code, ok := result[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrUnavailable)
	}
	if code == rotateStatusNotFound {
		return nil, ErrNotFound
	}

	rec := &Record{TokenHash: oldHash}
	if len(result) > 1 {
		rec.SubjectID, _ = result[1].(string)
	}

	switch code {
	case rotateStatusExpired:
		return rec, ErrExpired
	case rotateStatusReused:
		return rec, ErrReuseDetected
	case rotateStatusDuplicate:
		return nil, ErrDuplicateToken
	case rotateStatusRotated:
		rec.ReplacedBy = newHash
		return rec, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrUnavailable)
	}
}

// RevokeAll deletes every record indexed under subjectID in one script,
// so a concurrent rotation either lands before it and is revoked or fails
// with ErrNotFound.
func (r *Redis) RevokeAll(ctx context.Context, subjectID string) (int, error) {
	deleted, err := revokeSubjectLua.Run(ctx, r.redis,
		[]string{r.subjectKey(subjectID)},
		r.key(""),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return deleted, nil
}

func decodeRecord(hash string, fields map[string]string) (*Record, error) {
	exp, err := strconv.ParseInt(fields["exp"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt record expiry", ErrUnavailable)
	}
	created, _ := strconv.ParseInt(fields["created"], 10, 64)

	return &Record{
		TokenHash:  hash,
		SubjectID:  fields["sub"],
		Device:     Device{UserAgent: fields["ua"], IP: fields["ip"]},
		ExpiresAt:  time.UnixMilli(exp),
		ReplacedBy: fields["rep"],
		CreatedAt:  time.UnixMilli(created),
	}, nil
}
