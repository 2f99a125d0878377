package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

const (
	// DefaultRedisPrefix namespaces every key written by RedisStaging
	DefaultRedisPrefix = "accounts:staging:"

	// records outlive their expiry so that late completions observe Expired
	// rather than NotFound
	defaultExpiryGrace = time.Hour
)

// KEYS[1] email key, KEYS[2] token key
// ARGV[1] token, ARGV[2] record, ARGV[3] ttl in milliseconds
var insertScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[3]) then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
	return 1
end
return 0
`)

// KEYS[1] token key, KEYS[2] email key
// ARGV[1] token
var consumeScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then
	return 0
end
if redis.call('GET', KEYS[2]) == ARGV[1] then
	redis.call('DEL', KEYS[2])
end
return 1
`)

type redisRecord struct {
	Kind         accounts.ChangeKind `json:"kind"`
	Token        string              `json:"token"`
	Email        string              `json:"email"`
	IdentityID   uuid.UUID           `json:"identity_id"`
	FirstName    string              `json:"first_name,omitempty"`
	LastName     string              `json:"last_name,omitempty"`
	PasswordHash string              `json:"password_hash,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

func newRedisRecord(c *accounts.PendingChange) (*redisRecord, error) {
	rec := &redisRecord{
		Kind:      c.Kind,
		Token:     c.Token,
		Email:     c.Email,
		CreatedAt: c.CreatedAt.UTC(),
		ExpiresAt: c.ExpiresAt.UTC(),
	}

	switch p := c.Payload().(type) {
	case accounts.RegistrationPayload:
		rec.FirstName, rec.LastName, rec.PasswordHash = p.FirstName, p.LastName, p.PasswordHash
	case accounts.EmailChangePayload:
		rec.IdentityID = p.IdentityID
		rec.FirstName, rec.LastName, rec.PasswordHash = p.FirstName, p.LastName, p.PasswordHash
	case accounts.PasswordResetPayload:
		rec.IdentityID = p.IdentityID
		rec.PasswordHash = p.PasswordHash
	default:
		return nil, fmt.Errorf("unknown pending change payload %T", p)
	}

	return rec, nil
}

func (r *redisRecord) toPendingChange() (*accounts.PendingChange, error) {
	window := r.ExpiresAt.Sub(r.CreatedAt)

	switch r.Kind {
	case accounts.ChangeRegistration:
		return accounts.NewRegistration(r.Token, r.Email, accounts.RegistrationPayload{
			FirstName:    r.FirstName,
			LastName:     r.LastName,
			PasswordHash: r.PasswordHash,
		}, r.CreatedAt, window), nil
	case accounts.ChangeEmail:
		return accounts.NewEmailChange(r.Token, r.Email, accounts.EmailChangePayload{
			IdentityID:   r.IdentityID,
			FirstName:    r.FirstName,
			LastName:     r.LastName,
			PasswordHash: r.PasswordHash,
		}, r.CreatedAt, window), nil
	case accounts.ChangePasswordReset:
		return accounts.NewPasswordReset(r.Token, r.Email, accounts.PasswordResetPayload{
			IdentityID:   r.IdentityID,
			PasswordHash: r.PasswordHash,
		}, r.CreatedAt, window), nil
	}

	return nil, fmt.Errorf("unknown pending change kind %q", r.Kind)
}

// RedisStaging is a StagingStore kept in Redis. Each change is stored under
// its token with a companion key per email that enforces one live change per
// address. The tx arguments are ignored: consuming a token cannot be rolled
// back together with the SQL transaction that promotes it.
type RedisStaging struct {
	client redis.UniversalClient
	prefix string
	grace  time.Duration
}

var _ accounts.StagingStore = (*RedisStaging)(nil)

func NewRedisStaging(client redis.UniversalClient) *RedisStaging {
	return &RedisStaging{
		client: client,
		prefix: DefaultRedisPrefix,
		grace:  defaultExpiryGrace,
	}
}

// WithPrefix replaces the key namespace
func (s *RedisStaging) WithPrefix(prefix string) *RedisStaging {
	if prefix != "" {
		s.prefix = prefix
	}
	return s
}

func (s *RedisStaging) tokenKey(token string) string {
	return s.prefix + "token:" + token
}

func (s *RedisStaging) emailKey(email string) string {
	return s.prefix + "email:" + email
}

func (s *RedisStaging) GetByToken(ctx context.Context, token string) (*accounts.PendingChange, error) {
	rec, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.decode(rec)
}

func (s *RedisStaging) GetByEmailTx(ctx context.Context, _ bun.IDB, email string) (*accounts.PendingChange, error) {
	token, err := s.client.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, accounts.ErrNotFound("pending change not found")
		}
		return nil, accounts.ErrUnavailable(err, "failed to read pending change")
	}
	return s.GetByToken(ctx, token)
}

func (s *RedisStaging) InsertIfAbsentTx(ctx context.Context, _ bun.IDB, change *accounts.PendingChange, now time.Time) error {
	if change == nil {
		return accounts.ErrUnavailable(nil, "invalid pending change")
	}

	rec, err := newRedisRecord(change)
	if err != nil {
		return accounts.ErrUnavailable(err, "invalid pending change")
	}

	if err := s.purgeExpired(ctx, change.Email, now); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return accounts.ErrUnavailable(err, "failed to encode pending change")
	}

	ttl := rec.ExpiresAt.Sub(now) + s.grace
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	n, err := insertScript.Run(ctx, s.client,
		[]string{s.emailKey(rec.Email), s.tokenKey(rec.Token)},
		rec.Token, data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return accounts.ErrUnavailable(err, "failed to stage pending change")
	}

	if n == 0 {
		return accounts.ErrConflict("a pending change already exists for this email").
			WithMetadata(map[string]any{"email": rec.Email})
	}

	return nil
}

// purgeExpired drops the change held for email when it is expired at now or
// its token record is gone.
func (s *RedisStaging) purgeExpired(ctx context.Context, email string, now time.Time) error {
	token, err := s.client.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return accounts.ErrUnavailable(err, "failed to read pending change")
	}

	rec, err := s.load(ctx, token)
	if err != nil && !accounts.IsKind(err, accounts.KindNotFound) {
		return err
	}

	if rec != nil && now.Before(rec.ExpiresAt) {
		return nil
	}

	if _, err := consumeScript.Run(ctx, s.client,
		[]string{s.tokenKey(token), s.emailKey(email)}, token,
	).Int(); err != nil {
		return accounts.ErrUnavailable(err, "failed to purge expired pending change")
	}

	// the token record may already be gone while the email key lingers
	if rec == nil {
		if err := s.client.Eval(ctx,
			"if redis.call('GET', KEYS[1]) == ARGV[1] then return redis.call('DEL', KEYS[1]) end return 0",
			[]string{s.emailKey(email)}, token,
		).Err(); err != nil {
			return accounts.ErrUnavailable(err, "failed to purge expired pending change")
		}
	}

	return nil
}

func (s *RedisStaging) ConsumeTx(ctx context.Context, _ bun.IDB, token string, kinds ...accounts.ChangeKind) (*accounts.PendingChange, error) {
	rec, err := s.load(ctx, token)
	if err != nil {
		if accounts.IsKind(err, accounts.KindNotFound) {
			return nil, accounts.ErrNotFound("invalid or already used token")
		}
		return nil, err
	}

	if !kindAllowed(rec.Kind, kinds) {
		return nil, accounts.ErrNotFound("invalid or already used token")
	}

	n, err := consumeScript.Run(ctx, s.client,
		[]string{s.tokenKey(token), s.emailKey(rec.Email)}, token,
	).Int()
	if err != nil {
		return nil, accounts.ErrUnavailable(err, "failed to consume pending change")
	}

	if n == 0 {
		return nil, accounts.ErrNotFound("invalid or already used token")
	}

	return s.decode(rec)
}

func (s *RedisStaging) DeleteTx(ctx context.Context, _ bun.IDB, token string) error {
	rec, err := s.load(ctx, token)
	if err != nil {
		if accounts.IsKind(err, accounts.KindNotFound) {
			return nil
		}
		return err
	}

	if err := consumeScript.Run(ctx, s.client,
		[]string{s.tokenKey(token), s.emailKey(rec.Email)}, token,
	).Err(); err != nil {
		return accounts.ErrUnavailable(err, "failed to delete pending change")
	}
	return nil
}

// DeleteExpired scans every staged token and removes those expired before
// the given instant. Redis also evicts records once their grace period ends.
func (s *RedisStaging) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	var removed int

	iter := s.client.Scan(ctx, 0, s.tokenKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		token := key[len(s.tokenKey("")):]

		rec, err := s.load(ctx, token)
		if err != nil {
			if accounts.IsKind(err, accounts.KindNotFound) {
				continue
			}
			return removed, err
		}

		if !rec.ExpiresAt.Before(before) {
			continue
		}

		n, err := consumeScript.Run(ctx, s.client,
			[]string{key, s.emailKey(rec.Email)}, token,
		).Int()
		if err != nil {
			return removed, accounts.ErrUnavailable(err, "failed to delete expired pending changes")
		}
		removed += n
	}

	if err := iter.Err(); err != nil {
		return removed, accounts.ErrUnavailable(err, "failed to scan pending changes")
	}

	return removed, nil
}

func (s *RedisStaging) load(ctx context.Context, token string) (*redisRecord, error) {
	val, err := s.client.Get(ctx, s.tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, accounts.ErrNotFound("pending change not found")
		}
		return nil, accounts.ErrUnavailable(err, "failed to read pending change")
	}

	rec := &redisRecord{}
	if err := json.Unmarshal(val, rec); err != nil {
		return nil, accounts.ErrUnavailable(err, "corrupt pending change")
	}
	return rec, nil
}

func (s *RedisStaging) decode(rec *redisRecord) (*accounts.PendingChange, error) {
	change, err := rec.toPendingChange()
	if err != nil {
		return nil, accounts.ErrUnavailable(err, "corrupt pending change")
	}
	return change, nil
}

func kindAllowed(kind accounts.ChangeKind, kinds []accounts.ChangeKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
