package admission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	// sequenceTTL keeps a month's key around well past the end of the month.
	sequenceTTL = 62 * 24 * time.Hour
	// lockTTL bounds how long a crashed holder can block a period.
	lockTTL   = 30 * time.Second
	lockRetry = 25 * time.Millisecond
)

// releaseLockScript deletes the lock only if it still carries the holder's token.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSequencer advances a per-period counter with INCR. Increments are not
// rolled back when the surrounding transaction fails, which leaves gaps but never
// hands the same number out twice. A period lock in redis, held by the generator
// until commit, keeps codes in commit order across processes.
type RedisSequencer struct {
	client    redis.Cmdable
	ttl       time.Duration
	lockTTL   time.Duration
	lockRetry time.Duration
	newToken  func() string
}

// NewRedisSequencer returns a sequencer backed by client.
func NewRedisSequencer(client redis.Cmdable) *RedisSequencer {
	return &RedisSequencer{
		client:    client,
		ttl:       sequenceTTL,
		lockTTL:   lockTTL,
		lockRetry: lockRetry,
		newToken:  uuid.NewString,
	}
}

// SequenceKey returns the redis key holding the counter for p.
func SequenceKey(p Period) string {
	return fmt.Sprintf("admission_seq:%s", p.Key())
}

// LockKey returns the redis key of the admission lock for p.
func LockKey(p Period) string {
	return fmt.Sprintf("admission_lock:%s", p.Key())
}

func (s *RedisSequencer) Name() string { return KindRedis }

// LockPeriod takes the period lock with SET NX PX, retrying until it is free or
// ctx is done.
func (s *RedisSequencer) LockPeriod(ctx context.Context, p Period) (func(), error) {
	key := LockKey(p)
	token := s.newToken()
	for {
		ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(s.lockRetry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseLockScript.Run(releaseCtx, s.client, []string{key}, token).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to release admission lock")
		}
	}, nil
}

// Next increments the period counter. A result of 1 means the key did not exist,
// either because the month just started or because redis lost it; the counter is
// then moved past the highest code already stored.
func (s *RedisSequencer) Next(ctx context.Context, tx *gorm.DB, p Period) (int, error) {
	key := SequenceKey(p)
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if n != 1 {
		return int(n), nil
	}

	last, err := MaxIssued(ctx, tx, p)
	if err != nil {
		return 0, err
	}
	if last == 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return 0, fmt.Errorf("expire %s: %w", key, err)
		}
		return 1, nil
	}

	next := last + 1
	if err := s.client.Set(ctx, key, next, s.ttl).Err(); err != nil {
		return 0, fmt.Errorf("reseed %s: %w", key, err)
	}
	log.Warn().Str("key", key).Int("reseeded_to", next).Msg("admission counter missing in redis, reseeded from database")
	return next, nil
}

func (s *RedisSequencer) Current(ctx context.Context, tx *gorm.DB, p Period) (int, error) {
	key := SequenceKey(p)
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return MaxIssued(ctx, tx, p)
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
