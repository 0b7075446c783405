package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ErrHeld means another sweep owns the lock.
var ErrHeld = errors.New("sweep already in progress")

// Release gives a held lock back. It is safe to call once.
type Release func()

// Locker guards a sweep against overlapping runs.
type Locker interface {
	Acquire(ctx context.Context) (Release, error)
}

// LocalLocker allows one sweep at a time inside this process.
type LocalLocker struct {
	mu sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

func (l *LocalLocker) Acquire(_ context.Context) (Release, error) {
	if !l.mu.TryLock() {
		return nil, ErrHeld
	}
	return l.mu.Unlock, nil
}

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares the sweep lock between processes through a SET NX key with a TTL.
type RedisLocker struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRedisLocker(client redis.Cmdable, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context) (Release, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "could not acquire lock %s", l.key)
	}
	if !ok {
		return nil, ErrHeld
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			log.Errorf("❌ Failed to release lock %s: %v", l.key, err)
		}
	}, nil
}

// Chain acquires every locker in order and releases them in reverse.
type Chain []Locker

func (c Chain) Acquire(ctx context.Context) (Release, error) {
	releases := make([]Release, 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, l := range c {
		release, err := l.Acquire(ctx)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}

	return releaseAll, nil
}
