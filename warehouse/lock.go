package warehouse

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/pkg/errors"
)

// PartitionLocker serialises loads of the same partition.
// Lock blocks until name is held or ctx is done. The returned func releases it.
type PartitionLocker interface {
	Lock(ctx context.Context, name string) (unlock func(ctx context.Context) error, err error)
}

// LocalLocker is an in-process PartitionLocker.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) get(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[name] = ch
	}
	return ch
}

func (l *LocalLocker) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	ch := l.get(name)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}

// RedisLocker is a PartitionLocker shared by every process using the same Redis.
type RedisLocker struct {
	rs         *redsync.Redsync
	Expiry     time.Duration // lock TTL; must exceed the longest load
	Tries      int
	RetryDelay time.Duration
}

// NewRedisLocker returns a RedisLocker on client.
// An expiry <= 0 defaults to 30 minutes.
func NewRedisLocker(client *redis.Client, expiry time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}
	return &RedisLocker{
		rs:         redsync.New(goredis.NewPool(client)),
		Expiry:     expiry,
		Tries:      600,
		RetryDelay: 500 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	m := l.rs.NewMutex(name,
		redsync.WithExpiry(l.Expiry),
		redsync.WithTries(l.Tries),
		redsync.WithRetryDelay(l.RetryDelay),
	)
	if err := m.LockContext(ctx); err != nil {
		return nil, errors.Wrapf(err, "error acquiring lock %v", name)
	}
	return func(ctx context.Context) error {
		ok, err := m.UnlockContext(ctx)
		if err != nil {
			return errors.Wrapf(err, "error releasing lock %v", name)
		}
		if !ok {
			return errors.Errorf("lock %v expired before release", name)
		}
		return nil
	}, nil
}
