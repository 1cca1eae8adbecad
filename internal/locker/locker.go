// Package locker serialises work on a single key, either inside one process
// or across instances through redis.
package locker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/a2sh3r/fundsledger/internal/logger"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrEmptyKey = errors.New("lock key cannot be empty")

// Locker runs fn while holding the lock for key. fn's error is returned as is.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type entry struct {
	sem  chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker with one single-slot semaphore per key,
// so a waiter gives up when its context ends. Entries are dropped once
// nobody holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

func (k *KeyedMutex) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return ctx.Err()
	}
	defer func() {
		<-e.sem
		k.release(key, e)
	}()

	return fn(ctx)
}

func (k *KeyedMutex) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// Options tunes the redis lock. The lock is extended every Expiry/3 while
// fn runs, so Expiry only bounds how long a crashed holder blocks others.
type Options struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 100 * time.Millisecond,
	}
}

// RedisLocker is a Locker backed by redsync, shared by every instance that
// talks to the same redis.
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
	opts   Options
}

func NewRedisLocker(client redis.UniversalClient, prefix string, opts Options) *RedisLocker {
	if prefix == "" {
		prefix = "fundsledger:lock:"
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: prefix,
		opts:   opts,
	}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	lockKey := l.prefix + key

	mutex := l.rs.NewMutex(lockKey,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		logger.Log.Error("failed to acquire lock", zap.String("lock_key", lockKey), zap.Error(err))
		return fmt.Errorf("failed to acquire lock %s: %w", lockKey, err)
	}
	defer func() {
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			logger.Log.Error("failed to release lock", zap.String("lock_key", lockKey), zap.Bool("unlock_ok", ok), zap.Error(err))
		}
	}()

	fnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(fnCtx, mutex, stop, cancel)
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	return fn(fnCtx)
}

// keepAlive extends mutex until stop is closed. When an extension fails the
// lock may already belong to someone else, so fn's context is canceled.
func (l *RedisLocker) keepAlive(ctx context.Context, mutex *redsync.Mutex, stop <-chan struct{}, cancel context.CancelFunc) {
	interval := l.opts.Expiry / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ok, err := mutex.ExtendContext(ctx); !ok || err != nil {
				logger.Log.Error("failed to extend lock, canceling holder",
					zap.String("lock_key", mutex.Name()), zap.Bool("extend_ok", ok), zap.Error(err))
				cancel()
				return
			}
		}
	}
}
