package lock

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/imagevault/imagevault/store"
)

const (
	// DefaultPollInterval is how often a waiter re-reads a held lock.
	DefaultPollInterval = 200 * time.Millisecond
	// DefaultWaitTimeout bounds both the waiter's patience and the
	// lease a claimant writes.
	DefaultWaitTimeout = 10 * DefaultPollInterval
)

var (
	// ErrNoLock means no lock is held: no build is in progress, and
	// the caller should claim the key and build.
	ErrNoLock = errors.New("no lock held")
	// ErrExpired means the holder's lease has lapsed; the holder is
	// presumed dead and the caller should reclaim.
	ErrExpired = errors.New("lock expired")
	// ErrTimeout means the lock was still held when the waiter's
	// deadline passed.
	ErrTimeout = errors.New("timed out waiting for lock")
)

// Lock is a best-effort distributed mutex built entirely on the
// store's atomic insert-if-absent. A lease is a row whose value is
// its absolute expiry in milliseconds since epoch; the store enforces
// nothing, readers judge expiry themselves. Good enough for cache
// warming, where a duplicate build wastes work but corrupts nothing.
type Lock struct {
	store        store.Client
	pollInterval time.Duration
	waitTimeout  time.Duration
	now          func() time.Time
}

// Config carries the recognized tuning options; zero values take the
// defaults.
type Config struct {
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

func New(s store.Client, config Config) *Lock {
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.WaitTimeout == 0 {
		config.WaitTimeout = 10 * config.PollInterval
	}
	return &Lock{
		store:        s,
		pollInterval: config.PollInterval,
		waitTimeout:  config.WaitTimeout,
		now:          time.Now,
	}
}

// Acquire claims the right to build by inserting a fresh lease at
// key. It reports whether this caller won the insert; a loser must
// not proceed to build.
//
// A dead holder's row still physically exists after its lease
// expires, since the store has no TTLs. So when the insert finds an
// existing row, Acquire judges it: an expired (or unparseable) lease
// is deleted and the insert contended again. Two reclaimers both
// funnel through the SetNX, so exactly one wins.
func (l *Lock) Acquire(key string) (bool, error) {
	value := []byte(strconv.FormatInt(millis(l.now().Add(l.waitTimeout)), 10))
	inserted, err := l.store.SetNX(key, value)
	if err != nil || inserted {
		return inserted, err
	}

	current, err := l.store.Get(key)
	if err == store.ErrNotFound {
		// The holder released between our insert and our read.
		return l.store.SetNX(key, value)
	}
	if err != nil {
		return false, err
	}
	if !l.expired(current) {
		return false, nil
	}
	if err := l.store.Delete(key); err != nil {
		return false, err
	}
	return l.store.SetNX(key, value)
}

// Release drops the lock. Missing keys are fine: releasing an
// already-released lock is a no-op.
func (l *Lock) Release(key string) error {
	return l.store.Delete(key)
}

// Wait is the acquire-or-wait primitive.
//
// If no lock is held it returns ErrNoLock immediately; if the held
// lease has already expired it returns ErrExpired immediately. Both
// tell the caller to claim and build. Otherwise it polls the key at
// the poll interval until the key disappears — returning nil, meaning
// the holder finished and the caller should re-check the version
// cache — or the wait deadline (captured once at loop start) passes,
// returning ErrTimeout. Read errors and ctx cancellation end the wait
// too; the ticker is stopped on every exit path.
func (l *Lock) Wait(ctx context.Context, key string) error {
	value, err := l.store.Get(key)
	if err == store.ErrNotFound {
		return ErrNoLock
	}
	if err != nil {
		return err
	}
	if l.expired(value) {
		return ErrExpired
	}

	deadline := l.now().Add(l.waitTimeout)
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, err := l.store.Get(key)
			switch {
			case err == store.ErrNotFound:
				return nil
			case err != nil:
				return err
			}
			if l.now().After(deadline) {
				return ErrTimeout
			}
		}
	}
}

// expired judges a lease value. A value we can't parse is treated as
// expired, so a corrupt row can be reclaimed rather than blocking the
// key forever.
func (l *Lock) expired(value []byte) bool {
	expiry, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return true
	}
	return millis(l.now()) >= expiry
}

func millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
