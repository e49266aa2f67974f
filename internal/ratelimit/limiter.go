// Package ratelimit implements fixed-window request counting keyed by
// bucket and caller identity. Windows are persisted through a pluggable
// store so limits survive restarts when backed by the database.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// Result reports the outcome of a single hit against a bucket.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Window is one counting window for a storage key.
type Window struct {
	WindowEnd int64
	Count     int
}

// Store persists rate windows. Get returns ok=false when no window exists
// for the key.
type Store interface {
	Get(storageKey string) (Window, bool, error)
	Put(storageKey string, w Window) error
	Delete(storageKey string) error
}

// Limiter counts hits per bucket and key over fixed windows. A per-key
// mutex serializes the read-increment-write cycle so concurrent hits do
// not lose updates.
type Limiter struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(store Store) *Limiter {
	return &Limiter{
		store: store,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex for a storage key, creating it on first use.
func (l *Limiter) keyLock(storageKey string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[storageKey]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[storageKey] = lock
	}
	return lock
}

// StorageKey builds the persisted key for a bucket and caller key. The
// caller key is hashed so raw identifiers (IPs, token values) never land
// in storage.
func StorageKey(bucket, key string) string {
	sum := blake3.Sum256([]byte(key))
	return fmt.Sprintf("%s:%x", bucket, sum[:16])
}

// Hit records one request against the bucket for the given key and reports
// whether it is allowed under the limit. Storage failures fail open: auth
// denies on error, but the limiter is a load shed and must not lock
// everyone out when the database hiccups.
func (l *Limiter) Hit(bucket, key string, limit int, window time.Duration) Result {
	storageKey := StorageKey(bucket, key)

	lock := l.keyLock(storageKey)
	lock.Lock()
	defer lock.Unlock()

	now := l.now().Unix()

	w, ok, err := l.store.Get(storageKey)
	if err != nil {
		return Result{Allowed: true, Limit: limit, Remaining: limit}
	}
	if !ok || w.WindowEnd <= now {
		w = Window{WindowEnd: now + int64(window.Seconds()), Count: 0}
	}
	w.Count++

	if err := l.store.Put(storageKey, w); err != nil {
		return Result{Allowed: true, Limit: limit, Remaining: limit}
	}

	res := Result{
		Allowed: w.Count <= limit,
		Limit:   limit,
	}
	if remaining := limit - w.Count; remaining > 0 {
		res.Remaining = remaining
	}
	if !res.Allowed {
		retry := w.WindowEnd - now
		if retry < 1 {
			retry = 1
		}
		res.RetryAfter = time.Duration(retry) * time.Second
	}
	return res
}

// Reset clears the window for a bucket and key, used after a successful
// login so earlier failures stop counting against the caller.
func (l *Limiter) Reset(bucket, key string) {
	storageKey := StorageKey(bucket, key)
	lock := l.keyLock(storageKey)
	lock.Lock()
	defer lock.Unlock()
	_ = l.store.Delete(storageKey)
}
