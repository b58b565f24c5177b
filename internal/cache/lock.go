package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("cache: lock held")

// Lock is a TTL-bounded mutual exclusion token held in a Store.
type Lock struct {
	store Store
	key   string
	token []byte
}

// AcquireLock claims key for ttl. It returns ErrLockHeld when the key is taken.
// The TTL bounds how long a crashed holder can block others.
func AcquireLock(ctx context.Context, store Store, key string, ttl time.Duration) (*Lock, error) {
	if store == nil {
		return nil, errors.New("cache: store is nil")
	}
	token := []byte(uuid.NewString())
	ok, err := store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("cache: acquire lock %q: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{store: store, key: key, token: token}, nil
}

// Release frees the lock if it is still held by this token.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if _, err := l.store.CompareAndDelete(ctx, l.key, l.token); err != nil {
		return fmt.Errorf("cache: release lock %q: %w", l.key, err)
	}
	return nil
}
