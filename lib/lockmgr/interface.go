package lockmgr

import "time"

// ILockManager defines the interface for a lock provider.
type ILockManager interface {
	// AcquireLock acquires the lock with the given name. A ttl of 0 never expires.
	// Returns whether the lock was acquired and the owner ID needed to release it.
	AcquireLock(name string, ttl time.Duration) (ok bool, ownerID string, err error)

	// ReleaseLock releases the lock with the given name.
	// Returns false if the lock is held by another owner.
	// The method will also return true if the lock did not exist.
	ReleaseLock(name string, ownerID string) (ok bool, err error)

	// Inspect returns the current holder of a lock. Expired locks are reported as absent.
	Inspect(name string) (lock Lock, ok bool, err error)
}

// Lock is a held lock as stored in the Locks collection.
// The expiry is stored as record metadata.
type Lock struct {
	Name      string
	Owner     string
	ExpiresAt time.Time `json:"-"` // zero if the lock never expires
}

func (l Lock) Identifier() string {
	return l.Name
}

// expired reports whether the lock is expired at t
func (l Lock) expired(t time.Time) bool {
	return !l.ExpiresAt.IsZero() && !t.Before(l.ExpiresAt)
}
