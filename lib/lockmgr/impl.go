package lockmgr

import (
	"fmt"
	"github.com/ValentinKolb/oKV/lib/codec"
	"github.com/ValentinKolb/oKV/lib/repo"
	"github.com/ValentinKolb/oKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

// Collection is the collection locks are stored in
const Collection = "Locks"

var log = logger.GetLogger("lockmgr")

// Schema is the storage schema of locks
var Schema = repo.Schema[Lock]{
	Collection: Collection,
	Codec:      codec.JSON[Lock](),
	Metadata: repo.WithMetadata(
		func(l Lock) (time.Time, bool) { return l.ExpiresAt, !l.ExpiresAt.IsZero() },
		func(l *Lock, t time.Time) { l.ExpiresAt = t },
		codec.JSON[time.Time](),
	),
}

type lockMgrImpl struct {
	repo *repo.Repository[Lock]
}

// NewLockManager creates a lock manager storing its locks on conn
func NewLockManager(conn store.IConnection) ILockManager {
	return &lockMgrImpl{
		repo: repo.New(conn, Schema),
	}
}

func (lm *lockMgrImpl) AcquireLock(name string, ttl time.Duration) (bool, string, error) {
	if ttl < 0 {
		return false, "", fmt.Errorf("negative ttl %s", ttl)
	}

	lock := Lock{Name: name, Owner: generateOwnerID()}
	if ttl > 0 {
		lock.ExpiresAt = now().Add(ttl)
	}

	// check and set in one write transaction, the engine serializes writers
	acquired := false
	err := lm.repo.Connection().Write(func(tx store.WriteTransaction) error {
		current, ok, err := repo.ReadByKeyIn(tx, Schema, name)
		if err != nil {
			return err
		}
		if ok && !current.expired(now()) {
			return nil
		}
		if ok {
			log.Infof("lock %q of owner %s expired, taking over", name, current.Owner)
		}
		acquired = true
		return repo.WriteIn(tx, Schema, lock)
	})
	if err != nil || !acquired {
		return false, "", err
	}
	return true, lock.Owner, nil
}

func (lm *lockMgrImpl) ReleaseLock(name string, ownerID string) (bool, error) {
	released := false
	err := lm.repo.Connection().Write(func(tx store.WriteTransaction) error {
		current, ok, err := repo.ReadByKeyIn(tx, Schema, name)
		if err != nil {
			return err
		}
		if !ok {
			released = true
			return nil
		}

		// Check if the lock is owned by the caller
		if current.Owner != ownerID {
			return nil
		}
		released = true
		return repo.RemoveByKeysIn(tx, Schema, name)
	})
	return released && err == nil, err
}

func (lm *lockMgrImpl) Inspect(name string) (Lock, bool, error) {
	lock, ok, err := lm.repo.ReadByKey(name)
	if err != nil || !ok || lock.expired(now()) {
		return Lock{}, false, err
	}
	return lock, true, nil
}
