package stripe

import (
	"sync"

	"github.com/rentalhq/backoffice/payments"
)

// LockManager hands out one mutex per booking or job so that every change
// to the payments of one owner is serialized, while different owners are
// processed in parallel.
type LockManager struct {
	locks sync.Map // map[string]*sync.Mutex
}

// NewLockManager creates a new lock manager
func NewLockManager() *LockManager {
	return &LockManager{}
}

func ownerKey(t payments.OwnerType, reference string) string {
	return string(t) + ":" + reference
}

// LockOwner acquires the lock of the given owner. The returned function
// releases it.
func (lm *LockManager) LockOwner(t payments.OwnerType, reference string) func() {
	lockInterface, _ := lm.locks.LoadOrStore(ownerKey(t, reference), &sync.Mutex{})
	lock, ok := lockInterface.(*sync.Mutex)
	if !ok {
		panic("unexpected type in lock manager")
	}
	lock.Lock()
	return lock.Unlock
}
