package ledger

import "sync"

// userLocks hands out one mutex per user id, created lazily on first use.
// Holding a user's lock serializes that user's mutate+recompute units so two
// concurrent writers cannot both recompute from a pre-mutation sum.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*sync.Mutex)}
}

func (u *userLocks) get(userID int64) *sync.Mutex {
	u.mu.Lock()
	defer u.mu.Unlock()

	l, ok := u.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		u.locks[userID] = l
	}
	return l
}
