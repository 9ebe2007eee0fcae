// Package admission implements a per-user cooperative
// lock plus a cooldown, giving one submission in flight per user at a
// time and a quiet period between attempts.
package admission

import (
	"sync"
	"time"
)

// Gate tracks per-user busy/cooldown state behind a single mutex.
type Gate struct {
	cooldown time.Duration
	now      func() time.Time

	mu    sync.Mutex
	users map[int64]*userState
}

type userState struct {
	busy       bool
	lastAction time.Time
}

// New constructs a Gate with the given cooldown (default 2s if <= 0).
func New(cooldown time.Duration) *Gate {
	if cooldown <= 0 {
		cooldown = 2 * time.Second
	}
	return &Gate{
		cooldown: cooldown,
		now:      time.Now,
		users:    make(map[int64]*userState),
	}
}

// TryAcquire reports whether user may proceed: true iff the user is not
// already busy and the cooldown since their last action has elapsed.
// last_action is updated on both acceptance and rejection, so repeated
// attempts during cooldown continuously postpone the next success. On
// acceptance, the user is marked busy.
func (g *Gate) TryAcquire(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	st, ok := g.users[userID]
	if !ok {
		st = &userState{}
		g.users[userID] = st
	}

	acquired := !st.busy && now.Sub(st.lastAction) >= g.cooldown
	st.lastAction = now
	if acquired {
		st.busy = true
	}
	return acquired
}

// Release clears the user's busy flag and resets last_action to now, so
// the cooldown window for their next attempt starts from the release
// point.
func (g *Gate) Release(userID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.users[userID]
	if !ok {
		st = &userState{}
		g.users[userID] = st
	}
	st.busy = false
	st.lastAction = g.now()
}
