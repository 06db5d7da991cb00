package core

import (
	"sync"
	"sync/atomic"
)

// stateMachine coordinates worker states: how many are working, how many of
// those are searching for tasks, and which are asleep. The searching count
// is capped at half the workers to bound steal contention; the last-searcher
// handshake in setSleeping and cancelSearching closes the race between a
// producer enqueueing work and every searcher deciding to sleep.
type stateMachine struct {
	working    atomic.Int64
	searching  atomic.Int64
	numWorkers int

	mu       sync.Mutex
	sleepers []int
}

func newStateMachine(numWorkers int) *stateMachine {
	sm := &stateMachine{numWorkers: numWorkers}
	sm.working.Store(int64(numWorkers))
	return sm
}

// shouldWakeup reports whether a sleeping worker ought to be notified:
// nobody is searching and not everyone is working.
func (sm *stateMachine) shouldWakeup() bool {
	return sm.searching.Load() == 0 && sm.working.Load() < int64(sm.numWorkers)
}

// workerToNotify picks a sleeping worker to wake, transitioning it to
// working+searching. Double-checked around the lock so the common
// all-busy case stays lock-free.
func (sm *stateMachine) workerToNotify() (int, bool) {
	if !sm.shouldWakeup() {
		return 0, false
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.shouldWakeup() || len(sm.sleepers) == 0 {
		return 0, false
	}
	sm.working.Add(1)
	sm.searching.Add(1)
	id := sm.sleepers[len(sm.sleepers)-1]
	sm.sleepers = sm.sleepers[:len(sm.sleepers)-1]
	return id, true
}

// setSleeping moves a worker into the sleeper set. Returns whether it was
// the last searcher, in which case the caller must do one final check for
// pending work so a concurrent submit is not stranded.
func (sm *stateMachine) setSleeping(id int, wasSearching bool) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.working.Add(-1)
	last := false
	if wasSearching {
		if sm.searching.Add(-1) < 0 {
			panic("core: searching count underflow")
		}
		last = sm.searching.Load() == 0
	}
	sm.sleepers = append(sm.sleepers, id)
	return last
}

// setSearching grants the searching state only while the searchers,
// including the new one, stay at most half the workers.
func (sm *stateMachine) setSearching() bool {
	if 2*(sm.searching.Load()+1) > int64(sm.numWorkers) {
		return false
	}
	sm.searching.Add(1)
	return true
}

// cancelSearching drops the searching state; true means the caller was the
// last searcher and should wake another worker to keep the system moving.
func (sm *stateMachine) cancelSearching() bool {
	prev := sm.searching.Add(-1) + 1
	if prev <= 0 {
		panic("core: searching count underflow")
	}
	return prev == 1
}

// cancelSleeping removes a worker from the sleeper set; false means another
// producer already pulled it out (and took credit for the wake, including
// the counter updates). On self-removal only the working count is restored,
// keeping |sleepers| + working = numWorkers.
func (sm *stateMachine) cancelSleeping(id int) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for i, s := range sm.sleepers {
		if s == id {
			sm.sleepers = append(sm.sleepers[:i], sm.sleepers[i+1:]...)
			sm.working.Add(1)
			return true
		}
	}
	return false
}

// contains reports whether a worker is in the sleeper set.
func (sm *stateMachine) contains(id int) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, s := range sm.sleepers {
		if s == id {
			return true
		}
	}
	return false
}
