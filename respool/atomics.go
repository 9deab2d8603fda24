package respool

import (
	"sync/atomic"
	"time"
)

// atomic64 stores a time.Time or a plain counter as unix nanoseconds /
// an int64, letting Handle fields stay lock-free without a mutex per field.
type atomic64 struct{ v atomic.Int64 }

func (a *atomic64) store(t time.Time) { a.v.Store(t.UnixNano()) }

func (a *atomic64) load() time.Time {
	n := a.v.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (a *atomic64) addInt(delta int64) { a.v.Add(delta) }
func (a *atomic64) loadInt() int64     { return a.v.Load() }

type atomicBool struct{ v atomic.Bool }

func (a *atomicBool) load() bool { return a.v.Load() }
func (a *atomicBool) compareAndSwap(old, newVal bool) bool {
	return a.v.CompareAndSwap(old, newVal)
}

// atomicTaken holds an optional TakenInfo: present iff the owning Handle is
// currently issued.
type atomicTaken struct{ p atomic.Pointer[TakenInfo] }

func (a *atomicTaken) store(t TakenInfo) { a.p.Store(&t) }
func (a *atomicTaken) clear()            { a.p.Store(nil) }

func (a *atomicTaken) load() (TakenInfo, bool) {
	p := a.p.Load()
	if p == nil {
		return TakenInfo{}, false
	}
	return *p, true
}
