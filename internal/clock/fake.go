package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Callbacks run synchronously on the
// goroutine calling Advance, in due-time order (registration order on ties).
type Fake struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	events []*fakeTimer
}

func NewFake() *Fake {
	return &Fake{}
}

type fakeTimer struct {
	fc     *Fake
	at     time.Duration
	period time.Duration
	seq    uint64
	f      func()
	active bool
}

func (fc *Fake) AfterFunc(d time.Duration, f func()) Timer {
	return fc.schedule(d, 0, f)
}

func (fc *Fake) Every(d time.Duration, f func()) Timer {
	return fc.schedule(d, d, f)
}

func (fc *Fake) schedule(d, period time.Duration, f func()) *fakeTimer {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.seq++
	t := &fakeTimer{fc: fc, at: fc.now + d, period: period, seq: fc.seq, f: f, active: true}
	fc.events = append(fc.events, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.fc.mu.Lock()
	defer t.fc.mu.Unlock()
	was := t.active
	t.active = false
	t.fc.prune()
	return was
}

// Elapsed returns the total advanced time.
func (fc *Fake) Elapsed() time.Duration {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

// Pending returns the number of active timers.
func (fc *Fake) Pending() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	n := 0
	for _, t := range fc.events {
		if t.active {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every callback that becomes due.
func (fc *Fake) Advance(d time.Duration) {
	fc.mu.Lock()
	target := fc.now + d
	for {
		next := fc.nextDue(target)
		if next == nil {
			break
		}
		fc.now = next.at
		if next.period > 0 {
			next.at += next.period
		} else {
			next.active = false
		}
		fc.prune()
		f := next.f
		fc.mu.Unlock()
		f()
		fc.mu.Lock()
	}
	fc.now = target
	fc.mu.Unlock()
}

func (fc *Fake) nextDue(target time.Duration) *fakeTimer {
	sort.SliceStable(fc.events, func(i, j int) bool {
		if fc.events[i].at != fc.events[j].at {
			return fc.events[i].at < fc.events[j].at
		}
		return fc.events[i].seq < fc.events[j].seq
	})
	for _, t := range fc.events {
		if t.active && t.at <= target {
			return t
		}
	}
	return nil
}

func (fc *Fake) prune() {
	kept := fc.events[:0]
	for _, t := range fc.events {
		if t.active {
			kept = append(kept, t)
		}
	}
	fc.events = kept
}
