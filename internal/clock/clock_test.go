package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFakeFiresInDueOrder(t *testing.T) {
	fc := NewFake()
	var got []string

	fc.AfterFunc(300*time.Millisecond, func() { got = append(got, "once") })
	tick := fc.Every(100*time.Millisecond, func() { got = append(got, "tick") })

	fc.Advance(350 * time.Millisecond)
	want := []string{"tick", "tick", "tick", "once"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if !tick.Stop() {
		t.Fatal("Stop on active ticker returned false")
	}
	if tick.Stop() {
		t.Fatal("second Stop returned true")
	}
	fc.Advance(time.Second)
	if len(got) != len(want) {
		t.Fatalf("stopped ticker fired: %v", got)
	}
	if fc.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", fc.Pending())
	}
}

func TestFakeCallbackMayScheduleAndStop(t *testing.T) {
	fc := NewFake()
	fired := 0
	var self Timer
	self = fc.Every(time.Second, func() {
		fired++
		if fired == 2 {
			self.Stop()
			fc.AfterFunc(time.Second, func() { fired += 10 })
		}
	})

	fc.Advance(5 * time.Second)
	if fired != 12 {
		t.Fatalf("fired = %d, want 12", fired)
	}
}

func TestRealEveryStops(t *testing.T) {
	var n atomic.Int32
	tk := New().Every(5*time.Millisecond, func() { n.Add(1) })
	time.Sleep(30 * time.Millisecond)
	tk.Stop()
	time.Sleep(10 * time.Millisecond)
	seen := n.Load()
	time.Sleep(30 * time.Millisecond)
	if n.Load() != seen {
		t.Fatalf("ticker kept firing after Stop: %d -> %d", seen, n.Load())
	}
	if seen == 0 {
		t.Fatal("ticker never fired")
	}
}
