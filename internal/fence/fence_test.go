package fence

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTrackerSerials(t *testing.T) {
	tr := NewTracker()
	if s := tr.Begin(); s != 1 {
		t.Fatalf("first serial = %d, want 1", s)
	}
	tr.Begin()
	if tr.Last() != 2 {
		t.Errorf("Last = %d, want 2", tr.Last())
	}
	tr.Complete(2)
	tr.Complete(1)
	if tr.Completed() != 2 {
		t.Errorf("Completed = %d, want 2 (never moves backwards)", tr.Completed())
	}
}

func TestTrackerWaitSignalled(t *testing.T) {
	tr := NewTracker()
	s := tr.Begin()
	go func() {
		time.Sleep(5 * time.Millisecond)
		tr.Complete(s)
	}()
	if err := tr.Wait(context.Background(), s, time.Second, nil); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestTrackerWaitPolls(t *testing.T) {
	tr := NewTracker()
	s := tr.Begin()
	polls := 0
	poll := func() {
		polls++
		if polls == 3 {
			tr.Complete(s)
		}
	}
	if err := tr.Wait(context.Background(), s, time.Second, poll); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if polls < 3 {
		t.Errorf("polls = %d, want >= 3", polls)
	}
}

func TestTrackerWaitTimeout(t *testing.T) {
	tr := NewTracker()
	s := tr.Begin()
	err := tr.Wait(context.Background(), s, 10*time.Millisecond, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Wait err = %v, want ErrTimeout", err)
	}
}

func TestTrackerWaitContext(t *testing.T) {
	tr := NewTracker()
	s := tr.Begin()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Wait(ctx, s, 0, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait err = %v, want context.Canceled", err)
	}
}

func TestRingSlots(t *testing.T) {
	r := NewRing(2, func(i int) *[]byte { b := make([]byte, 0, 8); return &b })
	if r.Depth() != 2 {
		t.Fatalf("Depth = %d", r.Depth())
	}
	if p := r.Pending(1); p != 0 {
		t.Errorf("Pending(1) = %d, want 0", p)
	}
	a := r.Claim(1)
	r.Claim(2)
	if p := r.Pending(3); p != 1 {
		t.Errorf("Pending(3) = %d, want 1", p)
	}
	if r.Claim(3) != a {
		t.Error("serial 3 should reuse the slot of serial 1")
	}
}

func TestClampDepth(t *testing.T) {
	for in, want := range map[int]int{0: 2, -4: 1, 1: 1, 3: 3, 9: 3} {
		if got := ClampDepth(in); got != want {
			t.Errorf("ClampDepth(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestRetirementDrain(t *testing.T) {
	var r Retirement[string]
	r.Push(3, "a")
	r.Push(1, "b")
	r.Push(5, "c")
	r.Push(3, "d")
	if got := r.Drain(0); len(got) != 0 {
		t.Fatalf("Drain(0) = %v, want nothing", got)
	}
	got := r.Drain(3)
	want := []string{"a", "b", "d"}
	if len(got) != len(want) {
		t.Fatalf("Drain(3) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Drain(3)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	if got := r.Drain(10); len(got) != 1 || got[0] != "c" {
		t.Errorf("Drain(10) = %v, want [c]", got)
	}
}
