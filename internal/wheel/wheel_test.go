package wheel

import (
	"testing"
	"time"
)

func TestAddPollRoundTrip(t *testing.T) {
	w := New()
	payloads := map[int]bool{}
	for i := 0; i < 10; i++ {
		p := i
		if _, err := w.Add(time.Now().Add(time.Duration(i+1)*5*time.Millisecond), p); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
		payloads[p] = false
	}
	if w.Len() != 10 {
		t.Fatalf("Len = %d, want 10", w.Len())
	}

	deadline := time.Now().Add(time.Second)
	fired := 0
	for fired < 10 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
		fired += w.Poll(func(n *Node) {
			p := n.Payload.(int)
			if payloads[p] {
				t.Fatalf("payload %d fired twice", p)
			}
			payloads[p] = true
		})
	}
	if fired != 10 {
		t.Fatalf("fired %d nodes, want 10", fired)
	}
	for p, ok := range payloads {
		if !ok {
			t.Errorf("payload %d never fired", p)
		}
	}
	if !w.Empty() {
		t.Errorf("wheel not empty after drain: %d left", w.Len())
	}
}

func TestFiringOrderMonotone(t *testing.T) {
	w := New()
	for i := 0; i < 8; i++ {
		if _, err := w.Add(time.Now().Add(time.Duration(i+1)*4*time.Millisecond), i); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	var order []int
	deadline := time.Now().Add(time.Second)
	for len(order) < 8 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
		w.Poll(func(n *Node) {
			order = append(order, n.Payload.(int))
		})
	}
	for i := 1; i < len(order); i++ {
		if order[i] < order[i-1] {
			t.Fatalf("out of order firing: %v", order)
		}
	}
}

func TestRemove(t *testing.T) {
	w := New()
	keep, err := w.Add(time.Now().Add(10*time.Millisecond), "keep")
	if err != nil {
		t.Fatalf("Add keep: %v", err)
	}
	drop, err := w.Add(time.Now().Add(20*time.Millisecond), "drop")
	if err != nil {
		t.Fatalf("Add drop: %v", err)
	}
	w.Remove(drop)
	if w.Len() != 1 {
		t.Fatalf("Len = %d after Remove, want 1", w.Len())
	}

	var fired []string
	deadline := time.Now().Add(time.Second)
	for len(fired) == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
		w.Poll(func(n *Node) { fired = append(fired, n.Payload.(string)) })
	}
	if len(fired) != 1 || fired[0] != "keep" {
		t.Fatalf("fired = %v, want [keep]", fired)
	}

	// Removing an already fired node is a no-op.
	w.Remove(keep)
	w.Remove(nil)
}

func TestDeadlineTooFar(t *testing.T) {
	w := New()
	_, err := w.Add(time.Now().Add(time.Duration(MaxSpanMS)*time.Millisecond+time.Hour), nil)
	if err != ErrDeadlineTooFar {
		t.Fatalf("err = %v, want ErrDeadlineTooFar", err)
	}
	if w.Len() != 0 {
		t.Fatalf("Len = %d after failed Add, want 0", w.Len())
	}
}

func TestLevelUpAndDown(t *testing.T) {
	w := New()
	// A far deadline forces root promotion past level 0.
	far, err := w.Add(time.Now().Add(10*time.Second), "far")
	if err != nil {
		t.Fatalf("Add far: %v", err)
	}
	if w.root == nil || w.root.lvl < 1 {
		t.Fatalf("root level = %v, want >= 1 after far add", w.root)
	}
	w.Remove(far)
	if w.Len() != 0 {
		t.Fatalf("Len = %d, want 0", w.Len())
	}

	// A near deadline after the far one dropped should work at low level.
	if _, err := w.Add(time.Now().Add(5*time.Millisecond), "near"); err != nil {
		t.Fatalf("Add near: %v", err)
	}
	fired := 0
	deadline := time.Now().Add(time.Second)
	for fired == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
		fired += w.Poll(func(*Node) {})
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestNextDelayMS(t *testing.T) {
	w := New()
	if _, ok := w.NextDelayMS(); ok {
		t.Fatal("NextDelayMS on empty wheel should report no deadline")
	}
	if _, err := w.Add(time.Now().Add(50*time.Millisecond), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ms, ok := w.NextDelayMS()
	if !ok {
		t.Fatal("NextDelayMS should report a deadline")
	}
	if ms > 55 {
		t.Fatalf("NextDelayMS = %d, want <= 55", ms)
	}
}
