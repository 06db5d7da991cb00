package core

import "testing"

func TestGlobalQueueFIFO(t *testing.T) {
	var g GlobalQueue
	tasks := make([]*Task, 5)
	for i := range tasks {
		tasks[i] = NewTask(nil)
		if !g.Push(tasks[i]) {
			t.Fatalf("Push %d failed on open queue", i)
		}
	}
	if g.Len() != 5 {
		t.Fatalf("Len = %d, want 5", g.Len())
	}
	for i := range tasks {
		if got := g.TryPop(); got != tasks[i] {
			t.Fatalf("TryPop %d: got %p, want %p", i, got, tasks[i])
		}
	}
	if g.TryPop() != nil {
		t.Fatal("TryPop on empty queue should return nil")
	}
}

func TestGlobalQueueBatch(t *testing.T) {
	var g GlobalQueue
	batch := make([]*Task, 10)
	for i := range batch {
		batch[i] = NewTask(nil)
	}
	if !g.PushBatch(batch) {
		t.Fatal("PushBatch failed on open queue")
	}

	got := g.TryPopBatch(4)
	if len(got) != 4 {
		t.Fatalf("TryPopBatch(4) returned %d items", len(got))
	}
	for i := range got {
		if got[i] != batch[i] {
			t.Fatalf("batch item %d out of order", i)
		}
	}

	got = g.TryPopBatch(100)
	if len(got) != 6 {
		t.Fatalf("TryPopBatch(100) returned %d items, want 6", len(got))
	}
	if !g.Empty() {
		t.Fatal("queue should be empty")
	}
	if g.TryPopBatch(1) != nil {
		t.Fatal("TryPopBatch on empty queue should return nil")
	}
}

func TestGlobalQueueClose(t *testing.T) {
	var g GlobalQueue
	g.Push(NewTask(nil))
	g.Push(NewTask(nil))
	g.Close()
	if !g.Closed() {
		t.Fatal("Closed should report true after Close")
	}
	if g.Push(NewTask(nil)) {
		t.Fatal("Push after Close should fail")
	}
	if g.PushBatch([]*Task{NewTask(nil)}) {
		t.Fatal("PushBatch after Close should fail")
	}
	// Draining continues after close.
	if g.TryPop() == nil || g.TryPop() == nil {
		t.Fatal("drain after Close should yield remaining items")
	}
	if g.TryPop() != nil {
		t.Fatal("drained queue should be empty")
	}
}
