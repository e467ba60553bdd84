package eventhub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aplgui/internal/events"
)

type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recorder) Broadcast(ev events.Event) {
	r.mu.Lock()
	r.evs = append(r.evs, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.evs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_OrderAcrossBroadcasters(t *testing.T) {
	h := New(0, nil)
	a, b := &recorder{}, &recorder{}
	h.Attach(a)
	h.Attach(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	for i := 0; i < 50; i++ {
		h.Publish(events.TaskStarted{TaskID: i})
	}
	waitFor(t, func() bool { return len(b.snapshot()) == 50 })

	for _, r := range []*recorder{a, b} {
		for i, ev := range r.snapshot() {
			if ev.(events.TaskStarted).TaskID != i {
				t.Fatalf("event %d has task %d", i, ev.(events.TaskStarted).TaskID)
			}
		}
	}
}

func TestHub_BatchesStayContiguous(t *testing.T) {
	h := New(4, nil)
	r := &recorder{}
	h.Attach(r)
	go h.Run(context.Background())
	defer h.Close()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				h.Publish(
					events.TaskUpdate{},
					events.TaskStarted{TaskID: p},
					events.StateUpdate{},
				)
			}
		}(p)
	}
	wg.Wait()
	waitFor(t, func() bool { return len(r.snapshot()) == 300 })

	evs := r.snapshot()
	for i := 0; i < len(evs); i += 3 {
		if evs[i].Type() != events.TypeTaskUpdate ||
			evs[i+1].Type() != events.TypeTaskStarted ||
			evs[i+2].Type() != events.TypeStateUpdate {
			t.Fatalf("batch at %d interleaved: %s %s %s", i, evs[i].Type(), evs[i+1].Type(), evs[i+2].Type())
		}
	}
}

func TestHub_PublishAfterCloseDoesNotBlock(t *testing.T) {
	h := New(1, nil)
	h.Close()
	h.Close()

	done := make(chan struct{})
	go func() {
		h.Publish(events.StateCleared{})
		h.Publish(events.StateCleared{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after Close")
	}
}

func TestHub_EmitHelpers(t *testing.T) {
	h := New(0, nil)
	r := &recorder{}
	h.Attach(BroadcasterFunc(r.Broadcast))
	go h.Run(context.Background())
	defer h.Close()

	h.EmitAplStarted("goal", "sid")
	h.EmitAplOutput(events.Stdout, "hi")
	h.EmitAplStopped(events.StopCompleted, "done")
	h.EmitAplError(errors.New("boom"), true)
	h.EmitWatcherError("state", errors.New("gone"))

	waitFor(t, func() bool { return len(r.snapshot()) == 5 })
	evs := r.snapshot()
	want := []string{events.TypeAplStarted, events.TypeAplOutput, events.TypeAplStopped, events.TypeAplError, events.TypeError}
	for i, typ := range want {
		if evs[i].Type() != typ {
			t.Errorf("event %d = %s, want %s", i, evs[i].Type(), typ)
		}
	}
	if e := evs[4].(events.Error); e.Code != events.CodeWatcherError {
		t.Errorf("watcher error code = %s", e.Code)
	}
}
