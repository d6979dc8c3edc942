package core

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScheduler_AcquireRelease(t *testing.T) {
	s := NewScheduler(2)
	defer s.Stop()

	s.Register("coder-1", "coder")

	if err := s.Acquire(context.Background(), "coder-1"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	state, ok := s.State("coder-1")
	if !ok || state.Phase != CallExecuting {
		t.Errorf("Expected executing phase, got %+v", state)
	}

	s.Release("coder-1")

	state, _ = s.State("coder-1")
	if state.Phase != CallProcessing || state.CallCount != 1 {
		t.Errorf("Expected processing phase with 1 call, got %+v", state)
	}

	m := s.Metrics()
	if m.TotalCalls != 1 || m.ActiveSlots != 0 {
		t.Errorf("Unexpected metrics: %+v", m)
	}
}

func TestScheduler_UnregisteredAgent(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop()

	err := s.Acquire(context.Background(), "ghost")
	if err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Errorf("Expected registration error, got: %v", err)
	}
}

func TestScheduler_BlocksAtCapacity(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop()

	s.Register("a", "coder")
	s.Register("b", "writer")

	if err := s.Acquire(context.Background(), "a"); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := s.Acquire(context.Background(), "b"); err == nil {
			s.Release("b")
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("Second acquire should block while slot is held")
	case <-time.After(50 * time.Millisecond):
	}

	s.Release("a")

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Second acquire never unblocked after release")
	}
}

func TestScheduler_CancelledWhileWaiting(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop()

	s.Register("a", "coder")
	s.Register("b", "writer")

	if err := s.Acquire(context.Background(), "a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer s.Release("a")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Acquire(ctx, "b")
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Expected cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after cancel")
	}

	state, _ := s.State("b")
	if state.Phase != CallFailed {
		t.Errorf("Expected failed phase, got %s", state.Phase)
	}
}

func TestScheduler_StopUnblocksWaiters(t *testing.T) {
	s := NewScheduler(1)

	s.Register("a", "coder")
	s.Register("b", "writer")

	if err := s.Acquire(context.Background(), "a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Acquire(context.Background(), "b")
	}()

	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "scheduler stopped") {
			t.Errorf("Expected stop error, got: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after Stop")
	}

	s.Release("a")
}

func TestScheduler_ConcurrentCallsBounded(t *testing.T) {
	const slots = 3
	s := NewScheduler(slots)
	defer s.Stop()

	var mu sync.Mutex
	inFlight := 0
	peak := 0

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		id := string(rune('a' + i))
		s.Register(id, "coder")
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := s.Acquire(context.Background(), id); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			s.Release(id)
		}(id)
	}
	wg.Wait()

	if peak > slots {
		t.Errorf("Concurrency exceeded slot bound: peak=%d slots=%d", peak, slots)
	}
	if m := s.Metrics(); m.TotalCalls != 12 {
		t.Errorf("Expected 12 total calls, got %d", m.TotalCalls)
	}
}

func TestScheduler_ClampsSlotCount(t *testing.T) {
	s := NewScheduler(0)
	defer s.Stop()

	if s.Metrics().MaxSlots != 1 {
		t.Errorf("Expected clamp to 1 slot, got %d", s.Metrics().MaxSlots)
	}
}

// stubClient counts calls for ScheduledClient tests.
type stubClient struct {
	mu    sync.Mutex
	calls int
}

func (c *stubClient) Name() string  { return "stub" }
func (c *stubClient) Model() string { return "stub-1" }

func (c *stubClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *stubClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return "ok", nil
}

func TestScheduledClient_WrapsCalls(t *testing.T) {
	s := NewScheduler(2)
	defer s.Stop()

	stub := &stubClient{}
	client := s.Client("writer-3", "writer", stub)

	if client.Name() != "stub" || client.Model() != "stub-1" {
		t.Errorf("Expected delegation, got %s/%s", client.Name(), client.Model())
	}

	resp, err := client.Complete(context.Background(), "hello")
	if err != nil || resp != "ok" {
		t.Fatalf("Complete failed: %v %q", err, resp)
	}
	if _, err := client.CompleteWithSystem(context.Background(), "sys", "user"); err != nil {
		t.Fatalf("CompleteWithSystem failed: %v", err)
	}

	if stub.calls != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", stub.calls)
	}

	state, ok := s.State("writer-3")
	if !ok || state.CallCount != 2 {
		t.Errorf("Expected 2 recorded calls, got %+v", state)
	}
	if m := s.Metrics(); m.ActiveSlots != 0 {
		t.Errorf("Slots leaked: %+v", m)
	}
}

func TestSchedulerMetrics_String(t *testing.T) {
	s := NewScheduler(4)
	defer s.Stop()

	out := s.Metrics().String()
	if !strings.Contains(out, "slots=0/4") {
		t.Errorf("Unexpected metrics string: %s", out)
	}
}
