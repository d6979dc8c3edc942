// Package core provides the model call scheduler. Many agents can run at
// once, but the free provider tiers tolerate only a handful of in-flight
// requests, so agents acquire a slot per call and yield it between calls.
package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"symphony/internal/logging"
	"symphony/internal/types"
)

// AgentCallPhase represents where an agent is in its call lifecycle.
type AgentCallPhase int

const (
	// CallIdle - agent is registered but not calling
	CallIdle AgentCallPhase = iota
	// CallWaitingForSlot - agent is queued waiting for a slot
	CallWaitingForSlot
	// CallExecuting - agent is actively making a model call
	CallExecuting
	// CallProcessing - agent is processing a response (no slot held)
	CallProcessing
	// CallFailed - agent's last acquisition failed
	CallFailed
)

func (p AgentCallPhase) String() string {
	switch p {
	case CallIdle:
		return "idle"
	case CallWaitingForSlot:
		return "waiting_for_slot"
	case CallExecuting:
		return "executing"
	case CallProcessing:
		return "processing"
	case CallFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

// AgentCallState tracks one agent's call activity.
type AgentCallState struct {
	AgentID       string
	AgentType     string
	Phase         AgentCallPhase
	CallCount     int
	TotalWaitTime time.Duration
	StartTime     time.Time
	LastCall      time.Time
	Err           error
}

// Scheduler manages model call slots with cooperative yielding. Slots are
// a buffered channel semaphore; agents block in Acquire until one frees.
type Scheduler struct {
	maxSlots int
	slots    chan struct{}

	mu     sync.RWMutex
	agents map[string]*AgentCallState

	totalCalls    int64
	totalWaitTime int64 // nanoseconds
	waiting       int32
	executing     int32

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler with the given slot count. Counts below
// one are clamped to one so the pipeline can always make progress.
func NewScheduler(maxConcurrent int) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		maxSlots: maxConcurrent,
		slots:    make(chan struct{}, maxConcurrent),
		agents:   make(map[string]*AgentCallState),
		stopCh:   make(chan struct{}),
	}
}

// Register creates call tracking for an agent.
func (s *Scheduler) Register(agentID, agentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agentID]; ok {
		return
	}
	s.agents[agentID] = &AgentCallState{
		AgentID:   agentID,
		AgentType: agentType,
		Phase:     CallIdle,
		StartTime: time.Now(),
	}
	logging.DispatchDebug("Scheduler: registered agent %s (type=%s)", agentID, agentType)
}

// Unregister removes call tracking for a finished agent.
func (s *Scheduler) Unregister(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.agents[agentID]; ok {
		delete(s.agents, agentID)
		logging.DispatchDebug("Scheduler: unregistered agent %s (calls=%d, total_wait=%v)",
			agentID, state.CallCount, state.TotalWaitTime)
	}
}

// Acquire claims a model call slot. Blocks until a slot frees, the context
// is cancelled, or the scheduler stops.
func (s *Scheduler) Acquire(ctx context.Context, agentID string) error {
	s.mu.Lock()
	state, ok := s.agents[agentID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("agent %s not registered with scheduler", agentID)
	}
	state.Phase = CallWaitingForSlot
	s.mu.Unlock()

	waitStart := time.Now()
	atomic.AddInt32(&s.waiting, 1)
	defer atomic.AddInt32(&s.waiting, -1)

	if len(s.slots) >= s.maxSlots {
		logging.Dispatch("Scheduler: agent %s waiting for slot (active=%d/%d, waiting=%d)",
			agentID, len(s.slots), s.maxSlots, atomic.LoadInt32(&s.waiting))
	}

	select {
	case s.slots <- struct{}{}:
		waitDuration := time.Since(waitStart)

		s.mu.Lock()
		state.Phase = CallExecuting
		state.TotalWaitTime += waitDuration
		state.LastCall = time.Now()
		s.mu.Unlock()

		atomic.AddInt64(&s.totalWaitTime, int64(waitDuration))
		atomic.AddInt32(&s.executing, 1)

		if waitDuration > 100*time.Millisecond {
			logging.Dispatch("Scheduler: agent %s acquired slot after %v", agentID, waitDuration)
		}
		return nil

	case <-ctx.Done():
		s.mu.Lock()
		state.Phase = CallFailed
		state.Err = ctx.Err()
		s.mu.Unlock()

		logging.DispatchDebug("Scheduler: agent %s cancelled while waiting for slot (waited %v)",
			agentID, time.Since(waitStart))
		return ctx.Err()

	case <-s.stopCh:
		return fmt.Errorf("scheduler stopped")
	}
}

// Release returns a slot after a call completes.
func (s *Scheduler) Release(agentID string) {
	select {
	case <-s.slots:
	default:
		logging.Get(logging.CategoryDispatch).Error("Scheduler: agent %s released slot it didn't hold", agentID)
		return
	}

	atomic.AddInt32(&s.executing, -1)
	atomic.AddInt64(&s.totalCalls, 1)

	s.mu.Lock()
	if state, ok := s.agents[agentID]; ok {
		state.Phase = CallProcessing
		state.CallCount++
	}
	s.mu.Unlock()
}

// State returns a copy of an agent's call state.
func (s *Scheduler) State(agentID string) (AgentCallState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.agents[agentID]
	if !ok {
		return AgentCallState{}, false
	}
	return *state, true
}

// Metrics returns a snapshot of scheduler activity.
func (s *Scheduler) Metrics() SchedulerMetrics {
	s.mu.RLock()
	registered := len(s.agents)
	phases := make(map[AgentCallPhase]int)
	for _, state := range s.agents {
		phases[state.Phase]++
	}
	s.mu.RUnlock()

	return SchedulerMetrics{
		MaxSlots:          s.maxSlots,
		ActiveSlots:       int(atomic.LoadInt32(&s.executing)),
		WaitingForSlot:    int(atomic.LoadInt32(&s.waiting)),
		TotalCalls:        atomic.LoadInt64(&s.totalCalls),
		TotalWaitTimeNs:   atomic.LoadInt64(&s.totalWaitTime),
		RegisteredAgents:  registered,
		PhaseDistribution: phases,
	}
}

// SchedulerMetrics provides observability into scheduler state.
type SchedulerMetrics struct {
	MaxSlots          int
	ActiveSlots       int
	WaitingForSlot    int
	TotalCalls        int64
	TotalWaitTimeNs   int64
	RegisteredAgents  int
	PhaseDistribution map[AgentCallPhase]int
}

// String returns a human-readable summary.
func (m SchedulerMetrics) String() string {
	avgWait := time.Duration(0)
	if m.TotalCalls > 0 {
		avgWait = time.Duration(m.TotalWaitTimeNs / m.TotalCalls)
	}
	return fmt.Sprintf("slots=%d/%d, waiting=%d, calls=%d, avg_wait=%v, agents=%d",
		m.ActiveSlots, m.MaxSlots, m.WaitingForSlot, m.TotalCalls, avgWait, m.RegisteredAgents)
}

// Stop shuts down the scheduler. Waiters unblock with an error.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

var (
	globalScheduler     *Scheduler
	globalSchedulerOnce sync.Once
)

// DefaultMaxConcurrentCalls caps in-flight provider calls when no config
// value is supplied. Matches what the free tiers tolerate.
const DefaultMaxConcurrentCalls = 5

// GetScheduler returns the process-wide scheduler, creating it on first
// use. The server path shares one scheduler across runs; tests construct
// their own with NewScheduler.
func GetScheduler() *Scheduler {
	globalSchedulerOnce.Do(func() {
		globalScheduler = NewScheduler(DefaultMaxConcurrentCalls)
		logging.Dispatch("Scheduler: initialized global instance (max_slots=%d)", DefaultMaxConcurrentCalls)
	})
	return globalScheduler
}

// ScheduledClient wraps an LLMClient with slot acquisition and release
// around every call. It implements types.LLMClient so agents take it
// without knowing the scheduler exists.
type ScheduledClient struct {
	scheduler *Scheduler
	agentID   string
	client    types.LLMClient
}

// Client returns a scheduled wrapper for the given agent, registering the
// agent if needed.
func (s *Scheduler) Client(agentID, agentType string, client types.LLMClient) *ScheduledClient {
	s.Register(agentID, agentType)
	return &ScheduledClient{
		scheduler: s,
		agentID:   agentID,
		client:    client,
	}
}

// Name returns the wrapped client's provider identifier.
func (c *ScheduledClient) Name() string { return c.client.Name() }

// Model returns the wrapped client's model.
func (c *ScheduledClient) Model() string { return c.client.Model() }

// Complete makes a model call under a scheduler slot.
func (c *ScheduledClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.scheduler.Acquire(ctx, c.agentID); err != nil {
		return "", fmt.Errorf("failed to acquire call slot: %w", err)
	}
	defer c.scheduler.Release(c.agentID)

	return c.client.Complete(ctx, prompt)
}

// CompleteWithSystem makes a model call under a scheduler slot.
func (c *ScheduledClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.scheduler.Acquire(ctx, c.agentID); err != nil {
		return "", fmt.Errorf("failed to acquire call slot: %w", err)
	}
	defer c.scheduler.Release(c.agentID)

	return c.client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
}
