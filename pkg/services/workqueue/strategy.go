package workqueue

import "sync"

// ConcurrencyStrategy controls how tasks are allowed to start concurrently.
// The strategy tracks running tasks and decides whether a new task can
// start given the current state.
type ConcurrencyStrategy interface {
	// CanStartSource returns true if a source task can start
	CanStartSource() bool
	// CanStartLocal returns true if a local task can start
	CanStartLocal() bool
	// OnStartSource is called when a source task starts
	OnStartSource()
	// OnStartLocal is called when a local task starts
	OnStartLocal()
	// OnCompleteSource is called when a source task completes
	OnCompleteSource()
	// OnCompleteLocal is called when a local task completes
	OnCompleteLocal()
}

// SerializedStrategy serializes both kinds of tasks: one source task and
// one local task at a time, though a source task and a local task can run
// in parallel.
type SerializedStrategy struct {
	mu            sync.Mutex
	sourceRunning bool
	localRunning  bool
}

// NewSerializedStrategy creates a strategy that serializes source tasks
// and serializes local tasks.
func NewSerializedStrategy() *SerializedStrategy {
	return &SerializedStrategy{}
}

func (s *SerializedStrategy) CanStartSource() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.sourceRunning
}

func (s *SerializedStrategy) CanStartLocal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.localRunning
}

func (s *SerializedStrategy) OnStartSource() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceRunning = true
}

func (s *SerializedStrategy) OnStartLocal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localRunning = true
}

func (s *SerializedStrategy) OnCompleteSource() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceRunning = false
}

func (s *SerializedStrategy) OnCompleteLocal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localRunning = false
}

// ThrottledSourceStrategy allows up to maxConcurrent source tasks to run
// in parallel, bounding the number of simultaneous connections a scan run
// holds against external databases. Local tasks run unbounded.
type ThrottledSourceStrategy struct {
	mu            sync.Mutex
	maxConcurrent int
	sourceRunning int
}

// NewThrottledSourceStrategy creates a strategy that allows up to
// maxConcurrent source tasks in parallel.
func NewThrottledSourceStrategy(maxConcurrent int) *ThrottledSourceStrategy {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ThrottledSourceStrategy{
		maxConcurrent: maxConcurrent,
	}
}

func (s *ThrottledSourceStrategy) CanStartSource() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceRunning < s.maxConcurrent
}

func (s *ThrottledSourceStrategy) CanStartLocal() bool {
	return true
}

func (s *ThrottledSourceStrategy) OnStartSource() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceRunning++
}

func (s *ThrottledSourceStrategy) OnStartLocal() {
	// No-op: local tasks are not tracked
}

func (s *ThrottledSourceStrategy) OnCompleteSource() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sourceRunning > 0 {
		s.sourceRunning--
	}
}

func (s *ThrottledSourceStrategy) OnCompleteLocal() {
	// No-op: local tasks are not tracked
}
