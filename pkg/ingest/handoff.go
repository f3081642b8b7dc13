package ingest

import (
	"fmt"
	"sync"

	"github.com/gwillem/glove/pkg/glove"
)

// Handoff is the only state shared between the reader goroutine and the
// consumer.
type Handoff interface {
	// Put stores a valid line. It never blocks on the consumer.
	Put(line string)
	// Drain returns pending lines in arrival order and empties the handoff.
	Drain() []string
}

// LatestSlot keeps only the newest line. Unconsumed lines are overwritten.
type LatestSlot struct {
	mu   sync.Mutex
	line string
	full bool
}

// NewLatestSlot returns an empty slot.
func NewLatestSlot() *LatestSlot {
	return &LatestSlot{}
}

// Put replaces any unconsumed line.
func (s *LatestSlot) Put(line string) {
	s.mu.Lock()
	s.line = line
	s.full = true
	s.mu.Unlock()
}

// Drain returns the newest line, if one arrived since the last Drain.
func (s *LatestSlot) Drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		return nil
	}
	s.full = false
	return []string{s.line}
}

// Queue keeps every line until drained. It is unbounded: a stalled consumer
// grows it without limit.
type Queue struct {
	mu    sync.Mutex
	lines []string
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Put appends line.
func (q *Queue) Put(line string) {
	q.mu.Lock()
	q.lines = append(q.lines, line)
	q.mu.Unlock()
}

// Drain returns every queued line in arrival order.
func (q *Queue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	lines := q.lines
	q.lines = nil
	return lines
}

// Len returns the number of pending lines.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines)
}

// NewHandoff returns the handoff for a policy name ("latest" or "queue").
func NewHandoff(policy string) (Handoff, error) {
	switch policy {
	case glove.HandoffLatest, "":
		return NewLatestSlot(), nil
	case glove.HandoffQueue:
		return NewQueue(), nil
	}
	return nil, fmt.Errorf("unknown handoff policy %q", policy)
}
