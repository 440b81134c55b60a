// Package queue buffers user prompts submitted while a turn is active.
package queue

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultMaxDepth bounds the prompt queue when no depth is configured.
const DefaultMaxDepth = 16

// FullError is returned when a push would exceed the queue's max depth. The
// input is rejected rather than silently dropped.
type FullError struct {
	MaxDepth int
}

func (e *FullError) Error() string {
	return fmt.Sprintf("prompt queue full (max depth %d)", e.MaxDepth)
}

// PromptQueue is a bounded FIFO of user prompts. It is drained exactly once
// per completed or aborted turn.
type PromptQueue struct {
	mu       sync.Mutex
	items    []string
	maxDepth int
}

// New creates a queue with the given max depth; zero or negative uses
// DefaultMaxDepth.
func New(maxDepth int) *PromptQueue {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &PromptQueue{maxDepth: maxDepth}
}

// Push appends text and returns the new depth for UI feedback. Past the max
// depth it fails with FullError.
func (q *PromptQueue) Push(text string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.maxDepth {
		return len(q.items), &FullError{MaxDepth: q.maxDepth}
	}
	q.items = append(q.items, text)
	return len(q.items), nil
}

// Depth returns the number of buffered prompts.
func (q *PromptQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pop removes and returns the oldest prompt. ok is false when empty.
func (q *PromptQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// DrainAll removes and returns every prompt in FIFO order.
func (q *PromptQueue) DrainAll() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// DrainToText joins and clears the queue in FIFO order, newline-separated.
// Returns empty string and false when the queue is empty. Used by abort to
// hand unsent input back to the caller for re-editing.
func (q *PromptQueue) DrainToText() (string, bool) {
	items := q.DrainAll()
	if len(items) == 0 {
		return "", false
	}
	return strings.Join(items, "\n"), true
}
