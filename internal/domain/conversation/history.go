// Package conversation keeps per-session question/answer history.
package conversation

import "sync"

// DefaultMaxTurns bounds the window handed to the language model.
const DefaultMaxTurns = 10

// Turn is one question and the answer given to it.
type Turn struct {
	Question string
	Answer   string
}

// History is an append-only sliding window of turns for one session.
// Record is serialized; readers get a copy.
type History struct {
	mu       sync.Mutex
	turns    []Turn
	maxTurns int
}

// NewHistory creates a History keeping at most maxTurns turns (DefaultMaxTurns if <= 0).
func NewHistory(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &History{maxTurns: maxTurns}
}

// Record appends a turn, evicting the oldest once the window is full.
func (h *History) Record(question, answer string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, Turn{Question: question, Answer: answer})
	if over := len(h.turns) - h.maxTurns; over > 0 {
		// copy down instead of reslicing so the backing array does not grow forever
		n := copy(h.turns, h.turns[over:])
		clear(h.turns[n:])
		h.turns = h.turns[:n]
	}
}

// Turns returns the current window, oldest first.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of turns in the window.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
