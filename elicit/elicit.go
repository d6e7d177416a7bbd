// Package elicit suspends a pending tool call until the operator
// confirms or cancels it. A session holds at most one outstanding
// elicitation; a second request before the first resolves is rejected.
package elicit

import (
	"context"
	"strings"
	"sync"

	"github.com/mauriffe/mcpbot/errors"
	"github.com/mauriffe/mcpbot/llm"
)

// Outcome is the resolution of an elicitation.
type Outcome int

const (
	// OutcomeApproved means the operator confirmed; the tool runs with
	// its original arguments.
	OutcomeApproved Outcome = iota
	// OutcomeCancelled means the operator declined, the session was
	// reset, or the channel went away. The tool never runs.
	OutcomeCancelled
)

// Result carries the outcome plus the operator's raw response text.
type Result struct {
	Outcome  Outcome
	Response string
}

// Handle is the suspension handle for one pending elicitation.
type Handle struct {
	Prompt string
	Call   llm.ToolCall

	once sync.Once
	done chan Result
}

// Wait blocks until the elicitation resolves. Context cancellation
// (reset or channel closure) resolves to cancelled.
func (h *Handle) Wait(ctx context.Context) Result {
	select {
	case res := <-h.done:
		return res
	case <-ctx.Done():
		return Result{Outcome: OutcomeCancelled}
	}
}

func (h *Handle) resolve(res Result) {
	h.once.Do(func() {
		h.done <- res
	})
}

// Gate tracks the single pending elicitation of a session.
type Gate struct {
	mu      sync.Mutex
	pending *Handle
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{}
}

// Request registers a pending elicitation and returns its handle. It
// fails if one is already outstanding; the caller must queue behind it.
func (g *Gate) Request(prompt string, call llm.ToolCall) (*Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		return nil, errors.New("an elicitation is already pending")
	}
	h := &Handle{
		Prompt: prompt,
		Call:   call,
		done:   make(chan Result, 1),
	}
	g.pending = h
	return h, nil
}

// Resolve applies the operator's response to the pending elicitation.
// A response equal to "cancel" after trimming and lowercasing cancels
// the call; any other response approves it, with the text treated purely
// as confirmation. Returns false if nothing was pending.
func (g *Gate) Resolve(response string) bool {
	g.mu.Lock()
	h := g.pending
	g.pending = nil
	g.mu.Unlock()
	if h == nil {
		return false
	}

	outcome := OutcomeApproved
	if strings.EqualFold(strings.TrimSpace(response), "cancel") {
		outcome = OutcomeCancelled
	}
	h.resolve(Result{Outcome: outcome, Response: response})
	return true
}

// Interrupt forces the pending elicitation, if any, to cancelled. Used
// on reset and channel closure.
func (g *Gate) Interrupt() {
	g.mu.Lock()
	h := g.pending
	g.pending = nil
	g.mu.Unlock()
	if h != nil {
		h.resolve(Result{Outcome: OutcomeCancelled})
	}
}

// Pending reports whether an elicitation is outstanding.
func (g *Gate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}
