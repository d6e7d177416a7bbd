// Package llm drives conversational turns against a remote model. Each
// turn is exposed as a lazy, ordered stream of fragments that the
// orchestrator consumes with an explicit loop; tool-call fragments pause
// the stream until a result is fed back.
package llm

import (
	"context"
	"fmt"

	"github.com/mauriffe/mcpbot/session"
	"github.com/mauriffe/mcpbot/tools"
)

// FragmentKind discriminates the units of streamed turn output.
type FragmentKind int

const (
	// FragmentThinking carries intermediate model text surfaced verbatim.
	FragmentThinking FragmentKind = iota
	// FragmentToolCall asks the orchestrator to run a tool. The stream
	// blocks until Provide is called with the result.
	FragmentToolCall
	// FragmentFinal is the terminal answer. The stream ends after it.
	FragmentFinal
	// FragmentError is the terminal failure. The stream ends after it.
	FragmentError
)

func (k FragmentKind) String() string {
	switch k {
	case FragmentThinking:
		return "thinking"
	case FragmentToolCall:
		return "tool_call"
	case FragmentFinal:
		return "final"
	case FragmentError:
		return "error"
	default:
		return "unknown"
	}
}

// ToolCall is a model request to invoke a tool. Immutable once created.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Fragment is one unit of streamed output from a turn.
type Fragment struct {
	Kind FragmentKind
	Text string    // thinking text, final answer, or error message
	Call *ToolCall // set for FragmentToolCall
}

// ModelError reports a failed remote model call. It terminates the turn;
// the orchestrator surfaces it as an error envelope and returns to idle.
type ModelError struct {
	Provider string
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s model call failed: %v", e.Provider, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// ModelClient starts conversational turns against a remote model.
type ModelClient interface {
	// StartTurn begins one turn over the given history (whose last entry
	// is the new user input) and the advertised tools. Every call
	// returns a fresh stream; streams are not restartable.
	StartTurn(ctx context.Context, history []session.Message, availableTools []tools.Tool) *TurnStream
}

// TurnStream is the lazy fragment sequence for a single turn. The
// producing driver goroutine and the consuming orchestrator loop meet on
// unbuffered channels, so the driver only runs as far as the consumer
// has read.
type TurnStream struct {
	frags   chan Fragment
	results chan string
}

// NewTurnStream creates a stream wired for one producer goroutine.
// Drivers call push/awaitResult/finish; consumers call Next/Provide.
func NewTurnStream() *TurnStream {
	return &TurnStream{
		frags:   make(chan Fragment),
		results: make(chan string),
	}
}

// Next yields the next fragment. ok is false when the stream is finished
// or the context is cancelled.
func (s *TurnStream) Next(ctx context.Context) (Fragment, bool) {
	select {
	case frag, open := <-s.frags:
		return frag, open
	case <-ctx.Done():
		return Fragment{}, false
	}
}

// Provide hands a tool result (or error text, or a cancellation notice)
// back to the driver after a FragmentToolCall.
func (s *TurnStream) Provide(ctx context.Context, result string) bool {
	select {
	case s.results <- result:
		return true
	case <-ctx.Done():
		return false
	}
}

// push emits a fragment from the driver side.
func (s *TurnStream) push(ctx context.Context, frag Fragment) bool {
	select {
	case s.frags <- frag:
		return true
	case <-ctx.Done():
		return false
	}
}

// awaitResult blocks the driver until the consumer provides the tool
// result for the fragment just pushed.
func (s *TurnStream) awaitResult(ctx context.Context) (string, bool) {
	select {
	case res := <-s.results:
		return res, true
	case <-ctx.Done():
		return "", false
	}
}

// finish closes the fragment channel. Drivers call it exactly once,
// after the terminal fragment.
func (s *TurnStream) finish() {
	close(s.frags)
}

// fail pushes a terminal error fragment and finishes the stream.
func (s *TurnStream) fail(ctx context.Context, err error) {
	s.push(ctx, Fragment{Kind: FragmentError, Text: err.Error()})
	s.finish()
}
