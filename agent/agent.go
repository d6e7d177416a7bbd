// Package agent hosts the per-session orchestrator. One orchestrator
// owns exactly one conversation: it drives model turns, runs tools,
// suspends on confirmations, and keeps the session state machine honest
// while everything shares a single ordered outbound channel.
package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mauriffe/mcpbot/elicit"
	"github.com/mauriffe/mcpbot/llm"
	"github.com/mauriffe/mcpbot/session"
	"github.com/mauriffe/mcpbot/tools"
	"github.com/mauriffe/mcpbot/web"
)

// State is the session's coarse activity phase.
type State int

const (
	// StateIdle means no turn is active; user messages are accepted.
	StateIdle State = iota
	// StateStreaming means a turn is consuming model fragments.
	StateStreaming
	// StateAwaitingConfirmation means a tool call is suspended on the
	// operator's elicitation response.
	StateAwaitingConfirmation
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return "unknown"
	}
}

// Sender delivers outbound envelopes to the operator, in call order.
type Sender interface {
	Send(env web.Envelope)
}

// Orchestrator multiplexes one session: model output, tool execution
// and confirmations over a single duplex channel. It implements
// web.SessionHandler. All envelope handling happens on the channel's
// read loop; turns run on their own goroutine.
type Orchestrator struct {
	id       string
	sender   Sender
	client   llm.ModelClient
	registry *tools.Registry
	history  *session.History
	gate     *elicit.Gate
	logger   *slog.Logger

	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	mu         sync.Mutex
	state      State
	turnSeq    uint64
	turnCancel context.CancelFunc
}

// New creates an orchestrator bound to a sender. The sender must be
// safe for concurrent use; envelope order on it is the session's
// observable order.
func New(sender Sender, client llm.ModelClient, registry *tools.Registry, logger *slog.Logger) *Orchestrator {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		id:            id,
		sender:        sender,
		client:        client,
		registry:      registry,
		history:       session.NewHistory(),
		gate:          elicit.NewGate(),
		logger:        logger.With("session_id", id),
		sessionCtx:    ctx,
		sessionCancel: cancel,
	}
}

// ID returns the session identifier.
func (o *Orchestrator) ID() string { return o.id }

// Greet announces readiness on a fresh channel.
func (o *Orchestrator) Greet() {
	o.sender.Send(web.Envelope{Type: web.TypeSystem, Message: "✓ Connected! Ready to chat."})
}

// HandleEnvelope dispatches one inbound envelope.
func (o *Orchestrator) HandleEnvelope(env web.Envelope) {
	switch env.Type {
	case web.TypeMessage:
		o.handleUserMessage(env.Message)
	case web.TypeElicitationResponse:
		o.handleElicitationResponse(env.Message)
	case web.TypeReset:
		o.handleReset()
	default:
		o.logger.Warn("unhandled envelope type", "type", env.Type)
	}
}

// Close releases the session. Any in-flight turn is cancelled and the
// pending elicitation, if any, resolves to cancelled. Nothing is sent.
func (o *Orchestrator) Close() {
	o.logger.Info("session closed")
	o.sessionCancel()
	o.gate.Interrupt()
}

// State returns the current session state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History exposes the session's conversation store.
func (o *Orchestrator) History() *session.History {
	return o.history
}

func (o *Orchestrator) handleUserMessage(text string) {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		o.logger.Info("rejecting message, turn in progress", "state", o.state.String())
		o.sender.Send(web.Envelope{
			Type:    web.TypeSystem,
			Message: "Still working on the previous message. Wait for the reply, or send a reset.",
		})
		return
	}
	turnCtx, cancel := context.WithCancel(o.sessionCtx)
	o.state = StateStreaming
	o.turnSeq++
	seq := o.turnSeq
	o.turnCancel = cancel
	o.mu.Unlock()

	o.sender.Send(web.Envelope{Type: web.TypeUser, Message: text})
	o.history.Append(session.RoleUser, text)
	o.sender.Send(web.Envelope{Type: web.TypeThinking, Message: "Thinking..."})

	go o.runTurn(turnCtx, seq, cancel)
}

func (o *Orchestrator) handleElicitationResponse(text string) {
	o.sender.Send(web.Envelope{Type: web.TypeUser, Message: text})
	if !o.gate.Resolve(text) {
		o.logger.Warn("elicitation response with nothing pending")
	}
}

// handleReset interrupts whatever the session is doing and returns it
// to a clean idle state. Accepted in every state.
func (o *Orchestrator) handleReset() {
	o.mu.Lock()
	cancel := o.turnCancel
	o.turnCancel = nil
	o.state = StateIdle
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.gate.Interrupt()
	o.history.Reset()
	o.logger.Info("session reset")
	o.sender.Send(web.Envelope{Type: web.TypeSystem, Message: "Chat history cleared"})
}

// runTurn consumes one turn's fragment stream until a terminal fragment
// or cancellation. It is the only goroutine touching the stream's
// consumer side.
func (o *Orchestrator) runTurn(ctx context.Context, seq uint64, cancel context.CancelFunc) {
	defer cancel()

	stream := o.client.StartTurn(ctx, o.history.Snapshot(), o.registry.Active())
	for {
		frag, ok := stream.Next(ctx)
		if !ok {
			// Cancelled, or the driver ended without a terminal
			// fragment. Either way the turn is over.
			o.endTurn(seq, nil)
			return
		}
		switch frag.Kind {
		case llm.FragmentThinking:
			if !o.ifLive(seq, func() {
				o.sender.Send(web.Envelope{Type: web.TypeThinking, Message: frag.Text})
			}) {
				return
			}
		case llm.FragmentToolCall:
			result, alive := o.dispatchToolCall(ctx, seq, *frag.Call)
			if !alive || !stream.Provide(ctx, result) {
				o.endTurn(seq, nil)
				return
			}
		case llm.FragmentFinal:
			o.endTurn(seq, func() {
				o.history.Append(session.RoleAssistant, frag.Text)
				o.sender.Send(web.Envelope{Type: web.TypeAssistant, Message: frag.Text})
			})
			return
		case llm.FragmentError:
			o.logger.Error("model turn failed", "error", frag.Text)
			o.endTurn(seq, func() {
				o.sender.Send(web.Envelope{Type: web.TypeError, Message: frag.Text})
			})
			return
		}
	}
}

// dispatchToolCall runs one requested tool call, going through the
// elicitation gate first when the tool requires confirmation. It
// returns the result text to feed back to the driver, or alive=false
// when the turn died while waiting or executing.
func (o *Orchestrator) dispatchToolCall(ctx context.Context, seq uint64, call llm.ToolCall) (result string, alive bool) {
	o.logger.Info("tool call requested", "tool", call.Name)

	desc, found := o.registry.Lookup(call.Name)
	if found && desc.RequiresConfirmation {
		handle, err := o.gate.Request(desc.ConfirmPrompt(call.Args), call)
		if err != nil {
			// A single driver cannot have two calls in flight, so a
			// stale pending entry means the gate is out of sync.
			o.logger.Error("elicitation gate rejected request", "tool", call.Name, "error", err)
			return fmt.Sprintf("Error executing tool %s: %v", call.Name, err), true
		}
		if !o.ifLive(seq, func() {
			o.state = StateAwaitingConfirmation
			o.sender.Send(web.Envelope{Type: web.TypeElicitation, Message: handle.Prompt})
		}) {
			o.gate.Interrupt()
			return "", false
		}

		res := handle.Wait(ctx)
		if ctx.Err() != nil {
			return "", false
		}
		if !o.ifLive(seq, func() { o.state = StateStreaming }) {
			return "", false
		}
		if res.Outcome == elicit.OutcomeCancelled {
			o.logger.Info("tool call cancelled by operator", "tool", call.Name)
			return fmt.Sprintf("The user cancelled the %s call. Do not run it and do not retry.", call.Name), true
		}
	}

	return o.executeTool(ctx, seq, call)
}

// executeTool runs the tool on the session context so a reset does not
// kill a write mid-flight. If the turn dies while waiting, the eventual
// result is discarded.
func (o *Orchestrator) executeTool(ctx context.Context, seq uint64, call llm.ToolCall) (string, bool) {
	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := o.registry.Execute(o.sessionCtx, call.Name, call.Args)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		text := out.result
		if out.err != nil {
			var te *tools.ToolError
			if stderrors.As(out.err, &te) {
				text = fmt.Sprintf("Error executing tool %s: %v", te.Tool, te.Err)
			} else {
				text = fmt.Sprintf("Error executing tool %s: %v", call.Name, out.err)
			}
			o.logger.Error("tool execution failed", "tool", call.Name, "error", out.err)
		} else {
			o.logger.Info("tool executed", "tool", call.Name)
		}
		if !o.ifLive(seq, func() {
			o.sender.Send(web.Envelope{Type: web.TypeToolLog, Message: fmt.Sprintf("%s: %s", call.Name, text)})
			o.history.Append(session.RoleTool, text)
		}) {
			return "", false
		}
		return text, true
	case <-ctx.Done():
		o.logger.Info("turn gone, discarding tool result", "tool", call.Name)
		return "", false
	}
}

// ifLive runs fn under the state lock, but only if turn seq is still
// the live turn. All turn output goes through here so nothing lands on
// the wire, or in history, after a reset has retired the turn. Holding
// the lock across the send also pins envelope order to state order: a
// waiting user message cannot be accepted mid-emission.
func (o *Orchestrator) ifLive(seq uint64, fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.turnSeq != seq || o.turnCancel == nil {
		return false
	}
	fn()
	return true
}

// endTurn retires turn seq and returns to idle, running emit first so
// the terminal envelope and history entry are in place before any new
// user message can be accepted. It reports whether the turn was still
// live, so terminal output is emitted once and never after a reset.
func (o *Orchestrator) endTurn(seq uint64, emit func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.turnSeq != seq || o.turnCancel == nil {
		return false
	}
	if emit != nil {
		emit()
	}
	o.turnCancel = nil
	o.state = StateIdle
	return true
}
