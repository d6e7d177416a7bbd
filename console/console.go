// Package console runs a session over stdin/stdout instead of a
// websocket. It reuses the orchestrator unchanged; only the channel
// rendering differs.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/mauriffe/mcpbot/agent"
	"github.com/mauriffe/mcpbot/llm"
	"github.com/mauriffe/mcpbot/tools"
	"github.com/mauriffe/mcpbot/web"
)

// renderer is the console-side Sender. It prints envelopes as chat
// lines and signals the read loop when the session needs input again.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	elicit  bool
	settled chan struct{}
}

func (r *renderer) Send(env web.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch env.Type {
	case web.TypeUser:
		// The operator just typed it; no echo on a console.
	case web.TypeThinking:
		fmt.Fprintf(r.out, "... %s\n", env.Message)
	case web.TypeAssistant:
		fmt.Fprintf(r.out, "Bot: %s\n", env.Message)
		r.elicit = false
		r.settle()
	case web.TypeElicitation:
		fmt.Fprintf(r.out, "Confirm: %s\n", env.Message)
		r.elicit = true
		r.settle()
	case web.TypeToolLog:
		fmt.Fprintf(r.out, "[tool] %s\n", env.Message)
	case web.TypeError:
		fmt.Fprintf(r.out, "Error: %s\n", env.Message)
		r.elicit = false
		r.settle()
	case web.TypeSystem:
		fmt.Fprintf(r.out, "* %s\n", env.Message)
		r.elicit = false
		r.settle()
	}
}

func (r *renderer) settle() {
	select {
	case r.settled <- struct{}{}:
	default:
	}
}

func (r *renderer) elicitationPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elicit
}

// Console is the interactive stdin/stdout operator mode.
type Console struct {
	in   io.Reader
	r    *renderer
	orch *agent.Orchestrator
}

// New wires a console session around the given model client and
// registry. in and out default to the process's stdio in cmd.
func New(in io.Reader, out io.Writer, client llm.ModelClient, registry *tools.Registry, logger *slog.Logger) *Console {
	r := &renderer{out: out, settled: make(chan struct{}, 1)}
	return &Console{
		in:   in,
		r:    r,
		orch: agent.New(r, client, registry, logger),
	}
}

// Run reads operator lines until EOF or /quit. Lines are dispatched as
// message or elicitation_response envelopes depending on whether a
// confirmation is pending; /reset maps to a reset envelope.
func (c *Console) Run(ctx context.Context) error {
	defer c.orch.Close()
	c.orch.Greet()
	c.drain()

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.r.out, "You: ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		if line == "/reset" {
			c.orch.HandleEnvelope(web.Envelope{Type: web.TypeReset})
		} else if c.r.elicitationPending() {
			c.orch.HandleEnvelope(web.Envelope{Type: web.TypeElicitationResponse, Message: line})
		} else {
			c.orch.HandleEnvelope(web.Envelope{Type: web.TypeMessage, Message: line})
		}

		// Block until the session produced something that warrants the
		// next prompt.
		select {
		case <-c.r.settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// drain clears a stale settle signal so the next wait is fresh.
func (c *Console) drain() {
	select {
	case <-c.r.settled:
	default:
	}
}
