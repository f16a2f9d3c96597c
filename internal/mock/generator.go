// Package mock synthesizes plausible agent sessions for demos and
// frontend development, driving them through the same sink real
// adapters use.
package mock

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/robertcprice/agent-monitor/internal/adapter"
	"github.com/robertcprice/agent-monitor/internal/session"
)

const tickInterval = 500 * time.Millisecond

var commonTools = []string{"Read", "Write", "Edit", "Bash", "Grep", "Glob"}

// mockSession is one scripted run. The pattern selects how tokens and
// activity evolve per tick.
type mockSession struct {
	state         *session.Session
	tokensPerTick int64
	pattern       string
	maxTokens     int64
	errorAt       int64
	tools         []string
	toolIdx       int
	completed     bool
}

// Generator replays scripted sessions through a sink on a fixed tick.
type Generator struct {
	sink     *adapter.Sink
	sessions []*mockSession
}

func NewGenerator(sink *adapter.Sink) *Generator {
	return &Generator{sink: sink}
}

// Start seeds the scripted sessions and runs the tick loop until the
// context is cancelled.
func (g *Generator) Start(ctx context.Context) {
	now := time.Now().UTC()

	g.sessions = []*mockSession{
		{
			state:         newState("mock-refactor", session.KindClaude, "/home/user/myproject", "claude-opus-4", now),
			tokensPerTick: 1200, pattern: "steady", maxTokens: 180000,
			tools: []string{"Read", "Grep", "Edit", "Write", "Bash", "Edit"},
		},
		{
			state:         newState("mock-tests", session.KindClaude, "/home/user/webapp", "claude-sonnet-4", now),
			tokensPerTick: 3500, pattern: "burst", maxTokens: 140000,
			tools: []string{"Read", "Write", "Bash", "Bash", "Write"},
		},
		{
			state:         newState("mock-debug", session.KindAider, "/home/user/api-server", "gpt-4o", now),
			tokensPerTick: 800, pattern: "stall", maxTokens: 120000,
			tools: []string{"Read", "Grep", "Grep", "Read", "Bash"},
		},
		{
			state:         newState("mock-feature", session.KindCursor, "/home/user/frontend", "", now),
			tokensPerTick: 1800, pattern: "error", maxTokens: 200000, errorAt: 120000,
			tools: commonTools,
		},
	}

	for _, ms := range g.sessions {
		g.sink.UpsertSession(ms.state)
		g.emit(ms, session.EventSessionStart, "", "")
	}

	go g.run(ctx)
}

func newState(id string, kind session.AgentKind, project, model string, now time.Time) *session.Session {
	s := &session.Session{
		ID:             id,
		AgentKind:      kind,
		ExternalID:     "mock_" + id,
		ProjectPath:    project,
		Status:         session.StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
		ModelID:        model,
	}
	s.SetMeta("source", "mock")
	return s
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			for _, ms := range g.sessions {
				if ms.completed {
					continue
				}
				g.advance(ms, tick)
				g.sink.UpsertSession(ms.state)
			}
		}
	}
}

func (g *Generator) advance(ms *mockSession, tick int) {
	now := time.Now().UTC()
	ms.state.Touch(now)

	switch ms.pattern {
	case "steady":
		g.advanceSteady(ms, tick)
	case "burst":
		g.advanceBurst(ms, tick)
	case "stall":
		g.advanceStall(ms, tick)
	case "error":
		g.advanceError(ms, tick)
	}
}

// grow adds one message worth of tokens and emits either a tool or a
// response event for it.
func (g *Generator) grow(ms *mockSession, tokens int64, useTool bool) {
	in := tokens / 3
	out := tokens - in
	ms.state.AddTokens(in, out)
	ms.state.MessageCount++

	if useTool && len(ms.tools) > 0 {
		tool := ms.tools[ms.toolIdx%len(ms.tools)]
		ms.toolIdx++
		ms.state.ToolCallCount++
		ms.state.CurrentTask = "running " + tool
		g.emit(ms, session.EventToolExecuted, tool, "")
		return
	}
	ms.state.CurrentTask = "thinking"
	e := newEvent(ms, session.EventResponseGenerated, "", fmt.Sprintf("progress update %d", ms.state.MessageCount))
	e.TokensInput = &in
	e.TokensOutput = &out
	g.sink.EmitEvent(e)
}

func (g *Generator) advanceSteady(ms *mockSession, tick int) {
	jitter := int64(rand.Intn(400) - 200)
	g.grow(ms, ms.tokensPerTick+jitter, tick%3 == 0)
	g.checkComplete(ms)
}

func (g *Generator) advanceBurst(ms *mockSession, tick int) {
	mult := 1.0
	if tick%8 < 3 {
		mult = 2.5
	}
	g.grow(ms, int64(float64(ms.tokensPerTick)*mult)+int64(rand.Intn(500)), mult > 1)
	g.checkComplete(ms)
}

func (g *Generator) advanceStall(ms *mockSession, tick int) {
	// Work for 40 ticks, sit idle for 30, repeat. The idle phase keeps
	// an idle-status session visible in the dashboard at all times.
	const cyclePeriod = 70
	if tick%cyclePeriod >= 40 {
		ms.state.Status = session.StatusIdle
		ms.state.CurrentTask = ""
		return
	}
	ms.state.Status = session.StatusActive
	g.grow(ms, ms.tokensPerTick+int64(rand.Intn(200)), tick%4 == 0)
	g.checkComplete(ms)
}

func (g *Generator) advanceError(ms *mockSession, tick int) {
	// Sinusoidal pace, then a crash once enough tokens accumulate.
	pace := 0.7 + 0.3*math.Sin(float64(tick)/10.0)
	g.grow(ms, int64(float64(ms.tokensPerTick)*pace), tick%3 == 0)

	if ms.state.TokensInput+ms.state.TokensOutput >= ms.errorAt {
		now := time.Now().UTC()
		ms.state.Status = session.StatusCrashed
		ms.state.EndedAt = &now
		ms.state.CurrentTask = ""
		ms.completed = true
		e := newEvent(ms, session.EventError, "", "")
		e.ErrorMessage = "error: simulated failure"
		g.sink.EmitEvent(e)
	}
}

func (g *Generator) checkComplete(ms *mockSession) {
	total := ms.state.TokensInput + ms.state.TokensOutput
	if total < ms.maxTokens {
		ms.state.Progress = float64(total) / float64(ms.maxTokens)
		return
	}
	now := time.Now().UTC()
	ms.state.Status = session.StatusCompleted
	ms.state.EndedAt = &now
	ms.state.Progress = 1
	ms.state.CurrentTask = ""
	ms.completed = true
	g.emit(ms, session.EventSessionEnd, "", "")
}

func newEvent(ms *mockSession, kind session.EventKind, tool, content string) *session.Event {
	return &session.Event{
		ID:               session.NewEventID(),
		SessionID:        ms.state.ID,
		EventKind:        kind,
		Timestamp:        time.Now().UTC(),
		AgentKind:        ms.state.AgentKind,
		Content:          content,
		WorkingDirectory: ms.state.ProjectPath,
		ToolName:         tool,
	}
}

func (g *Generator) emit(ms *mockSession, kind session.EventKind, tool, content string) {
	g.sink.EmitEvent(newEvent(ms, kind, tool, content))
}
