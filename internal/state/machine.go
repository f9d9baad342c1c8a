// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package state implements the research lifecycle state machine. The
// machine never blocks; an external caller awaits each phase's work and
// then requests the next transition.
package state

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agent/pkg/types"
)

// Guard inspects the live context and may veto a transition.
type Guard func(*types.DecisionContext) bool

// Hooks customizes behavior for one state. All hooks are optional.
type Hooks struct {
	// OnEnter runs after the machine enters the state.
	OnEnter func(*types.DecisionContext)

	// OnExit runs before the machine leaves the state.
	OnExit func(*types.DecisionContext)

	// OnError maps an error raised in this state to the next state,
	// enabling per-state recovery policies. A nil hook routes every
	// error to failed.
	OnError func(*types.DecisionContext, *types.AgentError) types.ResearchState
}

// transition declares one legal edge.
type transition struct {
	from  types.ResearchState
	to    types.ResearchState
	guard Guard
}

// Event is delivered synchronously to subscribers after each mutation.
type Event struct {
	// From and To describe a transition; equal for context updates.
	From types.ResearchState
	To   types.ResearchState

	// Progress is the context progress after the mutation.
	Progress float64
}

// progressByState is the cumulative progress fraction reached when a
// state is entered.
var progressByState = map[types.ResearchState]float64{
	types.StateIdle:      0.0,
	types.StatePlanning:  0.05,
	types.StateSearching: 0.20,
	types.StateScraping:  0.40,
	types.StateAnalyzing: 0.60,
	types.StateVerifying: 0.75,
	types.StateCompiling: 0.90,
	types.StateCompleted: 1.0,
	types.StateFailed:    1.0,
}

// Machine is the research workflow state machine. All mutations notify
// subscribers synchronously after they are applied.
type Machine struct {
	mu          sync.Mutex
	context     *types.DecisionContext
	transitions []transition
	hooks       map[types.ResearchState]Hooks
	subscribers []func(Event)
	logger      *zap.Logger
}

// hasPlan guards edges that require planning to have produced a plan.
func hasPlan(c *types.DecisionContext) bool { return c.Plan != nil }

// hasSources guards edges that require at least one ingested source.
func hasSources(c *types.DecisionContext) bool { return len(c.Sources) > 0 }

// defaultTransitions is the canonical edge set.
func defaultTransitions() []transition {
	return []transition{
		{types.StateIdle, types.StatePlanning, nil},
		{types.StatePlanning, types.StateSearching, hasPlan},
		{types.StateSearching, types.StateScraping, hasSources},
		{types.StateSearching, types.StateAnalyzing, hasSources},
		{types.StateSearching, types.StateCompiling, nil}, // empty-result fallback report
		{types.StateSearching, types.StatePlanning, nil},  // re-strategize
		{types.StateScraping, types.StateAnalyzing, nil},
		{types.StateScraping, types.StateSearching, nil},
		{types.StateAnalyzing, types.StateVerifying, nil},
		{types.StateAnalyzing, types.StateCompiling, nil},
		{types.StateVerifying, types.StateCompiling, nil},
		{types.StateVerifying, types.StateSearching, nil}, // gather more evidence
		{types.StateCompiling, types.StateCompleted, nil},
		{types.StatePlanning, types.StateFailed, nil},
		{types.StateSearching, types.StateFailed, nil},
		{types.StateScraping, types.StateFailed, nil},
		{types.StateAnalyzing, types.StateFailed, nil},
		{types.StateVerifying, types.StateFailed, nil},
		{types.StateCompiling, types.StateFailed, nil},
		{types.StateFailed, types.StatePlanning, nil}, // recovery
		{types.StateCompleted, types.StateIdle, nil},  // reset for reuse
	}
}

// NewMachine builds a Machine around ctx with the canonical transition
// table and default per-state recovery hooks.
func NewMachine(ctx *types.DecisionContext, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ctx.State == "" {
		ctx.State = types.StateIdle
	}
	m := &Machine{
		context:     ctx,
		transitions: defaultTransitions(),
		hooks:       make(map[types.ResearchState]Hooks),
		logger:      logger,
	}
	m.installDefaultHooks()
	return m
}

// installDefaultHooks wires the recovery policies: scraping retries
// itself on timeout and falls back to searching otherwise; rate limits
// route back to planning from any state; everything else fails.
func (m *Machine) installDefaultHooks() {
	recover := func(_ *types.DecisionContext, err *types.AgentError) types.ResearchState {
		if err.Kind == types.ErrRateLimit {
			return types.StatePlanning
		}
		return types.StateFailed
	}
	m.hooks[types.StatePlanning] = Hooks{OnError: recover}
	m.hooks[types.StateSearching] = Hooks{OnError: recover}
	m.hooks[types.StateAnalyzing] = Hooks{OnError: recover}
	m.hooks[types.StateVerifying] = Hooks{OnError: recover}
	m.hooks[types.StateCompiling] = Hooks{OnError: recover}
	m.hooks[types.StateScraping] = Hooks{
		OnError: func(_ *types.DecisionContext, err *types.AgentError) types.ResearchState {
			switch err.Kind {
			case types.ErrTimeout:
				return types.StateScraping
			case types.ErrRateLimit:
				return types.StatePlanning
			default:
				return types.StateSearching
			}
		},
	}
}

// SetHooks replaces the hooks for one state.
func (m *Machine) SetHooks(s types.ResearchState, h Hooks) {
	m.mu.Lock()
	m.hooks[s] = h
	m.mu.Unlock()
}

// Subscribe registers fn for synchronous notification after each
// mutation.
func (m *Machine) Subscribe(fn func(Event)) {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.mu.Unlock()
}

// State returns the current state.
func (m *Machine) State() types.ResearchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.context.State
}

// Context returns the shared context. Callers mutate it only through
// UpdateContext.
func (m *Machine) Context() *types.DecisionContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.context
}

// Transition requests a move to the given state. It returns false with
// no side effects when no matching edge exists or its guard vetoes the
// move. On success, exit hooks, the move, progress update, and enter
// hooks are applied, then subscribers are notified.
func (m *Machine) Transition(to types.ResearchState) bool {
	m.mu.Lock()
	from := m.context.State

	var edge *transition
	for i := range m.transitions {
		t := &m.transitions[i]
		if t.from == from && t.to == to {
			edge = t
			break
		}
	}
	if edge == nil || (edge.guard != nil && !edge.guard(m.context)) {
		m.mu.Unlock()
		m.logger.Debug("transition rejected",
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Bool("edge_exists", edge != nil))
		return false
	}

	if h, ok := m.hooks[from]; ok && h.OnExit != nil {
		h.OnExit(m.context)
	}

	m.context.State = to
	if p, ok := progressByState[to]; ok && p > m.context.Progress {
		m.context.Progress = p
	}
	if to == types.StatePlanning && from == types.StateIdle {
		m.context.StartedAt = time.Now()
	}

	if h, ok := m.hooks[to]; ok && h.OnEnter != nil {
		h.OnEnter(m.context)
	}

	event := Event{From: from, To: to, Progress: m.context.Progress}
	subscribers := m.snapshotSubscribersLocked()
	m.mu.Unlock()

	m.logger.Debug("state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	m.notify(subscribers, event)
	return true
}

// HandleError records err on the context, routes it through the current
// state's OnError hook, and transitions to the hook's answer. The
// resulting state is returned.
func (m *Machine) HandleError(err *types.AgentError) types.ResearchState {
	m.mu.Lock()
	current := m.context.State
	if err.Phase == "" {
		err.Phase = string(current)
	}
	m.context.Errors = append(m.context.Errors, err)
	hook := m.hooks[current]
	m.mu.Unlock()

	next := types.StateFailed
	if hook.OnError != nil {
		next = hook.OnError(m.context, err)
	}

	if next == current {
		// Re-entry: no edge needed, just notify.
		m.mu.Lock()
		event := Event{From: current, To: current, Progress: m.context.Progress}
		subscribers := m.snapshotSubscribersLocked()
		m.mu.Unlock()
		m.notify(subscribers, event)
		return current
	}

	if m.Transition(next) {
		return next
	}
	// No legal edge to the recovery target: force failed.
	m.mu.Lock()
	m.context.State = types.StateFailed
	event := Event{From: current, To: types.StateFailed, Progress: m.context.Progress}
	subscribers := m.snapshotSubscribersLocked()
	m.mu.Unlock()
	m.notify(subscribers, event)
	return types.StateFailed
}

// UpdateContext applies fn to the shared context under the lock, then
// notifies subscribers.
func (m *Machine) UpdateContext(fn func(*types.DecisionContext)) {
	m.mu.Lock()
	fn(m.context)
	event := Event{From: m.context.State, To: m.context.State, Progress: m.context.Progress}
	subscribers := m.snapshotSubscribersLocked()
	m.mu.Unlock()
	m.notify(subscribers, event)
}

// UpdateQuality recomputes the composite quality after fn mutates the
// sub-scores, then notifies subscribers.
func (m *Machine) UpdateQuality(fn func(*types.QualityScore)) {
	m.UpdateContext(func(c *types.DecisionContext) {
		fn(&c.Quality)
		c.Quality.Recompute()
	})
}

// Reset reinitializes the context to the zero state, keeping the run
// and query identifiers.
func (m *Machine) Reset() {
	m.mu.Lock()
	runID, query := m.context.RunID, m.context.Query
	*m.context = types.DecisionContext{
		RunID: runID,
		Query: query,
		State: types.StateIdle,
	}
	event := Event{From: types.StateIdle, To: types.StateIdle, Progress: 0}
	subscribers := m.snapshotSubscribersLocked()
	m.mu.Unlock()
	m.notify(subscribers, event)
}

func (m *Machine) snapshotSubscribersLocked() []func(Event) {
	out := make([]func(Event), len(m.subscribers))
	copy(out, m.subscribers)
	return out
}

func (m *Machine) notify(subscribers []func(Event), e Event) {
	for _, fn := range subscribers {
		fn(e)
	}
}
