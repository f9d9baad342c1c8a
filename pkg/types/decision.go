// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ResearchState is one state of the research lifecycle.
type ResearchState string

const (
	StateIdle      ResearchState = "idle"
	StatePlanning  ResearchState = "planning"
	StateSearching ResearchState = "searching"
	StateScraping  ResearchState = "scraping"
	StateAnalyzing ResearchState = "analyzing"
	StateVerifying ResearchState = "verifying"
	StateCompiling ResearchState = "compiling"
	StateCompleted ResearchState = "completed"
	StateFailed    ResearchState = "failed"
)

// ActionKind is the closed set of orchestration actions the decision
// engine can pick.
type ActionKind string

const (
	ActionContinue       ActionKind = "continue"
	ActionRetry          ActionKind = "retry"
	ActionAdapt          ActionKind = "adapt"
	ActionEscalate       ActionKind = "escalate"
	ActionComplete       ActionKind = "complete"
	ActionFail           ActionKind = "fail"
	ActionParallelSearch ActionKind = "parallel_search"
)

// Decision is one evaluated orchestration choice.
type Decision struct {
	// Action is the chosen next move.
	Action ActionKind `json:"action" yaml:"action"`

	// Rule names the rule that produced the decision.
	Rule string `json:"rule" yaml:"rule"`

	// Reason explains the decision in one line.
	Reason string `json:"reason" yaml:"reason"`

	// Confidence is the adjusted decision confidence in [0,1].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// StrategyHints carries memory-derived recommendations for adapt actions.
	StrategyHints []string `json:"strategy_hints,omitempty" yaml:"strategy_hints,omitempty"`
}

// DecisionContext is the live execution snapshot the state machine
// maintains and the decision engine reads. One context exists per run.
type DecisionContext struct {
	// RunID identifies the run.
	RunID string `json:"run_id" yaml:"run_id"`

	// Query is the research question being answered.
	Query string `json:"query" yaml:"query"`

	// State is the current lifecycle state.
	State ResearchState `json:"state" yaml:"state"`

	// Plan is the active research plan; nil until planning completes.
	Plan *ResearchPlan `json:"plan,omitempty" yaml:"plan,omitempty"`

	// Progress is the run's completion fraction in [0,1].
	Progress float64 `json:"progress" yaml:"progress"`

	// Sources holds the accumulated source records.
	Sources []SourceRecord `json:"sources,omitempty" yaml:"sources,omitempty"`

	// Consolidated is the fused record built during analysis, if any.
	Consolidated *ConsolidatedRecord `json:"consolidated,omitempty" yaml:"consolidated,omitempty"`

	// Claims holds the claim verdicts produced during verification.
	Claims []ClaimVerification `json:"claims,omitempty" yaml:"claims,omitempty"`

	// Quality is the composite confidence, recomputed after each phase.
	Quality QualityScore `json:"quality" yaml:"quality"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at" yaml:"started_at"`

	// Deadline is the caller-imposed overall budget; zero means none.
	Deadline time.Time `json:"deadline,omitempty" yaml:"deadline,omitempty"`

	// Errors accumulates every error the run has seen.
	Errors []*AgentError `json:"errors,omitempty" yaml:"errors,omitempty"`

	// HandledErrors counts the prefix of Errors already acted on by a
	// decision. Error-driven rules react only to errors past this mark.
	HandledErrors int `json:"handled_errors,omitempty" yaml:"handled_errors,omitempty"`
}

// LatestError returns the most recent error not yet acted on by a
// decision, or nil when every error has been handled.
func (c *DecisionContext) LatestError() *AgentError {
	if len(c.Errors) > c.HandledErrors {
		return c.Errors[len(c.Errors)-1]
	}
	return nil
}

// Elapsed returns the time since the run began.
func (c *DecisionContext) Elapsed() time.Duration {
	if c.StartedAt.IsZero() {
		return 0
	}
	return time.Since(c.StartedAt)
}

// ErrorCount returns the number of accumulated errors.
func (c *DecisionContext) ErrorCount() int { return len(c.Errors) }
