// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ResearchApproach names the overall research strategy.
type ResearchApproach string

const (
	ApproachFocused     ResearchApproach = "focused"
	ApproachBroad       ResearchApproach = "broad"
	ApproachComparative ResearchApproach = "comparative"
	ApproachWide        ResearchApproach = "wide"
)

// VerificationLevel controls how aggressively claims are cross-checked.
type VerificationLevel string

const (
	VerifyBasic    VerificationLevel = "basic"
	VerifyStandard VerificationLevel = "standard"
	VerifyStrict   VerificationLevel = "strict"
)

// Strategy holds the knobs a plan sets for one research run.
type Strategy struct {
	// Approach selects the overall research style.
	Approach ResearchApproach `json:"approach" yaml:"approach"`

	// SourceTypes lists the source categories the run should prefer.
	SourceTypes []SourceCategory `json:"source_types" yaml:"source_types"`

	// VerificationLevel controls claim cross-checking depth.
	VerificationLevel VerificationLevel `json:"verification_level" yaml:"verification_level"`

	// MaxSources caps the number of sources ingested.
	MaxSources int `json:"max_sources" yaml:"max_sources"`

	// Parallelism is the requested sub-query fan-out width.
	Parallelism int `json:"parallelism" yaml:"parallelism"`
}

// StepKind is the kind of work a plan step performs.
type StepKind string

const (
	StepSearch  StepKind = "search"
	StepScrape  StepKind = "scrape"
	StepAnalyze StepKind = "analyze"
	StepVerify  StepKind = "verify"
	StepEnrich  StepKind = "enrich"
)

// StepStatus tracks a plan step through execution.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// PlanStep is one unit of planned work. A step may only run once all of
// its dependencies are completed.
type PlanStep struct {
	// ID identifies the step within its plan.
	ID string `json:"id" yaml:"id"`

	// Kind is the work the step performs.
	Kind StepKind `json:"kind" yaml:"kind"`

	// Description is a short human-readable label.
	Description string `json:"description" yaml:"description"`

	// Status is the step's current execution state.
	Status StepStatus `json:"status" yaml:"status"`

	// DependsOn lists the IDs of steps that must complete first.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// ResearchPlan is one query's strategy and ordered steps. A plan is
// created once per query, mutated by adaptation while the run is live,
// and immutable after completion.
type ResearchPlan struct {
	// ID identifies the plan.
	ID string `json:"id" yaml:"id"`

	// Query is the original natural-language research question.
	Query string `json:"query" yaml:"query"`

	// Strategy holds the selected research knobs.
	Strategy Strategy `json:"strategy" yaml:"strategy"`

	// Steps is the ordered work list.
	Steps []PlanStep `json:"steps" yaml:"steps"`

	// Priority orders this plan against others (higher first).
	Priority int `json:"priority" yaml:"priority"`

	// Adaptations records strategy changes applied mid-run.
	Adaptations []string `json:"adaptations,omitempty" yaml:"adaptations,omitempty"`

	// CreatedAt is when planning produced the plan.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Step returns the step with the given ID, or nil.
func (p *ResearchPlan) Step(id string) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// CanRun reports whether every dependency of the step is completed.
func (p *ResearchPlan) CanRun(id string) bool {
	step := p.Step(id)
	if step == nil {
		return false
	}
	for _, dep := range step.DependsOn {
		d := p.Step(dep)
		if d == nil || d.Status != StepCompleted {
			return false
		}
	}
	return true
}
