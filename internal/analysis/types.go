// Package analysis defines core types shared across subsystems.
package analysis

import (
	"net/http"
	"time"
)

// JobStatus represents the lifecycle state of an analysis job. It is a
// distinct enumeration from CheckStatus and must never be conflated with it
// in storage or on the wire.
type JobStatus string

// Job status values persisted in the job store. Transitions only move
// forward: queued -> running -> complete|failed.
const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// IsTerminal reports whether the status is final and immutable.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// CheckStatus is the verdict of a single check.
type CheckStatus string

// Check verdicts.
const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// Category groups checks for scoring purposes.
type Category string

// Fixed check categories.
const (
	CategoryAIAccess  Category = "ai_access"
	CategoryContent   Category = "content"
	CategoryTechnical Category = "technical"
	CategoryStructure Category = "structure"
)

// Stage is one of the four ordered analysis phases.
type Stage string

// Analysis stages in execution order.
const (
	StageInstant   Stage = "instant"
	StageTechnical Stage = "technical"
	StageContent   Stage = "content"
	StageAIEval    Stage = "ai_eval"
)

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{StageInstant, StageTechnical, StageContent, StageAIEval}
}

// CheckTimeout returns the per-check timeout budget for a stage.
func CheckTimeout(stage Stage) time.Duration {
	switch stage {
	case StageInstant:
		return 5 * time.Second
	case StageTechnical:
		return 10 * time.Second
	case StageContent:
		return 15 * time.Second
	case StageAIEval:
		return 30 * time.Second
	default:
		return 5 * time.Second
	}
}

// ProgressQuota returns the cumulative progress value reached once the given
// stage has completed.
func ProgressQuota(stage Stage) int {
	switch stage {
	case StageInstant:
		return 20
	case StageTechnical:
		return 45
	case StageContent:
		return 70
	case StageAIEval:
		return 100
	default:
		return 0
	}
}

// ImpactLevel grades how badly a finding hurts AI visibility.
type ImpactLevel string

// Impact levels, most severe first.
const (
	ImpactCritical ImpactLevel = "critical"
	ImpactHigh     ImpactLevel = "high"
	ImpactMedium   ImpactLevel = "medium"
	ImpactLow      ImpactLevel = "low"
)

// FixDifficulty estimates the effort to remediate a finding.
type FixDifficulty string

// Fix difficulty grades.
const (
	FixEasy   FixDifficulty = "easy"
	FixMedium FixDifficulty = "medium"
	FixHard   FixDifficulty = "hard"
)

// Tier identifies the caller's entitlement level for result gating.
type Tier string

// Caller tiers.
const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// CheckResult is the immutable outcome of one check run for one job.
type CheckResult struct {
	Name            string         `json:"check_name"`
	Category        Category       `json:"category"`
	Status          CheckStatus    `json:"status"`
	Score           int            `json:"score"`
	Details         map[string]any `json:"details,omitempty"`
	Recommendation  string         `json:"recommendation,omitempty"`
	Impact          ImpactLevel    `json:"impact_level,omitempty"`
	FixDifficulty   FixDifficulty  `json:"fix_difficulty,omitempty"`
	FixTimeEstimate string         `json:"fix_time_estimate,omitempty"`
}

// StageOutcome is the ephemeral result of executing one stage. It is folded
// into job state immediately and never persisted on its own.
type StageOutcome struct {
	Stage   Stage
	Results []CheckResult
	Elapsed time.Duration
	// Faulted lists checks whose result is synthetic: they timed out,
	// returned via panic, or hit an internal error. Their results still
	// count as resolved failures.
	Faulted []string
}

// Job is the durable record of one analysis run.
type Job struct {
	ID           string        `json:"id"`
	URL          string        `json:"url"`
	Depth        int           `json:"depth"`
	Tier         Tier          `json:"tier"`
	Status       JobStatus     `json:"status"`
	Progress     int           `json:"progress"`
	OverallScore *int          `json:"overall_score,omitempty"`
	Results      []CheckResult `json:"results"`
	TotalChecks  int           `json:"total_checks_run"`
	TotalIssues  int           `json:"total_issues_found"`
	Canceled     bool          `json:"canceled,omitempty"`
	ErrorText    string        `json:"error_text,omitempty"`
	Attempt      int           `json:"attempt"`
	Submitted    time.Time     `json:"submitted_at"`
	Started      *time.Time    `json:"started_at,omitempty"`
	Finished     *time.Time    `json:"finished_at,omitempty"`
}

// PageContext carries everything checks need about the fetched target. It is
// assembled once per job run by the page-fetch collaborator and treated as
// read-only by checks.
type PageContext struct {
	URL        string
	BaseURL    string
	StatusCode int
	Headers    http.Header
	Body       []byte
	LoadTime   time.Duration
	RobotsTxt  []byte // nil when /robots.txt was absent
	LLMsTxt    bool   // /llms.txt responded 200
	Sitemap    bool   // /sitemap.xml responded 200
}

// Delivery is one leased queue message. Ack must be called exactly once,
// after the job's terminal state is durably persisted; an un-acked delivery
// is redelivered when its lease expires.
type Delivery struct {
	JobID   string
	Attempt int
	Ack     func() error
}
