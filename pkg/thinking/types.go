// Package thinking implements the meta-cognitive reasoning tools agents can
// invoke before returning a response: RedTeam (adversarial stress-test),
// Council (multi-perspective deliberation), and FirstPrinciples (recursive
// "why?" decomposition). Each tool makes its own LLM calls and returns a
// result carrying a confidence score and a human-review flag; callers
// aggregate across whichever tools they invoked via ThinkingToolOutput.
package thinking

import (
	"context"

	"github.com/codeready-toolchain/eap/pkg/llm"
)

// completer is the narrow LLM surface every thinking tool needs, kept as an
// interface so tests can substitute a fake rather than a live client.
type completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Severity ranks an AdversarialFinding from informational to blocking.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
}

// AdversarialFinding is a single issue surfaced by one of RedTeam's checks.
type AdversarialFinding struct {
	Category       string
	Severity       Severity
	Description    string
	Evidence       []string
	Recommendation string
}

// RedTeamResult is the complete outcome of adversarial analysis.
type RedTeamResult struct {
	Findings            []AdversarialFinding
	OverallSeverity     Severity
	RequiresHumanReview bool
	OverallConfidence   float64
	ReviewReason        string
}

// Perspective is one viewpoint generated and critiqued during a Council
// deliberation.
type Perspective struct {
	Name       string
	Position   string
	Arguments  []string
	Critiques  []string
	Confidence float64
}

// CouncilResult is the complete outcome of a Council deliberation.
type CouncilResult struct {
	Perspectives        []Perspective
	Consensus           string
	ConsensusConfidence float64
	DissentingViews     []string
	RequiresHumanReview bool
	ReviewReason        string
}

// PrincipleNode is one question/answer pair in a FirstPrinciples
// decomposition tree. A node with no Children is a fundamental truth.
type PrincipleNode struct {
	Question      string
	Answer        string
	Depth         int
	IsFundamental bool
	Children      []*PrincipleNode
	Assumptions   []string
}

// FirstPrinciplesResult is the complete outcome of a FirstPrinciples
// decomposition.
type FirstPrinciplesResult struct {
	Root                     *PrincipleNode
	FundamentalTruths        []*PrincipleNode
	Reconstruction           string
	ReconstructionConfidence float64
	RequiresHumanReview      bool
	ReviewReason             string
}

// ThinkingToolOutput bundles whichever thinking tools a caller invoked into
// a single structure it can inspect for an escalation decision.
type ThinkingToolOutput struct {
	RedTeam         *RedTeamResult
	Council         *CouncilResult
	FirstPrinciples *FirstPrinciplesResult
}

// AnyInvoked reports whether at least one thinking tool ran.
func (o ThinkingToolOutput) AnyInvoked() bool {
	return o.RedTeam != nil || o.Council != nil || o.FirstPrinciples != nil
}

// RequiresHumanReview reports whether any invoked tool flagged for
// escalation. This is the primary gate: any single CRITICAL finding or deep
// conflict blocks the response regardless of what the other tools found.
func (o ThinkingToolOutput) RequiresHumanReview() bool {
	if o.RedTeam != nil && o.RedTeam.RequiresHumanReview {
		return true
	}
	if o.Council != nil && o.Council.RequiresHumanReview {
		return true
	}
	if o.FirstPrinciples != nil && o.FirstPrinciples.RequiresHumanReview {
		return true
	}
	return false
}

// AdjustedConfidence is the minimum confidence across all invoked tools
// (most conservative), or 1.0 if none were invoked.
func (o ThinkingToolOutput) AdjustedConfidence() float64 {
	confidence := 1.0
	seen := false
	consider := func(c float64) {
		if !seen || c < confidence {
			confidence = c
		}
		seen = true
	}
	if o.RedTeam != nil {
		consider(o.RedTeam.OverallConfidence)
	}
	if o.Council != nil {
		consider(o.Council.ConsensusConfidence)
	}
	if o.FirstPrinciples != nil {
		consider(o.FirstPrinciples.ReconstructionConfidence)
	}
	return confidence
}
