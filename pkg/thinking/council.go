package thinking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeready-toolchain/eap/pkg/llm"
)

// numPerspectives is the number of initial positions Council generates.
const numPerspectives = 3

// perspectiveSpec names one angle Council argues a query from.
type perspectiveSpec struct {
	name         string
	instructions string
}

var perspectiveSpecs = [numPerspectives]perspectiveSpec{
	{
		name:         "Pragmatic Approach",
		instructions: "Focus on practical implementation, quick wins, and minimal disruption. Consider cost, time, and team capacity.",
	},
	{
		name:         "Quality-First Approach",
		instructions: "Prioritize long-term quality, maintainability, and correctness. Consider technical debt and future scalability.",
	},
	{
		name:         "Risk-Aware Approach",
		instructions: "Focus on risks, failure modes, and safety. Consider what could go wrong and how to mitigate.",
	},
}

// Council runs a 3-round multi-perspective deliberation: generate diverse
// initial positions, have each critique the others, then synthesize a
// consensus that acknowledges dissent. Useful when multiple valid
// approaches exist or the tradeoffs are genuinely contested.
type Council struct {
	llm completer
}

// NewCouncil constructs a Council deliberation engine.
func NewCouncil(client completer) *Council {
	return &Council{llm: client}
}

// Deliberate runs the full 3-round process and returns the synthesized
// consensus.
func (c *Council) Deliberate(ctx context.Context, query, councilContext string) (*CouncilResult, error) {
	slog.Info("council.starting", "query_length", len(query), "context_length", len(councilContext), "num_perspectives", numPerspectives)

	perspectives := c.generatePositions(ctx, query, councilContext)
	slog.Debug("council.positions_generated", "count", len(perspectives))

	c.generateCritiques(ctx, perspectives, query, councilContext)
	slog.Debug("council.critiques_generated")

	synthesis := c.synthesize(ctx, perspectives, query)

	result := &CouncilResult{
		Perspectives:        perspectives,
		Consensus:           synthesis.Consensus,
		ConsensusConfidence: synthesis.Confidence,
		DissentingViews:     synthesis.DissentingViews,
		RequiresHumanReview: synthesis.RequiresReview,
		ReviewReason:        synthesis.ReviewReason,
	}
	slog.Info("council.complete",
		"consensus_length", len(result.Consensus),
		"confidence", result.ConsensusConfidence,
		"dissenting_count", len(result.DissentingViews),
		"requires_review", result.RequiresHumanReview,
	)
	return result, nil
}

type positionResponse struct {
	Position   string   `json:"position"`
	Arguments  []string `json:"arguments"`
	Confidence float64  `json:"confidence"`
}

// generatePositions runs round 1: one parallel LLM call per perspective.
func (c *Council) generatePositions(ctx context.Context, query, councilContext string) []Perspective {
	fns := make([]func() Perspective, numPerspectives)
	for i := range perspectiveSpecs {
		spec := perspectiveSpecs[i]
		fns[i] = func() Perspective { return c.generateOnePosition(ctx, spec, query, councilContext) }
	}
	return runParallel(fns...)
}

func (c *Council) generateOnePosition(ctx context.Context, spec perspectiveSpec, query, councilContext string) Perspective {
	prompt := fmt.Sprintf(`You are participating in a council deliberation. Take the following perspective:

Perspective: %s
Instructions: %s

Query: %s

Context: %s

From this perspective, provide your position in JSON format:
{
    "position": "Your position/recommendation from this perspective",
    "arguments": ["argument 1", "argument 2", "argument 3"],
    "confidence": 0.0-1.0
}

Provide 3-5 strong arguments supporting your perspective.
Respond ONLY with valid JSON, no additional text.`, spec.name, spec.instructions, query, truncate(councilContext, 2000))

	resp, err := c.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf("You are a council member representing the %s. Always respond with valid JSON only.", spec.name)},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.6,
		MaxTokens:   1024,
	})
	if err != nil {
		slog.Error("council.position_failed", "perspective", spec.name, "error", err)
		return Perspective{Name: spec.name, Position: fmt.Sprintf("Error generating position: %v", err)}
	}

	var parsed positionResponse
	if jsonErr := json.Unmarshal([]byte(llm.ExtractText(resp)), &parsed); jsonErr != nil {
		slog.Warn("council.position_json_failed", "perspective", spec.name)
		return Perspective{Name: spec.name, Position: "Unable to generate position (JSON parse error)", Confidence: 0.3}
	}

	return Perspective{Name: spec.name, Position: parsed.Position, Arguments: parsed.Arguments, Confidence: parsed.Confidence}
}

type critiqueResponse struct {
	Critiques []string `json:"critiques"`
}

// generateCritiques runs round 2: each perspective critiques the others in
// parallel, mutating Critiques on the shared slice in place.
func (c *Council) generateCritiques(ctx context.Context, perspectives []Perspective, query, councilContext string) {
	fns := make([]func() []string, len(perspectives))
	for i := range perspectives {
		i := i
		fns[i] = func() []string {
			others := make([]Perspective, 0, len(perspectives)-1)
			for j, p := range perspectives {
				if j != i {
					others = append(others, p)
				}
			}
			return c.generateCritiquesFor(ctx, perspectives[i], others)
		}
	}
	critiques := runParallel(fns...)
	for i := range perspectives {
		perspectives[i].Critiques = critiques[i]
	}
}

func (c *Council) generateCritiquesFor(ctx context.Context, perspective Perspective, others []Perspective) []string {
	var othersText strings.Builder
	for i, other := range others {
		if i > 0 {
			othersText.WriteString("\n\n")
		}
		fmt.Fprintf(&othersText, "Perspective: %s\nPosition: %s\nArguments: %s", other.Name, other.Position, strings.Join(other.Arguments, ", "))
	}

	prompt := fmt.Sprintf(`You are the %s in a council deliberation.
Your position is: %s

Critique the other perspectives:

%s

Provide your critiques in JSON format:
{
    "critiques": ["Critique of perspective 1...", "Critique of perspective 2..."]
}

Be constructive but identify genuine weaknesses or blind spots.
Respond ONLY with valid JSON, no additional text.`, perspective.Name, perspective.Position, othersText.String())

	resp, err := c.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf("You are a council member representing the %s. Always respond with valid JSON only.", perspective.Name)},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.5,
		MaxTokens:   1024,
	})
	if err != nil {
		slog.Error("council.critique_failed", "perspective", perspective.Name, "error", err)
		return []string{fmt.Sprintf("Error generating critiques: %v", err)}
	}

	var parsed critiqueResponse
	if jsonErr := json.Unmarshal([]byte(llm.ExtractText(resp)), &parsed); jsonErr != nil {
		slog.Warn("council.critique_json_failed", "perspective", perspective.Name)
		return []string{"Unable to generate critiques (JSON parse error)"}
	}
	return parsed.Critiques
}

type synthesisResult struct {
	Consensus       string
	Confidence      float64
	DissentingViews []string
	RequiresReview  bool
	ReviewReason    string
}

type synthesisResponse struct {
	Consensus       string   `json:"consensus"`
	Confidence      float64  `json:"confidence"`
	DissentingViews []string `json:"dissenting_views"`
	RequiresReview  bool     `json:"requires_review"`
	ReviewReason    string   `json:"review_reason"`
}

// synthesize runs round 3: one LLM call that weighs every perspective and
// its critiques into a single consensus recommendation.
func (c *Council) synthesize(ctx context.Context, perspectives []Perspective, query string) synthesisResult {
	var perspectivesText strings.Builder
	for i, p := range perspectives {
		if i > 0 {
			perspectivesText.WriteString("\n\n")
		}
		fmt.Fprintf(&perspectivesText, "Perspective: %s\nPosition: %s\nArguments: %s\nCritiques: %s\nConfidence: %.2f",
			p.Name, p.Position, strings.Join(p.Arguments, ", "), strings.Join(p.Critiques, ", "), p.Confidence)
	}

	prompt := fmt.Sprintf(`You are synthesizing a council deliberation. Multiple perspectives
have been presented and critiqued. Build a consensus recommendation.

Original query: %s

Perspectives and critiques:
%s

Provide synthesis in JSON format:
{
    "consensus": "Synthesized consensus recommendation...",
    "confidence": 0.0-1.0,
    "dissenting_views": ["View 1 that doesn't align", "View 2 that doesn't align"],
    "requires_review": true/false,
    "review_reason": "Reason if review needed, or null"
}

Guidelines:
- Find common ground across perspectives
- Acknowledge where perspectives conflict
- Include dissenting views that significantly diverge
- Flag for review if deep, unresolvable conflicts exist

Respond ONLY with valid JSON, no additional text.`, query, perspectivesText.String())

	resp, err := c.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a synthesis moderator. Always respond with valid JSON only."},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.4,
		MaxTokens:   2048,
	})
	if err != nil {
		slog.Error("council.synthesis_failed", "error", err)
		return fallbackSynthesis(perspectives, fmt.Sprintf("Synthesis failed: %v", err))
	}

	var parsed synthesisResponse
	if jsonErr := json.Unmarshal([]byte(llm.ExtractText(resp)), &parsed); jsonErr != nil {
		slog.Warn("council.synthesis_json_failed")
		return fallbackSynthesis(perspectives, "Synthesis failed, unable to parse result")
	}

	return synthesisResult{
		Consensus:       parsed.Consensus,
		Confidence:      parsed.Confidence,
		DissentingViews: parsed.DissentingViews,
		RequiresReview:  parsed.RequiresReview,
		ReviewReason:    parsed.ReviewReason,
	}
}

// fallbackSynthesis is the conservative result used when the synthesis call
// fails outright or returns unparsable JSON: every perspective becomes a
// dissenting view and review is forced, rather than guessing a consensus.
func fallbackSynthesis(perspectives []Perspective, reason string) synthesisResult {
	views := make([]string, len(perspectives))
	for i, p := range perspectives {
		views[i] = p.Position
	}
	return synthesisResult{
		Consensus:       "Unable to synthesize consensus. All perspectives should be reviewed.",
		Confidence:      0.3,
		DissentingViews: views,
		RequiresReview:  true,
		ReviewReason:    reason,
	}
}
