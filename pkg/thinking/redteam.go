package thinking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/codeready-toolchain/eap/pkg/llm"
)

// RedTeam stress-tests an agent's draft response with four parallel
// adversarial checks (factual grounding, safety omissions, confidence
// calibration, classification leakage) and one aggregation call that
// decides the overall severity and whether a human must review before the
// response goes out. A single CRITICAL finding always blocks.
type RedTeam struct {
	llm completer
}

// NewRedTeam constructs a RedTeam analyzer.
func NewRedTeam(client completer) *RedTeam {
	return &RedTeam{llm: client}
}

// Analyze runs the four adversarial checks in parallel and aggregates their
// findings. query is optional context for the safety-omissions check.
func (r *RedTeam) Analyze(ctx context.Context, response string, sources []string, clearance, query string) (*RedTeamResult, error) {
	slog.Info("red_team.starting", "response_length", len(response), "source_count", len(sources), "clearance", clearance)

	checkResults := runParallel(
		func() []AdversarialFinding { return r.checkFactualGrounding(ctx, response, sources) },
		func() []AdversarialFinding { return r.checkSafetyOmissions(ctx, response, query) },
		func() []AdversarialFinding { return r.checkConfidenceCalibration(ctx, response, sources) },
		func() []AdversarialFinding { return r.checkClassificationLeakage(ctx, response, clearance) },
	)

	var findings []AdversarialFinding
	for _, fs := range checkResults {
		findings = append(findings, fs...)
	}

	result := r.aggregateFindings(ctx, findings, response)
	slog.Info("red_team.complete",
		"finding_count", len(findings),
		"overall_severity", result.OverallSeverity,
		"requires_review", result.RequiresHumanReview,
		"confidence", result.OverallConfidence,
	)
	return result, nil
}

type findingsResponse struct {
	Findings []rawFinding `json:"findings"`
}

type rawFinding struct {
	Severity       string   `json:"severity"`
	Description    string   `json:"description"`
	Evidence       []string `json:"evidence"`
	Recommendation string   `json:"recommendation"`
}

// runCheck executes one adversarial check: call the LLM with prompt, parse
// its {"findings": [...]} response, and tag every finding with category. A
// failed call degrades to a single HIGH-severity "system_error" finding
// rather than aborting analysis; an unparsable response is logged and
// contributes no findings.
func (r *RedTeam) runCheck(ctx context.Context, category, systemPrompt, prompt string) []AdversarialFinding {
	resp, err := r.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		slog.Error("red_team.check_failed", "category", category, "error", err)
		return []AdversarialFinding{{
			Category:       "system_error",
			Severity:       SeverityHigh,
			Description:    fmt.Sprintf("Red team check failed: %v", err),
			Recommendation: "Retry analysis or escalate to human review",
		}}
	}

	var parsed findingsResponse
	if err := json.Unmarshal([]byte(llm.ExtractText(resp)), &parsed); err != nil {
		slog.Warn("red_team.check_json_failed", "category", category, "error", err)
		return nil
	}

	findings := make([]AdversarialFinding, 0, len(parsed.Findings))
	for _, f := range parsed.Findings {
		findings = append(findings, AdversarialFinding{
			Category:       category,
			Severity:       Severity(f.Severity),
			Description:    f.Description,
			Evidence:       f.Evidence,
			Recommendation: f.Recommendation,
		})
	}
	return findings
}

func (r *RedTeam) checkFactualGrounding(ctx context.Context, response string, sources []string) []AdversarialFinding {
	limited := sources
	if len(limited) > 5 {
		limited = limited[:5]
	}
	sourcesText := "No sources provided"
	if len(limited) > 0 {
		sourcesText = truncate(strings.Join(limited, "\n\n"), 3000)
	}

	prompt := fmt.Sprintf(`You are a fact-checking adversarial reviewer. Check if the response
contradicts or misrepresents the source documents.

Response to check:
%s

Source documents:
%s

Identify factual grounding issues:
1. Statements that contradict sources
2. Claims not supported by sources
3. Misrepresentation of source content
4. Hallucinated facts not in sources

Respond in JSON format:
{
    "findings": [
        {
            "severity": "critical|high|medium|low",
            "description": "Description of the issue",
            "evidence": ["quote from response", "relevant source quote"],
            "recommendation": "How to fix this"
        }
    ]
}

If no issues found, return {"findings": []}.
Respond ONLY with valid JSON, no additional text.`, response, sourcesText)

	return r.runCheck(ctx, "factual", "You are a fact-checking assistant. Always respond with valid JSON only.", prompt)
}

func (r *RedTeam) checkSafetyOmissions(ctx context.Context, response, query string) []AdversarialFinding {
	prompt := fmt.Sprintf(`You are a safety reviewer. Check if the response omits warnings or
safety information that a hazardous operation requires.

Original query: %s

Response to check:
%s

Identify safety omission issues:
1. Missing warnings for hazardous or irreversible operations
2. Missing prerequisites or preconditions
3. Missing rollback or mitigation guidance

Respond in JSON format:
{
    "findings": [
        {
            "severity": "critical|high|medium|low",
            "description": "Description of the issue",
            "evidence": ["relevant quote from response"],
            "recommendation": "How to fix this"
        }
    ]
}

If no issues found, return {"findings": []}.
Respond ONLY with valid JSON, no additional text.`, query, response)

	return r.runCheck(ctx, "safety", "You are a safety review assistant. Always respond with valid JSON only.", prompt)
}

func (r *RedTeam) checkConfidenceCalibration(ctx context.Context, response string, sources []string) []AdversarialFinding {
	prompt := fmt.Sprintf(`You are reviewing a response for overconfidence. The response cites %d
source document(s). Check if its confident claims are actually backed by evidence.

Response to check:
%s

Identify confidence calibration issues:
1. Strong claims stated without hedging that aren't fully supported
2. Absolute language ("always", "never", "guaranteed") without evidence
3. Missing uncertainty disclosure where evidence is thin

Respond in JSON format:
{
    "findings": [
        {
            "severity": "critical|high|medium|low",
            "description": "Description of the issue",
            "evidence": ["overconfident quote from response"],
            "recommendation": "How to fix this"
        }
    ]
}

If no issues found, return {"findings": []}.
Respond ONLY with valid JSON, no additional text.`, len(sources), response)

	return r.runCheck(ctx, "confidence", "You are a calibration review assistant. Always respond with valid JSON only.", prompt)
}

func (r *RedTeam) checkClassificationLeakage(ctx context.Context, response, clearance string) []AdversarialFinding {
	prompt := fmt.Sprintf(`You are a classification reviewer. The requesting user holds clearance
level %q. Check if the response discloses information that exceeds that clearance.

Response to check:
%s

Identify classification leakage issues:
1. Information that requires a higher clearance than the user holds
2. Details that should have been redacted or summarized instead of quoted
3. Aggregation of lower-classification facts into a higher-classification whole

Respond in JSON format:
{
    "findings": [
        {
            "severity": "critical|high|medium|low",
            "description": "Description of the issue",
            "evidence": ["quote from response that leaks"],
            "recommendation": "How to fix this"
        }
    ]
}

If no issues found, return {"findings": []}.
Respond ONLY with valid JSON, no additional text.`, clearance, response)

	return r.runCheck(ctx, "classification", "You are a classification review assistant. Always respond with valid JSON only.", prompt)
}

type aggregationResponse struct {
	RequiresHumanReview bool    `json:"requires_human_review"`
	OverallConfidence   float64 `json:"overall_confidence"`
	ReviewReason        string  `json:"review_reason"`
}

// aggregateFindings decides the overall outcome. Any CRITICAL finding
// short-circuits straight to a forced review at low confidence, without
// spending an LLM call on it; everything else goes through one aggregation
// call to weigh severity and volume together.
func (r *RedTeam) aggregateFindings(ctx context.Context, findings []AdversarialFinding, response string) *RedTeamResult {
	if len(findings) == 0 {
		return &RedTeamResult{OverallSeverity: SeverityLow, OverallConfidence: 1.0}
	}

	sorted := make([]AdversarialFinding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return severityRank[sorted[i].Severity] > severityRank[sorted[j].Severity]
	})
	overallSeverity := sorted[0].Severity

	var critical []string
	for _, f := range findings {
		if f.Severity == SeverityCritical {
			critical = append(critical, f.Category)
		}
	}
	if len(critical) > 0 {
		return &RedTeamResult{
			Findings:            sorted,
			OverallSeverity:     SeverityCritical,
			RequiresHumanReview: true,
			OverallConfidence:   0.2,
			ReviewReason:        "CRITICAL issues found: " + strings.Join(critical, ", "),
		}
	}

	var summary strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&summary, "- [%s] %s: %s\n", strings.ToUpper(string(f.Severity)), f.Category, f.Description)
	}

	prompt := fmt.Sprintf(`You are aggregating adversarial analysis findings. Given the findings,
determine if the response should be sent or requires human review.

Findings:
%s
Response length: %d chars

Provide aggregation in JSON format:
{
    "requires_human_review": true/false,
    "overall_confidence": 0.0-1.0,
    "review_reason": "Reason if review needed, or null"
}

Guidelines:
- HIGH severity: Usually requires review
- Multiple MEDIUM: May require review
- Single MEDIUM or LOW: Usually safe to send

Respond ONLY with valid JSON, no additional text.`, summary.String(), len(response))

	resp, err := r.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are an aggregation assistant. Always respond with valid JSON only."},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err == nil {
		var agg aggregationResponse
		if jsonErr := json.Unmarshal([]byte(llm.ExtractText(resp)), &agg); jsonErr == nil {
			return &RedTeamResult{
				Findings:            sorted,
				OverallSeverity:     overallSeverity,
				RequiresHumanReview: agg.RequiresHumanReview,
				OverallConfidence:   agg.OverallConfidence,
				ReviewReason:        agg.ReviewReason,
			}
		}
	}

	slog.Warn("red_team.aggregation_failed", "error", err)
	var highFindings []AdversarialFinding
	for _, f := range findings {
		if f.Severity == SeverityHigh {
			highFindings = append(highFindings, f)
		}
	}
	result := &RedTeamResult{Findings: sorted, OverallSeverity: overallSeverity}
	if len(highFindings) > 0 {
		result.RequiresHumanReview = true
		result.OverallConfidence = 0.6
		result.ReviewReason = "HIGH severity findings detected (aggregation failed)"
	} else {
		result.OverallConfidence = 0.8
	}
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
