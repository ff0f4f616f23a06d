package thinking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeready-toolchain/eap/pkg/llm"
)

// maxDecompositionDepth bounds how many levels of "why?" FirstPrinciples
// will ask before forcing a fundamental answer.
const maxDecompositionDepth = 4

// maxBranches bounds how many sub-questions a single node may spawn.
const maxBranches = 3

// FirstPrinciples recursively decomposes a query into fundamental truths by
// repeatedly asking "why?" and challenging assumptions, then reconstructs
// an answer bottom-up from whatever it reaches bedrock on. Bounded by
// maxDecompositionDepth and maxBranches so a degenerate LLM response can't
// make the recursion runaway.
type FirstPrinciples struct {
	llm completer
}

// NewFirstPrinciples constructs a FirstPrinciples decomposition engine.
func NewFirstPrinciples(client completer) *FirstPrinciples {
	return &FirstPrinciples{llm: client}
}

// Decompose builds the decomposition tree for query and synthesizes a
// bottom-up answer from its fundamental truths.
func (f *FirstPrinciples) Decompose(ctx context.Context, query, fpContext string) (*FirstPrinciplesResult, error) {
	slog.Info("first_principles.starting", "query_length", len(query), "context_length", len(fpContext), "max_depth", maxDecompositionDepth)

	root := f.decomposeRecursive(ctx, query, fpContext, 0)
	fundamentals := collectLeafNodes(root)

	slog.Debug("first_principles.decomposed", "fundamental_count", len(fundamentals))

	synthesis := f.synthesizeFromFundamentals(ctx, fundamentals, query)

	result := &FirstPrinciplesResult{
		Root:                     root,
		FundamentalTruths:        fundamentals,
		Reconstruction:           synthesis.Reconstruction,
		ReconstructionConfidence: synthesis.Confidence,
		RequiresHumanReview:      synthesis.RequiresReview,
		ReviewReason:             synthesis.ReviewReason,
	}
	slog.Info("first_principles.complete",
		"fundamental_count", len(fundamentals),
		"confidence", result.ReconstructionConfidence,
		"requires_review", result.RequiresHumanReview,
	)
	return result, nil
}

type decompositionStepResponse struct {
	Answer        string   `json:"answer"`
	IsFundamental bool     `json:"is_fundamental"`
	Assumptions   []string `json:"assumptions"`
	SubQuestions  []string `json:"sub_questions"`
}

// decomposeRecursive builds one node of the tree, recursing into its
// sub-questions up to maxBranches until depth reaches maxDecompositionDepth
// or the LLM reports the question is already fundamental.
func (f *FirstPrinciples) decomposeRecursive(ctx context.Context, question, fpContext string, depth int) *PrincipleNode {
	if depth >= maxDecompositionDepth {
		slog.Debug("first_principles.max_depth_reached", "depth", depth)
		return &PrincipleNode{
			Question:      question,
			Answer:        f.getFundamentalAnswer(ctx, question, fpContext),
			Depth:         depth,
			IsFundamental: true,
		}
	}

	prompt := fmt.Sprintf(`You are applying first principles thinking. Decompose the following
question into fundamental sub-questions by asking "why?" and "what assumptions are we making?"

Question: %s

Context: %s

Depth: %d/%d

Provide your decomposition in JSON format:
{
    "answer": "Brief answer to this question",
    "is_fundamental": true/false,
    "assumptions": ["assumption 1", "assumption 2"],
    "sub_questions": ["why sub-question 1?", "why sub-question 2?"]
}

Guidelines:
- If this is a fundamental truth that can't be decomposed further, set is_fundamental=true
- Include up to %d sub-questions that probe deeper
- Identify key assumptions being made
- Sub-questions should ask "why?" or challenge assumptions

Respond ONLY with valid JSON, no additional text.`, question, truncate(fpContext, 1500), depth, maxDecompositionDepth, maxBranches)

	resp, err := f.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a first principles thinking assistant. Always respond with valid JSON only."},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.4,
		MaxTokens:   1024,
	})
	if err != nil {
		slog.Error("first_principles.decompose_failed", "depth", depth, "error", err)
		return &PrincipleNode{
			Question:      question,
			Answer:        fmt.Sprintf("Error during decomposition: %v", err),
			Depth:         depth,
			IsFundamental: true,
			Assumptions:   []string{"Error occurred"},
		}
	}

	var parsed decompositionStepResponse
	if jsonErr := json.Unmarshal([]byte(llm.ExtractText(resp)), &parsed); jsonErr != nil {
		slog.Warn("first_principles.decompose_json_failed", "depth", depth)
		return &PrincipleNode{
			Question:      question,
			Answer:        "Unable to decompose (JSON parse error)",
			Depth:         depth,
			IsFundamental: true,
			Assumptions:   []string{"Decomposition failed"},
		}
	}

	node := &PrincipleNode{
		Question:      question,
		Answer:        parsed.Answer,
		Depth:         depth,
		IsFundamental: parsed.IsFundamental,
		Assumptions:   parsed.Assumptions,
	}
	if parsed.IsFundamental || len(parsed.SubQuestions) == 0 {
		return node
	}

	subQuestions := parsed.SubQuestions
	if len(subQuestions) > maxBranches {
		subQuestions = subQuestions[:maxBranches]
	}
	for _, subQ := range subQuestions {
		node.Children = append(node.Children, f.decomposeRecursive(ctx, subQ, fpContext, depth+1))
	}
	return node
}

func (f *FirstPrinciples) getFundamentalAnswer(ctx context.Context, question, fpContext string) string {
	prompt := fmt.Sprintf(`Provide a fundamental, foundational answer to this question.
This should be a truth that doesn't require further decomposition.

Question: %s

Context: %s

Respond with a concise, direct answer (2-3 sentences). No JSON, just the answer text.`, question, truncate(fpContext, 1000))

	resp, err := f.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   256,
	})
	if err != nil {
		slog.Error("first_principles.fundamental_answer_failed", "error", err)
		return fmt.Sprintf("Unable to determine fundamental answer: %v", err)
	}
	return llm.ExtractText(resp)
}

// collectLeafNodes walks the tree depth-first and returns every node with
// no children - the fundamental truths the reconstruction reasons from.
func collectLeafNodes(root *PrincipleNode) []*PrincipleNode {
	var leaves []*PrincipleNode
	var traverse func(*PrincipleNode)
	traverse = func(node *PrincipleNode) {
		if len(node.Children) == 0 {
			leaves = append(leaves, node)
			return
		}
		for _, child := range node.Children {
			traverse(child)
		}
	}
	traverse(root)
	return leaves
}

type fpSynthesisResult struct {
	Reconstruction string
	Confidence     float64
	RequiresReview bool
	ReviewReason   string
}

type fpSynthesisResponse struct {
	Reconstruction string  `json:"reconstruction"`
	Confidence     float64 `json:"confidence"`
	RequiresReview bool    `json:"requires_review"`
	ReviewReason   string  `json:"review_reason"`
}

// synthesizeFromFundamentals builds the bottom-up answer to originalQuery
// from the collected fundamental truths.
func (f *FirstPrinciples) synthesizeFromFundamentals(ctx context.Context, fundamentals []*PrincipleNode, originalQuery string) fpSynthesisResult {
	if len(fundamentals) == 0 {
		return fpSynthesisResult{
			Reconstruction: "No fundamental principles identified",
			RequiresReview: true,
			ReviewReason:   "Decomposition produced no fundamental truths",
		}
	}

	var fundamentalsText, assumptionsText strings.Builder
	for i, n := range fundamentals {
		if i > 0 {
			fundamentalsText.WriteString("\n")
		}
		fmt.Fprintf(&fundamentalsText, "- [Depth %d] %s\n  Answer: %s", n.Depth, n.Question, n.Answer)
		for _, a := range n.Assumptions {
			if assumptionsText.Len() > 0 {
				assumptionsText.WriteString("\n")
			}
			fmt.Fprintf(&assumptionsText, "- %s", a)
		}
	}
	assumptions := assumptionsText.String()
	if assumptions == "" {
		assumptions = "None"
	}

	prompt := fmt.Sprintf(`You have decomposed a query into fundamental principles. Now synthesize
a coherent answer from the bottom up, starting from these fundamentals.

Original query: %s

Fundamental principles discovered:
%s

Key assumptions challenged:
%s

Build your answer from first principles. Start with the fundamental truths and
reason upward to answer the original query.

Respond in JSON format:
{
    "reconstruction": "Your answer built from first principles...",
    "confidence": 0.0-1.0,
    "requires_review": true/false,
    "review_reason": "Reason if review needed, or null"
}

Guidelines:
- Base reasoning on fundamental truths, not assumptions
- Acknowledge where assumptions were challenged
- Flag for review if fundamentals reveal questionable assumptions

Respond ONLY with valid JSON, no additional text.`, originalQuery, fundamentalsText.String(), assumptions)

	resp, err := f.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a synthesis assistant. Always respond with valid JSON only."},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.4,
		MaxTokens:   2048,
	})
	if err != nil {
		slog.Error("first_principles.synthesis_failed", "error", err)
		return fpSynthesisResult{
			Reconstruction: fmt.Sprintf("Synthesis error: %v", err),
			RequiresReview: true,
			ReviewReason:   fmt.Sprintf("Synthesis failed: %v", err),
		}
	}

	var parsed fpSynthesisResponse
	if jsonErr := json.Unmarshal([]byte(llm.ExtractText(resp)), &parsed); jsonErr != nil {
		slog.Warn("first_principles.synthesis_json_failed")
		return fpSynthesisResult{
			Reconstruction: "Unable to synthesize from fundamentals (JSON parse error)",
			Confidence:     0.3,
			RequiresReview: true,
			ReviewReason:   "Synthesis failed, unable to parse result",
		}
	}

	return fpSynthesisResult{
		Reconstruction: parsed.Reconstruction,
		Confidence:     parsed.Confidence,
		RequiresReview: parsed.RequiresReview,
		ReviewReason:   parsed.ReviewReason,
	}
}
