package thinking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/eap/pkg/llm"
)

// fakeCompleter returns canned responses keyed by call order, or via a
// custom responder function when set. Safe for concurrent use since every
// thinking tool fans calls out across goroutines.
type fakeCompleter struct {
	mu        sync.Mutex
	calls     int32
	responder func(callIndex int, req llm.Request) (*llm.Response, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	idx := int(atomic.AddInt32(&f.calls, 1)) - 1
	f.mu.Lock()
	responder := f.responder
	f.mu.Unlock()
	return responder(idx, req)
}

func jsonResponse(body string) (*llm.Response, error) {
	return &llm.Response{Content: body}, nil
}

func TestRedTeam_NoFindings_LowSeverityNoReview(t *testing.T) {
	fake := &fakeCompleter{responder: func(idx int, req llm.Request) (*llm.Response, error) {
		return jsonResponse(`{"findings": []}`)
	}}
	rt := NewRedTeam(fake)

	result, err := rt.Analyze(context.Background(), "draft response", []string{"doc1"}, "class_i", "original query")
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
	assert.Equal(t, SeverityLow, result.OverallSeverity)
	assert.False(t, result.RequiresHumanReview)
	assert.Equal(t, 1.0, result.OverallConfidence)
}

func TestRedTeam_CriticalFinding_ForcesReview(t *testing.T) {
	fake := &fakeCompleter{responder: func(idx int, req llm.Request) (*llm.Response, error) {
		if idx == 0 {
			return jsonResponse(`{"findings": [{"severity": "critical", "description": "contradicts source", "evidence": ["x"], "recommendation": "fix it"}]}`)
		}
		return jsonResponse(`{"findings": []}`)
	}}
	rt := NewRedTeam(fake)

	result, err := rt.Analyze(context.Background(), "draft response", nil, "class_i", "")
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, result.OverallSeverity)
	assert.True(t, result.RequiresHumanReview)
	assert.Equal(t, 0.2, result.OverallConfidence)
	assert.Contains(t, result.ReviewReason, "CRITICAL")
}

func TestRedTeam_CheckFailure_DegradesToHighFinding(t *testing.T) {
	fake := &fakeCompleter{responder: func(idx int, req llm.Request) (*llm.Response, error) {
		if idx == 0 {
			return nil, assert.AnError
		}
		return jsonResponse(`{"findings": []}`)
	}}
	rt := NewRedTeam(fake)

	result, err := rt.Analyze(context.Background(), "draft", nil, "class_i", "")
	require.NoError(t, err)
	var sawSystemError bool
	for _, f := range result.Findings {
		if f.Category == "system_error" {
			sawSystemError = true
		}
	}
	assert.True(t, sawSystemError)
}

func TestCouncil_Deliberate_SynthesizesConsensus(t *testing.T) {
	fake := &fakeCompleter{responder: func(idx int, req llm.Request) (*llm.Response, error) {
		switch {
		case idx < numPerspectives:
			return jsonResponse(`{"position": "do it carefully", "arguments": ["a1", "a2"], "confidence": 0.7}`)
		case idx < numPerspectives*2:
			return jsonResponse(`{"critiques": ["too slow"]}`)
		default:
			return jsonResponse(`{"consensus": "proceed with caution", "confidence": 0.75, "dissenting_views": [], "requires_review": false, "review_reason": null}`)
		}
	}}
	c := NewCouncil(fake)

	result, err := c.Deliberate(context.Background(), "should we migrate?", "current state")
	require.NoError(t, err)
	assert.Len(t, result.Perspectives, numPerspectives)
	assert.Equal(t, "proceed with caution", result.Consensus)
	assert.Equal(t, 0.75, result.ConsensusConfidence)
	assert.False(t, result.RequiresHumanReview)
	for _, p := range result.Perspectives {
		assert.Equal(t, []string{"too slow"}, p.Critiques)
	}
}

func TestCouncil_SynthesisFailure_FallsBackToForcedReview(t *testing.T) {
	fake := &fakeCompleter{responder: func(idx int, req llm.Request) (*llm.Response, error) {
		switch {
		case idx < numPerspectives:
			return jsonResponse(`{"position": "pos", "arguments": [], "confidence": 0.5}`)
		case idx < numPerspectives*2:
			return jsonResponse(`{"critiques": []}`)
		default:
			return jsonResponse(`not valid json`)
		}
	}}
	c := NewCouncil(fake)

	result, err := c.Deliberate(context.Background(), "query", "context")
	require.NoError(t, err)
	assert.True(t, result.RequiresHumanReview)
	assert.Len(t, result.DissentingViews, numPerspectives)
}

func TestFirstPrinciples_Decompose_StopsAtFundamental(t *testing.T) {
	fake := &fakeCompleter{responder: func(idx int, req llm.Request) (*llm.Response, error) {
		return jsonResponse(`{"answer": "because physics", "is_fundamental": true, "assumptions": ["gravity exists"], "sub_questions": []}`)
	}}
	fp := NewFirstPrinciples(fake)

	result, err := fp.Decompose(context.Background(), "why does the bridge need supports?", "engineering context")
	require.NoError(t, err)
	require.Len(t, result.FundamentalTruths, 1)
	assert.Equal(t, 0, result.FundamentalTruths[0].Depth)
	assert.True(t, result.Root.IsFundamental)
}

func TestFirstPrinciples_Decompose_RecursesWithinBranchLimit(t *testing.T) {
	fake := &fakeCompleter{responder: func(idx int, req llm.Request) (*llm.Response, error) {
		if idx == 0 {
			return jsonResponse(`{"answer": "top", "is_fundamental": false, "assumptions": [], "sub_questions": ["q1", "q2", "q3", "q4"]}`)
		}
		return jsonResponse(`{"answer": "leaf", "is_fundamental": true, "assumptions": [], "sub_questions": []}`)
	}}
	fp := NewFirstPrinciples(fake)

	result, err := fp.Decompose(context.Background(), "top question", "ctx")
	require.NoError(t, err)
	assert.Len(t, result.Root.Children, maxBranches)
	assert.Len(t, result.FundamentalTruths, maxBranches)
}

func TestFirstPrinciples_NoFundamentals_ForcesReview(t *testing.T) {
	synth := synthesizeEmptyFundamentals(t)
	assert.True(t, synth.RequiresReview)
}

func synthesizeEmptyFundamentals(t *testing.T) fpSynthesisResult {
	t.Helper()
	fp := NewFirstPrinciples(&fakeCompleter{})
	return fp.synthesizeFromFundamentals(context.Background(), nil, "query")
}

func TestThinkingToolOutput_AdjustedConfidence_TakesMinimum(t *testing.T) {
	output := ThinkingToolOutput{
		RedTeam: &RedTeamResult{OverallConfidence: 0.9},
		Council: &CouncilResult{ConsensusConfidence: 0.4},
	}
	assert.Equal(t, 0.4, output.AdjustedConfidence())
	assert.True(t, output.AnyInvoked())
}

func TestThinkingToolOutput_EmptyOutput_FullConfidenceNoReview(t *testing.T) {
	var output ThinkingToolOutput
	assert.False(t, output.AnyInvoked())
	assert.False(t, output.RequiresHumanReview())
	assert.Equal(t, 1.0, output.AdjustedConfidence())
}
