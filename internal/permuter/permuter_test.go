package permuter

import (
	"context"
	"testing"

	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldOutput_StrictImprovement(t *testing.T) {
	p := New(0, "d", "f", "f", nil, nil, nil, Policy{}, nil, 100)
	out, cls := p.ShouldOutput(evalproto.CandidateResult{Score: 50})
	assert.True(t, out)
	assert.Equal(t, ImprovementStrictBest, cls)
	assert.Equal(t, 50, p.BestScore())
}

func TestShouldOutput_Tie(t *testing.T) {
	p := New(0, "d", "f", "f", nil, nil, nil, Policy{}, nil, 100)
	out, cls := p.ShouldOutput(evalproto.CandidateResult{Score: 100})
	assert.True(t, out)
	assert.Equal(t, ImprovementTieBest, cls)
}

func TestShouldOutput_TieSameHash(t *testing.T) {
	p := New(0, "d", "f", "f", nil, nil, nil, Policy{}, nil, 100)
	_, _ = p.ShouldOutput(evalproto.CandidateResult{Score: 50, Hash: "aaa"})
	out, cls := p.ShouldOutput(evalproto.CandidateResult{Score: 50, Hash: "aaa"})
	assert.True(t, out)
	assert.Equal(t, ImprovementTieBest, cls)
}

func TestShouldOutput_SameScoreDifferentAsm(t *testing.T) {
	p := New(0, "d", "f", "f", nil, nil, nil, Policy{}, nil, 100)
	_, _ = p.ShouldOutput(evalproto.CandidateResult{Score: 50, Hash: "aaa"})
	out, cls := p.ShouldOutput(evalproto.CandidateResult{Score: 50, Hash: "bbb"})
	assert.True(t, out)
	assert.Equal(t, ImprovementSameScoreDifferentAsm, cls)
}

func TestShouldOutput_NotImproving(t *testing.T) {
	p := New(0, "d", "f", "f", nil, nil, nil, Policy{}, nil, 100)
	out, cls := p.ShouldOutput(evalproto.CandidateResult{Score: 150})
	assert.False(t, out)
	assert.Equal(t, ImprovementNone, cls)
	assert.Equal(t, 100, p.BestScore())
}

func TestShouldOutput_Penalty(t *testing.T) {
	p := New(0, "d", "f", "f", nil, nil, nil, Policy{}, nil, 100)
	out, _ := p.ShouldOutput(evalproto.CandidateResult{Score: evalproto.PenaltyInf})
	assert.False(t, out)
	assert.Equal(t, 100, p.BestScore())
}

func TestShouldOutput_NeedAllSources(t *testing.T) {
	p := New(0, "d", "f", "f", nil, nil, nil, Policy{NeedAllSources: true}, nil, 100)
	out, _ := p.ShouldOutput(evalproto.CandidateResult{Score: 200})
	assert.True(t, out)
	// NeedAllSources never raises best_score for a worse result.
	assert.Equal(t, 100, p.BestScore())
}

func TestBestScore_MonotonicallyNonIncreasing(t *testing.T) {
	p := New(0, "d", "f", "f", nil, nil, nil, Policy{}, nil, 100)
	scores := []int{90, 95, 80, 80, 100, 70}
	prev := p.BestScore()
	for _, s := range scores {
		p.ShouldOutput(evalproto.CandidateResult{Score: s})
		cur := p.BestScore()
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Equal(t, 70, p.BestScore())
}

func TestEvaluate_PropagatesEvalSourceError(t *testing.T) {
	p := New(0, "d", "f", "f", []byte("base"), nil, nil, Policy{}, nil, 100)
	res := p.Evaluate(context.Background(), evalproto.Seed{RNG: 1}, nil, func([]byte, evalproto.Seed) (string, error) {
		return "", assertErr{}
	})
	require.True(t, res.IsError())
	assert.Equal(t, int64(1), res.Err.Seed.RNG)
}

type assertErr struct{}

func (assertErr) Error() string { return "permute failed" }
