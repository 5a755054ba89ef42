package scorer

import (
	"context"
	"testing"

	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/stretchr/testify/assert"
)

func TestStub_ByteDistance(t *testing.T) {
	s := &Stub{}
	score, hash, err := s.Score(context.Background(), []byte("aaaa"), []byte("abaa"))
	assert.NoError(t, err)
	assert.Equal(t, 1, score)
	assert.NotEmpty(t, hash)
}

func TestStub_FixedScore(t *testing.T) {
	fixed := 0
	s := &Stub{FixedScore: &fixed}
	score, _, err := s.Score(context.Background(), []byte("x"), []byte("y"))
	assert.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestStub_DefaultsToPenalty(t *testing.T) {
	s := &Stub{DefaultsToPenalty: true}
	score, _, err := s.Score(context.Background(), nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, evalproto.PenaltyInf, score)
}

func TestHashBytes_Deterministic(t *testing.T) {
	s := &Stub{}
	_, h1, _ := s.Score(context.Background(), []byte("same"), nil)
	_, h2, _ := s.Score(context.Background(), []byte("same"), nil)
	assert.Equal(t, h1, h2)
}
