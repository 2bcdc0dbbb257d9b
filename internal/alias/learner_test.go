package alias

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationalPairsFindsParentheticalAndAka(t *testing.T) {
	pairs := ConversationalPairs("The SRE group (Stallions) owns paging, aka the on-call rotation.")
	require.NotEmpty(t, pairs)

	var flat [][2]string
	flat = append(flat, pairs...)
	found := false
	for _, p := range flat {
		if p[0] == "The SRE group" && p[1] == "Stallions" {
			found = true
		}
	}
	assert.True(t, found, "expected the parenthetical pair, got %v", flat)

	foundAka := false
	for _, p := range flat {
		if p[0] == "owns paging" && p[1] == "the on-call rotation" {
			foundAka = true
		}
	}
	assert.True(t, foundAka, "expected the aka pair, got %v", flat)
}

func TestConversationalPairsEmptyForPlainText(t *testing.T) {
	assert.Empty(t, ConversationalPairs("nothing interesting in this sentence"))
}

func TestLearnFromTurnWithoutQueueIsNoOp(t *testing.T) {
	var l *Learner
	l.LearnFromTurn(context.Background(), "SRE (Stallions)")
	NewLearner(nil).LearnFromTurn(context.Background(), "SRE (Stallions)")
}
