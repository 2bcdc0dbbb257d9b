package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contosowiki/sage/internal/store"
)

func TestChunkTracksSectionPath(t *testing.T) {
	text := "# Overview\n\nThis team owns deploys.\n\n# On-call\n\nPage the SRE rotation."
	chunks := Chunk("doc1", text, 1200, 0)

	if assert.Len(t, chunks, 2) {
		assert.Equal(t, []string{"Overview"}, chunks[0].SectionPath)
		assert.Contains(t, chunks[0].Text, "owns deploys")
		assert.Equal(t, []string{"On-call"}, chunks[1].SectionPath)
		assert.Contains(t, chunks[1].Text, "SRE rotation")
	}
}

func TestChunkSplitsLongTextAndOverlaps(t *testing.T) {
	para := strings.Repeat("alpha bravo charlie delta echo foxtrot golf ", 20)
	text := para + "\n\n" + para + "\n\n" + para
	chunks := Chunk("doc1", text, 100, 20)

	assert.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, "doc1", c.DocumentID)
	}
	if len(chunks) > 1 {
		tail := chunks[0].Text[len(chunks[0].Text)-20:]
		assert.True(t, strings.HasPrefix(chunks[1].Text, tail), "expected chunk 1 to start with chunk 0's 20-character tail")
	}
}

func TestChunkIDMatchesDocumentStoreHash(t *testing.T) {
	chunks := Chunk("doc1", "hello world", 1200, 0)
	if assert.Len(t, chunks, 1) {
		assert.Equal(t, store.ChunkID("doc1", 0), chunks[0].ID)
	}
}

func TestContentHashIsStableAndChangesWithText(t *testing.T) {
	a := ContentHash("hello world")
	b := ContentHash("hello world")
	c := ContentHash("hello there")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestChunkEmptyTextProducesNoChunks(t *testing.T) {
	assert.Empty(t, Chunk("doc1", "", 1200, 150))
	assert.Empty(t, Chunk("doc1", "   \n\n  ", 1200, 150))
}
