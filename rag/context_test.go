package rag

import (
	"strings"
	"testing"

	"github.com/poiesic/digest/core"
	"github.com/stretchr/testify/assert"
)

func matches(texts ...string) []*core.ChunkMatch {
	out := make([]*core.ChunkMatch, len(texts))
	for i, text := range texts {
		out[i] = &core.ChunkMatch{Chunk: &core.Chunk{Sequence: i, Text: text}, Score: 1 - float32(i)/10}
	}
	return out
}

func TestAssembleContext_RankOrder(t *testing.T) {
	ms := matches("third in text", "first in text")
	ctx, used := AssembleContext(ms, 1000)
	assert.Equal(t, "third in text"+ContextSeparator+"first in text", ctx)
	assert.Len(t, used, 2)
}

func TestAssembleContext_DropsLowestRankedFirst(t *testing.T) {
	ms := matches(strings.Repeat("a", 10), strings.Repeat("b", 10), strings.Repeat("c", 10))
	sep := len(ContextSeparator)

	ctx, used := AssembleContext(ms, 20+sep)
	assert.Len(t, used, 2)
	assert.Equal(t, 20+sep, len(ctx))
	assert.NotContains(t, ctx, "c")

	_, used = AssembleContext(ms, 20+sep-1)
	assert.Len(t, used, 1)
}

func TestAssembleContext_TruncatesOversizedTopChunk(t *testing.T) {
	ms := matches(strings.Repeat("é", 50), "short")
	ctx, used := AssembleContext(ms, 20)
	assert.Len(t, used, 1)
	assert.Equal(t, strings.Repeat("é", 20), ctx)
}

func TestAssembleContext_Empty(t *testing.T) {
	ctx, used := AssembleContext(nil, 100)
	assert.Empty(t, ctx)
	assert.Empty(t, used)

	ctx, used = AssembleContext(matches("x"), 0)
	assert.Empty(t, ctx)
	assert.Empty(t, used)
}
