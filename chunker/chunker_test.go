package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_OverlapScenario(t *testing.T) {
	text := strings.Repeat("abcdefghij", 25) // 250 runes
	spans, err := Split(text, Config{Size: 100, Overlap: 20})
	require.NoError(t, err)
	require.Len(t, spans, 3)

	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, 250, spans[len(spans)-1].End)
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		assert.Equal(t, 20, prev.End-cur.Start, "spans %d and %d overlap", i-1, i)
		assert.Equal(t, prev.Text[prev.Len()-20:], cur.Text[:20])
	}
}

func TestSplit_CoversTextWithoutGaps(t *testing.T) {
	configs := []Config{
		{Size: 1, Overlap: 0},
		{Size: 7, Overlap: 3},
		{Size: 10, Overlap: 9},
		{Size: 100, Overlap: 20},
		DefaultConfig(),
	}
	for _, n := range []int{1, 5, 10, 11, 99, 100, 101, 250, 1000, 1234} {
		text := strings.Repeat("x", n)
		for _, cfg := range configs {
			spans, err := Split(text, cfg)
			require.NoError(t, err)
			require.Len(t, spans, Count(n, cfg), "n=%d cfg=%+v", n, cfg)

			assert.Equal(t, 0, spans[0].Start)
			assert.Equal(t, n, spans[len(spans)-1].End)
			for i, s := range spans {
				assert.Equal(t, i, s.Sequence)
				assert.LessOrEqual(t, s.Len(), cfg.Size)
				assert.Equal(t, s.Len(), utf8.RuneCountInString(s.Text))
				if i > 0 {
					assert.Equal(t, cfg.Overlap, spans[i-1].End-s.Start)
				}
			}
			if len(spans) > 1 {
				assert.Greater(t, spans[len(spans)-1].Len(), cfg.Overlap)
			}
		}
	}
}

func TestSplit_ShortAndEmpty(t *testing.T) {
	spans, err := Split("", DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, spans)

	spans, err = Split("short text", DefaultConfig())
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "short text", spans[0].Text)

	exact := strings.Repeat("a", 512)
	spans, err = Split(exact, DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, spans, 1)
}

func TestSplit_CountsRunes(t *testing.T) {
	text := strings.Repeat("é☕", 10) // 20 runes, 50 bytes
	spans, err := Split(text, Config{Size: 8, Overlap: 2})
	require.NoError(t, err)
	for _, s := range spans {
		assert.True(t, utf8.ValidString(s.Text))
	}
	assert.Equal(t, 20, spans[len(spans)-1].End)
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	a, err := Split(text, DefaultConfig())
	require.NoError(t, err)
	b, err := Split(text, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"valid", Config{Size: 10, Overlap: 2}, nil},
		{"no overlap", Config{Size: 10, Overlap: 0}, nil},
		{"zero size", Config{Size: 0}, ErrInvalidSize},
		{"negative overlap", Config{Size: 10, Overlap: -1}, ErrInvalidOverlap},
		{"overlap equals size", Config{Size: 10, Overlap: 10}, ErrInvalidOverlap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)

			_, err = Split("text", tt.cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
