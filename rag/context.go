package rag

import (
	"strings"
	"unicode/utf8"

	"github.com/poiesic/digest/core"
)

// ContextSeparator separates chunks in an assembled context.
const ContextSeparator = "\n\n---\n\n"

// AssembleContext joins matches in the order given, which is rank order, until
// maxLength runes are used. Lower ranked chunks are dropped first. If even the
// best chunk exceeds the budget it is truncated to fit. It returns the context
// and the matches that went into it.
func AssembleContext(matches []*core.ChunkMatch, maxLength int) (string, []*core.ChunkMatch) {
	if maxLength <= 0 || len(matches) == 0 {
		return "", nil
	}

	var (
		sb    strings.Builder
		used  []*core.ChunkMatch
		total int
	)
	sepLen := utf8.RuneCountInString(ContextSeparator)
	for _, match := range matches {
		text := match.Chunk.Text
		cost := utf8.RuneCountInString(text)
		if len(used) > 0 {
			cost += sepLen
		}

		if total+cost > maxLength {
			if len(used) == 0 {
				sb.WriteString(truncateRunes(text, maxLength))
				used = append(used, match)
			}
			break
		}

		if len(used) > 0 {
			sb.WriteString(ContextSeparator)
		}
		sb.WriteString(text)
		used = append(used, match)
		total += cost
	}
	return sb.String(), used
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
