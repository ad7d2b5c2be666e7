// Package chunker splits text into overlapping, fixed-size windows.
//
// Positions are counted in runes so multi-byte characters are never split.
// Split is pure: the same text and Config always produce the same spans.
package chunker

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize indicates a non-positive chunk size.
	ErrInvalidSize = errors.New("chunker: size must be positive")

	// ErrInvalidOverlap indicates an overlap outside [0, size).
	ErrInvalidOverlap = errors.New("chunker: overlap must be at least 0 and smaller than size")
)

// Config controls the window geometry.
type Config struct {
	// Size is the maximum number of runes in a span.
	Size int
	// Overlap is the number of runes adjacent spans share.
	Overlap int
}

// DefaultConfig returns 512-rune windows overlapping by 50 runes.
func DefaultConfig() Config {
	return Config{Size: 512, Overlap: 50}
}

// Validate checks the geometry.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap %d, size %d", ErrInvalidOverlap, c.Overlap, c.Size)
	}
	return nil
}

// Span is one window of the input. Start and End are rune offsets, End exclusive.
type Span struct {
	Sequence int
	Start    int
	End      int
	Text     string
}

// Len returns the number of runes in the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Split cuts text into spans of at most cfg.Size runes.
//
// Each span starts cfg.Size-cfg.Overlap runes after the previous one, so
// adjacent spans share exactly cfg.Overlap runes and together cover the whole
// text. The last span is clipped to the end of the text and is always longer
// than the overlap. Text no longer than cfg.Size yields one span; empty text
// yields none.
func Split(text string, cfg Config) ([]Span, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	step := cfg.Size - cfg.Overlap
	spans := make([]Span, 0, Count(n, cfg))
	for start := 0; ; start += step {
		end := min(start+cfg.Size, n)
		spans = append(spans, Span{
			Sequence: len(spans),
			Start:    start,
			End:      end,
			Text:     string(runes[start:end]),
		})
		if end == n {
			break
		}
	}
	return spans, nil
}

// Count returns how many spans Split produces for a text of n runes.
// cfg must be valid.
func Count(n int, cfg Config) int {
	if n <= 0 {
		return 0
	}
	if n <= cfg.Size {
		return 1
	}
	step := cfg.Size - cfg.Overlap
	// ceil((n - size) / step) windows after the first
	return 1 + (n-cfg.Size+step-1)/step
}
