package reembed

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_ReportsEveryInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 20)
	tracker.Start()

	tracker.Add(10, BatchResult{Completed: 10})
	assert.Empty(t, buf.String(), "below the interval nothing is printed")

	tracker.Add(10, BatchResult{Completed: 8, Failed: 1, Skipped: 1})
	output := buf.String()
	assert.Contains(t, output, "20/100 (20.0%)")
	assert.Contains(t, output, "18 completed, 1 failed, 1 skipped")
	assert.Contains(t, output, "ETA")
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 100)
	tracker.Start()
	tracker.Add(7, BatchResult{Completed: 7})
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "10/10 (100.0%)")
	assert.True(t, strings.HasSuffix(output, "\n"), "finish should print newline")
	assert.NotContains(t, output, "ETA")
}

func TestProgressTracker_CapsAtTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 5, 1)
	tracker.Start()
	tracker.Add(8, BatchResult{Completed: 8})

	assert.Contains(t, buf.String(), "5/5")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 1)

	tracker.Add(5, BatchResult{Completed: 5})
	tracker.Finish()

	assert.Empty(t, buf.String())
	assert.Zero(t, tracker.Elapsed())
	assert.Equal(t, BatchResult{}, tracker.Outcome())
}

func TestProgressTracker_StartResets(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 100)
	tracker.Start()
	tracker.Add(4, BatchResult{Failed: 4})

	tracker.Start()
	assert.Equal(t, BatchResult{}, tracker.Outcome())
}

func TestProgressTracker_Elapsed(t *testing.T) {
	tracker := NewProgressTracker(&bytes.Buffer{}, 1, 1)
	tracker.Start()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, tracker.Elapsed(), 5*time.Millisecond)
}

func TestProgressTracker_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 1000, 100)
	tracker.Start()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				tracker.Add(10, BatchResult{Completed: 10})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, tracker.Outcome().Completed)
	assert.Contains(t, buf.String(), "1000/1000")
}
