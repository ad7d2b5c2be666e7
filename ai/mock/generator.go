package mock

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/poiesic/digest/ai"
)

// MockTextGenerator is a test double for ai.TextGenerator.
// It allows custom behavior injection via function fields.
type MockTextGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, JSON requests get an analysis built from the prompt's sentences
	// and plain requests get an answer quoting the start of the prompt.
	GenerateFunc func(ctx context.Context, req ai.GenerationRequest) (string, error)

	mu        sync.Mutex
	callCount int
	requests  []ai.GenerationRequest
}

// NewMockTextGenerator creates a mock generator with default behavior.
// Note: Returns concrete type to allow test assertions via GetMockGenerator().
func NewMockTextGenerator() *MockTextGenerator {
	return &MockTextGenerator{}
}

// Generate returns a canned completion for req.
func (m *MockTextGenerator) Generate(ctx context.Context, req ai.GenerationRequest) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.requests = append(m.requests, req)
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.JSON {
		return analysisJSON(req.Prompt), nil
	}
	return "Based on the context: " + firstLine(req.Prompt), nil
}

// CallCount returns the number of times Generate was called.
func (m *MockTextGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns a copy of every request received.
func (m *MockTextGenerator) Requests() []ai.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ai.GenerationRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request, or the zero value.
func (m *MockTextGenerator) LastRequest() ai.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return ai.GenerationRequest{}
	}
	return m.requests[len(m.requests)-1]
}

// Reset clears the call count, recorded requests and injected behavior.
func (m *MockTextGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.requests = nil
	m.GenerateFunc = nil
}

const maxKeyPoints = 7

type mockActionItem struct {
	Task        string `json:"task"`
	Responsible string `json:"responsible"`
	Deadline    string `json:"deadline"`
}

type mockAnalysis struct {
	Title       string           `json:"title"`
	Summary     string           `json:"summary"`
	KeyPoints   []string         `json:"key_points"`
	ActionItems []mockActionItem `json:"action_items"`
}

// analysisJSON builds a well-formed analysis from the last sentences of prompt,
// where the transcript sits.
func analysisJSON(prompt string) string {
	sentences := splitSentences(prompt)
	if len(sentences) > maxKeyPoints {
		sentences = sentences[len(sentences)-maxKeyPoints:]
	}
	result := mockAnalysis{
		Title:       "Mock analysis",
		Summary:     "Summary of the transcript.",
		KeyPoints:   []string{},
		ActionItems: []mockActionItem{},
	}
	if len(sentences) > 0 {
		result.Summary = sentences[0]
	}
	for _, s := range sentences {
		result.KeyPoints = append(result.KeyPoints, s)
		if strings.Contains(strings.ToLower(s), " will ") {
			result.ActionItems = append(result.ActionItems, mockActionItem{Task: s, Responsible: "unassigned", Deadline: "none"})
		}
	}
	data, _ := json.Marshal(result)
	return string(data)
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '\n' || r == '?' || r == '!' }) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
