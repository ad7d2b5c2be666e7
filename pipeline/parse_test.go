package pipeline

import (
	"testing"

	"github.com/poiesic/digest/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnalysis(t *testing.T) {
	reply := `{
  "title": "Q3 budget",
  "summary": "Alice and Bob discussed the Q3 budget.",
  "key_points": ["Budget is on track", {"text": "Hiring is paused"}],
  "action_items": [{"task": "Send the report", "responsible": "Bob", "deadline": "Friday"}]
}`
	result, err := parseAnalysis(reply)
	require.NoError(t, err)

	assert.Equal(t, "Q3 budget", result.Title)
	assert.Equal(t, "Alice and Bob discussed the Q3 budget.", result.Summary)
	require.Len(t, result.KeyPoints, 3)
	assert.Equal(t, core.KeyPoint{Kind: core.KeyPointInsight, Text: "Budget is on track"}, result.KeyPoints[0])
	assert.Equal(t, "Hiring is paused", result.KeyPoints[1].Text)
	assert.Equal(t, core.KeyPoint{Kind: core.KeyPointActionItem, Text: "Send the report", Owner: "Bob", Deadline: "Friday"}, result.KeyPoints[2])
}

func TestParseAnalysis_CodeFences(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"json fence", "```json\n{\"summary\": \"ok\"}\n```"},
		{"bare fence", "```\n{\"summary\": \"ok\"}\n```"},
		{"prose around", "Here is the analysis:\n{\"summary\": \"ok\"}\nHope this helps."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseAnalysis(tt.reply)
			require.NoError(t, err)
			assert.Equal(t, "ok", result.Summary)
			assert.Empty(t, result.KeyPoints)
		})
	}
}

func TestParseAnalysis_RepairsUnquotedKeys(t *testing.T) {
	result, err := parseAnalysis(`{"summary": "ok", key_points": ["one"]}`)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Summary)
	require.Len(t, result.KeyPoints, 1)
}

func TestParseAnalysis_Malformed(t *testing.T) {
	for _, reply := range []string{
		"",
		"I cannot help with that.",
		`{"summary": ""}`,
		`{"summary": "   ", "key_points": ["a"]}`,
		`{"summary": "ok", "key_points": 12}`,
	} {
		_, err := parseAnalysis(reply)
		assert.ErrorIs(t, err, core.ErrMalformedResponse, "reply %q", reply)
		assert.True(t, core.IsPermanent(err), "reply %q", reply)
	}
}

func TestParseAnalysis_RepairsTrailingCommas(t *testing.T) {
	reply := `{
  "summary": "ok",
  "key_points": ["one", "two",],
  "action_items": [{"task": "ship it", "responsible": "Ann",},],
}`
	result, err := parseAnalysis(reply)
	require.NoError(t, err)
	require.Len(t, result.KeyPoints, 3)
	assert.Equal(t, "two", result.KeyPoints[1].Text)
	assert.Equal(t, "Ann", result.KeyPoints[2].Owner)
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid", `{"a": 1}`, `{"a": 1}`},
		{"missing opening quote", `{"name": "x", type": "y"}`, `{"name": "x", "type": "y"}`},
		{"unquoted keys", `{summary: "x", key_points: []}`, `{"summary": "x", "key_points": []}`},
		{"trailing commas", `{"a": [1, 2, ], "b": {"c": 3,},}`, `{"a": [1, 2 ], "b": {"c": 3}}`},
		{"literals kept", `{"a": [true, null], "b": false}`, `{"a": [true, null], "b": false}`},
		{"strings untouched", `{"summary": "a, } b: c,]", "x": "say \"hi\", ok"}`, `{"summary": "a, } b: c,]", "x": "say \"hi\", ok"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, repairJSON(tt.in))
		})
	}
}
