package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poiesic/digest/core"
)

type analysisResponse struct {
	Title       string               `json:"title"`
	Summary     string               `json:"summary"`
	KeyPoints   []keyPointText       `json:"key_points"`
	ActionItems []actionItemResponse `json:"action_items"`
}

type actionItemResponse struct {
	Task        string `json:"task"`
	Responsible string `json:"responsible"`
	Deadline    string `json:"deadline"`
}

// keyPointText accepts a key point written either as a string or as an object
// with a "text" or "point" field.
type keyPointText string

func (k *keyPointText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = keyPointText(s)
		return nil
	}
	var obj struct {
		Text  string `json:"text"`
		Point string `json:"point"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Text == "" {
		obj.Text = obj.Point
	}
	*k = keyPointText(obj.Text)
	return nil
}

// parseAnalysis turns a model reply into an analysis result.
// Errors wrap core.ErrMalformedResponse and are permanent: the same prompt
// is not sent again for a reply that could not be read.
func parseAnalysis(reply string) (*core.AnalysisResult, error) {
	payload := extractJSON(reply)
	if payload == "" {
		return nil, malformed("no JSON object in reply")
	}

	var resp analysisResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		if repairErr := json.Unmarshal([]byte(repairJSON(payload)), &resp); repairErr != nil {
			return nil, malformed("%v", err)
		}
	}

	summary := strings.TrimSpace(resp.Summary)
	if summary == "" {
		return nil, malformed("empty summary")
	}

	result := &core.AnalysisResult{
		Title:   strings.TrimSpace(resp.Title),
		Summary: summary,
	}
	for _, kp := range resp.KeyPoints {
		if text := strings.TrimSpace(string(kp)); text != "" {
			result.KeyPoints = append(result.KeyPoints, core.KeyPoint{Kind: core.KeyPointInsight, Text: text})
		}
	}
	for _, item := range resp.ActionItems {
		task := strings.TrimSpace(item.Task)
		if task == "" {
			continue
		}
		result.KeyPoints = append(result.KeyPoints, core.KeyPoint{
			Kind:     core.KeyPointActionItem,
			Text:     task,
			Owner:    strings.TrimSpace(item.Responsible),
			Deadline: strings.TrimSpace(item.Deadline),
		})
	}
	return result, nil
}

// extractJSON strips markdown code fences and surrounding prose from reply
// and returns the outermost JSON object, or "" if there is none.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

// repairJSON fixes the defects models commonly put into the analysis object:
// trailing commas before a closing bracket, and keys that are unquoted or
// miss their opening quote. String contents are left untouched.
func repairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString, escaped, expectKey := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			expectKey = false
			b.WriteByte(c)
		case c == ',' && closesNext(s[i+1:]):
			// trailing comma
		case expectKey && isIdentStart(c):
			end := i
			for end < len(s) && isIdentPart(s[end]) {
				end++
			}
			next := end
			if next < len(s) && s[next] == '"' {
				next++
			}
			if k := skipSpace(s, next); k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:end])
				b.WriteByte('"')
				i = next - 1
			} else {
				// A bare literal such as true or null.
				b.WriteString(s[i:end])
				i = end - 1
			}
			expectKey = false
		default:
			b.WriteByte(c)
			if c == '{' || c == ',' {
				expectKey = true
			} else if !isSpace(c) {
				expectKey = false
			}
		}
	}
	return b.String()
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", core.ErrPermanentProvider, core.ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// closesNext reports whether the next non-space byte of s closes an object or array.
func closesNext(s string) bool {
	k := skipSpace(s, 0)
	return k < len(s) && (s[k] == '}' || s[k] == ']')
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
