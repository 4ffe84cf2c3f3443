package extract

import (
	"encoding/json"
	"regexp"

	"invoiz/internal/model"
)

// greedyObject is the fallback candidate when no balanced object exists.
var greedyObject = regexp.MustCompile(`(?s)\{.*\}`)

// Candidate returns the brace-delimited substring of a model response that
// should hold the answer: the last balanced top-level {...} span, since
// models put the final answer after any reasoning. Braces inside JSON
// strings do not count. If nothing balances, the greedy first-{ to last-}
// span is returned so the caller reports it as malformed.
func Candidate(resp string) (string, bool) {
	spans := objectSpans(resp)
	if len(spans) > 0 {
		last := spans[len(spans)-1]
		return resp[last[0]:last[1]], true
	}
	if m := greedyObject.FindString(resp); m != "" {
		return m, true
	}
	return "", false
}

// ParseResponse runs Candidate and decodes the result. Missing expected
// fields are accepted; only the shape "a JSON object" is enforced.
func ParseResponse(resp string) (map[string]any, error) {
	candidate, ok := Candidate(resp)
	if !ok {
		return nil, &model.StructuredParseError{Kind: model.ParseAbsent}
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		return nil, &model.StructuredParseError{Kind: model.ParseMalformed, Candidate: candidate, Err: err}
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// objectSpans returns [start, end) offsets of every top-level balanced
// brace span in s, skipping over double-quoted strings once inside a span.
// A '{' that never closes is treated as stray text and scanning resumes
// right after it, so "use { here ... {"a":1}" still finds the object.
func objectSpans(s string) [][2]int {
	var spans [][2]int
	for pos := 0; pos < len(s); {
		found, unclosed := scanSpans(s, pos)
		spans = append(spans, found...)
		if unclosed < 0 {
			break
		}
		pos = unclosed + 1
	}
	return spans
}

// scanSpans scans s from pos and returns the closed top-level spans plus the
// offset of a top-level '{' left open at the end, or -1.
func scanSpans(s string, pos int) ([][2]int, int) {
	var (
		spans   [][2]int
		depth   int
		start   int
		inStr   bool
		escaped bool
	)
	for i := pos; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inStr = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				spans = append(spans, [2]int{start, i + 1})
			}
		}
	}
	if depth > 0 {
		return spans, start
	}
	return spans, -1
}
