package model

import "fmt"

// RetrievalError is returned when the message service cannot be reached or
// refuses the session. It aborts the whole run.
type RetrievalError struct {
	Op  string // "search", "fetch", "attachment"
	ID  string
	Err error
}

func (e *RetrievalError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("retrieval %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("retrieval %s: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// ContentError is a message whose content the service delivered but which
// cannot be decoded, such as a part with corrupt base64. It fails that
// message only.
type ContentError struct {
	ID  string
	Err error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("message %s: %v", e.ID, e.Err)
}

func (e *ContentError) Unwrap() error { return e.Err }

// MaterializationError is a failed write to the artifact store. It aborts
// the current message only; files already written are left in place.
type MaterializationError struct {
	Path string
	Err  error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("materialize %s: %v", e.Path, e.Err)
}

func (e *MaterializationError) Unwrap() error { return e.Err }

// ExtractionEngineError is a hard failure of the document text engine, as
// opposed to a document that simply has no text.
type ExtractionEngineError struct {
	Path string
	Err  error
}

func (e *ExtractionEngineError) Error() string {
	return fmt.Sprintf("extract text from %s: %v", e.Path, e.Err)
}

func (e *ExtractionEngineError) Unwrap() error { return e.Err }

// ParseErrorKind distinguishes unparsable model output from output with no
// structured data at all.
type ParseErrorKind string

const (
	ParseMalformed ParseErrorKind = "malformed"
	ParseAbsent    ParseErrorKind = "absent"
)

// StructuredParseError is returned when a model response yields no valid
// JSON object.
type StructuredParseError struct {
	Kind      ParseErrorKind
	Candidate string // the brace-delimited substring that failed, if any
	Err       error
}

func (e *StructuredParseError) Error() string {
	switch e.Kind {
	case ParseMalformed:
		if e.Err != nil {
			return fmt.Sprintf("malformed JSON: %v", e.Err)
		}
		return "malformed JSON"
	default:
		return "no structured data found"
	}
}

func (e *StructuredParseError) Unwrap() error { return e.Err }

// Status maps the parse failure onto an ExtractionStatus.
func (e *StructuredParseError) Status() ExtractionStatus {
	if e.Kind == ParseMalformed {
		return StatusMalformed
	}
	return StatusAbsent
}
