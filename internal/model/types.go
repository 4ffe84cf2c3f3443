package model

import (
	"fmt"
	"strings"
)

// Header holds the envelope fields we keep per message. Empty means absent.
type Header struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Message is a fully fetched message: headers plus its content tree.
type Message struct {
	ID       string
	ThreadID string
	Header   Header
	Snippet  string
	Root     *ContentNode
}

// PartKind tags a ContentNode.
type PartKind int

const (
	KindContainer  PartKind = iota // multipart/*, children only
	KindText                       // text/plain leaf
	KindHTML                       // text/html leaf
	KindAttachment                 // any other leaf
)

func (k PartKind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindText:
		return "text"
	case KindHTML:
		return "html"
	case KindAttachment:
		return "attachment"
	}
	return fmt.Sprintf("PartKind(%d)", int(k))
}

// KindForMime maps a MIME type onto a PartKind. hasChildren wins over the
// declared type so that nested structures are always descended into.
func KindForMime(mimeType string, hasChildren bool) PartKind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case hasChildren || strings.HasPrefix(mt, "multipart/"):
		return KindContainer
	case mt == "text/plain":
		return KindText
	case mt == "text/html":
		return KindHTML
	default:
		return KindAttachment
	}
}

// ContentNode is one node of a message's content tree. A node with children
// carries no payload of its own; a leaf has either inline Data or an
// AttachmentID that must be fetched separately.
type ContentNode struct {
	Kind         PartKind
	MimeType     string
	Filename     string
	Disposition  string // raw Content-Disposition value
	Size         int64  // bytes, as reported by the message service
	Data         []byte
	AttachmentID string
	Children     []*ContentNode
}

// IsAttachment reports whether the part is marked with an attachment disposition.
func (n *ContentNode) IsAttachment() bool {
	return n != nil && strings.Contains(strings.ToLower(n.Disposition), "attachment")
}

// ArtifactKind is the logical kind of a materialized file.
type ArtifactKind string

const (
	ArtifactText       ArtifactKind = "text"
	ArtifactHTML       ArtifactKind = "html"
	ArtifactAttachment ArtifactKind = "attachment"
)

// Artifact is a file written into a message container.
type Artifact struct {
	Kind     ArtifactKind `json:"kind"`
	Path     string       `json:"path"`
	Filename string       `json:"filename,omitempty"`
	Size     string       `json:"size,omitempty"` // formatted, attachments only
	Bytes    int64        `json:"bytes"`
}

// ExtractionStatus describes how far structured extraction got for one attachment.
type ExtractionStatus string

const (
	StatusOK          ExtractionStatus = "ok"
	StatusNoText      ExtractionStatus = "no_text"
	StatusEngineError ExtractionStatus = "engine_error"
	StatusModelError  ExtractionStatus = "model_error"
	StatusMalformed   ExtractionStatus = "malformed"
	StatusAbsent      ExtractionStatus = "absent"
)

// ExtractionResult is the structured record derived from one document
// attachment, or the reason none could be derived.
type ExtractionResult struct {
	Filename string           `json:"filename"`
	Path     string           `json:"path"`
	Status   ExtractionStatus `json:"status"`
	Fields   map[string]any   `json:"fields,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

func (r ExtractionResult) OK() bool { return r.Status == StatusOK }

// Field returns a field rendered as a string, or "" if missing.
func (r ExtractionResult) Field(name string) string {
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// EmailRecord is the pipeline output for one message.
type EmailRecord struct {
	MessageID   string             `json:"message_id"`
	Header      Header             `json:"header"`
	Folder      string             `json:"folder,omitempty"`
	Artifacts   []Artifact         `json:"artifacts,omitempty"`
	Extractions []ExtractionResult `json:"extractions,omitempty"`
	Error       string             `json:"error,omitempty"`
}

func (r EmailRecord) TextFiles() []string { return r.paths(ArtifactText) }
func (r EmailRecord) HTMLFiles() []string { return r.paths(ArtifactHTML) }

// Attachments returns the attachment artifacts in tree order.
func (r EmailRecord) Attachments() []Artifact {
	var out []Artifact
	for _, a := range r.Artifacts {
		if a.Kind == ArtifactAttachment {
			out = append(out, a)
		}
	}
	return out
}

func (r EmailRecord) paths(kind ArtifactKind) []string {
	var out []string
	for _, a := range r.Artifacts {
		if a.Kind == kind {
			out = append(out, a.Path)
		}
	}
	return out
}
