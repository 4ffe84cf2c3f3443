package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiz/internal/artifact"
	"invoiz/internal/model"
)

type fakeRetriever struct {
	ids       []string
	messages  map[string]*model.Message
	searchErr error
	fetchErr  map[string]error
}

func (f *fakeRetriever) Search(_ context.Context, _ string, limit int) ([]string, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if limit > 0 && limit < len(f.ids) {
		return f.ids[:limit], nil
	}
	return f.ids, nil
}

func (f *fakeRetriever) Fetch(_ context.Context, id string) (*model.Message, error) {
	if err := f.fetchErr[id]; err != nil {
		return f.messages[id], err
	}
	return f.messages[id], nil
}

// fakeText answers by file name: "fail" in the name raises an engine error,
// "blank" yields whitespace, anything else returns the name itself.
type fakeText struct{}

func (fakeText) ExtractText(_ context.Context, path string) (string, error) {
	base := filepath.Base(path)
	switch {
	case strings.Contains(base, "fail"):
		return "", &model.ExtractionEngineError{Path: path, Err: errors.New("corrupt xref table")}
	case strings.Contains(base, "blank"):
		return " \n\t", nil
	}
	return "text of " + base, nil
}

type fakeStructured struct {
	mu    sync.Mutex
	calls []string
	fn    func(text string) (map[string]any, error)
}

func (f *fakeStructured) Extract(_ context.Context, text string) (map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(text)
	}
	return map[string]any{"invoice_number": "INV-1", "vendor_name": "Acme"}, nil
}

type memSink struct {
	mu       sync.Mutex
	runs     map[string]int
	err      error
	started  []string
	finished map[string]int
}

func (s *memSink) StartRun(_ context.Context, id, _ string, _ int) error {
	s.started = append(s.started, id)
	return nil
}

func (s *memSink) FinishRun(_ context.Context, id string, records int, _ error) error {
	if s.finished == nil {
		s.finished = map[string]int{}
	}
	s.finished[id] = records
	return nil
}

func (s *memSink) SaveRecord(_ context.Context, runID string, _ model.EmailRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		s.runs = map[string]int{}
	}
	s.runs[runID]++
	return s.err
}

func pdfLeaf(name string) *model.ContentNode {
	return &model.ContentNode{
		Kind:        model.KindAttachment,
		MimeType:    "application/pdf",
		Filename:    name,
		Disposition: `attachment; filename="` + name + `"`,
		Data:        []byte("%PDF-1.4"),
		Size:        8,
	}
}

func message(id, subject string, leaves ...*model.ContentNode) *model.Message {
	children := append([]*model.ContentNode{
		{Kind: model.KindText, MimeType: "text/plain", Data: []byte("Please find attached.")},
	}, leaves...)
	return &model.Message{
		ID:     id,
		Header: model.Header{From: "billing@acme.test", Subject: subject, Date: "Tue, 2 Jan 2024 15:04:05 +0000"},
		Root:   &model.ContentNode{Kind: model.KindContainer, MimeType: "multipart/mixed", Children: children},
	}
}

func newPipeline(t *testing.T, r Retriever, s StructuredExtractor, sink RecordSink, workers int) (*Pipeline, *artifact.FS) {
	t.Helper()
	fs, err := artifact.NewFS(filepath.Join(t.TempDir(), "downloads"))
	require.NoError(t, err)
	p, err := New(Config{
		Retriever:  r,
		Store:      fs,
		Text:       fakeText{},
		Structured: s,
		Sink:       sink,
		Workers:    workers,
	})
	require.NoError(t, err)
	return p, fs
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestRun_FailingAttachmentDoesNotStopOthers(t *testing.T) {
	r := &fakeRetriever{
		ids: []string{"m1", "m2"},
		messages: map[string]*model.Message{
			"m1": message("m1", "Invoice", pdfLeaf("fail.pdf"), pdfLeaf("good.pdf")),
			"m2": message("m2", "Invoice", pdfLeaf("next.pdf")),
		},
	}
	p, _ := newPipeline(t, r, &fakeStructured{}, nil, 1)

	recs, err := p.Run(context.Background(), "invoice", 5)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Len(t, recs[1].Extractions, 1)
	assert.True(t, recs[1].Extractions[0].OK(), "the next message is still processed")

	ex := recs[0].Extractions
	require.Len(t, ex, 2)
	assert.Equal(t, "fail.pdf", ex[0].Filename)
	assert.Equal(t, model.StatusEngineError, ex[0].Status)
	assert.Contains(t, ex[0].Reason, "corrupt xref table")
	assert.True(t, ex[1].OK())
	assert.Equal(t, "INV-1", ex[1].Field("invoice_number"))
	assert.Empty(t, recs[0].Error)
}

func TestRun_MaterializesMessage(t *testing.T) {
	r := &fakeRetriever{
		ids: []string{"m1"},
		messages: map[string]*model.Message{
			"m1": message("m1", "Invoice #42", pdfLeaf("invoice.pdf")),
		},
	}
	p, fs := newPipeline(t, r, &fakeStructured{}, nil, 1)

	recs, err := p.Run(context.Background(), "invoice", 0)
	require.NoError(t, err)
	rec := recs[0]

	assert.Equal(t, fs.Path("Invoice__42"), rec.Folder)
	assert.Equal(t, []string{filepath.Join(rec.Folder, "content.txt")}, rec.TextFiles())
	assert.Equal(t, []string{"invoice.pdf"}, names(rec.Attachments()))
	assert.Equal(t, "8.00B", rec.Attachments()[0].Size)

	body, err := os.ReadFile(filepath.Join(rec.Folder, "content.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Please find attached.", string(body))
}

func names(arts []model.Artifact) []string {
	var out []string
	for _, a := range arts {
		out = append(out, a.Filename)
	}
	return out
}

func TestRun_StatusPerOutcome(t *testing.T) {
	s := &fakeStructured{fn: func(text string) (map[string]any, error) {
		switch {
		case strings.Contains(text, "quota"):
			return nil, errors.New("429 quota exceeded")
		case strings.Contains(text, "prose"):
			return nil, &model.StructuredParseError{Kind: model.ParseAbsent}
		case strings.Contains(text, "broken"):
			return nil, &model.StructuredParseError{Kind: model.ParseMalformed, Candidate: "{x}"}
		}
		return map[string]any{"invoice_number": "9"}, nil
	}}
	r := &fakeRetriever{
		ids: []string{"m1"},
		messages: map[string]*model.Message{
			"m1": message("m1", "Mixed",
				pdfLeaf("blank.pdf"),
				pdfLeaf("quota.pdf"),
				pdfLeaf("prose.pdf"),
				pdfLeaf("broken.pdf"),
				pdfLeaf("fine.PDF"),
				&model.ContentNode{Kind: model.KindAttachment, MimeType: "image/png", Filename: "logo.png", Disposition: "attachment", Data: []byte{1}},
			),
		},
	}
	p, _ := newPipeline(t, r, s, nil, 1)

	recs, err := p.Run(context.Background(), "q", 1)
	require.NoError(t, err)

	var got []model.ExtractionStatus
	for _, e := range recs[0].Extractions {
		got = append(got, e.Status)
	}
	assert.Equal(t, []model.ExtractionStatus{
		model.StatusNoText,
		model.StatusModelError,
		model.StatusAbsent,
		model.StatusMalformed,
		model.StatusOK,
	}, got)
	assert.Len(t, s.calls, 4, "blank documents never reach the model")
	assert.Len(t, recs[0].Attachments(), 6, "non-documents are still materialized")
}

func TestRun_KeepsSearchOrderWithWorkers(t *testing.T) {
	r := &fakeRetriever{messages: map[string]*model.Message{}}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		r.ids = append(r.ids, id)
		r.messages[id] = message(id, "Invoice", pdfLeaf(id+".pdf"))
	}
	sink := &memSink{}
	p, fs := newPipeline(t, r, &fakeStructured{}, sink, 4)

	recs, err := p.Run(context.Background(), "invoice", 0)
	require.NoError(t, err)
	require.Len(t, recs, 6)

	folders := map[string]bool{}
	for i, rec := range recs {
		assert.Equal(t, r.ids[i], rec.MessageID)
		folders[rec.Folder] = true
		assert.True(t, strings.HasPrefix(rec.Folder, fs.Root()))
	}
	assert.Len(t, folders, 6, "every message gets its own container")

	require.Len(t, sink.runs, 1)
	require.Len(t, sink.started, 1)
	runID := sink.started[0]
	assert.Equal(t, 6, sink.runs[runID])
	assert.Equal(t, 6, sink.finished[runID])
}

func TestRun_SearchFailureIsFatal(t *testing.T) {
	rerr := &model.RetrievalError{Op: "search", Err: errors.New("401")}
	p, _ := newPipeline(t, &fakeRetriever{searchErr: rerr}, &fakeStructured{}, nil, 1)

	recs, err := p.Run(context.Background(), "q", 5)
	assert.Nil(t, recs)
	assert.ErrorIs(t, err, rerr)
}

func TestRun_FetchFailureStopsRun(t *testing.T) {
	r := &fakeRetriever{
		ids: []string{"m1", "m2", "m3"},
		messages: map[string]*model.Message{
			"m1": message("m1", "One"),
			"m3": message("m3", "Three"),
		},
		fetchErr: map[string]error{"m2": errors.New("500 backend error")},
	}
	p, _ := newPipeline(t, r, &fakeStructured{}, nil, 1)

	recs, err := p.Run(context.Background(), "q", 0)
	var rerr *model.RetrievalError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "m2", rerr.ID)
	require.Len(t, recs, 1)
	assert.Equal(t, "m1", recs[0].MessageID)
}

func TestProcess_MaterializationFailureIsRecorded(t *testing.T) {
	long := strings.Repeat("x", 300) + ".pdf"
	r := &fakeRetriever{messages: map[string]*model.Message{
		"m1": message("m1", "Too long", pdfLeaf(long)),
	}}
	p, _ := newPipeline(t, r, &fakeStructured{}, nil, 1)

	rec, err := p.Process(context.Background(), "m1")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Error)
	assert.Empty(t, rec.Extractions)
	require.Len(t, rec.TextFiles(), 1, "artifacts written before the failure are kept")
}

func TestRun_SinkErrorsAreNotFatal(t *testing.T) {
	r := &fakeRetriever{
		ids:      []string{"m1"},
		messages: map[string]*model.Message{"m1": message("m1", "Invoice")},
	}
	p, _ := newPipeline(t, r, &fakeStructured{}, &memSink{err: errors.New("disk full")}, 1)

	recs, err := p.Run(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRun_UndecodableMessageIsRecordedAndRunContinues(t *testing.T) {
	r := &fakeRetriever{
		ids: []string{"m1", "m2", "m3"},
		messages: map[string]*model.Message{
			"m1": message("m1", "One"),
			"m2": {ID: "m2", Header: model.Header{Subject: "Broken"}},
			"m3": message("m3", "Three", pdfLeaf("inv.pdf")),
		},
		fetchErr: map[string]error{"m2": &model.ContentError{ID: "m2", Err: errors.New("illegal base64 data")}},
	}
	p, _ := newPipeline(t, r, &fakeStructured{}, nil, 1)

	recs, err := p.Run(context.Background(), "q", 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "Broken", recs[1].Header.Subject)
	assert.Contains(t, recs[1].Error, "illegal base64 data")
	assert.Empty(t, recs[1].Folder)
	require.Len(t, recs[2].Extractions, 1)
	assert.True(t, recs[2].Extractions[0].OK())
}
