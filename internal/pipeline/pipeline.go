// Package pipeline runs search, retrieval, decomposition and extraction for
// one query and aggregates per-message records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"invoiz/internal/artifact"
	"invoiz/internal/model"
)

// Retriever finds and fetches messages.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
	Fetch(ctx context.Context, id string) (*model.Message, error)
}

// TextExtractor turns a document on disk into text.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// StructuredExtractor turns document text into fields.
type StructuredExtractor interface {
	Extract(ctx context.Context, text string) (map[string]any, error)
}

// RecordSink receives every finished record, e.g. to persist it.
type RecordSink interface {
	SaveRecord(ctx context.Context, runID string, rec model.EmailRecord) error
}

// RunRecorder is implemented by sinks that also track runs.
type RunRecorder interface {
	StartRun(ctx context.Context, id, query string, limit int) error
	FinishRun(ctx context.Context, id string, records int, runErr error) error
}

// Config wires the pipeline's collaborators. Sink, Logger and IsDocument
// are optional.
type Config struct {
	Retriever  Retriever
	Store      *artifact.FS
	Text       TextExtractor
	Structured StructuredExtractor
	Sink       RecordSink
	IsDocument func(filename string) bool
	Workers    int
	Logger     *slog.Logger
}

type Pipeline struct {
	retriever  Retriever
	store      *artifact.FS
	namer      *artifact.Namer
	walker     *artifact.Walker
	text       TextExtractor
	structured StructuredExtractor
	sink       RecordSink
	isDocument func(string) bool
	workers    int
	logger     *slog.Logger
}

func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Retriever == nil:
		return nil, errors.New("pipeline: retriever is required")
	case cfg.Store == nil:
		return nil, errors.New("pipeline: artifact store is required")
	case cfg.Text == nil:
		return nil, errors.New("pipeline: text extractor is required")
	case cfg.Structured == nil:
		return nil, errors.New("pipeline: structured extractor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	isDoc := cfg.IsDocument
	if isDoc == nil {
		isDoc = func(name string) bool { return strings.HasSuffix(strings.ToLower(name), ".pdf") }
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		retriever:  cfg.Retriever,
		store:      cfg.Store,
		namer:      artifact.NewNamer(cfg.Store, logger),
		walker:     artifact.NewWalker(cfg.Store, logger),
		text:       cfg.Text,
		structured: cfg.Structured,
		sink:       cfg.Sink,
		isDocument: isDoc,
		workers:    workers,
		logger:     logger,
	}, nil
}

// Run searches for query and processes up to limit messages (limit <= 0 for
// all). Records come back in search order. A *model.RetrievalError stops the
// run and is returned together with the records finished so far; every other
// failure is recorded inside the affected EmailRecord.
func (p *Pipeline) Run(ctx context.Context, query string, limit int) ([]model.EmailRecord, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run", runID)

	runs, _ := p.sink.(RunRecorder)
	if runs != nil {
		if err := runs.StartRun(ctx, runID, query, limit); err != nil {
			logger.Warn("record run start", "err", err)
			runs = nil
		}
	}

	ids, err := p.retriever.Search(ctx, query, limit)
	if err != nil {
		p.finishRun(ctx, runs, runID, 0, err)
		return nil, err
	}
	logger.Info("messages matched", "query", query, "count", len(ids))

	records := make([]model.EmailRecord, len(ids))
	done := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := p.Process(gctx, id)
			if err != nil {
				return err
			}
			records[i], done[i] = rec, true
			if p.sink != nil {
				if err := p.sink.SaveRecord(ctx, runID, rec); err != nil {
					logger.Warn("save record", "message", id, "err", err)
				}
			}
			return nil
		})
	}
	err = g.Wait()

	out := make([]model.EmailRecord, 0, len(ids))
	for i := range records {
		if done[i] {
			out = append(out, records[i])
		}
	}
	logger.Info("run finished", "processed", len(out), "matched", len(ids))
	p.finishRun(ctx, runs, runID, len(out), err)
	return out, err
}

func (p *Pipeline) finishRun(ctx context.Context, runs RunRecorder, id string, n int, runErr error) {
	if runs == nil {
		return
	}
	if err := runs.FinishRun(context.WithoutCancel(ctx), id, n, runErr); err != nil {
		p.logger.Warn("record run finish", "run", id, "err", err)
	}
}

// Process fetches one message, materializes it into a fresh container and
// extracts every document attachment. Only a retrieval failure is returned
// as an error; undecodable content is recorded in the record.
func (p *Pipeline) Process(ctx context.Context, id string) (model.EmailRecord, error) {
	msg, err := p.retriever.Fetch(ctx, id)
	var cerr *model.ContentError
	if errors.As(err, &cerr) {
		rec := model.EmailRecord{MessageID: id, Error: err.Error()}
		if msg != nil {
			rec.Header = msg.Header
		}
		p.logger.Error("undecodable message", "message", id, "err", err)
		return rec, nil
	}
	if err != nil {
		var rerr *model.RetrievalError
		if !errors.As(err, &rerr) {
			err = &model.RetrievalError{Op: "fetch", ID: id, Err: err}
		}
		return model.EmailRecord{MessageID: id}, err
	}

	rec := model.EmailRecord{MessageID: msg.ID, Header: msg.Header}
	logger := p.logger.With("message", msg.ID)

	name, err := p.namer.Reserve(msg.Header.Subject)
	if err != nil {
		logger.Error("reserve container", "err", err)
		rec.Error = err.Error()
		return rec, nil
	}
	rec.Folder = p.store.Path(name)

	arts, err := p.walker.Decompose(msg.Root, rec.Folder)
	rec.Artifacts = arts
	if err != nil {
		logger.Error("decompose message", "folder", rec.Folder, "err", err)
		rec.Error = err.Error()
		return rec, nil
	}
	logger.Debug("message decomposed", "folder", rec.Folder, "artifacts", len(arts))

	for _, a := range rec.Attachments() {
		if !p.isDocument(a.Filename) {
			continue
		}
		res := p.extract(ctx, a)
		if !res.OK() {
			logger.Warn("attachment not extracted", "filename", a.Filename, "status", res.Status, "reason", res.Reason)
		}
		rec.Extractions = append(rec.Extractions, res)
	}
	return rec, nil
}

// extract never fails: every outcome is folded into the result.
func (p *Pipeline) extract(ctx context.Context, a model.Artifact) model.ExtractionResult {
	res := model.ExtractionResult{Filename: a.Filename, Path: a.Path}

	text, err := p.text.ExtractText(ctx, a.Path)
	if err != nil {
		res.Status = model.StatusEngineError
		res.Reason = err.Error()
		return res
	}
	if strings.TrimSpace(text) == "" {
		res.Status = model.StatusNoText
		res.Reason = "no text could be extracted from this document"
		return res
	}

	fields, err := p.structured.Extract(ctx, text)
	var perr *model.StructuredParseError
	switch {
	case errors.As(err, &perr):
		res.Status = perr.Status()
		res.Reason = perr.Error()
	case err != nil:
		res.Status = model.StatusModelError
		res.Reason = fmt.Sprintf("structured extraction: %v", err)
	default:
		res.Status = model.StatusOK
		res.Fields = fields
	}
	return res
}
