package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"invoiz/internal/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id, date string) model.EmailRecord {
	return model.EmailRecord{
		MessageID: id,
		Header:    model.Header{From: "Acme <billing@acme.test>", Subject: "Invoice " + id, Date: date},
		Folder:    "/tmp/downloads/Invoice_" + id,
		Artifacts: []model.Artifact{
			{Kind: model.ArtifactAttachment, Path: "/tmp/downloads/Invoice_" + id + "/inv.pdf", Filename: "inv.pdf", Size: "1.00KB", Bytes: 1024},
		},
		Extractions: []model.ExtractionResult{
			{Filename: "inv.pdf", Status: model.StatusOK, Fields: map[string]any{"invoice_number": "N-" + id}},
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveRecord(ctx, "run-1", record("1", "Mon, 1 Jan 2024 10:00:00 +0000")); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	if err := s.SaveRecord(ctx, "run-1", record("2", "Tue, 2 Jan 2024 10:00:00 +0000")); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}

	count, err := s.CountRecords(ctx, "")
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}

	loaded, err := s.LoadRecords(ctx, "")
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(loaded) != 2 || loaded[0].MessageID != "2" {
		t.Fatalf("expected newest first, got %+v", loaded)
	}
	got := loaded[1]
	if got.Folder != "/tmp/downloads/Invoice_1" || got.Attachments()[0].Size != "1.00KB" {
		t.Fatalf("record did not round-trip: %+v", got)
	}
	if got.Extractions[0].Field("invoice_number") != "N-1" {
		t.Fatalf("fields did not round-trip: %+v", got.Extractions)
	}
}

func TestSaveRecord_ReplacesSameMessage(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := record("1", "")
	s.SaveRecord(ctx, "run-1", rec)
	rec.Error = "disk full"
	if err := s.SaveRecord(ctx, "run-2", rec); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}

	count, _ := s.CountRecords(ctx, "")
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}
	if n, _ := s.CountRecords(ctx, "run-1"); n != 0 {
		t.Fatalf("run-1 still counts %d records", n)
	}
	if n, _ := s.CountRecords(ctx, "run-2"); n != 1 {
		t.Fatalf("run-2 counts %d records, want 1", n)
	}
	old, _ := s.LoadRecords(ctx, "run-1")
	if len(old) != 0 {
		t.Fatalf("record should have moved to run-2, run-1 still has %d", len(old))
	}
	latest, _ := s.LoadRecords(ctx, "run-2")
	if len(latest) != 1 || latest[0].Error != "disk full" {
		t.Fatalf("latest = %+v", latest)
	}
}

func TestRuns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if r, err := s.LastRun(ctx); err != nil || r != nil {
		t.Fatalf("LastRun on empty db = %v, %v", r, err)
	}
	if err := s.StartRun(ctx, "run-1", "invoice", 5); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := s.FinishRun(ctx, "run-1", 3, errors.New("quota")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	r, err := s.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if r.ID != "run-1" || r.Query != "invoice" || r.Limit != 5 || r.Records != 3 || r.Error != "quota" {
		t.Fatalf("run = %+v", r)
	}
	if r.FinishedAt.IsZero() {
		t.Fatal("finished_at not set")
	}

	if err := s.FinishRun(ctx, "missing", 0, nil); err == nil {
		t.Fatal("finishing an unknown run should fail")
	}
}
