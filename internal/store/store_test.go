package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveSubmissionAndChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveSubmission(ctx, "sub-1", "raw transcript", "know", "keys", "gpt-4o-mini"); err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}
	if err := s.SaveChunkResult(ctx, "sub-1", "proofread", 0, "chunk output", 1200, ""); err != nil {
		t.Fatalf("SaveChunkResult: %v", err)
	}
	// Replacing the same chunk is allowed (retried chunk).
	if err := s.SaveChunkResult(ctx, "sub-1", "proofread", 0, "retried output", 900, ""); err != nil {
		t.Fatalf("SaveChunkResult replace: %v", err)
	}
	if err := s.SaveChunkResult(ctx, "sub-1", "edit", 0, "edited output", 2100, ""); err != nil {
		t.Fatalf("SaveChunkResult edit: %v", err)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, found, err := s.GetCachedResult(ctx, "transcript body", "m1")
	if err != nil {
		t.Fatalf("GetCachedResult: %v", err)
	}
	if found {
		t.Fatal("unexpected hit on empty cache")
	}

	if err := s.SaveResult(ctx, "transcript body", "m1", "proofread text", "# markdown"); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	proofread, markdown, found, err := s.GetCachedResult(ctx, "transcript body", "m1")
	if err != nil {
		t.Fatalf("GetCachedResult: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if proofread != "proofread text" || markdown != "# markdown" {
		t.Errorf("got %q / %q", proofread, markdown)
	}

	// A different model misses.
	if _, _, found, _ := s.GetCachedResult(ctx, "transcript body", "m2"); found {
		t.Error("different model must not hit the cache")
	}
}

func TestCacheKeyNormalization(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// "é" as a combining sequence on save, precomposed on lookup.
	if err := s.SaveResult(ctx, "  résumé text  ", "m", "p", "md"); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	_, _, found, err := s.GetCachedResult(ctx, "résumé text", "m")
	if err != nil {
		t.Fatalf("GetCachedResult: %v", err)
	}
	if !found {
		t.Error("NFC-equivalent text must hit the cache")
	}
}

func TestCacheUsageCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveResult(ctx, "text", "m", "p", "md"); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, _, found, err := s.GetCachedResult(ctx, "text", "m"); err != nil || !found {
			t.Fatalf("hit %d: found=%v err=%v", i, found, err)
		}
	}

	entries, err := s.ListCache(ctx)
	if err != nil {
		t.Fatalf("ListCache: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	// Initial save counts as 1, plus three hits.
	if entries[0].UsageCount != 4 {
		t.Errorf("UsageCount = %d, want 4", entries[0].UsageCount)
	}
}

func TestInvalidateEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveResult(ctx, "text", "m", "p", "md"); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	entries, err := s.ListCache(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("ListCache: %v (%d entries)", err, len(entries))
	}

	if err := s.InvalidateEntry(ctx, entries[0].ID); err != nil {
		t.Fatalf("InvalidateEntry: %v", err)
	}
	if _, _, found, _ := s.GetCachedResult(ctx, "text", "m"); found {
		t.Error("invalidated entry must not hit")
	}

	// The row itself survives invalidation.
	entries, _ = s.ListCache(ctx)
	if len(entries) != 1 || !entries[0].Invalidated {
		t.Errorf("expected 1 invalidated entry, got %+v", entries)
	}
}

func TestSaveResult_ReplacesAndRevalidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveResult(ctx, "text", "m", "old p", "old md"); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	entries, _ := s.ListCache(ctx)
	if err := s.InvalidateEntry(ctx, entries[0].ID); err != nil {
		t.Fatalf("InvalidateEntry: %v", err)
	}

	if err := s.SaveResult(ctx, "text", "m", "new p", "new md"); err != nil {
		t.Fatalf("SaveResult replace: %v", err)
	}
	proofread, _, found, err := s.GetCachedResult(ctx, "text", "m")
	if err != nil {
		t.Fatalf("GetCachedResult: %v", err)
	}
	if !found || proofread != "new p" {
		t.Errorf("replaced entry should hit with new content, found=%v proofread=%q", found, proofread)
	}
}

func TestDeleteEntryAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.SaveResult(ctx, "one", "m", "p1", "md1")
	_ = s.SaveResult(ctx, "two", "m", "p2", "md2")

	entries, _ := s.ListCache(ctx)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if err := s.DeleteEntry(ctx, entries[0].ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	entries, _ = s.ListCache(ctx)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after delete, got %d", len(entries))
	}

	n, err := s.ClearCache(ctx)
	if err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if n != 1 {
		t.Errorf("ClearCache removed %d rows, want 1", n)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalEntries != 0 {
		t.Errorf("empty cache TotalEntries = %d", stats.TotalEntries)
	}

	_ = s.SaveResult(ctx, "one", "m", "p", "md")
	_ = s.SaveResult(ctx, "two", "m", "p", "md")
	_, _, _, _ = s.GetCachedResult(ctx, "one", "m")
	entries, _ := s.ListCache(ctx)
	for _, e := range entries {
		if e.SourceText == "two" {
			_ = s.InvalidateEntry(ctx, e.ID)
		}
	}

	stats, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalEntries != 2 || stats.ActiveEntries != 1 || stats.InvalidEntries != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalUsage != 3 {
		t.Errorf("TotalUsage = %d, want 3", stats.TotalUsage)
	}
}
