// Package store persists processed submissions in SQLite: a result cache
// keyed by normalized source text and model, plus per-chunk records for
// inspecting what each LLM call produced.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		knowledge TEXT,
		keywords TEXT,
		model TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chunk_results (
		id TEXT PRIMARY KEY,
		submission_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		output_text TEXT NOT NULL,
		latency_ms INTEGER,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (submission_id) REFERENCES submissions(id)
	);

	-- result_cache lets a resubmitted transcript skip both LLM stages
	CREATE TABLE IF NOT EXISTS result_cache (
		id TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		model TEXT NOT NULL,
		proofread_text TEXT NOT NULL,
		markdown_text TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_text, model)
	);

	CREATE INDEX IF NOT EXISTS idx_cache_lookup ON result_cache(source_text, model);
	CREATE INDEX IF NOT EXISTS idx_chunks_submission ON chunk_results(submission_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSubmission records an incoming transcript submission.
func (s *Store) SaveSubmission(ctx context.Context, id, sourceText, knowledge, keywords, model string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, source_text, knowledge, keywords, model, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, sourceText, knowledge, keywords, model, time.Now())
	return err
}

// SaveChunkResult records one chunk's LLM output for a stage ("proofread"
// or "edit").
func (s *Store) SaveChunkResult(ctx context.Context, submissionID, stage string, chunkIndex int, outputText string, latencyMs int, errMsg string) error {
	id := fmt.Sprintf("%s_%s_%d", submissionID, stage, chunkIndex)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunk_results (id, submission_id, stage, chunk_index, output_text, latency_ms, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, submissionID, stage, chunkIndex, outputText, latencyMs, errMsg)
	return err
}

// GetCachedResult returns the cached proofread/markdown pair for a
// transcript, if present and not invalidated. Hits bump the usage counter.
func (s *Store) GetCachedResult(ctx context.Context, sourceText, model string) (proofread, markdown string, found bool, err error) {
	var invalidated bool

	err = s.db.QueryRowContext(ctx,
		`SELECT proofread_text, markdown_text, invalidated FROM result_cache WHERE source_text = ? AND model = ?`,
		normalizeText(sourceText), model).Scan(&proofread, &markdown, &invalidated)

	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}

	if invalidated {
		return "", "", false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE result_cache SET usage_count = usage_count + 1, last_used = ? WHERE source_text = ? AND model = ?`,
		time.Now(), normalizeText(sourceText), model)

	return proofread, markdown, true, err
}

// SaveResult stores (or replaces) the processed pair for a transcript.
func (s *Store) SaveResult(ctx context.Context, sourceText, model, proofread, markdown string) error {
	id := fmt.Sprintf("res_%d", time.Now().UnixNano())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO result_cache (id, source_text, model, proofread_text, markdown_text, usage_count, invalidated, last_used, created_at) VALUES (?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		id, normalizeText(sourceText), model, proofread, markdown, time.Now(), time.Now())
	return err
}

// CacheEntry is a row from the result_cache table.
type CacheEntry struct {
	ID          string
	SourceText  string
	Model       string
	UsageCount  int
	Invalidated bool
	LastUsed    time.Time
}

// CacheStats summarises result cache usage.
type CacheStats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalUsage     int
}

// InvalidateEntry marks a cache entry stale without removing it.
func (s *Store) InvalidateEntry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE result_cache SET invalidated = TRUE WHERE id = ?`, id)
	return err
}

// DeleteEntry permanently removes a cache entry by ID.
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM result_cache WHERE id = ?`, id)
	return err
}

// ClearCache removes all cache entries and returns how many were deleted.
func (s *Store) ClearCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM result_cache`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListCache returns all cache entries ordered by most recently used.
func (s *Store) ListCache(ctx context.Context) ([]CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_text, model, usage_count, invalidated, last_used FROM result_cache ORDER BY last_used DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CacheEntry
	for rows.Next() {
		var e CacheEntry
		if err := rows.Scan(&e.ID, &e.SourceText, &e.Model, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// Stats returns summary statistics for the result cache.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM result_cache`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
