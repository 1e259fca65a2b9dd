// Package pipeline wires the two LLM stages together: proofread the
// transcript chunk by chunk, then restructure the corrected document into
// Markdown. Each submission gets its own request-scoped Result; nothing is
// shared across submissions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/proofly/proofly/internal/editor"
	"github.com/proofly/proofly/internal/llm"
	"github.com/proofly/proofly/internal/proofreader"
	"github.com/proofly/proofly/internal/prompt"
	"github.com/proofly/proofly/internal/segmenter"
	"github.com/proofly/proofly/internal/store"
)

// ErrEmptySubmission reports a submission with no usable text.
var ErrEmptySubmission = errors.New("submission text is empty")

// Submission is one transcript to process. Knowledge and Keywords are
// optional hints passed into both role prompts; ExpandHints runs them
// through the LLM first to enrich them. EditOnly skips the proofread stage
// and runs the editor directly on the submitted text (for transcripts that
// were already corrected).
type Submission struct {
	Text        string
	Knowledge   string
	Keywords    string
	ExpandHints bool
	EditOnly    bool
}

// Stats describes how a submission was processed.
type Stats struct {
	ProofreadChunks int
	EditChunks      int
	AmbiguousJoins  int
	InputRunes      int
	Duration        time.Duration
	Cached          bool
}

// Result is the processed pair for one submission. It lives only as long
// as the caller keeps it; the optional store persists a copy for cache
// lookups.
type Result struct {
	ID         string
	Proofread  string
	Markdown   string
	Highlights []string
	Knowledge  string
	Keywords   string
	Stats      Stats
}

// Pipeline runs submissions through both stages.
type Pipeline struct {
	client llm.Client
	pr     *proofreader.Proofreader
	ed     *editor.Editor
	db     *store.Store // nil disables caching and persistence
	model  string
	log    *log.Logger
}

// New assembles a Pipeline. db may be nil; model names the configured LLM
// and keys the result cache.
func New(client llm.Client, pr *proofreader.Proofreader, ed *editor.Editor, db *store.Store, model string, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{client: client, pr: pr, ed: ed, db: db, model: model, log: logger}
}

// Process runs one submission through both stages and returns its Result.
// A failed chunk aborts the submission with the chunk's error; no partial
// output is returned.
func (p *Pipeline) Process(ctx context.Context, sub Submission) (*Result, error) {
	start := time.Now()

	cleaned := segmenter.Clean(sub.Text)
	if cleaned == "" {
		return nil, ErrEmptySubmission
	}

	id := uuid.New().String()
	res := &Result{
		ID:        id,
		Knowledge: strings.TrimSpace(sub.Knowledge),
		Keywords:  strings.TrimSpace(sub.Keywords),
	}
	res.Stats.InputRunes = len([]rune(cleaned))

	// The cache pairs a proofread text with its markdown; an edit-only run
	// produces no proofread text, so it neither reads nor writes the cache.
	if p.db != nil && !sub.EditOnly {
		proofread, markdown, found, err := p.db.GetCachedResult(ctx, cleaned, p.model)
		if err != nil {
			p.log.Warn("cache lookup failed", "err", err)
		} else if found {
			p.log.Info("using cached result", "id", id)
			res.Proofread = proofread
			res.Markdown = markdown
			res.Highlights = editor.ExtractHighlights(markdown)
			res.Stats.Cached = true
			res.Stats.Duration = time.Since(start)
			return res, nil
		}
	}

	if sub.ExpandHints {
		res.Knowledge, res.Keywords = p.expandHints(ctx, res.Knowledge, res.Keywords)
	}

	var proofParts []string
	if sub.EditOnly {
		res.Proofread = cleaned
	} else {
		prRes, err := p.pr.Run(ctx, cleaned, res.Knowledge, res.Keywords)
		if err != nil {
			return nil, fmt.Errorf("proofread stage: %w", err)
		}
		res.Proofread = prRes.Text
		res.Stats.ProofreadChunks = prRes.Chunks
		res.Stats.AmbiguousJoins = prRes.AmbiguousJoins
		proofParts = prRes.Parts
	}

	edRes, err := p.ed.Run(ctx, res.Proofread, res.Knowledge, res.Keywords)
	if err != nil {
		return nil, fmt.Errorf("edit stage: %w", err)
	}
	res.Markdown = edRes.Markdown
	res.Highlights = edRes.Highlights
	res.Stats.EditChunks = edRes.Chunks

	if p.db != nil {
		p.persist(ctx, id, cleaned, res, proofParts, edRes.Parts, !sub.EditOnly)
	}

	res.Stats.Duration = time.Since(start)
	p.log.Info("submission processed",
		"id", id,
		"chunks", res.Stats.ProofreadChunks,
		"edit_chunks", edRes.Chunks,
		"duration", res.Stats.Duration)
	return res, nil
}

// expandHints enriches the optional knowledge and keyword hints through
// the LLM. Expansion is best-effort: any failure keeps the original hint.
func (p *Pipeline) expandHints(ctx context.Context, knowledge, keywords string) (string, string) {
	if knowledge != "" {
		expanded, err := p.client.Complete(ctx, prompt.ExpandKnowledge(knowledge))
		if err != nil {
			p.log.Warn("knowledge expansion failed, keeping original", "err", err)
		} else {
			knowledge = expanded
		}
	}
	if keywords != "" {
		expanded, err := p.client.Complete(ctx, prompt.ExpandKeywords(keywords, knowledge))
		if err != nil {
			p.log.Warn("keyword expansion failed, keeping original", "err", err)
		} else {
			keywords = expanded
		}
	}
	return knowledge, keywords
}

// persist is best-effort: storage failures are logged, never surfaced.
// cacheable gates the result-cache write; edit-only runs are not cached.
func (p *Pipeline) persist(ctx context.Context, id, cleaned string, res *Result, proofParts, editParts []string, cacheable bool) {
	if err := p.db.SaveSubmission(ctx, id, cleaned, res.Knowledge, res.Keywords, p.model); err != nil {
		p.log.Warn("failed to save submission", "err", err)
		return
	}
	for i, part := range proofParts {
		if err := p.db.SaveChunkResult(ctx, id, "proofread", i, part, 0, ""); err != nil {
			p.log.Warn("failed to save chunk result", "stage", "proofread", "chunk", i, "err", err)
		}
	}
	for i, part := range editParts {
		if err := p.db.SaveChunkResult(ctx, id, "edit", i, part, 0, ""); err != nil {
			p.log.Warn("failed to save chunk result", "stage", "edit", "chunk", i, "err", err)
		}
	}
	if !cacheable {
		return
	}
	if err := p.db.SaveResult(ctx, cleaned, p.model, res.Proofread, res.Markdown); err != nil {
		p.log.Warn("failed to save result", "err", err)
	}
}
