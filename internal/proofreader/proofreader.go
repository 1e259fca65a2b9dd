// Package proofreader implements Stage 1 of the pipeline: it segments a
// transcript into overlapping chunks, sends each chunk to the LLM with the
// basic-proofreader role prompt, and merges the corrected chunks back into
// one document with the duplicated overlap regions removed.
package proofreader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/proofly/proofly/internal/llm"
	"github.com/proofly/proofly/internal/merge"
	"github.com/proofly/proofly/internal/prompt"
	"github.com/proofly/proofly/internal/segmenter"
)

// ChunkError reports the failure of a single chunk's LLM call so the caller
// can retry just that chunk or abort the submission.
type ChunkError struct {
	Index int // 0-based chunk index
	Total int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("proofread chunk %d/%d: %v", e.Index+1, e.Total, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Result carries the merged corrected document plus processing counters.
// Parts holds the per-chunk outputs in chunk order, before merging.
type Result struct {
	Text           string
	Parts          []string
	Chunks         int
	AmbiguousJoins int
}

// Proofreader runs per-chunk correction through a bounded worker pool.
type Proofreader struct {
	client  llm.Client
	seg     *segmenter.Segmenter
	workers int
	log     *log.Logger
}

// New creates a Proofreader. workers bounds concurrent LLM calls; 1 means
// strictly sequential processing.
func New(client llm.Client, seg *segmenter.Segmenter, workers int, logger *log.Logger) *Proofreader {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Proofreader{client: client, seg: seg, workers: workers, log: logger}
}

// Run cleans and segments text, proofreads every chunk, and returns the
// merged corrected document. Results are reassembled strictly by chunk
// index regardless of completion order. If any chunk fails after the
// client's retry budget, Run returns a *ChunkError and no partial output.
func (p *Proofreader) Run(ctx context.Context, text, knowledge, keywords string) (*Result, error) {
	cleaned := segmenter.Clean(text)
	if cleaned == "" {
		return &Result{}, nil
	}

	chunks := p.seg.Split(cleaned)
	p.log.Info("proofreading transcript", "runes", len([]rune(cleaned)), "chunks", len(chunks))

	if len(chunks) == 1 {
		out, err := p.client.Complete(ctx, prompt.Proofread(chunks[0].Text, knowledge, keywords))
		if err != nil {
			return nil, &ChunkError{Index: 0, Total: 1, Err: err}
		}
		return &Result{Text: out, Parts: []string{out}, Chunks: 1}, nil
	}

	type outcome struct {
		index int
		text  string
		err   error
	}
	outcomes := make(chan outcome, len(chunks))
	sem := newSemaphore(p.workers)

	var wg sync.WaitGroup
	for _, c := range chunks {
		wg.Add(1)
		go func(c segmenter.Chunk) {
			defer wg.Done()
			if err := sem.acquire(ctx); err != nil {
				outcomes <- outcome{index: c.Index, err: err}
				return
			}
			defer sem.release()

			out, err := p.client.Complete(ctx, prompt.Proofread(c.Text, knowledge, keywords))
			outcomes <- outcome{index: c.Index, text: out, err: err}
		}(c)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make([]string, len(chunks))
	var failed *ChunkError
	for o := range outcomes {
		if o.err != nil {
			p.log.Error("chunk failed", "chunk", o.index+1, "total", len(chunks), "err", o.err)
			if failed == nil || o.index < failed.Index {
				failed = &ChunkError{Index: o.index, Total: len(chunks), Err: o.err}
			}
			continue
		}
		results[o.index] = o.text
	}
	if failed != nil {
		return nil, failed
	}

	merged, err := merge.Merge(results, p.seg.Config().Overlap)
	ambiguous := 0
	if err != nil {
		// Ambiguous joins are non-fatal: the text is preserved behind
		// visible separators.
		if !errors.Is(err, merge.ErrAmbiguousOverlap) {
			return nil, err
		}
		ambiguous = countAmbiguous(err)
		p.log.Warn("overlap could not be fully de-duplicated", "joins", ambiguous)
	}

	return &Result{Text: merged, Parts: results, Chunks: len(chunks), AmbiguousJoins: ambiguous}, nil
}

// countAmbiguous unwraps a joined merge error to count individual
// ambiguous joins.
func countAmbiguous(err error) int {
	type unwrapper interface{ Unwrap() []error }
	if u, ok := err.(unwrapper); ok {
		return len(u.Unwrap())
	}
	if errors.Is(err, merge.ErrAmbiguousOverlap) {
		return 1
	}
	return 0
}
