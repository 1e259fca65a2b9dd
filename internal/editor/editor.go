// Package editor implements Stage 2 of the pipeline: it takes the
// proofread transcript and asks the LLM, in the editor role, to split it
// into paragraphs, insert Markdown headings, and close the document with a
// highlights section. Documents too long for one call are re-segmented
// with the same invariants as Stage 1 and edited chunk by chunk with
// positional context.
package editor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/proofly/proofly/internal/llm"
	"github.com/proofly/proofly/internal/merge"
	"github.com/proofly/proofly/internal/prompt"
	"github.com/proofly/proofly/internal/segmenter"
)

// prevSummaryWords is how many trailing words of the previously edited
// chunk are handed to the next chunk's prompt for continuity.
const prevSummaryWords = 40

// Result carries the edited Markdown document and the highlights collected
// from its closing section. Parts holds the per-chunk outputs in order.
type Result struct {
	Markdown   string
	Parts      []string
	Highlights []string
	Chunks     int
}

// Editor drives the editorial restructuring stage.
type Editor struct {
	client llm.Client
	seg    *segmenter.Segmenter
	log    *log.Logger
}

// New creates an Editor. seg is only consulted for documents that exceed a
// single editing chunk.
func New(client llm.Client, seg *segmenter.Segmenter, logger *log.Logger) *Editor {
	if logger == nil {
		logger = log.Default()
	}
	return &Editor{client: client, seg: seg, log: logger}
}

// Run edits text into structured Markdown. Chunked editing is sequential:
// each chunk's prompt carries a summary of the previous chunk's output, so
// parallelizing would break the continuity chain.
func (e *Editor) Run(ctx context.Context, text, knowledge, keywords string) (*Result, error) {
	cleaned := segmenter.Clean(text)
	if cleaned == "" {
		return &Result{}, nil
	}

	if len([]rune(cleaned)) <= e.seg.Config().MaxSize {
		out, err := e.client.Complete(ctx, prompt.Edit(cleaned, prompt.ChunkPosition{Index: 1, Total: 1}, knowledge, keywords))
		if err != nil {
			return nil, fmt.Errorf("edit document: %w", err)
		}
		return e.finish([]string{out}), nil
	}

	chunks := e.seg.Split(cleaned)
	e.log.Info("editing in chunks", "chunks", len(chunks))

	edited := make([]string, 0, len(chunks))
	prevSummary := ""
	for _, c := range chunks {
		pos := prompt.ChunkPosition{
			Index:       c.Index + 1,
			Total:       len(chunks),
			PrevSummary: prevSummary,
		}
		out, err := e.client.Complete(ctx, prompt.Edit(c.Text, pos, knowledge, keywords))
		if err != nil {
			return nil, fmt.Errorf("edit chunk %d/%d: %w", c.Index+1, len(chunks), err)
		}
		edited = append(edited, out)
		prevSummary = segmenter.Tail(out, prevSummaryWords)
	}

	return e.finish(edited), nil
}

// finish merges edited chunks, de-duplicates repeated headings across
// boundaries, and moves the highlights section to the end of the document.
func (e *Editor) finish(edited []string) *Result {
	merged := mergeEdited(edited, e.seg.Config().Overlap)
	doc, highlights := extractHighlights(merged)

	if len(highlights) > 0 {
		var sb strings.Builder
		sb.WriteString(doc)
		sb.WriteString("\n\n")
		sb.WriteString(prompt.HighlightsHeading)
		sb.WriteString("\n")
		for _, h := range highlights {
			sb.WriteString("- ")
			sb.WriteString(h)
			sb.WriteString("\n")
		}
		doc = strings.TrimSpace(sb.String())
	}

	return &Result{Markdown: doc, Parts: edited, Highlights: highlights, Chunks: len(edited)}
}

var headingRe = regexp.MustCompile(`^(#{1,3})\s+(.+?)\s*$`)

// mergeEdited joins edited chunk outputs. Each chunk carries the configured
// overlap of the previous one at its head, so the duplicated region is
// removed the same way the proofread stage merges; on top of that a chunk's
// leading heading is dropped when the same heading already appeared earlier
// (the editor tends to re-emit the section title around a split point).
func mergeEdited(parts []string, overlapHint int) string {
	seen := make(map[string]bool)
	var out []string

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if len(out) > 0 {
			if rest, ok := merge.DropOverlap(strings.Join(out, "\n\n"), part, overlapHint); ok {
				part = rest
			}
		}
		lines := strings.Split(part, "\n")
		var kept []string
		for i, line := range lines {
			m := headingRe.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				kept = append(kept, line)
				continue
			}
			key := strings.ToLower(m[2])
			// Only a heading at a chunk's head can duplicate the
			// previous chunk's tail section.
			if i < 3 && seen[key] {
				continue
			}
			seen[key] = true
			kept = append(kept, line)
		}
		if cleaned := strings.TrimSpace(strings.Join(kept, "\n")); cleaned != "" {
			out = append(out, cleaned)
		}
	}

	merged := strings.Join(out, "\n\n")
	merged = regexp.MustCompile(`\n{3,}`).ReplaceAllString(merged, "\n\n")
	return strings.TrimSpace(merged)
}

// extractHighlights removes every highlights section from the document and
// returns the remaining document plus the de-duplicated bullet items in
// order of first appearance.
func extractHighlights(doc string) (string, []string) {
	lines := strings.Split(doc, "\n")
	var kept []string
	var highlights []string
	seen := make(map[string]bool)

	inSection := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			inSection = isHighlightsHeading(trimmed)
			if inSection {
				continue
			}
		}
		if inSection {
			if item, ok := strings.CutPrefix(trimmed, "- "); ok {
				item = strings.TrimSpace(item)
				key := strings.ToLower(strings.Join(strings.Fields(item), " "))
				if item != "" && !seen[key] {
					seen[key] = true
					highlights = append(highlights, item)
				}
			}
			continue
		}
		kept = append(kept, line)
	}

	out := strings.TrimSpace(strings.Join(kept, "\n"))
	out = regexp.MustCompile(`\n{3,}`).ReplaceAllString(out, "\n\n")
	return out, highlights
}

func isHighlightsHeading(line string) bool {
	norm := strings.ToLower(strings.TrimLeft(line, "# "))
	want := strings.ToLower(strings.TrimLeft(prompt.HighlightsHeading, "# "))
	return strings.Contains(norm, want)
}

// ExtractHighlights returns the highlight bullets of an edited Markdown
// document without modifying it. It is used when a caller wants the quotes
// on their own.
func ExtractHighlights(doc string) []string {
	_, highlights := extractHighlights(doc)
	return highlights
}
