// Package prompt builds the fixed role prompts sent to the LLM. Two roles
// drive the pipeline: a basic proofreader for per-chunk correction and an
// editor for paragraph splitting, heading insertion, and Markdown output.
// Supporting prompts expand the optional domain-knowledge hint and keyword
// list before processing starts.
package prompt

import (
	"fmt"
	"strings"

	"github.com/proofly/proofly/internal/llm"
)

const (
	// ProofreadTemperature keeps correction conservative.
	ProofreadTemperature = 0.3
	// EditTemperature keeps restructuring conservative.
	EditTemperature = 0.3
	// ExpandTemperature loosens hint expansion slightly.
	ExpandTemperature = 0.5

	// HighlightsHeading is the Markdown heading under which the editor
	// role collects notable quotes. The editor stage relies on this exact
	// text when merging and extracting.
	HighlightsHeading = "## Highlights"
)

// ChunkPosition tells the editor role where its chunk sits in the document
// so multi-chunk edits stay coherent.
type ChunkPosition struct {
	Index       int // 1-based
	Total       int
	PrevSummary string // tail of the previously edited chunk, may be empty
}

// Single reports whether the chunk is the whole document.
func (p ChunkPosition) Single() bool {
	return p.Total <= 1
}

// Last reports whether the chunk closes the document.
func (p ChunkPosition) Last() bool {
	return p.Index >= p.Total
}

// Proofread builds the basic-proofreader request for one transcript chunk.
func Proofread(text, knowledge, keywords string) llm.CompletionRequest {
	var sb strings.Builder
	sb.WriteString("You are a careful proofreader for classroom-recording transcripts.\n")
	sb.WriteString("Correct the text you receive according to these rules:\n")
	sb.WriteString("1. Remove spoken fillers (\"um\", \"uh\", \"you know\", \"那个\", \"嗯\" and the like)\n")
	sb.WriteString("2. Fix typos, homophone mistakes, and grammar errors\n")
	sb.WriteString("3. Keep the original meaning; improve readability only\n")
	sb.WriteString("4. Preserve the existing paragraph structure\n")
	sb.WriteString("Output only the corrected text, with no explanation.")
	writeHints(&sb, knowledge, keywords)

	return llm.CompletionRequest{
		System:      sb.String(),
		Prompt:      text,
		Temperature: ProofreadTemperature,
	}
}

// Edit builds the editor request for one chunk of proofread text. The
// editor restructures into paragraphs with Markdown headings; the last (or
// only) chunk also closes the document with a highlights section.
func Edit(text string, pos ChunkPosition, knowledge, keywords string) llm.CompletionRequest {
	var sb strings.Builder
	sb.WriteString("You are an editor turning a corrected classroom transcript into a well-structured Markdown document.\n")
	sb.WriteString("Requirements:\n")
	sb.WriteString("1. Split the text into coherent paragraphs\n")
	sb.WriteString("2. Add a concise ## heading for each section (### for subsections where useful)\n")
	sb.WriteString("3. Improve structure and logical order without changing the substance\n")
	sb.WriteString("4. Output valid Markdown only, with no explanation")

	if !pos.Single() {
		switch {
		case pos.Index == 1:
			sb.WriteString(fmt.Sprintf("\n\nThis is chunk 1 of %d. Open the document with a suitable lead-in section.", pos.Total))
		case pos.Last():
			sb.WriteString(fmt.Sprintf("\n\nThis is the final chunk (%d of %d). Bring the document to a close.", pos.Index, pos.Total))
		default:
			sb.WriteString(fmt.Sprintf("\n\nThis is chunk %d of %d. Keep continuity with the surrounding chunks and do not add opening or closing remarks.", pos.Index, pos.Total))
		}
		if pos.PrevSummary != "" {
			sb.WriteString("\n\nThe previous chunk ended with:\n...")
			sb.WriteString(pos.PrevSummary)
		}
	}

	if pos.Last() || pos.Single() {
		sb.WriteString("\n\nEnd the document with a section titled \"")
		sb.WriteString(HighlightsHeading)
		sb.WriteString("\" containing a bullet list of the most quotable sentences from the text.")
	}

	writeHints(&sb, knowledge, keywords)

	return llm.CompletionRequest{
		System:      sb.String(),
		Prompt:      text,
		Temperature: EditTemperature,
	}
}

// ExpandKnowledge builds the request that enriches the user-supplied domain
// hint with a few core terms and one sentence of background.
func ExpandKnowledge(knowledge string) llm.CompletionRequest {
	system := "You expand brief domain hints used to guide transcript proofreading.\n" +
		"Add two or three core technical terms and one sentence of background.\n" +
		"Answer in at most three sentences, with no explanation."
	return llm.CompletionRequest{
		System:      system,
		Prompt:      knowledge,
		Temperature: ExpandTemperature,
	}
}

// ExpandKeywords builds the request that widens the user-supplied keyword
// list with related, same-level terms. knowledge may be empty.
func ExpandKeywords(keywords, knowledge string) llm.CompletionRequest {
	var sb strings.Builder
	sb.WriteString("You expand keyword lists used to guide transcript proofreading.\n")
	sb.WriteString("Add related technical terms of the same kind and level. Output only exact,\n")
	sb.WriteString("unambiguous keywords separated by commas, grouped by topic, with no explanation.")
	if knowledge != "" {
		sb.WriteString("\n\nDomain background:\n")
		sb.WriteString(knowledge)
	}
	return llm.CompletionRequest{
		System:      sb.String(),
		Prompt:      keywords,
		Temperature: ExpandTemperature,
	}
}

func writeHints(sb *strings.Builder, knowledge, keywords string) {
	if knowledge != "" {
		sb.WriteString("\n\nDomain background:\n")
		sb.WriteString(knowledge)
	}
	if keywords != "" {
		sb.WriteString("\n\nKey terms that must be spelled exactly as given:\n")
		sb.WriteString(keywords)
	}
}
