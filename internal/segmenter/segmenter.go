// Package segmenter splits long transcripts into overlapping chunks for
// per-chunk LLM processing. Splits prefer paragraph and sentence boundaries
// over mid-word cuts, and consecutive chunks share a configured overlap so
// that context survives chunk boundaries and duplicated regions can be
// removed after processing.
package segmenter

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"unicode"
)

const (
	// DefaultMaxSize is the default maximum chunk size in runes.
	DefaultMaxSize = 1500
	// DefaultOverlap is the default number of runes shared between
	// consecutive chunks.
	DefaultOverlap = 100
	// DefaultTolerance is how far back from the cut point a boundary
	// search may reach before falling back to a hard cut.
	DefaultTolerance = 200
)

// ErrInvalidConfig reports unusable segmentation parameters.
var ErrInvalidConfig = errors.New("invalid segmenter configuration")

// Config holds segmentation parameters. All sizes are in runes, not bytes,
// so CJK transcripts are measured the same way as Latin ones.
type Config struct {
	MaxSize   int
	Overlap   int
	Tolerance int
}

// Chunk is a contiguous rune range of the input. Start and End are rune
// offsets; Overlap is the number of leading runes shared with the previous
// chunk (0 for the first). Stripping each chunk's leading Overlap runes and
// concatenating reconstructs the input exactly.
type Chunk struct {
	Index   int
	Start   int
	End     int
	Overlap int
	Text    string
}

// Segmenter produces chunk sequences for a validated configuration.
type Segmenter struct {
	cfg Config
}

// New validates cfg and returns a Segmenter. It fails with an error wrapping
// ErrInvalidConfig when MaxSize is not positive, Overlap is negative, or
// Overlap >= MaxSize. A zero Tolerance gets DefaultTolerance, clipped so a
// boundary search can never cut inside the previous chunk's overlap region.
func New(cfg Config) (*Segmenter, error) {
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConfig, cfg.MaxSize)
	}
	if cfg.Overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, cfg.Overlap)
	}
	if cfg.Overlap >= cfg.MaxSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than max size %d", ErrInvalidConfig, cfg.Overlap, cfg.MaxSize)
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if max := cfg.MaxSize - cfg.Overlap - 1; cfg.Tolerance > max {
		cfg.Tolerance = max
	}
	return &Segmenter{cfg: cfg}, nil
}

// Config returns the validated configuration in effect.
func (s *Segmenter) Config() Config {
	return s.cfg
}

// Split returns all chunks of text eagerly.
func (s *Segmenter) Split(text string) []Chunk {
	var chunks []Chunk
	for c := range s.Seq(text) {
		chunks = append(chunks, c)
	}
	return chunks
}

// Seq returns a lazy, finite sequence of chunks. Ranging over the sequence
// again restarts it from the first chunk.
func (s *Segmenter) Seq(text string) iter.Seq[Chunk] {
	runes := []rune(text)
	return func(yield func(Chunk) bool) {
		n := len(runes)
		if n == 0 {
			return
		}
		start, index := 0, 0
		for {
			overlap := 0
			if index > 0 {
				overlap = s.cfg.Overlap
			}
			end := n
			if n-start > s.cfg.MaxSize {
				end = s.cut(runes, start)
			}
			c := Chunk{
				Index:   index,
				Start:   start,
				End:     end,
				Overlap: overlap,
				Text:    string(runes[start:end]),
			}
			if !yield(c) {
				return
			}
			if end >= n {
				return
			}
			start = end - s.cfg.Overlap
			index++
		}
	}
}

// cut returns the rune offset at which to end the chunk starting at start.
// It searches backwards from the size limit, within the tolerance window,
// for (in order of preference) a paragraph break, a sentence end, or a
// whitespace boundary, and hard-cuts at the limit when none is found.
// The returned offset always exceeds start+overlap so every chunk makes
// progress past the shared region.
func (s *Segmenter) cut(runes []rune, start int) int {
	limit := start + s.cfg.MaxSize
	windowStart := limit - s.cfg.Tolerance
	if windowStart <= start+s.cfg.Overlap {
		windowStart = start + s.cfg.Overlap + 1
	}
	if windowStart >= limit {
		return limit
	}

	// Paragraph break: cut after the blank line.
	for i := limit - 2; i >= windowStart; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i + 2
		}
	}

	// Sentence end: CJK enders stand alone; Latin enders need a following
	// space or end of text.
	for i := limit - 1; i >= windowStart; i-- {
		r := runes[i]
		if isCJKSentenceEnd(r) {
			return i + 1
		}
		if (r == '.' || r == '!' || r == '?') &&
			(i+1 >= len(runes) || unicode.IsSpace(runes[i+1])) {
			return i + 1
		}
	}

	// Whitespace word boundary.
	for i := limit - 1; i >= windowStart; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}

	return limit
}

func isCJKSentenceEnd(r rune) bool {
	switch r {
	case '。', '！', '？', '；':
		return true
	}
	return false
}

var (
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	lineEdgeRe   = regexp.MustCompile(`(?m)^[ \t]+|[ \t]+$`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// Clean normalizes transcript whitespace before segmentation: CRLF and CR
// become LF, runs of spaces and tabs collapse to one space, line edges are
// trimmed, and runs of blank lines collapse to a single paragraph break.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = lineEdgeRe.ReplaceAllString(text, "")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Tail returns the last wordCount whitespace-separated words of text, for
// use as a continuity snippet when editing sequential chunks. Texts without
// word separators (typical for CJK) fall back to the last wordCount runes.
func Tail(text string, wordCount int) string {
	if wordCount <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) > wordCount {
		return strings.Join(words[len(words)-wordCount:], " ")
	}
	runes := []rune(strings.TrimSpace(text))
	if len(words) <= 1 && len(runes) > wordCount {
		return string(runes[len(runes)-wordCount:])
	}
	return strings.TrimSpace(text)
}
