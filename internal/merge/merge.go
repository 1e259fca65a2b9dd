// Package merge reassembles per-chunk LLM outputs into one document,
// removing the regions duplicated by chunk overlap. Matching is
// confidence-scored: when no duplicate region can be located the chunk is
// kept behind a visible separator instead of being silently dropped.
package merge

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrAmbiguousOverlap reports that the duplicated region between two
// adjacent chunk outputs could not be located with confidence. It is
// non-fatal: the merged text still contains both chunks, joined by
// Separator.
var ErrAmbiguousOverlap = errors.New("could not locate overlap between adjacent chunks")

// Separator marks a join whose overlap could not be de-duplicated.
const Separator = "\n\n---\n\n"

const (
	// minMatch is the smallest run of runes accepted as a duplicate
	// region. Shorter matches are too likely to be coincidence.
	minMatch = 4
	// tailWindow is the minimum span of the previous output's tail
	// searched for duplicates, regardless of the configured overlap.
	tailWindow = 200
	// maxHeadLines bounds the line-level duplicate scan at the head of
	// each chunk output.
	maxHeadLines = 5
)

var blankRunsRe = regexp.MustCompile(`\n{3,}`)

// Merge joins parts in order, dropping the leading portion of every part
// after the first when it duplicates the tail of the accumulated output.
// overlapHint is the segmenter's configured overlap in runes and widens the
// search window; it may be 0.
//
// Two strategies run in order: an exact (case-folded) suffix/prefix match
// against the previous part's tail, then a line-level containment scan of
// the first few lines (the LLM may reflow the overlap into different
// whitespace). When neither finds a duplicate of at least minMatch runes,
// the part is appended behind Separator and the returned error wraps
// ErrAmbiguousOverlap with the part index; the text itself is never lost.
func Merge(parts []string, overlapHint int) (string, error) {
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			trimmed = append(trimmed, p)
		}
	}
	if len(trimmed) == 0 {
		return "", nil
	}

	var errs []error
	merged := trimmed[0]
	for i, part := range trimmed[1:] {
		if rest, ok := DropOverlap(merged, part, overlapHint); ok {
			merged = joinParts(merged, rest)
			continue
		}
		merged = merged + Separator + part
		errs = append(errs, fmt.Errorf("%w: part %d", ErrAmbiguousOverlap, i+1))
	}

	merged = blankRunsRe.ReplaceAllString(merged, "\n\n")
	return strings.TrimSpace(merged), errors.Join(errs...)
}

// DropOverlap removes the leading portion of cur that duplicates the tail of
// merged output prev, trying the exact suffix/prefix match first and the
// line-level scan second. It reports false when neither strategy found a
// duplicate of at least minMatch runes; cur is then returned unchanged.
func DropOverlap(prev, cur string, overlapHint int) (string, bool) {
	window := tailWindow
	if w := overlapHint * 2; w > window {
		window = w
	}
	if rest, ok := dropExactOverlap(prev, cur, window); ok {
		return rest, true
	}
	if rest, dropped := dropDuplicateLines(prev, cur, window); dropped > 0 {
		return rest, true
	}
	return cur, false
}

// dropExactOverlap looks for the longest case-folded match between a suffix
// of prev and a prefix of cur, up to window runes, and returns cur with the
// matched prefix removed. The minMatch floor applies to the trimmed match,
// so whitespace padding cannot stand in for real content.
func dropExactOverlap(prev, cur string, window int) (string, bool) {
	prevRunes := []rune(prev)
	curRunes := []rune(cur)

	max := window
	if len(prevRunes) < max {
		max = len(prevRunes)
	}
	if len(curRunes) < max {
		max = len(curRunes)
	}

	for n := max; n >= minMatch; n-- {
		tail := strings.TrimSpace(string(prevRunes[len(prevRunes)-n:]))
		head := strings.TrimSpace(string(curRunes[:n]))
		if len([]rune(head)) < minMatch {
			continue
		}
		if strings.EqualFold(tail, head) {
			return strings.TrimSpace(string(curRunes[n:])), true
		}
	}
	return cur, false
}

// dropDuplicateLines removes up to maxHeadLines leading lines of cur whose
// normalized form already appears in the normalized tail of prev. The scan
// stops at the first line that is not a duplicate.
func dropDuplicateLines(prev, cur string, window int) (string, int) {
	prevTail := normalize(tailRunes(prev, window))
	lines := strings.Split(cur, "\n")

	skip := 0
	for i, line := range lines {
		if i >= maxHeadLines {
			break
		}
		norm := normalize(line)
		if len([]rune(norm)) < minMatch {
			break
		}
		if strings.Contains(prevTail, norm) {
			skip = i + 1
			continue
		}
		break
	}
	if skip == 0 {
		return cur, 0
	}
	return strings.TrimSpace(strings.Join(lines[skip:], "\n")), skip
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// normalize lowercases and collapses all whitespace so that reflowed text
// still compares equal.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func joinParts(prev, next string) string {
	if next == "" {
		return prev
	}
	return prev + "\n\n" + next
}
