// Package postprocess removes common LLM artifacts from completion output.
//
// It is applied to the raw text returned by the model for every role
// (proofreader, editor, hint expansion) before the result is used
// downstream.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean removes LLM artifacts from text in three phases and returns the
// trimmed result:
//  1. Thinking / reasoning block removal
//  2. Instruction echo removal (prompt leakage)
//  3. Code-fence and quote wrapping removal
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeInstructionEchoes(text)
	text = removeFenceWrapping(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// --- Phase 1: thinking blocks ---

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// Each tag variant is listed explicitly because Go's RE2 engine does not
// support backreferences.
// Flags: i = case-insensitive, s = dot matches newline.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- Phase 2: instruction echoes ---

// echoPatterns match introductory phrases that LLMs sometimes prepend even
// when instructed not to. Each pattern is anchored to the start of the
// string and requires a colon to reduce false positives on legitimate
// content.
var echoPatterns = []*regexp.Regexp{
	// "Here is / Here's [the] [corrected|proofread|edited|revised] [text|transcript|version]:"
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:corrected |proofread |edited |revised |reorganized )?(?:text|transcript|version|document)\s*:`),
	// "[The] [corrected|proofread|edited] [text|transcript|version]:"
	regexp.MustCompile(`(?i)^(?:the )?(?:corrected |proofread |edited |revised |reorganized )(?:text|transcript|version|document)\s*:`),
	// "Certainly / Sure / Of course[,] here is [the] corrected text:"
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is)(?: the)? (?:corrected |proofread |edited |revised )?(?:text|transcript|version|document)\s*:`),
	// CJK transcripts: "校对后的文字：" / "整理后的内容："
	regexp.MustCompile(`^(?:以下是)?(?:校对|整理|编辑)后的(?:文字|内容|文本)\s*[:：]`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- Phase 3: wrapping ---

// fenceRe matches a whole response wrapped in a single ``` or ```markdown
// fence, a common artifact when the editor role is asked for Markdown.
var fenceRe = regexp.MustCompile("(?s)^```(?:markdown|md)?[ \t]*\n(.*?)\n?```$")

func removeFenceWrapping(text string) string {
	text = strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// removeQuoteWrapping strips a matching pair of outer quotes when the entire
// text is wrapped in them (a common LLM artifact).  Supported pairs:
//
//	"…"  '…'  «…»  “…”  ‘…’
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	if (first == '"' && last == '"') ||
		(first == '\'' && last == '\'') ||
		(first == '«' && last == '»') ||
		(first == '“' && last == '”') || // “ ”
		(first == '‘' && last == '’') { // ‘ ’
		return strings.TrimSpace(string(runes[1 : n-1]))
	}
	return text
}
