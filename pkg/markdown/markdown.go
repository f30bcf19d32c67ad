// Package markdown strips Markdown syntax from LLM replies so they can be
// handed to a speech synthesizer as plain prose.
package markdown

import "regexp"

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Order matters: fenced blocks go before inline code so a fence never reads
// as two empty code spans, and images go before links so "![a](u)" never
// degrades into "!a".
var rules = []rule{
	{regexp.MustCompile(`(?m)^#{1,6}\s+`), ""},
	{regexp.MustCompile("```[\\s\\S]*?```"), ""},
	{regexp.MustCompile(`\*\*(.*?)\*\*`), "$1"},
	{regexp.MustCompile(`\*(.*?)\*`), "$1"},
	{regexp.MustCompile(`__(.*?)__`), "$1"},
	{regexp.MustCompile(`_(.*?)_`), "$1"},
	{regexp.MustCompile("`(.*?)`"), "$1"},
	{regexp.MustCompile(`~~(.*?)~~`), "$1"},
	{regexp.MustCompile(`!\[(.*?)\]\(.*?\)`), ""},
	{regexp.MustCompile(`\[(.*?)\]\(.*?\)`), "$1"},
	{regexp.MustCompile(`(?m)^[-*_]{3,}$`), ""},
	{regexp.MustCompile(`(?m)^>\s+`), ""},
	{regexp.MustCompile(`(?m)^[\s]*[-*+]\s+`), ""},
	{regexp.MustCompile(`(?m)^[\s]*\d+\.\s+`), ""},
	{regexp.MustCompile(`\n{2,}`), "\n"},
	{regexp.MustCompile(`\s{2,}`), " "},
	{regexp.MustCompile("[#*_~`>-]+"), ""},
}

// Clean removes Markdown formatting from text and keeps the readable content.
//
// The rule set is applied until the output stops changing. Every rule that
// matches shortens the text, so the loop terminates, and the result is a
// fixed point: Clean(Clean(s)) == Clean(s). Surrounding whitespace is kept.
func Clean(text string) string {
	for {
		next := pass(text)
		if next == text {
			return next
		}
		text = next
	}
}

func pass(text string) string {
	for _, r := range rules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return text
}
