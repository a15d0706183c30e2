package llm

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	scriptPattern  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	stylePattern   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	newlinePattern = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</h[1-6]>`)
	tagPattern     = regexp.MustCompile(`<[^>]+>`)
	multiNewlines  = regexp.MustCompile(`\n{3,}`)
	entityReplacer = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&apos;", "'",
	)
)

// StripHTML reduces an HTML body to readable plain text for the model
// prompt. Script and style blocks are dropped entirely; block-level
// closers become newlines so paragraph structure survives.
func StripHTML(html string) string {
	text := scriptPattern.ReplaceAllString(html, "")
	text = stylePattern.ReplaceAllString(text, "")
	text = newlinePattern.ReplaceAllString(text, "\n")
	text = tagPattern.ReplaceAllString(text, "")
	text = entityReplacer.Replace(text)
	text = multiNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Truncate caps body text at maxChars with an explicit marker so the
// model knows content was cut. The cut backs off to a rune boundary so
// a multi-byte character is never split.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}

	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n[content truncated]"
}
