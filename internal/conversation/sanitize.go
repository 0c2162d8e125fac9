package conversation

import "regexp"

// The persona is contractually forbidden from emitting markdown emphasis, but
// retrieved snippets routinely contain it, and the model cannot be trusted to
// strip markers out of quoted source text. So snippets are cleaned
// programmatically before they reach the prompt.
var (
	wrappedAsterisks  = regexp.MustCompile(`\*+\s*(.*?)\s*\*+`)
	leadingAsterisk   = regexp.MustCompile(`\*(\w)`)
	trailingAsterisk  = regexp.MustCompile(`(\w)\*`)
	wrappedUnderscore = regexp.MustCompile(`_([^_]+)_`)
)

// StripEmphasis removes markdown-style emphasis markers from retrieved text.
func StripEmphasis(s string) string {
	s = wrappedAsterisks.ReplaceAllString(s, "$1")
	s = leadingAsterisk.ReplaceAllString(s, "$1")
	s = trailingAsterisk.ReplaceAllString(s, "$1")
	s = wrappedUnderscore.ReplaceAllString(s, "$1")
	return s
}
