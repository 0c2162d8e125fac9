package messaging

import "strings"

const (
	// MaxChunkLines keeps replies in short conversational bubbles.
	MaxChunkLines = 2
	// MaxChunkChars stays under the gateway's message size ceiling.
	MaxChunkChars = 1000
)

// SplitMessage breaks text into chunks of at most maxLines lines and
// maxChars characters, splitting only on line boundaries. A single line
// longer than maxChars still becomes its own chunk.
func SplitMessage(text string, maxLines, maxChars int) []string {
	lines := strings.Split(text, "\n")
	var chunks []string
	var current []string
	chars := 0

	for _, line := range lines {
		lineLen := len(line)
		if len(current) > 0 {
			lineLen++
		}
		if len(current) > 0 && (len(current) >= maxLines || chars+lineLen > maxChars) {
			chunks = append(chunks, strings.Join(current, "\n"))
			current = nil
			chars = 0
			lineLen = len(line)
		}
		current = append(current, line)
		chars += lineLen
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}
