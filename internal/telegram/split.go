package telegram

import "strings"

// MessageLimit is the chunk size for long messages, kept under the
// platform's 4096-character cap with headroom.
const MessageLimit = 4000

// SplitMessage splits text into chunks of at most maxLen characters,
// preferring to break at a newline, then a space, falling back to a hard
// cut. Chunk order matches the original text; joining the chunks loses
// only the whitespace at the break points.
func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			chunks = append(chunks, remaining)
			break
		}

		splitAt := maxLen
		if idx := strings.LastIndex(remaining[:maxLen], "\n"); idx > maxLen/2 {
			splitAt = idx + 1
		} else if idx := strings.LastIndex(remaining[:maxLen], " "); idx > maxLen/2 {
			splitAt = idx + 1
		}

		chunks = append(chunks, strings.TrimRight(remaining[:splitAt], " \n"))
		remaining = remaining[splitAt:]
	}
	return chunks
}
