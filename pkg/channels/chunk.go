package channels

import (
	"strings"
	"unicode/utf8"
)

const codeFence = "```"

// fenceCloseCost is what closing a block at the end of a chunk adds.
var fenceCloseCost = utf8.RuneCountInString("\n" + codeFence)

// fenceHeadroom is kept free on hard-cut lines for a reopened block header.
const fenceHeadroom = 64

// chunkText breaks text into pieces of at most limit runes, cutting at line
// ends. A code block that straddles a cut is closed at the end of one piece and
// reopened with the same opening line at the start of the next, so every
// piece renders on its own.
func chunkText(text string, limit int) []string {
	text = strings.TrimRight(text, "\n")
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		pieces []string
		buf    strings.Builder
		size   int
		open   string // opening line of the block being written, "" outside one
	)
	emit := func() {
		body := strings.TrimRight(buf.String(), "\n")
		if open != "" {
			body += "\n" + codeFence
		}
		if strings.TrimSpace(body) != "" && body != open+"\n"+codeFence {
			pieces = append(pieces, body)
		}
		buf.Reset()
		size = 0
		if open != "" {
			buf.WriteString(open + "\n")
			size = utf8.RuneCountInString(open) + 1
		}
	}

	width := limit - fenceHeadroom
	if width < 1 {
		width = limit
	}
	for _, line := range wrapLines(strings.Split(text, "\n"), width) {
		n := utf8.RuneCountInString(line) + 1
		if size > 0 && size+n+fenceCloseCost > limit {
			emit()
		}
		buf.WriteString(line + "\n")
		size += n

		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, codeFence) {
			if open == "" {
				open = trimmed
			} else {
				open = ""
			}
		}
	}
	if buf.Len() > 0 {
		emit()
	}
	return pieces
}

// wrapLines hard-cuts lines longer than width runes. Lines shorter than that,
// which is nearly all chat output, pass through untouched.
func wrapLines(lines []string, width int) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		for utf8.RuneCountInString(line) > width {
			runes := []rune(line)
			out = append(out, string(runes[:width]))
			line = string(runes[width:])
		}
		out = append(out, line)
	}
	return out
}
