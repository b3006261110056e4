// Package markdown finds diagram sources embedded in Markdown fenced code
// blocks and splices repaired sources back into the document.
package markdown

import (
	"sort"
	"strings"

	"github.com/dshills/diagfix/internal/diagnostic"
)

// Block is a fenced code block whose info string names a diagram notation.
type Block struct {
	Language diagnostic.Language
	// LineStart and LineEnd are the 1-based lines of the opening and
	// closing fences. The source lies strictly between them.
	LineStart int
	LineEnd   int
	Code      string
}

// Extract returns every closed diagram block of doc in document order.
// Blocks in other languages are skipped along with their content, so a
// fence nested in e.g. a ```markdown example is never reported. An unclosed
// fence runs to the end of the document and is ignored.
func Extract(doc string) []Block {
	lines := strings.Split(doc, "\n")
	var blocks []Block

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], "\r")
		fence := fencePrefix(line)
		if fence == "" {
			continue
		}
		lang := infoLanguage(line, fence)

		end := -1
		for j := i + 1; j < len(lines); j++ {
			if isClosingFence(strings.TrimRight(lines[j], "\r"), fence) {
				end = j
				break
			}
		}
		if end < 0 {
			break
		}
		if lang != diagnostic.LanguageUnknown {
			blocks = append(blocks, Block{
				Language:  lang,
				LineStart: i + 1,
				LineEnd:   end + 1,
				Code:      strings.Join(lines[i+1:end], "\n"),
			})
		}
		i = end
	}
	return blocks
}

// Replace returns doc with the content of each block replaced by the code
// at the same index. Blocks must come from Extract on the same doc.
func Replace(doc string, blocks []Block, codes []string) string {
	if len(blocks) == 0 {
		return doc
	}
	lines := strings.Split(doc, "\n")

	order := make([]int, len(blocks))
	for i := range order {
		order[i] = i
	}
	// Splice bottom-up so earlier line numbers stay valid.
	sort.Slice(order, func(a, b int) bool { return blocks[order[a]].LineStart > blocks[order[b]].LineStart })

	for _, i := range order {
		b := blocks[i]
		repl := strings.Split(strings.TrimRight(codes[i], "\n"), "\n")
		tail := append([]string{}, lines[b.LineEnd-1:]...)
		lines = append(append(lines[:b.LineStart], repl...), tail...)
	}
	return strings.Join(lines, "\n")
}

// infoLanguage maps the first word of a fence's info string to a notation.
func infoLanguage(line, fence string) diagnostic.Language {
	info := strings.TrimSpace(line)[len(fence):]
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return diagnostic.LanguageUnknown
	}
	return diagnostic.ParseLanguage(strings.Trim(fields[0], "{}."))
}

// fencePrefix returns the opening fence string (e.g. "```" or "~~~~") if line
// starts a fenced code block, otherwise returns "".
// CommonMark allows up to 3 leading spaces before the fence marker; lines
// with 4 or more leading spaces are indented code blocks.
func fencePrefix(line string) string {
	leading := 0
	for leading < len(line) && line[leading] == ' ' {
		leading++
	}
	if leading >= 4 {
		return ""
	}
	stripped := line[leading:]
	for _, marker := range []byte{'`', '~'} {
		if len(stripped) < 3 || stripped[0] != marker {
			continue
		}
		count := 0
		for count < len(stripped) && stripped[count] == marker {
			count++
		}
		if count >= 3 {
			return stripped[:count]
		}
	}
	return ""
}

// isClosingFence returns true if line is a valid closing fence for openFence:
// same fence character, at least as long, and only trailing spaces after
// the markers.
func isClosingFence(line, openFence string) bool {
	if len(openFence) == 0 {
		return false
	}
	fp := fencePrefix(line)
	if fp == "" || fp[0] != openFence[0] || len(fp) < len(openFence) {
		return false
	}
	leading := 0
	for leading < len(line) && line[leading] == ' ' {
		leading++
	}
	return strings.TrimLeft(line[leading+len(fp):], " ") == ""
}
