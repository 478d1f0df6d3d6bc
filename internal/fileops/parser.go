package fileops

import (
	"regexp"
	"sort"
	"strings"
)

// Regexps for the two block forms. The write pattern is lazy so that each
// block ends at the first closing tag; see the limitation note on Parse.
var (
	writeBlockRe  = regexp.MustCompile(`(?s)<write path="([^"]*)">(.*?)</write>`)
	deleteBlockRe = regexp.MustCompile(`<delete path="([^"]*)"\s*/>`)
)

// Parse extracts file operations from a backend response, preserving the
// order in which the blocks appear in the text. Prose and unrecognized
// markup are ignored. Parse never fails: a response with no recognizable
// blocks yields an empty slice, which callers treat as a valid "no changes
// proposed" result.
//
// Known format limitation: a write block's content cannot itself contain
// the literal "</write>" sequence; the block ends at the first occurrence
// and the remainder is lost. The backend's system prompt forbids emitting
// the sequence inside content, but the parser does not detect or repair
// a violation.
func Parse(response string) []Operation {
	type match struct {
		start, end int
		op         Operation
	}

	var matches []match
	for _, idx := range writeBlockRe.FindAllStringSubmatchIndex(response, -1) {
		matches = append(matches, match{
			start: idx[0],
			end:   idx[1],
			op: Operation{
				Kind:    OpWrite,
				Path:    response[idx[2]:idx[3]],
				Content: strings.TrimSpace(response[idx[4]:idx[5]]),
			},
		})
	}
	for _, idx := range deleteBlockRe.FindAllStringSubmatchIndex(response, -1) {
		matches = append(matches, match{
			start: idx[0],
			end:   idx[1],
			op: Operation{
				Kind: OpDelete,
				Path: response[idx[2]:idx[3]],
			},
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	// Keep a non-overlapping left-to-right selection. A delete tag that
	// appears inside a write block's content belongs to that content, not
	// to the operation sequence.
	ops := make([]Operation, 0, len(matches))
	lastEnd := 0
	for _, m := range matches {
		if m.start < lastEnd {
			continue
		}
		ops = append(ops, m.op)
		lastEnd = m.end
	}

	return ops
}
