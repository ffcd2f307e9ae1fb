package text

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Line markers used in annotated completion lines
const (
	MarkerContext = "  "
	MarkerAdded   = "+ "
	MarkerRemoved = "- "
)

// LineStats counts whole lines added and removed by an edit
type LineStats struct {
	Additions int
	Deletions int
}

// lineDiff runs a line-level diff between before and after
func lineDiff(before, after string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(chars1, chars2, false)
	return dmp.DiffCharsToLines(diffs, lineArray)
}

// splitDiffLines splits diff text into lines without the trailing empty line
func splitDiffLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// AnnotateEdit renders the lines touched by replacing content[start:end] with
// insert, each prefixed with a marker. Only the lines containing the edit are
// rendered, so the output stays small for large documents.
func AnnotateEdit(content string, start, end int, insert string) []string {
	start = clampOffset(content, start)
	end = clampOffset(content, end)
	if start > end {
		start = end
	}

	lineStart := strings.LastIndexByte(content[:start], '\n') + 1
	lineEnd := len(content)
	if i := strings.IndexByte(content[end:], '\n'); i >= 0 {
		lineEnd = end + i
	}

	before := content[lineStart:lineEnd]
	after := content[lineStart:start] + insert + content[end:lineEnd]

	var out []string
	for _, d := range lineDiff(before+"\n", after+"\n") {
		marker := MarkerContext
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			marker = MarkerAdded
		case diffmatchpatch.DiffDelete:
			marker = MarkerRemoved
		}
		for _, line := range splitDiffLines(d.Text) {
			out = append(out, marker+line)
		}
	}
	return out
}

// CountLineChanges returns how many lines an edit adds and removes
func CountLineChanges(content string, start, end int, insert string) LineStats {
	var stats LineStats
	for _, line := range AnnotateEdit(content, start, end, insert) {
		switch {
		case strings.HasPrefix(line, MarkerAdded):
			stats.Additions++
		case strings.HasPrefix(line, MarkerRemoved):
			stats.Deletions++
		}
	}
	return stats
}
