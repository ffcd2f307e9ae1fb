package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnnotateEdit_SingleLineAppend(t *testing.T) {
	lines := AnnotateEdit("hello\nworld\n", 5, 5, " there")

	assert.Equal(t, []string{"- hello", "+ hello there"}, lines)
}

func TestAnnotateEdit_MultilineInsert(t *testing.T) {
	content := "func add(a, b int) int {\n\n}"
	cursor := len("func add(a, b int) int {\n")

	lines := AnnotateEdit(content, cursor, cursor, "\tsum := a + b\n\treturn sum")

	assert.Equal(t, []string{"- ", "+ \tsum := a + b", "+ \treturn sum"}, lines)
}

func TestAnnotateEdit_OnlyTouchedLines(t *testing.T) {
	content := "one\ntwo\nthree\nfour"
	start := len("one\ntw")

	lines := AnnotateEdit(content, start, start+1, "in")

	assert.Equal(t, []string{"- two", "+ twin"}, lines, "untouched lines are not rendered")
}

func TestCountLineChanges(t *testing.T) {
	stats := CountLineChanges("a\nb\nc", 2, 3, "x\ny\nz")

	assert.Equal(t, 3, stats.Additions, "additions")
	assert.Equal(t, 1, stats.Deletions, "deletions")
}

func TestCountLineChanges_NoOp(t *testing.T) {
	stats := CountLineChanges("abc", 1, 2, "b")

	assert.Equal(t, LineStats{}, stats, "identical replacement changes nothing")
}
