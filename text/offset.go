package text

import (
	"strings"

	"inlinesuggest/types"
)

// ValidOffset reports whether offset points inside content or just past its end
func ValidOffset(content string, offset int) bool {
	return offset >= 0 && offset <= len(content)
}

// clampOffset keeps offset within [0, len(content)]
func clampOffset(content string, offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > len(content) {
		return len(content)
	}
	return offset
}

// OffsetToPosition converts a byte offset to a position (1-indexed line, 0-indexed col).
// Offsets outside the content are clamped.
func OffsetToPosition(content string, offset int) types.Position {
	offset = clampOffset(content, offset)

	line := 1 + strings.Count(content[:offset], "\n")
	lineStart := strings.LastIndexByte(content[:offset], '\n') + 1
	return types.Position{Line: line, Column: offset - lineStart}
}

// PositionToOffset converts a position back to a byte offset.
// Columns past the end of the line are clamped to the line end.
func PositionToOffset(content string, pos types.Position) int {
	offset := 0
	line := 1
	for line < pos.Line {
		next := strings.IndexByte(content[offset:], '\n')
		if next < 0 {
			return len(content)
		}
		offset += next + 1
		line++
	}

	lineEnd := strings.IndexByte(content[offset:], '\n')
	if lineEnd < 0 {
		lineEnd = len(content) - offset
	}
	return offset + min(max(pos.Column, 0), lineEnd)
}

// RangeFromOffsets builds a Range from a byte span, clamping and ordering the ends
func RangeFromOffsets(content string, start, end int) (types.Range, int, int) {
	start = clampOffset(content, start)
	end = clampOffset(content, end)
	if start > end {
		start = end
	}
	return types.Range{
		Start: OffsetToPosition(content, start),
		End:   OffsetToPosition(content, end),
	}, start, end
}
