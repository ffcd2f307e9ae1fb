package host

// ProvideArgs is the document state sent with MethodProvide.
// The cursor is given either as a byte offset or as a (1-indexed line,
// 0-indexed byte column) pair as returned by nvim_win_get_cursor.
type ProvideArgs struct {
	Path         string `msgpack:"path"`
	Language     string `msgpack:"language"`
	Text         string `msgpack:"text"`
	CursorOffset *int   `msgpack:"cursor_offset"`
	CursorLine   int    `msgpack:"cursor_line"`
	CursorCol    int    `msgpack:"cursor_col"`
	TabSize      int    `msgpack:"tab_size"`
	InsertSpaces bool   `msgpack:"insert_spaces"`
	Trigger      string `msgpack:"trigger"` // "automatic" or "explicit"
}

// DocumentArgs is one context document sent with MethodDocuments
type DocumentArgs struct {
	Path     string `msgpack:"path"`
	Language string `msgpack:"language"`
	Text     string `msgpack:"text"`
}

// ItemResult is one renderable completion
type ItemResult struct {
	CompletionID string `msgpack:"completion_id"`
	InsertText   string `msgpack:"insert_text"`
	StartLine    int    `msgpack:"start_line"`
	StartCol     int    `msgpack:"start_col"`
	EndLine      int    `msgpack:"end_line"`
	EndCol       int    `msgpack:"end_col"`
	StartOffset  int    `msgpack:"start_offset"`
	EndOffset    int    `msgpack:"end_offset"`
	Insertion    bool   `msgpack:"insertion"` // nothing is replaced
	Command      string `msgpack:"command"`
	Arguments    []any  `msgpack:"arguments"`
}

// ListResult answers MethodProvide. ID is passed back to MethodFree.
type ListResult struct {
	ID    uint64       `msgpack:"id"`
	Items []ItemResult `msgpack:"items"`
}

// StatsResult answers MethodStats
type StatsResult struct {
	Completions   int64  `msgpack:"completions"`
	Accepted      int64  `msgpack:"accepted"`
	Status        string `msgpack:"status"`
	StatusMessage string `msgpack:"status_message"`
	Documents     int    `msgpack:"documents"`

	CachedResponses int      `msgpack:"cached_responses"`
	ContextFiles    []string `msgpack:"context_files"`
}

// DetailsResult answers MethodDetails
type DetailsResult struct {
	Index        int      `msgpack:"index"`
	CompletionID string   `msgpack:"completion_id"`
	Path         string   `msgpack:"path"`
	Lines        []string `msgpack:"lines"`
	Prompt       string   `msgpack:"prompt"`
}

// Notification is pushed to the editor's Lua handler
type Notification struct {
	Kind         string `msgpack:"kind"`
	Total        int64  `msgpack:"total,omitempty"`
	Delta        int    `msgpack:"delta,omitempty"`
	CompletionID string `msgpack:"completion_id,omitempty"`
	Text         string `msgpack:"text,omitempty"`
	Status       string `msgpack:"status,omitempty"`
	Message      string `msgpack:"message,omitempty"`
}
