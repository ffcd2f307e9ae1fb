package logger

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelTrace, ParseLogLevel("trace"))
	assert.Equal(t, LogLevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLogLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("bogus"), "unknown levels fall back to info")
}

func TestLogger_FiltersByLevel(t *testing.T) {
	buf := &syncBuffer{}
	l := New(zapcore.AddSync(buf), LogLevelWarn)

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden", "info is below warn")
	assert.Contains(t, out, "shown 2", "warn is logged")
	assert.Contains(t, out, "WARN", "level is encoded")
}

func TestLogger_SetLevel(t *testing.T) {
	buf := &syncBuffer{}
	l := New(zapcore.AddSync(buf), LogLevelError)

	l.SetLevel(LogLevelDebug)
	l.Debug("now visible")

	assert.Contains(t, buf.String(), "now visible")
}

func TestTrace_DisabledIsNoop(t *testing.T) {
	buf := &syncBuffer{}
	SetGlobal(New(zapcore.AddSync(buf), LogLevelInfo))
	defer SetGlobal(nil)

	Trace("op")()

	assert.Empty(t, buf.String(), "trace disabled at info")
}

func TestTrace_LogsDuration(t *testing.T) {
	buf := &syncBuffer{}
	SetGlobal(New(zapcore.AddSync(buf), LogLevelTrace))
	defer SetGlobal(nil)

	Trace("op")()

	assert.Contains(t, buf.String(), "[TRACE] op:")
}

func TestSetup_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inlinesuggest.log")
	l := Setup(path, LogLevelInfo)
	defer SetGlobal(nil)

	Info("hello from %s", "setup")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "hello from setup"), "message written to file")
}

func TestLogger_WriteRedirectsStdlibLog(t *testing.T) {
	buf := &syncBuffer{}
	l := New(zapcore.AddSync(buf), LogLevelInfo)

	std := log.New(l, "", 0)
	std.Printf("from %s", "library")

	out := buf.String()
	assert.Contains(t, out, "from library")
	assert.Equal(t, 1, strings.Count(out, "\n"), "one line per write")
}
