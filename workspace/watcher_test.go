package workspace

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"inlinesuggest/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageForPath(t *testing.T) {
	assert.Equal(t, "go", LanguageForPath("main.go"))
	assert.Equal(t, "typescriptreact", LanguageForPath("/x/App.TSX"))
	assert.Equal(t, "", LanguageForPath("Makefile"))
}

func TestLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a.go")
	binary := filepath.Join(dir, "b.bin")
	large := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(good, []byte("package a\n"), 0o644))
	require.NoError(t, os.WriteFile(binary, []byte{0x00, 0x01}, 0o644))
	require.NoError(t, os.WriteFile(large, make([]byte, MaxFileBytes+1), 0o644))

	docs, err := LoadDocuments([]string{good, binary, large, filepath.Join(dir, "missing.go"), dir})

	assert.Error(t, err, "problems reported")
	assert.Equal(t, []types.Document{{Path: good, Language: "go", Text: "package a\n"}}, docs)
}

type updates struct {
	mu   sync.Mutex
	sets [][]types.Document
}

func (u *updates) record(docs []types.Document) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sets = append(u.sets, docs)
}

func (u *updates) last() []types.Document {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.sets) == 0 {
		return nil
	}
	return u.sets[len(u.sets)-1]
}

func (u *updates) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.sets)
}

func TestWatch_InitialLoadAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctx.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	u := &updates{}
	w, err := Watch([]string{path}, 10*time.Millisecond, u.record)
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, 1, u.count(), "initial load is synchronous")
	assert.Equal(t, "x = 1\n", u.last()[0].Text)
	assert.Equal(t, "python", u.last()[0].Language)

	require.NoError(t, os.WriteFile(path, []byte("x = 2\n"), 0o644))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if docs := u.last(); len(docs) == 1 && docs[0].Text == "x = 2\n" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("change not picked up")
}

func TestWatch_IgnoresUntrackedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctx.go")
	require.NoError(t, os.WriteFile(path, []byte("package ctx\n"), 0o644))

	u := &updates{}
	w, err := Watch([]string{path}, 10*time.Millisecond, u.record)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.go"), []byte("package other\n"), 0o644))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, u.count(), "only the initial load")
}

func TestWatch_CloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0o644))

	w, err := Watch([]string{path}, 0, nil)
	require.NoError(t, err)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestWatch_MissingDirectory(t *testing.T) {
	_, err := Watch([]string{filepath.Join(t.TempDir(), "nope", "a.go")}, 0, nil)
	assert.Error(t, err)
}
