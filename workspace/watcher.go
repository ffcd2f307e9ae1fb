// Package workspace loads context files from disk and reloads them when they change.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"inlinesuggest/logger"
	"inlinesuggest/types"

	"github.com/fsnotify/fsnotify"
)

const (
	// MaxFileBytes skips files too large to be useful as context
	MaxFileBytes = 256 * 1024
	// DefaultDebounce coalesces bursts of writes from a single save
	DefaultDebounce = 100 * time.Millisecond
)

var extensionLanguages = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascriptreact",
	".ts":    "typescript",
	".tsx":   "typescriptreact",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".java":  "java",
	".rb":    "ruby",
	".lua":   "lua",
	".sh":    "sh",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".html":  "html",
	".css":   "css",
	".sql":   "sql",
	".swift": "swift",
	".kt":    "kotlin",
	".cs":    "csharp",
	".php":   "php",
}

// LanguageForPath guesses the editor language id from the file extension
func LanguageForPath(path string) string {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}

// LoadDocuments reads paths in order. Files that cannot be read, are too
// large or are not text are skipped and reported in the returned error.
func LoadDocuments(paths []string) ([]types.Document, error) {
	docs := make([]types.Document, 0, len(paths))
	var errs []error

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.IsDir() {
			errs = append(errs, fmt.Errorf("%s: is a directory", path))
			continue
		}
		if info.Size() > MaxFileBytes {
			errs = append(errs, fmt.Errorf("%s: %d bytes exceeds %d", path, info.Size(), MaxFileBytes))
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if strings.IndexByte(string(data), 0) >= 0 {
			errs = append(errs, fmt.Errorf("%s: binary file", path))
			continue
		}
		docs = append(docs, types.Document{
			Path:     path,
			Language: LanguageForPath(path),
			Text:     string(data),
		})
	}
	return docs, errors.Join(errs...)
}

// Watcher reloads a fixed list of files whenever one of them changes and
// hands the full set to onUpdate.
type Watcher struct {
	paths    []string
	watched  map[string]struct{}
	onUpdate func([]types.Document)
	debounce time.Duration

	fs        *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Watch loads paths, calls onUpdate with the result and then again after
// every change. Parent directories are watched so that editors which save
// by renaming are still seen.
func Watch(paths []string, debounce time.Duration, onUpdate func([]types.Document)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		watched:  make(map[string]struct{}),
		onUpdate: onUpdate,
		debounce: debounce,
		fs:       fsw,
		done:     make(chan struct{}),
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		w.paths = append(w.paths, abs)
		w.watched[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	w.reload()

	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Paths returns the absolute paths being watched
func (w *Watcher) Paths() []string {
	return w.paths
}

// Close stops watching. No callback runs after Close returns.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) reload() {
	docs, err := LoadDocuments(w.paths)
	if err != nil {
		logger.Warn("workspace: %v", err)
	}
	logger.Debug("workspace: loaded %d of %d context files", len(docs), len(w.paths))
	if w.onUpdate != nil {
		w.onUpdate(docs)
	}
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if _, tracked := w.watched[filepath.Clean(event.Name)]; !tracked {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("workspace: %s", event)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warn("workspace: watch error: %v", err)
		case <-fire:
			fire = nil
			select {
			case <-w.done:
				return
			default:
			}
			w.reload()
		}
	}
}
