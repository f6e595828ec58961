package connectivity

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrUnknownStatus is returned for status file contents that are neither
// an online nor an offline marker.
var ErrUnknownStatus = errors.New("unknown connectivity status")

// ParseStatus interprets status file contents. Accepted values are
// online/up/1 and offline/down/0, case-insensitive.
func ParseStatus(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "online", "up", "1":
		return true, nil
	case "offline", "down", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownStatus, strings.TrimSpace(s))
}

// FileSource feeds an Oracle from a status file maintained by the host's
// network manager. Changes are picked up through fsnotify.
type FileSource struct {
	path    string
	oracle  *Oracle
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFileSource creates a source for the file at path. The file's
// directory is watched so the file may be created or replaced atomically.
func NewFileSource(path string, oracle *Oracle, logger *slog.Logger) (*FileSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &FileSource{
		path:    filepath.Clean(path),
		oracle:  oracle,
		logger:  logger,
		watcher: watcher,
		done:    make(chan struct{}),
	}, nil
}

// Start reads the current status once, then follows changes until Stop.
func (fs *FileSource) Start() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.running {
		return fmt.Errorf("file source already running")
	}
	if err := fs.watcher.Add(filepath.Dir(fs.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(fs.path), err)
	}

	fs.apply()

	fs.running = true
	fs.wg.Add(1)
	go fs.run()
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (fs *FileSource) Stop() error {
	fs.mu.Lock()
	if !fs.running {
		fs.mu.Unlock()
		return fs.watcher.Close()
	}
	fs.running = false
	fs.mu.Unlock()

	close(fs.done)
	err := fs.watcher.Close()
	fs.wg.Wait()
	if err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}
	return nil
}

func (fs *FileSource) run() {
	defer fs.wg.Done()

	for {
		select {
		case <-fs.done:
			return

		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fs.path {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				fs.apply()
			}

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.logger.Warn("status file watch error",
				"component", "connectivity",
				"path", fs.path,
				"error", err,
			)
		}
	}
}

// apply reads the status file and reports it. A missing or unreadable file
// leaves the state unchanged.
func (fs *FileSource) apply() {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fs.logger.Warn("read status file failed", "component", "connectivity", "path", fs.path, "error", err)
		}
		return
	}
	online, err := ParseStatus(string(data))
	if err != nil {
		fs.logger.Warn("ignoring status file", "component", "connectivity", "path", fs.path, "error", err)
		return
	}
	fs.oracle.Report(online)
}
