package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sambeau/scrapeql/pkg/scrapeql/logging"
)

// watchDebounce is how long a file must be quiet before it is re-run.
const watchDebounce = 100 * time.Millisecond

// fileWatcher reports writes to one file. It watches the file's directory
// so that editors which save by renaming a temporary file are noticed too.
type fileWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	logger   logging.Logger
}

func newFileWatcher(path string, logger logging.Logger) (*fileWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}

	return &fileWatcher{
		watcher:  fsWatcher,
		path:     absPath,
		debounce: watchDebounce,
		logger:   logger,
	}, nil
}

// Run calls onChange after each burst of writes to the file has settled.
// It returns when ctx is done or the watcher is closed.
func (w *fileWatcher) Run(ctx context.Context, onChange func()) {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			// Only handle write and create events
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// Close stops the watcher
func (w *fileWatcher) Close() error {
	return w.watcher.Close()
}

// watchFile runs the input file now and again after every change, each
// time with a fresh scope, until ctx is cancelled.
func watchFile(ctx context.Context, filename string, env *environment, keepGoing bool, rep *reporter) error {
	w, err := newFileWatcher(filename, env.logger)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	rerun := func() {
		if err := runFile(ctx, env.newRunner(), filename, keepGoing, rep); err != nil && err != errReported {
			rep.report(err, "", filename)
		}
	}

	rerun()
	fmt.Fprintf(rep.w, "[WATCH] watching %s (Ctrl+C to stop)\n", filename)
	w.Run(ctx, func() {
		fmt.Fprintf(rep.w, "[WATCH] %s changed, re-running\n", filename)
		rerun()
	})
	return nil
}
