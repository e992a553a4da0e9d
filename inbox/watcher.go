// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package inbox turns files dropped into a directory into pending documents.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/poiesic/corpora/core"
)

const (
	// DefaultSettle is how long a file must stay unmodified before ingestion.
	DefaultSettle = 2 * time.Second

	// IngestedDir and FailedDir are hidden subdirectories files are moved to
	// after an attempt. Hidden entries are never ingested.
	IngestedDir = ".ingested"
	FailedDir   = ".failed"
)

var (
	ErrDirRequired        = errors.New("inbox directory required")
	ErrCollectionRequired = errors.New("inbox collection required")
	ErrIngesterRequired   = errors.New("ingester required")
)

// Ingester stores an uploaded file and records it as a pending document.
type Ingester interface {
	Ingest(ctx context.Context, collectionID, filename string, r io.Reader, manual core.Content) (*core.Document, error)
}

// Watcher ingests every regular file that appears in a directory.
type Watcher struct {
	dir        string
	collection string
	ingester   Ingester
	settle     time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher) error

// WithSettle sets how long a file must be quiet before it is ingested.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) error {
		if d <= 0 {
			return fmt.Errorf("settle time must be positive, got %s", d)
		}
		w.settle = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// NewWatcher creates a watcher that files documents from dir into collectionID.
func NewWatcher(dir, collectionID string, ingester Ingester, opts ...Option) (*Watcher, error) {
	switch {
	case strings.TrimSpace(dir) == "":
		return nil, ErrDirRequired
	case collectionID == "":
		return nil, ErrCollectionRequired
	case ingester == nil:
		return nil, ErrIngesterRequired
	}
	w := &Watcher{
		dir:        filepath.Clean(dir),
		collection: collectionID,
		ingester:   ingester,
		settle:     DefaultSettle,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	w.logger = w.logger.With("component", "inbox", "dir", w.dir, "collection", w.collection)
	return w, nil
}

// Run watches the directory until ctx is done. Files already present when
// Run starts are ingested too.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	pending, err := w.scan()
	if err != nil {
		return err
	}
	w.logger.Info("watching inbox", "existing", len(pending))

	ticker := time.NewTicker(max(w.settle/4, 10*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.handleEvent(ev); ok {
				pending[path] = w.now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "err", err)
		case <-ticker.C:
			for _, path := range w.due(pending) {
				delete(pending, path)
				w.ingest(ctx, path)
			}
		}
	}
}

// scan returns the visible regular files already in the directory.
func (w *Watcher) scan() (map[string]time.Time, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", w.dir, err)
	}
	pending := make(map[string]time.Time, len(entries))
	now := w.now()
	for _, e := range entries {
		if e.Type().IsRegular() && !isHidden(e.Name()) {
			pending[filepath.Join(w.dir, e.Name())] = now
		}
	}
	return pending, nil
}

// handleEvent reports the file an event makes a candidate for ingestion.
func (w *Watcher) handleEvent(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	if filepath.Dir(ev.Name) != w.dir || isHidden(filepath.Base(ev.Name)) {
		return "", false
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return ev.Name, true
}

// due returns the pending files that have been quiet for the settle time,
// in name order.
func (w *Watcher) due(pending map[string]time.Time) []string {
	now := w.now()
	var out []string
	for path, seen := range pending {
		if now.Sub(seen) >= w.settle {
			out = append(out, path)
		}
	}
	slices.Sort(out)
	return out
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("error opening file", "file", name, "err", err)
		}
		return
	}
	doc, err := w.ingester.Ingest(ctx, w.collection, name, f, nil)
	f.Close()
	if err != nil {
		w.logger.Error("error ingesting file", "file", name, "err", err)
		w.move(path, FailedDir)
		return
	}
	w.logger.Info("file ingested", "file", name, "document", doc.ID)
	w.move(path, IngestedDir)
}

func (w *Watcher) move(path, sub string) {
	dest := filepath.Join(w.dir, sub)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		w.logger.Warn("error creating directory", "dir", dest, "err", err)
		return
	}
	if err := os.Rename(path, filepath.Join(dest, filepath.Base(path))); err != nil {
		w.logger.Warn("error moving file", "file", filepath.Base(path), "err", err)
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
