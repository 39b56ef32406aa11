// Package templates serves the fixed HTML bodies sent with error responses.
//
// Each error status maps to one asset. By default the assets embedded in the
// binary are used; a directory on disk can replace them. Templates are read
// from their source on every Load unless caching is enabled, in which case
// they are read once by Verify and, for an on-disk directory, reloaded when
// fsnotify reports a change.
package templates

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/conneroisu/otuserver/internal/errors"
	"github.com/conneroisu/otuserver/internal/logging"
	"github.com/fsnotify/fsnotify"
)

//go:embed assets/*.html
var embedded embed.FS

// assetNames maps an error status to its template file.
var assetNames = map[int]string{
	http.StatusForbidden:           "403.html",
	http.StatusNotFound:            "404.html",
	http.StatusMethodNotAllowed:    "405.html",
	http.StatusInternalServerError: "500.html",
}

// Statuses returns the error statuses that have a template, in ascending order.
func Statuses() []int {
	statuses := make([]int, 0, len(assetNames))
	for status := range assetNames {
		statuses = append(statuses, status)
	}
	sort.Ints(statuses)
	return statuses
}

// Template is one loaded error body.
type Template struct {
	Status      int
	Path        string
	ContentType string
	Body        []byte
}

// Size is the byte length reported as Content-Length.
func (t Template) Size() int {
	return len(t.Body)
}

// Options configures a Store.
type Options struct {
	// Dir replaces the embedded assets when non-empty.
	Dir string
	// Cache keeps template bytes in memory after Verify.
	Cache  bool
	Logger logging.Logger
}

// Store loads error templates.
type Store struct {
	fsys   fs.FS
	dir    string
	cache  bool
	logger logging.Logger

	mu     sync.RWMutex
	cached map[int]Template

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// New creates a store. It does not touch the filesystem; call Verify at
// startup to fail fast on missing templates.
func New(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Store{
		dir:    opts.Dir,
		cache:  opts.Cache,
		logger: logger.WithComponent("templates"),
		cached: make(map[int]Template),
	}

	if opts.Dir == "" {
		sub, err := fs.Sub(embedded, "assets")
		if err != nil {
			return nil, fmt.Errorf("opening embedded templates: %w", err)
		}
		s.fsys = sub
	} else {
		info, err := os.Stat(opts.Dir)
		if err != nil {
			return nil, errors.NewConfigError("template directory is not accessible", err).
				WithContext("dir", opts.Dir)
		}
		if !info.IsDir() {
			return nil, errors.NewConfigError("template path is not a directory", nil).
				WithContext("dir", opts.Dir)
		}
		s.fsys = os.DirFS(opts.Dir)
	}

	return s, nil
}

// Verify reads every template once. A missing or unreadable template is a
// configuration error. With caching enabled the bytes are kept.
func (s *Store) Verify() error {
	for _, status := range Statuses() {
		tmpl, err := s.read(status)
		if err != nil {
			return errors.NewConfigError("error template unavailable", err).
				WithContext("status", status)
		}
		if s.cache {
			s.mu.Lock()
			s.cached[status] = tmpl
			s.mu.Unlock()
		}
	}
	return nil
}

// Load returns the template for status.
func (s *Store) Load(status int) (Template, error) {
	if s.cache {
		s.mu.RLock()
		tmpl, ok := s.cached[status]
		s.mu.RUnlock()
		if ok {
			return tmpl, nil
		}
	}

	return s.read(status)
}

func (s *Store) read(status int) (Template, error) {
	name, ok := assetNames[status]
	if !ok {
		return Template{}, errors.NewInternalError(errors.ErrCodeTemplateMissing,
			"no template for status", nil).WithContext("status", status)
	}

	body, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return Template{}, errors.NewInternalError(errors.ErrCodeTemplateMissing,
			"reading error template", err).WithContext("status", status)
	}

	return Template{
		Status:      status,
		Path:        s.displayPath(name),
		ContentType: mime.TypeByExtension(path.Ext(name)),
		Body:        body,
	}, nil
}

func (s *Store) displayPath(name string) string {
	if s.dir == "" {
		return path.Join("assets", name)
	}
	return filepath.Join(s.dir, name)
}

// Watch reloads cached templates when files in the template directory
// change. It is a no-op for embedded templates or when caching is off.
func (s *Store) Watch(ctx context.Context) error {
	if s.dir == "" || !s.cache {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating template watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching template directory %s: %w", s.dir, err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	s.wg.Add(1)
	go s.watchLoop(ctx, watcher)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(ctx, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn(ctx, err, "Template watcher error")
		}
	}
}

func (s *Store) handleEvent(ctx context.Context, event fsnotify.Event) {
	status, ok := statusForFile(filepath.Base(event.Name))
	if !ok {
		return
	}

	tmpl, err := s.read(status)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		// Dropping the entry makes Load fall through to the filesystem and
		// report the fault per request.
		delete(s.cached, status)
		s.logger.Warn(ctx, err, "Error template became unavailable", "file", event.Name)
		return
	}
	s.cached[status] = tmpl
	s.logger.Info(ctx, "Reloaded error template", "file", event.Name, "op", event.Op.String())
}

func statusForFile(name string) (int, bool) {
	for status, asset := range assetNames {
		if asset == name {
			return status, true
		}
	}
	return 0, false
}

// Close stops the watcher, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	s.wg.Wait()
	return err
}
