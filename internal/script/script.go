// Package script loads and caches the versioned stage script document.
//
// The document maps every stage to its narrative content. It is read from a JSON
// or YAML file once, validated for completeness, and shared by all requests until
// Invalidate is called.
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/CravingCompanion/internal/models"
)

// DefaultPath is where the script document is looked up when none is configured.
const DefaultPath = "configs/stage_script.json"

// ErrConfiguration marks every failure to produce a usable script document.
var ErrConfiguration = errors.New("script configuration error")

// Format is the encoding of a script document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the document format from the file extension. Anything that
// is not .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadError reports a missing, unparsable, or incomplete script document.
type LoadError struct {
	Path string
	Op   string // "read", "parse" or "validate"
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("script %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrConfiguration) match every LoadError.
func (e *LoadError) Is(target error) bool { return target == ErrConfiguration }

// Parse decodes and validates a script document.
func Parse(data []byte, format Format) (*models.ScriptDocument, error) {
	var doc models.ScriptDocument
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Store memoizes the script document for the life of the process.
type Store struct {
	path     string
	readFile func(string) ([]byte, error)
	group    singleflight.Group
	doc      atomic.Pointer[models.ScriptDocument]

	// mu orders cache fills against Invalidate. gen counts invalidations so a
	// read that started before one never repopulates the cache.
	mu  sync.Mutex
	gen uint64
}

// NewStore creates a Store reading from path, or DefaultPath when path is empty.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path, readFile: os.ReadFile}
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Load returns the cached document, reading it on first use. Concurrent callers on
// a cold cache share a single read.
func (s *Store) Load(ctx context.Context) (*models.ScriptDocument, error) {
	if doc := s.doc.Load(); doc != nil {
		return doc, nil
	}

	ch := s.group.DoChan("load", func() (interface{}, error) {
		if doc := s.doc.Load(); doc != nil {
			return doc, nil
		}
		s.mu.Lock()
		gen := s.gen
		s.mu.Unlock()

		doc, err := s.read()
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			slog.Debug("Store.Load: script invalidated during read, not caching", "path", s.path, "version", doc.Version)
			return doc, nil
		}
		s.doc.Store(doc)
		slog.Info("Store.Load: script document loaded", "path", s.path, "version", doc.Version, "stages", len(doc.Stages))
		return doc, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.ScriptDocument), nil
	}
}

// Invalidate drops the cached document so the next Load rereads the file. A read
// already in flight still answers its own callers but is never cached.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.gen++
	s.doc.Store(nil)
	s.group.Forget("load")
	s.mu.Unlock()
	slog.Debug("Store.Invalidate: script cache cleared", "path", s.path)
}

func (s *Store) read() (*models.ScriptDocument, error) {
	data, err := s.readFile(s.path)
	if err != nil {
		slog.Error("Store.read: failed to read script document", "path", s.path, "error", err)
		return nil, &LoadError{Path: s.path, Op: "read", Err: err}
	}

	doc, err := Parse(data, FormatFromPath(s.path))
	if err != nil {
		op := "parse"
		if errors.Is(err, models.ErrMissingStageScript) || errors.Is(err, models.ErrMissingScriptVersion) ||
			errors.Is(err, models.ErrUnknownStage) {
			op = "validate"
		}
		slog.Error("Store.read: invalid script document", "path", s.path, "op", op, "error", err)
		return nil, &LoadError{Path: s.path, Op: op, Err: err}
	}
	return doc, nil
}
