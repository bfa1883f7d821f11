// Package ledger remembers which version of every page was last exported, so that repeated runs
// only do work for new and changed pages.
package ledger

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/exp/maps"

	"github.com/toothbrush/confluence-export/confluence"
)

var (
	ErrLocked       = errors.New("ledger: state file is in use by another run")
	ErrStaleVersion = errors.New("ledger: refusing to lower a stored version")
)

//go:embed ledger.schema.json
var schemaJSON []byte

// SchemaURL identifies the on-disk ledger format.
const SchemaURL = "https://github.com/toothbrush/confluence-export/ledger.schema.json"

// Entry is what we remember about one exported page.
type Entry struct {
	Title        string            `json:"title"`
	SpaceKey     string            `json:"space_key"`
	Version      int               `json:"version"`
	LastModified string            `json:"last_modified"`
	OutputPaths  map[string]string `json:"output_paths,omitempty"`
}

// Ledger is a page id -> Entry map backed by a JSON file.  Every Commit rewrites the file.
type Ledger struct {
	path   string
	lock   *flock.Flock
	schema *jsonschema.Schema
	logger *log.Logger

	mu      sync.Mutex
	entries map[string]Entry
}

// Open takes an exclusive lock next to the state file and loads it.  A missing, unreadable or
// invalid state file is not an error: we start from scratch.
func Open(path string, logger *log.Logger) (*Ledger, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("ledger: couldn't create state directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("ledger: couldn't lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	l := &Ledger{
		path:    path,
		lock:    lock,
		schema:  schema,
		logger:  logger,
		entries: map[string]Entry{},
	}
	l.Load()

	return l, nil
}

// Close releases the lock.  The ledger is already persisted.
func (l *Ledger) Close() error {
	if l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("ledger: couldn't release lock: %w", err)
	}
	return nil
}

func (l *Ledger) Path() string {
	return l.path
}

// Load (re)reads the state file and returns a copy of its contents.
func (l *Ledger) Load() map[string]Entry {
	entries, err := l.read()
	if err != nil {
		l.logger.Printf("starting with an empty ledger: %v", err)
		entries = map[string]Entry{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = entries
	return maps.Clone(entries)
}

func (l *Ledger) read() (map[string]Entry, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: couldn't read %s: %w", l.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]Entry{}, nil
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ledger: %s is not valid JSON: %w", l.path, err)
	}
	if err := l.schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("ledger: %s doesn't look like a ledger: %w", l.path, err)
	}

	entries := map[string]Entry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("ledger: couldn't decode %s: %w", l.path, err)
	}
	return entries, nil
}

// ShouldProcess is false iff we've already exported this version of the page (or a newer one).
// forceSpace doesn't bypass the check; callers that know a page is new skip ShouldProcess
// entirely.
func (l *Ledger) ShouldProcess(page confluence.Page, forceSpace string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[page.ID]
	if !ok {
		return true
	}
	return entry.Version < page.VersionNumber()
}

// Commit records a successful export and persists the ledger before returning.
func (l *Ledger) Commit(page confluence.Page, outputPaths map[string]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.entries[page.ID]; ok && prev.Version > page.VersionNumber() {
		return fmt.Errorf("%w: page %s is at version %d, got %d", ErrStaleVersion, page.ID, prev.Version, page.VersionNumber())
	}

	next := maps.Clone(l.entries)
	next[page.ID] = Entry{
		Title:        page.Title,
		SpaceKey:     page.SpaceKey(),
		Version:      page.VersionNumber(),
		LastModified: page.LastModified(),
		OutputPaths:  maps.Clone(outputPaths),
	}

	if err := l.save(next); err != nil {
		return err
	}
	l.entries = next
	return nil
}

func (l *Ledger) Get(id string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	return e, ok
}

// HasSpace reports whether anything from the space has ever been exported.
func (l *Ledger) HasSpace(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.SpaceKey == key {
			return true
		}
	}
	return false
}

// IDs returns every page id in the ledger, sorted.
func (l *Ledger) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := maps.Keys(l.entries)
	sort.Strings(ids)
	return ids
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Ledger) save(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: couldn't encode state: %w", err)
	}
	data = append(data, '\n')

	if err := writeFileAtomic(l.path, data, 0644); err != nil {
		return fmt.Errorf("ledger: couldn't save state: %w", err)
	}
	return nil
}

// writeFileAtomic writes next to the target and renames over it, so a crash leaves either the
// old or the new file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("ledger: couldn't parse schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(SchemaURL, doc); err != nil {
		return nil, fmt.Errorf("ledger: couldn't add schema: %w", err)
	}
	schema, err := c.Compile(SchemaURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: couldn't compile schema: %w", err)
	}
	return schema, nil
}
