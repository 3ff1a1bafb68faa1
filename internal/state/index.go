package state

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

const indexFileName = "processed_items.yaml"

// processedRecord is the stored fingerprint for one item identity.
type processedRecord struct {
	ETag         string `yaml:"etag"`
	LastModified string `yaml:"last_modified"`
}

type indexDocument struct {
	Items map[string]processedRecord `yaml:"items"`
}

// Index is the dedup ledger: item identity -> last published fingerprint.
// One record per identity, overwritten on each successful publish. Not safe
// for concurrent use; the single-threaded ingest loop is the only writer.
type Index struct {
	path   string
	logger sheetflow.Logger
	items  map[string]processedRecord
}

// NewIndex creates a processed index persisted under stateDir.
// Panics if logger is nil.
func NewIndex(stateDir string, logger sheetflow.Logger) *Index {
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &Index{
		path:   filepath.Join(stateDir, indexFileName),
		logger: logger,
		items:  make(map[string]processedRecord),
	}
}

// Load reads the durable document. A missing or corrupt file degrades to an
// empty index with a logged warning rather than aborting: the cost is a
// re-processing burst, not an outage.
func (ix *Index) Load() error {
	ix.items = make(map[string]processedRecord)

	data, err := os.ReadFile(ix.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		ix.logger.Warn("Could not read processed index %s, starting fresh: %v", ix.path, err)
		return nil
	}

	var doc indexDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		ix.logger.Warn("Processed index %s is corrupt, starting fresh: %v", ix.path, err)
		return nil
	}
	if doc.Items != nil {
		ix.items = doc.Items
	}
	return nil
}

// Save serializes the document to a temporary file and atomically replaces
// the durable one.
func (ix *Index) Save() error {
	if err := os.MkdirAll(filepath.Dir(ix.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := yaml.Marshal(indexDocument{Items: ix.items})
	if err != nil {
		return fmt.Errorf("serialize processed index: %w", err)
	}

	tmp := ix.path + ".part"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write processed index temp: %w", err)
	}
	if err := os.Rename(tmp, ix.path); err != nil {
		return fmt.Errorf("replace processed index: %w", err)
	}
	return nil
}

// IsProcessed reports whether the stored record for id matches etag
// (preferred) or, absent a matching etag, lastModified. False when no record
// exists or neither matches.
func (ix *Index) IsProcessed(id, etag, lastModified string) bool {
	rec, ok := ix.items[id]
	if !ok {
		return false
	}
	if rec.ETag != "" && etag != "" && rec.ETag == etag {
		return true
	}
	if rec.LastModified != "" && lastModified != "" && rec.LastModified == lastModified {
		return true
	}
	return false
}

// MarkProcessed upserts the record unconditionally. The caller persists the
// change with Save, typically once per ingested item.
func (ix *Index) MarkProcessed(id, etag, lastModified string) {
	ix.items[id] = processedRecord{ETag: etag, LastModified: lastModified}
}

// Len returns the number of recorded identities.
func (ix *Index) Len() int {
	return len(ix.items)
}
