package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agrai/agrai-go/internal/index"
)

// Snapshot artifact names. The pair lives in the store directory and is
// always written together: geometry (index vectors) and metadata (records).
// A directory holding only one of the two, or neither, is the valid empty
// store state.
const (
	// geometryFile is the serialized similarity index.
	geometryFile = "index.bin"
	// metadataFile is the serialized record sequence.
	metadataFile = "records.json"
)

// metadataVersion is the current metadata artifact version.
const metadataVersion = 1

// metadataDoc is the JSON document written to the metadata artifact. It is
// versioned and self-describing so snapshots survive format evolution.
type metadataDoc struct {
	// Version is the artifact format version.
	Version int `json:"version"`
	// Model is the embedding model the vectors were produced with.
	Model string `json:"model"`
	// Dimension is the embedding vector dimension.
	Dimension int `json:"dimension"`
	// Records is the ordered metadata sequence, parallel to the index.
	Records []Record `json:"records"`
}

// persistLocked writes both snapshot artifacts. Each artifact is written to a
// temp file and renamed into place so a reload never observes a torn write;
// a crash between the two renames is detected at load time as a count
// mismatch and treated as corruption. Must be called with mu held.
func (s *Store) persistLocked() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create snapshot dir %s: %w", s.dir, err)
	}

	geo, err := s.idx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode geometry: %w", err)
	}

	doc := metadataDoc{
		Version:   metadataVersion,
		Model:     s.model,
		Dimension: s.dim,
		Records:   s.records,
	}
	meta, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := writeAtomic(filepath.Join(s.dir, geometryFile), geo); err != nil {
		return fmt.Errorf("write geometry: %w", err)
	}
	if err := writeAtomic(filepath.Join(s.dir, metadataFile), meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	s.log.Debug("memory: snapshot persisted",
		slog.Int("records", len(s.records)),
		slog.String("dir", s.dir),
	)
	return nil
}

// load replaces the in-memory state with the snapshot pair from the store
// directory. A missing artifact (either one) yields an empty store and nil
// error; a present-but-unreadable pair returns an error and the caller
// resets to empty.
func (s *Store) load() error {
	geo, geoErr := os.ReadFile(filepath.Join(s.dir, geometryFile))
	meta, metaErr := os.ReadFile(filepath.Join(s.dir, metadataFile))

	if errors.Is(geoErr, fs.ErrNotExist) || errors.Is(metaErr, fs.ErrNotExist) {
		// Empty store — first run, or a crash before the first full persist.
		return nil
	}
	if geoErr != nil {
		return fmt.Errorf("read geometry: %w", geoErr)
	}
	if metaErr != nil {
		return fmt.Errorf("read metadata: %w", metaErr)
	}

	idx, err := index.New(s.dim)
	if err != nil {
		return err
	}
	if err := idx.UnmarshalBinary(geo); err != nil {
		return fmt.Errorf("decode geometry: %w", err)
	}

	var doc metadataDoc
	if err := json.Unmarshal(meta, &doc); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	if doc.Version != metadataVersion {
		return fmt.Errorf("unsupported metadata version %d", doc.Version)
	}

	if idx.Dim() != s.dim {
		return fmt.Errorf("snapshot dimension %d does not match configured %d", idx.Dim(), s.dim)
	}
	if idx.Len() != len(doc.Records) {
		// Geometry and metadata were not written by the same persist call.
		return fmt.Errorf("snapshot mismatch: %d vectors but %d records", idx.Len(), len(doc.Records))
	}

	s.idx = idx
	s.records = doc.Records
	return nil
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename, so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
