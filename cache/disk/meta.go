package disk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const metaFileName = ".cache-meta.json"

// Metadata is the on-disk record describing the store.
type Metadata struct {
	SchemaVersion  int       `json:"schemaVersion"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}

// readMeta loads the metadata record. It reports exists=true with a nil
// record when the file is present but cannot be decoded.
func (s *Store) readMeta() (meta *Metadata, exists bool, err error) {
	data, err := os.ReadFile(filepath.Join(s.dir, metaFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil || m.SchemaVersion == 0 {
		return nil, true, nil
	}
	return &m, true, nil
}

func (s *Store) writeMeta(m Metadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode cache metadata: %w", err)
	}
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()

	tmp, tmpPath, err := createTemp(root, ".", ".meta-*")
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = root.Remove(tmpPath)
		return fmt.Errorf("write cache metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = root.Remove(tmpPath)
		return fmt.Errorf("close cache metadata: %w", err)
	}
	if err := root.Rename(tmpPath, metaFileName); err != nil {
		_ = root.Remove(tmpPath)
		return fmt.Errorf("rename cache metadata: %w", err)
	}
	return nil
}
