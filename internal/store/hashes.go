package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// HashFileName is the content-hash sidecar file name used by both the
// lexical and vector index directories.
const HashFileName = "content_hashes.json"

// LoadHashes reads a content-hash sidecar. A missing file yields an empty
// map; a corrupt file is treated as empty so the next reconcile rebuilds it.
func LoadHashes(path string) map[string]string {
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]string{}
	}
	hashes := map[string]string{}
	if err := json.Unmarshal(data, &hashes); err != nil {
		return map[string]string{}
	}
	return hashes
}

// SaveHashes atomically writes a content-hash sidecar (tmp file + rename).
func SaveHashes(path string, hashes map[string]string) error {
	data, err := json.Marshal(hashes)
	if err != nil {
		return fmt.Errorf("marshal content hashes: %w", err)
	}
	return writeAtomic(path, data)
}

// writeAtomic writes data to path via a sibling .tmp file and rename so a
// crash mid-write never leaves a truncated file behind.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
