package agent

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// WriteGob gob encodes v to the file at path, creating parent
// directories as needed
func WriteGob(path string, v interface{}) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("writeGob: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writeGob: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(v); err != nil {
		file.Close()
		return fmt.Errorf("writeGob: could not encode %v: %w", path, err)
	}
	return file.Close()
}

// ReadGob decodes the gob encoded file at path into v. A missing file
// yields an error satisfying errors.Is(err, fs.ErrNotExist).
func ReadGob(path string, v interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("readGob: %w", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("readGob: could not decode %v: %w", path, err)
	}
	return nil
}
