package localdump

import (
	"fmt"
	"os"
	"path/filepath"
)

// checkStore makes sure the store root exists and is a directory, creating it if needed.
func (e *Exporter) checkStore() error {
	stat, err := os.Stat(e.StorePath)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(e.StorePath, 0750); err != nil {
			return fmt.Errorf("localdump: couldn't create store %s: %w", e.StorePath, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("localdump: cannot stat '%s': %w", e.StorePath, err)
	}

	if !stat.IsDir() {
		// path is not a directory.  this is bad, we should bail
		return fmt.Errorf("localdump: local store path not a directory: '%s'", e.StorePath)
	}

	return nil
}

func writeFile(path string, contents []byte) error {
	directory := filepath.Dir(path)

	if err := os.MkdirAll(directory, 0750); err != nil {
		return fmt.Errorf("localdump: couldn't create directory %s: %w", directory, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("localdump: couldn't create file %s: %w", path, err)
	}

	if _, err = f.Write(contents); err != nil {
		f.Close()
		return fmt.Errorf("localdump: couldn't write to file %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("localdump: couldn't close file %s: %w", path, err)
	}

	return nil
}
