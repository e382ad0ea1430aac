package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// VersionRecord is the package.json shipped with the installed application.
type VersionRecord struct {
	Version string `json:"version"`
}

// VersionFile reads the locally installed version.
type VersionFile struct {
	path     string
	baseline string
}

// NewVersionFile creates a version file handle that falls back to baseline.
func NewVersionFile(path, baseline string) *VersionFile {
	return &VersionFile{path: filepath.Clean(path), baseline: baseline}
}

// Installed returns the installed version. When the record is missing the
// baseline version is returned with a nil error: appliances flashed before
// the record existed run the baseline release. Other failures also yield the
// baseline, together with the error for logging.
func (f *VersionFile) Installed() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f.baseline, nil
		}
		return f.baseline, fmt.Errorf("read version record: %w", err)
	}

	var record VersionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return f.baseline, fmt.Errorf("decode version record: %w", err)
	}
	if record.Version == "" {
		return f.baseline, fmt.Errorf("version record %s has no version", f.path)
	}
	return record.Version, nil
}
