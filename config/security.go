package config

import (
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

const (
	maxConfigSize = 1 << 20
	maxEnvVarLen  = 10000
	maxPathLen    = 4096
)

var configExtensions = []string{".yaml", ".yml", ".json"}

// validateConfigPath accepts absolute paths anywhere and relative paths that
// stay under the working directory. Only YAML and JSON files are loaded.
func validateConfigPath(path string) error {
	switch {
	case path == "":
		return invalid("empty config path")
	case len(path) > maxPathLen:
		return invalid("config path too long: %d > %d", len(path), maxPathLen)
	}

	if ext := strings.ToLower(filepath.Ext(path)); !slices.Contains(configExtensions, ext) {
		return invalid("config file %s must end in one of %v", path, configExtensions)
	}
	if filepath.IsAbs(path) {
		return nil
	}

	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return invalid("config path %s escapes the working directory", path)
	}
	return nil
}

// safeReadFile reads a validated config path, refusing anything that is not
// a regular file or is larger than maxConfigSize.
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "open "+path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "stat "+path)
	}
	if !info.Mode().IsRegular() {
		return nil, invalid("config path %s is not a regular file", path)
	}
	if info.Size() > maxConfigSize {
		return nil, invalid("config file %s is %d bytes, limit is %d", path, info.Size(), maxConfigSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxConfigSize+1))
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "read "+path)
	}
	if len(data) > maxConfigSize {
		return nil, invalid("config file %s grew past %d bytes while reading", path, maxConfigSize)
	}
	return data, nil
}

// validateEnvVar rejects oversized values and embedded NULs.
func validateEnvVar(key, value string) error {
	if len(value) > maxEnvVarLen {
		return invalid("environment variable %s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.ContainsRune(value, 0) {
		return invalid("environment variable %s contains a NUL byte", key)
	}
	return nil
}
