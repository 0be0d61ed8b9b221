// conf/utils.go path helpers for the configuration package
package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/logbook/internal/errors"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// If a config.yaml exists in one of them only that directory is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case osWindows:
		configPaths = []string{
			".",
			filepath.Join(homeDir, "AppData", "Roaming", "logbook"),
		}
	default:
		configPaths = []string{
			".",
			filepath.Join(homeDir, ".config", "logbook"),
			"/etc/logbook",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// ResolvePath expands environment variables in path and, when the result is
// relative, anchors it to the directory of the loaded config file.
func ResolvePath(path string) string {
	expanded := filepath.Clean(os.ExpandEnv(path))
	if filepath.IsAbs(expanded) {
		return expanded
	}
	if cfg := ConfigPath(); cfg != "" {
		return filepath.Join(filepath.Dir(cfg), expanded)
	}
	return expanded
}
