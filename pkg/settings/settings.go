// Package settings loads the engine's configuration: a YAML settings file
// under the application data directory with environment-based overrides.
package settings

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// applicationDirectoryName is the name of the application data directory
	// beneath the user configuration directory.
	applicationDirectoryName = "everything"
	// settingsFileName is the name of the settings file within the data
	// directory.
	settingsFileName = "settings.yaml"
	// environmentFileName is the name of the optional environment override
	// file within the data directory.
	environmentFileName = ".env"
	// catalogFileName is the name of the catalog database file within the
	// data directory. Its write-ahead-log sidecar lives adjacent to it.
	catalogFileName = "catalog.db"
)

// Settings is the engine configuration.
type Settings struct {
	// ScanRoot is the top-level directory the indexer covers. It defaults to
	// the home directory (the system volume on Windows).
	ScanRoot string `yaml:"scanRoot"`
	// Ignore is the user pathignore rule list.
	Ignore []string `yaml:"ignore"`
	// LogLevel is the log level name.
	LogLevel string `yaml:"logLevel"`
	// DatabasePath overrides the catalog database location.
	DatabasePath string `yaml:"databasePath"`
}

// DataDirectory computes (and creates if necessary) the application data
// directory.
func DataDirectory() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "unable to compute user configuration directory")
	}
	directory := filepath.Join(base, applicationDirectoryName)
	if err := os.MkdirAll(directory, 0700); err != nil {
		return "", errors.Wrap(err, "unable to create data directory")
	}
	return directory, nil
}

// FilePath computes the settings file path. The fallback watcher observes it
// to surface pathignore rule changes.
func FilePath() (string, error) {
	directory, err := DataDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(directory, settingsFileName), nil
}

// defaultScanRoot computes the default scan root: the home directory, or the
// home volume root on Windows.
func defaultScanRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "unable to compute home directory")
	}
	if runtime.GOOS == "windows" {
		if volume := filepath.VolumeName(home); volume != "" {
			return volume + string(filepath.Separator), nil
		}
	}
	return home, nil
}

// Load reads the settings file (if present), applies environment overrides,
// and fills defaults. A missing settings file is not an error.
func Load() (*Settings, error) {
	// Compute the data directory.
	directory, err := DataDirectory()
	if err != nil {
		return nil, err
	}

	// Load environment overrides from the data directory's .env file, if one
	// exists. Existing process environment wins.
	_ = godotenv.Load(filepath.Join(directory, environmentFileName))

	// Read the settings file.
	settings := &Settings{}
	contents, err := os.ReadFile(filepath.Join(directory, settingsFileName))
	if err == nil {
		if err := yaml.Unmarshal(contents, settings); err != nil {
			return nil, errors.Wrap(err, "unable to parse settings file")
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "unable to read settings file")
	}

	// Apply environment overrides.
	if value := os.Getenv("EVERYTHING_SCAN_ROOT"); value != "" {
		settings.ScanRoot = value
	}
	if value := os.Getenv("EVERYTHING_LOG_LEVEL"); value != "" {
		settings.LogLevel = value
	}
	if value := os.Getenv("EVERYTHING_DB_PATH"); value != "" {
		settings.DatabasePath = value
	}

	// Fill defaults.
	if settings.ScanRoot == "" {
		root, err := defaultScanRoot()
		if err != nil {
			return nil, err
		}
		settings.ScanRoot = root
	}
	if settings.DatabasePath == "" {
		settings.DatabasePath = filepath.Join(directory, catalogFileName)
	}

	// Done.
	return settings, nil
}

// Save writes the settings file to the data directory.
func (s *Settings) Save() error {
	directory, err := DataDirectory()
	if err != nil {
		return err
	}
	contents, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "unable to encode settings")
	}
	if err := os.WriteFile(filepath.Join(directory, settingsFileName), contents, 0600); err != nil {
		return errors.Wrap(err, "unable to write settings file")
	}
	return nil
}
