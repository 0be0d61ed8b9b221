// config.go: settings struct for the logbook service and functions to load and save it.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/logbook/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Datastore backend types
const (
	DatastoreSQLite = "sqlite"
	DatastoreMySQL  = "mysql"
	DatastoreREST   = "rest"
)

// SQLiteSettings contains settings for the embedded SQLite backend.
type SQLiteSettings struct {
	Path string // path to sqlite database, ":memory:" for a throwaway store
}

// MySQLSettings contains settings for a MySQL backend.
type MySQLSettings struct {
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// RESTSettings contains settings for a hosted PostgREST-style backend.
type RESTSettings struct {
	URL     string        // base URL, e.g. https://project.example.com/rest/v1
	APIKey  string        // sent as apikey and bearer token
	Timeout time.Duration // per-request timeout
}

// DatastoreSettings selects and configures the record and snapshot store.
type DatastoreSettings struct {
	Type        string        // sqlite, mysql or rest
	AutoMigrate bool          // create missing tables on startup
	Timeout     time.Duration // per-operation timeout, 0 disables
	SQLite      SQLiteSettings
	MySQL       MySQLSettings
	REST        RESTSettings
}

// BackupRetention limits how many snapshots are kept.
type BackupRetention struct {
	MaxSnapshots int // newest snapshots kept after each insert
}

// BackupSchedule configures the daily automatic snapshot.
type BackupSchedule struct {
	Enabled  bool
	Hour     int           // local hour of the daily snapshot
	Minute   int           // local minute of the daily snapshot
	Interval time.Duration // how often the scheduler checks the clock
}

// BackupSettings contains settings for snapshot backups.
type BackupSettings struct {
	Enabled   bool
	Retention BackupRetention
	Schedule  BackupSchedule
	StateFile string // file holding the last automatic backup date
}

// CriticalSettings tunes critical item derivation for display surfaces.
type CriticalSettings struct {
	ThresholdDays int // whole days an unresolved item may age before it is critical
	DisplayLimit  int // items shown on badges and dashboards
}

// RateLimitSettings throttles user-triggered snapshot operations.
type RateLimitSettings struct {
	Interval time.Duration // minimum spacing between manual snapshots
	Burst    int
}

// WebServerSettings contains settings for the HTTP API.
type WebServerSettings struct {
	Enabled   bool
	Debug     bool
	Port      string
	RateLimit RateLimitSettings
}

// PushSettings contains settings for external push notifications.
type PushSettings struct {
	Enabled bool
	URLs    []string      // shoutrrr service URLs
	Timeout time.Duration // per-send timeout
}

// NotificationSettings contains settings for in-app and push notifications.
type NotificationSettings struct {
	Expiry time.Duration // how long in-app notifications are kept
	Push   PushSettings
}

// MQTTSettings contains settings for MQTT event publishing.
type MQTTSettings struct {
	Enabled  bool
	Broker   string // tcp://host:port
	Topic    string // topic prefix, events are published below it
	ClientID string
	Username string
	Password string
	Retain   bool
}

// SentrySettings contains settings for error telemetry.
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

// Settings is the root configuration.
type Settings struct {
	Debug bool

	// Runtime values, not stored in config file
	Version   string `yaml:"-"`
	BuildDate string `yaml:"-"`

	Main struct {
		Name     string // name of this logbook instance
		Timezone string // IANA timezone for "today" and the backup schedule; empty uses local
	}

	Logging      logger.LoggingConfig
	Datastore    DatastoreSettings
	Backup       BackupSettings
	Critical     CriticalSettings
	WebServer    WebServerSettings
	Notification NotificationSettings
	MQTT         MQTTSettings
	Sentry       SentrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
	loadedConfigPath string
)

// Load reads the configuration file and environment variables.
// When no config file exists one is created from the embedded defaults.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return nil, fmt.Errorf("error getting default config paths: %w", err)
	}

	v := newViper()
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("fatal error reading config file: %w", err)
		}
		if err := createDefaultConfig(v, configPaths[0]); err != nil {
			return nil, err
		}
	}

	settings, err := decode(v)
	if err != nil {
		return nil, err
	}

	loadedConfigPath = v.ConfigFileUsed()
	settingsInstance = settings
	return settings, nil
}

// LoadFile reads settings from an explicit config file path.
func LoadFile(path string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	settings, err := decode(v)
	if err != nil {
		return nil, err
	}

	loadedConfigPath = path
	settingsInstance = settings
	return settings, nil
}

// newViper returns a viper instance with defaults and env bindings applied.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaultConfig(v)
	bindEnvVars(v)
	return v
}

func decode(v *viper.Viper) (*Settings, error) {
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// createDefaultConfig writes the embedded config.yaml into dir and reads it back.
func createDefaultConfig(v *viper.Viper, dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, getDefaultConfig(), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

// getDefaultConfig returns the embedded default config.yaml.
func getDefaultConfig() []byte {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		// the file is embedded at build time
		panic(fmt.Sprintf("embedded config.yaml missing: %v", err))
	}
	return data
}

// GetSettings returns the current settings instance, nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// ConfigPath returns the path of the config file most recently loaded.
func ConfigPath() string {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return loadedConfigPath
}

// SaveYAMLConfig writes settings to configPath atomically.
// Comments and ordering of an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() {
		_ = os.Remove(tempFileName)
	}()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// Location returns the configured timezone, falling back to local time.
func (s *Settings) Location() *time.Location {
	if s == nil || s.Main.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Main.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
