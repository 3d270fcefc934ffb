// Package conf loads and validates the application configuration.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"github.com/tkoskela/inatwatch/internal/errors"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig holds file logging and rotation settings.
type LogConfig struct {
	Level      string // debug, info, warn, error
	MaxSize    int    // max log file size in MB before rotation
	MaxBackups int    // number of rotated files to keep
	MaxAge     int    // days to keep rotated files
}

// APIConfig holds upstream API endpoint and request tuning.
type APIConfig struct {
	BaseURL        string // observations endpoint base URL
	Timeout        int    // per-request timeout in seconds
	MaxAttempts    int    // retry budget for a single logical request
	InitialBackoff int    // first retry delay in seconds
	MaxBackoff     int    // backoff ceiling in seconds
	UserAgent      string // User-Agent header value
}

// LocationConfig holds the geographic query filter.
type LocationConfig struct {
	Latitude  float64 // center latitude
	Longitude float64 // center longitude
	Radius    float64 // search radius in kilometers
	Timezone  string  // IANA timezone name used for observation age calculations
}

// TaxaConfig holds taxonomic include/exclude filters.
type TaxaConfig struct {
	Include   []int64 // taxon ids to query, empty for all
	Exclude   []int64 // taxon ids to exclude from results
	Watchlist []int64 // taxon subset monitored by the alert workflow
}

// Rarity count methods
const (
	RarityMethodRadius = "radius"
	RarityMethodPlace  = "place"
	RarityMethodGlobal = "global"
)

// RarityConfig selects the rarity count strategy.
type RarityConfig struct {
	Method  string // radius, place or global
	PlaceID int64  // place id for the place method, optional fallback for radius
}

// DigestConfig holds digest workflow settings.
type DigestConfig struct {
	AgeThresholdDays int // observations older than this are bucketed as old
	LookbackDays     int // default window length when no previous run exists
	IntervalHours    int // scheduler interval for the watch command
}

// AlertConfig holds alert workflow settings.
type AlertConfig struct {
	LookbackMinutes int // default window length when no previous run exists
	IntervalMinutes int // scheduler interval for the watch command
}

// StateConfig holds workflow state persistence settings.
type StateConfig struct {
	Path          string // state file path
	RetentionDays int    // seen observation ids older than this are pruned
}

// NotifyConfig holds report delivery settings.
type NotifyConfig struct {
	URLs []string // shoutrrr service URLs, empty for log-only delivery
}

// Settings is the validated application configuration.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version string `yaml:"-"` // Version from build

	Main struct {
		Name string    // name of this inatwatch node, used in report titles
		Log  LogConfig // logging configuration
	}

	API      APIConfig
	Location LocationConfig
	Taxa     TaxaConfig
	Rarity   RarityConfig
	Digest   DigestConfig
	Alert    AlertConfig
	State    StateConfig
	Notify   NotifyConfig
}

// TimeLocation returns the configured timezone. Validation guarantees the
// name resolves, so a lookup failure here falls back to UTC.
func (s *Settings) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(s.Location.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and makes it the current one.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetDefaultConfigPaths returns the config file search paths: the working
// directory first, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	userConfig, err := os.UserConfigDir()
	if err == nil {
		paths = append(paths, filepath.Join(userConfig, "inatwatch"))
	}
	if len(paths) == 0 {
		return nil, errors.Newf("no config paths available").
			Category(errors.CategoryConfiguration).
			Component("conf").
			Build()
	}
	return paths, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}
