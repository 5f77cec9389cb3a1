package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/tcdconnect/util"
)

// Config - The config.
type Config struct {
	HomeDir              string  `json:"home_dir"`
	DataDir              string  `json:"data_dir"`
	ScanFile             string  `json:"scan_file"`
	ConnectLogFile       string  `json:"connect_log_file"`
	RegistryFile         string  `json:"registry_file"`
	SSHPort              uint    `json:"ssh_port"`
	SSHDialTimeout       float64 `json:"ssh_dial_timeout"`
	AtomicRegistryWrites bool    `json:"atomic_registry_writes"`
	MetricsTextfile      string  `json:"metrics_textfile"`
	InfluxDBURL          string  `json:"influxdb_url"`
	InfluxDBToken        string  `json:"influxdb_token"`
	InfluxDBOrg          string  `json:"influxdb_org"`
	InfluxDBBucket       string  `json:"influxdb_bucket"`
}

// Paths - Absolute file locations, resolved once from the config.
type Paths struct {
	DataDir         string
	ScanFile        string
	ConnectLog      string
	RegistryFile    string
	MetricsTextfile string // Empty if disabled
}

// DefaultConfig - Config with defaults. The home dir is left empty and resolved by LoadConfig.
func DefaultConfig() Config {
	return Config{
		DataDir:        ".tcd",
		ScanFile:       "scan.json",
		ConnectLogFile: "connect.log",
		RegistryFile:   "connected.json",
		SSHPort:        22,
		SSHDialTimeout: 10.0,
		InfluxDBBucket: "tcdconnect",
	}
}

// LoadConfig - Load the config file on top of the defaults, if a path is given, then validate it.
// A non-empty home dir overrides the one from the file.
func LoadConfig(configPath string, homeDir string) (Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		log.WithFields(log.Fields{
			"config_path": configPath,
		}).Debug("Loading config")
		if err := util.ParseJSONFile(&config, configPath); err != nil {
			return config, err
		}
	}

	if homeDir != "" {
		config.HomeDir = homeDir
	}
	if config.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return config, fmt.Errorf("failed to find home directory: %w", err)
		}
		config.HomeDir = home
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate - Check that the config is usable.
func (config Config) Validate() error {
	if config.HomeDir == "" {
		return errors.New("home directory missing")
	}
	if config.ScanFile == "" || config.ConnectLogFile == "" || config.RegistryFile == "" {
		return errors.New("file names must not be empty")
	}
	if config.SSHPort == 0 || config.SSHPort > 65535 {
		return fmt.Errorf("invalid SSH port: %v", config.SSHPort)
	}
	if config.SSHDialTimeout <= 0 {
		return errors.New("non-positive SSH dial timeout not allowed")
	}
	return nil
}

// Paths - Resolve the file locations.
func (config Config) Paths() Paths {
	dataDir := config.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(config.HomeDir, dataDir)
	}
	inDataDir := func(name string) string {
		if name == "" || filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(dataDir, name)
	}
	return Paths{
		DataDir:         dataDir,
		ScanFile:        inDataDir(config.ScanFile),
		ConnectLog:      inDataDir(config.ConnectLogFile),
		RegistryFile:    inDataDir(config.RegistryFile),
		MetricsTextfile: inDataDir(config.MetricsTextfile),
	}
}
