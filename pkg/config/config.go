// Package config loads and saves the memprobe configuration file. Only the
// outer layers (CLI, terminal) consume it; the scan and pointer-path
// packages receive everything as parameters.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".memprobe"
	configFile string = "config.yml"
)

// Config defines all options available through the config file.
type Config struct {
	// Command aliases, merged into the terminal command table.
	Aliases map[string][]string `yaml:"aliases"`

	// ScanChunkSize is the read window, in bytes, of the initial scan.
	ScanChunkSize *int `yaml:"scan-chunk-size,omitempty"`

	// MaxResultsDisplay caps how many matches the results command prints
	// at once.
	MaxResultsDisplay *int `yaml:"max-results-display,omitempty"`

	// MaxTraceDisplay caps how many trace steps the path command prints.
	MaxTraceDisplay *int `yaml:"max-trace-display,omitempty"`
}

// LoadConfig attempts to populate a Config from the config.yml file,
// creating a default one on first use. It never fails; any problem leaves
// the defaults in place.
func LoadConfig() *Config {
	if err := createConfigPath(); err != nil {
		fmt.Printf("Could not create config directory: %v.\n", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.\n", err)
		return &Config{}
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Printf("Error creating default config file: %v\n", err)
			return &Config{}
		}
	}
	defer f.Close()

	data, err := ioutil.ReadAll(f)
	if err != nil {
		fmt.Printf("Unable to read config data: %v.\n", err)
		return &Config{}
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		fmt.Printf("Unable to decode config file: %v.\n", err)
		return &Config{}
	}
	return &c
}

// SaveConfig marshals and saves the config struct to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	if err := writeDefaultConfig(f); err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	return f, nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for memprobe.

# This is the default configuration file. Available options are provided,
# but disabled. Delete the leading hash mark to enable an item.

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Read window of the initial scan, in bytes.
# scan-chunk-size: 65536

# Maximum number of matches the results command prints at once.
# max-results-display: 32

# Maximum number of trace steps the path command prints.
# max-trace-display: 64
`)
	return err
}

// createConfigPath creates the directory all config files are saved under.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
