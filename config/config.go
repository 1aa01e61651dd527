// Package config stores the edge connection settings used by the CLI and
// the HTTP API.
//
// Config is stored at $XDG_CONFIG_HOME/n2nmaid/config.yaml (defaults to
// ~/.config/n2nmaid/config.yaml).
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	IPModeDHCP   = "dhcp"
	IPModeStatic = "static"

	DefaultMTU = 1290
)

// Config describes one edge connection.
type Config struct {
	Supernode     string `yaml:"supernode" json:"supernode"` // host:port
	Community     string `yaml:"community" json:"community"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"` // empty means hostname
	EncryptionKey string `yaml:"encryption_key,omitempty" json:"encryptionKey,omitempty"`
	IPMode        string `yaml:"ip_mode" json:"ipMode"`
	StaticIP      string `yaml:"static_ip,omitempty" json:"staticIp,omitempty"` // e.g. 10.0.0.5/24
	MTU           int    `yaml:"mtu,omitempty" json:"mtu,omitempty"`
	TapDevice     string `yaml:"tap_device,omitempty" json:"tapDevice,omitempty"`
	EdgePath      string `yaml:"edge_path,omitempty" json:"edgePath,omitempty"`
	ExtraArgs     string `yaml:"extra_args,omitempty" json:"extraArgs,omitempty"`
}

// Default returns the settings used when no file exists.
func Default() Config {
	return Config{IPMode: IPModeDHCP, MTU: DefaultMTU}
}

// Validate reports the first problem that would prevent the edge from
// starting with these settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Community) == "" {
		return errors.New("community is required")
	}
	if strings.TrimSpace(c.Supernode) == "" {
		return errors.New("supernode is required")
	}
	host, port, err := net.SplitHostPort(c.Supernode)
	if err != nil {
		return fmt.Errorf("supernode %q must be host:port: %w", c.Supernode, err)
	}
	if host == "" {
		return fmt.Errorf("supernode %q has no host", c.Supernode)
	}
	if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("supernode %q has invalid port", c.Supernode)
	}

	switch c.IPMode {
	case "", IPModeDHCP:
	case IPModeStatic:
		if strings.TrimSpace(c.StaticIP) == "" {
			return errors.New("static_ip is required when ip_mode is static")
		}
	default:
		return fmt.Errorf("unknown ip_mode %q", c.IPMode)
	}

	if c.MTU < 0 || c.MTU > 65535 {
		return fmt.Errorf("mtu %d out of range", c.MTU)
	}
	return nil
}

// Path returns the config file location. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/n2nmaid/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "n2nmaid", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "n2nmaid", "config.yaml")
}

// Load reads the config file. If the file does not exist, Default is
// returned (not an error).
func Load() (Config, error) {
	return LoadFile(Path())
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to Path, creating directories as needed.
func (c Config) Save() error {
	return c.SaveFile(Path())
}

// SaveFile writes the config to path. The file may hold an encryption key,
// so it is only readable by the owner.
func (c Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Set assigns one field by its yaml key. It backs `config set`.
func (c *Config) Set(key, value string) error {
	switch key {
	case "supernode":
		c.Supernode = value
	case "community":
		c.Community = value
	case "username":
		c.Username = value
	case "encryption_key":
		c.EncryptionKey = value
	case "ip_mode":
		c.IPMode = value
	case "static_ip":
		c.StaticIP = value
	case "mtu":
		if value == "" {
			c.MTU = 0
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("mtu: %w", err)
		}
		c.MTU = n
	case "tap_device":
		c.TapDevice = value
	case "edge_path":
		c.EdgePath = value
	case "extra_args":
		c.ExtraArgs = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.EncryptionKey != "" {
		c.EncryptionKey = "****"
	}
	return c
}
