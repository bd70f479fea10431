package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/openmined/syncvault/internal/crypto"
	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/utils"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	TransportDir = "dir"
	TransportGit = "git"
	TransportS3  = "s3"

	DefaultBranch        = "main"
	DefaultSyncInterval  = 30 * time.Second
	DefaultControlAddr   = "127.0.0.1:7938"
	defaultS3Region      = "us-east-1"
	machineIDAppName     = "syncvault"
	configFilePermission = 0o600
)

var ErrInvalidConfig = errors.New("invalid config")

type GitConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Token    string `yaml:"token,omitempty" mapstructure:"token"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region,omitempty" mapstructure:"region"`
	Endpoint  string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Prefix    string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKey string `yaml:"access_key,omitempty" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key,omitempty" mapstructure:"secret_key"`
}

type DirConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

type ControlPlaneConfig struct {
	Addr      string `yaml:"addr,omitempty" mapstructure:"addr"`
	AuthToken string `yaml:"auth_token,omitempty" mapstructure:"auth_token"`
}

type Config struct {
	Key           string             `yaml:"key" mapstructure:"key"`
	EnvironmentID string             `yaml:"environment_id,omitempty" mapstructure:"environment_id"`
	Branch        string             `yaml:"branch,omitempty" mapstructure:"branch"`
	Transport     string             `yaml:"transport" mapstructure:"transport"`
	Include       []string           `yaml:"include,omitempty" mapstructure:"include"`
	Ignore        []string           `yaml:"ignore,omitempty" mapstructure:"ignore"`
	Workers       int                `yaml:"workers,omitempty" mapstructure:"workers"`
	SyncInterval  time.Duration      `yaml:"sync_interval,omitempty" mapstructure:"sync_interval"`
	Git           GitConfig          `yaml:"git,omitempty" mapstructure:"git"`
	S3            S3Config           `yaml:"s3,omitempty" mapstructure:"s3"`
	Dir           DirConfig          `yaml:"dir,omitempty" mapstructure:"dir"`
	ControlPlane  ControlPlaneConfig `yaml:"control_plane,omitempty" mapstructure:"control_plane"`

	// Path is the file this config was loaded from or will be saved to.
	Path string `yaml:"-" mapstructure:"-"`
}

// FromViper decodes the merged file, env and flag values held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	return &cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config parse '%s': %w", path, err)
	}
	cfg.Path = path
	return &cfg, nil
}

// Save writes the config as YAML to c.Path. The file holds the key, so it
// is only readable by the owner.
func (c *Config) Save() error {
	if c.Path == "" {
		return fmt.Errorf("%w: no config path", ErrInvalidConfig)
	}
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path, data, configFilePermission)
}

// Validate fills defaults and checks the settings for the chosen transport.
func (c *Config) Validate() error {
	if _, err := crypto.ParseKey(c.Key); err != nil {
		return err
	}

	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	if err := objstore.ValidBranch(c.Branch); err != nil {
		return err
	}

	if c.EnvironmentID == "" {
		c.EnvironmentID = DefaultEnvironmentID()
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.ControlPlane.Addr == "" {
		c.ControlPlane.Addr = DefaultControlAddr
	}

	switch c.Transport {
	case TransportDir:
		if c.Dir.Path == "" {
			return fmt.Errorf("%w: dir transport needs dir.path", ErrInvalidConfig)
		}
		p, err := utils.ResolvePath(c.Dir.Path)
		if err != nil {
			return fmt.Errorf("%w: dir path: %w", ErrInvalidConfig, err)
		}
		c.Dir.Path = p

	case TransportGit:
		if err := validateGitURL(c.Git.URL); err != nil {
			return err
		}

	case TransportS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("%w: s3 transport needs s3.bucket", ErrInvalidConfig)
		}
		if c.S3.Region == "" {
			c.S3.Region = defaultS3Region
		}
		if c.S3.Endpoint != "" {
			if err := validateHTTPURL(c.S3.Endpoint); err != nil {
				return fmt.Errorf("%w: s3 endpoint: %w", ErrInvalidConfig, err)
			}
		}

	case "":
		return fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}

	if c.Path != "" {
		p, err := utils.ResolvePath(c.Path)
		if err != nil {
			return err
		}
		c.Path = p
	}
	return nil
}

// DefaultEnvironmentID is a stable per-machine id, or the host name when
// the machine id cannot be read.
func DefaultEnvironmentID() string {
	if id, err := machineid.ProtectedID(machineIDAppName); err == nil {
		return id[:16]
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "unknown"
}

func validateGitURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: git transport needs git.url", ErrInvalidConfig)
	}
	u, err := url.Parse(raw)
	if err != nil {
		// scp-like ssh remotes (git@host:repo.git) are not URLs
		return nil
	}
	switch u.Scheme {
	case "", "http", "https", "ssh", "git", "file":
		return nil
	default:
		return fmt.Errorf("%w: git url scheme %q", ErrInvalidConfig, u.Scheme)
	}
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
