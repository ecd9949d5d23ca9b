package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-json"
	"github.com/natefinch/atomic"
	"github.com/openmined/studiosync/internal/client/index"
	"github.com/openmined/studiosync/internal/studiosdk"
	"github.com/openmined/studiosync/internal/utils"
)

const (
	DefaultControlPlaneAddr = "127.0.0.1:7938"
	DefaultPollingInterval  = 60
	DefaultInitialDelay     = 10
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigDir  = filepath.Join(home, ".studiosync")
	DefaultConfigPath = filepath.Join(DefaultConfigDir, "config.json")
	DefaultStateDir   = DefaultConfigDir
)

var (
	ErrNoInstances    = errors.New("at least one studio instance is required")
	ErrInvalidURL     = errors.New("invalid url")
	ErrNoAPIKey       = errors.New("api key is required")
	ErrInvalidProject = errors.New("invalid project")
)

// InstanceConfig is one studio server the daemon talks to.
type InstanceConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	APIKey string `json:"api_key" mapstructure:"api_key"`
}

type ControlPlaneConfig struct {
	Addr  string `json:"addr" mapstructure:"addr"`
	Token string `json:"token,omitempty" mapstructure:"token"`
}

type Config struct {
	StateDir        string                     `json:"state_dir" mapstructure:"state_dir"`
	BackgroundSync  bool                       `json:"background_sync" mapstructure:"background_sync"`
	PollingInterval int                        `json:"polling_interval" mapstructure:"polling_interval"` // seconds
	InitialDelay    int                        `json:"initial_delay" mapstructure:"initial_delay"`       // seconds
	Instances       map[string]*InstanceConfig `json:"instances" mapstructure:"instances"`
	Projects        []index.Project            `json:"projects" mapstructure:"projects"`
	ControlPlane    ControlPlaneConfig         `json:"control_plane" mapstructure:"control_plane"`
	Path            string                     `json:"-" mapstructure:"-"`
}

// Validate normalizes paths, applies defaults and rejects unusable values.
func (c *Config) Validate() error {
	var err error

	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.StateDir, err = utils.ResolvePath(c.StateDir); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}

	if c.PollingInterval <= 0 {
		c.PollingInterval = DefaultPollingInterval
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}

	if c.ControlPlane.Addr == "" {
		c.ControlPlane.Addr = DefaultControlPlaneAddr
	}

	if len(c.Instances) == 0 {
		return ErrNoInstances
	}
	for name, inst := range c.Instances {
		if inst == nil {
			return fmt.Errorf("instance %q: empty config", name)
		}
		if err := validateURL(inst.URL); err != nil {
			return fmt.Errorf("instance %q: %w", name, err)
		}
		if inst.APIKey == "" {
			return fmt.Errorf("instance %q: %w", name, ErrNoAPIKey)
		}
	}

	seen := make(map[string]bool, len(c.Projects))
	for i := range c.Projects {
		p := &c.Projects[i]
		if p.Name == "" {
			return fmt.Errorf("%w: project #%d has no name", ErrInvalidProject, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate project %q", ErrInvalidProject, p.Name)
		}
		seen[p.Name] = true

		for j, root := range p.ModuleRoots {
			resolved, err := utils.ResolvePath(root)
			if err != nil {
				return fmt.Errorf("%w: %q module root %q: %v", ErrInvalidProject, p.Name, root, err)
			}
			if !doublestar.ValidatePathPattern(resolved) {
				return fmt.Errorf("%w: %q bad module root pattern %q", ErrInvalidProject, p.Name, root)
			}
			p.ModuleRoots[j] = resolved
		}
	}

	return nil
}

// SyncProjects expands module root globs into concrete directories. Patterns
// that match nothing are kept as-is so a root created later is still picked up.
func (c *Config) SyncProjects() ([]index.Project, error) {
	projects := make([]index.Project, 0, len(c.Projects))
	for _, p := range c.Projects {
		roots, err := ExpandModuleRoots(p.ModuleRoots)
		if err != nil {
			return nil, fmt.Errorf("project %q: %w", p.Name, err)
		}
		projects = append(projects, index.Project{Name: p.Name, ModuleRoots: roots})
	}
	return projects, nil
}

func ExpandModuleRoots(patterns []string) ([]string, error) {
	var roots []string
	seen := make(map[string]bool)
	add := func(root string) {
		root = filepath.Clean(root)
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}

	for _, pattern := range patterns {
		if !hasMeta(pattern) {
			add(pattern)
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if utils.DirExists(m) {
				add(m)
			}
		}
	}
	return roots, nil
}

// StudioInstances converts the instances section for studiosdk.NewRegistryFromConfig.
func (c *Config) StudioInstances() map[string]*studiosdk.Config {
	out := make(map[string]*studiosdk.Config, len(c.Instances))
	for name, inst := range c.Instances {
		out[name] = &studiosdk.Config{
			BaseURL: inst.URL,
			APIKey:  inst.APIKey,
		}
	}
	return out
}

func (c *Config) PollingDuration() time.Duration {
	return time.Duration(c.PollingInterval) * time.Second
}

func (c *Config) InitialDelayDuration() time.Duration {
	return time.Duration(c.InitialDelay) * time.Second
}

func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogsDir(), "studiosync.log")
}

// Save writes the config as indented JSON, atomically replacing the file.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.Path
	}
	if path == "" {
		path = DefaultConfigPath
	}

	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Path = path
	return &cfg, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidURL, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w %q: missing host", ErrInvalidURL, raw)
	}
	return nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
