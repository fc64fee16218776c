// Package config assembles the immutable build configuration from
// defaults, an optional YAML file, and the process environment.
//
// Values are resolved once, up front. Nothing downstream reads the
// environment or mutates the Config; each stage receives it by value.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/drvbuild/internal/msbuild"
	"github.com/roach88/drvbuild/internal/version"
)

// Lookup reads one environment variable. os.LookupEnv satisfies it.
type Lookup func(key string) (string, bool)

// Environment variable names.
const (
	EnvVendorName     = "VENDOR_NAME"
	EnvVendorPrefix   = "VENDOR_PREFIX"
	EnvVendorDeviceID = "VENDOR_DEVICE_ID"
	EnvProductName    = "PRODUCT_NAME"
	EnvBuildNumber    = "BUILD_NUMBER"
	EnvSymbolServer   = "SYMBOL_SERVER"
	EnvKit            = "KIT"
	EnvHostArch       = "PROCESSOR_ARCHITECTURE"
	EnvVS             = "VS"
	EnvGitRevision    = "GIT_REVISION"
)

// Defaults for a xenbus build.
const (
	DefaultDriver        = "xenbus"
	DefaultVendorName    = "Xen Project"
	DefaultVendorPrefix  = "XP"
	DefaultProductName   = "Xen"
	DefaultMajor         = "8"
	DefaultMinor         = "2"
	DefaultMicro         = "0"
	DefaultRetentionDays = 30
)

// DefaultSDVModules are verified in this order.
var DefaultSDVModules = []string{"xen", "xenfilt", "xenbus"}

// Config is the resolved configuration of one build.
type Config struct {
	// Root is the project root; all relative paths resolve against it.
	Root string `json:"root"`

	Driver        string   `json:"driver"`
	SDVModules    []string `json:"sdv_modules"`
	Architectures []string `json:"architectures"`

	// Info.Build is empty when BUILD_NUMBER is unset and the counter
	// file has not been consulted yet.
	Info version.Info `json:"info"`

	SymbolServer string        `json:"symbol_server"`
	Kit          string        `json:"kit"`
	HostArch     string        `json:"host_arch"`
	VSDir        string        `json:"vs_dir,omitempty"`
	Toolset      string        `json:"toolset,omitempty"`
	GitRevision  string        `json:"git_revision,omitempty"`
	Retention    time.Duration `json:"retention"`

	Debug bool `json:"debug"`
	SDV   bool `json:"sdv"`
}

// Release is the target OS release for the configured toolset.
func (c Config) Release() string {
	return msbuild.Release(c.Toolset)
}

// Configuration is the solution configuration name, e.g. "Windows 7 Debug".
func (c Config) Configuration() string {
	return msbuild.Configuration(c.Release(), c.Debug)
}

// CounterPath is the location of the build-number counter.
func (c Config) CounterPath() string {
	return filepath.Join(c.Root, version.CounterFile)
}

// WithBuildNumber returns a copy of c carrying build number n.
func (c Config) WithBuildNumber(n int) Config {
	c.Info.Build = strconv.Itoa(n)
	return c
}

// WithToolset returns a copy of c targeting toolset.
func (c Config) WithToolset(toolset string) Config {
	c.Toolset = toolset
	return c
}

// File is the optional YAML project file.
type File struct {
	Driver        string   `yaml:"driver"`
	SDVModules    []string `yaml:"sdv_modules"`
	Architectures []string `yaml:"architectures"`
	Toolset       string   `yaml:"toolset"`
	RetentionDays int      `yaml:"retention_days"`

	Vendor struct {
		Name   string `yaml:"name"`
		Prefix string `yaml:"prefix"`
	} `yaml:"vendor"`
	ProductName string `yaml:"product_name"`

	Version struct {
		Major string `yaml:"major"`
		Minor string `yaml:"minor"`
		Micro string `yaml:"micro"`
	} `yaml:"version"`
}

// LoadFile reads a project file, rejecting unknown fields.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &f, nil
}

// MissingEnvError lists required environment variables that are unset.
type MissingEnvError struct {
	Names []string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("missing required environment variable(s): %s", strings.Join(e.Names, ", "))
}

// Options controls Load.
type Options struct {
	Root string

	// File is an optional project file path; empty skips it.
	File string

	// Env defaults to os.LookupEnv.
	Env Lookup

	// Toolset overrides both the file and detection when set.
	Toolset string

	Debug bool
	SDV   bool
}

// Load resolves the configuration: defaults, then the project file, then
// the environment. All missing required variables are reported together.
func Load(opts Options) (Config, error) {
	cfg, env, err := resolve(opts)
	if err != nil {
		return Config{}, err
	}

	var missing []string
	required := func(key string, dst *string) {
		v, ok := env(key)
		if !ok || v == "" {
			missing = append(missing, key)
			return
		}
		*dst = v
	}
	required(EnvSymbolServer, &cfg.SymbolServer)
	required(EnvKit, &cfg.Kit)
	required(EnvHostArch, &cfg.HostArch)
	if cfg.Toolset == "" && cfg.VSDir == "" {
		missing = append(missing, EnvVS)
	}
	if len(missing) > 0 {
		return Config{}, &MissingEnvError{Names: missing}
	}

	return cfg, nil
}

// LoadInfo resolves only the version information. It needs none of the
// variables the build itself requires.
func LoadInfo(opts Options) (version.Info, error) {
	cfg, _, err := resolve(opts)
	if err != nil {
		return version.Info{}, err
	}
	return cfg.Info, nil
}

// resolve applies defaults, the project file and the optional variables.
func resolve(opts Options) (Config, Lookup, error) {
	env := opts.Env
	if env == nil {
		env = os.LookupEnv
	}

	root := opts.Root
	if root == "" {
		root = "."
	}

	cfg := Config{
		Root:          root,
		Driver:        DefaultDriver,
		SDVModules:    append([]string(nil), DefaultSDVModules...),
		Architectures: append([]string(nil), msbuild.Architectures...),
		Info: version.Info{
			VendorName:   DefaultVendorName,
			VendorPrefix: DefaultVendorPrefix,
			ProductName:  DefaultProductName,
			Major:        DefaultMajor,
			Minor:        DefaultMinor,
			Micro:        DefaultMicro,
		},
		Retention: DefaultRetentionDays * 24 * time.Hour,
		Debug:     opts.Debug,
		SDV:       opts.SDV,
	}

	if opts.File != "" {
		f, err := LoadFile(opts.File)
		if err != nil {
			return Config{}, nil, err
		}
		if err := applyFile(&cfg, f); err != nil {
			return Config{}, nil, fmt.Errorf("invalid config file: %w", err)
		}
	}

	if opts.Toolset != "" {
		cfg.Toolset = opts.Toolset
	}

	optional := func(key string, dst *string) {
		if v, ok := env(key); ok {
			*dst = v
		}
	}
	optional(EnvVendorName, &cfg.Info.VendorName)
	optional(EnvVendorPrefix, &cfg.Info.VendorPrefix)
	optional(EnvVendorDeviceID, &cfg.Info.VendorDeviceID)
	optional(EnvProductName, &cfg.Info.ProductName)
	optional(EnvBuildNumber, &cfg.Info.Build)
	optional(EnvGitRevision, &cfg.GitRevision)
	optional(EnvVS, &cfg.VSDir)

	if cfg.Info.Build != "" {
		if _, err := strconv.Atoi(cfg.Info.Build); err != nil {
			return Config{}, nil, fmt.Errorf("%s must be a number, got %q", EnvBuildNumber, cfg.Info.Build)
		}
	}

	return cfg, env, nil
}

func applyFile(cfg *Config, f *File) error {
	if f.Driver != "" {
		cfg.Driver = f.Driver
	}
	if f.SDVModules != nil {
		cfg.SDVModules = append([]string(nil), f.SDVModules...)
	}
	if len(f.Architectures) > 0 {
		for _, arch := range f.Architectures {
			if _, err := msbuild.Platform(arch); err != nil {
				return err
			}
		}
		cfg.Architectures = append([]string(nil), f.Architectures...)
	}
	if f.Toolset != "" {
		cfg.Toolset = f.Toolset
	}
	if f.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative, got %d", f.RetentionDays)
	}
	if f.RetentionDays > 0 {
		cfg.Retention = time.Duration(f.RetentionDays) * 24 * time.Hour
	}
	if f.Vendor.Name != "" {
		cfg.Info.VendorName = f.Vendor.Name
	}
	if f.Vendor.Prefix != "" {
		cfg.Info.VendorPrefix = f.Vendor.Prefix
	}
	if f.ProductName != "" {
		cfg.Info.ProductName = f.ProductName
	}
	if f.Version.Major != "" {
		cfg.Info.Major = f.Version.Major
	}
	if f.Version.Minor != "" {
		cfg.Info.Minor = f.Version.Minor
	}
	if f.Version.Micro != "" {
		cfg.Info.Micro = f.Version.Micro
	}
	return nil
}
