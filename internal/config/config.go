// Package config holds the run configuration. A Config is built once at
// startup and passed by value to the components that need it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"photo-reconciler/internal/catalog"
	"photo-reconciler/internal/metadata"
	"photo-reconciler/internal/scan"
	"photo-reconciler/internal/timezone"
)

// Environment variables read by Load.
const (
	EnvUser    = "PHOTOSYNC_USER"
	EnvToken   = "PHOTOSYNC_TOKEN"
	EnvTZKey   = "PHOTOSYNC_TZ_KEY"
	EnvAPIURL  = "PHOTOSYNC_API_URL"
	EnvStore   = "PHOTOSYNC_STORE"
	EnvFile    = ".env" // Default dotenv file
	storageDir = ".photosync"
)

// Duration is a time.Duration written as "30s" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"'`)
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the full set of run settings.
type Config struct {
	// Scanning
	Root           string   `yaml:"root"`
	Recursive      bool     `yaml:"recursive"`
	FollowSymlinks bool     `yaml:"follow_symlinks"`
	SkipDirs       []string `yaml:"skip_dirs"`

	// Extraction
	Checksum      string `yaml:"checksum"`
	FilenameDates bool   `yaml:"filename_dates"`
	TimezoneURL   string `yaml:"timezone_url"`
	TimezoneKey   string `yaml:"timezone_key"`

	// Remote catalog
	User     string   `yaml:"user"`
	Token    string   `yaml:"token"`
	APIURL   string   `yaml:"api_url"`
	PageSize int      `yaml:"page_size"`
	Timeout  Duration `yaml:"timeout"`
	Access   string   `yaml:"access"`

	// Reconciliation
	DefaultAlbum  string   `yaml:"default_album"`
	Workers       int      `yaml:"workers"`
	UploadRetries int      `yaml:"upload_retries"`
	RetryBase     Duration `yaml:"retry_base"`
	RetryMax      Duration `yaml:"retry_max"`

	// Output
	StorePath  string `yaml:"store"`
	ReportPath string `yaml:"report"`
	Debug      bool   `yaml:"debug"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Root:          ".",
		Recursive:     true,
		SkipDirs:      append([]string(nil), scan.DefaultSkipDirs...),
		Checksum:      string(metadata.MD5),
		TimezoneURL:   timezone.DefaultURL,
		APIURL:        catalog.DefaultBaseURL,
		PageSize:      catalog.DefaultPageSize,
		Timeout:       Duration(30 * time.Second),
		Access:        catalog.AccessPrivate,
		Workers:       4,
		UploadRetries: 5,
		RetryBase:     Duration(time.Second),
		RetryMax:      Duration(30 * time.Second),
		ReportPath:    filepath.Join("_Manifest", "reconcile.csv"),
	}
}

// Load builds a Config from the defaults, the optional YAML file at path,
// the optional dotenv file envFile and the process environment, in
// increasing order of precedence. Command-line flags are applied on top by
// the caller. A missing envFile is not an error.
func Load(path, envFile string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	var dotenv map[string]string
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		dotenv = vars
	}
	cfg.applyEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvUser, &c.User)
	set(EnvToken, &c.Token)
	set(EnvTZKey, &c.TimezoneKey)
	set(EnvAPIURL, &c.APIURL)
	set(EnvStore, &c.StorePath)
}

// Validate checks the settings. Remote credentials are only required when
// remote is set.
func (c Config) Validate(remote bool) error {
	var errs []error
	if c.Root == "" {
		errs = append(errs, errors.New("root must not be empty"))
	}
	if c.PageSize < 1 {
		errs = append(errs, fmt.Errorf("page_size must be at least 1, got %d", c.PageSize))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.UploadRetries < 1 {
		errs = append(errs, fmt.Errorf("upload_retries must be at least 1, got %d", c.UploadRetries))
	}
	if _, err := metadata.Algorithm(c.Checksum).New(); err != nil {
		errs = append(errs, err)
	}
	switch c.Access {
	case catalog.AccessPrivate, catalog.AccessProtected, catalog.AccessPublic:
	default:
		errs = append(errs, fmt.Errorf("unknown access level %q", c.Access))
	}
	if remote {
		if c.User == "" {
			errs = append(errs, fmt.Errorf("user is required (set %s)", EnvUser))
		}
		if c.Token == "" {
			errs = append(errs, fmt.Errorf("token is required (set %s)", EnvToken))
		}
	}
	return errors.Join(errs...)
}

// StoreFile returns the path of the catalog database, defaulting to a
// per-user file under the home directory.
func (c Config) StoreFile() (string, error) {
	if c.StorePath != "" {
		return c.StorePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}
	name := catalog.Username(c.User)
	if name == "" {
		name = "default"
	}
	return filepath.Join(home, storageDir, name+".db"), nil
}

// String renders the settings with the token masked.
func (c Config) String() string {
	masked := c
	if masked.Token != "" {
		masked.Token = "***" + strconv.Itoa(len(c.Token))
	}
	out, err := yaml.Marshal(masked)
	if err != nil {
		return err.Error()
	}
	return string(out)
}
