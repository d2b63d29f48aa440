package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/asaskevich/govalidator"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/swupdate-httpd/internal/domain/catalog"
	"github.com/oshokin/swupdate-httpd/internal/logger"
)

// CatalogMode selects when the images directory is scanned.
type CatalogMode string

const (
	// ModePerRequest rescans the directory on every update request.
	ModePerRequest CatalogMode = "per-request"
	// ModeTTL reuses a scan until CatalogTTL elapses.
	ModeTTL CatalogMode = "ttl"
	// ModeStatic scans once at startup and again only on reload.
	ModeStatic CatalogMode = "static"
)

// Modes lists the recognized catalog modes.
func Modes() []CatalogMode {
	return []CatalogMode{ModePerRequest, ModeTTL, ModeStatic}
}

// Config holds the server settings.
type Config struct {
	// ImagesDirectory is the directory holding update images.
	ImagesDirectory string `yaml:"images_directory"`
	// ListenIP is the IP address or hostname the HTTP server binds to.
	ListenIP string `yaml:"listen_ip"`
	// ListenPort is the HTTP port. Zero picks a free port.
	ListenPort int `yaml:"listen_port"`
	// FilenameFieldsSeparator splits image filenames into fields.
	FilenameFieldsSeparator string `yaml:"filename_fields_separator"`
	// FilenameFieldImageIdentifier is the zero-based image identifier position.
	FilenameFieldImageIdentifier int `yaml:"filename_field_image_identifier"`
	// FilenameFieldDeviceType is the zero-based device type position.
	FilenameFieldDeviceType int `yaml:"filename_field_device_type"`
	// FilenameFieldVersion is the zero-based version position.
	FilenameFieldVersion int `yaml:"filename_field_version"`
	// CatalogMode selects the rescan policy.
	CatalogMode CatalogMode `yaml:"catalog_mode"`
	// CatalogTTL is how long a scan is reused in ttl mode.
	CatalogTTL time.Duration `yaml:"catalog_ttl"`
	// HealthListenAddress enables the gRPC health service when set.
	HealthListenAddress string `yaml:"health_listen_address,omitempty"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// ShutdownTimeout bounds graceful shutdown of the listeners.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

const (
	// DefaultConfigFilename is read when no --config path is given, if it exists.
	DefaultConfigFilename = "swupdate-httpd.yaml"

	// DefaultListenIP binds every interface.
	DefaultListenIP = "0.0.0.0"

	// DefaultListenPort is the HTTP port.
	DefaultListenPort = 8080

	// DefaultCatalogTTL applies in ttl mode when no TTL is configured.
	DefaultCatalogTTL = 5 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultFilePermissions is the mode for files written by Save.
	DefaultFilePermissions = 0o600

	maxPort = 65535
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// ErrImagesDirectoryRequired is returned when no images directory is configured.
	ErrImagesDirectoryRequired = errors.New("images directory must be provided")
	// ErrNotADirectory is returned when the images path is a file.
	ErrNotADirectory = errors.New("images path is not a directory")
	// ErrInvalidPort is returned for ports outside 0..65535.
	ErrInvalidPort = errors.New("listen port out of range")
	// ErrInvalidListenIP is returned when listen_ip is neither an IP address nor a hostname.
	ErrInvalidListenIP = errors.New("invalid listen ip")
	// ErrUnknownCatalogMode is returned for unrecognized catalog modes.
	ErrUnknownCatalogMode = errors.New("unknown catalog mode")
	// ErrInvalidTTL is returned for negative TTLs.
	ErrInvalidTTL = errors.New("catalog ttl must not be negative")
)

// Default returns a Config populated with defaults and no images directory.
func Default() *Config {
	layout := catalog.DefaultLayout()

	return &Config{
		ListenIP:                     DefaultListenIP,
		ListenPort:                   DefaultListenPort,
		FilenameFieldsSeparator:      layout.Separator,
		FilenameFieldImageIdentifier: layout.ImageIDField,
		FilenameFieldDeviceType:      layout.DeviceTypeField,
		FilenameFieldVersion:         layout.VersionField,
		CatalogMode:                  ModePerRequest,
		CatalogTTL:                   DefaultCatalogTTL,
		LogLevel:                     "info",
		ShutdownTimeout:              DefaultShutdownTimeout,
	}
}

// Load reads the YAML file at path over the defaults. An empty path means
// DefaultConfigFilename, which may be absent; an explicit path must exist.
// Load does not validate, callers validate after applying overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return cfg, nil
}

// Build loads the file at path, applies environment variables and overrides,
// and validates the result.
func Build(path string, lookup LookupFunc, overrides *Overrides) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if lookup != nil {
		if err := ApplyEnv(cfg, lookup); err != nil {
			return nil, err
		}
	}

	overrides.Apply(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills zero values that have defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ImagesDirectory == "" {
		return ErrImagesDirectoryRequired
	}

	info, err := os.Stat(cfg.ImagesDirectory)
	if err != nil {
		return fmt.Errorf("images directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s: %w", cfg.ImagesDirectory, ErrNotADirectory)
	}

	if cfg.ListenIP == "" {
		cfg.ListenIP = DefaultListenIP
	}

	// Hostnames are resolved when the listener binds.
	if !govalidator.IsHost(cfg.ListenIP) {
		return fmt.Errorf("%w: %q", ErrInvalidListenIP, cfg.ListenIP)
	}

	if cfg.ListenPort < 0 || cfg.ListenPort > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, cfg.ListenPort)
	}

	if err := cfg.Layout().Validate(); err != nil {
		return fmt.Errorf("filename layout: %w", err)
	}

	if cfg.CatalogMode == "" {
		cfg.CatalogMode = ModePerRequest
	}

	if !slices.Contains(Modes(), cfg.CatalogMode) {
		return fmt.Errorf("%w: %q", ErrUnknownCatalogMode, cfg.CatalogMode)
	}

	if cfg.CatalogTTL < 0 {
		return ErrInvalidTTL
	}

	if cfg.CatalogTTL == 0 {
		cfg.CatalogTTL = DefaultCatalogTTL
	}

	if cfg.HealthListenAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", cfg.HealthListenAddress); err != nil {
			return fmt.Errorf("invalid health listen address: %w", err)
		}
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%w: %q", logger.ErrUnknownLevel, cfg.LogLevel)
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	return nil
}

// Layout returns the filename layout described by the settings.
func (c *Config) Layout() catalog.Layout {
	return catalog.Layout{
		Separator:       c.FilenameFieldsSeparator,
		ImageIDField:    c.FilenameFieldImageIdentifier,
		DeviceTypeField: c.FilenameFieldDeviceType,
		VersionField:    c.FilenameFieldVersion,
	}
}

// ListenAddress returns the HTTP host:port.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.ListenIP, strconv.Itoa(c.ListenPort))
}
