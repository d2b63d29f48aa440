package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/swupdate-httpd/internal/domain/catalog"
)

func envOf(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

// TestValidate checks required fields and format validations.
func TestValidate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// Missing directory.
	require.ErrorIs(t, Validate(Default()), ErrImagesDirectoryRequired)

	// Directory does not exist.
	cfg := Default()
	cfg.ImagesDirectory = filepath.Join(dir, "missing")
	require.ErrorIs(t, Validate(cfg), os.ErrNotExist)

	// Path is a file.
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	cfg = Default()
	cfg.ImagesDirectory = file
	require.ErrorIs(t, Validate(cfg), ErrNotADirectory)

	// Bad port.
	cfg = Default()
	cfg.ImagesDirectory = dir
	cfg.ListenPort = 70000
	require.ErrorIs(t, Validate(cfg), ErrInvalidPort)

	// Bad listen host.
	cfg = Default()
	cfg.ImagesDirectory = dir
	cfg.ListenIP = "not a host!"
	require.ErrorIs(t, Validate(cfg), ErrInvalidListenIP)

	// Hostnames are accepted like IP addresses.
	cfg = Default()
	cfg.ImagesDirectory = dir
	cfg.ListenIP = "localhost"
	require.NoError(t, Validate(cfg))
	require.Equal(t, "localhost:8080", cfg.ListenAddress())

	// Duplicate field positions.
	cfg = Default()
	cfg.ImagesDirectory = dir
	cfg.FilenameFieldVersion = 0
	require.ErrorIs(t, Validate(cfg), catalog.ErrDuplicateField)

	// Unknown mode.
	cfg = Default()
	cfg.ImagesDirectory = dir
	cfg.CatalogMode = "sometimes"
	require.ErrorIs(t, Validate(cfg), ErrUnknownCatalogMode)

	// Okay, zero values get defaults.
	cfg = Default()
	cfg.ImagesDirectory = dir
	cfg.CatalogMode = ""
	cfg.CatalogTTL = 0
	cfg.ListenIP = ""
	require.NoError(t, Validate(cfg))
	require.Equal(t, ModePerRequest, cfg.CatalogMode)
	require.Equal(t, DefaultCatalogTTL, cfg.CatalogTTL)
	require.Equal(t, "0.0.0.0:8080", cfg.ListenAddress())
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := Default()
	cfg.ImagesDirectory = dir
	cfg.FilenameFieldsSeparator = "-"
	cfg.CatalogMode = ModeTTL
	cfg.CatalogTTL = 30 * time.Second

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

// TestLoad_PartialFileKeepsDefaults verifies omitted keys keep their defaults.
func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("images_directory: /srv/images\nfilename_field_version: 3\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/srv/images", cfg.ImagesDirectory)
	require.Equal(t, 1, cfg.FilenameFieldDeviceType)
	require.Equal(t, 3, cfg.FilenameFieldVersion)
	require.Equal(t, "_", cfg.FilenameFieldsSeparator)
}

// TestLoad_ExplicitMissingFile ensures an explicit path must exist.
func TestLoad_ExplicitMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestBuild_Precedence checks file < environment < overrides.
func TestBuild_Precedence(t *testing.T) {
	t.Parallel()

	fileDir := t.TempDir()
	envDir := t.TempDir()
	path := filepath.Join(t.TempDir(), "settings.yaml")

	cfg := Default()
	cfg.ImagesDirectory = fileDir
	cfg.ListenPort = 9000
	cfg.LogLevel = "debug"
	require.NoError(t, Save(path, cfg))

	env := envOf(map[string]string{
		"SWUPDATE_IMAGES_DIRECTORY": envDir,
		"SWUPDATE_LISTEN_PORT":      "9100",
		"SWUPDATE_CATALOG_TTL":      "1m",
		"SWUPDATE_CATALOG_MODE":     "ttl",
	})

	port := 9200
	overrides := &Overrides{ListenPort: &port}

	got, err := Build(path, env, overrides)
	require.NoError(t, err)
	require.Equal(t, envDir, got.ImagesDirectory)
	require.Equal(t, 9200, got.ListenPort)
	require.Equal(t, time.Minute, got.CatalogTTL)
	require.Equal(t, ModeTTL, got.CatalogMode)
	require.Equal(t, "debug", got.LogLevel)
}

// TestApplyEnv_BadValues ensures unparsable numbers and durations are reported.
func TestApplyEnv_BadValues(t *testing.T) {
	t.Parallel()

	require.Error(t, ApplyEnv(Default(), envOf(map[string]string{"SWUPDATE_LISTEN_PORT": "http"})))
	require.Error(t, ApplyEnv(Default(), envOf(map[string]string{"SWUPDATE_CATALOG_TTL": "soon"})))
	require.Error(t, ApplyEnv(nil, envOf(nil)))
}

// TestOverrides_NilIsNoop verifies a nil Overrides leaves the config untouched.
func TestOverrides_NilIsNoop(t *testing.T) {
	t.Parallel()

	cfg := Default()

	var o *Overrides
	o.Apply(cfg)

	require.Equal(t, Default(), cfg)
}
