package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "SWUPDATE_"

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overwrites cfg fields from SWUPDATE_<KEY> variables, where KEY is
// the upper-cased YAML key (for example SWUPDATE_IMAGES_DIRECTORY).
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	strs := map[string]*string{
		"IMAGES_DIRECTORY":          &cfg.ImagesDirectory,
		"LISTEN_IP":                 &cfg.ListenIP,
		"FILENAME_FIELDS_SEPARATOR": &cfg.FilenameFieldsSeparator,
		"HEALTH_LISTEN_ADDRESS":     &cfg.HealthListenAddress,
		"LOG_LEVEL":                 &cfg.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"LISTEN_PORT":                     &cfg.ListenPort,
		"FILENAME_FIELD_IMAGE_IDENTIFIER": &cfg.FilenameFieldImageIdentifier,
		"FILENAME_FIELD_DEVICE_TYPE":      &cfg.FilenameFieldDeviceType,
		"FILENAME_FIELD_VERSION":          &cfg.FilenameFieldVersion,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
		}

		*dst = n
	}

	durations := map[string]*time.Duration{
		"CATALOG_TTL":      &cfg.CatalogTTL,
		"SHUTDOWN_TIMEOUT": &cfg.ShutdownTimeout,
	}
	for key, dst := range durations {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}

		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
		}

		*dst = d
	}

	if v, ok := lookup(EnvPrefix + "CATALOG_MODE"); ok {
		cfg.CatalogMode = CatalogMode(v)
	}

	return nil
}

// Overrides carries values given explicitly on the command line.
// Nil fields leave the loaded value untouched.
type Overrides struct {
	ImagesDirectory              *string
	ListenIP                     *string
	ListenPort                   *int
	FilenameFieldsSeparator      *string
	FilenameFieldImageIdentifier *int
	FilenameFieldDeviceType      *int
	FilenameFieldVersion         *int
	CatalogMode                  *string
	CatalogTTL                   *time.Duration
	HealthListenAddress          *string
	LogLevel                     *string
}

// Apply copies every non-nil override into cfg. A nil receiver is a no-op.
func (o *Overrides) Apply(cfg *Config) {
	if o == nil || cfg == nil {
		return
	}

	setIf(&cfg.ImagesDirectory, o.ImagesDirectory)
	setIf(&cfg.ListenIP, o.ListenIP)
	setIf(&cfg.ListenPort, o.ListenPort)
	setIf(&cfg.FilenameFieldsSeparator, o.FilenameFieldsSeparator)
	setIf(&cfg.FilenameFieldImageIdentifier, o.FilenameFieldImageIdentifier)
	setIf(&cfg.FilenameFieldDeviceType, o.FilenameFieldDeviceType)
	setIf(&cfg.FilenameFieldVersion, o.FilenameFieldVersion)
	setIf(&cfg.CatalogTTL, o.CatalogTTL)
	setIf(&cfg.HealthListenAddress, o.HealthListenAddress)
	setIf(&cfg.LogLevel, o.LogLevel)

	if o.CatalogMode != nil {
		cfg.CatalogMode = CatalogMode(*o.CatalogMode)
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
