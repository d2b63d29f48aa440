package cmd

import (
	"github.com/spf13/pflag"

	"github.com/oshokin/swupdate-httpd/internal/config"
)

const (
	flagImagesDirectory     = "images_directory"
	flagListenIP            = "listen_ip"
	flagListenPort          = "listen_port"
	flagSeparator           = "filename_fields_separator"
	flagImageIDField        = "filename_field_image_identifier"
	flagDeviceTypeField     = "filename_field_device_type"
	flagVersionField        = "filename_field_version"
	flagCatalogMode         = "catalog_mode"
	flagCatalogTTL          = "catalog_ttl"
	flagHealthListenAddress = "health_listen_address"
	flagLogLevel            = "log_level"
)

// overridesFromFlags collects the flags the user set explicitly, so that
// defaults of unset flags never shadow the file or the environment.
func overridesFromFlags(flags *pflag.FlagSet) *config.Overrides {
	return &config.Overrides{
		ImagesDirectory:              changed(flags, flagImagesDirectory, flags.GetString),
		ListenIP:                     changed(flags, flagListenIP, flags.GetString),
		ListenPort:                   changed(flags, flagListenPort, flags.GetInt),
		FilenameFieldsSeparator:      changed(flags, flagSeparator, flags.GetString),
		FilenameFieldImageIdentifier: changed(flags, flagImageIDField, flags.GetInt),
		FilenameFieldDeviceType:      changed(flags, flagDeviceTypeField, flags.GetInt),
		FilenameFieldVersion:         changed(flags, flagVersionField, flags.GetInt),
		CatalogMode:                  changed(flags, flagCatalogMode, flags.GetString),
		CatalogTTL:                   changed(flags, flagCatalogTTL, flags.GetDuration),
		HealthListenAddress:          changed(flags, flagHealthListenAddress, flags.GetString),
		LogLevel:                     changed(flags, flagLogLevel, flags.GetString),
	}
}

func changed[T any](flags *pflag.FlagSet, name string, get func(string) (T, error)) *T {
	if flags.Lookup(name) == nil || !flags.Changed(name) {
		return nil
	}

	v, err := get(name)
	if err != nil {
		return nil
	}

	return &v
}
