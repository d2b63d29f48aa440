package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oshokin/swupdate-httpd/internal/config"
	"github.com/oshokin/swupdate-httpd/internal/domain/catalog"
	"github.com/oshokin/swupdate-httpd/internal/service/server"
	"github.com/oshokin/swupdate-httpd/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command for running the update server.
	rootCmd = &cobra.Command{
		Use:   "swupdate-httpd",
		Short: "Serve update images to SWUpdate clients over HTTP.",
		Long: `Starts the HTTP server answering SWUpdate update queries.

Clients ask GET /?image=<id>&device=<type>&current_version=<version>.
Images are files in the images directory named <image>_<device>_<version>.<ext>;
the separator and the zero-based field positions are configurable.

  302  an image with a different version exists, Location is /images/<file>
  404  no image matches, or the client already runs that version
  400  a query parameter is missing or empty
  500  more than one image matches the image and device

Settings are read from the YAML file, then SWUPDATE_* environment variables
(a .env file in the working directory is honoured), then flags.`,
		Args: cobra.NoArgs,
		PersistentPreRun: func(*cobra.Command, []string) {
			// A missing .env file is not an error.
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &server.Options{
				ConfigPath: configPath,
				Lookup:     os.LookupEnv,
				Overrides:  overridesFromFlags(cmd.Flags()),
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the swupdate-httpd CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version.Full())); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	defaults := config.Default()

	// Flags shared by the server and the offline subcommands.
	shared := rootCmd.PersistentFlags()
	shared.StringVarP(&configPath, "config", "c", "",
		"path to configuration file (default "+config.DefaultConfigFilename+" when present)")
	shared.String(flagImagesDirectory, "", "directory holding the update images")
	shared.String(flagSeparator, catalog.DefaultSeparator, "separator between filename fields")
	shared.Int(flagImageIDField, catalog.DefaultImageIDField, "zero-based filename field of the image identifier")
	shared.Int(flagDeviceTypeField, catalog.DefaultDeviceTypeField, "zero-based filename field of the device type")
	shared.Int(flagVersionField, catalog.DefaultVersionField, "zero-based filename field of the version")
	shared.String(flagLogLevel, defaults.LogLevel, "log level: debug, info, warn or error")

	// Server-only flags.
	local := rootCmd.Flags()
	local.String(flagListenIP, defaults.ListenIP, "IP address to listen on")
	local.Int(flagListenPort, defaults.ListenPort, "TCP port to listen on")
	local.String(flagCatalogMode, string(defaults.CatalogMode), "when to rescan the images directory: per-request, ttl or static")
	local.Duration(flagCatalogTTL, defaults.CatalogTTL, "how long a directory scan is reused in ttl mode")
	local.String(flagHealthListenAddress, "", "address of the gRPC health service, disabled when empty")

	rootCmd.AddCommand(newCatalogCmd(), newResolveCmd())
}
