package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oshokin/swupdate-httpd/internal/service/fetcher"
	"github.com/oshokin/swupdate-httpd/internal/version"
)

var (
	// options collects the fetcher inputs from flags.
	options = &fetcher.Options{
		TargetMode: fetcher.DefaultFileMode,
	}

	// rootCmd represents the base command for checking and installing updates.
	rootCmd = &cobra.Command{
		Use:   "swupdate-fetch <server-url>",
		Short: "Ask an swupdate-httpd server for an update and install it.",
		Long: `Queries the update server with the image, device and current version.

When the server offers an image and --target is set, the processes listed in
--stop are terminated and the target file is atomically replaced with the
download. Without --target the offered image URL is only printed.`,
		Example: "  swupdate-fetch http://updates.local:8080 --image app --device dev --current_version 1.0 --target /opt/app/app.bin",
		Args:    cobra.ExactArgs(1),
		PersistentPreRun: func(*cobra.Command, []string) {
			// A missing .env file is not an error.
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options.ServerURL = args[0]

			result, err := fetcher.Run(ctx, options)
			if err != nil {
				return err
			}

			switch {
			case result.Installed:
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "installed", result.ImageURL)
			case result.UpdateAvailable:
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "available", result.ImageURL)
			default:
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "up to date")
			}

			return nil
		},
	}
)

// Execute runs the swupdate-fetch CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version.Full())); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&options.Image, "image", "", "image identifier")
	flags.StringVar(&options.Device, "device", "", "device type")
	flags.StringVar(&options.CurrentVersion, "current_version", "", "version installed on this device")
	flags.StringVarP(&options.TargetPath, "target", "t", "", "file to replace with the downloaded image")
	flags.StringSliceVar(&options.StopProcesses, "stop", nil, "executable names to terminate before installing")
	flags.DurationVar(&options.Timeout, "timeout", fetcher.DefaultTimeout, "time limit for the query and the download")

	for _, name := range []string{"image", "device", "current_version"} {
		_ = rootCmd.MarkFlagRequired(name)
	}
}
