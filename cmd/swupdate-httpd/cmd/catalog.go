package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/oshokin/swupdate-httpd/internal/config"
	"github.com/oshokin/swupdate-httpd/internal/domain/catalog"
	"github.com/oshokin/swupdate-httpd/internal/logger"
	"github.com/oshokin/swupdate-httpd/internal/repository/images"
)

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the images the server would offer.",
		Long: `Scans the images directory once with the configured filename layout and
prints every parsed image, followed by the files that were skipped because
their names do not match the layout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := scanCatalog(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			renderCatalog(cmd.OutOrStdout(), cat)

			return nil
		},
	}
}

// scanCatalog builds the configuration from the file, the environment and
// the flags of cmd, and scans the images directory once.
func scanCatalog(ctx context.Context, cmd *cobra.Command) (*catalog.Catalog, error) {
	settings, err := config.Build(configPath, os.LookupEnv, overridesFromFlags(cmd.Flags()))
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if err := logger.SetLevelName(settings.LogLevel); err != nil {
		return nil, err
	}

	cat, err := images.NewDirectoryScanner(settings.ImagesDirectory, settings.Layout()).Scan(ctx)
	if err != nil {
		return nil, err
	}

	return cat, nil
}

func renderCatalog(w io.Writer, cat *catalog.Catalog) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"IMAGE", "DEVICE", "VERSION", "FILE"})

	for _, entry := range cat.Entries() {
		t.AppendRow(table.Row{entry.ImageID, entry.DeviceType, entry.Version, entry.File})
	}

	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()

	skipped := cat.Skipped()
	if len(skipped) == 0 {
		return
	}

	_, _ = fmt.Fprintf(w, "\nskipped %d file(s) not matching the layout:\n", len(skipped))

	for _, name := range skipped {
		_, _ = fmt.Fprintln(w, "  "+name)
	}
}
