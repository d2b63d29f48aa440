package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	httpapi "github.com/oshokin/swupdate-httpd/internal/api/http/update"
	"github.com/oshokin/swupdate-httpd/internal/domain/resolver"
)

var errUnresolved = errors.New("query did not resolve to an update")

func newResolveCmd() *cobra.Command {
	var query resolver.Query

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Answer one update query against the images directory.",
		Long: `Scans the images directory and resolves a single query the way the server
would, without starting it. Prints the outcome and, when an update is
available, the image path a client would be redirected to.

Exits non-zero for malformed queries and conflicts.`,
		Example: "  swupdate-httpd resolve --images_directory ./images --image app --device dev --current_version 1.0",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := query.Validate(); err != nil {
				return err
			}

			cat, err := scanCatalog(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			return printResolution(cmd.OutOrStdout(), resolver.Resolve(cat, query))
		},
	}

	cmd.Flags().StringVar(&query.ImageID, httpapi.ParamImage, "", "image identifier")
	cmd.Flags().StringVar(&query.DeviceType, httpapi.ParamDevice, "", "device type")
	cmd.Flags().StringVar(&query.CurrentVersion, httpapi.ParamCurrentVersion, "", "version installed on the device")

	return cmd
}

func printResolution(w io.Writer, r resolver.Resolution) error {
	_, _ = fmt.Fprintln(w, r.Outcome)

	switch r.Outcome {
	case resolver.UpdateAvailable:
		_, _ = fmt.Fprintln(w, httpapi.ImageLocation(r.Entry.File))
	case resolver.Conflict:
		for _, entry := range r.Matches {
			_, _ = fmt.Fprintln(w, "  "+entry.File)
		}

		return fmt.Errorf("%w: %s", errUnresolved, r.Outcome)
	case resolver.MalformedRequest:
		return fmt.Errorf("%w: %s", errUnresolved, r.Outcome)
	case resolver.NoUpdate:
	}

	return nil
}
