package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/swupdate-httpd/internal/domain/catalog"
	"github.com/oshokin/swupdate-httpd/internal/domain/resolver"
)

func newTestFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(flagImagesDirectory, "", "")
	flags.Int(flagListenPort, 8080, "")
	flags.String(flagCatalogMode, "per-request", "")
	flags.Duration(flagCatalogTTL, time.Second, "")

	return flags
}

func TestOverridesFromFlags_OnlyChanged(t *testing.T) {
	t.Parallel()

	flags := newTestFlagSet()
	require.NoError(t, flags.Parse([]string{"--images_directory=/srv/images", "--catalog_ttl=30s"}))

	o := overridesFromFlags(flags)

	require.NotNil(t, o.ImagesDirectory)
	require.Equal(t, "/srv/images", *o.ImagesDirectory)
	require.NotNil(t, o.CatalogTTL)
	require.Equal(t, 30*time.Second, *o.CatalogTTL)

	// Defaults of unset flags must not shadow file or environment values.
	require.Nil(t, o.ListenPort)
	require.Nil(t, o.CatalogMode)
	// Flags the set does not define.
	require.Nil(t, o.LogLevel)
	require.Nil(t, o.FilenameFieldVersion)
}

func TestRenderCatalog(t *testing.T) {
	t.Parallel()

	cat := catalog.Build([]string{"app_dev_2.0.swu", "README", "tool_board_7.bin"}, catalog.DefaultLayout())

	var out bytes.Buffer
	renderCatalog(&out, cat)

	text := out.String()
	require.Contains(t, text, "IMAGE")
	require.Contains(t, text, "app_dev_2.0.swu")
	require.Contains(t, text, "tool_board_7.bin")
	require.Contains(t, text, "skipped 1 file(s)")
	require.Contains(t, text, "README")
}

func TestPrintResolution(t *testing.T) {
	t.Parallel()

	cat := catalog.Build([]string{"app_dev_2.0.swu", "dup_dev_1.bin", "dup_dev_2.bin"}, catalog.DefaultLayout())

	tests := []struct {
		name    string
		query   resolver.Query
		want    []string
		wantErr bool
	}{
		{
			name:  "update available",
			query: resolver.Query{ImageID: "app", DeviceType: "dev", CurrentVersion: "1.0"},
			want:  []string{"update_available", "/images/app_dev_2.0.swu"},
		},
		{
			name:  "up to date",
			query: resolver.Query{ImageID: "app", DeviceType: "dev", CurrentVersion: "2.0"},
			want:  []string{"no_update"},
		},
		{
			name:    "conflict",
			query:   resolver.Query{ImageID: "dup", DeviceType: "dev", CurrentVersion: "0"},
			want:    []string{"conflict", "dup_dev_1.bin", "dup_dev_2.bin"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			err := printResolution(&out, resolver.Resolve(cat, tt.query))

			if tt.wantErr {
				require.ErrorIs(t, err, errUnresolved)
			} else {
				require.NoError(t, err)
			}

			for _, s := range tt.want {
				require.Contains(t, out.String(), s)
			}
		})
	}
}
