package integration

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/swupdate-httpd/internal/api/grpc/health"
	"github.com/oshokin/swupdate-httpd/internal/config"
	"github.com/oshokin/swupdate-httpd/internal/service/fetcher"
	"github.com/oshokin/swupdate-httpd/internal/service/server"
)

// startServer writes a settings file for imagesDir, starts the real server on
// a free loopback port and returns its base URL. The server is stopped, and
// its exit error checked, during test cleanup.
func startServer(t *testing.T, imagesDir string, tweak func(*config.Config)) string {
	t.Helper()

	cfg := config.Default()
	cfg.ImagesDirectory = imagesDir
	cfg.ListenIP = "127.0.0.1"
	cfg.ListenPort = 0
	cfg.LogLevel = "error"
	cfg.ShutdownTimeout = 2 * time.Second

	if tweak != nil {
		tweak(cfg)
	}

	cfgPath := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, config.Save(cfgPath, cfg))

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)

	go func() {
		done <- server.Run(ctx, &server.Options{
			ConfigPath: cfgPath,
			Ready:      ready,
		})
	}()

	var addr string

	select {
	case addr = <-ready:
	case err := <-done:
		cancel()
		t.Fatalf("server exited before listening: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not start listening")
	}

	t.Cleanup(func() {
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	return "http://" + addr
}

// writeImages creates files with their own names as content.
func writeImages(t *testing.T, dir string, names ...string) {
	t.Helper()

	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	}
}

// freeAddress reserves a loopback port and releases it for the caller.
func freeAddress(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

func noRedirect() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, client *http.Client, rawURL string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, rawURL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

// TestServer_DocumentedExchanges runs the request/response pairs clients rely on.
func TestServer_DocumentedExchanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeImages(t, dir,
		"app_dev_2.0.swu",
		"tool_board_1.bin",
		"dup_dev_1.bin",
		"dup_dev_2.bin",
		"notes.txt",
	)

	base := startServer(t, dir, nil)
	client := noRedirect()

	tests := []struct {
		name     string
		query    string
		status   int
		location string
		xError   string
	}{
		{
			name:     "update available",
			query:    "/?image=app&device=dev&current_version=1.0",
			status:   http.StatusFound,
			location: "/images/app_dev_2.0.swu",
		},
		{
			name:   "already current",
			query:  "/?image=app&device=dev&current_version=2.0",
			status: http.StatusNotFound,
		},
		{
			name:   "unknown image",
			query:  "/?image=other&device=dev&current_version=1.0",
			status: http.StatusNotFound,
		},
		{
			name:   "missing version",
			query:  "/?image=app&device=dev",
			status: http.StatusBadRequest,
		},
		{
			name:   "empty device",
			query:  "/?image=app&device=&current_version=1.0",
			status: http.StatusBadRequest,
		},
		{
			name:   "conflict",
			query:  "/?image=dup&device=dev&current_version=0",
			status: http.StatusInternalServerError,
			xError: "More than one matching update image.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, _ := get(t, client, base+tt.query)
			require.Equal(t, tt.status, resp.StatusCode)
			require.Equal(t, tt.location, resp.Header.Get("Location"))
			require.Equal(t, tt.xError, resp.Header.Get("X-Error"))
		})
	}

	t.Run("redirect target serves the image", func(t *testing.T) {
		t.Parallel()

		resp, body := get(t, client, base+"/images/app_dev_2.0.swu")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "app_dev_2.0.swu", body)
	})
}

// TestServer_PerRequestSeesDirectoryChanges checks that the default mode
// answers from the directory as it is at request time.
func TestServer_PerRequestSeesDirectoryChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := startServer(t, dir, nil)
	client := noRedirect()

	query := base + "/?image=app&device=dev&current_version=1.0"

	resp, _ := get(t, client, query)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	writeImages(t, dir, "app_dev_1.1.swu")

	resp, _ = get(t, client, query)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/images/app_dev_1.1.swu", resp.Header.Get("Location"))

	writeImages(t, dir, "app_dev_1.2.swu")

	resp, _ = get(t, client, query)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	require.NoError(t, os.Remove(filepath.Join(dir, "app_dev_1.1.swu")))
	require.NoError(t, os.Remove(filepath.Join(dir, "app_dev_1.2.swu")))

	resp, _ = get(t, client, query)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestServer_StaticModeReload checks that a static catalog changes only on reload.
func TestServer_StaticModeReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeImages(t, dir, "app_dev_1.0.swu")

	base := startServer(t, dir, func(cfg *config.Config) {
		cfg.CatalogMode = config.ModeStatic
	})
	client := noRedirect()

	query := base + "/?image=app&device=dev&current_version=1.0"

	resp, _ := get(t, client, query)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, os.Rename(filepath.Join(dir, "app_dev_1.0.swu"), filepath.Join(dir, "app_dev_2.0.swu")))

	resp, _ = get(t, client, query)
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "static catalog must not rescan on its own")

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, base+"/-/reload", http.NoBody)
	require.NoError(t, err)

	reload, err := client.Do(req)
	require.NoError(t, err)
	require.NoError(t, reload.Body.Close())
	require.Equal(t, http.StatusNoContent, reload.StatusCode)

	resp, _ = get(t, client, query)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/images/app_dev_2.0.swu", resp.Header.Get("Location"))
}

// TestServer_MetricsAndHealthz checks the operational endpoints.
func TestServer_MetricsAndHealthz(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeImages(t, dir, "app_dev_2.0.swu")

	base := startServer(t, dir, nil)
	client := noRedirect()

	get(t, client, base+"/?image=app&device=dev&current_version=1.0")

	resp, body := get(t, client, base+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "swupdate_resolver_resolutions_total")

	require.Eventually(t, func() bool {
		resp, body := get(t, client, base+"/healthz")
		return resp.StatusCode == http.StatusOK && strings.Contains(body, "SERVING")
	}, 5*time.Second, 50*time.Millisecond)
}

// TestServer_GRPCHealth checks the grpc.health.v1 service on its own listener.
func TestServer_GRPCHealth(t *testing.T) {
	t.Parallel()

	healthAddr := freeAddress(t)

	startServer(t, t.TempDir(), func(cfg *config.Config) {
		cfg.HealthListenAddress = healthAddr
	})

	conn, err := grpc.NewClient(healthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
	})

	client := healthpb.NewHealthClient(conn)

	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()

		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: health.ServiceName})

		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 50*time.Millisecond)
}

// TestFetcher_InstallsOfferedImage runs the companion client against the real server.
func TestFetcher_InstallsOfferedImage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeImages(t, dir, "app_dev_2.0.swu")

	base := startServer(t, dir, nil)
	target := filepath.Join(t.TempDir(), "app.swu")

	result, err := fetcher.Run(t.Context(), &fetcher.Options{
		ServerURL:      base,
		Image:          "app",
		Device:         "dev",
		CurrentVersion: "1.0",
		TargetPath:     target,
		Timeout:        5 * time.Second,
	})
	require.NoError(t, err)
	require.True(t, result.UpdateAvailable)
	require.True(t, result.Installed)
	require.Equal(t, base+"/images/app_dev_2.0.swu", result.ImageURL)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "app_dev_2.0.swu", string(data))

	// Once installed, the same device reports the new version and is current.
	result, err = fetcher.Run(t.Context(), &fetcher.Options{
		ServerURL:      base,
		Image:          "app",
		Device:         "dev",
		CurrentVersion: "2.0",
	})
	require.NoError(t, err)
	require.False(t, result.UpdateAvailable)

	_, err = fetcher.Run(t.Context(), &fetcher.Options{
		ServerURL: base,
		Image:     "app",
		Device:    "dev",
	})
	require.ErrorIs(t, err, fetcher.ErrMalformedRequest)
}
