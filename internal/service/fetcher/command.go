package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/swupdate-httpd/internal/logger"
)

const (
	// DefaultTimeout bounds the query and the download together.
	DefaultTimeout = 5 * time.Minute

	// DefaultFileMode is applied to installed images.
	DefaultFileMode os.FileMode = 0o644
)

var (
	errServerURLRequired = errors.New("server url must be provided")

	// ErrMalformedRequest is returned when the server answers 400.
	ErrMalformedRequest = errors.New("server rejected the query as malformed")
	// ErrServerConflict is returned when the server answers 500, e.g. for ambiguous images.
	ErrServerConflict = errors.New("server failed to resolve the update")
	// ErrUnexpectedStatus is returned for any other unexpected status.
	ErrUnexpectedStatus = errors.New("unexpected http status")
	// ErrMissingLocation is returned for a redirect without a Location header.
	ErrMissingLocation = errors.New("redirect without location")
)

// Options are inputs accepted by the fetcher entry point.
type Options struct {
	// ServerURL is the base URL of the update server.
	ServerURL string
	// Image is the image identifier.
	Image string
	// Device is the device type.
	Device string
	// CurrentVersion is the installed version.
	CurrentVersion string
	// TargetPath is replaced by the downloaded image; empty only checks.
	TargetPath string
	// TargetMode is the mode of the installed file.
	TargetMode os.FileMode
	// StopProcesses lists executable names to kill before installing.
	StopProcesses []string
	// Timeout bounds the whole run.
	Timeout time.Duration
	// HTTPClient overrides the default client; redirects are never followed.
	HTTPClient *http.Client
}

// Result describes what the run found and did.
type Result struct {
	// UpdateAvailable is true when the server offered an image.
	UpdateAvailable bool
	// ImageURL is the absolute URL of the offered image.
	ImageURL string
	// Installed is true when the image replaced TargetPath.
	Installed bool
}

// Run queries the server and installs the offered image when TargetPath is set.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "swupdate-fetch")

	if opts.ServerURL == "" {
		return nil, errServerURLRequired
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := noRedirectClient(opts.HTTPClient)

	imageURL, err := query(ctx, client, opts)
	if err != nil {
		return nil, err
	}

	if imageURL == "" {
		logger.InfoKV(ctx, "No update available", "image", opts.Image, "version", opts.CurrentVersion)
		return &Result{}, nil
	}

	result := &Result{
		UpdateAvailable: true,
		ImageURL:        imageURL,
	}

	logger.InfoKV(ctx, "Update available", "url", imageURL)

	if opts.TargetPath == "" {
		return result, nil
	}

	if err := install(ctx, client, imageURL, opts); err != nil {
		return result, err
	}

	result.Installed = true

	logger.InfoKV(ctx, "Image installed", "target", opts.TargetPath)

	return result, nil
}

// query asks the server for an update and returns the absolute image URL, or
// an empty string when no update is available.
func query(ctx context.Context, client *http.Client, opts *Options) (string, error) {
	base, err := url.Parse(opts.ServerURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	// Keep any path prefix, e.g. a server published under /swupdate/.
	endpoint := base.JoinPath("/")
	endpoint.RawQuery = url.Values{
		"image":           {opts.Image},
		"device":          {opts.Device},
		"current_version": {opts.CurrentVersion},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), http.NoBody)
	if err != nil {
		return "", err
	}

	response, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("query update server: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()

	switch response.StatusCode {
	case http.StatusFound:
		location, err := response.Location()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrMissingLocation, err)
		}

		return location.String(), nil
	case http.StatusNotFound:
		return "", nil
	case http.StatusBadRequest:
		return "", ErrMalformedRequest
	case http.StatusInternalServerError:
		return "", fmt.Errorf("%w: %s", ErrServerConflict, response.Header.Get("X-Error"))
	default:
		return "", fmt.Errorf("%s: %w", response.Status, ErrUnexpectedStatus)
	}
}

// install downloads imageURL and atomically replaces opts.TargetPath with it.
func install(ctx context.Context, client *http.Client, imageURL string, opts *Options) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, http.NoBody)
	if err != nil {
		return err
	}

	response, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download image: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s, %s: %w", imageURL, response.Status, ErrUnexpectedStatus)
	}

	if len(opts.StopProcesses) > 0 {
		logger.InfoKV(ctx, "Stopping processes before install", "processes", opts.StopProcesses)

		if err := terminateProcesses(opts.StopProcesses); err != nil {
			return fmt.Errorf("stop processes: %w", err)
		}
	}

	target := filepath.Clean(opts.TargetPath)

	// go-update renames the current file away first, so it has to exist.
	if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
		file, err := os.Create(target)
		if err != nil {
			return err
		}

		_ = file.Close()
	}

	mode := opts.TargetMode
	if mode == 0 {
		mode = DefaultFileMode
	}

	if err := goupdate.Apply(response.Body, goupdate.Options{
		TargetPath: target,
		TargetMode: mode,
	}); err != nil {
		return fmt.Errorf("apply image: %w", err)
	}

	oldFileName := target + ".old"
	if _, err := os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	return nil
}

// noRedirectClient copies base (or http.DefaultClient) and disables redirects
// so the 302 answer can be inspected.
func noRedirectClient(base *http.Client) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}

	client := *base
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &client
}
