package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/oshokin/swupdate-httpd/internal/api/grpc/health"
	httpapi "github.com/oshokin/swupdate-httpd/internal/api/http/update"
	"github.com/oshokin/swupdate-httpd/internal/config"
	"github.com/oshokin/swupdate-httpd/internal/logger"
	"github.com/oshokin/swupdate-httpd/internal/repository/images"
)

// Options controls the swupdate-httpd process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Lookup reads environment variables; nil skips the environment.
	Lookup config.LookupFunc
	// Overrides carries values set on the command line.
	Overrides *config.Overrides
	// Ready, when set, receives the bound HTTP address once the server listens.
	Ready chan<- string
}

// readHeaderTimeout bounds slow clients sending headers.
const readHeaderTimeout = 10 * time.Second

// Run starts the HTTP server (and the gRPC health server when configured) and
// blocks until ctx is canceled or a listener fails.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "swupdate-httpd")

	settings, err := config.Build(opts.ConfigPath, opts.Lookup, opts.Overrides)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err := logger.SetLevelName(settings.LogLevel); err != nil {
		return err
	}

	scanner := images.NewDirectoryScanner(settings.ImagesDirectory, settings.Layout())

	provider, err := images.NewProvider(ctx, settings.CatalogMode, scanner, settings.CatalogTTL)
	if err != nil {
		return fmt.Errorf("initialise catalog: %w", err)
	}

	svc, err := newService(provider)
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	healthServer := health.NewServer(scanner.Check)

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", settings.ListenAddress())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", settings.ListenAddress(), err)
	}

	httpServer := &http.Server{
		Handler:           httpapi.NewHandler(svc, settings.ImagesDirectory, healthServer),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.InfoKV(ctx, "Update server listening",
		"listen_address", lis.Addr().String(),
		"images_directory", settings.ImagesDirectory,
		"catalog_mode", settings.CatalogMode,
		"separator", settings.FilenameFieldsSeparator)

	var healthListener net.Listener

	if settings.HealthListenAddress != "" {
		healthListener, err = lc.Listen(ctx, "tcp", settings.HealthListenAddress)
		if err != nil {
			_ = lis.Close()

			return fmt.Errorf("listen on %s: %w", settings.HealthListenAddress, err)
		}

		logger.InfoKV(ctx, "Health server listening", "listen_address", healthListener.Addr().String())
	}

	if opts.Ready != nil {
		opts.Ready <- lis.Addr().String()
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settings.ShutdownTimeout)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		healthServer.Watch(groupCtx, health.DefaultProbeInterval)
		return nil
	})

	group.Go(func() error {
		watchReloadSignal(groupCtx, svc)
		return nil
	})

	if healthListener != nil {
		serveHealth(ctx, groupCtx, group, healthListener, healthServer)
	}

	if err := group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Update server stopped")

	return nil
}

// serveHealth serves grpc.health.v1 on lis until groupCtx is done.
func serveHealth(
	ctx, groupCtx context.Context,
	group *errgroup.Group,
	lis net.Listener,
	healthServer *health.Server,
) {
	grpcServer := grpc.NewServer()
	healthServer.Register(grpcServer)

	group.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down gRPC health server")
		healthServer.Shutdown()
		grpcServer.GracefulStop()

		return nil
	})
}

// watchReloadSignal reloads the catalog on SIGHUP until ctx is done.
func watchReloadSignal(ctx context.Context, svc *service) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info(ctx, "SIGHUP received, reloading catalog")

			if err := svc.Reload(ctx); err != nil {
				logger.ErrorKV(ctx, "Catalog reload failed", "error", err)
			}
		}
	}
}
