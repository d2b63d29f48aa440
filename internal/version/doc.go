// Package version exposes build metadata injected with -ldflags, for example
//
//	-X github.com/oshokin/swupdate-httpd/internal/version.Version=1.2.0
package version
