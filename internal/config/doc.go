// Package config defines the swupdate-httpd settings and loads them from a
// YAML file, SWUPDATE_* environment variables and command-line overrides, in
// that order of increasing precedence.
package config
