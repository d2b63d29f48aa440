// Package fetcher is the device-side counterpart of the update server.
//
// It asks the server whether a newer image exists, follows the redirect to
// download it, and optionally installs it over a target file with an atomic
// replace after stopping processes that hold the target open.
package fetcher
