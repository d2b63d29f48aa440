// Package update implements the HTTP surface of the update server.
//
// GET / answers an update query with a redirect to the image under /images,
// or with 400, 404 or 500. The package also mounts the static image files,
// Prometheus metrics, a health probe and a reload endpoint.
package update
