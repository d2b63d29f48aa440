// Package health exposes catalog readiness over the standard gRPC health
// protocol (grpc.health.v1) and as protobuf JSON for plain HTTP probes.
//
// A Server periodically runs a probe, typically a scan of the images
// directory, and flips between SERVING and NOT_SERVING accordingly.
package health
