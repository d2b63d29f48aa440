package update

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/swupdate-httpd/internal/domain/resolver"
	"github.com/oshokin/swupdate-httpd/internal/logger"
)

const (
	// ImagesPath is where image files are served from.
	ImagesPath = "/images/"

	// ParamImage is the image identifier query parameter.
	ParamImage = "image"
	// ParamDevice is the device type query parameter.
	ParamDevice = "device"
	// ParamCurrentVersion is the installed version query parameter.
	ParamCurrentVersion = "current_version"

	// ErrorHeader carries a short reason on 500 responses.
	ErrorHeader = "X-Error"

	conflictReason = "More than one matching update image."
	scanReason     = "Unable to read images directory."
)

// Service abstracts the business operations the transport depends on.
type Service interface {
	Resolve(ctx context.Context, q resolver.Query) (resolver.Resolution, error)
	Reload(ctx context.Context) error
}

// HealthChecker renders readiness for /healthz.
type HealthChecker interface {
	CheckJSON(ctx context.Context) ([]byte, bool, error)
}

// Handler routes update server requests.
type Handler struct {
	// service resolves queries against the catalog.
	service Service
	// health answers /healthz; nil disables the endpoint.
	health HealthChecker
	// router holds the registered routes and answers 405 for wrong methods.
	router *mux.Router
}

// NewHandler wires service into an http.Handler serving images from imagesDir.
func NewHandler(service Service, imagesDir string, health HealthChecker) *Handler {
	h := &Handler{
		service: service,
		health:  health,
		router:  mux.NewRouter(),
	}

	h.router.HandleFunc("/", h.update).Methods(http.MethodGet, http.MethodHead)
	h.router.PathPrefix(ImagesPath).
		Handler(http.StripPrefix(ImagesPath, http.FileServer(http.Dir(imagesDir)))).
		Methods(http.MethodGet, http.MethodHead)
	h.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	h.router.HandleFunc("/-/reload", h.reload).Methods(http.MethodPost)

	if health != nil {
		h.router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	}

	return h
}

// ServeHTTP logs and dispatches every request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	h.router.ServeHTTP(rec, r)

	logger.DebugKV(r.Context(), "HTTP request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"remote", r.RemoteAddr,
		"duration", time.Since(started))
}

// update answers an update query.
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	query := QueryFromRequest(r)

	resolution, err := h.service.Resolve(r.Context(), query)
	if err != nil {
		w.Header().Set(ErrorHeader, scanReason)
		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	switch resolution.Outcome {
	case resolver.MalformedRequest:
		w.WriteHeader(http.StatusBadRequest)
	case resolver.NoUpdate:
		w.WriteHeader(http.StatusNotFound)
	case resolver.UpdateAvailable:
		w.Header().Set("Location", ImageLocation(resolution.Entry.File))
		w.WriteHeader(http.StatusFound)
	case resolver.Conflict:
		w.Header().Set(ErrorHeader, conflictReason)
		w.WriteHeader(http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// reload asks the service to rescan the images directory.
func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reload(r.Context()); err != nil {
		logger.ErrorKV(r.Context(), "Catalog reload failed", "error", err)
		w.Header().Set(ErrorHeader, scanReason)
		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// healthz reports readiness as protobuf JSON.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	data, serving, err := h.health.CheckJSON(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if !serving {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_, _ = w.Write(data)
}

// QueryFromRequest extracts the update query. Absent parameters become empty
// strings, which the resolver reports as MalformedRequest.
func QueryFromRequest(r *http.Request) resolver.Query {
	values := r.URL.Query()

	return resolver.Query{
		ImageID:        values.Get(ParamImage),
		DeviceType:     values.Get(ParamDevice),
		CurrentVersion: values.Get(ParamCurrentVersion),
	}
}

// ImageLocation returns the path under ImagesPath for file, escaped for use in a URL.
func ImageLocation(file string) string {
	return path.Join(ImagesPath, url.PathEscape(file))
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter

	// status is the code passed to WriteHeader.
	status int
}

// WriteHeader records code before forwarding it.
func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
