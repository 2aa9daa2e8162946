package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/config"
	"github.com/ekaya-inc/ekaya-rx/pkg/logging"
)

// APITestMessage is the liveness message served on /api/test.
const APITestMessage = "Backend API is running successfully!"

const storagePingTimeout = 2 * time.Second

// Pinger reports storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
	Engine() string
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Error   string `json:"error,omitempty"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Service       string `json:"service"`
	GoVersion     string `json:"go_version"`
	Hostname      string `json:"hostname"`
	Environment   string `json:"environment"`
	StorageEngine string `json:"storage_engine"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	store  Pinger
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. A nil store skips the storage probe.
func NewHealthHandler(cfg *config.Config, store Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, store: store, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
	mux.HandleFunc("GET /api/test", h.APITest)
}

// Health handles GET /health requests.
// Returns 503 when storage does not answer a ping.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Storage: "unchecked"}, h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storagePingTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Storage health check failed", zap.String("error", logging.SanitizeError(err)))
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "degraded",
			Storage: "unreachable",
			Error:   "storage ping failed",
		}, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Storage: "ok"}, h.logger)
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-rx",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}
	if h.store != nil {
		response.StorageEngine = h.store.Engine()
	}

	writeJSON(w, http.StatusOK, response, h.logger)
}

// APITest handles GET /api/test, the front end's connectivity probe.
func (h *HealthHandler) APITest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: APITestMessage}, h.logger)
}
