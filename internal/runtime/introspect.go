package runtime

import (
	"net/http"
	"strings"

	jsoncodec "github.com/drblury/portalflow/internal/runtime/jsoncodec"
)

// StartIntrospectionServer mounts the portal introspection API when enabled
// in the configuration. The actual HTTP servers are started by Start.
func (h *Host) StartIntrospectionServer() {
	if !h.Conf.IntrospectionEnabled {
		return
	}

	port := h.Conf.IntrospectionPort
	if port == 0 {
		port = 8081
	}

	h.RegisterHTTPHandler(port, "/api/portal/endpoints", http.HandlerFunc(h.handleGetEndpoints))
	h.RegisterHTTPHandler(port, "/api/portal/types", http.HandlerFunc(h.handleGetTypes))
}

func (h *Host) handleGetEndpoints(w http.ResponseWriter, r *http.Request) {
	h.endpointsMu.RLock()
	endpoints := make([]*EndpointInfo, len(h.endpoints))
	copy(endpoints, h.endpoints)
	h.endpointsMu.RUnlock()

	h.writeIntrospectionJSON(w, r, endpoints)
}

func (h *Host) handleGetTypes(w http.ResponseWriter, r *http.Request) {
	h.writeIntrospectionJSON(w, r, h.types.Names())
}

func (h *Host) writeIntrospectionJSON(w http.ResponseWriter, r *http.Request, value any) {
	w.Header().Set("Content-Type", "application/json")

	if h.Conf != nil && len(h.Conf.IntrospectionCORSAllowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		allowedOrigin := h.getAllowedCORSOrigin(origin)
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	// Handle preflight requests
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	payload, err := jsoncodec.Marshal(value)
	if err != nil {
		h.Logger.Error("Failed to encode introspection response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(payload); err != nil {
		h.Logger.Error("Failed to write introspection response", err, nil)
	}
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the appropriate
// Access-Control-Allow-Origin value.
func (h *Host) getAllowedCORSOrigin(requestOrigin string) string {
	if h.Conf == nil {
		return ""
	}
	for _, allowed := range h.Conf.IntrospectionCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
