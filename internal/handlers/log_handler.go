// File: internal/handlers/log_handler.go
package handlers

import (
	"net/http"
	"strings"
)

const maxClientLogBytes = 16 << 10

// FrontendLogPayload defines the structure for logs coming from the browser.
type FrontendLogPayload struct {
	Level   string `json:"level"`             // e.g., "info", "error", "warn"
	Message string `json:"message"`           // The main log message
	Context any    `json:"context,omitempty"` // Optional extra data (e.g., stack trace)
}

type LogHandler struct {
	logger Logger
}

func NewLogHandler(logger Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

// LogFrontendEvent forwards a browser log entry to the server log.
func (h *LogHandler) LogFrontendEvent(w http.ResponseWriter, r *http.Request) {
	var payload FrontendLogPayload
	if err := decodeJSON(w, r, maxClientLogBytes, &payload); err != nil {
		writeAPIError(w, classifyError(err, ""))
		return
	}

	kv := []interface{}{"source", "client", "message", payload.Message, "context", payload.Context}
	switch strings.ToLower(payload.Level) {
	case "error":
		h.logger.Error("CLIENT_LOG", kv...)
	case "warn", "warning":
		h.logger.Warn("CLIENT_LOG", kv...)
	case "debug":
		h.logger.Debug("CLIENT_LOG", kv...)
	default:
		h.logger.Info("CLIENT_LOG", kv...)
	}

	w.WriteHeader(http.StatusNoContent)
}
