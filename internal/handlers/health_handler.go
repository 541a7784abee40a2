// File: internal/handlers/health_handler.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/iyunix/go-medgemma/internal/services/scheduler"
)

const (
	serviceName    = "Med-Gemma Medical Assistant API"
	serviceVersion = "1.0.0"
)

// StatusReporter exposes a snapshot that never waits on the queue.
type StatusReporter interface {
	Status() scheduler.Status
}

type HealthHandler struct {
	status StatusReporter
}

func NewHealthHandler(status StatusReporter) *HealthHandler {
	return &HealthHandler{status: status}
}

type healthResponse struct {
	Status             string `json:"status"`
	Backend            string `json:"backend"`
	Model              string `json:"model"`
	ModelLoaded        bool   `json:"model_loaded"`
	Device             string `json:"device"`
	CUDAAvailable      bool   `json:"cuda_available"`
	GPUMemoryAllocated string `json:"gpu_memory_allocated"`
	QueueDepth         int    `json:"queue_depth"`
	GenerationActive   bool   `json:"generation_active"`
}

// Health reports model and queue state.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()
	// Memory is reported only when the backend knows the accelerator's usage.
	memory := "N/A"
	if st.AcceleratorAvailable && st.MemoryAllocatedBytes != nil {
		memory = fmt.Sprintf("%.2fGB", float64(*st.MemoryAllocatedBytes)/(1<<30))
	}
	resp := healthResponse{
		Status:             "healthy",
		Backend:            st.Backend,
		Model:              st.Model,
		ModelLoaded:        st.ModelLoaded,
		Device:             st.Device,
		CUDAAvailable:      st.AcceleratorAvailable,
		GPUMemoryAllocated: memory,
		QueueDepth:         st.QueueDepth,
		GenerationActive:   st.GenerationActive,
	}
	writeJSON(w, http.StatusOK, resp)
}

// Root identifies the service.
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": serviceName,
		"version": serviceVersion,
		"status":  "running",
	})
}
