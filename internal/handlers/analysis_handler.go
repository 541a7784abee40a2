// File: internal/handlers/analysis_handler.go
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iyunix/go-medgemma/internal/domain"
	"github.com/iyunix/go-medgemma/internal/imaging"
	"github.com/iyunix/go-medgemma/internal/middleware"
	"github.com/iyunix/go-medgemma/internal/services/prompt"
	"github.com/iyunix/go-medgemma/internal/services/scheduler"
)

// Logger interface for dependency injection
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Generator admits jobs to the shared model.
type Generator interface {
	Submit(ctx context.Context, job scheduler.Job) (*scheduler.Stream, error)
}

// MemoryReleaser drops model caches between generations.
type MemoryReleaser interface {
	ReleaseMemory(ctx context.Context) error
}

type AnalysisConfig struct {
	// MaxBodyBytes bounds JSON bodies, which may carry two base64 images.
	MaxBodyBytes int64
	// MaxUploadBytes bounds multipart DICOM uploads.
	MaxUploadBytes int64
}

// DefaultAnalysisConfig sizes body limits for images of up to maxImageBytes.
func DefaultAnalysisConfig(maxImageBytes int64) AnalysisConfig {
	base64Size := (maxImageBytes + 2) / 3 * 4
	return AnalysisConfig{
		MaxBodyBytes:   2*base64Size + 64<<10,
		MaxUploadBytes: maxImageBytes + 64<<10,
	}
}

// AnalysisHandler serves the chat and analysis endpoints.
type AnalysisHandler struct {
	builder   *prompt.Builder
	decoder   *imaging.Decoder
	generator Generator
	releaser  MemoryReleaser
	logger    Logger
	config    AnalysisConfig
	now       func() time.Time
}

func NewAnalysisHandler(
	builder *prompt.Builder,
	decoder *imaging.Decoder,
	generator Generator,
	releaser MemoryReleaser,
	logger Logger,
	config AnalysisConfig,
) *AnalysisHandler {
	return &AnalysisHandler{
		builder:   builder,
		decoder:   decoder,
		generator: generator,
		releaser:  releaser,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// Chat streams an answer to a free-text question.
func (h *AnalysisHandler) Chat(w http.ResponseWriter, r *http.Request) {
	accepted := h.now()
	var req domain.ChatRequest
	if err := decodeJSON(w, r, h.config.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err, "")
		return
	}
	p, err := h.builder.Build(&req)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.stream(w, r, accepted, p)
}

// AnalyzeXRay streams a chest x-ray analysis.
func (h *AnalysisHandler) AnalyzeXRay(w http.ResponseWriter, r *http.Request) {
	h.analyzeBase64(w, r, domain.ModalityXRay)
}

// AnalyzeMedicalImage streams the analysis of a CT/MR, fundus, dermoscopy,
// histopathology or lab image selected by image_type.
func (h *AnalysisHandler) AnalyzeMedicalImage(w http.ResponseWriter, r *http.Request) {
	h.analyzeBase64(w, r, "")
}

func (h *AnalysisHandler) analyzeBase64(w http.ResponseWriter, r *http.Request, modality domain.Modality) {
	accepted := h.now()
	req := domain.ImageAnalysisRequest{}
	if err := decodeJSON(w, r, h.config.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}
	req.Modality = modality
	if err := req.Validate(); err != nil {
		h.fail(w, r, err, "")
		return
	}

	payload, err := h.decoder.DecodeBase64(req.ImageBase64)
	if err != nil {
		h.fail(w, r, err, "image_base64")
		return
	}
	p, err := h.builder.Build(&req, payload)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.stream(w, r, accepted, p)
}

// AnalyzeDICOM streams the analysis of a multipart upload in field "file".
func (h *AnalysisHandler) AnalyzeDICOM(w http.ResponseWriter, r *http.Request) {
	accepted := h.now()
	limit := h.config.MaxUploadBytes
	if r.ContentLength > limit {
		h.fail(w, r, &http.MaxBytesError{Limit: limit}, "")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var mbe *http.MaxBytesError
		if !errors.As(err, &mbe) {
			err = domain.NewValidationError("file", domain.CodeBadJSON, "request must be multipart/form-data")
		}
		h.fail(w, r, err, "")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := domain.ImageAnalysisRequest{
		ImageType:    r.FormValue("image_type"),
		AnalysisType: r.FormValue("analysis_type"),
		Language:     domain.Language(r.FormValue("language")),
		File:         []byte{},
	}
	if q := r.FormValue("question"); q != "" {
		req.Question = &q
	}

	declared := "dicom"
	file, header, err := r.FormFile("file")
	if err == nil {
		data, rerr := io.ReadAll(file)
		_ = file.Close()
		if rerr != nil {
			h.fail(w, r, rerr, "file")
			return
		}
		req.File = data
		if ct := header.Header.Get("Content-Type"); strings.HasPrefix(ct, "image/") {
			declared = ct
		} else if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != "" && ext != ".dcm" {
			declared = strings.TrimPrefix(ext, ".")
		}
	}

	if err := req.Validate(); err != nil {
		h.fail(w, r, err, "")
		return
	}
	payload, err := h.decoder.Decode(req.File, declared)
	if err != nil {
		h.fail(w, r, err, "file")
		return
	}
	p, err := h.builder.Build(&req, payload)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	h.stream(w, r, accepted, p)
}

type symptomResponse struct {
	Success      bool            `json:"success"`
	Symptoms     []string        `json:"symptoms"`
	Analysis     string          `json:"analysis"`
	AnalysisHTML string          `json:"analysis_html"`
	Language     domain.Language `json:"language"`
}

// SymptomCheck answers with a differential and triage as JSON.
func (h *AnalysisHandler) SymptomCheck(w http.ResponseWriter, r *http.Request) {
	accepted := h.now()
	var req domain.SymptomCheckRequest
	if err := decodeJSON(w, r, h.config.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err, "")
		return
	}
	p, err := h.builder.Build(&req)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	text, err := h.collect(r.Context(), accepted, p)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, symptomResponse{
		Success:      true,
		Symptoms:     req.Symptoms,
		Analysis:     text,
		AnalysisHTML: renderMarkdown(text),
		Language:     req.Language,
	})
}

type drugResponse struct {
	Success         bool            `json:"success"`
	DrugName        string          `json:"drug_name"`
	QueryType       string          `json:"query_type"`
	Information     string          `json:"information"`
	InformationHTML string          `json:"information_html"`
	Language        domain.Language `json:"language"`
}

// DrugInfo answers a drug query as JSON.
func (h *AnalysisHandler) DrugInfo(w http.ResponseWriter, r *http.Request) {
	accepted := h.now()
	var req domain.DrugQueryRequest
	if err := decodeJSON(w, r, h.config.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err, "")
		return
	}
	p, err := h.builder.Build(&req)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	text, err := h.collect(r.Context(), accepted, p)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, drugResponse{
		Success:         true,
		DrugName:        req.DrugName,
		QueryType:       p.AnalysisType,
		Information:     text,
		InformationHTML: renderMarkdown(text),
		Language:        req.Language,
	})
}

type comparisonResponse struct {
	Success        bool            `json:"success"`
	Analysis       string          `json:"analysis"`
	AnalysisHTML   string          `json:"analysis_html"`
	ComparisonType string          `json:"comparison_type"`
	Language       domain.Language `json:"language"`
}

// CompareImages compares a before and an after image and answers as JSON.
func (h *AnalysisHandler) CompareImages(w http.ResponseWriter, r *http.Request) {
	accepted := h.now()
	var req domain.ImageComparisonRequest
	if err := decodeJSON(w, r, h.config.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err, "")
		return
	}
	before, err := h.decoder.DecodeBase64(req.BeforeImage)
	if err != nil {
		h.fail(w, r, err, "before_image")
		return
	}
	after, err := h.decoder.DecodeBase64(req.AfterImage)
	if err != nil {
		h.fail(w, r, err, "after_image")
		return
	}
	p, err := h.builder.Build(&req, before, after)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	text, err := h.collect(r.Context(), accepted, p)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, comparisonResponse{
		Success:        true,
		Analysis:       text,
		AnalysisHTML:   renderMarkdown(text),
		ComparisonType: p.AnalysisType,
		Language:       req.Language,
	})
}

// ExampleQuestions lists sample questions for ?language=.
func (h *AnalysisHandler) ExampleQuestions(w http.ResponseWriter, r *http.Request) {
	lang, err := domain.ParseLanguage(r.URL.Query().Get("language"))
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"questions": prompt.ExampleQuestions(lang),
		"language":  lang,
	})
}

// ClearCache waits for the generation slot and drops model caches.
func (h *AnalysisHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.releaser.ReleaseMemory(r.Context()); err != nil {
		h.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Cache cleared successfully",
	})
}

func (h *AnalysisHandler) submit(ctx context.Context, accepted time.Time, p *prompt.Prompt) (*scheduler.Stream, error) {
	job := scheduler.Job{
		ID:         uuid.NewString(),
		Kind:       jobKind(p),
		Request:    p.Request(),
		AcceptedAt: accepted,
	}
	s, err := h.generator.Submit(ctx, job)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("job submitted",
		"job_id", job.ID,
		"kind", job.Kind,
		"analysis_type", p.AnalysisType,
		"request_id", middleware.RequestIDFrom(ctx),
	)
	return s, nil
}

func (h *AnalysisHandler) stream(w http.ResponseWriter, r *http.Request, accepted time.Time, p *prompt.Prompt) {
	s, err := h.submit(r.Context(), accepted, p)
	if err != nil {
		h.fail(w, r, err, "")
		return
	}
	em := NewEmitter(w, accepted, h.now)
	if err := em.Relay(r.Context(), s); err != nil {
		if !em.Committed() {
			h.fail(w, r, err, "")
			return
		}
		h.logger.Warn("stream ended early", "job_id", s.ID(), "error", err)
	}
}

func (h *AnalysisHandler) collect(ctx context.Context, accepted time.Time, p *prompt.Prompt) (string, error) {
	s, err := h.submit(ctx, accepted, p)
	if err != nil {
		return "", err
	}
	text, err := s.Collect(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// fail answers with the JSON error for err.
func (h *AnalysisHandler) fail(w http.ResponseWriter, r *http.Request, err error, imageField string) {
	e := classifyError(err, imageField)
	kv := []interface{}{
		"path", r.URL.Path,
		"status", e.status,
		"code", e.code,
		"error", err,
		"request_id", middleware.RequestIDFrom(r.Context()),
	}
	if e.status >= http.StatusInternalServerError {
		h.logger.Error("request failed", kv...)
	} else {
		h.logger.Info("request rejected", kv...)
	}
	writeAPIError(w, e)
}

// jobKind labels jobs for metrics and the ledger.
func jobKind(p *prompt.Prompt) string {
	if p.Modality != "" {
		return string(p.Kind) + "_" + string(p.Modality)
	}
	return string(p.Kind)
}
