package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-medgemma/internal/domain"
	"github.com/iyunix/go-medgemma/internal/imaging"
	"github.com/iyunix/go-medgemma/internal/ratelimit"
	"github.com/iyunix/go-medgemma/internal/services"
	"github.com/iyunix/go-medgemma/internal/services/ai"
	"github.com/iyunix/go-medgemma/internal/services/prompt"
	"github.com/iyunix/go-medgemma/internal/services/scheduler"
)

var elapsedMarker = regexp.MustCompile(`\n\n\[elapsed: \d+\.\d{2}s\]$`)

// scriptedModel replies with fixed fragments and then returns failWith.
type scriptedModel struct {
	mu       sync.Mutex
	requests []ai.Request
	reply    []string
	failWith error
	block    bool
	released atomic.Int32
}

func (m *scriptedModel) Load(ctx context.Context) error { return nil }
func (m *scriptedModel) Loaded() bool                   { return true }

func (m *scriptedModel) StreamCompletion(ctx context.Context, req ai.Request, onDelta func(string) error) error {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	for _, frag := range m.reply {
		if err := onDelta(frag); err != nil {
			return err
		}
	}
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.failWith
}

func (m *scriptedModel) ReleaseMemory(ctx context.Context) error {
	m.released.Add(1)
	return nil
}

func (m *scriptedModel) Unload(ctx context.Context) error { return nil }

func (m *scriptedModel) Status() ai.ProviderStatus {
	return ai.ProviderStatus{Backend: "scripted", Model: "test", Device: "cpu", Loaded: true}
}

func (m *scriptedModel) lastRequest(t *testing.T) ai.Request {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.requests)
	return m.requests[len(m.requests)-1]
}

// countingGenerator counts submissions before handing them on.
type countingGenerator struct {
	next    Generator
	err     error
	submits atomic.Int32
}

func (g *countingGenerator) Submit(ctx context.Context, job scheduler.Job) (*scheduler.Stream, error) {
	g.submits.Add(1)
	if g.err != nil {
		return nil, g.err
	}
	return g.next.Submit(ctx, job)
}

type testEnv struct {
	handler http.Handler
	gen     *countingGenerator
}

func newTestEnv(t *testing.T, model ai.Model) *testEnv {
	t.Helper()
	return newLimitedTestEnv(t, model, nil)
}

func newLimitedTestEnv(t *testing.T, model ai.Model, limiter *ratelimit.MemoryRateLimiter) *testEnv {
	t.Helper()
	logger := &services.NoOpLogger{}

	sched, err := scheduler.New(model, scheduler.DefaultConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})

	decoder, err := imaging.NewDecoder(imaging.DefaultConfig(), logger)
	require.NoError(t, err)

	gen := &countingGenerator{next: sched}
	analysis := NewAnalysisHandler(prompt.NewBuilder(logger), decoder, gen, sched, logger,
		DefaultAnalysisConfig(imaging.DefaultConfig().MaxBytes))

	return &testEnv{
		handler: NewRouter(RouterConfig{
			Analysis: analysis,
			Health:   NewHealthHandler(sched),
			Jobs:     NewJobsHandler(nil, logger),
			Log:      NewLogHandler(logger),
			Logger:   logger,
			Limiter:  limiter,
		}),
		gen: gen,
	}
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestChatStreamsTurkishAnswerWithElapsedMarker(t *testing.T) {
	env := newTestEnv(t, ai.NewStubProvider(ai.DefaultConfig(), 0))

	rec := env.post(t, "/api/chat", map[string]interface{}{
		"message":  "Pnömoni belirtileri nelerdir?",
		"language": "tr",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "Bu yanıt"), body)
	assert.Regexp(t, elapsedMarker, body)
}

func TestChatPromptCarriesHistoryAndPatient(t *testing.T) {
	model := &scriptedModel{reply: []string{"ok"}}
	env := newTestEnv(t, model)

	rec := env.post(t, "/api/chat", map[string]interface{}{
		"message":              "What next?",
		"language":             "en",
		"conversation_history": []map[string]string{{"user": "hi", "assistant": "hello"}},
		"patient_age":          61,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got := model.lastRequest(t)
	assert.Equal(t, prompt.MaxTokensChat, got.MaxTokens)
	assert.Less(t, strings.Index(got.Prompt, "Patient Information"), strings.Index(got.Prompt, "User: hi"))
	assert.True(t, strings.HasSuffix(got.Prompt, "User: What next?\nAssistant:"))
}

func TestValidationRejectsBeforeScheduling(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		body  interface{}
		code  string
		field string
	}{
		{
			name: "unknown language", path: "/api/chat",
			body: map[string]interface{}{"message": "hi", "language": "de"},
			code: domain.CodeInvalidValue, field: "language",
		},
		{
			name: "empty message", path: "/api/chat",
			body: map[string]interface{}{"message": "  "},
			code: domain.CodeRequired, field: "message",
		},
		{
			name: "21 symptoms", path: "/api/symptom-check",
			body: map[string]interface{}{"symptoms": make21Symptoms()},
			code: domain.CodeTooMany, field: "symptoms",
		},
		{
			name: "unknown image_type", path: "/api/analyze-medical-image",
			body: map[string]interface{}{"image_base64": "AAAA", "image_type": "ultrasound"},
			code: domain.CodeInvalidValue, field: "image_type",
		},
		{
			name: "missing image", path: "/api/analyze-xray",
			body: map[string]interface{}{"analysis_type": "general"},
			code: domain.CodeRequired, field: "image_base64",
		},
		{
			name: "patient age out of range", path: "/api/analyze-xray",
			body: map[string]interface{}{"image_base64": "AAAA", "patient_age": 151},
			code: domain.CodeOutOfRange, field: "patient_age",
		},
		{
			name: "missing after image", path: "/api/compare-images",
			body: map[string]interface{}{"before_image": "AAAA"},
			code: domain.CodeRequired, field: "after_image",
		},
		{
			name: "drug name too long", path: "/api/drug-info",
			body: map[string]interface{}{"drug_name": strings.Repeat("a", domain.MaxDrugNameLength+1)},
			code: domain.CodeTooLong, field: "drug_name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, &scriptedModel{})
			rec := env.post(t, tt.path, tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, tt.field, body["field"])
			assert.Zero(t, env.gen.submits.Load())
		})
	}
}

func make21Symptoms() []string {
	out := make([]string, 21)
	for i := range out {
		out[i] = "ateş"
	}
	return out
}

func TestMalformedJSON(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":`))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeBadJSON, decodeBody(t, rec)["code"])
}

func TestSmallImageRejectedWithoutReachingScheduler(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})

	rec := env.post(t, "/api/analyze-xray", map[string]interface{}{
		"image_base64":  pngBase64(t, 50, 50),
		"analysis_type": "pneumonia",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "IMAGE_DIMENSIONS", body["code"])
	assert.Equal(t, "image_base64", body["field"])
	assert.Zero(t, env.gen.submits.Load())
}

func TestPDFRejectedAsUnsupportedMediaType(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n"))

	rec := env.post(t, "/api/analyze-medical-image", map[string]interface{}{
		"image_base64": pdf,
		"image_type":   "lab",
	})

	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", decodeBody(t, rec)["code"])
	assert.Zero(t, env.gen.submits.Load())
}

func TestMedicalImageStreamsWithImageAttached(t *testing.T) {
	model := &scriptedModel{reply: []string{"Fundus ", "normal."}}
	env := newTestEnv(t, model)

	rec := env.post(t, "/api/analyze-medical-image", map[string]interface{}{
		"image_base64":  "data:image/png;base64," + pngBase64(t, 320, 240),
		"image_type":    "fundus",
		"analysis_type": "glaucoma",
		"language":      "en",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Fundus normal."))
	assert.Regexp(t, elapsedMarker, rec.Body.String())

	got := model.lastRequest(t)
	require.Len(t, got.Images, 1)
	assert.Equal(t, "image/jpeg", got.Images[0].MIMEType)
	assert.Equal(t, prompt.MaxTokensImage, got.MaxTokens)
}

func TestErrorMarkerAfterPartialOutput(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{
		reply:    []string{"Kısmi ", "yanıt"},
		failWith: errors.New("device lost"),
	})

	rec := env.post(t, "/api/chat", map[string]interface{}{"message": "Merhaba"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Kısmi yanıt\n\n[error: model generation failed]", rec.Body.String())
}

func TestFailureBeforeFirstFragmentIsJSON(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{failWith: errors.New("device lost")})

	rec := env.post(t, "/api/chat", map[string]interface{}{"message": "Merhaba"})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "GENERATION_FAILED", decodeBody(t, rec)["code"])
}

func TestBusyQueueAnswers503WithRetryAfter(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})
	env.gen.err = &scheduler.Error{Type: scheduler.ErrTypeBusy, Operation: "submit", Message: "queue full"}

	rec := env.post(t, "/api/chat", map[string]interface{}{"message": "hi"})

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
	assert.Equal(t, "SERVER_BUSY", decodeBody(t, rec)["code"])
}

func TestDrugInfoRendersMarkdown(t *testing.T) {
	model := &scriptedModel{reply: []string{"**Aspirin** ", "is an NSAID."}}
	env := newTestEnv(t, model)

	rec := env.post(t, "/api/drug-info", map[string]interface{}{
		"drug_name":  "Aspirin",
		"query_type": "made_up",
		"language":   "en",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Aspirin", body["drug_name"])
	assert.Equal(t, "general", body["query_type"])
	assert.Equal(t, "**Aspirin** is an NSAID.", body["information"])
	assert.Contains(t, body["information_html"], "<strong>Aspirin</strong>")
	assert.Equal(t, "en", body["language"])
}

func TestSymptomCheckJSON(t *testing.T) {
	model := &scriptedModel{reply: []string{"Olası tanılar"}}
	env := newTestEnv(t, model)

	rec := env.post(t, "/api/symptom-check", map[string]interface{}{
		"symptoms": []string{"ateş", "öksürük"},
		"age":      34,
		"gender":   "female",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "Olası tanılar", body["analysis"])
	assert.Equal(t, "tr", body["language"])
	assert.Contains(t, model.lastRequest(t).Prompt, "ateş (fever)")
}

func TestCompareImagesSendsBothImages(t *testing.T) {
	model := &scriptedModel{reply: []string{"Improved."}}
	env := newTestEnv(t, model)

	rec := env.post(t, "/api/compare-images", map[string]interface{}{
		"before_image":    pngBase64(t, 200, 200),
		"after_image":     pngBase64(t, 240, 180),
		"comparison_type": "treatment-response",
		"language":        "en",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "treatment", body["comparison_type"])
	assert.Len(t, model.lastRequest(t).Images, 2)
}

func TestCompareImagesNamesFailingImage(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})

	rec := env.post(t, "/api/compare-images", map[string]interface{}{
		"before_image": pngBase64(t, 200, 200),
		"after_image":  pngBase64(t, 60, 200),
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "after_image", decodeBody(t, rec)["field"])
}

func multipartUpload(t *testing.T, fields map[string]string, file []byte, contentType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="scan.png"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze-dicom", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAnalyzeDICOMUpload(t *testing.T) {
	raw, err := base64.StdEncoding.DecodeString(pngBase64(t, 256, 256))
	require.NoError(t, err)

	t.Run("accepts an upload", func(t *testing.T) {
		model := &scriptedModel{reply: []string{"CT"}}
		env := newTestEnv(t, model)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, multipartUpload(t, map[string]string{
			"image_type": "ctmr", "analysis_type": "brain", "language": "en",
		}, raw, "image/png"))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Regexp(t, elapsedMarker, rec.Body.String())
		assert.Len(t, model.lastRequest(t).Images, 1)
	})

	t.Run("missing file", func(t *testing.T) {
		env := newTestEnv(t, &scriptedModel{})
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, multipartUpload(t, map[string]string{"image_type": "ctmr"}, nil, ""))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "file", decodeBody(t, rec)["field"])
	})

	t.Run("not multipart", func(t *testing.T) {
		env := newTestEnv(t, &scriptedModel{})
		rec := env.post(t, "/api/analyze-dicom", map[string]string{"image_type": "ctmr"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestExampleQuestions(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})

	rec := env.get(t, "/api/example-questions?language=en")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["questions"], 5)
	assert.Equal(t, "en", body["language"])

	rec = env.get(t, "/api/example-questions")
	assert.Equal(t, "tr", decodeBody(t, rec)["language"])

	rec = env.get(t, "/api/example-questions?language=fr")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearCache(t *testing.T) {
	model := &scriptedModel{}
	env := newTestEnv(t, model)

	rec := env.post(t, "/api/clear-cache", struct{}{})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cache cleared successfully", decodeBody(t, rec)["message"])
	assert.Equal(t, int32(1), model.released.Load())
}

func TestHealthAndRoot(t *testing.T) {
	env := newTestEnv(t, ai.NewStubProvider(ai.DefaultConfig(), 0))

	rec := env.get(t, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["model_loaded"])
	assert.Equal(t, "cpu", body["device"])
	assert.Equal(t, false, body["cuda_available"])
	assert.Equal(t, "N/A", body["gpu_memory_allocated"])
	assert.EqualValues(t, 0, body["queue_depth"])
	assert.Equal(t, false, body["generation_active"])

	rec = env.get(t, "/")
	body = decodeBody(t, rec)
	assert.Equal(t, "Med-Gemma Medical Assistant API", body["message"])
	assert.Equal(t, "running", body["status"])
}

type fixedStatus scheduler.Status

func (s fixedStatus) Status() scheduler.Status { return scheduler.Status(s) }

func TestHealthReportsGPUMemory(t *testing.T) {
	allocated := int64(3 << 30)
	h := NewHealthHandler(fixedStatus{Device: "cuda", AcceleratorAvailable: true, MemoryAllocatedBytes: &allocated, QueueDepth: 2})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	body := decodeBody(t, rec)
	assert.Equal(t, "3.00GB", body["gpu_memory_allocated"])
	assert.EqualValues(t, 2, body["queue_depth"])
}

func TestHealthGPUMemoryUnknown(t *testing.T) {
	// Remote backends run on an accelerator but cannot report its usage.
	h := NewHealthHandler(fixedStatus{Backend: "openai", Device: "cuda", AcceleratorAvailable: true})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["cuda_available"])
	assert.Equal(t, "N/A", body["gpu_memory_allocated"])
}

func TestUnknownRouteAndMethod(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{})

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/nope").Code)

	for _, path := range []string{"/api/chat", "/api/analyze-xray", "/api/analyze-dicom", "/api/clear-cache"} {
		rec := env.get(t, path)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
		assert.Equal(t, "METHOD_NOT_ALLOWED", decodeBody(t, rec)["code"], path)
	}

	rec := env.post(t, "/api/health", map[string]string{})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", decodeBody(t, rec)["code"])
}

func TestRateLimitCoversGenerationRoutesOnly(t *testing.T) {
	limiter := ratelimit.NewMemoryRateLimiter(&ratelimit.Config{
		WindowSize:    time.Minute,
		MaxRequests:   1,
		CleanupPeriod: time.Minute,
	})
	t.Cleanup(limiter.Close)
	env := newLimitedTestEnv(t, &scriptedModel{}, limiter)

	assert.Equal(t, http.StatusBadRequest, env.post(t, "/api/chat", map[string]string{}).Code)
	rec := env.post(t, "/api/chat", map[string]string{})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeBody(t, rec)["code"])

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, env.get(t, "/api/example-questions").Code)
	}
	assert.Equal(t, http.StatusMethodNotAllowed, env.get(t, "/api/chat").Code)
}
