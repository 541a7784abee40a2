// File: internal/domain/analysis.go
package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Request limits.
const (
	MaxHistoryTurns   = 10
	MaxSymptoms       = 20
	MaxMessageLength  = 2048
	MaxDrugNameLength = 256
	MaxPatientAge     = 150
)

// Language is the response language requested by the caller.
type Language string

const (
	LanguageTurkish Language = "tr"
	LanguageEnglish Language = "en"
)

// DefaultLanguage is used when the caller does not send one.
const DefaultLanguage = LanguageTurkish

// ParseLanguage maps a raw value onto a known language. An empty value yields
// DefaultLanguage.
func ParseLanguage(raw string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return DefaultLanguage, nil
	case LanguageTurkish:
		return LanguageTurkish, nil
	case LanguageEnglish:
		return LanguageEnglish, nil
	}
	return "", NewValidationError("language", CodeInvalidValue, fmt.Sprintf("unsupported language %q (expected tr or en)", raw))
}

// RequestKind tags the variants of an analysis request.
type RequestKind string

const (
	KindChat            RequestKind = "chat"
	KindImageAnalysis   RequestKind = "image_analysis"
	KindSymptomCheck    RequestKind = "symptom_check"
	KindDrugQuery       RequestKind = "drug_query"
	KindImageComparison RequestKind = "image_comparison"
)

// AnalysisRequest is implemented by every request variant.
type AnalysisRequest interface {
	Kind() RequestKind
	Lang() Language
	Validate() error
}

// Modality is a category of medical image.
type Modality string

const (
	ModalityXRay   Modality = "xray"
	ModalityCTMR   Modality = "ctmr"
	ModalityFundus Modality = "fundus"
	ModalityDermo  Modality = "dermo"
	ModalityHisto  Modality = "histo"
	ModalityLab    Modality = "lab"
)

// ImagingModalities lists the values accepted as image_type.
var ImagingModalities = []Modality{ModalityCTMR, ModalityFundus, ModalityDermo, ModalityHisto, ModalityLab}

// ParseImagingModality validates an image_type value. X-ray has its own
// endpoint and is not accepted here.
func ParseImagingModality(raw string) (Modality, error) {
	m := Modality(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range ImagingModalities {
		if m == known {
			return m, nil
		}
	}
	if m == "" {
		return "", NewValidationError("image_type", CodeRequired, "image_type is required")
	}
	return "", NewValidationError("image_type", CodeInvalidValue,
		fmt.Sprintf("unsupported image_type %q (expected one of ctmr, fundus, dermo, histo, lab)", raw))
}

// PatientContext is optional patient metadata merged into image prompts.
type PatientContext struct {
	Age     *int
	Gender  *string
	History *string
}

// IsEmpty reports whether no field carries a value.
func (p *PatientContext) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.Age == nil && blank(p.Gender) && blank(p.History)
}

// PatientFields are the optional patient_* fields shared by several
// endpoints. Sending any field enables the context unless
// use_patient_context is explicitly false.
type PatientFields struct {
	PatientAge        *int    `json:"patient_age,omitempty"`
	PatientGender     *string `json:"patient_gender,omitempty"`
	PatientHistory    *string `json:"patient_history,omitempty"`
	UsePatientContext *bool   `json:"use_patient_context,omitempty"`
}

// Patient returns the context and whether the caller enabled it.
func (f PatientFields) Patient() (*PatientContext, bool) {
	pc := &PatientContext{Age: f.PatientAge, Gender: f.PatientGender, History: f.PatientHistory}
	if pc.IsEmpty() {
		return nil, false
	}
	if f.UsePatientContext != nil && !*f.UsePatientContext {
		return pc, false
	}
	return pc, true
}

func (f PatientFields) validate() error {
	if f.PatientAge != nil && (*f.PatientAge < 0 || *f.PatientAge > MaxPatientAge) {
		return NewValidationError("patient_age", CodeOutOfRange, fmt.Sprintf("patient_age must be between 0 and %d", MaxPatientAge))
	}
	return nil
}

// ConversationTurn is one user/assistant exchange held by the client.
type ConversationTurn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// ChatRequest is a free-text question with client-held history.
type ChatRequest struct {
	Message             string             `json:"message"`
	ConversationHistory []ConversationTurn `json:"conversation_history"`
	Language            Language           `json:"language"`
	PatientFields
}

func (r *ChatRequest) Kind() RequestKind { return KindChat }
func (r *ChatRequest) Lang() Language    { return r.Language }

func (r *ChatRequest) Validate() error {
	lang, err := ParseLanguage(string(r.Language))
	if err != nil {
		return err
	}
	r.Language = lang
	if err := checkText("message", r.Message, MaxMessageLength); err != nil {
		return err
	}
	return r.PatientFields.validate()
}

// ImageAnalysisRequest covers x-ray, the other imaging modalities and DICOM
// uploads. Exactly one of ImageBase64 and File carries the image.
type ImageAnalysisRequest struct {
	ImageBase64  string   `json:"image_base64"`
	ImageType    string   `json:"image_type"`
	AnalysisType string   `json:"analysis_type"`
	Question     *string  `json:"question,omitempty"`
	Language     Language `json:"language"`
	PatientFields

	// Modality is resolved from the route (x-ray) or from ImageType.
	Modality Modality `json:"-"`
	// File holds the raw upload of the multipart DICOM route.
	File []byte `json:"-"`
}

func (r *ImageAnalysisRequest) Kind() RequestKind { return KindImageAnalysis }
func (r *ImageAnalysisRequest) Lang() Language    { return r.Language }

func (r *ImageAnalysisRequest) Validate() error {
	lang, err := ParseLanguage(string(r.Language))
	if err != nil {
		return err
	}
	r.Language = lang
	if r.Modality != ModalityXRay {
		m, err := ParseImagingModality(r.ImageType)
		if err != nil {
			return err
		}
		r.Modality = m
	}
	if strings.TrimSpace(r.ImageBase64) == "" && len(r.File) == 0 {
		field := "image_base64"
		if r.File != nil {
			field = "file"
		}
		return NewValidationError(field, CodeRequired, "an image is required")
	}
	if r.Question != nil && utf8.RuneCountInString(*r.Question) > MaxMessageLength {
		return NewValidationError("question", CodeTooLong, fmt.Sprintf("question exceeds %d characters", MaxMessageLength))
	}
	return r.PatientFields.validate()
}

// SymptomCheckRequest asks for a triage of a symptom list.
type SymptomCheckRequest struct {
	Symptoms []string `json:"symptoms"`
	Age      *int     `json:"age,omitempty"`
	Gender   *string  `json:"gender,omitempty"`
	Language Language `json:"language"`
}

func (r *SymptomCheckRequest) Kind() RequestKind { return KindSymptomCheck }
func (r *SymptomCheckRequest) Lang() Language    { return r.Language }

func (r *SymptomCheckRequest) Validate() error {
	lang, err := ParseLanguage(string(r.Language))
	if err != nil {
		return err
	}
	r.Language = lang
	switch {
	case len(r.Symptoms) == 0:
		return NewValidationError("symptoms", CodeRequired, "at least one symptom is required")
	case len(r.Symptoms) > MaxSymptoms:
		return NewValidationError("symptoms", CodeTooMany, fmt.Sprintf("at most %d symptoms are accepted, got %d", MaxSymptoms, len(r.Symptoms)))
	}
	for i, s := range r.Symptoms {
		if strings.TrimSpace(s) == "" {
			return NewValidationError(fmt.Sprintf("symptoms[%d]", i), CodeRequired, "symptom must not be empty")
		}
	}
	if r.Age != nil && (*r.Age < 0 || *r.Age > MaxPatientAge) {
		return NewValidationError("age", CodeOutOfRange, fmt.Sprintf("age must be between 0 and %d", MaxPatientAge))
	}
	if r.Gender != nil {
		switch strings.ToLower(*r.Gender) {
		case "male", "female", "other":
		default:
			return NewValidationError("gender", CodeInvalidValue, "gender must be male, female or other")
		}
	}
	return nil
}

// Patient returns the demographic context of a symptom check. Age and gender
// are only ever sent on purpose, so presence enables them.
func (r *SymptomCheckRequest) Patient() *PatientContext {
	pc := &PatientContext{Age: r.Age, Gender: r.Gender}
	if pc.IsEmpty() {
		return nil
	}
	return pc
}

// DrugQueryRequest asks for information about one drug.
type DrugQueryRequest struct {
	DrugName  string   `json:"drug_name"`
	QueryType string   `json:"query_type"`
	Language  Language `json:"language"`
}

func (r *DrugQueryRequest) Kind() RequestKind { return KindDrugQuery }
func (r *DrugQueryRequest) Lang() Language    { return r.Language }

func (r *DrugQueryRequest) Validate() error {
	lang, err := ParseLanguage(string(r.Language))
	if err != nil {
		return err
	}
	r.Language = lang
	return checkText("drug_name", r.DrugName, MaxDrugNameLength)
}

// ImageComparisonRequest pairs a before and an after image.
type ImageComparisonRequest struct {
	BeforeImage    string   `json:"before_image"`
	AfterImage     string   `json:"after_image"`
	ComparisonType string   `json:"comparison_type"`
	Language       Language `json:"language"`
}

func (r *ImageComparisonRequest) Kind() RequestKind { return KindImageComparison }
func (r *ImageComparisonRequest) Lang() Language    { return r.Language }

func (r *ImageComparisonRequest) Validate() error {
	lang, err := ParseLanguage(string(r.Language))
	if err != nil {
		return err
	}
	r.Language = lang
	if strings.TrimSpace(r.BeforeImage) == "" {
		return NewValidationError("before_image", CodeRequired, "before_image is required")
	}
	if strings.TrimSpace(r.AfterImage) == "" {
		return NewValidationError("after_image", CodeRequired, "after_image is required")
	}
	return nil
}

func checkText(field, value string, max int) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(field, CodeRequired, field+" is required")
	}
	if utf8.RuneCountInString(value) > max {
		return NewValidationError(field, CodeTooLong, fmt.Sprintf("%s exceeds %d characters", field, max))
	}
	return nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
