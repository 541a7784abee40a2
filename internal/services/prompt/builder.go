// File: internal/services/prompt/builder.go
package prompt

import (
	"fmt"
	"strings"

	"github.com/iyunix/go-medgemma/internal/domain"
	"github.com/iyunix/go-medgemma/internal/imaging"
	"github.com/iyunix/go-medgemma/internal/services/ai"
)

// Token budgets per request kind.
const (
	MaxTokensChat       = 256
	MaxTokensImage      = 1024
	MaxTokensDrug       = 256
	MaxTokensSymptom    = 384
	MaxTokensComparison = 512
)

// Prompt is the final model input for one request.
type Prompt struct {
	Kind     domain.RequestKind
	Modality domain.Modality
	// AnalysisType is the resolved type; it differs from the requested one
	// after a fallback to general.
	AnalysisType string
	Language     domain.Language
	System       string
	Text         string
	Images       []*imaging.Payload
	MaxTokens    int
}

// Request converts the prompt into a model call.
func (p *Prompt) Request() ai.Request {
	imgs := make([]ai.Image, 0, len(p.Images))
	for _, img := range p.Images {
		imgs = append(imgs, ai.Image{MIMEType: img.MIMEType, Data: img.Encoded})
	}
	return ai.Request{System: p.System, Prompt: p.Text, Images: imgs, MaxTokens: p.MaxTokens}
}

// Logger is the subset of the service logger used by the builder.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
}

type dispatchKey struct {
	kind     domain.RequestKind
	modality domain.Modality
}

type buildFunc func(req domain.AnalysisRequest, images []*imaging.Payload) (*Prompt, error)

// Builder turns validated requests into prompts through a closed dispatch
// table keyed by request kind and modality.
type Builder struct {
	logger   Logger
	dispatch map[dispatchKey]buildFunc
}

func NewBuilder(logger Logger) *Builder {
	b := &Builder{logger: logger}
	b.dispatch = map[dispatchKey]buildFunc{
		{domain.KindChat, ""}:                             buildChat,
		{domain.KindSymptomCheck, ""}:                     buildSymptom,
		{domain.KindDrugQuery, ""}:                        b.buildDrug,
		{domain.KindImageComparison, ""}:                  b.buildComparison,
		{domain.KindImageAnalysis, domain.ModalityXRay}:   b.imageBuilder(xrayTemplates),
		{domain.KindImageAnalysis, domain.ModalityCTMR}:   b.imageBuilder(ctmrTemplates),
		{domain.KindImageAnalysis, domain.ModalityFundus}: b.imageBuilder(fundusTemplates),
		{domain.KindImageAnalysis, domain.ModalityDermo}:  b.imageBuilder(dermoTemplates),
		{domain.KindImageAnalysis, domain.ModalityHisto}:  b.imageBuilder(histoTemplates),
		{domain.KindImageAnalysis, domain.ModalityLab}:    b.imageBuilder(labTemplates),
	}
	return b
}

// Build dispatches a validated request. Image requests carry their decoded
// payloads in images; comparison requests expect before then after.
func (b *Builder) Build(req domain.AnalysisRequest, images ...*imaging.Payload) (*Prompt, error) {
	key := dispatchKey{kind: req.Kind()}
	if ir, ok := req.(*domain.ImageAnalysisRequest); ok {
		key.modality = ir.Modality
	}
	fn, ok := b.dispatch[key]
	if !ok {
		return nil, fmt.Errorf("no prompt builder for kind %q modality %q", key.kind, key.modality)
	}
	return fn(req, images)
}

func buildChat(req domain.AnalysisRequest, _ []*imaging.Payload) (*Prompt, error) {
	r := req.(*domain.ChatRequest)
	patient, enabled := r.Patient()

	transcript := MergeConversationHistory(r.ConversationHistory) + "User: " + strings.TrimSpace(r.Message) + "\nAssistant:"
	return &Prompt{
		Kind:      domain.KindChat,
		Language:  r.Language,
		System:    systemInstructions[r.Language],
		Text:      Combine(MergePatientContext(patient, enabled, r.Language), transcript),
		MaxTokens: MaxTokensChat,
	}, nil
}

func (b *Builder) imageBuilder(set templateSet) buildFunc {
	return func(req domain.AnalysisRequest, images []*imaging.Payload) (*Prompt, error) {
		r := req.(*domain.ImageAnalysisRequest)
		if len(images) != 1 {
			return nil, fmt.Errorf("image analysis needs exactly one image, got %d", len(images))
		}
		analysisType, steering := b.resolve(set, r.AnalysisType, r.Language, string(r.Modality))
		patient, enabled := r.Patient()

		var question string
		if r.Question != nil && strings.TrimSpace(*r.Question) != "" {
			question = questionLabels[r.Language] + " " + strings.TrimSpace(*r.Question)
		}
		return &Prompt{
			Kind:         domain.KindImageAnalysis,
			Modality:     r.Modality,
			AnalysisType: analysisType,
			Language:     r.Language,
			System:       systemInstructions[r.Language],
			Text:         Combine(MergePatientContext(patient, enabled, r.Language), steering, question),
			Images:       images,
			MaxTokens:    MaxTokensImage,
		}, nil
	}
}

func buildSymptom(req domain.AnalysisRequest, _ []*imaging.Payload) (*Prompt, error) {
	r := req.(*domain.SymptomCheckRequest)
	lang := r.Language

	var patientLine string
	if pc := r.Patient(); pc != nil {
		gender := ""
		if pc.Gender != nil {
			gender = localizeGender(*pc.Gender, lang)
		}
		switch {
		case pc.Age != nil && gender != "":
			patientLine = fmt.Sprintf(symptomTemplates.ageGender[lang], *pc.Age, gender)
		case pc.Age != nil:
			patientLine = fmt.Sprintf(symptomTemplates.age[lang], *pc.Age)
		default:
			patientLine = fmt.Sprintf(symptomTemplates.gender[lang], gender)
		}
	}

	annotated := make([]string, len(r.Symptoms))
	for i, s := range r.Symptoms {
		annotated[i] = annotateTerm(s)
	}
	symptomLine := symptomTemplates.symptoms[lang] + strings.Join(annotated, ", ")

	return &Prompt{
		Kind:      domain.KindSymptomCheck,
		Language:  lang,
		System:    systemInstructions[lang],
		Text:      Combine(strings.TrimSpace(patientLine+" "+symptomLine), symptomTemplates.steering[lang]),
		MaxTokens: MaxTokensSymptom,
	}, nil
}

func (b *Builder) buildDrug(req domain.AnalysisRequest, _ []*imaging.Payload) (*Prompt, error) {
	r := req.(*domain.DrugQueryRequest)
	queryType, tmpl := b.resolve(drugTemplates, r.QueryType, r.Language, "drug")
	return &Prompt{
		Kind:         domain.KindDrugQuery,
		AnalysisType: queryType,
		Language:     r.Language,
		System:       systemInstructions[r.Language],
		Text:         fmt.Sprintf(tmpl, strings.TrimSpace(r.DrugName)),
		MaxTokens:    MaxTokensDrug,
	}, nil
}

func (b *Builder) buildComparison(req domain.AnalysisRequest, images []*imaging.Payload) (*Prompt, error) {
	r := req.(*domain.ImageComparisonRequest)
	if len(images) != 2 {
		return nil, fmt.Errorf("image comparison needs a before and an after image, got %d", len(images))
	}
	requested := strings.ToLower(strings.TrimSpace(r.ComparisonType))
	if requested == "" {
		requested = defaultComparisonType
	}
	if alias, ok := comparisonAliases[requested]; ok {
		requested = alias
	}
	axis, tmpl := b.resolve(comparisonTemplates, requested, r.Language, "comparison")
	return &Prompt{
		Kind:         domain.KindImageComparison,
		AnalysisType: axis,
		Language:     r.Language,
		System:       systemInstructions[r.Language],
		Text:         tmpl,
		Images:       images,
		MaxTokens:    MaxTokensComparison,
	}, nil
}

// resolve looks up an analysis type and falls back to general when it is
// empty or unknown.
func (b *Builder) resolve(set templateSet, requested string, lang domain.Language, scope string) (string, string) {
	key := strings.ToLower(strings.TrimSpace(requested))
	if t, ok := set[key]; ok {
		return key, t[lang]
	}
	if key != "" && b.logger != nil {
		b.logger.Debug("unknown analysis type, using general", "scope", scope, "requested", requested)
	}
	return generalType, set[generalType][lang]
}
