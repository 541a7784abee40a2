package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-medgemma/internal/domain"
	"github.com/iyunix/go-medgemma/internal/imaging"
)

func ptr[T any](v T) *T { return &v }

func fakeImage() *imaging.Payload {
	return &imaging.Payload{MIMEType: "image/jpeg", Encoded: []byte{0xFF, 0xD8, 0xFF}, Width: 512, Height: 512, SourceFormat: imaging.FormatPNG}
}

func TestUnknownAnalysisTypeFallsBackToGeneral(t *testing.T) {
	b := NewBuilder(nil)

	sets := map[domain.Modality]templateSet{
		domain.ModalityXRay:   xrayTemplates,
		domain.ModalityCTMR:   ctmrTemplates,
		domain.ModalityFundus: fundusTemplates,
		domain.ModalityDermo:  dermoTemplates,
		domain.ModalityHisto:  histoTemplates,
		domain.ModalityLab:    labTemplates,
	}
	for modality, set := range sets {
		for _, lang := range []domain.Language{domain.LanguageTurkish, domain.LanguageEnglish} {
			t.Run(fmt.Sprintf("%s/%s", modality, lang), func(t *testing.T) {
				req := &domain.ImageAnalysisRequest{Modality: modality, AnalysisType: "not-a-real-type", Language: lang}
				p, err := b.Build(req, fakeImage())
				require.NoError(t, err)
				assert.Equal(t, "general", p.AnalysisType)
				assert.Equal(t, set["general"][lang], p.Text)
				assert.Equal(t, MaxTokensImage, p.MaxTokens)
				require.Len(t, p.Images, 1)
			})
		}
	}
}

func TestKnownAnalysisTypesResolve(t *testing.T) {
	b := NewBuilder(nil)
	p, err := b.Build(&domain.ImageAnalysisRequest{Modality: domain.ModalityXRay, AnalysisType: "Pneumonia", Language: domain.LanguageEnglish}, fakeImage())
	require.NoError(t, err)
	assert.Equal(t, "pneumonia", p.AnalysisType)
	assert.Equal(t, "Does this chest X-ray show signs of pneumonia? Explain your findings.", p.Text)
	assert.Contains(t, p.System, "medical assistant")

	p, err = b.Build(&domain.ImageAnalysisRequest{Modality: domain.ModalityFundus, AnalysisType: "glaucoma", Language: domain.LanguageTurkish}, fakeImage())
	require.NoError(t, err)
	assert.Contains(t, p.Text, "glokom")
}

func TestImagePromptOrderIsStable(t *testing.T) {
	b := NewBuilder(nil)
	question := "Sol alt lobda opasite var mı?"

	with := &domain.ImageAnalysisRequest{
		Modality: domain.ModalityXRay, AnalysisType: "lung", Language: domain.LanguageTurkish,
		Question: ptr(question),
		PatientFields: domain.PatientFields{
			PatientAge: ptr(67), PatientGender: ptr("male"), PatientHistory: ptr("KOAH"),
		},
	}
	without := *with
	without.PatientFields = domain.PatientFields{}

	pWith, err := b.Build(with, fakeImage())
	require.NoError(t, err)
	pWithout, err := b.Build(&without, fakeImage())
	require.NoError(t, err)

	steering := xrayTemplates["lung"][domain.LanguageTurkish]
	assert.Equal(t, "Hasta Bilgileri:\nYaş: 67\nCinsiyet: erkek\nKlinik Öykü: KOAH\n\n"+steering+"\n\nKullanıcının sorusu: "+question, pWith.Text)
	assert.Equal(t, steering+"\n\nKullanıcının sorusu: "+question, pWithout.Text)

	// Removing the patient section leaves the remaining sections in order.
	assert.True(t, strings.HasSuffix(pWith.Text, pWithout.Text))
}

func TestPatientContextOptOut(t *testing.T) {
	b := NewBuilder(nil)
	req := &domain.ImageAnalysisRequest{
		Modality: domain.ModalityXRay, Language: domain.LanguageEnglish,
		PatientFields: domain.PatientFields{PatientAge: ptr(40), UsePatientContext: ptr(false)},
	}
	p, err := b.Build(req, fakeImage())
	require.NoError(t, err)
	assert.NotContains(t, p.Text, "Patient Information")
	assert.Equal(t, xrayTemplates["general"][domain.LanguageEnglish], p.Text)
}

func TestChatPrompt(t *testing.T) {
	b := NewBuilder(nil)
	req := &domain.ChatRequest{
		Message:  "Pnömoni belirtileri nelerdir?",
		Language: domain.LanguageTurkish,
		ConversationHistory: []domain.ConversationTurn{
			{User: "Merhaba", Assistant: "Merhaba, nasıl yardımcı olabilirim?"},
		},
	}
	p, err := b.Build(req)
	require.NoError(t, err)
	assert.Equal(t, "User: Merhaba\nAssistant: Merhaba, nasıl yardımcı olabilirim?\nUser: Pnömoni belirtileri nelerdir?\nAssistant:", p.Text)
	assert.Equal(t, MaxTokensChat, p.MaxTokens)
	assert.Empty(t, p.Images)
	assert.Contains(t, p.System, "Türkçe")
}

func TestChatHistoryIsCapped(t *testing.T) {
	turns := make([]domain.ConversationTurn, 14)
	for i := range turns {
		turns[i] = domain.ConversationTurn{User: fmt.Sprintf("q%d", i), Assistant: fmt.Sprintf("a%d", i)}
	}
	merged := MergeConversationHistory(turns)

	assert.NotContains(t, merged, "q3\n")
	assert.True(t, strings.HasPrefix(merged, "User: q4\nAssistant: a4\n"))
	assert.True(t, strings.HasSuffix(merged, "User: q13\nAssistant: a13\n"))
	assert.Equal(t, domain.MaxHistoryTurns, strings.Count(merged, "User: "))
}

func TestSymptomPrompt(t *testing.T) {
	b := NewBuilder(nil)

	p, err := b.Build(&domain.SymptomCheckRequest{
		Symptoms: []string{"Ateş", "öksürük", "yorgunluk"},
		Age:      ptr(34), Gender: ptr("female"),
		Language: domain.LanguageTurkish,
	})
	require.NoError(t, err)
	assert.Equal(t,
		"Hasta: 34 yaşında kadın. Semptomlar: Ateş (fever), öksürük (cough), yorgunluk\n\n"+symptomTemplates.steering[domain.LanguageTurkish],
		p.Text)
	assert.Equal(t, MaxTokensSymptom, p.MaxTokens)

	p, err = b.Build(&domain.SymptomCheckRequest{Symptoms: []string{"headache"}, Language: domain.LanguageEnglish})
	require.NoError(t, err)
	assert.Equal(t, "Symptoms: headache\n\nProvide a differential diagnosis, urgency assessment, and recommendations for next steps.", p.Text)
}

func TestDrugPrompt(t *testing.T) {
	b := NewBuilder(nil)

	p, err := b.Build(&domain.DrugQueryRequest{DrugName: "Aspirin", QueryType: "interactions", Language: domain.LanguageEnglish})
	require.NoError(t, err)
	assert.Equal(t, "What are the major drug interactions for Aspirin? List contraindications and drugs that should not be combined.", p.Text)
	assert.Equal(t, MaxTokensDrug, p.MaxTokens)

	p, err = b.Build(&domain.DrugQueryRequest{DrugName: "Metformin", QueryType: "pharmacokinetics", Language: domain.LanguageTurkish})
	require.NoError(t, err)
	assert.Equal(t, "general", p.AnalysisType)
	assert.True(t, strings.HasPrefix(p.Text, "Metformin ilacı hakkında"))
}

func TestComparisonPrompt(t *testing.T) {
	b := NewBuilder(nil)
	before, after := fakeImage(), fakeImage()

	p, err := b.Build(&domain.ImageComparisonRequest{ComparisonType: "treatment-response", Language: domain.LanguageTurkish}, before, after)
	require.NoError(t, err)
	assert.Equal(t, "treatment", p.AnalysisType)
	assert.Contains(t, p.Text, "tedavi öncesi")
	require.Len(t, p.Images, 2)
	assert.Same(t, before, p.Images[0])
	assert.Same(t, after, p.Images[1])
	assert.Equal(t, MaxTokensComparison, p.MaxTokens)

	req := p.Request()
	assert.Len(t, req.Images, 2)
	assert.Equal(t, p.Text, req.Prompt)

	_, err = b.Build(&domain.ImageComparisonRequest{Language: domain.LanguageEnglish}, before)
	assert.Error(t, err)
}

func TestComparisonTypeDefaults(t *testing.T) {
	b := NewBuilder(nil)
	before, after := fakeImage(), fakeImage()

	p, err := b.Build(&domain.ImageComparisonRequest{Language: domain.LanguageEnglish}, before, after)
	require.NoError(t, err)
	assert.Equal(t, "progression", p.AnalysisType)
	assert.Contains(t, p.Text, "disease progression")

	p, err = b.Build(&domain.ImageComparisonRequest{ComparisonType: "  ", Language: domain.LanguageTurkish}, before, after)
	require.NoError(t, err)
	assert.Equal(t, "progression", p.AnalysisType)

	p, err = b.Build(&domain.ImageComparisonRequest{ComparisonType: "size-change", Language: domain.LanguageEnglish}, before, after)
	require.NoError(t, err)
	assert.Equal(t, "general", p.AnalysisType)
	assert.Contains(t, p.Text, "describe the differences")
}

func TestExampleQuestions(t *testing.T) {
	tr := ExampleQuestions(domain.LanguageTurkish)
	en := ExampleQuestions(domain.LanguageEnglish)
	assert.Len(t, tr, 5)
	assert.Len(t, en, 5)
	assert.Contains(t, tr, "Pnömoni belirtileri nelerdir?")

	tr[0] = "mutated"
	assert.NotEqual(t, "mutated", ExampleQuestions(domain.LanguageTurkish)[0])
}

func TestTranslateTerm(t *testing.T) {
	assert.Equal(t, "shortness of breath", TranslateTerm("Nefes darlığı", true))
	assert.Equal(t, "böbrek", TranslateTerm("KIDNEY", false))
	assert.Equal(t, "migren", TranslateTerm("migren", true))
}
