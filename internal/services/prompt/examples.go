// File: internal/services/prompt/examples.go
package prompt

import "github.com/iyunix/go-medgemma/internal/domain"

var exampleQuestions = map[domain.Language][]string{
	domain.LanguageTurkish: {
		"Bu göğüs röntgeninde anormallik var mı?",
		"Pnömoni belirtileri nelerdir?",
		"Aspirin ile etkileşime giren ilaçlar nelerdir?",
		"Ateş, öksürük ve nefes darlığı semptomlarını değerlendirir misiniz?",
		"Hipertansiyon tedavisinde kullanılan ilaçlar nelerdir?",
	},
	domain.LanguageEnglish: {
		"Are there any abnormalities in this chest X-ray?",
		"What are the symptoms of pneumonia?",
		"What drugs interact with Aspirin?",
		"Can you evaluate symptoms of fever, cough, and shortness of breath?",
		"What medications are used to treat hypertension?",
	},
}

// ExampleQuestions returns a copy of the sample questions for lang.
func ExampleQuestions(lang domain.Language) []string {
	qs := exampleQuestions[lang]
	if qs == nil {
		qs = exampleQuestions[domain.DefaultLanguage]
	}
	return append([]string(nil), qs...)
}
