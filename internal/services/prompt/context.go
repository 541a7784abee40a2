// File: internal/services/prompt/context.go
package prompt

import (
	"strconv"
	"strings"

	"github.com/iyunix/go-medgemma/internal/domain"
)

var patientLabels = map[domain.Language]struct{ header, age, gender, history string }{
	domain.LanguageTurkish: {"Hasta Bilgileri:", "Yaş", "Cinsiyet", "Klinik Öykü"},
	domain.LanguageEnglish: {"Patient Information:", "Age", "Gender", "Clinical History"},
}

var genderNames = map[domain.Language]map[string]string{
	domain.LanguageTurkish: {"male": "erkek", "female": "kadın", "other": "diğer"},
	domain.LanguageEnglish: {"male": "male", "female": "female", "other": "other"},
}

// MergePatientContext renders age, gender and history in that order. It
// returns "" when the context is absent, empty or not enabled.
func MergePatientContext(pc *domain.PatientContext, enabled bool, lang domain.Language) string {
	if !enabled || pc.IsEmpty() {
		return ""
	}
	labels := patientLabels[lang]

	lines := []string{labels.header}
	if pc.Age != nil {
		lines = append(lines, labels.age+": "+strconv.Itoa(*pc.Age))
	}
	if pc.Gender != nil && strings.TrimSpace(*pc.Gender) != "" {
		lines = append(lines, labels.gender+": "+localizeGender(*pc.Gender, lang))
	}
	if pc.History != nil && strings.TrimSpace(*pc.History) != "" {
		lines = append(lines, labels.history+": "+strings.TrimSpace(*pc.History))
	}
	return strings.Join(lines, "\n")
}

func localizeGender(g string, lang domain.Language) string {
	key := strings.ToLower(strings.TrimSpace(g))
	if name, ok := genderNames[lang][key]; ok {
		return name
	}
	return strings.TrimSpace(g)
}

// MergeConversationHistory renders the most recent turns oldest first.
// Anything beyond domain.MaxHistoryTurns is dropped from the front.
func MergeConversationHistory(turns []domain.ConversationTurn) string {
	if len(turns) > domain.MaxHistoryTurns {
		turns = turns[len(turns)-domain.MaxHistoryTurns:]
	}
	var b strings.Builder
	for _, t := range turns {
		b.WriteString("User: ")
		b.WriteString(t.User)
		b.WriteString("\nAssistant: ")
		b.WriteString(t.Assistant)
		b.WriteString("\n")
	}
	return b.String()
}

// Combine joins the non-empty sections with a blank line. Callers pass
// sections in their final order; skipping one never reorders the rest.
func Combine(sections ...string) string {
	kept := make([]string, 0, len(sections))
	for _, s := range sections {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n")
}
