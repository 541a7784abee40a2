// File: internal/services/prompt/terms.go
package prompt

import (
	"strings"
	"unicode"
)

// medicalTermsTR maps common Turkish medical terms to English.
var medicalTermsTR = map[string]string{
	// anatomy
	"akciğer":   "lung",
	"kalp":      "heart",
	"karaciğer": "liver",
	"böbrek":    "kidney",
	"mide":      "stomach",
	"bağırsak":  "intestine",
	"beyin":     "brain",
	"kemik":     "bone",

	// conditions
	"pnömoni":      "pneumonia",
	"kanser":       "cancer",
	"tümör":        "tumor",
	"enfeksiyon":   "infection",
	"kırık":        "fracture",
	"iltihaplanma": "inflammation",

	// symptoms
	"ağrı":          "pain",
	"ateş":          "fever",
	"öksürük":       "cough",
	"nefes darlığı": "shortness of breath",
	"baş ağrısı":    "headache",
	"bulantı":       "nausea",
	"kusma":         "vomiting",
}

// TranslateTerm translates a term between Turkish and English, returning it
// unchanged when the dictionary has no entry.
func TranslateTerm(term string, toEnglish bool) string {
	if toEnglish {
		if en, ok := medicalTermsTR[turkishLower(strings.TrimSpace(term))]; ok {
			return en
		}
		return term
	}
	key := strings.ToLower(strings.TrimSpace(term))
	for tr, en := range medicalTermsTR {
		if en == key {
			return tr
		}
	}
	return term
}

// annotateTerm appends the English equivalent of a known Turkish term, e.g.
// "ateş (fever)".
func annotateTerm(term string) string {
	t := strings.TrimSpace(term)
	if en, ok := medicalTermsTR[turkishLower(t)]; ok {
		return t + " (" + en + ")"
	}
	return t
}

// turkishLower lowercases with the Turkish dotted and dotless I rules.
func turkishLower(s string) string {
	return strings.ToLowerSpecial(unicode.TurkishCase, s)
}
