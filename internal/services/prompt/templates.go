// File: internal/services/prompt/templates.go
package prompt

import "github.com/iyunix/go-medgemma/internal/domain"

type localized map[domain.Language]string

// templateSet maps an analysis type onto its steering text. Every set has a
// "general" entry used as the fallback.
type templateSet map[string]localized

const generalType = "general"

var systemInstructions = localized{
	domain.LanguageTurkish: "Sen yardımsever ve uzman bir tıbbi asistansın. Yanıtlarını Türkçe ver.",
	domain.LanguageEnglish: "You are a helpful and expert medical assistant. Answer in English.",
}

var questionLabels = localized{
	domain.LanguageTurkish: "Kullanıcının sorusu:",
	domain.LanguageEnglish: "User question:",
}

var xrayTemplates = templateSet{
	"general": {
		domain.LanguageTurkish: "Bu göğüs röntgenini analiz et. Anormallikleri, bulguları açıkla ve klinik değerlendirmeni sun.",
		domain.LanguageEnglish: "Analyze this chest X-ray. Describe any abnormalities, findings, and provide a clinical impression.",
	},
	"pneumonia": {
		domain.LanguageTurkish: "Bu göğüs röntgeninde pnömoni belirtileri var mı? Bulgularını açıkla.",
		domain.LanguageEnglish: "Does this chest X-ray show signs of pneumonia? Explain your findings.",
	},
	"fracture": {
		domain.LanguageTurkish: "Bu röntgende görülebilen kırıklar var mı? Yerini belirt ve açıkla.",
		domain.LanguageEnglish: "Are there any fractures visible in this X-ray? Locate and describe them.",
	},
	"cardiac": {
		domain.LanguageTurkish: "Bu göğüs röntgeninde kardiyak silueti ve kalp anormalliklerini değerlendir.",
		domain.LanguageEnglish: "Evaluate the cardiac silhouette and any cardiac abnormalities in this chest X-ray.",
	},
	"lung": {
		domain.LanguageTurkish: "Bu röntgende akciğerleri değerlendir, anormallik, kitle veya infiltrasyon var mı?",
		domain.LanguageEnglish: "Assess the lungs in this X-ray for any abnormalities, masses, or infiltrates.",
	},
}

var ctmrTemplates = templateSet{
	"brain": {
		domain.LanguageTurkish: "Bu beyin MR görüntüsünü analiz et. Tümör, kanama, infarkt veya diğer anormallikleri değerlendir.",
		domain.LanguageEnglish: "Analyze this brain MR image. Evaluate for tumor, hemorrhage, infarct or other abnormalities.",
	},
	"chest_ct": {
		domain.LanguageTurkish: "Bu toraks CT görüntüsünü analiz et. Akciğer nodülleri, kitleler veya diğer bulguları değerlendir.",
		domain.LanguageEnglish: "Analyze this chest CT image. Evaluate for pulmonary nodules, masses or other findings.",
	},
	"abdomen": {
		domain.LanguageTurkish: "Bu karın CT görüntüsünü analiz et. Organları ve anormallikleri değerlendir.",
		domain.LanguageEnglish: "Analyze this abdominal CT image. Evaluate the organs and any abnormalities.",
	},
	"spine": {
		domain.LanguageTurkish: "Bu omurga MR görüntüsünü analiz et. Disk, sinir ve yapısal anormallikleri değerlendir.",
		domain.LanguageEnglish: "Analyze this spine MR image. Evaluate disc, nerve and structural abnormalities.",
	},
	"general": {
		domain.LanguageTurkish: "Bu CT/MR görüntüsünü analiz et ve bulgularını raporla.",
		domain.LanguageEnglish: "Analyze this CT/MR image and report your findings.",
	},
}

var fundusTemplates = templateSet{
	"diabetic_retinopathy": {
		domain.LanguageTurkish: "Bu fundus görüntüsünde diyabetik retinopati belirtileri var mı? Mikroanevrizma, hemoraji, eksuda varlığını değerlendir.",
		domain.LanguageEnglish: "Does this fundus image show signs of diabetic retinopathy? Evaluate for microaneurysms, hemorrhages and exudates.",
	},
	"glaucoma": {
		domain.LanguageTurkish: "Bu fundus görüntüsünde glokom belirtileri var mı? Optik disk cup/disc oranını ve sinir lifi tabakasını değerlendir.",
		domain.LanguageEnglish: "Does this fundus image show signs of glaucoma? Evaluate the optic disc cup/disc ratio and the nerve fiber layer.",
	},
	"macular": {
		domain.LanguageTurkish: "Bu fundus görüntüsünde makula dejenerasyonu belirtileri var mı? Drusen, pigment değişiklikleri değerlendir.",
		domain.LanguageEnglish: "Does this fundus image show signs of macular degeneration? Evaluate drusen and pigment changes.",
	},
	"general": {
		domain.LanguageTurkish: "Bu fundus/retina görüntüsünü analiz et ve bulgularını raporla.",
		domain.LanguageEnglish: "Analyze this fundus/retina image and report your findings.",
	},
}

var dermoTemplates = templateSet{
	"melanoma": {
		domain.LanguageTurkish: "Bu dermoskopi görüntüsünde melanom şüphesi var mı? ABCDE kriterlerini değerlendir.",
		domain.LanguageEnglish: "Is melanoma suspected in this dermoscopy image? Evaluate the ABCDE criteria.",
	},
	"benign_malign": {
		domain.LanguageTurkish: "Bu cilt lezyonu benign mi malign mi? Dermoskopik özellikleri analiz et.",
		domain.LanguageEnglish: "Is this skin lesion benign or malignant? Analyze its dermoscopic features.",
	},
	"psoriasis": {
		domain.LanguageTurkish: "Bu cilt görüntüsünde psoriazis belirtileri var mı? Tipik özellikleri değerlendir.",
		domain.LanguageEnglish: "Does this skin image show signs of psoriasis? Evaluate the typical features.",
	},
	"general": {
		domain.LanguageTurkish: "Bu dermatolojik görüntüyü analiz et ve bulgularını raporla.",
		domain.LanguageEnglish: "Analyze this dermatological image and report your findings.",
	},
}

var histoTemplates = templateSet{
	"cancer": {
		domain.LanguageTurkish: "Bu histopatoloji görüntüsünde kanser hücreleri var mı? Hücre morfolojisini değerlendir.",
		domain.LanguageEnglish: "Are there cancer cells in this histopathology image? Evaluate the cell morphology.",
	},
	"grading": {
		domain.LanguageTurkish: "Bu patoloji örneğinde tümör derecesi (grade) nedir? Histolojik özellikleri değerlendir.",
		domain.LanguageEnglish: "What is the tumor grade in this pathology sample? Evaluate the histological features.",
	},
	"margins": {
		domain.LanguageTurkish: "Bu patoloji örneğinde cerrahi sınırlar temiz mi? Tümör yayılımını değerlendir.",
		domain.LanguageEnglish: "Are the surgical margins clear in this pathology sample? Evaluate tumor extension.",
	},
	"general": {
		domain.LanguageTurkish: "Bu histopatoloji görüntüsünü analiz et ve bulgularını raporla.",
		domain.LanguageEnglish: "Analyze this histopathology image and report your findings.",
	},
}

var labTemplates = templateSet{
	"blood": {
		domain.LanguageTurkish: "Bu kan tahlili (hemogram) sonuçlarını oku ve yorumla. Normal değerlerin dışında olanları vurgula.",
		domain.LanguageEnglish: "Read and interpret these complete blood count results. Highlight values outside the normal range.",
	},
	"biochemistry": {
		domain.LanguageTurkish: "Bu biyokimya tetkik sonuçlarını oku ve yorumla. Anormal değerleri açıkla.",
		domain.LanguageEnglish: "Read and interpret these biochemistry results. Explain any abnormal values.",
	},
	"thyroid": {
		domain.LanguageTurkish: "Bu tiroid testi sonuçlarını oku ve yorumla. Tiroid fonksiyonunu değerlendir.",
		domain.LanguageEnglish: "Read and interpret these thyroid test results. Evaluate thyroid function.",
	},
	"lipid": {
		domain.LanguageTurkish: "Bu lipid profili sonuçlarını oku ve yorumla. Kardiyovasküler risk durumunu değerlendir.",
		domain.LanguageEnglish: "Read and interpret this lipid profile. Evaluate cardiovascular risk.",
	},
	"urine": {
		domain.LanguageTurkish: "Bu idrar tahlili sonuçlarını oku ve yorumla. Anormal bulguları açıkla.",
		domain.LanguageEnglish: "Read and interpret this urinalysis. Explain any abnormal findings.",
	},
	"general": {
		domain.LanguageTurkish: "Bu lab sonuçlarını oku, değerleri çıkar ve yorumla. Anormal olanları vurgula.",
		domain.LanguageEnglish: "Read these lab results, extract the values and interpret them. Highlight abnormal ones.",
	},
}

// Drug templates take the drug name as their only verb argument.
var drugTemplates = templateSet{
	"general": {
		domain.LanguageTurkish: "%s ilacı hakkında kullanım alanları, etki mekanizması ve önemli hususlar dahil kapsamlı bilgi ver.",
		domain.LanguageEnglish: "Provide comprehensive information about the drug %s, including its uses, mechanism of action, and important considerations.",
	},
	"interactions": {
		domain.LanguageTurkish: "%s için başlıca ilaç etkileşimleri nelerdir? Kontrendikasyonları ve birlikte kullanılmaması gereken ilaçları listele.",
		domain.LanguageEnglish: "What are the major drug interactions for %s? List contraindications and drugs that should not be combined.",
	},
	"side_effects": {
		domain.LanguageTurkish: "%s ilacının yaygın ve ciddi yan etkilerini listele ve açıkla.",
		domain.LanguageEnglish: "List and explain the common and serious side effects of %s.",
	},
	"dosage": {
		domain.LanguageTurkish: "%s için farklı hasta gruplarına yönelik standart dozaj önerileri nelerdir?",
		domain.LanguageEnglish: "What are the standard dosage recommendations for %s for different patient populations?",
	},
}

// defaultComparisonType applies when comparison_type is omitted. Unknown
// values still fall back to general.
const defaultComparisonType = "progression"

var comparisonTemplates = templateSet{
	"progression": {
		domain.LanguageTurkish: "Bu iki görüntüyü karşılaştır (ilki önceki, ikincisi sonraki). Hastalık progresyonu var mı? Değişiklikleri detaylı açıkla.",
		domain.LanguageEnglish: "Compare these two images (the first is earlier, the second is later). Is there disease progression? Describe the changes in detail.",
	},
	"treatment": {
		domain.LanguageTurkish: "Bu iki görüntüyü karşılaştır (ilki tedavi öncesi, ikincisi tedavi sonrası). Tedavi yanıtını değerlendir. İyileşme var mı?",
		domain.LanguageEnglish: "Compare these two images (the first is before treatment, the second after treatment). Evaluate the treatment response. Is there improvement?",
	},
	"general": {
		domain.LanguageTurkish: "Bu iki görüntüyü karşılaştır ve aralarındaki farkları açıkla.",
		domain.LanguageEnglish: "Compare these two images and describe the differences between them.",
	},
}

var comparisonAliases = map[string]string{
	"treatment-response": "treatment",
	"treatment_response": "treatment",
}

// Symptom prompt pieces. The patient line depends on which demographics
// were sent.
var symptomTemplates = struct {
	ageGender, age, gender, symptoms, steering localized
}{
	ageGender: localized{
		domain.LanguageTurkish: "Hasta: %d yaşında %s.",
		domain.LanguageEnglish: "Patient: %d year old %s.",
	},
	age: localized{
		domain.LanguageTurkish: "Hasta: %d yaşında.",
		domain.LanguageEnglish: "Patient: %d years old.",
	},
	gender: localized{
		domain.LanguageTurkish: "Hasta: %s.",
		domain.LanguageEnglish: "Patient: %s.",
	},
	symptoms: localized{
		domain.LanguageTurkish: "Semptomlar: ",
		domain.LanguageEnglish: "Symptoms: ",
	},
	steering: localized{
		domain.LanguageTurkish: "Ayırıcı tanı, aciliyet değerlendirmesi ve sonraki adımlar için öneriler sun.",
		domain.LanguageEnglish: "Provide a differential diagnosis, urgency assessment, and recommendations for next steps.",
	},
}
