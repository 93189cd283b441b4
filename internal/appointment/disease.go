package appointment

// GeneralMedicine is the fallback specialty matched by any disease without a
// dedicated mapping.
const GeneralMedicine = "GENERAL_MEDICINE"

// specialtyByDisease maps a patient's recorded disease to the doctor
// specialty required to treat it.
var specialtyByDisease = map[string]string{
	"DIABETES":                  "ENDOCRINOLOGY",
	"HYPERTENSION":              "CARDIOLOGY",
	"ASTHMA":                    "PULMONOLOGY",
	"HEART_DISEASE":             "CARDIOLOGY",
	"ARTHRITIS":                 "ORTHOPEDICS",
	"CANCER":                    "ONCOLOGY",
	"TUBERCULOSIS":              "PULMONOLOGY",
	"COVID_19":                  "PULMONOLOGY",
	"PNEUMONIA":                 "PULMONOLOGY",
	"MALARIA":                   GeneralMedicine,
	"DENGUE":                    GeneralMedicine,
	"TYPHOID":                   GeneralMedicine,
	"KIDNEY_DISEASE":            "NEPHROLOGY",
	"LIVER_DISEASE":             "GASTROENTEROLOGY",
	"THYROID_DISORDER":          "ENDOCRINOLOGY",
	"MENTAL_HEALTH_DISORDER":    "PSYCHIATRY",
	"SKIN_DISEASE":              "DERMATOLOGY",
	"EYE_DISEASE":               "OPHTHALMOLOGY",
	"ENT_DISORDER":              "ENT",
	"NEUROLOGICAL_DISORDER":     "NEUROLOGY",
	"GASTROINTESTINAL_DISORDER": "GASTROENTEROLOGY",
	"RESPIRATORY_DISORDER":      "PULMONOLOGY",
	"BONE_FRACTURE":             "ORTHOPEDICS",
	"OTHER":                     GeneralMedicine,
}

// RequiredSpecialty returns the specialty treating the disease. Unknown
// diseases fall back to general medicine rather than blocking the booking.
func RequiredSpecialty(disease string) string {
	if s, ok := specialtyByDisease[disease]; ok {
		return s
	}
	return GeneralMedicine
}

// SpecialtyMatches reports whether a doctor with the given specialty can
// treat the disease. General practitioners accept every case.
func SpecialtyMatches(disease, doctorSpecialty string) bool {
	if doctorSpecialty == GeneralMedicine {
		return true
	}
	return RequiredSpecialty(disease) == doctorSpecialty
}
