package constants

// Required top-level sections the structured analysis must contain.
var RequiredSections = []string{"identification", "technical_specifications"}

// Identification fields counted toward identification completeness.
var IdentificationFields = []string{"name", "code", "category", "application"}

// RequiredChecklist drives data_completeness: field-path -> present check.
// Paths are dot-separated into the structured data object.
var RequiredChecklist = []string{
	"identification.name",
	"identification.code",
	"technical_specifications.thermal_conductivity",
	"technical_specifications.fire_classification",
}

// TableKeywords is the domain-plausibility vocabulary for table scoring.
// Mixed Hungarian/English: datasheets from local distributors interleave both.
var TableKeywords = []string{
	// units
	"w/mk", "w/(m·k)", "kg/m³", "kg/m3", "mm", "kpa", "mpa", "m²k/w", "db",
	// standard codes and classes
	"en 13162", "en 13501", "a1", "a2", "msz", "ce",
	// english terms
	"thermal conductivity", "fire class", "density", "compressive strength",
	"thickness", "lambda", "reaction to fire", "tensile strength",
	// hungarian terms
	"hővezetési", "tűzvédelmi", "testsűrűség", "vastagság", "nyomószilárdság",
	"páradiffúziós", "olvadáspont", "hőszigetelés",
}

// TableKeywordMinHits is the plausibility threshold; below it the candidate's
// score is multiplied by TableImplausiblePenalty instead of being dropped.
const (
	TableKeywordMinHits     = 3
	TableImplausiblePenalty = 0.5
)
