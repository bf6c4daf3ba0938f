package constants

import "strings"

// DocumentType is the coarse document classification used for expert routing.
type DocumentType string

const (
	DocTypeDatasheet   DocumentType = "DATASHEET"
	DocTypePriceList   DocumentType = "PRICE_LIST"
	DocTypeDeclaration DocumentType = "DECLARATION" // DoP / performance declaration
	DocTypeBrochure    DocumentType = "BROCHURE"
	DocTypeUnknown     DocumentType = "UNKNOWN"
)

// NormalizeManufacturer canonicalizes a manufacturer hint for matcher equality.
func NormalizeManufacturer(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeDocType maps free-form document-type hints onto the canonical set.
func NormalizeDocType(s string) DocumentType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "datasheet", "data sheet", "technical datasheet", "adatlap", "műszaki adatlap":
		return DocTypeDatasheet
	case "price list", "pricelist", "árlista":
		return DocTypePriceList
	case "declaration", "dop", "declaration of performance", "teljesítménynyilatkozat":
		return DocTypeDeclaration
	case "brochure", "catalog", "catalogue", "prospektus":
		return DocTypeBrochure
	default:
		return DocTypeUnknown
	}
}
