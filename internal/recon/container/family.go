package container

import "strings"

// Family is the closed set of document kinds the analyzers understand.
type Family int

const (
	Unknown Family = iota
	DOCX
	XLSX
	PPTX
	ODT
	ODS
	ODP
)

var familyNames = map[Family]string{
	Unknown: "UNKNOWN",
	DOCX:    "DOCX",
	XLSX:    "XLSX",
	PPTX:    "PPTX",
	ODT:     "ODT",
	ODS:     "ODS",
	ODP:     "ODP",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsOOXML reports whether f is an Office Open XML family.
func (f Family) IsOOXML() bool {
	return f == DOCX || f == XLSX || f == PPTX
}

// IsODF reports whether f is an OpenDocument family.
func (f Family) IsODF() bool {
	return f == ODT || f == ODS || f == ODP
}

// ParseFamily is the inverse of String. Unrecognized names map to Unknown.
func ParseFamily(name string) Family {
	for f, n := range familyNames {
		if strings.EqualFold(n, name) {
			return f
		}
	}
	return Unknown
}

// Marker entries, checked in this order. The first hit wins.
var ooxmlMarkers = []struct {
	entry  string
	family Family
}{
	{"word/document.xml", DOCX},
	{"xl/workbook.xml", XLSX},
	{"ppt/presentation.xml", PPTX},
}

// DetectFamily classifies a container from its entry names and the content of
// its ODF mimetype entry (empty when absent).
func DetectFamily(has func(name string) bool, mimetype string) Family {
	for _, m := range ooxmlMarkers {
		if has(m.entry) {
			return m.family
		}
	}

	mt := strings.ToLower(strings.TrimSpace(mimetype))
	switch {
	case mt == "":
		return Unknown
	case strings.Contains(mt, "spreadsheet"):
		return ODS
	case strings.Contains(mt, "presentation"):
		return ODP
	case strings.Contains(mt, "text"):
		return ODT
	}
	return Unknown
}
