// Package testdocs builds small synthetic document packages for tests.
package testdocs

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

const (
	NSWord = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
		`xmlns:w14="http://schemas.microsoft.com/office/word/2010/wordml" ` +
		`xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" ` +
		`xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006" ` +
		`xmlns:wps="http://schemas.microsoft.com/office/word/2010/wordprocessingShape"`
	NSSheet = `xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`
	NSPresentation = `xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" ` +
		`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`
	NSOffice = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" ` +
		`xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" ` +
		`xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" ` +
		`xmlns:draw="urn:oasis:names:tc:opendocument:xmlns:drawing:1.0" ` +
		`xmlns:presentation="urn:oasis:names:tc:opendocument:xmlns:presentation:1.0" ` +
		`xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" ` +
		`xmlns:meta="urn:oasis:names:tc:opendocument:xmlns:meta:1.0"`
)

// Parts maps member names to contents.
type Parts map[string]string

// Zip serializes parts into a zip archive. Members are written in sorted
// order with the ODF mimetype first when present.
func Zip(t testing.TB, parts Parts) []byte {
	t.Helper()

	names := make([]string, 0, len(parts))
	for name := range parts {
		if name != "mimetype" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := parts["mimetype"]; ok {
		names = append([]string{"mimetype"}, names...)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(parts[name])); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// Write stores the zip built from parts at dir/name and returns its path.
func Write(t testing.TB, dir, name string, parts Parts) string {
	t.Helper()
	return WriteRaw(t, dir, name, Zip(t, parts))
}

// WriteRaw stores data at dir/name and returns its path.
func WriteRaw(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Document wraps body XML in a word/document.xml root.
func Document(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document ` + NSWord + `><w:body>` + body + `</w:body></w:document>`
}

// Paragraph returns a plain paragraph with an rsidR attribute when rsid is set.
func Paragraph(rsid, text string) string {
	attr := ""
	if rsid != "" {
		attr = fmt.Sprintf(` w:rsidR="%s"`, rsid)
	}
	return fmt.Sprintf(`<w:p%s><w:r><w:t>%s</w:t></w:r></w:p>`, attr, text)
}

// Settings returns a word/settings.xml declaring rsids and, when compat is
// set, a compatibilityMode setting.
func Settings(rsids []string, compat string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:settings ` + NSWord + `>`)
	if compat != "" {
		sb.WriteString(`<w:compat><w:compatSetting w:name="compatibilityMode" w:uri="http://schemas.microsoft.com/office/word" w:val="` + compat + `"/></w:compat>`)
	}
	if len(rsids) > 0 {
		sb.WriteString(`<w:rsids><w:rsidRoot w:val="` + rsids[0] + `"/>`)
		for _, r := range rsids {
			sb.WriteString(`<w:rsid w:val="` + r + `"/>`)
		}
		sb.WriteString(`</w:rsids>`)
	}
	sb.WriteString(`<w:themeFontLang w:val="en-US"/></w:settings>`)
	return sb.String()
}

// Core returns a docProps/core.xml with the given creator and last modifier.
func Core(creator, lastModifiedBy, created, modified string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:creator>` + creator + `</dc:creator>` +
		`<cp:lastModifiedBy>` + lastModifiedBy + `</cp:lastModifiedBy>` +
		`<cp:revision>3</cp:revision>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + created + `</dcterms:created>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + modified + `</dcterms:modified>` +
		`</cp:coreProperties>`
}

// App returns a docProps/app.xml with the given extra child elements.
func App(children string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">` +
		`<Application>Microsoft Office Word</Application><AppVersion>16.0000</AppVersion>` +
		children + `</Properties>`
}

// DOCX returns the minimal parts of a word package with the given body.
func DOCX(body string) Parts {
	return Parts{
		"[Content_Types].xml": `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`,
		"_rels/.rels": Rels(),
		"word/document.xml": Document(body),
	}
}

// Rels returns a relationships part holding the given Relationship elements.
func Rels(relationships ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		strings.Join(relationships, "") + `</Relationships>`
}

// XLSX returns the minimal parts of a workbook with the given sheet elements
// and one worksheet body per sheet.
func XLSX(sheets string, worksheets ...string) Parts {
	parts := Parts{
		"[Content_Types].xml": `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"xl/workbook.xml": `<?xml version="1.0"?><workbook ` + NSSheet + `><sheets>` + sheets + `</sheets></workbook>`,
	}
	for i, ws := range worksheets {
		parts[fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1)] =
			`<?xml version="1.0"?><worksheet ` + NSSheet + `>` + ws + `</worksheet>`
	}
	return parts
}

// PPTX returns the minimal parts of a presentation.
func PPTX() Parts {
	return Parts{
		"[Content_Types].xml":  `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"ppt/presentation.xml": `<?xml version="1.0"?><p:presentation ` + NSPresentation + `/>`,
	}
}

// ODF returns the minimal parts of an OpenDocument package.
func ODF(mimetype, body string) Parts {
	return Parts{
		"mimetype": mimetype,
		"content.xml": `<?xml version="1.0" encoding="UTF-8"?><office:document-content ` + NSOffice + `>` +
			body + `</office:document-content>`,
		"META-INF/manifest.xml": `<?xml version="1.0"?><manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0">` +
			`<manifest:file-entry manifest:full-path="/" manifest:media-type="` + mimetype + `"/></manifest:manifest>`,
	}
}

// Merge copies all parts from extra into base and returns base.
func (p Parts) Merge(extra Parts) Parts {
	for k, v := range extra {
		p[k] = v
	}
	return p
}
