package analyzers

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/h2non/filetype"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

var knownSchemaHosts = []string{
	"schemas.openxmlformats.org",
	"schemas.microsoft.com",
	"purl.org",
	"www.w3.org",
}

var macFonts = map[string]bool{
	"helvetica neue": true,
	"menlo":          true,
	"lucida grande":  true,
	"monaco":         true,
	"geneva":         true,
	"avenir next":    true,
	"san francisco":  true,
}

// Artifacts looks for secondary parts that reveal where and how a file was
// produced: glossary documents, printer settings, custom XML schemas,
// thumbnails and platform fingerprints.
type Artifacts struct{}

func (Artifacts) Name() string { return "artifacts" }

func (a Artifacts) Analyze(ctx context.Context, c *container.Container, r *Report) error {
	if c.Has("word/glossary/document.xml") {
		r.Add(a.Name(), models.SeverityInfo, "Glossary part (building blocks) is embedded", "part", "word/glossary/document.xml")
	}

	a.printers(c, r)
	a.customXML(c, r)
	a.thumbnail(c, r)
	a.platform(c, r)
	return nil
}

// printers reads the device name from DEVMODE records.
func (a Artifacts) printers(c *container.Container, r *Report) {
	for _, name := range c.Entries() {
		if !strings.Contains(strings.ToLower(name), "printersettings") {
			continue
		}
		data, err := c.Bytes(name)
		if err != nil {
			continue
		}
		msg := "Printer settings stored: " + path.Base(name)
		// dmDeviceName is the first 32 UTF-16 characters of DEVMODEW.
		if len(data) >= 64 {
			if dev := utf16String(data[:64]); dev != "" {
				msg += " (printer: " + dev + ")"
				r.Add(a.Name(), models.SeverityWarning, msg, "part", name, "printer", dev)
				continue
			}
		}
		r.Add(a.Name(), models.SeverityWarning, msg, "part", name)
	}
}

func (a Artifacts) customXML(c *container.Container, r *Report) {
	seen := make(map[string]bool)
	for _, part := range c.List("customXml/item", ".xml") {
		if strings.Contains(strings.ToLower(part), "props") {
			continue
		}
		doc := c.XML(part)
		if doc == nil {
			continue
		}
		for _, ns := range namespaces(doc.Root()) {
			if seen[ns] {
				continue
			}
			seen[ns] = true
			if strings.Contains(ns, "schemas.microsoft.com/office/2006/metadata/properties") ||
				strings.Contains(strings.ToLower(ns), "sharepoint") {
				r.Add(a.Name(), models.SeverityInfo, "SharePoint document library metadata present", "namespace", ns)
				continue
			}
			if !knownSchema(ns) {
				r.Add(a.Name(), models.SeverityInfo, "Third-party custom XML schema: "+ns, "namespace", ns)
			}
		}
	}
	if r.Properties != nil {
		if _, ok := r.Properties.Custom["ContentTypeId"]; ok {
			r.Add(a.Name(), models.SeverityInfo, "SharePoint content type id in custom properties")
		}
	}
}

func knownSchema(ns string) bool {
	for _, host := range knownSchemaHosts {
		if strings.Contains(ns, host) {
			return true
		}
	}
	return false
}

func (a Artifacts) thumbnail(c *container.Container, r *Report) {
	candidates := append(c.List("docProps/thumbnail", ""), c.List("Thumbnails/", "")...)
	for _, name := range candidates {
		data, err := c.Bytes(name)
		if err != nil {
			continue
		}
		kind := "unknown"
		if t, err := filetype.Match(data); err == nil && t != filetype.Unknown {
			kind = t.Extension
		}
		r.Add(a.Name(), models.SeverityInfo,
			fmt.Sprintf("Preview thumbnail %s (%s, %s) may show an earlier state of the document", name, kind, humanize.Bytes(uint64(len(data)))),
			"part", name)
	}
}

func (a Artifacts) platform(c *container.Container, r *Report) {
	macEntries := 0
	for _, name := range c.Entries() {
		if strings.HasPrefix(name, "__MACOSX/") || path.Base(name) == ".DS_Store" {
			macEntries++
		}
	}
	if macEntries > 0 {
		r.Flag(a.Name(), models.SeverityWarning, "MACOS",
			fmt.Sprintf("%d macOS archive artifact(s) (__MACOSX, .DS_Store): package was re-zipped on a Mac", macEntries))
	}

	for _, part := range c.List("", ".rels") {
		data, err := c.Bytes(part)
		if err != nil {
			continue
		}
		if strings.Contains(string(data), "file:///Users/") {
			r.Flag(a.Name(), models.SeverityInfo, "MACOS", "macOS user path in relationships of "+part, "part", part)
		}
	}

	var fonts []string
	for _, f := range find(c.XML("word/fontTable.xml"), "font") {
		if name := attr(f, "name"); macFonts[strings.ToLower(name)] {
			fonts = append(fonts, name)
		}
	}
	if len(fonts) > 0 {
		r.Add(a.Name(), models.SeverityInfo, "macOS system fonts referenced: "+strings.Join(fonts, ", "))
	}

	if r.Properties != nil && strings.Contains(strings.ToLower(r.Properties.Application), "macintosh") {
		r.Add(a.Name(), models.SeverityInfo, "Saved by a macOS build: "+r.Properties.Application)
	}
}
