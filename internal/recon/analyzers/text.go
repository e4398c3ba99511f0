package analyzers

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/beevik/etree"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	uncRe   = regexp.MustCompile(`\\\\[A-Za-z0-9_.$\-]+\\[^\s"<>|]+`)
	ipv4Re  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// maxPatternHits caps the findings per pattern kind.
const maxPatternHits = 25

// ForensicText searches the visible text of a document for e-mail addresses,
// UNC paths and IPv4 addresses.
type ForensicText struct{}

func (ForensicText) Name() string { return "text" }

func (a ForensicText) Analyze(ctx context.Context, c *container.Container, r *Report) error {
	var sb strings.Builder
	for _, part := range textParts(c) {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := c.XML(part)
		if doc == nil {
			continue
		}
		blockText(&sb, doc.Root())
		// Formulas and attribute values carry addresses too.
		for _, cell := range find(doc, "table-cell") {
			sb.WriteString(attr(cell, "formula"))
			sb.WriteByte('\n')
		}
	}
	text := sb.String()

	a.report(r, "E-mail address", "", emailRe.FindAllString(text, -1), nil)
	a.report(r, "UNC path", "UNC PATH", uncRe.FindAllString(text, -1), nil)
	a.report(r, "IP address", "", ipv4Re.FindAllString(text, -1), func(s string) bool {
		ip := net.ParseIP(s)
		return ip != nil && !ip.IsUnspecified()
	})
	return nil
}

func (a ForensicText) report(r *Report, label, tag string, matches []string, valid func(string) bool) {
	seen := make(map[string]bool)
	for _, m := range matches {
		if seen[m] || (valid != nil && !valid(m)) {
			continue
		}
		seen[m] = true
		if len(seen) > maxPatternHits {
			r.Add(a.Name(), models.SeverityInfo, fmt.Sprintf("More %s matches omitted", strings.ToLower(label)))
			return
		}
		sev := models.SeverityInfo
		if tag == "UNC PATH" {
			sev = models.SeverityWarning
		}
		if tag != "" {
			r.Flag(a.Name(), sev, tag, label+": "+m, "match", m)
		} else {
			r.Add(a.Name(), sev, label+": "+m, "match", m)
		}
	}
}

// Elements that end a line of text in the rendered document.
var blockElements = map[string]bool{"p": true, "br": true, "tab": true, "tc": true, "c": true, "si": true, "table-cell": true, "h": true}

// blockText writes the character data below e, breaking lines at block
// boundaries so adjacent paragraphs do not run together.
func blockText(sb *strings.Builder, e *etree.Element) {
	for _, tok := range e.Child {
		switch v := tok.(type) {
		case *etree.CharData:
			sb.WriteString(v.Data)
		case *etree.Element:
			blockText(sb, v)
			if blockElements[v.Tag] {
				sb.WriteByte('\n')
			}
		}
	}
}

// textParts lists the parts that hold user-visible text for a family.
func textParts(c *container.Container) []string {
	switch c.Family() {
	case container.DOCX:
		parts := []string{"word/document.xml", "word/comments.xml", "word/footnotes.xml", "word/endnotes.xml"}
		parts = append(parts, c.List("word/header", ".xml")...)
		return append(parts, c.List("word/footer", ".xml")...)
	case container.XLSX:
		parts := []string{"xl/sharedStrings.xml"}
		parts = append(parts, c.List("xl/worksheets/sheet", ".xml")...)
		return append(parts, c.List("xl/comments", ".xml")...)
	case container.PPTX:
		parts := c.List("ppt/slides/slide", ".xml")
		return append(parts, c.List("ppt/notesSlides/notesSlide", ".xml")...)
	case container.ODT, container.ODS, container.ODP:
		return []string{"content.xml", "styles.xml"}
	}
	return nil
}
