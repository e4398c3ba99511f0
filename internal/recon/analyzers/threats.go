package analyzers

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

// Threats inspects external relationships and active content. Nothing is
// fetched or executed.
type Threats struct{}

func (Threats) Name() string { return "threats" }

func (t Threats) Analyze(ctx context.Context, c *container.Container, r *Report) error {
	if c.Family().IsOOXML() || c.Family() == container.Unknown {
		t.relationships(c, r)
	}
	t.macros(c, r)
	t.dde(c, r)
	return nil
}

func (t Threats) relationships(c *container.Container, r *Report) {
	external := 0
	for _, part := range c.List("", ".rels") {
		doc := c.XML(part)
		for _, rel := range find(doc, "Relationship") {
			if !strings.EqualFold(attr(rel, "TargetMode"), "External") {
				continue
			}
			external++
			target := attr(rel, "Target")
			relType := path.Base(attr(rel, "Type"))

			switch {
			case strings.EqualFold(relType, "attachedTemplate"):
				r.Flag(t.Name(), models.SeverityDanger, "INJECTION",
					"Remote template injection: "+target,
					"part", part, "type", relType, "target", target)
			case strings.Contains(strings.ToLower(target), "http"):
				r.Add(t.Name(), models.SeverityInfo,
					fmt.Sprintf("External link (%s): %s", relType, target),
					"part", part, "type", relType, "target", target)
			default:
				r.Add(t.Name(), models.SeverityWarning,
					fmt.Sprintf("External reference (%s): %s", relType, target),
					"part", part, "type", relType, "target", target)
				if strings.HasPrefix(target, `\\`) || strings.HasPrefix(strings.ToLower(target), "file://") {
					r.AddTag("UNC PATH")
				}
			}
		}
	}
	if external == 0 && c.Family().IsOOXML() {
		r.Add(t.Name(), models.SeveritySuccess, "No external relationships")
	}
}

func (t Threats) macros(c *container.Container, r *Report) {
	for _, name := range c.Entries() {
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, "vbaproject.bin") {
			r.Flag(t.Name(), models.SeverityDanger, "MACROS", "VBA macro project present: "+name, "part", name)
		}
		if strings.Contains(lower, "activex/") && strings.HasSuffix(lower, ".xml") {
			r.Flag(t.Name(), models.SeverityWarning, "ACTIVEX", "ActiveX control: "+name, "part", name)
		}
	}

	if ct, err := c.Bytes("[Content_Types].xml"); err == nil && strings.Contains(strings.ToLower(string(ct)), "macroenabled") {
		r.Flag(t.Name(), models.SeverityDanger, "MACROS", "Content types declare a macro-enabled document")
	}

	if !c.Family().IsODF() {
		return
	}
	for _, name := range c.List("Basic/", ".xml") {
		if strings.HasSuffix(strings.ToLower(name), "script-lc.xml") || strings.HasSuffix(strings.ToLower(name), "script-lb.xml") {
			continue
		}
		r.Flag(t.Name(), models.SeverityDanger, "MACROS", "Basic macro module: "+name, "part", name)
	}
	for _, entry := range find(c.XML("META-INF/manifest.xml"), "file-entry") {
		mt := attr(entry, "media-type")
		if strings.Contains(strings.ToLower(mt), "script") {
			r.Flag(t.Name(), models.SeverityDanger, "MACROS",
				fmt.Sprintf("Manifest script entry %s (%s)", attr(entry, "full-path"), mt))
		}
	}
	for _, ev := range find(c.XML("content.xml"), "event-listener") {
		if href := attr(ev, "href"); href != "" {
			r.Flag(t.Name(), models.SeverityDanger, "MACROS",
				fmt.Sprintf("Event %s bound to %s", attr(ev, "event-name"), href))
		}
	}
}

// dde looks for dynamic data exchange fields in word documents.
func (t Threats) dde(c *container.Container, r *Report) {
	if c.Family() != container.DOCX {
		return
	}
	doc := c.XML("word/document.xml")
	for _, e := range append(find(doc, "instrText"), find(doc, "fldSimple")...) {
		code := e.Text()
		if e.Tag == "fldSimple" {
			code = attr(e, "instr")
		}
		upper := strings.ToUpper(strings.TrimSpace(code))
		if strings.HasPrefix(upper, "DDE") {
			r.Flag(t.Name(), models.SeverityDanger, "DDE", "DDE field: "+truncate(code, 120))
		}
	}
}
