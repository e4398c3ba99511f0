package analyzers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

// Properties is the family-independent view of document metadata.
type Properties struct {
	Creator        string
	LastModifiedBy string
	Created        string
	Modified       string
	LastPrinted    string
	Revision       string
	Title          string
	Subject        string
	Category       string
	Keywords       string
	Description    string
	ContentStatus  string

	Template    string
	Application string
	AppVersion  string
	Company     string
	Manager     string

	EditMinutes    int
	HasEditTime    bool
	Words          int
	Pages          int
	Slides         int
	HiddenSlides   int
	Paragraphs     int
	Lines          int
	Characters     int
	EditingCycles  string
	Custom         map[string]string
	customOrdering []string
}

// Map flattens the properties for storage. Empty values are omitted.
func (p *Properties) Map() map[string]string {
	out := make(map[string]string)
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	putInt := func(k string, v int) {
		if v > 0 {
			out[k] = strconv.Itoa(v)
		}
	}
	put("creator", p.Creator)
	put("last_modified_by", p.LastModifiedBy)
	put("created", p.Created)
	put("modified", p.Modified)
	put("last_printed", p.LastPrinted)
	put("revision", p.Revision)
	put("title", p.Title)
	put("subject", p.Subject)
	put("category", p.Category)
	put("keywords", p.Keywords)
	put("description", p.Description)
	put("content_status", p.ContentStatus)
	put("template", p.Template)
	put("application", p.Application)
	put("app_version", p.AppVersion)
	put("company", p.Company)
	put("manager", p.Manager)
	if p.HasEditTime {
		out["edit_minutes"] = strconv.Itoa(p.EditMinutes)
	}
	putInt("words", p.Words)
	putInt("pages", p.Pages)
	putInt("slides", p.Slides)
	putInt("hidden_slides", p.HiddenSlides)
	putInt("paragraphs", p.Paragraphs)
	putInt("lines", p.Lines)
	putInt("characters", p.Characters)
	for k, v := range p.Custom {
		put("custom:"+k, v)
	}
	return out
}

// Metadata normalizes OOXML and ODF document properties.
type Metadata struct {
	H Heuristics
}

func (Metadata) Name() string { return "metadata" }

func (m Metadata) Analyze(ctx context.Context, c *container.Container, r *Report) error {
	p := &Properties{Custom: make(map[string]string)}
	if c.Family().IsODF() {
		readODFMeta(c.XML("meta.xml"), p)
	} else {
		readCore(c.XML("docProps/core.xml"), p)
		readApp(c.XML("docProps/app.xml"), p)
		readCustom(c.XML("docProps/custom.xml"), p)
	}
	r.Properties = p

	lines := []struct{ label, value string }{
		{"Author", p.Creator},
		{"Last modified by", p.LastModifiedBy},
		{"Created", FormatTimestamp(p.Created)},
		{"Modified", FormatTimestamp(p.Modified)},
		{"Last printed", FormatTimestamp(p.LastPrinted)},
		{"Revision", p.Revision},
		{"Title", p.Title},
		{"Subject", p.Subject},
		{"Keywords", p.Keywords},
		{"Template", p.Template},
		{"Application", p.Application},
		{"Company", p.Company},
		{"Manager", p.Manager},
	}
	for _, l := range lines {
		if l.value != "" {
			r.Add(m.Name(), models.SeverityInfo, l.label+": "+l.value)
		}
	}
	if v := officeVersion(p.AppVersion); v != "" {
		r.Add(m.Name(), models.SeverityInfo, fmt.Sprintf("Application version %s (%s)", p.AppVersion, v))
	}
	if p.HasEditTime {
		r.Add(m.Name(), models.SeverityInfo, fmt.Sprintf("Total editing time: %d minute(s)", p.EditMinutes))
	}
	for _, k := range p.customOrdering {
		r.Add(m.Name(), models.SeverityInfo, fmt.Sprintf("Custom property %s: %s", k, p.Custom[k]), "name", k)
	}

	if p.HasEditTime && p.EditMinutes <= m.H.VelocityMaxMinutes && p.Words > m.H.VelocityMinWords {
		r.Flag(m.Name(), models.SeverityWarning, "HIGH VELOCITY",
			fmt.Sprintf("%d words written in %d minute(s): content was pasted or generated", p.Words, p.EditMinutes),
			"words", strconv.Itoa(p.Words), "minutes", strconv.Itoa(p.EditMinutes))
	}
	return nil
}

func readCore(doc *etree.Document, p *Properties) {
	if doc == nil {
		return
	}
	root := doc.Root()
	p.Creator = childText(root, "creator")
	p.LastModifiedBy = childText(root, "lastModifiedBy")
	p.Created = childText(root, "created")
	p.Modified = childText(root, "modified")
	p.LastPrinted = childText(root, "lastPrinted")
	p.Revision = childText(root, "revision")
	p.Title = childText(root, "title")
	p.Subject = childText(root, "subject")
	p.Category = childText(root, "category")
	p.Keywords = childText(root, "keywords")
	p.Description = childText(root, "description")
	p.ContentStatus = childText(root, "contentStatus")
}

func readApp(doc *etree.Document, p *Properties) {
	if doc == nil {
		return
	}
	root := doc.Root()
	p.Template = childText(root, "Template")
	p.Application = childText(root, "Application")
	p.AppVersion = childText(root, "AppVersion")
	p.Company = childText(root, "Company")
	p.Manager = childText(root, "Manager")

	if v := childText(root, "TotalTime"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.EditMinutes, p.HasEditTime = n, true
		}
	}
	p.Words = atoi(childText(root, "Words"))
	p.Pages = atoi(childText(root, "Pages"))
	p.Slides = atoi(childText(root, "Slides"))
	p.HiddenSlides = atoi(childText(root, "HiddenSlides"))
	p.Paragraphs = atoi(childText(root, "Paragraphs"))
	p.Lines = atoi(childText(root, "Lines"))
	p.Characters = atoi(childText(root, "Characters"))
}

func readCustom(doc *etree.Document, p *Properties) {
	for _, prop := range find(doc, "property") {
		name := attr(prop, "name")
		if name == "" {
			continue
		}
		var value string
		if kids := prop.ChildElements(); len(kids) > 0 {
			value = strings.TrimSpace(kids[0].Text())
		}
		p.setCustom(name, value)
	}
}

func readODFMeta(doc *etree.Document, p *Properties) {
	metas := find(doc, "meta")
	if len(metas) == 0 {
		return
	}
	// office:meta is the container; the root is office:document-meta.
	var meta *etree.Element
	for _, e := range metas {
		if e.Space == "office" || len(e.ChildElements()) > 0 {
			meta = e
			break
		}
	}
	if meta == nil {
		return
	}

	p.Application = childText(meta, "generator")
	p.Created = childText(meta, "creation-date")
	p.Modified = childText(meta, "date")
	p.Creator = childText(meta, "initial-creator")
	p.LastModifiedBy = childText(meta, "creator")
	if p.Creator == "" {
		p.Creator = p.LastModifiedBy
	}
	p.LastPrinted = childText(meta, "print-date")
	p.Title = childText(meta, "title")
	p.Subject = childText(meta, "subject")
	p.Description = childText(meta, "description")
	p.Keywords = childText(meta, "keyword")
	p.EditingCycles = childText(meta, "editing-cycles")
	p.Revision = p.EditingCycles

	if d := childText(meta, "editing-duration"); d != "" {
		if n, ok := ParseISODuration(d); ok {
			p.EditMinutes, p.HasEditTime = n, true
		}
	}
	if tpl := child(meta, "template"); tpl != nil {
		p.Template = attr(tpl, "href")
		if p.Template == "" {
			p.Template = attr(tpl, "title")
		}
	}
	if stats := child(meta, "document-statistic"); stats != nil {
		p.Words = atoi(attr(stats, "word-count"))
		p.Pages = atoi(attr(stats, "page-count"))
		p.Paragraphs = atoi(attr(stats, "paragraph-count"))
		p.Characters = atoi(attr(stats, "character-count"))
	}
	for _, ud := range descendants(meta, "user-defined") {
		p.setCustom(attr(ud, "name"), strings.TrimSpace(ud.Text()))
	}
}

func (p *Properties) setCustom(name, value string) {
	if name == "" {
		return
	}
	if _, ok := p.Custom[name]; !ok {
		p.customOrdering = append(p.customOrdering, name)
	}
	p.Custom[name] = value
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

var officeVersions = map[string]string{
	"11": "Office 2003",
	"12": "Office 2007",
	"14": "Office 2010",
	"15": "Office 2013",
	"16": "Office 2016/2019/365",
}

func officeVersion(appVersion string) string {
	major, _, _ := strings.Cut(strings.TrimSpace(appVersion), ".")
	return officeVersions[major]
}

// Temporal checks document timestamps against each other and the clock.
type Temporal struct {
	H   Heuristics
	Now func() time.Time
}

func (Temporal) Name() string { return "temporal" }

func (t Temporal) Analyze(ctx context.Context, c *container.Container, r *Report) error {
	p := r.Properties
	if p == nil {
		return nil
	}
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	limit := now().Add(time.Duration(t.H.FutureSkewHours) * time.Hour)

	stamps := []struct{ label, value string }{
		{"created", p.Created},
		{"modified", p.Modified},
		{"last printed", p.LastPrinted},
	}
	parsed := make(map[string]time.Time)
	zones := make(map[string]bool)
	for _, s := range stamps {
		ts, zoned, ok := ParseTimestamp(s.value)
		if !ok {
			continue
		}
		parsed[s.label] = ts
		if zoned {
			_, offset := ts.Zone()
			zones[formatOffset(offset)] = true
		}
		if ts.After(limit) {
			r.Flag(t.Name(), models.SeverityDanger, "TEMPORAL ANOMALY",
				fmt.Sprintf("Timestamp %s is in the future: %s", s.label, FormatTimestamp(s.value)))
		}
	}

	created, hasCreated := parsed["created"]
	modified, hasModified := parsed["modified"]
	if hasCreated && hasModified && modified.Before(created) {
		r.Flag(t.Name(), models.SeverityWarning, "TEMPORAL ANOMALY",
			fmt.Sprintf("Modified (%s) precedes created (%s)", modified.Format(DisplayLayout), created.Format(DisplayLayout)))
	}

	if len(zones) > 1 {
		names := make([]string, 0, len(zones))
		for z := range zones {
			names = append(names, z)
		}
		sort.Strings(names)
		r.Add(t.Name(), models.SeverityWarning, "Timestamps carry different time zones: "+strings.Join(names, ", "))
	} else if len(zones) == 1 {
		for z := range zones {
			if z != "+0000" {
				r.Add(t.Name(), models.SeverityInfo, "Timestamps carry local time zone "+z, "zone", z)
			}
		}
	}
	return nil
}

func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("%c%02d%02d", sign, seconds/3600, (seconds%3600)/60)
}
