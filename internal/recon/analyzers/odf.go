package analyzers

import (
	"context"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

// OpenDocument analyzes ODT, ODS and ODP packages.
type OpenDocument struct{}

func (OpenDocument) Name() string { return "odf" }

func (a OpenDocument) Analyze(ctx context.Context, c *container.Container, r *Report) error {
	content := c.XML("content.xml")
	styles := c.XML("styles.xml")

	a.trackedChanges(content, r)
	a.annotations(content, r)
	a.versions(c, r)

	for _, sec := range find(content, "section") {
		if attr(sec, "protected") == "true" {
			r.Add(a.Name(), models.SeverityInfo, fmt.Sprintf("Protected section %q", attr(sec, "name")))
		}
		if attr(sec, "display") == "none" {
			r.Flag(a.Name(), models.SeverityWarning, "HIDDEN TEXT",
				fmt.Sprintf("Hidden section %q: %s", attr(sec, "name"), truncate(allText(sec), 120)))
		}
	}

	switch c.Family() {
	case container.ODT:
		a.text(content, r)
	case container.ODS:
		a.spreadsheet(content, styles, r)
	case container.ODP:
		a.presentation(content, styles, r)
	}
	return nil
}

func (a OpenDocument) trackedChanges(content *etree.Document, r *Report) {
	for _, region := range find(content, "changed-region") {
		for _, change := range region.ChildElements() {
			info := child(change, "change-info")
			author := childText(info, "creator")
			date := FormatTimestamp(childText(info, "date"))

			switch change.Tag {
			case "insertion":
				r.Flag(a.Name(), models.SeverityWarning, "TRACK CHANGES",
					fmt.Sprintf("Tracked insertion by %s at %s", author, date), "author", author)
			case "deletion":
				var removed []string
				for _, p := range descendants(change, "p") {
					removed = append(removed, allText(p))
				}
				deleted := strings.TrimSpace(strings.Join(removed, " "))
				msg := fmt.Sprintf("Tracked deletion by %s at %s", author, date)
				if deleted != "" {
					msg += fmt.Sprintf(": %q", truncate(deleted, 200))
				}
				r.Flag(a.Name(), models.SeverityWarning, "TRACK CHANGES", msg, "author", author, "text", deleted)
			case "format-change":
				r.Add(a.Name(), models.SeverityInfo, fmt.Sprintf("Tracked format change by %s at %s", author, date))
			}
		}
	}
}

func (a OpenDocument) annotations(content *etree.Document, r *Report) {
	for _, ann := range find(content, "annotation") {
		author := childText(ann, "creator")
		date := FormatTimestamp(childText(ann, "date"))
		var parts []string
		for _, p := range descendants(ann, "p") {
			if s := strings.TrimSpace(allText(p)); s != "" {
				parts = append(parts, s)
			}
		}
		r.Add(a.Name(), models.SeverityInfo,
			fmt.Sprintf("Comment by %s at %s: %s", author, date, truncate(strings.Join(parts, " "), 200)), "author", author)
	}
}

func (a OpenDocument) versions(c *container.Container, r *Report) {
	stored := c.List("Versions/", "")
	var list []string
	if doc := c.XML("VersionList.xml"); doc != nil {
		for _, v := range find(doc, "version-entry") {
			list = append(list, fmt.Sprintf("%s by %s (%s)", attr(v, "title"), attr(v, "creator"), FormatTimestamp(attr(v, "date-time"))))
		}
	}
	if len(stored) == 0 && len(list) == 0 {
		return
	}
	r.Flag(a.Name(), models.SeverityWarning, "VERSION HISTORY",
		fmt.Sprintf("%d stored prior version(s) of this document", max(len(stored), len(list))))
	for _, v := range list {
		r.Add(a.Name(), models.SeverityInfo, "Stored version: "+v)
	}
}

func (a OpenDocument) text(content *etree.Document, r *Report) {
	for _, ht := range find(content, "hidden-text") {
		value := attr(ht, "string-value")
		if value == "" {
			value = allText(ht)
		}
		a.hidden(r, "hidden text field", value)
	}
	for _, hp := range find(content, "hidden-paragraph") {
		a.hidden(r, "hidden paragraph", attr(hp, "condition"))
	}
}

func (a OpenDocument) hidden(r *Report, kind, text string) {
	text = strings.TrimSpace(text)
	r.Flag(a.Name(), models.SeverityWarning, "HIDDEN TEXT", fmt.Sprintf("%s: %q", kind, truncate(text, 200)), "text", text)
	if r.HiddenSample == "" && text != "" {
		r.HiddenSample = text
	}
}

// stylesWith returns the names of automatic styles whose properties child
// carries attribute key with value.
func stylesWith(docs []*etree.Document, props, key, value string) map[string]bool {
	out := make(map[string]bool)
	for _, doc := range docs {
		for _, st := range find(doc, "style") {
			if p := child(st, props); p != nil && attr(p, key) == value {
				out[attr(st, "name")] = true
			}
		}
	}
	return out
}

func (a OpenDocument) spreadsheet(content, styles *etree.Document, r *Report) {
	docs := []*etree.Document{content, styles}
	hiddenTables := stylesWith(docs, "table-properties", "display", "false")

	for _, tbl := range find(content, "table") {
		name := attr(tbl, "name")
		if attr(tbl, "display") == "false" || hiddenTables[attr(tbl, "style-name")] {
			r.Flag(a.Name(), models.SeverityWarning, "HIDDEN SHEET", fmt.Sprintf("Sheet %q is hidden", name), "sheet", name)
		}

		rows, cols := 0, 0
		for _, row := range descendants(tbl, "table-row") {
			if v := attr(row, "visibility"); v == "collapse" || v == "filter" {
				rows++
			}
		}
		for _, col := range descendants(tbl, "table-column") {
			if v := attr(col, "visibility"); v == "collapse" || v == "filter" {
				cols++
			}
		}
		if rows > 0 || cols > 0 {
			r.Flag(a.Name(), models.SeverityWarning, "HIDDEN CELLS",
				fmt.Sprintf("Sheet %q hides %d row group(s) and %d column group(s)", name, rows, cols), "sheet", name)
		}
	}

	seen := make(map[string]bool)
	for _, cell := range find(content, "table-cell") {
		formula := attr(cell, "formula")
		if formula == "" {
			continue
		}
		for _, fn := range formulaFunctions(formula) {
			if !seen[fn] {
				seen[fn] = true
				r.Flag(a.Name(), models.SeverityDanger, "SUSPICIOUS FORMULA",
					fmt.Sprintf("Formula uses %s: %s", fn, truncate(formula, 120)), "function", fn)
			}
		}
	}
}

func (a OpenDocument) presentation(content, styles *etree.Document, r *Report) {
	docs := []*etree.Document{content, styles}
	hiddenPages := stylesWith(docs, "drawing-page-properties", "visibility", "hidden")

	for i, page := range find(content, "page") {
		name := attr(page, "name")
		if name == "" {
			name = fmt.Sprintf("page%d", i+1)
		}
		if attr(page, "visibility") == "hidden" || hiddenPages[attr(page, "style-name")] {
			r.Flag(a.Name(), models.SeverityWarning, "HIDDEN SLIDES", fmt.Sprintf("Slide %q is hidden", name), "slide", name)
		}

		for _, notes := range descendants(page, "notes") {
			var texts []string
			for _, p := range descendants(notes, "p") {
				if s := strings.TrimSpace(allText(p)); s != "" {
					texts = append(texts, s)
				}
			}
			if len(texts) == 0 {
				continue
			}
			note := strings.Join(texts, " ")
			r.SpeakerNotes = append(r.SpeakerNotes, note)
			r.Add(a.Name(), models.SeverityInfo, fmt.Sprintf("%s: %s: %s", SpeakerNotesMarker, name, note))
		}
	}
}
