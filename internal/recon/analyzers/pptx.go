package analyzers

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

// SpeakerNotesMarker prefixes extracted speaker notes.
const SpeakerNotesMarker = "[SPEAKER NOTES DATA]"

var partNumberRe = regexp.MustCompile(`(\d+)\.xml$`)

// sortParts orders names like slide2.xml before slide10.xml.
func sortParts(names []string) []string {
	num := func(s string) int {
		m := partNumberRe.FindStringSubmatch(s)
		if m == nil {
			return 0
		}
		n, _ := strconv.Atoi(m[1])
		return n
	}
	sort.SliceStable(names, func(i, j int) bool {
		ni, nj := num(names[i]), num(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})
	return names
}

// Presentation analyzes presentation-specific artifacts.
type Presentation struct{}

func (Presentation) Name() string { return "pptx" }

func (a Presentation) Analyze(ctx context.Context, c *container.Container, r *Report) error {
	a.hiddenSlides(c, r)
	a.revisionInfo(c, r)
	a.comments(c, r)
	a.notes(c, r)

	masters := c.List("ppt/slideMasters/slideMaster", ".xml")
	if len(masters) > 1 {
		r.Add(a.Name(), models.SeverityInfo,
			fmt.Sprintf("%d slide masters: content likely merged from several templates", len(masters)))
	}

	animated := 0
	for _, slide := range c.List("ppt/slides/slide", ".xml") {
		if len(find(c.XML(slide), "timing")) > 0 {
			animated++
		}
	}
	if animated > 0 {
		r.Add(a.Name(), models.SeverityInfo, fmt.Sprintf("%d slide(s) carry animation timing", animated))
	}
	return nil
}

func (a Presentation) hiddenSlides(c *container.Container, r *Report) {
	app := c.XML("docProps/app.xml")
	if app != nil {
		if n := atoi(childText(app.Root(), "HiddenSlides")); n != 0 {
			r.Flag(a.Name(), models.SeverityWarning, "HIDDEN SLIDES",
				fmt.Sprintf("%d hidden slide(s) declared", n), "count", strconv.Itoa(n))
		}
	}
	for _, slide := range sortParts(c.List("ppt/slides/slide", ".xml")) {
		doc := c.XML(slide)
		if doc == nil {
			continue
		}
		if attr(doc.Root(), "show") == "0" {
			text := truncate(textOf(doc.Root(), "t"), 80)
			r.Flag(a.Name(), models.SeverityWarning, "HIDDEN SLIDES",
				fmt.Sprintf("Hidden slide %s: %q", path.Base(slide), text), "part", slide)
		}
	}
}

// revisionInfo reports the client sessions recorded by co-authoring.
func (a Presentation) revisionInfo(c *container.Container, r *Report) {
	for _, client := range find(c.XML("ppt/revisionInfo.xml"), "client") {
		id, v, dt := attr(client, "id"), attr(client, "v"), attr(client, "dt")
		r.Flag(a.Name(), models.SeverityDanger, "REVISION HISTORY",
			fmt.Sprintf("Editing session by client %s (version %s) at %s", id, v, FormatTimestamp(dt)),
			"client", id, "version", v, "date", dt)
	}
}

func (a Presentation) comments(c *container.Container, r *Report) {
	authors := make(map[string]string)
	for _, au := range find(c.XML("ppt/commentAuthors.xml"), "cmAuthor") {
		name := attr(au, "name")
		if ini := attr(au, "initials"); ini != "" {
			name += " (" + ini + ")"
		}
		authors[attr(au, "id")] = name
	}
	for _, au := range find(c.XML("ppt/authors.xml"), "author") {
		authors[attr(au, "id")] = attr(au, "name")
	}

	for _, part := range sortParts(c.List("ppt/comments/", ".xml")) {
		for _, cm := range find(c.XML(part), "cm") {
			author := authors[attr(cm, "authorId")]
			if author == "" {
				author = "unknown author " + attr(cm, "authorId")
			}
			dt := attr(cm, "dt")
			if dt == "" {
				dt = attr(cm, "created")
			}
			text := childText(cm, "text")
			if text == "" {
				text = strings.TrimSpace(textOf(cm, "t"))
			}
			r.Add(a.Name(), models.SeverityInfo,
				fmt.Sprintf("Comment by %s at %s: %s", author, FormatTimestamp(dt), truncate(text, 200)),
				"author", author, "part", part)
		}
	}
}

func (a Presentation) notes(c *container.Container, r *Report) {
	for _, part := range sortParts(c.List("ppt/notesSlides/notesSlide", ".xml")) {
		doc := c.XML(part)
		if doc == nil {
			continue
		}
		var texts []string
		for _, t := range find(doc, "t") {
			if s := strings.TrimSpace(t.Text()); s != "" {
				texts = append(texts, s)
			}
		}
		if len(texts) == 0 {
			continue
		}
		note := strings.Join(texts, " ")
		r.SpeakerNotes = append(r.SpeakerNotes, note)
		r.Add(a.Name(), models.SeverityInfo,
			fmt.Sprintf("%s: %s: %s", SpeakerNotesMarker, path.Base(part), note), "part", part)
	}
}
