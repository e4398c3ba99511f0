package analyzers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

// Revisions lists tracked changes, deleted text and comments in a word
// document.
type Revisions struct{}

func (Revisions) Name() string { return "revisions" }

func (a Revisions) Analyze(ctx context.Context, c *container.Container, r *Report) error {
	doc := c.XML("word/document.xml")

	type tally struct{ ins, del int }
	byAuthor := make(map[string]*tally)
	for _, kind := range []string{"ins", "del"} {
		for _, e := range find(doc, kind) {
			author := attr(e, "author")
			if author == "" {
				author = "(no author)"
			}
			t, ok := byAuthor[author]
			if !ok {
				t = &tally{}
				byAuthor[author] = t
			}
			if kind == "ins" {
				t.ins++
			} else {
				t.del++
			}
		}
	}
	if len(byAuthor) > 0 {
		authors := make([]string, 0, len(byAuthor))
		for a := range byAuthor {
			authors = append(authors, a)
		}
		sort.Strings(authors)
		for _, au := range authors {
			t := byAuthor[au]
			r.Flag(a.Name(), models.SeverityWarning, "TRACK CHANGES",
				fmt.Sprintf("Tracked changes by %s: %d insertion(s), %d deletion(s)", au, t.ins, t.del), "author", au)
		}
	}

	var deleted []string
	for _, d := range find(doc, "delText") {
		if s := d.Text(); strings.TrimSpace(s) != "" {
			deleted = append(deleted, s)
		}
	}
	if len(deleted) > 0 {
		text := strings.Join(deleted, "")
		r.Add(a.Name(), models.SeverityWarning, fmt.Sprintf("Recoverable deleted text: %q", truncate(text, 300)), "text", text)
	}

	for _, cm := range find(c.XML("word/comments.xml"), "comment") {
		author := attr(cm, "author")
		initials := attr(cm, "initials")
		if initials != "" {
			author += " (" + initials + ")"
		}
		text := strings.TrimSpace(textOf(cm, "t"))
		r.Add(a.Name(), models.SeverityInfo,
			fmt.Sprintf("Comment by %s at %s: %s", author, FormatTimestamp(attr(cm, "date")), truncate(text, 200)),
			"author", attr(cm, "author"))
	}
	return nil
}
