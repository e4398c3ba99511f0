package analyzers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

// Identity sources, in precedence order.
const (
	SourceTrackChanges = "Track Changes"
	SourceComment      = "Comment"
	SourceCreator      = "Meta: Creator"
	SourceLastSave     = "Meta: Last Save"
)

// Session is one declared revision session (rsid).
type Session struct {
	Token      string
	Ordinal    int
	Paragraphs int
	Author     string
	Source     string
}

// Ghost reports whether the session has no attributed paragraphs.
func (s Session) Ghost() bool { return s.Paragraphs == 0 }

// ParagraphOwner is one line of the authorship view.
type ParagraphOwner struct {
	Token string
	Owner string
	Text  string
}

// Sessions reconstructs revision sessions, attributes paragraphs and links
// sessions to identities.
type Sessions struct{}

func (Sessions) Name() string { return "sessions" }

func (s Sessions) Analyze(ctx context.Context, c *container.Container, r *Report) error {
	settings := c.XML("word/settings.xml")
	doc := c.XML("word/document.xml")

	order := buildSessionOrder(settings)
	counts, total := attributeParagraphs(doc)

	sessions := make([]Session, len(order))
	for i, tok := range order {
		sessions[i] = Session{Token: tok, Ordinal: i + 1, Paragraphs: counts[tok]}
	}
	linkIdentities(sessions, doc, c.XML("word/comments.xml"), c.XML("docProps/core.xml"))
	r.Sessions = sessions

	if len(order) > 0 {
		r.Add(s.Name(), models.SeverityInfo, fmt.Sprintf("%d revision sessions declared", len(order)), "sessions", fmt.Sprint(len(order)))
	}

	if total == 0 {
		r.Add(s.Name(), models.SeverityInfo, "No RSID tags found in document body")
		return nil
	}

	for _, row := range volumeTable(counts, order, total) {
		r.Add(s.Name(), models.SeverityInfo, row)
	}

	var ghosts []string
	for _, ss := range sessions {
		if ss.Ghost() {
			ghosts = append(ghosts, ss.Token)
		}
	}
	if len(ghosts) > 0 {
		r.Add(s.Name(), models.SeverityWarning,
			fmt.Sprintf("%d ghost session(s) with no surviving paragraphs: %s", len(ghosts), strings.Join(ghosts, ", ")),
			"ghosts", strings.Join(ghosts, ","))
	}

	for _, line := range timeline(sessions) {
		r.Add(s.Name(), models.SeverityInfo, line)
	}

	r.Authorship = authorship(doc, sessions)
	return nil
}

// buildSessionOrder returns the declared session tokens in file order.
func buildSessionOrder(settings *etree.Document) []string {
	if settings == nil {
		return nil
	}
	return uniqueRsids(settings)
}

func uniqueRsids(settings *etree.Document) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range find(settings, "rsid") {
		v := strings.ToUpper(attr(e, "val"))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// attributeParagraphs counts body paragraphs per rsidR. Tokens that were never
// declared in settings are still counted.
func attributeParagraphs(doc *etree.Document) (map[string]int, int) {
	counts := make(map[string]int)
	total := 0
	for _, p := range find(doc, "p") {
		tok := strings.ToUpper(attr(p, "rsidR"))
		if tok == "" {
			continue
		}
		counts[tok]++
		total++
	}
	return counts, total
}

// linkIdentities assigns an author to sessions. Earlier sources win; a linked
// session is never overwritten.
func linkIdentities(sessions []Session, doc, comments, core *etree.Document) {
	index := make(map[string]int, len(sessions))
	for i, s := range sessions {
		index[s.Token] = i
	}
	link := func(tok, author, source string) {
		tok = strings.ToUpper(tok)
		author = strings.TrimSpace(author)
		i, ok := index[tok]
		if !ok || author == "" || sessions[i].Author != "" {
			return
		}
		sessions[i].Author = author
		sessions[i].Source = source
	}

	for _, kind := range []string{"ins", "del"} {
		for _, e := range find(doc, kind) {
			author := attr(e, "author")
			tok := attr(e, "rsidR")
			if tok == "" {
				tok = firstRunRsid(e, kind)
			}
			link(tok, author, SourceTrackChanges)
		}
	}

	for _, cm := range find(comments, "comment") {
		author := attr(cm, "author")
		for _, p := range descendants(cm, "p") {
			link(attr(p, "rsidR"), author, SourceComment)
		}
	}

	if core != nil && len(sessions) > 0 {
		root := core.Root()
		link(sessions[0].Token, childText(root, "creator"), SourceCreator)
		link(sessions[len(sessions)-1].Token, childText(root, "lastModifiedBy"), SourceLastSave)
	}
}

func firstRunRsid(e *etree.Element, kind string) string {
	key := "rsidR"
	if kind == "del" {
		key = "rsidDel"
	}
	for _, run := range descendants(e, "r") {
		if v := attr(run, key); v != "" {
			return v
		}
	}
	return ""
}

// volumeTable renders sessions by paragraph count, largest first.
func volumeTable(counts map[string]int, order []string, total int) []string {
	ordinal := make(map[string]int, len(order))
	for i, tok := range order {
		ordinal[tok] = i + 1
	}

	type row struct {
		tok   string
		count int
	}
	rows := make([]row, 0, len(counts))
	for tok, n := range counts {
		rows = append(rows, row{tok, n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		oi, oj := ordinal[rows[i].tok], ordinal[rows[j].tok]
		if oi == 0 {
			oi = len(order) + 1
		}
		if oj == 0 {
			oj = len(order) + 1
		}
		if oi != oj {
			return oi < oj
		}
		return rows[i].tok < rows[j].tok
	})

	out := make([]string, 0, len(rows))
	for _, rw := range rows {
		pct := float64(rw.count) / float64(total) * 100
		label := "undeclared"
		if n, ok := ordinal[rw.tok]; ok {
			label = fmt.Sprintf("session #%d", n)
		}
		out = append(out, fmt.Sprintf("RSID %s (%s): %d paragraphs, %.1f%%", rw.tok, label, rw.count, pct))
	}
	return out
}

// timeline returns the chronological session narrative.
func timeline(sessions []Session) []string {
	var out []string
	for i, s := range sessions {
		line := fmt.Sprintf("#%d %s: %d paragraphs", s.Ordinal, s.Token, s.Paragraphs)
		switch {
		case i == 0 && s.Author != "":
			line += " - Created by " + s.Author
		case i == len(sessions)-1 && s.Author != "":
			line += " - Last saved by " + s.Author
		case s.Author != "":
			line += fmt.Sprintf(" - %s (%s)", s.Author, s.Source)
		}
		if s.Ghost() {
			line += " [ghost]"
		}
		out = append(out, line)
	}
	return out
}

// authorship maps every non-empty paragraph to the identity of its session.
func authorship(doc *etree.Document, sessions []Session) []ParagraphOwner {
	owners := make(map[string]string, len(sessions))
	for _, s := range sessions {
		if s.Author != "" {
			owners[s.Token] = s.Author
		}
	}

	var out []ParagraphOwner
	for _, p := range find(doc, "p") {
		text := strings.TrimSpace(textOf(p, "t"))
		if text == "" {
			continue
		}
		tok := strings.ToUpper(attr(p, "rsidR"))
		owner := owners[tok]
		if owner == "" {
			owner = "Unknown"
		}
		out = append(out, ParagraphOwner{Token: tok, Owner: owner, Text: text})
	}
	return out
}
