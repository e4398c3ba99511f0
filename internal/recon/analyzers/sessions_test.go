package analyzers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/testdocs"
)

func TestSessionsOrderAndGhosts(t *testing.T) {
	body := testdocs.Paragraph("00AAAAAA", "first") +
		testdocs.Paragraph("00AAAAAA", "second") +
		testdocs.Paragraph("00CCCCCC", "third") +
		`<w:p w:rsidR="00BBBBBB"><w:ins w:author="Bob" w:date="2024-01-01T10:00:00Z"><w:r w:rsidR="00BBBBBB"><w:t>added</w:t></w:r></w:ins></w:p>`
	parts := testdocs.DOCX(body)
	parts["word/settings.xml"] = testdocs.Settings([]string{"00aaaaaa", "00BBBBBB", "00CCCCCC", "00DDDDDD"}, "")
	parts["docProps/core.xml"] = testdocs.Core("Alice", "Mallory", "2024-01-01T09:00:00Z", "2024-01-02T09:00:00Z")

	r := analyze(t, Sessions{}, parts)
	require.Len(t, r.Sessions, 4)

	// Declared order, upper-cased.
	assert.Equal(t, "00AAAAAA", r.Sessions[0].Token)
	assert.Equal(t, 1, r.Sessions[0].Ordinal)
	assert.Equal(t, 2, r.Sessions[0].Paragraphs)

	// Track changes win over metadata; metadata fills the first and last sessions.
	assert.Equal(t, "Alice", r.Sessions[0].Author)
	assert.Equal(t, SourceCreator, r.Sessions[0].Source)
	assert.Equal(t, "Bob", r.Sessions[1].Author)
	assert.Equal(t, SourceTrackChanges, r.Sessions[1].Source)
	assert.Empty(t, r.Sessions[2].Author)
	assert.Equal(t, "Mallory", r.Sessions[3].Author)
	assert.Equal(t, SourceLastSave, r.Sessions[3].Source)

	assert.True(t, r.Sessions[3].Ghost())
	assert.False(t, r.Sessions[0].Ghost())

	all := strings.Join(messages(r, "sessions"), "\n")
	assert.Contains(t, all, "RSID 00AAAAAA (session #1): 2 paragraphs, 50.0%")
	assert.Contains(t, all, "1 ghost session(s) with no surviving paragraphs: 00DDDDDD")
	assert.Contains(t, all, "#1 00AAAAAA: 2 paragraphs - Created by Alice")
	assert.Contains(t, all, "#4 00DDDDDD: 0 paragraphs - Last saved by Mallory [ghost]")

	require.Len(t, r.Authorship, 4)
	assert.Equal(t, "Alice", r.Authorship[0].Owner)
	assert.Equal(t, "Unknown", r.Authorship[2].Owner)
	assert.Equal(t, "added", r.Authorship[3].Text)
}

func TestSessionsNoRsidInBody(t *testing.T) {
	parts := testdocs.DOCX(testdocs.Paragraph("", "plain"))
	parts["word/settings.xml"] = testdocs.Settings([]string{"00AAAAAA"}, "")

	r := analyze(t, Sessions{}, parts)
	assert.Contains(t, messages(r, "sessions"), "No RSID tags found in document body")
	assert.Empty(t, r.Authorship)
}

func TestSessionsCommentLink(t *testing.T) {
	parts := testdocs.DOCX(testdocs.Paragraph("00AAAAAA", "x") + testdocs.Paragraph("00BBBBBB", "y"))
	parts["word/settings.xml"] = testdocs.Settings([]string{"00AAAAAA", "00BBBBBB", "00CCCCCC"}, "")
	parts["word/comments.xml"] = `<w:comments ` + testdocs.NSWord + `><w:comment w:id="0" w:author="Carol">` +
		`<w:p w:rsidR="00BBBBBB"><w:r><w:t>note</w:t></w:r></w:p></w:comment></w:comments>`

	r := analyze(t, Sessions{}, parts)
	require.Len(t, r.Sessions, 3)
	assert.Equal(t, "Carol", r.Sessions[1].Author)
	assert.Equal(t, SourceComment, r.Sessions[1].Source)
}

func TestSessionsCommentLinksEveryParagraph(t *testing.T) {
	parts := testdocs.DOCX(testdocs.Paragraph("00AAAAAA", "x"))
	parts["word/settings.xml"] = testdocs.Settings([]string{"00AAAAAA", "00BBBBBB", "00CCCCCC"}, "")
	parts["word/comments.xml"] = `<w:comments ` + testdocs.NSWord + `><w:comment w:id="0" w:author="Carol">` +
		`<w:p w:rsidR="00BBBBBB"><w:r><w:t>first</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>untagged</w:t></w:r></w:p>` +
		`<w:p w:rsidR="00cccccc"><w:r><w:t>reply</w:t></w:r></w:p></w:comment></w:comments>`

	r := analyze(t, Sessions{}, parts)
	require.Len(t, r.Sessions, 3)
	assert.Empty(t, r.Sessions[0].Author)
	for _, s := range r.Sessions[1:] {
		assert.Equal(t, "Carol", s.Author, s.Token)
		assert.Equal(t, SourceComment, s.Source, s.Token)
	}
}

func TestVolumeTableUndeclared(t *testing.T) {
	rows := volumeTable(map[string]int{"00AAAAAA": 1, "00FFFFFF": 3}, []string{"00AAAAAA"}, 4)
	require.Len(t, rows, 2)
	assert.Equal(t, "RSID 00FFFFFF (undeclared): 3 paragraphs, 75.0%", rows[0])
	assert.Equal(t, "RSID 00AAAAAA (session #1): 1 paragraphs, 25.0%", rows[1])
}
