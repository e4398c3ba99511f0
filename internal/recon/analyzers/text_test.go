package analyzers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/testdocs"
)

func TestForensicText(t *testing.T) {
	body := testdocs.Paragraph("", "Contact jane.doe@corp.example for access") +
		testdocs.Paragraph("", `Files are on \\fs01\finance\q3`) +
		testdocs.Paragraph("", "Server 10.0.0.12 and version 1.2.3.4.5 and 999.1.1.1") +
		testdocs.Paragraph("", "jane.doe@corp.example")

	r := analyze(t, ForensicText{}, testdocs.DOCX(body))
	all := strings.Join(messages(r, "text"), "\n")
	assert.Contains(t, all, "E-mail address: jane.doe@corp.example")
	assert.Equal(t, 1, strings.Count(all, "jane.doe@corp.example"))
	assert.Contains(t, all, `UNC path: \\fs01\finance\q3`)
	assert.Contains(t, all, "IP address: 10.0.0.12")
	assert.NotContains(t, all, "999.1.1.1")
	assert.True(t, r.HasTag("UNC PATH"))
}

func TestArtifacts(t *testing.T) {
	parts := testdocs.DOCX(testdocs.Paragraph("", "x"))
	devmode := make([]byte, 220)
	for i, ch := range "HP LaserJet 4 Finance" {
		devmode[i*2] = byte(ch)
	}
	parts["word/printerSettings/printerSettings1.bin"] = string(devmode)
	parts["customXml/item1.xml"] = `<root xmlns="http://contoso.example/schemas/case"/>`
	parts["__MACOSX/._document.xml"] = "x"
	parts["word/fontTable.xml"] = `<w:fonts ` + testdocs.NSWord + `><w:font w:name="Helvetica Neue"/><w:font w:name="Calibri"/></w:fonts>`

	r := analyze(t, Artifacts{}, parts)
	all := strings.Join(messages(r, "artifacts"), "\n")
	assert.Contains(t, all, "printer: HP LaserJet 4 Finance")
	assert.Contains(t, all, "Third-party custom XML schema: http://contoso.example/schemas/case")
	assert.Contains(t, all, "macOS system fonts referenced: Helvetica Neue")
	assert.True(t, r.HasTag("MACOS"))
}

func TestBinaryViews(t *testing.T) {
	var data []byte
	for _, ch := range `D:\cases\x.doc` {
		data = append(data, byte(ch), 0)
	}
	views := binaryViews(data)
	require.Len(t, views, 3)
	assert.Contains(t, views[1], `D:\cases\x.doc`)
	assert.Equal(t, []string{`D:\cases\x.doc`}, extractPaths(data))
}
