package container_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/testdocs"
)

func TestDetectFamily(t *testing.T) {
	tests := []struct {
		name  string
		parts testdocs.Parts
		want  container.Family
	}{
		{"docx", testdocs.DOCX(testdocs.Paragraph("", "hi")), container.DOCX},
		{"xlsx", testdocs.XLSX(`<sheet name="A" sheetId="1"/>`), container.XLSX},
		{"pptx", testdocs.PPTX(), container.PPTX},
		{"odt", testdocs.ODF("application/vnd.oasis.opendocument.text", ""), container.ODT},
		{"ods", testdocs.ODF("application/vnd.oasis.opendocument.spreadsheet", ""), container.ODS},
		{"odp", testdocs.ODF("application/vnd.oasis.opendocument.presentation", ""), container.ODP},
		{"plain zip", testdocs.Parts{"readme.txt": "hello"}, container.Unknown},
		{
			"word marker wins over workbook",
			testdocs.Parts{"word/document.xml": "<a/>", "xl/workbook.xml": "<b/>"},
			container.DOCX,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testdocs.Zip(t, tt.parts)

			c, err := container.OpenBytes(data, tt.name)
			require.NoError(t, err)
			defer c.Close()
			assert.Equal(t, tt.want, c.Family())

			// Same bytes, same answer.
			again, err := container.OpenBytes(data, tt.name)
			require.NoError(t, err)
			defer again.Close()
			assert.Equal(t, c.Family(), again.Family())
		})
	}
}

func TestOpenRejectsNonZip(t *testing.T) {
	path := testdocs.WriteRaw(t, t.TempDir(), "fake.docx", []byte("this is not a zip file at all"))

	_, err := container.Open(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, container.ErrNotAContainer))
}

func TestXMLAbsentAndMalformed(t *testing.T) {
	parts := testdocs.DOCX(testdocs.Paragraph("", "x"))
	parts["word/settings.xml"] = "<w:settings><w:zoom w:percent=></w:zoom></w:settings>"

	c, err := container.OpenBytes(testdocs.Zip(t, parts), "doc.docx")
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.XML("word/comments.xml"))
	assert.Empty(t, c.MalformedParts(), "absent parts are not malformed")

	assert.Nil(t, c.XML("word/settings.xml"))
	assert.Contains(t, c.MalformedParts(), "word/settings.xml")

	doc := c.XML("word/document.xml")
	require.NotNil(t, doc)
	assert.Same(t, doc, c.XML("WORD/Document.xml"), "trees are cached and lookups fold case")
}

func TestPartSizeLimit(t *testing.T) {
	parts := testdocs.DOCX(testdocs.Paragraph("", "x"))
	parts["word/media/big.bin"] = string(make([]byte, 4096))

	c, err := container.OpenBytes(testdocs.Zip(t, parts), "doc.docx")
	require.NoError(t, err)
	defer c.Close()

	c.SetMaxPartSize(1024)
	_, err = c.Bytes("word/media/big.bin")
	assert.ErrorIs(t, err, container.ErrPartTooLarge)

	_, err = c.Bytes("word/nothing.bin")
	assert.ErrorIs(t, err, container.ErrPartAbsent)
}

func TestListAndClose(t *testing.T) {
	parts := testdocs.PPTX()
	parts["ppt/notesSlides/notesSlide2.xml"] = "<n/>"
	parts["ppt/notesSlides/notesSlide1.xml"] = "<n/>"
	parts["ppt/notesSlides/_rels/notesSlide1.xml.rels"] = "<r/>"

	path := testdocs.Write(t, t.TempDir(), "deck.pptx", parts)
	c, err := container.Open(path)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"ppt/notesSlides/_rels/notesSlide1.xml.rels", "ppt/notesSlides/notesSlide1.xml", "ppt/notesSlides/notesSlide2.xml"},
		c.List("ppt/notesSlides/", ""))
	assert.Equal(t,
		[]string{"ppt/notesSlides/notesSlide1.xml", "ppt/notesSlides/notesSlide2.xml"},
		c.List("ppt/notesslides/notesSlide", ".xml"))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Bytes("ppt/presentation.xml")
	assert.ErrorIs(t, err, container.ErrClosed)
}

func TestParseFamily(t *testing.T) {
	for _, f := range []container.Family{container.DOCX, container.XLSX, container.PPTX, container.ODT, container.ODS, container.ODP} {
		assert.Equal(t, f, container.ParseFamily(f.String()))
	}
	assert.Equal(t, container.Unknown, container.ParseFamily("pdf"))
}
