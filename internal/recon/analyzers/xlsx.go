package analyzers

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

// Formula functions that reach outside the workbook or run code.
var suspiciousFunctions = []string{"HYPERLINK", "WEBSERVICE", "FILTERXML", "INDIRECT", "EXEC", "CALL", "REGISTER", "SYSTEM"}

var suspiciousFunctionRes = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(suspiciousFunctions))
	for _, fn := range suspiciousFunctions {
		m[fn] = regexp.MustCompile(`(?i)\b` + fn + `\(`)
	}
	return m
}()

// formulaFunctions returns the suspicious functions called by formula. Names
// only match whole, so MYCALL( is not CALL.
func formulaFunctions(formula string) []string {
	var out []string
	for _, fn := range suspiciousFunctions {
		if suspiciousFunctionRes[fn].MatchString(formula) {
			out = append(out, fn)
		}
	}
	return out
}

var suspiciousNameTokens = []string{"http", "ftp", `\\`, "cmd", "powershell"}

// Workbook analyzes spreadsheet-specific artifacts.
type Workbook struct{}

func (Workbook) Name() string { return "xlsx" }

func (a Workbook) Analyze(ctx context.Context, c *container.Container, r *Report) error {
	wb := c.XML("xl/workbook.xml")

	for _, sheet := range find(wb, "sheet") {
		name := attr(sheet, "name")
		switch attr(sheet, "state") {
		case "hidden":
			r.Flag(a.Name(), models.SeverityWarning, "HIDDEN SHEET", fmt.Sprintf("Sheet %q is hidden", name), "sheet", name)
		case "veryHidden":
			r.Flag(a.Name(), models.SeverityDanger, "VERY HIDDEN SHEET",
				fmt.Sprintf("Sheet %q is very hidden (only reachable through VBA)", name), "sheet", name)
		}
	}

	for _, dn := range find(wb, "definedName") {
		name, value := attr(dn, "name"), strings.TrimSpace(dn.Text())
		lower := strings.ToLower(value)
		for _, tok := range suspiciousNameTokens {
			if strings.Contains(lower, tok) {
				r.Flag(a.Name(), models.SeverityDanger, "SUSPICIOUS NAME",
					fmt.Sprintf("Defined name %s refers to %s", name, truncate(value, 120)), "name", name)
				break
			}
		}
		if strings.HasPrefix(strings.ToLower(strings.TrimPrefix(name, "_xlnm.")), "auto_open") {
			r.Flag(a.Name(), models.SeverityDanger, "AUTO OPEN", "Auto_Open defined name: "+value, "name", name)
		}
	}
	if len(find(wb, "workbookProtection")) > 0 {
		r.Add(a.Name(), models.SeverityInfo, "Workbook structure is protected")
	}

	for _, part := range sortParts(c.List("xl/worksheets/sheet", ".xml")) {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.worksheet(c, part, r)
	}

	for _, part := range c.List("xl/externalLinks/", ".xml") {
		target := ""
		for _, book := range find(c.XML(part), "externalBook") {
			target = attr(book, "id")
		}
		r.Flag(a.Name(), models.SeverityWarning, "EXTERNAL LINK", "External workbook link: "+path.Base(part), "part", part, "rel", target)
	}

	for _, conn := range find(c.XML("xl/connections.xml"), "connection") {
		detail := ""
		if db := child(conn, "dbPr"); db != nil {
			detail = attr(db, "connection")
		}
		if web := child(conn, "webPr"); web != nil {
			detail = attr(web, "url")
		}
		r.Flag(a.Name(), models.SeverityWarning, "DATA CONNECTION",
			fmt.Sprintf("Data connection %q: %s", attr(conn, "name"), truncate(detail, 160)), "name", attr(conn, "name"))
	}

	authors := make(map[string]bool)
	for _, part := range c.List("xl/comments", ".xml") {
		for _, au := range find(c.XML(part), "author") {
			name := strings.TrimSpace(au.Text())
			if name != "" && !authors[name] {
				authors[name] = true
				r.Add(a.Name(), models.SeverityInfo, "Comment author: "+name, "author", name)
			}
		}
	}
	return nil
}

func (a Workbook) worksheet(c *container.Container, part string, r *Report) {
	doc := c.XML(part)
	if doc == nil {
		return
	}
	base := path.Base(part)

	hiddenRows := 0
	for _, row := range find(doc, "row") {
		if attr(row, "hidden") == "1" || attr(row, "hidden") == "true" {
			hiddenRows++
		}
	}
	hiddenCols := 0
	for _, col := range find(doc, "col") {
		if attr(col, "hidden") == "1" || attr(col, "hidden") == "true" {
			hiddenCols++
		}
	}
	if hiddenRows > 0 || hiddenCols > 0 {
		r.Flag(a.Name(), models.SeverityWarning, "HIDDEN CELLS",
			fmt.Sprintf("%s hides %d row(s) and %d column range(s)", base, hiddenRows, hiddenCols), "part", part)
	}

	seen := make(map[string]bool)
	for _, f := range find(doc, "f") {
		for _, fn := range formulaFunctions(f.Text()) {
			if seen[fn] {
				continue
			}
			seen[fn] = true
			r.Flag(a.Name(), models.SeverityDanger, "SUSPICIOUS FORMULA",
				fmt.Sprintf("%s uses %s: =%s", base, fn, truncate(f.Text(), 120)), "part", part, "function", fn)
		}
	}

	if len(find(doc, "sheetProtection")) > 0 {
		r.Add(a.Name(), models.SeverityInfo, base+" is protected")
	}
}
