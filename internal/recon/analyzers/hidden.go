package analyzers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

// HiddenCategory distinguishes the ways text is hidden in a word document.
type HiddenCategory string

const (
	HiddenWhite     HiddenCategory = "white text"
	HiddenVanish    HiddenCategory = "vanish"
	HiddenMicroFont HiddenCategory = "micro font"
)

// Elements whose content is rendered on its own canvas; white text inside them
// sits on a fill we do not resolve, so it is never reported.
var canvasContainers = []string{"drawing", "txbxContent", "Fallback", "pict", "shape", "textbox", "wsp"}

// HiddenContent finds text a reader of the rendered document cannot see.
type HiddenContent struct {
	H Heuristics
}

func (HiddenContent) Name() string { return "hidden" }

func (h HiddenContent) Analyze(ctx context.Context, c *container.Container, r *Report) error {
	parts := []string{"word/document.xml"}
	parts = append(parts, c.List("word/header", ".xml")...)
	parts = append(parts, c.List("word/footer", ".xml")...)
	parts = append(parts, "word/footnotes.xml", "word/endnotes.xml")

	seen := make(map[HiddenCategory]map[string]bool)
	report := func(cat HiddenCategory, part, text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if seen[cat] == nil {
			seen[cat] = make(map[string]bool)
		}
		if seen[cat][text] {
			return
		}
		seen[cat][text] = true

		sev := models.SeverityWarning
		if cat == HiddenWhite {
			sev = models.SeverityDanger
		}
		r.Flag(h.Name(), sev, "HIDDEN TEXT", fmt.Sprintf("Hidden text (%s) in %s: %q", cat, part, text),
			"category", string(cat), "part", part, "text", text)
		if r.HiddenSample == "" {
			r.HiddenSample = text
		}
	}

	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := c.XML(part)
		if doc == nil {
			continue
		}
		for _, run := range find(doc, "r") {
			rPr := child(run, "rPr")
			if rPr == nil {
				continue
			}
			text := textOf(run, "t")

			if isWhite(rPr) && !runVisible(run, rPr) {
				report(HiddenWhite, part, text)
			}
			if v := child(rPr, "vanish"); v != nil && onOff(v) {
				report(HiddenVanish, part, text)
			}
			if sz := child(rPr, "sz"); sz != nil {
				if n, err := strconv.Atoi(attr(sz, "val")); err == nil && n < h.H.MicroFontHalfPoints {
					report(HiddenMicroFont, part, text)
				}
			}
		}
	}

	if len(seen) == 0 {
		r.Add(h.Name(), models.SeveritySuccess, "No hidden text found")
	}
	return nil
}

func isWhite(rPr *etree.Element) bool {
	color := child(rPr, "color")
	return color != nil && strings.EqualFold(attr(color, "val"), "FFFFFF")
}

// runVisible walks outward from a white run looking for a background that
// would make it readable.
func runVisible(run, rPr *etree.Element) bool {
	if child(rPr, "highlight") != nil {
		return true
	}
	if coloredFill(child(rPr, "shd")) {
		return true
	}
	if hasAncestor(run, canvasContainers...) {
		return true
	}

	for p := run.Parent(); p != nil; p = p.Parent() {
		if p.Tag == "p" {
			pPr := child(p, "pPr")
			if coloredFill(child(pPr, "shd")) {
				return true
			}
			if style := child(pPr, "pStyle"); style != nil {
				if v := strings.ToLower(attr(style, "val")); v != "" && v != "normal" {
					return true
				}
			}
			break
		}
	}

	for p := run.Parent(); p != nil; p = p.Parent() {
		if p.Tag == "tc" {
			return coloredFill(child(child(p, "tcPr"), "shd"))
		}
	}
	return false
}

// coloredFill reports whether a shading element paints a non-white background.
func coloredFill(shd *etree.Element) bool {
	if shd == nil {
		return false
	}
	fill := strings.ToLower(attr(shd, "fill"))
	return fill != "" && fill != "auto" && fill != "ffffff"
}

// onOff evaluates a word boolean property element.
func onOff(e *etree.Element) bool {
	if !hasAttr(e, "val") {
		return true
	}
	switch strings.ToLower(attr(e, "val")) {
	case "1", "true", "on":
		return true
	}
	return false
}
