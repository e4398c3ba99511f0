package analyzers

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

// OriginClass is the provenance class of a word document.
type OriginClass string

const (
	OriginOrganic   OriginClass = "ORGANIC"
	OriginWashed    OriginClass = "WASHED"
	OriginSynthetic OriginClass = "SYNTHETIC"
)

// OriginResult carries the evidence behind the origin classification.
type OriginResult struct {
	Class        OriginClass
	IDSamples    int
	SequentialID int
	Ratio        float64
	Sessions     int
	CompatMode   string
	Locale       string
	Conclusive   bool
}

// Origin classifies a word document as organic, washed or synthetic.
type Origin struct {
	H Heuristics
}

func (Origin) Name() string { return "origin" }

func (o Origin) Analyze(ctx context.Context, c *container.Container, r *Report) error {
	doc := c.XML("word/document.xml")
	if doc == nil {
		r.Add(o.Name(), models.SeverityInfo, "word/document.xml missing or unreadable, origin not assessed")
		return nil
	}

	res := OriginResult{Class: OriginOrganic}

	var ids []uint64
	for _, p := range find(doc, "p") {
		v := attr(p, "paraId")
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 16, 32)
		if err != nil {
			continue
		}
		ids = append(ids, n)
	}
	res.IDSamples = len(ids)
	res.SequentialID, res.Ratio = sequentialRatio(ids)

	if settings := c.XML("word/settings.xml"); settings != nil {
		res.Sessions = len(uniqueRsids(settings))
		for _, cs := range find(settings, "compatSetting") {
			if attr(cs, "name") == "compatibilityMode" {
				res.CompatMode = attr(cs, "val")
				break
			}
		}
		if lang := find(settings, "themeFontLang"); len(lang) > 0 {
			res.Locale = attr(lang[0], "val")
		}
	}

	synthetic := res.IDSamples >= o.H.SequentialMinSamples && res.Ratio > o.H.SequentialRatio
	washed := res.Sessions > 0 && res.Sessions <= o.H.WashedMaxSessions && res.CompatMode == o.H.WashedCompatMode
	res.Conclusive = res.IDSamples >= o.H.SequentialMinSamples

	switch {
	case synthetic:
		res.Class = OriginSynthetic
		r.Verdict = models.VerdictSynthetic
		r.Flag(o.Name(), models.SeverityDanger, "SYNTHETIC",
			fmt.Sprintf("Paragraph ids are sequential (%d of %d, %.0f%%): document was generated, not typed", res.SequentialID, res.IDSamples, res.Ratio*100),
			"ratio", strconv.FormatFloat(res.Ratio, 'f', 2, 64))
	case washed:
		res.Class = OriginWashed
		r.Verdict = models.VerdictMixed
		r.Flag(o.Name(), models.SeverityWarning, "WASHED",
			fmt.Sprintf("Only %d editing session(s) under compatibility mode %s: content was likely pasted into a fresh file", res.Sessions, res.CompatMode),
			"sessions", strconv.Itoa(res.Sessions))
	default:
		r.Verdict = models.VerdictOrganic
		r.Add(o.Name(), models.SeveritySuccess, fmt.Sprintf("Organic editing history (%d sessions)", res.Sessions))
	}

	if !res.Conclusive {
		r.Add(o.Name(), models.SeverityInfo,
			fmt.Sprintf("Sequential id check inconclusive: %d paragraph ids (need %d)", res.IDSamples, o.H.SequentialMinSamples))
	}
	if res.Locale != "" {
		r.Add(o.Name(), models.SeverityInfo, "Theme font language: "+res.Locale, "locale", res.Locale)
	}

	r.Origin = res
	return nil
}

// sequentialRatio counts adjacent sorted ids that differ by exactly one and
// divides by the number of samples.
func sequentialRatio(ids []uint64) (int, float64) {
	if len(ids) == 0 {
		return 0, 0
	}
	sorted := make([]uint64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	hits := 0
	for i := 1; i < len(sorted); i++ {
		if sorted[i]-sorted[i-1] == 1 {
			hits++
		}
	}
	return hits, float64(hits) / float64(len(sorted))
}
