package analyzers

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DisplayLayout is the single format used for every reported timestamp.
const DisplayLayout = "02/01/2006 15:04:05 -0700"

// displayLayoutNaive is used when the source carried no zone.
const displayLayoutNaive = "02/01/2006 15:04:05"

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp forms found in document metadata. The
// second result reports whether the source carried a zone.
func ParseTimestamp(s string) (t time.Time, zoned bool, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, false, true
		}
	}
	return time.Time{}, false, false
}

// FormatTimestamp renders s in DisplayLayout. Values that do not parse are
// returned unchanged.
func FormatTimestamp(s string) string {
	t, zoned, ok := ParseTimestamp(s)
	if !ok {
		return s
	}
	if !zoned {
		return t.Format(displayLayoutNaive)
	}
	return t.Format(DisplayLayout)
}

var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// Minutes per duration component, in regexp group order. Years and months
// have no fixed length; they count as 365 and 30 days.
var isoDurationUnits = []float64{365 * 24 * 60, 30 * 24 * 60, 7 * 24 * 60, 24 * 60, 60, 1, 1.0 / 60}

// ParseISODuration converts an ISO-8601 duration such as PT1H30M to minutes.
func ParseISODuration(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "P" || strings.HasSuffix(s, "T") {
		return 0, false
	}
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	var total float64
	for i, u := range isoDurationUnits {
		if m[i+1] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0, false
		}
		total += v * u
	}
	return int(total), true
}
