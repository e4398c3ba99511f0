package analyzers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Heuristics holds the tunable thresholds used by the analyzers.
type Heuristics struct {
	// SequentialRatio is the share of paragraph ids that must be +1 neighbours
	// before a document is called synthetic.
	SequentialRatio float64 `yaml:"sequential_ratio"`
	// SequentialMinSamples is the minimum number of ids for the check to apply.
	SequentialMinSamples int `yaml:"sequential_min_samples"`

	// A document is washed when it declares between 1 and WashedMaxSessions
	// sessions and its compatibility mode equals WashedCompatMode.
	WashedMaxSessions int    `yaml:"washed_max_sessions"`
	WashedCompatMode  string `yaml:"washed_compat_mode"`

	VelocityMaxMinutes int `yaml:"velocity_max_minutes"`
	VelocityMinWords   int `yaml:"velocity_min_words"`

	// MicroFontHalfPoints flags runs whose w:sz is below this value.
	MicroFontHalfPoints int `yaml:"micro_font_half_points"`

	// FutureSkewHours is the tolerance before a timestamp counts as future.
	FutureSkewHours int `yaml:"future_skew_hours"`
}

// DefaultHeuristics returns the built-in thresholds.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		SequentialRatio:      0.5,
		SequentialMinSamples: 5,
		WashedMaxSessions:    9,
		WashedCompatMode:     "15",
		VelocityMaxMinutes:   1,
		VelocityMinWords:     500,
		MicroFontHalfPoints:  2,
		FutureSkewHours:      24,
	}
}

// LoadHeuristics reads a YAML file over the defaults. Keys missing from the
// file keep their default value.
func LoadHeuristics(path string) (Heuristics, error) {
	h := DefaultHeuristics()
	if path == "" {
		return h, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return h, fmt.Errorf("failed to read heuristics file: %w", err)
	}
	if err := yaml.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("failed to parse heuristics file: %w", err)
	}
	if err := h.Validate(); err != nil {
		return h, err
	}
	return h, nil
}

// Validate rejects thresholds that would make a check meaningless.
func (h Heuristics) Validate() error {
	if h.SequentialRatio <= 0 || h.SequentialRatio > 1 {
		return fmt.Errorf("sequential_ratio must be in (0, 1], got %v", h.SequentialRatio)
	}
	if h.SequentialMinSamples < 2 {
		return fmt.Errorf("sequential_min_samples must be at least 2, got %d", h.SequentialMinSamples)
	}
	if h.WashedMaxSessions < 1 {
		return fmt.Errorf("washed_max_sessions must be positive, got %d", h.WashedMaxSessions)
	}
	if h.VelocityMaxMinutes < 0 || h.VelocityMinWords < 0 {
		return fmt.Errorf("velocity thresholds must not be negative")
	}
	return nil
}
