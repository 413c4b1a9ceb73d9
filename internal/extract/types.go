// Package extract turns loosely formatted model text into typed triage
// results. Each use case tries a full-document parse, then the outermost
// bracketed region, then (for priorities) a permissive pattern match, and
// finally a deterministic default or ErrNoPayload.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/linnemanlabs/citycare/internal/report"
)

// ErrNoPayload means no parse path produced a usable record.
var ErrNoPayload = errors.New("extract: no usable payload")

// Priority bounds.
const (
	MinPriority = 1
	MaxPriority = 5
)

// Confidence is either a label (low, med, high) or a score in [0, 1].
type Confidence struct {
	label   string
	score   float64
	numeric bool
}

var (
	ConfidenceLow  = Confidence{label: "low"}
	ConfidenceMed  = Confidence{label: "med"}
	ConfidenceHigh = Confidence{label: "high"}
)

// ScoreConfidence returns a numeric confidence clamped to [0, 1].
func ScoreConfidence(f float64) Confidence {
	if math.IsNaN(f) {
		f = 0
	}
	return Confidence{score: math.Max(0, math.Min(1, f)), numeric: true}
}

// ParseConfidence accepts a label or a numeric string. Unknown text is med.
func ParseConfidence(s string) Confidence {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "low":
		return ConfidenceLow
	case "med", "medium":
		return ConfidenceMed
	case "high":
		return ConfidenceHigh
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return ScoreConfidence(f)
	}
	return ConfidenceMed
}

// IsScore reports whether the confidence is numeric.
func (c Confidence) IsScore() bool { return c.numeric }

// Score returns the numeric value, or a representative value for a label.
func (c Confidence) Score() float64 {
	if c.numeric {
		return c.score
	}
	switch c.label {
	case "low":
		return 0.25
	case "high":
		return 0.9
	}
	return 0.6
}

// Label returns the label, bucketing numeric scores.
func (c Confidence) Label() string {
	if !c.numeric {
		if c.label == "" {
			return "med"
		}
		return c.label
	}
	switch {
	case c.score < 0.4:
		return "low"
	case c.score < 0.75:
		return "med"
	}
	return "high"
}

func (c Confidence) String() string {
	if c.numeric {
		return strconv.FormatFloat(c.score, 'f', -1, 64)
	}
	return c.Label()
}

// MarshalJSON writes a number for scores and a string for labels.
func (c Confidence) MarshalJSON() ([]byte, error) {
	if c.numeric {
		return json.Marshal(c.score)
	}
	return json.Marshal(c.Label())
}

// UnmarshalJSON accepts either representation.
func (c *Confidence) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*c = ScoreConfidence(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("confidence: %w", err)
	}
	*c = ParseConfidence(s)
	return nil
}

// PriorityAssessment is an urgency score. Priority is always within
// [MinPriority, MaxPriority].
type PriorityAssessment struct {
	Priority   int        `json:"priority"`
	Reason     string     `json:"reason"`
	Confidence Confidence `json:"confidence"`
}

// ClampPriority forces p into [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	return max(MinPriority, min(MaxPriority, p))
}

// AssistSuggestion holds authoring hints for a new report. Unknown fields
// are null, never omitted.
type AssistSuggestion struct {
	Title    *string          `json:"title"`
	Category *report.Category `json:"category"`
	Summary  *string          `json:"summary"`
	Lat      *float64         `json:"lat"`
	Lng      *float64         `json:"lng"`
}

// Help plan step bounds.
const (
	MinSteps = 3
	MaxSteps = 7
)

// HelpPlan is an ordered list of remediation steps for field staff.
type HelpPlan struct {
	Steps   []string `json:"steps"`
	Summary string   `json:"summary"`
}

// Path names the parse strategy that produced a result.
type Path string

const (
	PathDocument Path = "document"
	PathBracket  Path = "bracket"
	PathPattern  Path = "pattern"
	PathDefault  Path = "default"
)
