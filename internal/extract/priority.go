package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	noReason       = "No reason provided"
	patternReason  = "Parsed from response"
	unparsedReason = "Unable to parse AI response - default priority"
)

var (
	priorityKeys   = []string{"priority", "priority_score", "urgency"}
	reasonKeys     = []string{"reason", "rationale", "explanation"}
	confidenceKeys = []string{"confidence", "certainty"}

	priorityPattern = regexp.MustCompile(`(?i)priority["']?\s*[:=]\s*(\d)`)
	reasonPattern   = regexp.MustCompile(`(?i)reason["']?\s*[:=]\s*["']?([^"'\n]+)`)
)

// DefaultPriority is returned when nothing usable can be recovered.
func DefaultPriority(reason string) PriorityAssessment {
	return PriorityAssessment{Priority: MinPriority, Reason: reason, Confidence: ConfidenceLow}
}

// Priority always returns an assessment with an in-range priority, along
// with the path that produced it.
func Priority(raw string) (PriorityAssessment, Path) {
	for _, c := range candidates(raw, objectDelims) {
		obj, ok := parseObject(c.text)
		if !ok {
			continue
		}
		if pa, ok := priorityFromObject(obj); ok {
			return pa, c.path
		}
	}

	if m := priorityPattern.FindStringSubmatch(raw); m != nil {
		p, _ := strconv.Atoi(m[1])
		reason := patternReason
		if rm := reasonPattern.FindStringSubmatch(raw); rm != nil {
			if r := strings.TrimSpace(rm[1]); r != "" {
				reason = r
			}
		}
		return PriorityAssessment{Priority: ClampPriority(p), Reason: reason, Confidence: ConfidenceLow}, PathPattern
	}

	return DefaultPriority(unparsedReason), PathDefault
}

func priorityFromObject(obj gjson.Result) (PriorityAssessment, bool) {
	pr, ok := field(obj, priorityKeys...)
	if !ok {
		return PriorityAssessment{}, false
	}
	n, ok := number(pr)
	if !ok {
		return PriorityAssessment{}, false
	}

	n = math.Max(MinPriority, math.Min(MaxPriority, math.Round(n)))
	pa := PriorityAssessment{
		Priority:   int(n),
		Reason:     noReason,
		Confidence: ConfidenceMed,
	}
	if r, ok := field(obj, reasonKeys...); ok {
		if s, ok := text(r); ok {
			pa.Reason = s
		}
	}
	if c, ok := field(obj, confidenceKeys...); ok {
		if c.Type == gjson.Number {
			pa.Confidence = ScoreConfidence(c.Num)
		} else {
			pa.Confidence = ParseConfidence(c.String())
		}
	}
	return pa, true
}
