package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	stepsKeys       = []string{"steps", "help_steps", "actions"}
	stepTextKeys    = []string{"text", "description", "action", "instruction", "step"}
	helpSummaryKeys = []string{"summary", "overview"}

	// leading "1.", "2)", "-", "*" list markers
	stepMarker = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+`)
)

// Help parses a remediation plan. The model may answer with an object
// carrying steps and a summary, or with a bare array of steps. Plans with
// fewer than MinSteps steps are rejected; longer ones are cut to MaxSteps.
func Help(raw string) (*HelpPlan, error) {
	var short int
	for _, c := range candidates(raw, objectDelims, arrayDelims) {
		if !gjson.Valid(c.text) {
			continue
		}
		root := gjson.Parse(c.text)

		var plan HelpPlan
		switch {
		case root.IsObject():
			sr, ok := field(root, stepsKeys...)
			if !ok || !sr.IsArray() {
				continue
			}
			plan.Steps = steps(sr)
			if r, ok := field(root, helpSummaryKeys...); ok {
				plan.Summary, _ = text(r)
			}
		case root.IsArray():
			plan.Steps = steps(root)
		default:
			continue
		}

		if len(plan.Steps) < MinSteps {
			short = max(short, len(plan.Steps))
			continue
		}
		if len(plan.Steps) > MaxSteps {
			plan.Steps = plan.Steps[:MaxSteps]
		}
		return &plan, nil
	}
	if short > 0 {
		return nil, fmt.Errorf("%w: %d steps, need at least %d", ErrNoPayload, short, MinSteps)
	}
	return nil, fmt.Errorf("%w: no step list found", ErrNoPayload)
}

func steps(arr gjson.Result) []string {
	var out []string
	arr.ForEach(func(_, v gjson.Result) bool {
		var s string
		switch {
		case v.Type == gjson.String:
			s = v.Str
		case v.IsObject():
			s = stepText(v)
		}
		s = strings.TrimSpace(stepMarker.ReplaceAllString(s, ""))
		if s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}

// stepText returns the first string alias that is not just a number, so
// {"step":1,"description":"..."} and {"step":"1","text":"..."} yield the text.
func stepText(obj gjson.Result) string {
	for _, k := range stepTextKeys {
		s, ok := text(obj.Get(k))
		if !ok {
			continue
		}
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			continue
		}
		return s
	}
	return ""
}
