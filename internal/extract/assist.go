package extract

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/linnemanlabs/citycare/internal/report"
)

var (
	titleKeys    = []string{"title_suggestion", "title"}
	categoryKeys = []string{"category_suggestion", "category"}
	summaryKeys  = []string{"summary", "summary_suggestion"}
	latKeys      = []string{"suggested_lat", "lat", "latitude"}
	lngKeys      = []string{"suggested_lng", "lng", "lon", "longitude"}
)

// Assist parses an authoring suggestion. A title field is required.
func Assist(raw string) (*AssistSuggestion, error) {
	for _, c := range candidates(raw, objectDelims) {
		obj, ok := parseObject(c.text)
		if !ok {
			continue
		}
		if s, ok := assistFromObject(obj); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no object with a title suggestion", ErrNoPayload)
}

func assistFromObject(obj gjson.Result) (*AssistSuggestion, bool) {
	tr, ok := field(obj, titleKeys...)
	if !ok {
		return nil, false
	}

	var s AssistSuggestion
	if t, ok := text(tr); ok {
		s.Title = &t
	}
	if r, ok := field(obj, categoryKeys...); ok {
		if t, ok := text(r); ok {
			cat, known := report.ParseCategory(t)
			if !known {
				cat = report.CategoryOther
			}
			s.Category = &cat
		}
	}
	if r, ok := field(obj, summaryKeys...); ok {
		if t, ok := text(r); ok {
			s.Summary = &t
		}
	}
	s.Lat = coordinate(obj, latKeys, 90)
	s.Lng = coordinate(obj, lngKeys, 180)
	if s.Lat == nil || s.Lng == nil {
		// half a coordinate is not a location
		s.Lat, s.Lng = nil, nil
	}
	return &s, true
}

func coordinate(obj gjson.Result, keys []string, limit float64) *float64 {
	r, ok := field(obj, keys...)
	if !ok {
		return nil
	}
	f, ok := number(r)
	if !ok || f < -limit || f > limit {
		return nil
	}
	return &f
}
