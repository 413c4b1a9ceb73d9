package extract

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// candidate is one substring to try a structural parse on.
type candidate struct {
	text string
	path Path
}

// candidates returns the whole (fence-stripped) text, then the region from
// the first open to the last close delimiter for each delimiter pair.
func candidates(text string, pairs ...[2]byte) []candidate {
	doc := stripFences(text)
	out := []candidate{{text: doc, path: PathDocument}}
	for _, p := range pairs {
		i := strings.IndexByte(doc, p[0])
		j := strings.LastIndexByte(doc, p[1])
		if i < 0 || j <= i {
			continue
		}
		region := doc[i : j+1]
		if region == doc {
			continue
		}
		out = append(out, candidate{text: region, path: PathBracket})
	}
	return out
}

var (
	objectDelims = [2]byte{'{', '}'}
	arrayDelims  = [2]byte{'[', ']'}
)

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseObject returns the decoded object if text is a JSON object.
func parseObject(text string) (gjson.Result, bool) {
	if !gjson.Valid(text) {
		return gjson.Result{}, false
	}
	r := gjson.Parse(text)
	return r, r.IsObject()
}

// field returns the first present, non-null alias.
func field(obj gjson.Result, aliases ...string) (gjson.Result, bool) {
	for _, a := range aliases {
		if r := obj.Get(a); r.Exists() && r.Type != gjson.Null {
			return r, true
		}
	}
	return gjson.Result{}, false
}

// number reads a JSON number or numeric string.
func number(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Num, true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// text reads a non-empty trimmed string.
func text(r gjson.Result) (string, bool) {
	if r.Type != gjson.String {
		return "", false
	}
	s := strings.TrimSpace(r.Str)
	return s, s != ""
}
