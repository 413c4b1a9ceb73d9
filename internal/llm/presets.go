package llm

import (
	"fmt"
	"strings"
)

// Presets maps provider names to their OpenAI-compatible chat endpoints.
var Presets = map[string]string{
	"groq":       "https://api.groq.com/openai/v1/chat/completions",
	"openrouter": "https://openrouter.ai/api/v1/chat/completions",
	"deepinfra":  "https://api.deepinfra.com/v1/openai/chat/completions",
	"google":     "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions",
}

// BuildEndpoints orders the endpoint list: baseURL (or the preset's URL when
// baseURL is empty), then fallbacks. Duplicates are dropped and every
// endpoint gets the same shape order.
func BuildEndpoints(preset, baseURL string, fallbacks []string, shapes []Shape) ([]Endpoint, error) {
	primary := strings.TrimSpace(baseURL)
	if primary == "" && preset != "" {
		u, ok := Presets[strings.ToLower(strings.TrimSpace(preset))]
		if !ok {
			return nil, fmt.Errorf("unknown llm preset %q", preset)
		}
		primary = u
	}

	seen := make(map[string]bool)
	var out []Endpoint
	for _, u := range append([]string{primary}, fallbacks...) {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, Endpoint{URL: u, Shapes: append([]Shape(nil), shapes...)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no llm endpoint configured")
	}
	return out, nil
}
