package llm

import (
	"fmt"
	"strings"
)

// Shape is a request payload layout. Deployments disagree on which one they
// accept, so the gateway tries them in order.
type Shape string

const (
	// ShapeMessages is the role-tagged chat list: {model, messages:[{role, content}]}.
	ShapeMessages Shape = "messages"

	// ShapeFlattened sends the whole conversation as one user message.
	ShapeFlattened Shape = "flattened"

	// ShapePrompt sends the flattened conversation in a prompt field.
	ShapePrompt Shape = "prompt"
)

// DefaultShapes is the fallback order used when an endpoint lists none.
var DefaultShapes = []Shape{ShapeMessages, ShapeFlattened, ShapePrompt}

// ParseShape validates a shape name.
func ParseShape(s string) (Shape, error) {
	switch sh := Shape(strings.ToLower(strings.TrimSpace(s))); sh {
	case ShapeMessages, ShapeFlattened, ShapePrompt:
		return sh, nil
	}
	return "", fmt.Errorf("unknown payload shape %q", s)
}

// ParseShapes parses a comma-separated shape list. Empty input yields DefaultShapes.
func ParseShapes(list string) ([]Shape, error) {
	if strings.TrimSpace(list) == "" {
		return append([]Shape(nil), DefaultShapes...), nil
	}
	var out []Shape
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		sh, err := ParseShape(part)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// payload builds the JSON body for this shape.
func (s Shape) payload(conv Conversation, model string, maxTokens int) map[string]any {
	body := map[string]any{"model": model}
	if maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}

	switch s {
	case ShapeFlattened:
		body["messages"] = []wireMessage{{Role: string(RoleUser), Content: conv.Flatten()}}
	case ShapePrompt:
		body["prompt"] = conv.Flatten()
	default:
		turns := conv.Turns()
		msgs := make([]wireMessage, 0, len(turns))
		for _, t := range turns {
			msgs = append(msgs, wireMessage{Role: string(t.Role), Content: t.Text})
		}
		body["messages"] = msgs
	}
	return body
}
