package llm

import (
	"strings"

	"github.com/tidwall/gjson"
)

// textPaths are checked in order before falling back to a full scan.
var textPaths = []string{
	"choices.0.message.content",
	"choices.0.message.content.0.text",
	"choices.0.text",
	"text",
}

// envelopeKeys hold metadata rather than answers and are skipped by the scan.
var envelopeKeys = map[string]bool{
	"id":                 true,
	"object":             true,
	"model":              true,
	"role":               true,
	"type":               true,
	"finish_reason":      true,
	"system_fingerprint": true,
	"created":            true,
}

// unknownEndpointHints mark error messages that mean "wrong URL or wrong
// payload for this deployment" even when served with a 2xx status.
var unknownEndpointHints = []string{
	"unknown request url",
	"no such endpoint",
	"unknown url",
	"invalid url",
	"not found",
	"unrecognized request argument",
}

// ExtractText returns the first plausible textual answer in a provider body.
func ExtractText(body []byte) (string, *Error) {
	if !gjson.ValidBytes(body) {
		return "", &Error{Kind: KindMalformed, Detail: "reply body is not valid JSON: " + snippet(string(body))}
	}
	root := gjson.ParseBytes(body)

	for _, path := range textPaths {
		if r := root.Get(path); r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
			return r.Str, nil
		}
	}

	if msg, ok := replyError(root); ok {
		return "", &Error{Kind: KindUnexpectedShape, Detail: "reply carries an error: " + snippet(msg)}
	}

	if s, ok := firstString(root); ok {
		return s, nil
	}
	return "", &Error{Kind: KindUnexpectedShape, Detail: "no text in reply: " + snippet(string(body))}
}

// firstString walks the decoded reply depth-first in document order.
func firstString(r gjson.Result) (string, bool) {
	switch {
	case r.Type == gjson.String:
		if strings.TrimSpace(r.Str) != "" {
			return r.Str, true
		}
	case r.IsObject(), r.IsArray():
		var (
			out   string
			found bool
		)
		r.ForEach(func(k, v gjson.Result) bool {
			if k.Type == gjson.String && envelopeKeys[k.Str] {
				return true
			}
			out, found = firstString(v)
			return !found
		})
		return out, found
	}
	return "", false
}

// errorMessage pulls a provider error message out of the envelope of a
// failed (non-2xx) reply.
func errorMessage(root gjson.Result) string {
	for _, path := range []string{"error.message", "error", "message", "detail"} {
		if r := root.Get(path); r.Type == gjson.String && r.Str != "" {
			if path == "message" && root.Get("choices").Exists() {
				continue
			}
			return r.Str
		}
	}
	return ""
}

func errorMessageBytes(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	return errorMessage(gjson.ParseBytes(body))
}

// replyError reports an error carried by a 2xx body. Only the error key
// counts there: message and detail are ordinary fields in some envelopes
// and may hold the answer itself.
func replyError(root gjson.Result) (string, bool) {
	e := root.Get("error")
	switch {
	case e.Type == gjson.String:
		return e.Str, strings.TrimSpace(e.Str) != ""
	case e.IsObject():
		if m := e.Get("message"); m.Type == gjson.String && m.Str != "" {
			return m.Str, true
		}
		return e.Raw, true
	}
	return "", false
}

// isUnknownEndpoint reports whether a 2xx body describes a missing route.
func isUnknownEndpoint(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	msg, ok := replyError(gjson.ParseBytes(body))
	if !ok {
		return false
	}
	msg = strings.ToLower(msg)
	for _, hint := range unknownEndpointHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

const maxSnippet = 512

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxSnippet {
		return s
	}
	return s[:maxSnippet-3] + "..."
}
