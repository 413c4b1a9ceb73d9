package extract

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		priority   int
		reason     string
		confidence Confidence
		path       Path
	}{
		{
			name:       "clean json",
			raw:        `{"priority":5,"reason":"gas leak near school","confidence":"high"}`,
			priority:   5,
			reason:     "gas leak near school",
			confidence: ConfidenceHigh,
			path:       PathDocument,
		},
		{
			name:       "prose around payload",
			raw:        `Sure! {"priority":4,"reason":"road hazard"} Hope that helps!`,
			priority:   4,
			reason:     "road hazard",
			confidence: ConfidenceMed,
			path:       PathBracket,
		},
		{
			name:       "code fence",
			raw:        "```json\n{\"priority\": 2, \"reason\": \"minor\", \"confidence\": 0.8}\n```",
			priority:   2,
			reason:     "minor",
			confidence: ScoreConfidence(0.8),
			path:       PathDocument,
		},
		{
			name:       "numeric string and float",
			raw:        `{"priority":"3.0","rationale":"needs attention"}`,
			priority:   3,
			reason:     "needs attention",
			confidence: ConfidenceMed,
			path:       PathDocument,
		},
		{
			name:       "clamped high",
			raw:        `{"priority":9,"reason":"x"}`,
			priority:   5,
			reason:     "x",
			confidence: ConfidenceMed,
			path:       PathDocument,
		},
		{
			name:       "clamped low",
			raw:        `{"priority":-2}`,
			priority:   1,
			reason:     noReason,
			confidence: ConfidenceMed,
			path:       PathDocument,
		},
		{
			name:       "pattern fallback",
			raw:        "I think priority: 3 because of traffic",
			priority:   3,
			reason:     patternReason,
			confidence: ConfidenceLow,
			path:       PathPattern,
		},
		{
			name:       "pattern with reason",
			raw:        "priority = 4\nreason: 'blocked lane'",
			priority:   4,
			reason:     "blocked lane",
			confidence: ConfidenceLow,
			path:       PathPattern,
		},
		{
			name:       "broken json falls to pattern",
			raw:        `{"priority": 5, "reason": "sinkhole" `,
			priority:   5,
			reason:     "sinkhole",
			confidence: ConfidenceLow,
			path:       PathPattern,
		},
		{
			name:       "nothing usable",
			raw:        "I cannot help with that.",
			priority:   1,
			reason:     unparsedReason,
			confidence: ConfidenceLow,
			path:       PathDefault,
		},
		{
			name:       "json without priority",
			raw:        `{"urgent":true}`,
			priority:   1,
			reason:     unparsedReason,
			confidence: ConfidenceLow,
			path:       PathDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, path := Priority(tt.raw)
			if got.Priority != tt.priority {
				t.Errorf("priority = %d, want %d", got.Priority, tt.priority)
			}
			if got.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", got.Reason, tt.reason)
			}
			if got.Confidence != tt.confidence {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.confidence)
			}
			if path != tt.path {
				t.Errorf("path = %q, want %q", path, tt.path)
			}
		})
	}
}

func TestPriority_AlwaysInRange(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"", "{}", "[]", "null", `{"priority":null}`, `{"priority":"urgent"}`,
		`{"priority":1e9}`, "priority: 0", "priority: 9", `{"priority":-1e9}`,
	}
	for _, in := range inputs {
		got, _ := Priority(in)
		if got.Priority < MinPriority || got.Priority > MaxPriority {
			t.Errorf("Priority(%q) = %d, out of range", in, got.Priority)
		}
	}
}

func TestConfidence_JSON(t *testing.T) {
	t.Parallel()

	b, _ := json.Marshal(PriorityAssessment{Priority: 2, Reason: "r", Confidence: ConfidenceLow})
	if !strings.Contains(string(b), `"confidence":"low"`) {
		t.Errorf("label encoding: %s", b)
	}
	b, _ = json.Marshal(PriorityAssessment{Priority: 2, Reason: "r", Confidence: ScoreConfidence(0.5)})
	if !strings.Contains(string(b), `"confidence":0.5`) {
		t.Errorf("score encoding: %s", b)
	}

	var pa PriorityAssessment
	if err := json.Unmarshal([]byte(`{"priority":3,"reason":"r","confidence":"medium"}`), &pa); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if pa.Confidence != ConfidenceMed {
		t.Errorf("confidence = %v, want med", pa.Confidence)
	}
	if err := json.Unmarshal([]byte(`{"confidence":1.7}`), &pa); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !pa.Confidence.IsScore() || pa.Confidence.Score() != 1 {
		t.Errorf("score should clamp to 1, got %v", pa.Confidence)
	}
}

func TestConfidence_Label(t *testing.T) {
	t.Parallel()

	tests := []struct {
		c    Confidence
		want string
	}{
		{ScoreConfidence(0.1), "low"},
		{ScoreConfidence(0.5), "med"},
		{ScoreConfidence(0.95), "high"},
		{ConfidenceHigh, "high"},
		{Confidence{}, "med"},
	}
	for _, tt := range tests {
		if got := tt.c.Label(); got != tt.want {
			t.Errorf("Label(%v) = %q, want %q", tt.c, got, tt.want)
		}
	}
}
