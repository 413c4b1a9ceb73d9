package triage

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/citycare/internal/llm"
	"github.com/linnemanlabs/citycare/internal/report"
)

const jsonOnlySystem = "You are a helpful assistant that returns only valid JSON."

func priorityConversation(req PriorityRequest) llm.Conversation {
	var sb strings.Builder
	sb.WriteString("You are a city management AI assistant. Analyze the following city report and assign a priority score from 1-5 (5 = most urgent, 1 = least urgent).\n\n")
	fmt.Fprintf(&sb, "Title: %s\n", req.Title)
	fmt.Fprintf(&sb, "Description: %s\n", req.Description)
	if req.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", req.Category)
	}
	if req.Context != "" {
		fmt.Fprintf(&sb, "Additional Context: %s\n", req.Context)
	}
	sb.WriteString(`
Weigh safety hazards, how many people are affected, urgency, and the severity of infrastructure damage.

Priority Guidelines:
- Priority 5: Immediate danger to people or property (e.g., gas leaks, structural damage, electrical hazards near schools)
- Priority 4: Major road-blocking issues, frequent reports from same location, safety concerns
- Priority 3: Significant issues requiring attention but not immediately dangerous
- Priority 2: Normal city repair needed, moderate urgency
- Priority 1: Purely aesthetic or minor issues

Consider keywords like 'dangerous', 'risk to life', 'school', 'bridge', 'gas', 'electrical', 'many reports', 'traffic'.

Return ONLY valid JSON in this exact format:
{
  "priority": <int 1-5>,
  "reason": "<short human-readable reason, 10-40 words>",
  "confidence": <0.0-1.0 numeric or "low"/"med"/"high">
}
Do not include any other text, only the JSON object.`)

	return llm.NewConversation(llm.System(jsonOnlySystem), llm.User(sb.String()))
}

func assistConversation(description string) llm.Conversation {
	cats := make([]string, len(report.Categories))
	for i, c := range report.Categories {
		cats[i] = string(c)
	}

	var sb strings.Builder
	sb.WriteString("You are a helpful assistant for a city reporting platform. A user has written the following description of a city issue:\n\n")
	sb.WriteString(description)
	sb.WriteString("\n\nPlease analyze this and provide:\n")
	sb.WriteString("1. A concise, clear title (max 60 characters)\n")
	fmt.Fprintf(&sb, "2. A category from this list: %s\n", strings.Join(cats, ", "))
	sb.WriteString("3. A 1-2 sentence summary\n")
	sb.WriteString("4. If you can identify a recognizable place name or location, suggest approximate latitude and longitude (nullable if unknown)\n\n")
	sb.WriteString(`Return ONLY valid JSON in this exact format:
{
  "title_suggestion": "<suggested title>",
  "category_suggestion": "<category from list>",
  "summary": "<1-2 sentence summary>",
  "suggested_lat": <decimal or null>,
  "suggested_lng": <decimal or null>
}
If location cannot be inferred, use null for lat/lng. Do not include any other text.`)

	return llm.NewConversation(llm.System(jsonOnlySystem), llm.User(sb.String()))
}

func helpConversation(req HelpRequest) llm.Conversation {
	var sb strings.Builder
	sb.WriteString("You are assisting municipal field staff. Write a short remediation plan for the following city report.\n\n")
	fmt.Fprintf(&sb, "Title: %s\n", req.Title)
	fmt.Fprintf(&sb, "Description: %s\n", req.Description)
	if req.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", req.Category)
	}
	sb.WriteString(`
Give 3 to 7 concrete, actionable steps in the order a crew would carry them out, and a one-line summary.

Return ONLY valid JSON in this exact format:
{
  "steps": ["<step 1>", "<step 2>", "<step 3>"],
  "summary": "<one line>"
}
Do not include any other text.`)

	return llm.NewConversation(llm.System(jsonOnlySystem), llm.User(sb.String()))
}
