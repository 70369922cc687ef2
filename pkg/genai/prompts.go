package genai

import (
	"fmt"
	"strings"
)

// Prompt builders for the four operation families. Deterministic for a
// given input so cache keys and tests stay stable.

func motivationRequest(model string, pendingCount int) Request {
	var prompt string
	switch {
	case pendingCount == 0:
		prompt = "The user has an empty task list. Write one short upbeat sentence inviting them to plan their day."
	case pendingCount <= 3:
		prompt = fmt.Sprintf("The user has %d pending tasks. Write one short encouraging sentence to help them finish.", pendingCount)
	default:
		prompt = fmt.Sprintf("The user has %d pending tasks and may feel overwhelmed. Write one short calming sentence suggesting they start with just one task.", pendingCount)
	}
	return Request{
		Model:     model,
		System:    "You are a friendly productivity coach. Reply with a single sentence, no quotes, no emoji.",
		Prompt:    prompt,
		MaxTokens: 60,
	}
}

func refineRequest(model, title string) Request {
	return Request{
		Model: model,
		System: "You are a task classifier. Reply with only a JSON object of the form " +
			`{"category":"work|personal|shopping|health|travel|other","tags":["..."],"is_urgent":false,"extracted_time":""}. ` +
			"extracted_time holds any time expression found in the task, verbatim, or an empty string.",
		Prompt:       "Classify this task: " + title,
		JSONResponse: true,
		MaxTokens:    200,
	}
}

func kitRequest(model, prompt string) Request {
	return Request{
		Model: model,
		System: "You generate reusable checklist templates. Reply with only a JSON object of the form " +
			`{"name":"...","items":["..."],"category":"work|personal|shopping|health|travel|other","tags":["..."]}. ` +
			"Between 5 and 15 concise items.",
		Prompt:       "Create a checklist template for: " + prompt,
		JSONResponse: true,
		MaxTokens:    500,
	}
}

func breakdownRequest(model, task string) Request {
	return Request{
		Model: model,
		System: "You split tasks into concrete subtasks. Reply with only a JSON array of strings, " +
			"3 to 7 actionable steps, each under 10 words.",
		Prompt:       "Break down this task: " + task,
		JSONResponse: true,
		MaxTokens:    300,
	}
}

// stripFences removes a markdown code fence around a JSON payload.
// Models asked for bare JSON still wrap it in ```json blocks often
// enough that parsing must tolerate it.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
