package ai

import (
	"context"
	"fmt"
	"strings"
)

// GenerateRequest asks for marketplace listing text. Field selects what to
// generate; the current values and categories are optional context.
type GenerateRequest struct {
	CurrentName        string
	CurrentDescription string
	Categories         []string
	Field              string // "name" or "description"
}

// GenerateAgentInfo produces a suggested agent name or description.
func (c *Client) GenerateAgentInfo(ctx context.Context, req GenerateRequest) (string, error) {
	var prompt string
	switch req.Field {
	case "name":
		prompt = namePrompt(req)
	case "description":
		prompt = descriptionPrompt(req)
	default:
		return "", fmt.Errorf("invalid generate field %q, want \"name\" or \"description\"", req.Field)
	}

	raw, err := c.complete(ctx, []Message{{Role: "user", Content: prompt}}, 200, 0.7)
	if err != nil {
		return "", fmt.Errorf("generation request: %w", err)
	}
	return cleanGenerated(raw), nil
}

func namePrompt(req GenerateRequest) string {
	var context []string
	if req.CurrentName != "" {
		context = append(context, "Current name idea: "+req.CurrentName)
	}
	if len(req.Categories) > 0 {
		context = append(context, "Categories: "+strings.Join(req.Categories, ", "))
	}

	if len(context) > 0 {
		return fmt.Sprintf(`You are an AI assistant helping to create agent names for a marketplace.

%s

Based on the above, generate a catchy, professional agent name (max 5 words).
Make it compelling, memorable, and relevant to the categories.

Respond with ONLY the agent name, no JSON, no quotes, no explanation.`, strings.Join(context, "\n"))
	}
	return `Generate a catchy, professional AI agent name (max 5 words).
Make it compelling and memorable.

Respond with ONLY the agent name, no JSON, no quotes, no explanation.`
}

func descriptionPrompt(req GenerateRequest) string {
	var context []string
	if req.CurrentDescription != "" {
		context = append(context, "Current description: "+req.CurrentDescription)
	} else if req.CurrentName != "" {
		context = append(context, "Agent name: "+req.CurrentName)
	}
	if len(req.Categories) > 0 {
		context = append(context, "Categories: "+strings.Join(req.Categories, ", "))
	}

	if len(context) > 0 {
		return fmt.Sprintf(`You are an AI assistant helping to create agent descriptions for a marketplace.

%s

Based on the above information, write a concise description explaining what this agent does.
Maximum 2 lines, around 20-30 words. Focus on the agent's value proposition.

Respond with ONLY the description text, no JSON, no quotes, no labels.`, strings.Join(context, "\n"))
	}
	return `Write a concise description for a general-purpose AI agent.
Maximum 2 lines, around 20-30 words. Make it compelling and clear.

Respond with ONLY the description text, no JSON, no quotes, no labels.`
}

// cleanGenerated strips the decoration models add despite instructions:
// surrounding quotes and leading bullets.
func cleanGenerated(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.TrimLeft(s, "•-* ")
	return strings.TrimSpace(s)
}
