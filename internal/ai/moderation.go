package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
)

// ModerationResult is the moderator's verdict on an agent submission.
type ModerationResult struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

const moderatorSystemPrompt = "You are a content moderator. Always respond with valid JSON only."

func moderationPrompt(name, description, category string) string {
	return fmt.Sprintf(`You are an AI content moderator for an agent marketplace. Analyze the following agent submission and determine if it should be approved or denied.

Agent Name: %s
Category: %s
Description: %s

DENY if the agent:
- Contains inappropriate, offensive, or harmful content
- Promotes illegal activities, scams, or fraud
- Has misleading or deceptive descriptions
- Contains spam or low-quality content
- Violates ethical AI guidelines
- Has unclear or irrelevant purpose

APPROVE if the agent:
- Has a clear, legitimate purpose
- Description matches the category
- Follows ethical guidelines
- Provides value to users
- Has professional, appropriate content

Respond in this EXACT JSON format:
{
  "approved": true/false,
  "reason": "Brief explanation of your decision"
}

Only return the JSON, nothing else.`, name, category, description)
}

// Models occasionally wrap the verdict in prose; take the outermost object.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ValidateAgent asks the moderator model for an approval verdict on a
// submission. An unparseable model response is treated as a denial, not an
// error — the caller can resubmit.
func (c *Client) ValidateAgent(ctx context.Context, name, description, category string) (ModerationResult, error) {
	raw, err := c.complete(ctx, []Message{
		{Role: "system", Content: moderatorSystemPrompt},
		{Role: "user", Content: moderationPrompt(name, description, category)},
	}, 200, 0.3)
	if err != nil {
		return ModerationResult{}, fmt.Errorf("moderation request: %w", err)
	}

	return parseModeration(raw), nil
}

func parseModeration(raw string) ModerationResult {
	match := jsonObjectPattern.FindString(raw)
	if match == "" {
		return ModerationResult{Approved: false, Reason: "Invalid response format"}
	}

	var result ModerationResult
	if err := json.Unmarshal([]byte(match), &result); err != nil {
		return ModerationResult{Approved: false, Reason: "Invalid response format"}
	}
	if result.Reason == "" {
		result.Reason = "No reason provided"
	}
	return result
}
