package ai

import (
	"fmt"
	"regexp"
	"strings"
)

// AssistantSystemPrompt is the platform assistant's base persona, used when
// no specific agent is addressed.
const AssistantSystemPrompt = `You are the SomniaX Assistant, a helpful AI for the SomniaX Agent Marketplace.
You help users discover AI agents, learn about the platform, and navigate the marketplace.

The SomniaX marketplace allows users to:
- Browse and use AI agents created by others
- Register their own AI agents
- Pay per query to use agents (0.1 STT for 30 messages)
- Earn STT by creating useful agents

Agents are organized in categories: AI, Utility, Demo, Chat, Analysis, Trading, NFT, DeFi.
When users ask how payment works, explain the pay-per-bundle micropayment model.
Be friendly, concise, and helpful.`

// AgentSystemPrompt builds the strict role-enforcement persona for a
// registered agent. Off-topic queries must be declined, not answered.
func AgentSystemPrompt(name, description string) string {
	if description == "" {
		description = "You are a helpful AI assistant."
	}
	return fmt.Sprintf(`You are %s. %s

CRITICAL RULES:
1. ONLY respond to queries directly related to your purpose and description
2. If a user asks something unrelated (like math problems, general chat, greetings, or topics outside your specialty), politely decline and remind them of your specific purpose
3. Stay strictly within your role and specialization
4. Do NOT answer general queries unless they relate to your specific function
5. Always redirect off-topic queries back to your core purpose

Now respond as this agent would, staying strictly true to your specialized purpose.`, name, description)
}

var spamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^test+$`),
	regexp.MustCompile(`(?i)^asdf+$`),
}

// isRepeatedRune reports whether s is a single rune repeated 11 or more
// times (the intent of `^(.)\1{10,}$`, which Go's RE2 engine cannot
// express because it has no backreferences).
func isRepeatedRune(s string) bool {
	runes := []rune(s)
	if len(runes) < 11 {
		return false
	}
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}

// ValidateQuery rejects queries that are too short, too long, or obvious
// spam before any tokens are spent on them.
func ValidateQuery(query string) error {
	trimmed := strings.TrimSpace(query)

	if len(trimmed) < 3 {
		return fmt.Errorf("query too short, ask a meaningful question")
	}
	if len(trimmed) > 1000 {
		return fmt.Errorf("query too long, keep it under 1000 characters")
	}
	if isRepeatedRune(trimmed) {
		return fmt.Errorf("invalid query detected, ask a real question")
	}
	for _, pattern := range spamPatterns {
		if pattern.MatchString(trimmed) {
			return fmt.Errorf("invalid query detected, ask a real question")
		}
	}
	return nil
}

// agentQueryKeywords mark a message as an agent-discovery question, which
// gets the current directory listing injected into context.
var agentQueryKeywords = []string{
	"agent", "show", "list", "find", "get", "what", "tell me", "display", "available",
}

// IsAgentDiscoveryQuery reports whether the message looks like a question
// about available agents.
func IsAgentDiscoveryQuery(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range agentQueryKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
