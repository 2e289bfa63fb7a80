package persona

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/suPer8Hu/persona-engine/internal/ai"
	"github.com/suPer8Hu/persona-engine/internal/chat"
)

const NoPreviousPersona = "No previous persona available."

const systemInstruction = `You are a careful analyst who builds short, evidence-based profiles of a person from their conversations with an assistant. You describe the user only, never the assistant.`

const personaInstruction = `Based on these conversations, build or update the user's persona.
Focus on the following aspects of the user:

1. Knowledge & Expertise:
   - Professional background
   - Areas of expertise

2. Interests & Patterns:
   - Hobbies and interests
   - Regular activities and frequently discussed topics

3. Opinions & Traits:
   - Their opinions, especially on hot topics such as crypto, AI, politics or religion
   - Their traits, e.g. MBTI or Big Five style observations

Previous persona: %s

Instructions:
1. Build the persona only from what the conversations show. Evolve the previous persona with the new conversations instead of starting over.
2. Keep the important patterns; do not try to conclude everything in detail.
3. Explain why you have each impression and cite evidence where possible.

Remember:
1. Output a short summary in the style of an evaluation report.
2. Do not turn everything into bullet points; pick the most important observations and explain them in a few sentences.
3. Be fair: report both good and bad impressions you observed.
4. End with one line of the form "Tags: keyword, keyword, ..." covering skills, occupation, industry and interests.`

// FormatTranscript renders turns oldest first as "User: ..." / "Assistant: ..."
// entries separated by a blank line.
func FormatTranscript(messages []chat.Message) string {
	parts := make([]string, 0, 2*len(messages))
	for _, m := range messages {
		parts = append(parts, "User: "+m.UserText, "Assistant: "+m.AssistantText)
	}
	return strings.Join(parts, "\n\n")
}

// BuildPrompt assembles the completion request for one persona version.
func BuildPrompt(previous string, messages []chat.Message) []ai.Message {
	if strings.TrimSpace(previous) == "" {
		previous = NoPreviousPersona
	}
	return []ai.Message{
		{Role: ai.RoleSystem, Content: systemInstruction},
		{Role: ai.RoleUser, Content: fmt.Sprintf(personaInstruction, previous)},
		{Role: ai.RoleUser, Content: "Conversations to analyze:\n" + FormatTranscript(messages)},
	}
}

// ParseTags extracts the closing keyword list of a persona: either a
// "Tags: a, b" line or a line made only of #hashtags. Returns nil when absent.
func ParseTags(text string) []string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.Trim(strings.TrimSpace(lines[i]), "*_-> ")
		if line == "" {
			continue
		}

		var raw []string
		if len(line) >= 5 && strings.EqualFold(line[:5], "tags:") {
			raw = strings.Split(line[5:], ",")
		} else if isHashtagLine(line) {
			raw = strings.Fields(line)
		} else {
			return nil
		}
		return normalizeTags(raw)
	}
	return nil
}

func isHashtagLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !strings.HasPrefix(f, "#") {
			return false
		}
	}
	return true
}

func normalizeTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimFunc(t, func(r rune) bool {
			return unicode.IsSpace(r) || r == '#' || r == '*' || r == '.' || r == '`'
		})
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
