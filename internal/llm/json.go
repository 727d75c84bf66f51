package llm

import (
	"encoding/json"
	"strings"
)

// StripCodeFence removes a surrounding markdown code fence, if any.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	if endIdx <= 1 {
		return strings.TrimSpace(strings.Trim(text, "`"))
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}

// FirstJSON returns the first complete JSON value opening with one of the
// given delimiters ('{' or '[') found in text, after code fences are removed.
func FirstJSON(text string, opens ...byte) (json.RawMessage, bool) {
	text = StripCodeFence(text)
	for i := 0; i < len(text); i++ {
		if !isOpen(text[i], opens) {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err == nil {
			return raw, true
		}
	}
	return nil, false
}

func isOpen(c byte, opens []byte) bool {
	for _, o := range opens {
		if c == o {
			return true
		}
	}
	return false
}

// ParseJSONResponse parses the first JSON object in an LLM response, handling
// markdown code blocks and surrounding prose. It returns nil when none parses.
func ParseJSONResponse(text string) map[string]any {
	raw, ok := FirstJSON(text, '{')
	if !ok {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	return result
}
