package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AnthropicMessage represents a single user/assistant message.
type AnthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// AnthropicContentBlock is a content block of either a request message or a response.
type AnthropicContentBlock struct {
	Type      string                `json:"type"`
	Text      string                `json:"text,omitempty"`
	ID        string                `json:"id,omitempty"`
	Name      string                `json:"name,omitempty"`
	Input     json.RawMessage       `json:"input,omitempty"`
	ToolUseID string                `json:"tool_use_id,omitempty"`
	Content   json.RawMessage       `json:"content,omitempty"`
	IsError   bool                  `json:"is_error,omitempty"`
	Source    *AnthropicImageSource `json:"source,omitempty"`
}

// AnthropicImageSource is the source of an image block.
type AnthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// DataURL renders the source as something usable in an image_url part.
func (s *AnthropicImageSource) DataURL() string {
	if s == nil {
		return ""
	}
	if s.Type == "url" || s.URL != "" {
		return s.URL
	}
	return "data:" + s.MediaType + ";base64," + s.Data
}

// ParseSystemText parses "system" which may be a string or an array of text blocks.
func ParseSystemText(raw json.RawMessage) (string, error) {
	if !present(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	blocks, ok := ParseBlocks(raw)
	if !ok {
		return "", fmt.Errorf("invalid system field")
	}

	var parts []string
	for _, b := range blocks {
		if (b.Type == "" || b.Type == "text") && strings.TrimSpace(b.Text) != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// ParseContent parses message content that may be a string or an array of blocks.
// The boolean result reports whether the content was a plain string.
func (m *AnthropicMessage) ParseContent() ([]AnthropicContentBlock, bool, error) {
	if !present(m.Content) {
		return nil, false, nil
	}

	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return []AnthropicContentBlock{{Type: "text", Text: s}}, true, nil
	}

	blocks, ok := ParseBlocks(m.Content)
	if !ok {
		return nil, false, fmt.Errorf("invalid message content for role %q", m.Role)
	}
	return blocks, false, nil
}

// ToolResultText flattens tool_result content into plain text. Content that is
// neither a string nor a block list is returned verbatim.
func ToolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if blocks, ok := ParseBlocks(raw); ok {
		var out strings.Builder
		for _, b := range blocks {
			if b.Type == "" || b.Type == "text" {
				out.WriteString(b.Text)
			}
		}
		return out.String()
	}
	return strings.TrimSpace(string(raw))
}

// ParseBlocks decodes a JSON array of content blocks one element at a time.
// Elements that do not decode as a block are skipped. ok is false when raw
// is not an array.
func ParseBlocks(raw json.RawMessage) (blocks []AnthropicContentBlock, ok bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	blocks = make([]AnthropicContentBlock, 0, len(items))
	for _, item := range items {
		var b AnthropicContentBlock
		if err := json.Unmarshal(item, &b); err != nil {
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks, true
}
