package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// --- Request types ---

// ChatRequest is the canonical, vendor-neutral chat request shown in the
// transcript viewer. Field names follow the OpenAI chat completions schema.
type ChatRequest struct {
	Model            string          `json:"model,omitempty"`
	Messages         []Message       `json:"messages"`
	Tools            []Tool          `json:"tools,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	N                *int            `json:"n,omitempty"`
}

// ResponseFormat mirrors the response_format request parameter.
type ResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// Message represents a canonical chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    *Content   `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// Content is either a plain string or an ordered list of parts.
// A nil Parts slice means the string form.
type Content struct {
	Text  string
	Parts []MessagePart
}

// TextContent returns string-form content.
func TextContent(s string) *Content {
	return &Content{Text: s}
}

// PartsContent returns list-form content. An empty call still yields list form.
func PartsContent(parts ...MessagePart) *Content {
	if parts == nil {
		parts = []MessagePart{}
	}
	return &Content{Parts: parts}
}

// IsParts reports whether the content is in list form.
func (c *Content) IsParts() bool {
	return c != nil && c.Parts != nil
}

// PlainText flattens the content to text, joining text parts with newlines.
func (c *Content) PlainText() string {
	if c == nil {
		return ""
	}
	if !c.IsParts() {
		return c.Text
	}
	var buf bytes.Buffer
	for _, p := range c.Parts {
		if p.Type != PartText || p.Text == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(p.Text)
	}
	return buf.String()
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		c.Parts = nil
		return json.Unmarshal(data, &c.Text)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		c.Parts = make([]MessagePart, 0, len(raw))
		for _, r := range raw {
			var s string
			if err := json.Unmarshal(r, &s); err == nil {
				c.Parts = append(c.Parts, TextPart(s))
				continue
			}
			var p MessagePart
			if err := json.Unmarshal(r, &p); err != nil {
				return err
			}
			c.Parts = append(c.Parts, p)
		}
		return nil
	default:
		return fmt.Errorf("content must be a string or an array, got %s", data)
	}
}

// Part types of the canonical schema.
const (
	PartText       = "text"
	PartImageURL   = "image_url"
	PartToolUse    = "tool_use"
	PartToolResult = "tool_result"
)

// MessagePart is a tagged union on Type. Only the fields of the active variant
// are serialized.
type MessagePart struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ImageURL  *ImageURL       `json:"image_url,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ImageURL holds an image URL reference. Data URLs are allowed.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) MessagePart {
	return MessagePart{Type: PartText, Text: text}
}

// ImagePart builds an image_url part.
func ImagePart(url string) MessagePart {
	return MessagePart{Type: PartImageURL, ImageURL: &ImageURL{URL: url}}
}

func (p MessagePart) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case PartText:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{p.Type, p.Text})
	case PartImageURL:
		img := p.ImageURL
		if img == nil {
			img = &ImageURL{}
		}
		return json.Marshal(struct {
			Type     string    `json:"type"`
			ImageURL *ImageURL `json:"image_url"`
		}{p.Type, img})
	case PartToolUse:
		input := p.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return json.Marshal(struct {
			Type  string          `json:"type"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}{p.Type, p.ID, p.Name, input})
	case PartToolResult:
		content := p.Content
		if len(content) == 0 {
			content = json.RawMessage(`""`)
		}
		return json.Marshal(struct {
			Type      string          `json:"type"`
			ToolUseID string          `json:"tool_use_id"`
			Content   json.RawMessage `json:"content"`
			IsError   bool            `json:"is_error,omitempty"`
		}{p.Type, p.ToolUseID, content, p.IsError})
	}
	type plain MessagePart
	return json.Marshal(plain(p))
}

// Tool represents a function tool in the OpenAI format.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef defines a function tool.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

// ToolCall represents a tool call in an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and arguments string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// --- Response types ---

// ChatCompletion is the canonical completion paired with a ChatRequest.
type ChatCompletion struct {
	ID                string   `json:"id,omitempty"`
	Created           int64    `json:"created,omitempty"`
	Model             string   `json:"model,omitempty"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
	Choices           []Choice `json:"choices"`
	Usage             *Usage   `json:"usage,omitempty"`
}

// Choice is a single completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason *string `json:"finish_reason"`
}

// Usage holds token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
