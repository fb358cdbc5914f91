package chatformat

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/n0madic/go-callview/internal/types"
)

func isAnthropicCall(v view) bool {
	return v.inputs.Get("messages").IsArray() && isAnthropicCompletion(v.output)
}

func isAnthropicCompletion(out gjson.Result) bool {
	return out.IsObject() &&
		out.Get("type").String() == "message" &&
		out.Get("role").String() == "assistant" &&
		out.Get("content").IsArray()
}

// isAnthropicRequest recognises a Messages API request by the fields the
// OpenAI shape does not have: a top-level system prompt, Anthropic-only
// content blocks, input_schema tools or stop_sequences.
func isAnthropicRequest(req gjson.Result) bool {
	msgs := req.Get("messages")
	if !req.IsObject() || !msgs.IsArray() {
		return false
	}
	for _, m := range msgs.Array() {
		if m.Get("role").String() == "system" {
			return false
		}
	}
	if req.Get("system").Exists() || req.Get("stop_sequences").Exists() {
		return true
	}
	for _, t := range req.Get("tools").Array() {
		if t.Get("input_schema").Exists() {
			return true
		}
	}
	for _, m := range msgs.Array() {
		for _, b := range m.Get("content").Array() {
			switch b.Get("type").String() {
			case "tool_use", "tool_result", "thinking", "redacted_thinking":
				return true
			case "image":
				if b.Get("source").IsObject() {
					return true
				}
			}
		}
	}
	return false
}

// normalizeAnthropicRequest reads a Messages API request field by field, so a
// badly typed optional field only loses that field.
func normalizeAnthropicRequest(req gjson.Result) *types.ChatRequest {
	msgs := req.Get("messages").Array()
	out := &types.ChatRequest{
		Messages:    make([]types.Message, 0, len(msgs)+1),
		MaxTokens:   intPtr(req.Get("max_tokens")),
		Temperature: floatPtr(req.Get("temperature")),
		TopP:        floatPtr(req.Get("top_p")),
		Stop:        stringList(req.Get("stop_sequences")),
	}
	if m := req.Get("model"); isString(m) {
		out.Model = m.Str
	}
	if sys, err := types.ParseSystemText(rawJSON(req.Get("system"))); err == nil && sys != "" {
		out.Messages = append(out.Messages, types.Message{Role: "system", Content: types.TextContent(sys)})
	}
	for _, m := range msgs {
		if !m.IsObject() {
			continue
		}
		out.Messages = append(out.Messages, anthropicMessage(types.AnthropicMessage{
			Role:    m.Get("role").String(),
			Content: rawJSON(m.Get("content")),
		}))
	}
	for _, t := range req.Get("tools").Array() {
		name := t.Get("name")
		if !isString(name) {
			continue
		}
		fn := types.FunctionDef{Name: name.Str}
		if d := t.Get("description"); isString(d) {
			fn.Description = d.Str
		}
		if schema := t.Get("input_schema"); schema.IsObject() {
			fn.Parameters = rawJSON(schema)
		}
		out.Tools = append(out.Tools, types.Tool{Type: "function", Function: fn})
	}
	return out
}

func anthropicMessage(m types.AnthropicMessage) types.Message {
	msg := types.Message{Role: m.Role}
	blocks, plain, err := m.ParseContent()
	switch {
	case err != nil:
		msg.Content = types.TextContent(strings.TrimSpace(string(m.Content)))
	case plain:
		msg.Content = types.TextContent(blocks[0].Text)
	case blocks != nil:
		parts := make([]types.MessagePart, 0, len(blocks))
		for _, b := range blocks {
			if part, ok := anthropicPart(b); ok {
				parts = append(parts, part)
			}
		}
		msg.Content = types.PartsContent(parts...)
	}
	return msg
}

func anthropicPart(b types.AnthropicContentBlock) (types.MessagePart, bool) {
	switch b.Type {
	case "text":
		return types.TextPart(b.Text), true
	case "image":
		if b.Source == nil {
			return types.MessagePart{}, false
		}
		return types.ImagePart(b.Source.DataURL()), true
	case types.PartToolUse:
		return types.MessagePart{Type: b.Type, ID: b.ID, Name: b.Name, Input: b.Input}, true
	case types.PartToolResult:
		return types.MessagePart{Type: b.Type, ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError}, true
	case "thinking", "redacted_thinking":
		return types.MessagePart{}, false
	}
	return types.MessagePart{Type: b.Type, Text: b.Text}, true
}

func normalizeAnthropicCompletion(out gjson.Result) *types.ChatCompletion {
	blocks, _ := types.ParseBlocks(rawJSON(out.Get("content")))

	msg := types.Message{Role: "assistant"}
	parts := make([]types.MessagePart, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, types.TextPart(b.Text))
		case "image":
			if b.Source != nil {
				parts = append(parts, types.ImagePart(b.Source.DataURL()))
			}
		case types.PartToolUse:
			args := compactString(b.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:       b.ID,
				Type:     "function",
				Function: types.FunctionCall{Name: b.Name, Arguments: args},
			})
		}
	}
	if len(parts) > 0 || len(msg.ToolCalls) == 0 {
		msg.Content = types.PartsContent(parts...)
	}

	comp := &types.ChatCompletion{
		Choices: []types.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: anthropicFinishReason(stringPtr(out.Get("stop_reason"))),
		}},
	}
	if id := out.Get("id"); isString(id) {
		comp.ID = id.Str
	}
	if m := out.Get("model"); isString(m) {
		comp.Model = m.Str
	}
	if usage := out.Get("usage"); usage.IsObject() {
		comp.Usage = types.NewUsage(numberOrZero(usage.Get("input_tokens")), numberOrZero(usage.Get("output_tokens")), 0)
	}
	return comp
}

func anthropicFinishReason(stop *string) *string {
	if stop == nil {
		return nil
	}
	switch *stop {
	case "end_turn", "stop_sequence":
		return types.StringPtr("stop")
	case "max_tokens":
		return types.StringPtr("length")
	case "tool_use":
		return types.StringPtr("tool_calls")
	}
	return types.StringPtr(*stop)
}
