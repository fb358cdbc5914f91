package chatformat

import (
	"github.com/tidwall/gjson"

	"github.com/n0madic/go-callview/internal/types"
)

func isOpenAICall(v view) bool {
	msgs := v.inputs.Get("messages")
	if !msgs.IsArray() {
		return false
	}
	for _, m := range msgs.Array() {
		if !m.IsObject() || !isString(m.Get("role")) {
			return false
		}
	}
	if !v.hasOutput() {
		return len(msgs.Array()) > 0
	}
	choices := v.output.Get("choices")
	if !choices.IsArray() {
		return false
	}
	for _, c := range choices.Array() {
		if !c.IsObject() || !c.Get("message").Exists() {
			return false
		}
	}
	return true
}

// decodeOpenAIRequest leniently reads an OpenAI chat completions request.
// Fields of the wrong shape are dropped rather than reported.
func decodeOpenAIRequest(req gjson.Result) *types.ChatRequest {
	out := &types.ChatRequest{Messages: []types.Message{}}
	if !req.IsObject() {
		return out
	}
	if model := req.Get("model"); isString(model) {
		out.Model = model.Str
	}
	for _, m := range req.Get("messages").Array() {
		if m.IsObject() {
			out.Messages = append(out.Messages, decodeOpenAIMessage(m))
		}
	}
	for _, t := range req.Get("tools").Array() {
		if tool, ok := decodeOpenAITool(t); ok {
			out.Tools = append(out.Tools, tool)
		}
	}
	if rf := req.Get("response_format"); rf.IsObject() && isString(rf.Get("type")) {
		out.ResponseFormat = &types.ResponseFormat{
			Type:       rf.Get("type").Str,
			JSONSchema: rawJSON(rf.Get("json_schema")),
		}
	}
	out.Temperature = floatPtr(req.Get("temperature"))
	out.MaxTokens = intPtr(first(req, "max_tokens", "max_completion_tokens"))
	out.Stop = stringList(req.Get("stop"))
	out.TopP = floatPtr(req.Get("top_p"))
	out.FrequencyPenalty = floatPtr(req.Get("frequency_penalty"))
	out.PresencePenalty = floatPtr(req.Get("presence_penalty"))
	out.N = intPtr(req.Get("n"))
	return out
}

func decodeOpenAIMessage(m gjson.Result) types.Message {
	msg := types.Message{
		Role:       m.Get("role").String(),
		Content:    decodeOpenAIContent(m.Get("content")),
		ToolCallID: m.Get("tool_call_id").String(),
		Name:       m.Get("name").String(),
	}
	for _, tc := range m.Get("tool_calls").Array() {
		if !tc.IsObject() {
			continue
		}
		typ := tc.Get("type").String()
		if typ == "" {
			typ = "function"
		}
		msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
			ID:   tc.Get("id").String(),
			Type: typ,
			Function: types.FunctionCall{
				Name:      tc.Get("function.name").String(),
				Arguments: argumentsString(tc.Get("function.arguments")),
			},
		})
	}
	return msg
}

func decodeOpenAIContent(c gjson.Result) *types.Content {
	switch {
	case isString(c):
		return types.TextContent(c.Str)
	case c.IsArray():
		parts := make([]types.MessagePart, 0)
		for _, p := range c.Array() {
			if part, ok := decodeOpenAIPart(p); ok {
				parts = append(parts, part)
			}
		}
		return types.PartsContent(parts...)
	case c.IsObject():
		if part, ok := decodeOpenAIPart(c); ok {
			return types.PartsContent(part)
		}
	}
	return nil
}

func decodeOpenAIPart(p gjson.Result) (types.MessagePart, bool) {
	if isString(p) {
		return types.TextPart(p.Str), true
	}
	if !p.IsObject() {
		return types.MessagePart{}, false
	}
	switch typ := p.Get("type").String(); typ {
	case "text", "input_text", "output_text", "":
		text := p.Get("text")
		if !text.Exists() {
			text = p.Get("content")
		}
		return types.TextPart(textOrRaw(text)), true
	case "refusal":
		return types.TextPart(p.Get("refusal").String()), true
	case "image_url", "input_image":
		url := p.Get("image_url")
		if url.IsObject() {
			url = url.Get("url")
		}
		part := types.ImagePart(url.String())
		detail := p.Get("image_url.detail")
		if !detail.Exists() {
			detail = p.Get("detail")
		}
		part.ImageURL.Detail = detail.String()
		return part, true
	case types.PartToolUse:
		return types.MessagePart{
			Type:  typ,
			ID:    p.Get("id").String(),
			Name:  p.Get("name").String(),
			Input: rawJSON(p.Get("input")),
		}, true
	case types.PartToolResult:
		return types.MessagePart{
			Type:      typ,
			ToolUseID: p.Get("tool_use_id").String(),
			Content:   rawJSON(p.Get("content")),
			IsError:   p.Get("is_error").Bool(),
		}, true
	default:
		return types.MessagePart{Type: typ, Text: p.Get("text").String()}, true
	}
}

func decodeOpenAITool(t gjson.Result) (types.Tool, bool) {
	if !t.IsObject() {
		return types.Tool{}, false
	}
	fn := t.Get("function")
	if !fn.IsObject() {
		// Responses style: {type, name, description, parameters}
		if !isString(t.Get("name")) {
			return types.Tool{}, false
		}
		fn = t
	}
	tool := types.Tool{
		Type: "function",
		Function: types.FunctionDef{
			Name:        fn.Get("name").String(),
			Description: fn.Get("description").String(),
			Parameters:  rawJSON(fn.Get("parameters")),
		},
	}
	if s := fn.Get("strict"); s.IsBool() {
		b := s.Bool()
		tool.Function.Strict = &b
	}
	return tool, true
}

// decodeOpenAICompletion leniently reads a chat completion object. Non-object
// choices are skipped; the choices list is never nil.
func decodeOpenAICompletion(out gjson.Result) *types.ChatCompletion {
	comp := &types.ChatCompletion{Choices: []types.Choice{}}
	if !out.IsObject() {
		return comp
	}
	comp.ID = out.Get("id").String()
	comp.Created = out.Get("created").Int()
	comp.Model = out.Get("model").String()
	comp.SystemFingerprint = out.Get("system_fingerprint").String()
	for i, c := range out.Get("choices").Array() {
		if !c.IsObject() {
			continue
		}
		idx := i
		if n := c.Get("index"); isNumber(n) {
			idx = int(n.Int())
		}
		msg := decodeOpenAIMessage(c.Get("message"))
		if msg.Role == "" {
			msg.Role = "assistant"
		}
		comp.Choices = append(comp.Choices, types.Choice{
			Index:        idx,
			Message:      msg,
			FinishReason: stringPtr(c.Get("finish_reason")),
		})
	}
	if u := out.Get("usage"); u.IsObject() {
		comp.Usage = types.NewUsage(
			int(first(u, "prompt_tokens", "input_tokens").Int()),
			int(first(u, "completion_tokens", "output_tokens").Int()),
			int(u.Get("total_tokens").Int()),
		)
	}
	return comp
}
