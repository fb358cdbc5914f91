package chatformat

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/n0madic/go-callview/internal/types"
)

func isGeminiCall(v view) bool {
	if !isGeminiRequest(v.inputs) {
		return false
	}
	if v.hasOutput() {
		return v.output.Get("candidates").IsArray()
	}
	return isGeminiContents(v.inputs.Get("contents")) || isString(v.inputs.Get("self.model_name"))
}

// isGeminiContents matches a non-empty list of {role?, parts} contents. A
// call still running is only taken for Gemini on this shape, since a bare
// "contents" argument is common in ordinary functions.
func isGeminiContents(c gjson.Result) bool {
	if !c.IsArray() {
		return false
	}
	items := c.Array()
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !item.IsObject() || !item.Get("parts").IsArray() {
			return false
		}
		if r := item.Get("role"); r.Exists() && !isString(r) {
			return false
		}
	}
	return true
}

func isGeminiRequest(req gjson.Result) bool {
	if !req.IsObject() {
		return false
	}
	if c := req.Get("contents"); isString(c) || c.IsObject() || c.IsArray() {
		return true
	}
	return first(req, "systemInstruction", "system_instruction").Exists()
}

func isGeminiCompletion(out gjson.Result) bool {
	return out.IsObject() && out.Get("candidates").IsArray()
}

func geminiConfig(req gjson.Result) gjson.Result {
	return first(req, "generationConfig", "generation_config", "config")
}

func normalizeGeminiRequest(req gjson.Result) *types.ChatRequest {
	out := &types.ChatRequest{Messages: []types.Message{}}
	cfg := geminiConfig(req)

	out.Model = geminiModel(req)

	sys := first(req, "systemInstruction", "system_instruction")
	if !sys.Exists() {
		sys = first(cfg, "systemInstruction", "system_instruction")
	}
	if text := geminiSystemText(sys); text != "" {
		out.Messages = append(out.Messages, types.Message{Role: "system", Content: types.TextContent(text)})
	}

	contents := req.Get("contents")
	switch {
	case isString(contents):
		out.Messages = append(out.Messages, types.Message{Role: "user", Content: types.TextContent(contents.Str)})
	case contents.IsObject():
		out.Messages = append(out.Messages, geminiMessage(contents, 0))
	case contents.IsArray():
		for i, c := range contents.Array() {
			switch {
			case isString(c):
				out.Messages = append(out.Messages, types.Message{Role: "user", Content: types.TextContent(c.Str)})
			case c.IsObject():
				out.Messages = append(out.Messages, geminiMessage(c, i))
			}
		}
	}

	if cfg.IsObject() {
		out.Temperature = floatPtr(cfg.Get("temperature"))
		out.MaxTokens = intPtr(first(cfg, "maxOutputTokens", "max_output_tokens"))
		out.TopP = floatPtr(first(cfg, "topP", "top_p"))
		out.Stop = stringList(first(cfg, "stopSequences", "stop_sequences"))
		out.N = intPtr(first(cfg, "candidateCount", "candidate_count"))
		out.FrequencyPenalty = floatPtr(first(cfg, "frequencyPenalty", "frequency_penalty"))
		out.PresencePenalty = floatPtr(first(cfg, "presencePenalty", "presence_penalty"))
		if mime := first(cfg, "responseMimeType", "response_mime_type").String(); mime == "application/json" {
			out.ResponseFormat = &types.ResponseFormat{Type: "json_object"}
			if schema := first(cfg, "responseSchema", "response_schema", "responseJsonSchema", "response_json_schema"); schema.Exists() {
				out.ResponseFormat = &types.ResponseFormat{
					Type:       "json_schema",
					JSONSchema: types.MustJSON(map[string]any{"name": "response", "schema": rawJSON(schema)}),
				}
			}
		}
	}

	tools := req.Get("tools")
	if !tools.Exists() {
		tools = cfg.Get("tools")
	}
	for _, t := range tools.Array() {
		for _, fd := range first(t, "functionDeclarations", "function_declarations").Array() {
			out.Tools = append(out.Tools, types.Tool{
				Type: "function",
				Function: types.FunctionDef{
					Name:        fd.Get("name").String(),
					Description: fd.Get("description").String(),
					Parameters:  rawJSON(first(fd, "parameters", "parametersJsonSchema", "parameters_json_schema")),
				},
			})
		}
	}
	return out
}

// geminiModel reads the model name from the request or the recorded
// GenerativeModel instance.
func geminiModel(req gjson.Result) string {
	if m := req.Get("model"); isString(m) {
		return m.Str
	}
	for _, path := range []string{"self.model_name", "self.model"} {
		if m := req.Get(path); isString(m) {
			return strings.TrimPrefix(m.Str, "models/")
		}
	}
	return ""
}

func geminiSystemText(sys gjson.Result) string {
	switch {
	case isString(sys):
		return sys.Str
	case sys.IsObject():
		return geminiText(sys.Get("parts"))
	case sys.IsArray():
		var texts []string
		for _, s := range sys.Array() {
			if t := geminiSystemText(s); t != "" {
				texts = append(texts, t)
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}

func geminiRole(role string) string {
	if role == "model" {
		return "assistant"
	}
	return "user"
}

func geminiText(parts gjson.Result) string {
	if isString(parts) {
		return parts.Str
	}
	var b strings.Builder
	for _, p := range parts.Array() {
		if isString(p) {
			b.WriteString(p.Str)
		} else if t := p.Get("text"); isString(t) && !p.Get("thought").Bool() {
			b.WriteString(t.Str)
		}
	}
	return b.String()
}

// geminiMessage converts a Content object. Text-only content collapses to a
// string; anything with images or function responses keeps part form.
func geminiMessage(c gjson.Result, index int) types.Message {
	msg := types.Message{Role: geminiRole(c.Get("role").String())}
	parts := c.Get("parts")
	if isString(parts) {
		msg.Content = types.TextContent(parts.Str)
		return msg
	}

	var out []types.MessagePart
	textOnly := true
	for j, p := range parts.Array() {
		if isString(p) {
			out = append(out, types.TextPart(p.Str))
			continue
		}
		switch {
		case p.Get("thought").Bool():
		case isString(p.Get("text")):
			out = append(out, types.TextPart(p.Get("text").Str))
		case first(p, "inlineData", "inline_data").IsObject():
			d := first(p, "inlineData", "inline_data")
			out = append(out, types.ImagePart(fmt.Sprintf("data:%s;base64,%s",
				first(d, "mimeType", "mime_type").String(), d.Get("data").String())))
			textOnly = false
		case first(p, "fileData", "file_data").IsObject():
			out = append(out, types.ImagePart(first(first(p, "fileData", "file_data"), "fileUri", "file_uri").String()))
			textOnly = false
		case first(p, "functionCall", "function_call").IsObject():
			fc := first(p, "functionCall", "function_call")
			msg.ToolCalls = append(msg.ToolCalls, geminiToolCall(fc, index, j))
		case first(p, "functionResponse", "function_response").IsObject():
			fr := first(p, "functionResponse", "function_response")
			id := fr.Get("id").String()
			if id == "" {
				id = fr.Get("name").String()
			}
			out = append(out, types.MessagePart{
				Type:      types.PartToolResult,
				ToolUseID: id,
				Content:   rawJSON(fr.Get("response")),
			})
			textOnly = false
		}
	}

	switch {
	case textOnly && len(out) > 0:
		var b strings.Builder
		for _, p := range out {
			b.WriteString(p.Text)
		}
		msg.Content = types.TextContent(b.String())
	case len(out) > 0:
		msg.Content = types.PartsContent(out...)
	case len(msg.ToolCalls) == 0:
		msg.Content = types.TextContent("")
	}
	return msg
}

func geminiToolCall(fc gjson.Result, i, j int) types.ToolCall {
	id := fc.Get("id").String()
	if id == "" {
		id = fmt.Sprintf("call_%d_%d", i, j)
	}
	return types.ToolCall{
		ID:   id,
		Type: "function",
		Function: types.FunctionCall{
			Name:      fc.Get("name").String(),
			Arguments: argumentsString(fc.Get("args")),
		},
	}
}

func normalizeGeminiCompletion(req *types.ChatRequest, out gjson.Result) *types.ChatCompletion {
	comp := &types.ChatCompletion{
		ID:      first(out, "responseId", "response_id").String(),
		Model:   first(out, "modelVersion", "model_version").String(),
		Choices: []types.Choice{},
	}
	if comp.Model == "" && req != nil {
		comp.Model = req.Model
	}
	for i, cand := range out.Get("candidates").Array() {
		idx := i
		if n := cand.Get("index"); isNumber(n) {
			idx = int(n.Int())
		}
		msg := geminiMessage(cand.Get("content"), i)
		msg.Role = "assistant"
		comp.Choices = append(comp.Choices, types.Choice{
			Index:        idx,
			Message:      msg,
			FinishReason: geminiFinishReason(first(cand, "finishReason", "finish_reason")),
		})
	}
	if u := first(out, "usageMetadata", "usage_metadata"); u.IsObject() {
		comp.Usage = types.NewUsage(
			int(first(u, "promptTokenCount", "prompt_token_count").Int()),
			int(first(u, "candidatesTokenCount", "candidates_token_count").Int()),
			int(first(u, "totalTokenCount", "total_token_count").Int()),
		)
	}
	return comp
}

func geminiFinishReason(r gjson.Result) *string {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	// The Python SDK records enum members as ints.
	if isNumber(r) {
		names := []string{"FINISH_REASON_UNSPECIFIED", "STOP", "MAX_TOKENS", "SAFETY", "RECITATION", "OTHER"}
		if n := int(r.Int()); n >= 0 && n < len(names) {
			r = gjson.Result{Type: gjson.String, Str: names[n]}
		}
	}
	reason := strings.TrimPrefix(r.String(), "FinishReason.")
	switch reason {
	case "STOP":
		return types.StringPtr("stop")
	case "MAX_TOKENS":
		return types.StringPtr("length")
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return types.StringPtr("content_filter")
	}
	return types.StringPtr(strings.ToLower(reason))
}
