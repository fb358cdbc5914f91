package chatformat

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/n0madic/go-callview/internal/types"
)

func isResponsesCall(v view) bool {
	if !isResponsesRequest(v.inputs) {
		return false
	}
	if v.hasOutput() {
		return isResponsesResult(v.output)
	}
	// Without a result a bare string input is too weak a signal on its own.
	in := v.inputs.Get("input")
	return (in.IsArray() && len(in.Array()) > 0) || isString(v.inputs.Get("model"))
}

// isResponsesRequest matches a Responses API request: input is either a bare
// string or a list of typed items.
func isResponsesRequest(req gjson.Result) bool {
	in := req.Get("input")
	if isString(in) {
		return true
	}
	if !in.IsArray() {
		return false
	}
	for _, item := range in.Array() {
		if !item.IsObject() || (!item.Get("type").Exists() && !item.Get("role").Exists()) {
			return false
		}
	}
	return true
}

func isResponsesResult(out gjson.Result) bool {
	return out.IsObject() && out.Get("object").String() == "response" && out.Get("output").IsArray()
}

func normalizeResponsesRequest(req gjson.Result) *types.ChatRequest {
	out := &types.ChatRequest{Messages: []types.Message{}}
	if m := req.Get("model"); isString(m) {
		out.Model = m.Str
	}
	if instr := req.Get("instructions"); isString(instr) && instr.Str != "" {
		out.Messages = append(out.Messages, types.Message{Role: "system", Content: types.TextContent(instr.Str)})
	}

	in := req.Get("input")
	if isString(in) {
		out.Messages = append(out.Messages, types.Message{Role: "user", Content: types.TextContent(in.Str)})
	}
	for _, item := range in.Array() {
		switch item.Get("type").String() {
		case "message", "":
			out.Messages = append(out.Messages, types.Message{
				Role:    item.Get("role").String(),
				Content: decodeOpenAIContent(item.Get("content")),
			})
		case "function_call":
			call := types.ToolCall{
				ID:   first(item, "call_id", "id").String(),
				Type: "function",
				Function: types.FunctionCall{
					Name:      item.Get("name").String(),
					Arguments: argumentsString(item.Get("arguments")),
				},
			}
			// consecutive calls belong to the same assistant turn
			if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == "assistant" && len(out.Messages[n-1].ToolCalls) > 0 {
				out.Messages[n-1].ToolCalls = append(out.Messages[n-1].ToolCalls, call)
				continue
			}
			out.Messages = append(out.Messages, types.Message{Role: "assistant", ToolCalls: []types.ToolCall{call}})
		case "function_call_output":
			out.Messages = append(out.Messages, types.Message{
				Role:       "tool",
				ToolCallID: item.Get("call_id").String(),
				Content:    types.TextContent(textOrRaw(item.Get("output"))),
			})
		}
	}

	for _, t := range req.Get("tools").Array() {
		if t.Get("type").String() != "function" {
			continue
		}
		if tool, ok := decodeOpenAITool(t); ok {
			out.Tools = append(out.Tools, tool)
		}
	}
	if f := req.Get("text.format"); f.IsObject() {
		rf := &types.ResponseFormat{Type: f.Get("type").String()}
		if rf.Type == "json_schema" {
			rf.JSONSchema = types.MustJSON(map[string]any{
				"name":   f.Get("name").String(),
				"schema": rawJSON(f.Get("schema")),
				"strict": f.Get("strict").Bool(),
			})
		}
		if rf.Type != "" && rf.Type != "text" {
			out.ResponseFormat = rf
		}
	}
	out.Temperature = floatPtr(req.Get("temperature"))
	out.MaxTokens = intPtr(req.Get("max_output_tokens"))
	out.TopP = floatPtr(req.Get("top_p"))
	return out
}

func normalizeResponsesResult(out gjson.Result) *types.ChatCompletion {
	comp := &types.ChatCompletion{
		ID:      out.Get("id").String(),
		Created: out.Get("created_at").Int(),
		Model:   out.Get("model").String(),
	}

	msg := types.Message{Role: "assistant"}
	var text strings.Builder
	for _, item := range out.Get("output").Array() {
		switch item.Get("type").String() {
		case "message":
			for _, c := range item.Get("content").Array() {
				switch c.Get("type").String() {
				case "output_text":
					text.WriteString(c.Get("text").String())
				case "refusal":
					text.WriteString(c.Get("refusal").String())
				}
			}
		case "function_call":
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:   first(item, "call_id", "id").String(),
				Type: "function",
				Function: types.FunctionCall{
					Name:      item.Get("name").String(),
					Arguments: argumentsString(item.Get("arguments")),
				},
			})
		}
	}
	if text.Len() > 0 || len(msg.ToolCalls) == 0 {
		msg.Content = types.TextContent(text.String())
	}

	finish := "stop"
	switch {
	case len(msg.ToolCalls) > 0:
		finish = "tool_calls"
	case out.Get("status").String() == "incomplete":
		finish = "length"
	}
	comp.Choices = []types.Choice{{Index: 0, Message: msg, FinishReason: &finish}}

	if u := out.Get("usage"); u.IsObject() {
		comp.Usage = types.NewUsage(
			int(u.Get("input_tokens").Int()),
			int(u.Get("output_tokens").Int()),
			int(u.Get("total_tokens").Int()),
		)
	}
	return comp
}
