package chatformat

import (
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/n0madic/go-callview/internal/types"
)

// Attribute namespaces carrying chat messages. GenAI semantic conventions use
// gen_ai.*, OpenInference uses llm.*.
const (
	genAIPrompt         = "gen_ai.prompt"
	genAICompletion     = "gen_ai.completion"
	genAIInputMessages  = "gen_ai.input.messages"
	genAIOutputMessages = "gen_ai.output.messages"
	oiInputMessages     = "llm.input_messages"
	oiOutputMessages    = "llm.output_messages"
)

var (
	promptNamespaces     = []string{genAIPrompt, genAIInputMessages, oiInputMessages}
	completionNamespaces = []string{genAICompletion, genAIOutputMessages, oiOutputMessages}
	allNamespaces        = append(append([]string{}, promptNamespaces...), completionNamespaces...)
)

// spanAttrs is a flat view of span attributes keyed by dotted path. Nested
// objects and arrays are indexed both as a whole and leaf by leaf, so flat and
// nested spellings of the same attribute resolve identically.
type spanAttrs map[string]gjson.Result

func newSpanAttrs(sources ...gjson.Result) spanAttrs {
	attrs := spanAttrs{}
	for _, src := range sources {
		if src.IsObject() {
			attrs.add("", src)
		}
	}
	return attrs
}

func (a spanAttrs) add(prefix string, r gjson.Result) {
	if prefix != "" {
		if _, ok := a[prefix]; !ok {
			a[prefix] = r
		}
	}
	switch {
	case r.IsObject():
		r.ForEach(func(k, v gjson.Result) bool {
			a.add(joinKey(prefix, k.String()), v)
			return true
		})
	case r.IsArray():
		for i, v := range r.Array() {
			a.add(joinKey(prefix, strconv.Itoa(i)), v)
		}
	case isString(r) && isMessageNamespace(prefix):
		// some exporters serialize the whole message list as one JSON string
		if inner := gjson.Parse(r.Str); gjson.Valid(r.Str) && (inner.IsArray() || inner.IsObject()) {
			a.add(prefix, inner)
		}
	}
}

func joinKey(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + "." + k
}

func isMessageNamespace(key string) bool {
	for _, ns := range allNamespaces {
		if key == ns {
			return true
		}
	}
	return false
}

func (a spanAttrs) get(keys ...string) gjson.Result {
	for _, k := range keys {
		if r, ok := a[k]; ok && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

func (a spanAttrs) has(namespaces []string) bool {
	for k := range a {
		for _, ns := range namespaces {
			if k == ns || strings.HasPrefix(k, ns+".") {
				return true
			}
		}
	}
	return false
}

// indices returns the sorted numeric segments directly under prefix.
func (a spanAttrs) indices(prefix string) []int {
	seen := map[int]struct{}{}
	for k := range a {
		rest, ok := strings.CutPrefix(k, prefix+".")
		if !ok {
			continue
		}
		seg, _, _ := strings.Cut(rest, ".")
		if n, err := strconv.Atoi(seg); err == nil {
			seen[n] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func callSpanAttrs(v view) spanAttrs {
	return newSpanAttrs(v.attributes.Get("otel_span.attributes"), v.attributes, v.inputs, v.output)
}

func isOTELCall(v view) bool {
	if v.attributes.Get("otel_span").IsObject() {
		return true
	}
	return isOTELValue(v.attributes) || isOTELValue(v.inputs) || isOTELValue(v.output)
}

func isOTELValue(r gjson.Result) bool {
	if !r.IsObject() {
		return false
	}
	return newSpanAttrs(r).has(allNamespaces)
}

// otelRequest builds a request from prompt attributes, or returns nil when
// the span carries no prompt messages.
func otelRequest(a spanAttrs) *types.ChatRequest {
	var msgs []otelMessage
	for _, ns := range promptNamespaces {
		if msgs = a.messages(ns, "user"); len(msgs) > 0 {
			break
		}
	}
	if len(msgs) == 0 {
		return nil
	}

	req := &types.ChatRequest{Messages: make([]types.Message, 0, len(msgs))}
	for _, m := range msgs {
		req.Messages = append(req.Messages, m.Message)
	}
	req.Model = a.get("gen_ai.request.model", "llm.request.model", "llm.model_name").String()

	params := a.get("llm.invocation_parameters")
	if isString(params) {
		params = gjson.Parse(params.Str)
	}
	pick := func(attr, param string) gjson.Result {
		if r := a.get(attr); r.Exists() {
			return r
		}
		return params.Get(param)
	}
	req.Temperature = floatPtr(pick("gen_ai.request.temperature", "temperature"))
	req.MaxTokens = intPtr(pick("gen_ai.request.max_tokens", "max_tokens"))
	req.TopP = floatPtr(pick("gen_ai.request.top_p", "top_p"))
	req.FrequencyPenalty = floatPtr(pick("gen_ai.request.frequency_penalty", "frequency_penalty"))
	req.PresencePenalty = floatPtr(pick("gen_ai.request.presence_penalty", "presence_penalty"))
	req.Stop = stringList(pick("gen_ai.request.stop_sequences", "stop"))

	for _, ns := range []string{"gen_ai.request.functions", "llm.request.functions"} {
		for _, i := range a.indices(ns) {
			p := ns + "." + strconv.Itoa(i) + "."
			params := a.get(p + "parameters")
			if isString(params) && gjson.Valid(params.Str) {
				params = gjson.Parse(params.Str)
			}
			req.Tools = append(req.Tools, types.Tool{
				Type: "function",
				Function: types.FunctionDef{
					Name:        a.get(p + "name").String(),
					Description: a.get(p + "description").String(),
					Parameters:  rawJSON(params),
				},
			})
		}
	}
	for _, i := range a.indices("llm.tools") {
		schema := a.get("llm.tools." + strconv.Itoa(i) + ".tool.json_schema")
		if isString(schema) {
			schema = gjson.Parse(schema.Str)
		}
		if tool, ok := decodeOpenAITool(schema); ok {
			req.Tools = append(req.Tools, tool)
		}
	}
	return req
}

// otelCompletion builds a completion from completion attributes. A nil
// request means the span is still running and yields nil.
func otelCompletion(a spanAttrs, req *types.ChatRequest) *types.ChatCompletion {
	if req == nil {
		return nil
	}
	comp := &types.ChatCompletion{
		ID:      a.get("gen_ai.response.id").String(),
		Model:   a.get("gen_ai.response.model", "llm.response.model", "llm.model_name").String(),
		Choices: []types.Choice{},
	}
	if comp.Model == "" {
		comp.Model = req.Model
	}

	var msgs []otelMessage
	for _, ns := range completionNamespaces {
		if msgs = a.messages(ns, "assistant"); len(msgs) > 0 {
			break
		}
	}
	reasons := a.get("gen_ai.response.finish_reasons").Array()
	for i, m := range msgs {
		finish := m.finishReason
		if finish == nil && i < len(reasons) {
			finish = stringPtr(reasons[i])
		}
		comp.Choices = append(comp.Choices, types.Choice{Index: i, Message: m.Message, FinishReason: finish})
	}

	prompt := a.get("gen_ai.usage.input_tokens", "gen_ai.usage.prompt_tokens", "llm.usage.prompt_tokens", "llm.token_count.prompt")
	completion := a.get("gen_ai.usage.output_tokens", "gen_ai.usage.completion_tokens", "llm.usage.completion_tokens", "llm.token_count.completion")
	if prompt.Exists() || completion.Exists() {
		comp.Usage = types.NewUsage(int(prompt.Int()), int(completion.Int()),
			int(a.get("llm.usage.total_tokens", "llm.token_count.total").Int()))
	}
	return comp
}

type otelMessage struct {
	types.Message
	finishReason *string
}

func (a spanAttrs) messages(ns, defaultRole string) []otelMessage {
	var out []otelMessage
	for _, i := range a.indices(ns) {
		p := ns + "." + strconv.Itoa(i) + "."
		if a.has([]string{p + "message"}) {
			p += "message."
		}
		msg := types.Message{
			Role:       a.get(p + "role").String(),
			ToolCallID: a.get(p+"tool_call_id", p+"tool_call.id").String(),
			Name:       a.get(p + "name").String(),
		}
		if msg.Role == "" {
			msg.Role = defaultRole
		}
		msg.Content = a.content(p)
		msg.ToolCalls = a.toolCalls(p)

		var parts []types.MessagePart
		for _, j := range a.indices(p + "parts") {
			pp := p + "parts." + strconv.Itoa(j) + "."
			switch a.get(pp + "type").String() {
			case "text":
				parts = append(parts, types.TextPart(a.get(pp+"content", pp+"text").String()))
			case "tool_call":
				msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
					ID:       a.get(pp + "id").String(),
					Type:     "function",
					Function: types.FunctionCall{Name: a.get(pp + "name").String(), Arguments: argumentsString(a.get(pp + "arguments"))},
				})
			case "tool_call_response":
				msg.ToolCallID = a.get(pp + "id").String()
				parts = append(parts, types.TextPart(textOrRaw(a.get(pp+"response", pp+"result"))))
			}
		}
		if msg.Content == nil && len(parts) > 0 {
			msg.Content = collapseText(parts)
		}
		out = append(out, otelMessage{Message: msg, finishReason: stringPtr(a.get(p+"finish_reason", ns+"."+strconv.Itoa(i)+".finish_reason"))})
	}
	return out
}

func (a spanAttrs) content(p string) *types.Content {
	c := a.get(p + "content")
	if isString(c) {
		if trimmed := strings.TrimSpace(c.Str); strings.HasPrefix(trimmed, "[") && gjson.Valid(trimmed) {
			return decodeOpenAIContent(gjson.Parse(trimmed))
		}
		return types.TextContent(c.Str)
	}
	if c.IsArray() || c.IsObject() {
		return decodeOpenAIContent(c)
	}

	// OpenInference multi-part content
	var parts []types.MessagePart
	for _, j := range a.indices(p + "contents") {
		cp := p + "contents." + strconv.Itoa(j) + ".message_content."
		switch a.get(cp + "type").String() {
		case "image":
			parts = append(parts, types.ImagePart(a.get(cp+"image.image.url", cp+"image.url").String()))
		default:
			parts = append(parts, types.TextPart(a.get(cp+"text").String()))
		}
	}
	if len(parts) > 0 {
		return collapseText(parts)
	}
	return nil
}

func (a spanAttrs) toolCalls(p string) []types.ToolCall {
	var out []types.ToolCall
	for _, j := range a.indices(p + "tool_calls") {
		tp := p + "tool_calls." + strconv.Itoa(j) + "."
		out = append(out, types.ToolCall{
			ID:   a.get(tp+"id", tp+"tool_call.id").String(),
			Type: "function",
			Function: types.FunctionCall{
				Name:      a.get(tp+"name", tp+"function.name", tp+"tool_call.function.name").String(),
				Arguments: argumentsString(a.get(tp+"arguments", tp+"function.arguments", tp+"tool_call.function.arguments")),
			},
		})
	}
	return out
}

// collapseText keeps text-only content as a string.
func collapseText(parts []types.MessagePart) *types.Content {
	var b strings.Builder
	for _, p := range parts {
		if p.Type != types.PartText {
			return types.PartsContent(parts...)
		}
		b.WriteString(p.Text)
	}
	return types.TextContent(b.String())
}
