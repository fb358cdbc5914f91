package chatformat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0madic/go-callview/internal/types"
)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestNormalizeAnthropicRequestPrependsSystem(t *testing.T) {
	req := NormalizeRequest(json.RawMessage(anthropicInputs))
	assert.JSONEq(t,
		`{"model":"claude-3-5-sonnet","messages":[{"role":"system","content":"Be brief"},{"role":"user","content":"Hi"}],"max_tokens":100}`,
		mustJSON(t, req))
}

func TestNormalizeAnthropicRequestBlocksAndTools(t *testing.T) {
	raw := `{
		"model":"claude",
		"system":[{"type":"text","text":"A"},{"type":"text","text":"B"}],
		"messages":[
			{"role":"user","content":[{"type":"text","text":"look"},{"type":"image","source":{"type":"base64","media_type":"image/png","data":"AAA"}}]},
			{"role":"assistant","content":[{"type":"tool_use","id":"tu1","name":"search","input":{"q":"go"}}]},
			{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu1","content":"found"}]}
		],
		"tools":[{"name":"search","description":"web","input_schema":{"type":"object"}}],
		"stop_sequences":["END"]
	}`
	req := NormalizeRequest(json.RawMessage(raw))
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "A\n\nB", req.Messages[0].Content.Text)

	user := req.Messages[1].Content
	require.True(t, user.IsParts())
	assert.Equal(t, types.PartImageURL, user.Parts[1].Type)
	assert.Equal(t, "data:image/png;base64,AAA", user.Parts[1].ImageURL.URL)

	assert.JSONEq(t, `[{"type":"tool_use","id":"tu1","name":"search","input":{"q":"go"}}]`, mustJSON(t, req.Messages[2].Content))
	assert.JSONEq(t, `[{"type":"tool_result","tool_use_id":"tu1","content":"found"}]`, mustJSON(t, req.Messages[3].Content))

	require.Len(t, req.Tools, 1)
	assert.Equal(t, "search", req.Tools[0].Function.Name)
	assert.JSONEq(t, `{"type":"object"}`, string(req.Tools[0].Function.Parameters))
	assert.Equal(t, []string{"END"}, req.Stop)
}

func TestNormalizeAnthropicCompletion(t *testing.T) {
	comp := NormalizeCompletion(nil, json.RawMessage(anthropicOutput))
	require.Len(t, comp.Choices, 1)
	choice := comp.Choices[0]
	assert.Equal(t, 0, choice.Index)
	require.NotNil(t, choice.FinishReason)
	assert.Equal(t, "stop", *choice.FinishReason)
	require.True(t, choice.Message.Content.IsParts())
	assert.Equal(t, []types.MessagePart{types.TextPart("Hello")}, choice.Message.Content.Parts)
	assert.Equal(t, &types.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, comp.Usage)
}

func TestNormalizeAnthropicCompletionToolUse(t *testing.T) {
	out := `{"type":"message","role":"assistant","content":[{"type":"text","text":"Let me check"},{"type":"tool_use","id":"tu1","name":"weather","input":{"city": "Paris"}}],"stop_reason":"tool_use"}`
	comp := NormalizeCompletion(nil, json.RawMessage(out))
	require.Len(t, comp.Choices, 1)
	msg := comp.Choices[0].Message
	assert.Equal(t, "tool_calls", *comp.Choices[0].FinishReason)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, types.ToolCall{ID: "tu1", Type: "function", Function: types.FunctionCall{Name: "weather", Arguments: `{"city":"Paris"}`}}, msg.ToolCalls[0])
	// tool_use blocks surface only as tool calls
	assert.Equal(t, []types.MessagePart{types.TextPart("Let me check")}, msg.Content.Parts)
}

func TestAnthropicFinishReason(t *testing.T) {
	for in, want := range map[string]string{"end_turn": "stop", "stop_sequence": "stop", "max_tokens": "length", "tool_use": "tool_calls", "refusal": "refusal"} {
		assert.Equal(t, want, *anthropicFinishReason(types.StringPtr(in)), in)
	}
	assert.Nil(t, anthropicFinishReason(nil))
}

func TestNormalizeAnthropicRequestOffTypedFields(t *testing.T) {
	raw := `{"system":"S","max_tokens":"1024","temperature":"hot","stop_sequences":7,
		"tools":[{"name":"f","input_schema":"nope"},{"description":"nameless"}],
		"messages":[{"role":"user","content":"hi"},3,{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":5}]}]}`
	req := NormalizeRequest(json.RawMessage(raw))
	assert.JSONEq(t,
		`{"messages":[{"role":"system","content":"S"},{"role":"user","content":"hi"},{"role":"user","content":[{"type":"text","text":"a"}]}],
		  "tools":[{"type":"function","function":{"name":"f"}}]}`,
		mustJSON(t, req))
}

func TestNormalizeAnthropicCompletionOffTypedFields(t *testing.T) {
	out := `{"type":"message","role":"assistant","id":1,"content":[{"type":"text","text":"hello"},{"type":"text","text":{}}],"stop_reason":5,"usage":{"input_tokens":3,"output_tokens":"2"}}`
	comp := NormalizeCompletion(nil, json.RawMessage(out))
	require.Len(t, comp.Choices, 1)
	assert.Empty(t, comp.ID)
	assert.Nil(t, comp.Choices[0].FinishReason)
	assert.Equal(t, []types.MessagePart{types.TextPart("hello")}, comp.Choices[0].Message.Content.Parts)
	assert.Equal(t, &types.Usage{PromptTokens: 3, CompletionTokens: 0, TotalTokens: 3}, comp.Usage)
}

func TestNormalizeGemini(t *testing.T) {
	req := NormalizeRequest(json.RawMessage(geminiInputs))
	assert.JSONEq(t,
		`{"model":"gemini-2.0-flash","messages":[{"role":"system","content":"Be nice"},{"role":"user","content":"Hi"}],"temperature":0.5,"max_tokens":64}`,
		mustJSON(t, req))

	comp := NormalizeCompletion(req, json.RawMessage(geminiOutput))
	assert.Equal(t, "gemini-2.0-flash", comp.Model)
	require.Len(t, comp.Choices, 1)
	assert.Equal(t, "assistant", comp.Choices[0].Message.Role)
	assert.Equal(t, "Hello", comp.Choices[0].Message.Content.Text)
	assert.Equal(t, "stop", *comp.Choices[0].FinishReason)
	assert.Equal(t, &types.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}, comp.Usage)
}

func TestNormalizeGeminiPartsAndCalls(t *testing.T) {
	raw := `{"contents":[
		{"role":"user","parts":[{"text":"what is this"},{"inline_data":{"mime_type":"image/jpeg","data":"QUJD"}}]},
		{"role":"model","parts":[{"functionCall":{"name":"lookup","args":{"id":7}}}]},
		{"role":"function","parts":[{"functionResponse":{"name":"lookup","response":{"ok":true}}}]}
	]}`
	req := NormalizeRequest(json.RawMessage(raw))
	require.Len(t, req.Messages, 3)

	first := req.Messages[0]
	require.True(t, first.Content.IsParts())
	assert.Equal(t, "data:image/jpeg;base64,QUJD", first.Content.Parts[1].ImageURL.URL)

	second := req.Messages[1]
	assert.Equal(t, "assistant", second.Role)
	assert.Nil(t, second.Content)
	require.Len(t, second.ToolCalls, 1)
	assert.Equal(t, `{"id":7}`, second.ToolCalls[0].Function.Arguments)

	third := req.Messages[2]
	assert.Equal(t, "user", third.Role)
	assert.JSONEq(t, `[{"type":"tool_result","tool_use_id":"lookup","content":{"ok":true}}]`, mustJSON(t, third.Content))
}

func TestNormalizeGeminiContentsString(t *testing.T) {
	req := NormalizeRequest(json.RawMessage(`{"model":"gemini-pro","contents":"tell me a joke"}`))
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "tell me a joke", req.Messages[0].Content.Text)
}

func TestGeminiFinishReason(t *testing.T) {
	cases := map[string]string{`"STOP"`: "stop", `"MAX_TOKENS"`: "length", `"SAFETY"`: "content_filter", `"SPII"`: "content_filter", `"MALFORMED_FUNCTION_CALL"`: "malformed_function_call", `1`: "stop"}
	for in, want := range cases {
		got := geminiFinishReason(parse(json.RawMessage(in)))
		require.NotNil(t, got, in)
		assert.Equal(t, want, *got, in)
	}
}

func TestNormalizeMistralCompletion(t *testing.T) {
	req := NormalizeRequest(json.RawMessage(mistralInputs))
	comp := NormalizeCompletion(req, json.RawMessage(mistralOutput))
	assert.Equal(t, "mistral-large", comp.Model)
	require.Len(t, comp.Choices, 1)
	assert.Equal(t, "ab", comp.Choices[0].Message.Content.Text)
	assert.False(t, comp.Choices[0].Message.Content.IsParts())
}

func TestNormalizeResponses(t *testing.T) {
	req := NormalizeRequest(json.RawMessage(responsesInputs))
	assert.Equal(t, "gpt-4.1", req.Model)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, []types.MessagePart{types.TextPart("hi")}, req.Messages[1].Content.Parts)
	assert.Equal(t, "assistant", req.Messages[2].Role)
	assert.Equal(t, "c1", req.Messages[2].ToolCalls[0].ID)
	assert.Equal(t, types.Message{Role: "tool", ToolCallID: "c1", Content: types.TextContent("42")}, req.Messages[3])

	comp := NormalizeCompletion(req, json.RawMessage(responsesOutput))
	assert.Equal(t, int64(10), comp.Created)
	require.Len(t, comp.Choices, 1)
	assert.Equal(t, "done", comp.Choices[0].Message.Content.Text)
	assert.Equal(t, "stop", *comp.Choices[0].FinishReason)
	assert.Equal(t, 6, comp.Usage.TotalTokens)
}

func TestNormalizeResponsesFinishReasons(t *testing.T) {
	incomplete := `{"object":"response","status":"incomplete","output":[{"type":"message","content":[{"type":"output_text","text":"trunc"}]}]}`
	assert.Equal(t, "length", *NormalizeCompletion(nil, json.RawMessage(incomplete)).Choices[0].FinishReason)

	calls := `{"object":"response","status":"completed","output":[{"type":"function_call","call_id":"c9","name":"f","arguments":"{\"a\":1}"}]}`
	comp := NormalizeCompletion(nil, json.RawMessage(calls))
	assert.Equal(t, "tool_calls", *comp.Choices[0].FinishReason)
	assert.Nil(t, comp.Choices[0].Message.Content)
	assert.Equal(t, `{"a":1}`, comp.Choices[0].Message.ToolCalls[0].Function.Arguments)
}

func TestNormalizeOpenAIPassthrough(t *testing.T) {
	req := NormalizeRequest(json.RawMessage(`{"model":"gpt-4o","messages":[{"role":"user","content":[{"type":"text","text":"hi"},{"type":"image_url","image_url":{"url":"https://x/y.png"}}]}],"temperature":0,"stop":"END","response_format":{"type":"json_object"}}`))
	assert.JSONEq(t,
		`{"model":"gpt-4o","messages":[{"role":"user","content":[{"type":"text","text":"hi"},{"type":"image_url","image_url":{"url":"https://x/y.png"}}]}],"response_format":{"type":"json_object"},"temperature":0,"stop":["END"]}`,
		mustJSON(t, req))

	comp := NormalizeCompletion(req, json.RawMessage(`{"id":"c","choices":[{"message":{"role":"assistant","content":null,"tool_calls":[{"id":"t","type":"function","function":{"name":"f","arguments":"{}"}}]},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	assert.JSONEq(t,
		`{"id":"c","choices":[{"index":0,"message":{"role":"assistant","tool_calls":[{"id":"t","type":"function","function":{"name":"f","arguments":"{}"}}]},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`,
		mustJSON(t, comp))
}

func TestNormalizePassthroughNeverNil(t *testing.T) {
	req := NormalizeRequest(json.RawMessage(`"just a string"`))
	require.NotNil(t, req)
	assert.Empty(t, req.Messages)

	comp := NormalizeCompletion(nil, json.RawMessage(`["weave:///e/p/object/a:1"]`))
	require.NotNil(t, comp)
	assert.NotNil(t, comp.Choices)
	assert.Empty(t, comp.Choices)
}

func TestNormalizeOTELFlat(t *testing.T) {
	c := call(`{}`, `{}`)
	c.Attributes = json.RawMessage(otelAttributes)

	req := NormalizeOTELRequest(c)
	require.NotNil(t, req)
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, []types.Message{
		{Role: "system", Content: types.TextContent("sys")},
		{Role: "user", Content: types.TextContent("hi")},
	}, req.Messages)

	comp := NormalizeOTELCompletion(c, req)
	require.NotNil(t, comp)
	assert.Equal(t, "gpt-4o", comp.Model)
	require.Len(t, comp.Choices, 1)
	assert.Equal(t, "hello", comp.Choices[0].Message.Content.Text)
	assert.Equal(t, "stop", *comp.Choices[0].FinishReason)
	assert.Equal(t, 10, comp.Usage.TotalTokens)
}

func TestNormalizeOTELNestedSpan(t *testing.T) {
	c := call(`{}`, `{}`)
	c.Attributes = json.RawMessage(`{"otel_span":{"name":"chat","attributes":{"gen_ai":{"prompt":[{"role":"user","content":"hi"}],"completion":[{"role":"assistant","content":"yo","tool_calls":[{"id":"t1","name":"f","arguments":{"x":1}}]}],"request":{"model":"m"}}}}}`)
	assert.Equal(t, OTEL, Classify(c))

	req := NormalizeOTELRequest(c)
	require.NotNil(t, req)
	assert.Equal(t, "m", req.Model)
	require.Len(t, req.Messages, 1)

	comp := NormalizeOTELCompletion(c, req)
	require.Len(t, comp.Choices, 1)
	assert.Equal(t, "yo", comp.Choices[0].Message.Content.Text)
	assert.Equal(t, []types.ToolCall{{ID: "t1", Type: "function", Function: types.FunctionCall{Name: "f", Arguments: `{"x":1}`}}}, comp.Choices[0].Message.ToolCalls)
}

func TestNormalizeOTELOpenInference(t *testing.T) {
	c := call(`{}`, `{}`)
	c.Attributes = json.RawMessage(`{"llm.input_messages.0.message.role":"user","llm.input_messages.0.message.content":"q","llm.output_messages.0.message.role":"assistant","llm.output_messages.0.message.content":"a","llm.model_name":"gpt","llm.invocation_parameters":"{\"temperature\":0.2}","llm.token_count.prompt":2,"llm.token_count.completion":1,"llm.token_count.total":3}`)

	req := NormalizeOTELRequest(c)
	require.NotNil(t, req)
	assert.Equal(t, "gpt", req.Model)
	assert.Equal(t, 0.2, *req.Temperature)
	assert.Equal(t, "q", req.Messages[0].Content.Text)

	comp := NormalizeOTELCompletion(c, req)
	assert.Equal(t, "a", comp.Choices[0].Message.Content.Text)
	assert.Equal(t, &types.Usage{PromptTokens: 2, CompletionTokens: 1, TotalTokens: 3}, comp.Usage)
}

func TestNormalizeOTELWithoutRequest(t *testing.T) {
	c := call(`{"a":1}`, `{"b":2}`)
	c.Attributes = json.RawMessage(`{"otel_span":{"attributes":{"gen_ai.completion.0.content":"x"}}}`)

	req := NormalizeOTELRequest(c)
	assert.Nil(t, req)
	assert.Nil(t, NormalizeOTELCompletion(c, req))
	assert.Same(t, c, NormalizeTraceCall(c))
}

func TestNormalizeOTELJSONStringMessages(t *testing.T) {
	req := NormalizeRequest(json.RawMessage(`{"gen_ai.prompt":"[{\"role\":\"user\",\"content\":\"packed\"}]"}`))
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "packed", req.Messages[0].Content.Text)
}

func TestNormalizeTraceCall(t *testing.T) {
	c := call(anthropicInputs, anthropicOutput)
	c.ID = "call-1"
	before := string(c.Inputs)

	out := NormalizeTraceCall(c)
	require.NotSame(t, c, out)
	assert.Equal(t, "call-1", out.ID)
	assert.Equal(t, before, string(c.Inputs))
	assert.JSONEq(t, mustJSON(t, NormalizeRequest(c.Inputs)), string(out.Inputs))

	var comp types.ChatCompletion
	require.NoError(t, json.Unmarshal(out.Output, &comp))
	assert.Equal(t, "stop", *comp.Choices[0].FinishReason)

	pending := call(anthropicInputs, "")
	assert.Same(t, pending, NormalizeTraceCall(pending))
}
