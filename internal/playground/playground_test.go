package playground

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/n0madic/go-callview/internal/models"
	"github.com/n0madic/go-callview/internal/types"
)

func TestDefaultState(t *testing.T) {
	s := DefaultState()
	assert.True(t, s.TrackLLMCall)
	assert.Equal(t, ResponseFormatText, s.ResponseFormat)
	assert.Equal(t, 1.0, s.Temperature)
	assert.Equal(t, 4096, s.MaxTokens)
	assert.Equal(t, 1.0, s.TopP)
	assert.Equal(t, 1, s.NTimes)
	assert.Equal(t, 16384, s.MaxTokensLimit)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", s.Model)
	assert.JSONEq(t, `{"messages":[{"role":"system","content":"`+DefaultSystemMessage+`"}]}`, string(s.TraceCall.Inputs))
}

func TestFromCall(t *testing.T) {
	call := &types.Call{Inputs: json.RawMessage(`{
		"model": "gpt-4o-mini",
		"messages": [{"role":"user","content":"hi"}],
		"tools": [
			{"type":"function","function":{"name":"lookup","parameters":{"type":"object"}}},
			{"type":"code_interpreter"}
		],
		"response_format": {"type":"json_object"},
		"n": "2.9",
		"temperature": "0.25",
		"top_p": "abc",
		"frequency_penalty": 0.5,
		"presence_penalty": null
	}`)}

	s := FromCall(call)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", s.Model)
	require.Len(t, s.Functions, 1)
	assert.JSONEq(t, `{"name":"lookup","parameters":{"type":"object"}}`, string(s.Functions[0]))
	assert.Equal(t, ResponseFormatJSONObject, s.ResponseFormat)
	assert.Equal(t, 2, s.NTimes)
	assert.Equal(t, 0.25, s.Temperature)
	assert.Equal(t, 1.0, s.TopP, "unparsable value falls back to default")
	assert.Equal(t, 0.5, s.FrequencyPenalty)
	assert.Equal(t, 0.0, s.PresencePenalty)
	assert.Equal(t, 16384, s.MaxTokensLimit)
}

func TestFromCallUnknownModelAndNoInputs(t *testing.T) {
	s := FromCall(&types.Call{Inputs: json.RawMessage(`{"model":"llama-3-70b"}`)})
	assert.Equal(t, models.DefaultModel, s.Model)

	s = FromCall(&types.Call{})
	assert.Equal(t, DefaultState().Model, s.Model)
	require.NotNil(t, s.TraceCall)

	s = FromCall(&types.Call{Inputs: json.RawMessage(`{"model":"claude-3-7-sonnet-20250219"}`)})
	assert.Equal(t, 64000, s.MaxTokensLimit)
}

func TestParseTraceCallAnthropic(t *testing.T) {
	call := &types.Call{
		Inputs: json.RawMessage(`{"model":"claude-3-5-haiku-20241022","system":"be brief","messages":[{"role":"user","content":"hi"}]}`),
		Output: json.RawMessage(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-20241022",
			"content":[{"type":"text","text":"hello"},{"type":"tool_use","id":"tu_1","name":"lookup","input":{"q":"x"}}],
			"stop_reason":"tool_use"}`),
	}
	origInputs, origOutput := string(call.Inputs), string(call.Output)

	parsed := ParseTraceCall(call)
	out := gjson.ParseBytes(parsed.Output)
	assert.False(t, out.Get("content").Exists())
	assert.False(t, out.Get("stop_reason").Exists())
	assert.Equal(t, "msg_1", out.Get("id").String())
	require.Len(t, out.Get("choices").Array(), 2)
	assert.Equal(t, "hello", out.Get("choices.0.message.content").String())
	assert.Equal(t, "tool_use", out.Get("choices.0.finish_reason").String())
	assert.Equal(t, 1, int(out.Get("choices.1.index").Int()))
	assert.Equal(t, "lookup", out.Get("choices.1.message.tool_calls.0.function.name").String())
	assert.JSONEq(t, `{"q":"x"}`, out.Get("choices.1.message.tool_calls.0.function.arguments").String())

	in := gjson.ParseBytes(parsed.Inputs)
	assert.False(t, in.Get("system").Exists())
	assert.Equal(t, "system", in.Get("messages.0.role").String())
	assert.Equal(t, "be brief", in.Get("messages.0.content").String())
	assert.Equal(t, "hi", in.Get("messages.1.content").String())

	assert.Equal(t, origInputs, string(call.Inputs))
	assert.Equal(t, origOutput, string(call.Output))
}

func TestParseTraceCallLeavesOtherFormats(t *testing.T) {
	call := &types.Call{
		Inputs: json.RawMessage(`{"messages":[{"role":"user","content":"hi"}],"system":[{"type":"text","text":"block"}]}`),
		Output: json.RawMessage(`{"choices":[]}`),
	}
	parsed := ParseTraceCall(call)
	assert.JSONEq(t, string(call.Inputs), string(parsed.Inputs))
	assert.JSONEq(t, string(call.Output), string(parsed.Output))
	assert.Nil(t, ParseTraceCall(nil))
}

func TestInputs(t *testing.T) {
	s := DefaultState()
	in := Inputs(s)
	assert.NotEmpty(t, in["key"])
	assert.NotEqual(t, in["key"], Inputs(s)["key"])
	assert.Equal(t, 4096, in["max_tokens"])
	assert.NotContains(t, in, "stop")
	assert.NotContains(t, in, "response_format")
	assert.NotContains(t, in, "tools")
	assert.Contains(t, in, "messages")

	s.StopSequences = []string{"END"}
	s.ResponseFormat = ResponseFormatJSONObject
	s.Functions = []json.RawMessage{json.RawMessage(`{"name":"lookup"}`)}
	s.Model = "o3-mini-2025-01-31"
	raw, err := json.Marshal(Inputs(s))
	require.NoError(t, err)
	got := gjson.ParseBytes(raw)
	assert.Equal(t, "END", got.Get("stop.0").String())
	assert.Equal(t, "json_object", got.Get("response_format.type").String())
	assert.Equal(t, "function", got.Get("tools.0.type").String())
	assert.Equal(t, "lookup", got.Get("tools.0.function.name").String())
	assert.False(t, got.Get("max_tokens").Exists())
	assert.Equal(t, int64(4096), got.Get("max_completion_tokens").Int())
}

func newState(model string) State {
	s := DefaultState()
	s.Model = model
	s.MaxTokens = 256
	s.TraceCall = &types.Call{Inputs: json.RawMessage(`{"messages":[
		{"role":"system","content":"be brief"},
		{"role":"user","content":"hi"}
	]}`)}
	return s
}

func TestRunOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		req := gjson.ParseBytes(body)
		assert.False(t, req.Get("key").Exists())
		assert.Equal(t, "gpt-4o-mini-2024-07-18", req.Get("model").String())
		assert.Equal(t, "be brief", req.Get("messages.0.content").String())
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini-2024-07-18",
			"choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`)
	}))
	defer srv.Close()

	r := NewRunner(Config{OpenAI: ProviderConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test"}}, nil)
	comp, err := r.Run(context.Background(), newState("gpt-4o-mini-2024-07-18"))
	require.NoError(t, err)
	require.Len(t, comp.Choices, 1)
	assert.Equal(t, "hello", comp.Choices[0].Message.Content.Text)
	assert.Equal(t, 6, comp.Usage.TotalTokens)
}

func TestRunAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		req := gjson.ParseBytes(body)
		assert.Equal(t, "be brief", req.Get("system").String())
		assert.Equal(t, int64(256), req.Get("max_tokens").Int())
		require.Len(t, req.Get("messages").Array(), 1)
		assert.Equal(t, "user", req.Get("messages.0.role").String())
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-20241022",
			"content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":5,"output_tokens":1}}`)
	}))
	defer srv.Close()

	r := NewRunner(Config{Anthropic: ProviderConfig{BaseURL: srv.URL, APIKey: "sk-ant"}}, nil)
	comp, err := r.Run(context.Background(), newState("claude-3-5-haiku-20241022"))
	require.NoError(t, err)
	require.Len(t, comp.Choices, 1)
	assert.Equal(t, "stop", *comp.Choices[0].FinishReason)
	assert.Equal(t, "hello", comp.Choices[0].Message.Content.PlainText())
}

func TestRunGemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		req := gjson.ParseBytes(body)
		assert.Equal(t, "be brief", req.Get("systemInstruction.parts.0.text").String())
		assert.Equal(t, "hi", req.Get("contents.0.parts.0.text").String())
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hello"}]},"finishReason":"STOP","index":0}],
			"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":1,"totalTokenCount":6},
			"modelVersion":"gemini-2.0-flash"}`)
	}))
	defer srv.Close()

	r := NewRunner(Config{Gemini: ProviderConfig{BaseURL: srv.URL + "/", APIKey: "g-key"}}, nil)
	comp, err := r.Run(context.Background(), newState("gemini/gemini-2.0-flash"))
	require.NoError(t, err)
	require.Len(t, comp.Choices, 1)
	assert.Equal(t, "hello", comp.Choices[0].Message.Content.PlainText())
	assert.Equal(t, "gemini-2.0-flash", comp.Model)
}

func TestRunErrors(t *testing.T) {
	r := NewRunner(Config{}, nil)

	_, err := r.Run(context.Background(), newState(""))
	assert.True(t, errors.Is(err, ErrUnknownProvider))

	_, err = r.Run(context.Background(), newState("claude-3-5-haiku-20241022"))
	assert.True(t, errors.Is(err, ErrProviderNotConfigured))
}

func TestSplitDataURL(t *testing.T) {
	mt, data, ok := splitDataURL("data:image/png;base64,AAAA")
	require.True(t, ok)
	assert.Equal(t, "image/png", mt)
	assert.Equal(t, "AAAA", data)

	_, _, ok = splitDataURL("https://example.com/a.png")
	assert.False(t, ok)
	_, _, ok = splitDataURL("data:text/plain,hello")
	assert.False(t, ok)
}

func TestAnthropicBodyToolRoundTrip(t *testing.T) {
	req := &types.ChatRequest{
		Messages: []types.Message{
			{Role: "user", Content: types.TextContent("weather?")},
			{Role: "assistant", ToolCalls: []types.ToolCall{{ID: "c1", Type: "function", Function: types.FunctionCall{Name: "weather", Arguments: `{"city":"Paris"}`}}}},
			{Role: "tool", ToolCallID: "c1", Content: types.TextContent("sunny")},
		},
		Tools: []types.Tool{{Type: "function", Function: types.FunctionDef{Name: "weather"}}},
	}
	raw, err := json.Marshal(anthropicBody(newState("claude-3-5-haiku-20241022"), req))
	require.NoError(t, err)
	body := gjson.ParseBytes(raw)
	assert.Equal(t, "tool_use", body.Get("messages.1.content.0.type").String())
	assert.Equal(t, "Paris", body.Get("messages.1.content.0.input.city").String())
	assert.Equal(t, "user", body.Get("messages.2.role").String())
	assert.Equal(t, "tool_result", body.Get("messages.2.content.0.type").String())
	assert.Equal(t, "sunny", body.Get("messages.2.content.0.content").String())
	assert.Equal(t, "object", body.Get("tools.0.input_schema.type").String())
	assert.False(t, body.Get("top_p").Exists())
}
