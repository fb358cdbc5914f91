// Package playground turns a recorded call into an editable replay setup
// and runs it against the model provider again.
package playground

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/n0madic/go-callview/internal/chatformat"
	"github.com/n0madic/go-callview/internal/models"
	"github.com/n0madic/go-callview/internal/types"
)

// DefaultSystemMessage seeds a fresh playground.
const DefaultSystemMessage = "You are an AI assistant designed to assist users by providing clear, concise, and helpful responses."

const (
	ResponseFormatText       = "text"
	ResponseFormatJSONObject = "json_object"
	ResponseFormatJSONSchema = "json_schema"
)

// State is one playground column.
type State struct {
	TraceCall           *types.Call       `json:"trace_call"`
	TrackLLMCall        bool              `json:"track_llm_call"`
	Functions           []json.RawMessage `json:"functions"`
	ResponseFormat      string            `json:"response_format"`
	Temperature         float64           `json:"temperature"`
	MaxTokens           int               `json:"max_tokens"`
	StopSequences       []string          `json:"stop_sequences"`
	TopP                float64           `json:"top_p"`
	FrequencyPenalty    float64           `json:"frequency_penalty"`
	PresencePenalty     float64           `json:"presence_penalty"`
	NTimes              int               `json:"n"`
	MaxTokensLimit      int               `json:"max_tokens_limit"`
	Model               string            `json:"model"`
	SelectedChoiceIndex int               `json:"selected_choice_index"`
}

// DefaultState returns the settings of an empty playground.
func DefaultState() State {
	inputs, _ := sjson.SetBytes([]byte(`{}`), "messages", []map[string]string{
		{"role": "system", "content": DefaultSystemMessage},
	})
	return State{
		TraceCall:        &types.Call{Inputs: inputs},
		TrackLLMCall:     true,
		Functions:        []json.RawMessage{},
		ResponseFormat:   ResponseFormatText,
		Temperature:      1,
		MaxTokens:        4096,
		StopSequences:    []string{},
		TopP:             1,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
		NTimes:           1,
		MaxTokensLimit:   models.DefaultMaxTokens,
		Model:            models.DefaultModel,
	}
}

// FromCall seeds a playground from a recorded call: tools, response format,
// sampling settings and the closest known model are carried over.
func FromCall(call *types.Call) State {
	state := DefaultState()
	state.TraceCall = ParseTraceCall(call)
	if call == nil || !call.HasInputs() {
		return state
	}

	inputs := gjson.ParseBytes(call.Inputs)
	if tools := inputs.Get("tools"); tools.Exists() {
		state.Functions = []json.RawMessage{}
		for _, tool := range tools.Array() {
			if tool.Get("type").String() == "function" && tool.Get("function").Exists() {
				state.Functions = append(state.Functions, json.RawMessage(tool.Get("function").Raw))
			}
		}
	}
	if rf := inputs.Get("response_format"); rf.IsObject() {
		if t := rf.Get("type"); t.Type == gjson.String {
			state.ResponseFormat = t.Str
		}
	}

	defaults := DefaultState()
	if v := inputs.Get("n"); v.Exists() {
		state.NTimes = int(parseNumber(v, true, float64(defaults.NTimes)))
	}
	if v := inputs.Get("temperature"); v.Exists() {
		state.Temperature = parseNumber(v, false, defaults.Temperature)
	}
	if v := inputs.Get("top_p"); v.Exists() {
		state.TopP = parseNumber(v, false, defaults.TopP)
	}
	if v := inputs.Get("frequency_penalty"); v.Exists() {
		state.FrequencyPenalty = parseNumber(v, false, defaults.FrequencyPenalty)
	}
	if v := inputs.Get("presence_penalty"); v.Exists() {
		state.PresencePenalty = parseNumber(v, false, defaults.PresencePenalty)
	}

	if m := inputs.Get("model"); m.Type == gjson.String && m.Str != "" {
		state.Model = models.Resolve(m.Str)
	}
	state.MaxTokensLimit = models.MaxTokens(state.Model)
	return state
}

// parseNumber reads a numeric setting leniently: numbers and numeric
// strings are accepted, integer settings are truncated, anything else
// yields def.
func parseNumber(v gjson.Result, integer bool, def float64) float64 {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		var err error
		if integer {
			var n int64
			n, err = strconv.ParseInt(leadingInt(s), 10, 64)
			f = float64(n)
		} else {
			f, err = strconv.ParseFloat(s, 64)
		}
		if err != nil {
			return def
		}
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	if integer {
		return math.Trunc(f)
	}
	return f
}

func leadingInt(s string) string {
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
		end++
	}
	return s[:end]
}

// ParseTraceCall rewrites Anthropic shaped calls so the playground can show
// them like OpenAI ones: response content blocks become choices and a
// string system prompt becomes the leading system message. The call itself
// is not modified.
func ParseTraceCall(call *types.Call) *types.Call {
	if call == nil {
		return nil
	}
	out := call.Clone()

	if call.HasOutput() && chatformat.IsAnthropicCompletion(call.Output) {
		output := gjson.ParseBytes(call.Output)
		choices := anthropicBlocksToChoices(output.Get("content"), output.Get("stop_reason"))
		rewritten, err := sjson.DeleteBytes(out.Output, "content")
		if err == nil {
			rewritten, err = sjson.DeleteBytes(rewritten, "stop_reason")
		}
		if err == nil {
			rewritten, err = sjson.SetRawBytes(rewritten, "choices", types.MustJSON(choices))
		}
		if err == nil {
			out.Output = rewritten
		}
	}

	if call.HasInputs() {
		inputs := gjson.ParseBytes(call.Inputs)
		if system := inputs.Get("system"); system.Type == gjson.String {
			messages := []json.RawMessage{types.MustJSON(map[string]string{"role": "system", "content": system.Str})}
			for _, m := range inputs.Get("messages").Array() {
				messages = append(messages, json.RawMessage(m.Raw))
			}
			rewritten, err := sjson.DeleteBytes(out.Inputs, "system")
			if err == nil {
				rewritten, err = sjson.SetRawBytes(rewritten, "messages", types.MustJSON(messages))
			}
			if err == nil {
				out.Inputs = rewritten
			}
		}
	}
	return out
}

// anthropicBlocksToChoices yields one choice per text or tool_use block.
func anthropicBlocksToChoices(content, stopReason gjson.Result) []types.Choice {
	var finish *string
	if stopReason.Type == gjson.String {
		finish = types.StringPtr(stopReason.Str)
	}
	choices := []types.Choice{}
	for _, block := range content.Array() {
		msg := types.Message{Role: "assistant"}
		switch block.Get("type").String() {
		case "text":
			msg.Content = types.TextContent(block.Get("text").String())
		case "tool_use":
			args := "{}"
			if in := block.Get("input"); in.Exists() && in.Type != gjson.Null {
				args = in.Raw
			}
			msg.Content = types.TextContent("")
			msg.ToolCalls = []types.ToolCall{{
				ID:       block.Get("id").String(),
				Type:     "function",
				Function: types.FunctionCall{Name: block.Get("name").String(), Arguments: args},
			}}
		default:
			continue
		}
		choices = append(choices, types.Choice{Index: len(choices), Message: msg, FinishReason: finish})
	}
	return choices
}
