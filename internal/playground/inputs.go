package playground

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/n0madic/go-callview/internal/models"
)

// Inputs builds the LLM request the playground sends for state. Every call
// carries a fresh key so identical requests run in parallel are not
// collapsed into one.
func Inputs(state State) map[string]any {
	inputs := map[string]any{
		"key":               uuid.NewString(),
		"model":             state.Model,
		"temperature":       state.Temperature,
		"max_tokens":        state.MaxTokens,
		"top_p":             state.TopP,
		"frequency_penalty": state.FrequencyPenalty,
		"presence_penalty":  state.PresencePenalty,
		"n":                 state.NTimes,
	}
	if msgs := stateMessages(state); msgs != nil {
		inputs["messages"] = msgs
	}
	if len(state.StopSequences) > 0 {
		inputs["stop"] = state.StopSequences
	}
	if state.ResponseFormat != "" && state.ResponseFormat != ResponseFormatText {
		inputs["response_format"] = map[string]string{"type": state.ResponseFormat}
	}
	if len(state.Functions) > 0 {
		tools := make([]map[string]any, 0, len(state.Functions))
		for _, fn := range state.Functions {
			tools = append(tools, map[string]any{"type": "function", "function": fn})
		}
		inputs["tools"] = tools
	}
	if models.UsesMaxCompletionTokens(state.Model) {
		inputs["max_completion_tokens"] = inputs["max_tokens"]
		delete(inputs, "max_tokens")
	}
	return inputs
}

// stateMessages returns the raw messages of the state's call, or nil.
func stateMessages(state State) json.RawMessage {
	if state.TraceCall == nil {
		return nil
	}
	msgs := gjson.GetBytes(state.TraceCall.Inputs, "messages")
	if !msgs.Exists() {
		return nil
	}
	return json.RawMessage(msgs.Raw)
}
