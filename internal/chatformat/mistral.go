package chatformat

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/n0madic/go-callview/internal/types"
)

func isMistralCall(v view) bool {
	return v.inputs.Get("messages").IsArray() && isMistralCompletion(v.output)
}

// isMistralCompletion keys off the prefix flag Mistral sets on every
// returned message; OpenAI never emits it.
func isMistralCompletion(out gjson.Result) bool {
	choices := out.Get("choices")
	if !out.IsObject() || !choices.IsArray() {
		return false
	}
	arr := choices.Array()
	if len(arr) == 0 {
		return false
	}
	for _, c := range arr {
		if !c.Get("message.prefix").Exists() {
			return false
		}
	}
	return true
}

func normalizeMistralCompletion(req *types.ChatRequest, out gjson.Result) *types.ChatCompletion {
	comp := decodeOpenAICompletion(out)
	if comp.Model == "" && req != nil {
		comp.Model = req.Model
	}
	for i := range comp.Choices {
		c := comp.Choices[i].Message.Content
		if c.IsParts() {
			comp.Choices[i].Message.Content = types.TextContent(mistralChunkText(c.Parts))
		}
	}
	return comp
}

func mistralChunkText(parts []types.MessagePart) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
