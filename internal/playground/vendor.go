package playground

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"google.golang.org/genai"

	"github.com/n0madic/go-callview/internal/types"
)

// anthropicBody converts the canonical request into a Messages API body.
// System messages are hoisted into the top-level system prompt and tool
// results travel as user turns.
func anthropicBody(state State, req *types.ChatRequest) map[string]any {
	var system []string
	messages := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system", "developer":
			if text := m.Content.PlainText(); text != "" {
				system = append(system, text)
			}
		case "tool":
			messages = append(messages, map[string]any{
				"role": "user",
				"content": []map[string]any{{
					"type":        types.PartToolResult,
					"tool_use_id": m.ToolCallID,
					"content":     m.Content.PlainText(),
				}},
			})
		default:
			role := "user"
			if m.Role == "assistant" {
				role = "assistant"
			}
			messages = append(messages, map[string]any{"role": role, "content": anthropicContent(m)})
		}
	}

	body := map[string]any{
		"model":       bareModel(state.Model),
		"messages":    messages,
		"max_tokens":  state.MaxTokens,
		"temperature": state.Temperature,
	}
	if len(system) > 0 {
		body["system"] = strings.Join(system, "\n\n")
	}
	if state.TopP != 1 {
		body["top_p"] = state.TopP
	}
	if len(state.StopSequences) > 0 {
		body["stop_sequences"] = state.StopSequences
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema := t.Function.Parameters
			if len(schema) == 0 {
				schema = json.RawMessage(`{"type":"object"}`)
			}
			tool := map[string]any{"name": t.Function.Name, "input_schema": schema}
			if t.Function.Description != "" {
				tool["description"] = t.Function.Description
			}
			tools = append(tools, tool)
		}
		body["tools"] = tools
	}
	return body
}

func anthropicContent(m types.Message) any {
	if len(m.ToolCalls) == 0 && (m.Content == nil || !m.Content.IsParts()) {
		if m.Content == nil {
			return ""
		}
		return m.Content.Text
	}

	var blocks []map[string]any
	if m.Content != nil {
		if !m.Content.IsParts() {
			if m.Content.Text != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": m.Content.Text})
			}
		} else {
			for _, p := range m.Content.Parts {
				if b := anthropicBlock(p); b != nil {
					blocks = append(blocks, b)
				}
			}
		}
	}
	for _, tc := range m.ToolCalls {
		blocks = append(blocks, map[string]any{
			"type":  types.PartToolUse,
			"id":    tc.ID,
			"name":  tc.Function.Name,
			"input": argumentsObject(tc.Function.Arguments),
		})
	}
	if blocks == nil {
		blocks = []map[string]any{}
	}
	return blocks
}

func anthropicBlock(p types.MessagePart) map[string]any {
	switch p.Type {
	case types.PartText:
		return map[string]any{"type": "text", "text": p.Text}
	case types.PartImageURL:
		if p.ImageURL == nil {
			return nil
		}
		if mediaType, data, ok := splitDataURL(p.ImageURL.URL); ok {
			return map[string]any{"type": "image", "source": map[string]any{
				"type": "base64", "media_type": mediaType, "data": data,
			}}
		}
		return map[string]any{"type": "image", "source": map[string]any{"type": "url", "url": p.ImageURL.URL}}
	case types.PartToolUse:
		input := p.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return map[string]any{"type": types.PartToolUse, "id": p.ID, "name": p.Name, "input": input}
	case types.PartToolResult:
		b := map[string]any{"type": types.PartToolResult, "tool_use_id": p.ToolUseID, "content": types.ToolResultText(p.Content)}
		if p.IsError {
			b["is_error"] = true
		}
		return b
	}
	return nil
}

// argumentsObject parses tool call arguments, falling back to an empty
// object for text that is not a JSON object.
func argumentsObject(args string) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(args), &obj); err != nil || obj == nil {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(args)
}

// splitDataURL splits "data:<media type>;base64,<data>".
func splitDataURL(url string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mediaType, found = strings.CutSuffix(meta, ";base64")
	if !found {
		return "", "", false
	}
	return mediaType, data, true
}

// geminiRequest converts the canonical request into generateContent
// contents and config.
func geminiRequest(state State, req *types.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(state.Temperature)),
		TopP:             genai.Ptr(float32(state.TopP)),
		MaxOutputTokens:  int32(state.MaxTokens),
		CandidateCount:   int32(state.NTimes),
		FrequencyPenalty: genai.Ptr(float32(state.FrequencyPenalty)),
		PresencePenalty:  genai.Ptr(float32(state.PresencePenalty)),
		StopSequences:    state.StopSequences,
	}
	if state.ResponseFormat == ResponseFormatJSONObject || state.ResponseFormat == ResponseFormatJSONSchema {
		config.ResponseMIMEType = "application/json"
	}

	toolNames := map[string]string{}
	var system []string
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system", "developer":
			if text := m.Content.PlainText(); text != "" {
				system = append(system, text)
			}
			continue
		case "tool":
			name := toolNames[m.ToolCallID]
			if name == "" {
				name = m.Name
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     name,
					Response: map[string]any{"output": m.Content.PlainText()},
				},
			}}})
			continue
		}

		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		parts := geminiParts(m.Content)
		for _, tc := range m.ToolCalls {
			toolNames[tc.ID] = tc.Function.Name
			var args map[string]any
			_ = json.Unmarshal(argumentsObject(tc.Function.Arguments), &args)
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Function.Name, Args: args}})
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	if len(system) > 0 {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decl := &genai.FunctionDeclaration{Name: t.Function.Name, Description: t.Function.Description}
			if len(t.Function.Parameters) > 0 {
				decl.ParametersJsonSchema = t.Function.Parameters
			}
			decls = append(decls, decl)
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return contents, config
}

func geminiParts(c *types.Content) []*genai.Part {
	if c == nil {
		return nil
	}
	if !c.IsParts() {
		if c.Text == "" {
			return nil
		}
		return []*genai.Part{{Text: c.Text}}
	}
	var parts []*genai.Part
	for _, p := range c.Parts {
		switch p.Type {
		case types.PartText:
			parts = append(parts, &genai.Part{Text: p.Text})
		case types.PartImageURL:
			if p.ImageURL == nil {
				continue
			}
			if mediaType, data, ok := splitDataURL(p.ImageURL.URL); ok {
				decoded, err := base64.StdEncoding.DecodeString(data)
				if err != nil {
					continue
				}
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mediaType, Data: decoded}})
				continue
			}
			parts = append(parts, &genai.Part{FileData: &genai.FileData{FileURI: p.ImageURL.URL}})
		case types.PartToolResult:
			parts = append(parts, &genai.Part{Text: types.ToolResultText(p.Content)})
		}
	}
	return parts
}
