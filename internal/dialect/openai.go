package dialect

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/AprilNEA/BYOKEY/internal/byokeyerr"
)

// ParseOpenAIRequest decodes an OpenAI /v1/chat/completions body into a
// canonical Request. A system message is lifted out of Messages into
// System, matching how Anthropic and Gemini both carry the system prompt
// out-of-band from the turn history.
func ParseOpenAIRequest(body []byte) (*Request, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, byokeyerr.Wrap(byokeyerr.KindInvalidRequest, err, "decode openai request")
	}
	msgs := asSlice(raw["messages"])
	if len(msgs) == 0 {
		return nil, byokeyerr.New(byokeyerr.KindInvalidRequest, "messages must not be empty")
	}

	req := &Request{
		Model:  asString(raw["model"]),
		Stream: asBool(raw["stream"]),
		Extra:  map[string]any{},
	}
	if mt, ok := asFloat(raw["max_tokens"]); ok {
		req.MaxTokens = int(mt)
	}
	req.Temperature = floatPtr(raw["temperature"])
	req.TopP = floatPtr(raw["top_p"])
	switch stop := raw["stop"].(type) {
	case string:
		req.Stop = []string{stop}
	case []any:
		req.Stop = stringSlice(stop)
	}

	for _, m := range msgs {
		mm := asMap(m)
		role := Role(asString(mm["role"]))
		msg := openAIMessageToCanonical(role, mm)
		if role == RoleSystem {
			req.System = append(req.System, msg.Content...)
			continue
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range asSlice(raw["tools"]) {
		tm := asMap(t)
		fn := asMap(tm["function"])
		req.Tools = append(req.Tools, ToolDef{
			Name:        asString(fn["name"]),
			Description: asString(fn["description"]),
			Parameters:  asMap(fn["parameters"]),
		})
	}

	if tc, ok := raw["tool_choice"]; ok {
		req.ToolChoice = openAIToolChoice(tc)
	}

	if reasoning := asMap(raw["reasoning"]); len(reasoning) > 0 {
		req.Thinking = true
		req.ThinkingEffort = asString(reasoning["effort"])
		req.ThinkingBudgetTokens = thinkingEffortToBudget(req.ThinkingEffort)
	} else if effort := asString(raw["reasoning_effort"]); effort != "" {
		req.Thinking = true
		req.ThinkingEffort = effort
		req.ThinkingBudgetTokens = thinkingEffortToBudget(effort)
	}

	return req, nil
}

func openAIMessageToCanonical(role Role, mm map[string]any) Message {
	msg := Message{Role: role, Name: asString(mm["name"]), ToolCallID: asString(mm["tool_call_id"])}

	switch c := mm["content"].(type) {
	case string:
		if c != "" {
			msg.Content = append(msg.Content, ContentBlock{Type: BlockText, Text: c})
		}
	case []any:
		for _, part := range c {
			pm := asMap(part)
			switch asString(pm["type"]) {
			case "text":
				msg.Content = append(msg.Content, ContentBlock{Type: BlockText, Text: asString(pm["text"])})
			case "image_url":
				img := asMap(pm["image_url"])
				msg.Content = append(msg.Content, ContentBlock{Type: BlockImage, ImageData: asString(img["url"])})
			default:
				msg.Content = append(msg.Content, ContentBlock{Type: BlockText, Raw: pm})
			}
		}
	}

	if role == RoleTool {
		text := ""
		for _, b := range msg.Content {
			text += b.Text
		}
		return Message{
			Role:       RoleTool,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
			Content:    []ContentBlock{{Type: BlockToolResult, ToolUseID: msg.ToolCallID, ToolResultText: text}},
		}
	}

	for _, tc := range asSlice(mm["tool_calls"]) {
		tcm := asMap(tc)
		fn := asMap(tcm["function"])
		raw := asString(fn["arguments"])
		var input map[string]any
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			log.Warnf("dialect: malformed tool-call arguments for %s, passing through raw: %v", asString(fn["name"]), err)
			input = map[string]any{"_raw": raw}
		}
		msg.Content = append(msg.Content, ContentBlock{
			Type:      BlockToolUse,
			ToolUseID: asString(tcm["id"]),
			ToolName:  asString(fn["name"]),
			ToolInput: input,
		})
	}

	return msg
}

func openAIToolChoice(v any) *ToolChoice {
	switch tc := v.(type) {
	case string:
		return &ToolChoice{Mode: tc}
	case map[string]any:
		fn := asMap(tc["function"])
		return &ToolChoice{Mode: "tool", Name: asString(fn["name"])}
	}
	return nil
}

// RenderOpenAIRequest renders a canonical Request as an OpenAI
// /v1/chat/completions body.
func RenderOpenAIRequest(req *Request) ([]byte, error) {
	out := map[string]any{
		"model":  req.Model,
		"stream": req.Stream,
	}
	if req.MaxTokens > 0 {
		out["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		out["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		out["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		out["stop"] = req.Stop
	}

	var messages []any
	if len(req.System) > 0 {
		messages = append(messages, map[string]any{"role": "system", "content": blocksToOpenAIText(req.System)})
	}
	for _, m := range req.Messages {
		messages = append(messages, canonicalMessageToOpenAI(m))
	}
	out["messages"] = messages

	if len(req.Tools) > 0 {
		var tools []any
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			})
		}
		out["tools"] = tools
	}
	if req.ToolChoice != nil {
		out["tool_choice"] = renderOpenAIToolChoice(*req.ToolChoice)
	}
	if req.Thinking {
		effort := req.ThinkingEffort
		if effort == "" {
			effort = thinkingBudgetToEffort(req.ThinkingBudgetTokens)
		}
		out["reasoning_effort"] = effort
		out["reasoning"] = map[string]any{"effort": effort}
	}

	return json.Marshal(out)
}

func blocksToOpenAIText(blocks []ContentBlock) string {
	s := ""
	for i, b := range blocks {
		if i > 0 {
			s += "\n\n"
		}
		s += b.Text
	}
	return s
}

func canonicalMessageToOpenAI(m Message) map[string]any {
	if m.Role == RoleTool {
		text := ""
		var toolUseID string
		for _, b := range m.Content {
			if b.Type == BlockToolResult {
				text += b.ToolResultText
				toolUseID = b.ToolUseID
			}
		}
		return map[string]any{"role": "tool", "tool_call_id": toolUseID, "content": text}
	}

	out := map[string]any{"role": string(m.Role)}
	var textParts []string
	var toolCalls []any
	for _, b := range m.Content {
		switch b.Type {
		case BlockText:
			textParts = append(textParts, b.Text)
		case BlockToolUse:
			args, _ := json.Marshal(b.ToolInput)
			toolCalls = append(toolCalls, map[string]any{
				"id":   b.ToolUseID,
				"type": "function",
				"function": map[string]any{
					"name":      b.ToolName,
					"arguments": string(args),
				},
			})
		}
	}
	if len(textParts) > 0 || len(toolCalls) == 0 {
		content := ""
		for i, t := range textParts {
			if i > 0 {
				content += "\n\n"
			}
			content += t
		}
		out["content"] = content
	} else {
		out["content"] = nil
	}
	if len(toolCalls) > 0 {
		out["tool_calls"] = toolCalls
	}
	return out
}

func renderOpenAIToolChoice(tc ToolChoice) any {
	switch tc.Mode {
	case "tool":
		return map[string]any{"type": "function", "function": map[string]any{"name": tc.Name}}
	default:
		return tc.Mode
	}
}

// ParseOpenAIResponse decodes a non-streaming OpenAI response into a
// canonical Response.
func ParseOpenAIResponse(body []byte) (*Response, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, byokeyerr.Wrap(byokeyerr.KindInvalidRequest, err, "decode openai response")
	}
	choices := asSlice(raw["choices"])
	if len(choices) == 0 {
		return nil, byokeyerr.New(byokeyerr.KindInvalidRequest, "openai response has no choices")
	}
	choice := asMap(choices[0])
	message := asMap(choice["message"])
	msg := openAIMessageToCanonical(RoleAssistant, message)

	usage := asMap(raw["usage"])
	return &Response{
		Model:      asString(raw["model"]),
		Role:       RoleAssistant,
		Content:    msg.Content,
		StopReason: openAIFinishReasonToCanonical(asString(choice["finish_reason"])),
		Usage: Usage{
			InputTokens:  asInt(usage["prompt_tokens"]),
			OutputTokens: asInt(usage["completion_tokens"]),
		},
	}, nil
}

func openAIFinishReasonToCanonical(r string) StopReason {
	switch r {
	case "length":
		return StopMaxTokens
	case "tool_calls", "function_call":
		return StopToolUse
	case "stop":
		return StopEndTurn
	default:
		return StopEndTurn
	}
}

func canonicalStopReasonToOpenAI(r StopReason) string {
	switch r {
	case StopMaxTokens:
		return "length"
	case StopToolUse:
		return "tool_calls"
	case StopError:
		return "stop"
	default:
		return "stop"
	}
}

// RenderOpenAIResponse renders a canonical Response as a non-streaming
// OpenAI chat-completion response body.
func RenderOpenAIResponse(resp *Response) ([]byte, error) {
	m := canonicalMessageToOpenAI(Message{Role: RoleAssistant, Content: resp.Content})
	out := map[string]any{
		"object": "chat.completion",
		"model":  resp.Model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       m,
				"finish_reason": canonicalStopReasonToOpenAI(resp.StopReason),
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     resp.Usage.InputTokens,
			"completion_tokens": resp.Usage.OutputTokens,
			"total_tokens":      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	return json.Marshal(out)
}
