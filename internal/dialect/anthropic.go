package dialect

import (
	"encoding/json"

	"github.com/AprilNEA/BYOKEY/internal/byokeyerr"
)

// ParseAnthropicRequest decodes an Anthropic /v1/messages body into a
// canonical Request.
func ParseAnthropicRequest(body []byte) (*Request, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, byokeyerr.Wrap(byokeyerr.KindInvalidRequest, err, "decode anthropic request")
	}
	msgs := asSlice(raw["messages"])
	if len(msgs) == 0 {
		return nil, byokeyerr.New(byokeyerr.KindInvalidRequest, "messages must not be empty")
	}

	req := &Request{
		Model:     asString(raw["model"]),
		Stream:    asBool(raw["stream"]),
		MaxTokens: asInt(raw["max_tokens"]),
		Extra:     map[string]any{},
	}
	req.Temperature = floatPtr(raw["temperature"])
	req.TopP = floatPtr(raw["top_p"])
	req.Stop = stringSlice(raw["stop_sequences"])
	req.System = parseAnthropicSystem(raw["system"])

	for _, m := range msgs {
		mm := asMap(m)
		req.Messages = append(req.Messages, anthropicMessageToCanonical(mm)...)
	}

	for _, t := range asSlice(raw["tools"]) {
		tm := asMap(t)
		req.Tools = append(req.Tools, ToolDef{
			Name:        asString(tm["name"]),
			Description: asString(tm["description"]),
			Parameters:  asMap(tm["input_schema"]),
		})
	}

	if tc, ok := raw["tool_choice"]; ok {
		req.ToolChoice = anthropicToolChoiceToCanonical(asMap(tc))
	}

	if tk := asMap(raw["thinking"]); asString(tk["type"]) == "enabled" {
		req.Thinking = true
		req.ThinkingBudgetTokens = asInt(tk["budget_tokens"])
	}

	return req, nil
}

func parseAnthropicSystem(v any) []ContentBlock {
	switch s := v.(type) {
	case string:
		if s == "" {
			return nil
		}
		return []ContentBlock{{Type: BlockText, Text: s}}
	case []any:
		var out []ContentBlock
		for _, part := range s {
			pm := asMap(part)
			out = append(out, ContentBlock{
				Type:         BlockText,
				Text:         asString(pm["text"]),
				CacheControl: pm["cache_control"] != nil,
			})
		}
		return out
	}
	return nil
}

// anthropicMessageToCanonical returns one or more canonical messages: a
// user turn carrying tool_result blocks is split into a RoleTool message
// per tool_result plus (if any remain) a RoleUser message for the rest,
// since OpenAI and the canonical model both address tool results as
// separate messages keyed by ToolCallID.
func anthropicMessageToCanonical(mm map[string]any) []Message {
	role := Role(asString(mm["role"]))
	if role == "assistant" {
		role = RoleAssistant
	} else {
		role = RoleUser
	}

	var toolResults []Message
	var rest []ContentBlock

	switch c := mm["content"].(type) {
	case string:
		if c != "" {
			rest = append(rest, ContentBlock{Type: BlockText, Text: c})
		}
	case []any:
		for _, part := range c {
			pm := asMap(part)
			switch asString(pm["type"]) {
			case "text":
				rest = append(rest, ContentBlock{Type: BlockText, Text: asString(pm["text"]), CacheControl: pm["cache_control"] != nil})
			case "thinking":
				rest = append(rest, ContentBlock{Type: BlockThinking, Text: asString(pm["thinking"])})
			case "tool_use":
				rest = append(rest, ContentBlock{
					Type:      BlockToolUse,
					ToolUseID: asString(pm["id"]),
					ToolName:  asString(pm["name"]),
					ToolInput: asMap(pm["input"]),
				})
			case "tool_result":
				text := anthropicToolResultText(pm["content"])
				toolResults = append(toolResults, Message{
					Role:       RoleTool,
					ToolCallID: asString(pm["tool_use_id"]),
					Content: []ContentBlock{{
						Type:              BlockToolResult,
						ToolUseID:         asString(pm["tool_use_id"]),
						ToolResultText:    text,
						ToolResultIsError: asBool(pm["is_error"]),
					}},
				})
			case "image":
				src := asMap(pm["source"])
				rest = append(rest, ContentBlock{Type: BlockImage, ImageMediaType: asString(src["media_type"]), ImageData: asString(src["data"])})
			default:
				rest = append(rest, ContentBlock{Type: BlockText, Raw: pm})
			}
		}
	}

	out := toolResults
	if len(rest) > 0 {
		out = append(out, Message{Role: role, Content: rest})
	}
	return out
}

func anthropicToolResultText(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		s := ""
		for _, part := range c {
			pm := asMap(part)
			s += asString(pm["text"])
		}
		return s
	}
	return ""
}

func anthropicToolChoiceToCanonical(tm map[string]any) *ToolChoice {
	switch asString(tm["type"]) {
	case "any":
		return &ToolChoice{Mode: "required"}
	case "tool":
		return &ToolChoice{Mode: "tool", Name: asString(tm["name"])}
	case "none":
		return &ToolChoice{Mode: "none"}
	default:
		return &ToolChoice{Mode: "auto"}
	}
}

func canonicalToolChoiceToAnthropic(tc ToolChoice) map[string]any {
	switch tc.Mode {
	case "required":
		return map[string]any{"type": "any"}
	case "tool":
		return map[string]any{"type": "tool", "name": tc.Name}
	case "none":
		return map[string]any{"type": "none"}
	default:
		return map[string]any{"type": "auto"}
	}
}

// RenderAnthropicRequest renders a canonical Request as an Anthropic
// /v1/messages body.
func RenderAnthropicRequest(req *Request) ([]byte, error) {
	out := map[string]any{
		"model":      req.Model,
		"stream":     req.Stream,
		"max_tokens": req.MaxTokens,
	}
	if req.Temperature != nil {
		out["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		out["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		out["stop_sequences"] = req.Stop
	}
	if len(req.System) > 0 {
		out["system"] = renderAnthropicBlocks(req.System)
	}

	var messages []any
	for _, m := range req.Messages {
		messages = append(messages, canonicalMessageToAnthropic(m))
	}
	out["messages"] = messages

	if len(req.Tools) > 0 {
		var tools []any
		for _, t := range req.Tools {
			tool := map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": t.Parameters,
			}
			if t.CacheControl {
				tool["cache_control"] = map[string]any{"type": "ephemeral"}
			}
			tools = append(tools, tool)
		}
		out["tools"] = tools
	}
	if req.ToolChoice != nil {
		out["tool_choice"] = canonicalToolChoiceToAnthropic(*req.ToolChoice)
	}
	if req.Thinking {
		out["thinking"] = map[string]any{
			"type":          "enabled",
			"budget_tokens": thinkingBudgetOrDefault(req.ThinkingBudgetTokens),
		}
	}

	return json.Marshal(out)
}

func renderAnthropicBlocks(blocks []ContentBlock) []any {
	var out []any
	for _, b := range blocks {
		block := map[string]any{"type": "text", "text": b.Text}
		if b.CacheControl {
			block["cache_control"] = map[string]any{"type": "ephemeral"}
		}
		out = append(out, block)
	}
	return out
}

func canonicalMessageToAnthropic(m Message) map[string]any {
	role := "user"
	if m.Role == RoleAssistant {
		role = "assistant"
	}
	if m.Role == RoleTool {
		role = "user"
	}

	var content []any
	for _, b := range m.Content {
		block := canonicalBlockToAnthropic(b)
		if block != nil {
			content = append(content, block)
		}
	}
	return map[string]any{"role": role, "content": content}
}

func canonicalBlockToAnthropic(b ContentBlock) map[string]any {
	var block map[string]any
	switch b.Type {
	case BlockText:
		block = map[string]any{"type": "text", "text": b.Text}
	case BlockThinking:
		block = map[string]any{"type": "thinking", "thinking": b.Text}
	case BlockToolUse:
		block = map[string]any{"type": "tool_use", "id": b.ToolUseID, "name": b.ToolName, "input": b.ToolInput}
	case BlockToolResult:
		result := map[string]any{"type": "tool_result", "tool_use_id": b.ToolUseID, "content": b.ToolResultText}
		if b.ToolResultIsError {
			result["is_error"] = true
		}
		block = result
	case BlockImage:
		block = map[string]any{"type": "image", "source": map[string]any{"type": "base64", "media_type": b.ImageMediaType, "data": b.ImageData}}
	default:
		return b.Raw
	}
	if b.CacheControl {
		block["cache_control"] = map[string]any{"type": "ephemeral"}
	}
	return block
}

// ParseAnthropicResponse decodes a non-streaming Anthropic response into a
// canonical Response.
func ParseAnthropicResponse(body []byte) (*Response, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, byokeyerr.Wrap(byokeyerr.KindInvalidRequest, err, "decode anthropic response")
	}
	var content []ContentBlock
	for _, part := range asSlice(raw["content"]) {
		pm := asMap(part)
		switch asString(pm["type"]) {
		case "text":
			content = append(content, ContentBlock{Type: BlockText, Text: asString(pm["text"])})
		case "thinking":
			content = append(content, ContentBlock{Type: BlockThinking, Text: asString(pm["thinking"])})
		case "tool_use":
			content = append(content, ContentBlock{Type: BlockToolUse, ToolUseID: asString(pm["id"]), ToolName: asString(pm["name"]), ToolInput: asMap(pm["input"])})
		}
	}
	usage := asMap(raw["usage"])
	return &Response{
		Model:      asString(raw["model"]),
		Role:       RoleAssistant,
		Content:    content,
		StopReason: anthropicStopReasonToCanonical(asString(raw["stop_reason"])),
		Usage: Usage{
			InputTokens:           asInt(usage["input_tokens"]),
			OutputTokens:          asInt(usage["output_tokens"]),
			CacheReadInputTokens:  asInt(usage["cache_read_input_tokens"]),
			CacheWriteInputTokens: asInt(usage["cache_creation_input_tokens"]),
		},
	}, nil
}

func anthropicStopReasonToCanonical(r string) StopReason {
	switch r {
	case "max_tokens":
		return StopMaxTokens
	case "tool_use":
		return StopToolUse
	case "stop_sequence":
		return StopStopSequence
	default:
		return StopEndTurn
	}
}

func canonicalStopReasonToAnthropic(r StopReason) string {
	switch r {
	case StopMaxTokens:
		return "max_tokens"
	case StopToolUse:
		return "tool_use"
	case StopStopSequence:
		return "stop_sequence"
	default:
		return "end_turn"
	}
}

// RenderAnthropicResponse renders a canonical Response as a non-streaming
// Anthropic /v1/messages response body.
func RenderAnthropicResponse(resp *Response) ([]byte, error) {
	var content []any
	for _, b := range resp.Content {
		if block := canonicalBlockToAnthropic(b); block != nil {
			content = append(content, block)
		}
	}
	out := map[string]any{
		"type":        "message",
		"role":        "assistant",
		"model":       resp.Model,
		"content":     content,
		"stop_reason": canonicalStopReasonToAnthropic(resp.StopReason),
		"usage": map[string]any{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		},
	}
	return json.Marshal(out)
}
