package dialect

import (
	"encoding/json"

	"github.com/AprilNEA/BYOKEY/internal/byokeyerr"
)

// ParseGeminiRequest decodes a Gemini generateContent body into a
// canonical Request. model is supplied out-of-band since Gemini carries it
// in the URL path (models/{model}:generateContent), not the body.
func ParseGeminiRequest(model string, body []byte) (*Request, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, byokeyerr.Wrap(byokeyerr.KindInvalidRequest, err, "decode gemini request")
	}
	contents := asSlice(raw["contents"])
	if len(contents) == 0 {
		return nil, byokeyerr.New(byokeyerr.KindInvalidRequest, "contents must not be empty")
	}

	req := &Request{Model: model, Extra: map[string]any{}}
	gen := asMap(raw["generationConfig"])
	if mt, ok := asFloat(gen["maxOutputTokens"]); ok {
		req.MaxTokens = int(mt)
	}
	req.Temperature = floatPtr(gen["temperature"])
	req.TopP = floatPtr(gen["topP"])
	req.Stop = stringSlice(gen["stopSequences"])

	if sys := asMap(raw["systemInstruction"]); sys != nil {
		req.System = geminiPartsToBlocks(asSlice(sys["parts"]))
	}

	for _, c := range contents {
		cm := asMap(c)
		req.Messages = append(req.Messages, geminiContentToCanonical(cm)...)
	}

	for _, t := range asSlice(raw["tools"]) {
		tm := asMap(t)
		for _, fd := range asSlice(tm["functionDeclarations"]) {
			fdm := asMap(fd)
			req.Tools = append(req.Tools, ToolDef{
				Name:        asString(fdm["name"]),
				Description: asString(fdm["description"]),
				Parameters:  asMap(fdm["parameters"]),
			})
		}
	}

	if tcfg := asMap(raw["toolConfig"]); tcfg != nil {
		fcc := asMap(tcfg["functionCallingConfig"])
		req.ToolChoice = geminiFunctionCallingModeToCanonical(asString(fcc["mode"]), stringSlice(fcc["allowedFunctionNames"]))
	}

	if tc := asMap(gen["thinkingConfig"]); asBool(tc["includeThoughts"]) {
		req.Thinking = true
		req.ThinkingBudgetTokens = asInt(tc["thinkingBudget"])
	}

	return req, nil
}

func geminiPartsToBlocks(parts []any) []ContentBlock {
	var out []ContentBlock
	for _, p := range parts {
		pm := asMap(p)
		if t, ok := pm["text"]; ok {
			out = append(out, ContentBlock{Type: BlockText, Text: asString(t)})
		}
	}
	return out
}

func geminiContentToCanonical(cm map[string]any) []Message {
	role := RoleUser
	if asString(cm["role"]) == "model" {
		role = RoleAssistant
	}

	var toolResults []Message
	var rest []ContentBlock
	for _, p := range asSlice(cm["parts"]) {
		pm := asMap(p)
		switch {
		case pm["text"] != nil:
			rest = append(rest, ContentBlock{Type: BlockText, Text: asString(pm["text"])})
		case pm["functionCall"] != nil:
			fc := asMap(pm["functionCall"])
			rest = append(rest, ContentBlock{Type: BlockToolUse, ToolUseID: asString(fc["name"]), ToolName: asString(fc["name"]), ToolInput: asMap(fc["args"])})
		case pm["functionResponse"] != nil:
			fr := asMap(pm["functionResponse"])
			resp := asMap(fr["response"])
			text := asString(resp["result"])
			toolResults = append(toolResults, Message{
				Role:       RoleTool,
				ToolCallID: asString(fr["name"]),
				Content:    []ContentBlock{{Type: BlockToolResult, ToolUseID: asString(fr["name"]), ToolResultText: text}},
			})
		case pm["inlineData"] != nil:
			id := asMap(pm["inlineData"])
			rest = append(rest, ContentBlock{Type: BlockImage, ImageMediaType: asString(id["mimeType"]), ImageData: asString(id["data"])})
		}
	}

	out := toolResults
	if len(rest) > 0 {
		out = append(out, Message{Role: role, Content: rest})
	}
	return out
}

func geminiFunctionCallingModeToCanonical(mode string, allowed []string) *ToolChoice {
	switch mode {
	case "ANY":
		if len(allowed) == 1 {
			return &ToolChoice{Mode: "tool", Name: allowed[0]}
		}
		return &ToolChoice{Mode: "required"}
	case "NONE":
		return &ToolChoice{Mode: "none"}
	default:
		return &ToolChoice{Mode: "auto"}
	}
}

func canonicalToolChoiceToGeminiMode(tc ToolChoice) (string, []string) {
	switch tc.Mode {
	case "required":
		return "ANY", nil
	case "tool":
		return "ANY", []string{tc.Name}
	case "none":
		return "NONE", nil
	default:
		return "AUTO", nil
	}
}

// RenderGeminiRequest renders a canonical Request as a Gemini
// generateContent body. The model is not included; callers place it in
// the request URL.
func RenderGeminiRequest(req *Request) ([]byte, error) {
	out := map[string]any{}

	gen := map[string]any{}
	if req.MaxTokens > 0 {
		gen["maxOutputTokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		gen["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		gen["topP"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		gen["stopSequences"] = req.Stop
	}
	if req.Thinking {
		gen["thinkingConfig"] = map[string]any{
			"includeThoughts": true,
			"thinkingBudget":  thinkingBudgetOrDefault(req.ThinkingBudgetTokens),
		}
	}
	if len(gen) > 0 {
		out["generationConfig"] = gen
	}

	if len(req.System) > 0 {
		var parts []any
		for _, b := range req.System {
			parts = append(parts, map[string]any{"text": b.Text})
		}
		out["systemInstruction"] = map[string]any{"parts": parts}
	}

	var contents []any
	for _, m := range req.Messages {
		contents = append(contents, canonicalMessageToGemini(m))
	}
	out["contents"] = contents

	if len(req.Tools) > 0 {
		var decls []any
		for _, t := range req.Tools {
			decls = append(decls, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			})
		}
		out["tools"] = []any{map[string]any{"functionDeclarations": decls}}
	}
	if req.ToolChoice != nil {
		mode, allowed := canonicalToolChoiceToGeminiMode(*req.ToolChoice)
		fcc := map[string]any{"mode": mode}
		if len(allowed) > 0 {
			fcc["allowedFunctionNames"] = allowed
		}
		out["toolConfig"] = map[string]any{"functionCallingConfig": fcc}
	}

	return json.Marshal(out)
}

func canonicalMessageToGemini(m Message) map[string]any {
	role := "user"
	if m.Role == RoleAssistant {
		role = "model"
	}

	var parts []any
	for _, b := range m.Content {
		switch b.Type {
		case BlockText, BlockThinking:
			parts = append(parts, map[string]any{"text": b.Text})
		case BlockToolUse:
			parts = append(parts, map[string]any{"functionCall": map[string]any{"name": b.ToolName, "args": b.ToolInput}})
		case BlockToolResult:
			parts = append(parts, map[string]any{"functionResponse": map[string]any{
				"name":     b.ToolUseID,
				"response": map[string]any{"result": b.ToolResultText},
			}})
		case BlockImage:
			parts = append(parts, map[string]any{"inlineData": map[string]any{"mimeType": b.ImageMediaType, "data": b.ImageData}})
		}
	}
	return map[string]any{"role": role, "parts": parts}
}

// ParseGeminiResponse decodes a non-streaming Gemini generateContent
// response into a canonical Response.
func ParseGeminiResponse(model string, body []byte) (*Response, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, byokeyerr.Wrap(byokeyerr.KindInvalidRequest, err, "decode gemini response")
	}
	candidates := asSlice(raw["candidates"])
	if len(candidates) == 0 {
		return nil, byokeyerr.New(byokeyerr.KindInvalidRequest, "gemini response has no candidates")
	}
	cand := asMap(candidates[0])
	content := asMap(cand["content"])
	msg := canonicalContentFromGeminiParts(asSlice(content["parts"]))

	usage := asMap(raw["usageMetadata"])
	return &Response{
		Model:      model,
		Role:       RoleAssistant,
		Content:    msg,
		StopReason: geminiFinishReasonToCanonical(asString(cand["finishReason"])),
		Usage: Usage{
			InputTokens:  asInt(usage["promptTokenCount"]),
			OutputTokens: asInt(usage["candidatesTokenCount"]),
		},
	}, nil
}

func canonicalContentFromGeminiParts(parts []any) []ContentBlock {
	var out []ContentBlock
	for _, p := range parts {
		pm := asMap(p)
		switch {
		case pm["text"] != nil:
			out = append(out, ContentBlock{Type: BlockText, Text: asString(pm["text"])})
		case pm["functionCall"] != nil:
			fc := asMap(pm["functionCall"])
			out = append(out, ContentBlock{Type: BlockToolUse, ToolUseID: asString(fc["name"]), ToolName: asString(fc["name"]), ToolInput: asMap(fc["args"])})
		}
	}
	return out
}

func geminiFinishReasonToCanonical(r string) StopReason {
	switch r {
	case "MAX_TOKENS":
		return StopMaxTokens
	case "STOP":
		return StopEndTurn
	default:
		return StopEndTurn
	}
}

// RenderGeminiResponse renders a canonical Response as a non-streaming
// Gemini generateContent response body.
func RenderGeminiResponse(resp *Response) ([]byte, error) {
	var parts []any
	for _, b := range resp.Content {
		switch b.Type {
		case BlockText:
			parts = append(parts, map[string]any{"text": b.Text})
		case BlockToolUse:
			parts = append(parts, map[string]any{"functionCall": map[string]any{"name": b.ToolName, "args": b.ToolInput}})
		}
	}
	out := map[string]any{
		"candidates": []any{
			map[string]any{
				"content":      map[string]any{"role": "model", "parts": parts},
				"finishReason": canonicalStopReasonToGemini(resp.StopReason),
			},
		},
		"usageMetadata": map[string]any{
			"promptTokenCount":     resp.Usage.InputTokens,
			"candidatesTokenCount": resp.Usage.OutputTokens,
		},
	}
	return json.Marshal(out)
}

func canonicalStopReasonToGemini(r StopReason) string {
	switch r {
	case StopMaxTokens:
		return "MAX_TOKENS"
	default:
		return "STOP"
	}
}
