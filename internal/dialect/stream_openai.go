package dialect

import (
	"encoding/json"
	"io"
)

// OpenAIStreamDecoder turns OpenAI chat-completion SSE chunks into
// canonical StreamEvents. OpenAI addresses tool calls by
// choices[0].delta.tool_calls[].index, separate from content's implicit
// single index 0 — the decoder offsets tool indices by one so they never
// collide with the text block's Index 0.
type OpenAIStreamDecoder struct {
	r        *SSEReader
	started  bool
	toolIDs  map[int]string
}

func NewOpenAIStreamDecoder(r io.Reader) *OpenAIStreamDecoder {
	return &OpenAIStreamDecoder{r: NewSSEReader(r), toolIDs: map[int]string{}}
}

const openAIToolIndexOffset = 1

func (d *OpenAIStreamDecoder) Next() ([]StreamEvent, error) {
	frame, err := d.r.Next()
	if err != nil {
		return nil, err
	}
	if frame.Data == "[DONE]" {
		return nil, io.EOF
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(frame.Data), &raw); err != nil {
		return nil, nil
	}

	var events []StreamEvent
	if !d.started {
		d.started = true
		events = append(events, StreamEvent{Kind: EventMessageStart, Model: asString(raw["model"])})
	}

	choices := asSlice(raw["choices"])
	if len(choices) == 0 {
		return events, nil
	}
	choice := asMap(choices[0])
	delta := asMap(choice["delta"])

	if text, ok := delta["content"].(string); ok && text != "" {
		events = append(events, StreamEvent{Kind: EventTextDelta, Index: 0, Text: text})
	}

	for _, tc := range asSlice(delta["tool_calls"]) {
		tcm := asMap(tc)
		idx := asInt(tcm["index"]) + openAIToolIndexOffset
		fn := asMap(tcm["function"])
		if id := asString(tcm["id"]); id != "" {
			d.toolIDs[idx] = id
			events = append(events, StreamEvent{Kind: EventToolStart, Index: idx, ToolCallID: id, ToolName: asString(fn["name"])})
		}
		if args := asString(fn["arguments"]); args != "" {
			events = append(events, StreamEvent{Kind: EventToolDelta, Index: idx, ToolCallID: d.toolIDs[idx], ArgsDelta: args})
		}
	}

	if fr := asString(choice["finish_reason"]); fr != "" {
		for idx := range d.toolIDs {
			events = append(events, StreamEvent{Kind: EventToolStop, Index: idx, ToolCallID: d.toolIDs[idx]})
		}
		usage := asMap(raw["usage"])
		events = append(events, StreamEvent{
			Kind:       EventMessageStop,
			StopReason: openAIFinishReasonToCanonical(fr),
			Usage: Usage{
				InputTokens:  asInt(usage["prompt_tokens"]),
				OutputTokens: asInt(usage["completion_tokens"]),
			},
		})
	}

	return events, nil
}

// OpenAIStreamEncoder renders canonical StreamEvents as OpenAI
// chat-completion SSE chunks.
type OpenAIStreamEncoder struct {
	w     io.Writer
	model string
	sentRole bool
}

func NewOpenAIStreamEncoder(w io.Writer) *OpenAIStreamEncoder {
	return &OpenAIStreamEncoder{w: w}
}

func (e *OpenAIStreamEncoder) Write(ev StreamEvent) error {
	switch ev.Kind {
	case EventMessageStart:
		e.model = ev.Model
		return e.emitDelta(map[string]any{"role": "assistant"}, "")

	case EventTextDelta, EventThinkingDelta:
		return e.emitDelta(map[string]any{"content": ev.Text}, "")

	case EventToolStart:
		return e.emitDelta(map[string]any{"tool_calls": []any{map[string]any{
			"index": toolIndexForOpenAI(ev.Index),
			"id":    ev.ToolCallID,
			"type":  "function",
			"function": map[string]any{"name": ev.ToolName, "arguments": ""},
		}}}, "")

	case EventToolDelta:
		return e.emitDelta(map[string]any{"tool_calls": []any{map[string]any{
			"index":    toolIndexForOpenAI(ev.Index),
			"function": map[string]any{"arguments": ev.ArgsDelta},
		}}}, "")

	case EventToolStop:
		return nil

	case EventMessageStop:
		chunk := e.chunk(map[string]any{}, canonicalStopReasonToOpenAI(ev.StopReason))
		chunk["usage"] = map[string]any{
			"prompt_tokens":     ev.Usage.InputTokens,
			"completion_tokens": ev.Usage.OutputTokens,
			"total_tokens":      ev.Usage.InputTokens + ev.Usage.OutputTokens,
		}
		if err := e.writeChunk(chunk); err != nil {
			return err
		}
		return WriteSSE(e.w, "", "[DONE]")

	case EventPing:
		return WriteSSE(e.w, "", "")

	case EventError:
		return e.writeChunk(map[string]any{"error": map[string]any{"message": ev.ErrMessage, "type": "api_error"}})
	}
	return nil
}

func toolIndexForOpenAI(canonicalIdx int) int {
	if canonicalIdx < openAIToolIndexOffset {
		return 0
	}
	return canonicalIdx - openAIToolIndexOffset
}

func (e *OpenAIStreamEncoder) emitDelta(delta map[string]any, finishReason string) error {
	return e.writeChunk(e.chunk(delta, finishReason))
}

func (e *OpenAIStreamEncoder) chunk(delta map[string]any, finishReason string) map[string]any {
	choice := map[string]any{"index": 0, "delta": delta}
	if finishReason != "" {
		choice["finish_reason"] = finishReason
	} else {
		choice["finish_reason"] = nil
	}
	return map[string]any{
		"object":  "chat.completion.chunk",
		"model":   e.model,
		"choices": []any{choice},
	}
}

func (e *OpenAIStreamEncoder) writeChunk(chunk map[string]any) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	return WriteSSE(e.w, "", string(data))
}
