package dialect

import (
	"encoding/json"
	"io"
)

// AnthropicStreamDecoder turns Anthropic /v1/messages SSE frames into
// canonical StreamEvents. Anthropic addresses content blocks by index via
// content_block_start/delta/stop, which the decoder tracks so later
// deltas can be tagged with the right block's ToolCallID/kind.
type AnthropicStreamDecoder struct {
	r          *SSEReader
	blockTools map[int]string // index -> tool_use id, for content_block_delta input_json_delta
	blockKind  map[int]string // index -> "text"|"thinking"|"tool_use"
}

func NewAnthropicStreamDecoder(r io.Reader) *AnthropicStreamDecoder {
	return &AnthropicStreamDecoder{r: NewSSEReader(r), blockTools: map[int]string{}, blockKind: map[int]string{}}
}

// Next returns the events produced by the next SSE frame. A frame produces
// at most one event, since Anthropic emits one JSON object per frame;
// message_stop, start/stop of a non-tool block, an unknown type and data
// that is not JSON produce none.
func (d *AnthropicStreamDecoder) Next() ([]StreamEvent, error) {
	frame, err := d.r.Next()
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(frame.Data), &raw); err != nil {
		return nil, nil
	}
	switch asString(raw["type"]) {
	case "message_start":
		msg := asMap(raw["message"])
		return []StreamEvent{{Kind: EventMessageStart, Model: asString(msg["model"])}}, nil

	case "content_block_start":
		idx := asInt(raw["index"])
		block := asMap(raw["content_block"])
		kind := asString(block["type"])
		d.blockKind[idx] = kind
		if kind == "tool_use" {
			d.blockTools[idx] = asString(block["id"])
			return []StreamEvent{{Kind: EventToolStart, Index: idx, ToolCallID: asString(block["id"]), ToolName: asString(block["name"])}}, nil
		}
		return nil, nil

	case "content_block_delta":
		idx := asInt(raw["index"])
		delta := asMap(raw["delta"])
		switch asString(delta["type"]) {
		case "text_delta":
			return []StreamEvent{{Kind: EventTextDelta, Index: idx, Text: asString(delta["text"])}}, nil
		case "thinking_delta":
			return []StreamEvent{{Kind: EventThinkingDelta, Index: idx, Text: asString(delta["thinking"])}}, nil
		case "input_json_delta":
			return []StreamEvent{{Kind: EventToolDelta, Index: idx, ToolCallID: d.blockTools[idx], ArgsDelta: asString(delta["partial_json"])}}, nil
		}
		return nil, nil

	case "content_block_stop":
		idx := asInt(raw["index"])
		if d.blockKind[idx] == "tool_use" {
			return []StreamEvent{{Kind: EventToolStop, Index: idx, ToolCallID: d.blockTools[idx]}}, nil
		}
		return nil, nil

	case "message_delta":
		delta := asMap(raw["delta"])
		usage := asMap(raw["usage"])
		return []StreamEvent{{
			Kind:       EventMessageStop,
			StopReason: anthropicStopReasonToCanonical(asString(delta["stop_reason"])),
			Usage: Usage{
				OutputTokens:          asInt(usage["output_tokens"]),
				CacheReadInputTokens:  asInt(usage["cache_read_input_tokens"]),
				CacheWriteInputTokens: asInt(usage["cache_creation_input_tokens"]),
			},
		}}, nil

	case "message_stop":
		return nil, nil

	case "ping":
		return []StreamEvent{{Kind: EventPing}}, nil

	case "error":
		e := asMap(raw["error"])
		return []StreamEvent{{Kind: EventError, ErrMessage: asString(e["message"])}}, nil
	}
	return nil, nil
}

// AnthropicStreamEncoder renders canonical StreamEvents as Anthropic SSE
// frames, tracking which content_block index is open so it can emit
// matching content_block_start/stop pairs.
type AnthropicStreamEncoder struct {
	w         io.Writer
	started   bool
	openIndex map[int]bool
}

func NewAnthropicStreamEncoder(w io.Writer) *AnthropicStreamEncoder {
	return &AnthropicStreamEncoder{w: w, openIndex: map[int]bool{}}
}

func (e *AnthropicStreamEncoder) Write(ev StreamEvent) error {
	switch ev.Kind {
	case EventMessageStart:
		e.started = true
		return e.emit("message_start", map[string]any{
			"type":    "message_start",
			"message": map[string]any{"type": "message", "role": "assistant", "model": ev.Model, "content": []any{}},
		})

	case EventTextDelta:
		if err := e.ensureBlockOpen(ev.Index, map[string]any{"type": "text", "text": ""}); err != nil {
			return err
		}
		return e.emit("content_block_delta", map[string]any{
			"type": "content_block_delta", "index": ev.Index,
			"delta": map[string]any{"type": "text_delta", "text": ev.Text},
		})

	case EventThinkingDelta:
		if err := e.ensureBlockOpen(ev.Index, map[string]any{"type": "thinking", "thinking": ""}); err != nil {
			return err
		}
		return e.emit("content_block_delta", map[string]any{
			"type": "content_block_delta", "index": ev.Index,
			"delta": map[string]any{"type": "thinking_delta", "thinking": ev.Text},
		})

	case EventToolStart:
		return e.ensureBlockOpen(ev.Index, map[string]any{"type": "tool_use", "id": ev.ToolCallID, "name": ev.ToolName, "input": map[string]any{}})

	case EventToolDelta:
		return e.emit("content_block_delta", map[string]any{
			"type": "content_block_delta", "index": ev.Index,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": ev.ArgsDelta},
		})

	case EventToolStop:
		return e.closeBlock(ev.Index)

	case EventMessageStop:
		for idx := range e.openIndex {
			_ = e.closeBlock(idx)
		}
		if err := e.emit("message_delta", map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": canonicalStopReasonToAnthropic(ev.StopReason)},
			"usage": map[string]any{"output_tokens": ev.Usage.OutputTokens},
		}); err != nil {
			return err
		}
		return e.emit("message_stop", map[string]any{"type": "message_stop"})

	case EventPing:
		return e.emit("ping", map[string]any{"type": "ping"})

	case EventError:
		for idx := range e.openIndex {
			_ = e.closeBlock(idx)
		}
		if err := e.emit("message_delta", map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": "error"},
			"usage": map[string]any{"output_tokens": ev.Usage.OutputTokens},
		}); err != nil {
			return err
		}
		return e.emit("message_stop", map[string]any{"type": "message_stop"})
	}
	return nil
}

func (e *AnthropicStreamEncoder) ensureBlockOpen(idx int, block map[string]any) error {
	if e.openIndex[idx] {
		return nil
	}
	e.openIndex[idx] = true
	return e.emit("content_block_start", map[string]any{"type": "content_block_start", "index": idx, "content_block": block})
}

func (e *AnthropicStreamEncoder) closeBlock(idx int) error {
	if !e.openIndex[idx] {
		return nil
	}
	delete(e.openIndex, idx)
	return e.emit("content_block_stop", map[string]any{"type": "content_block_stop", "index": idx})
}

func (e *AnthropicStreamEncoder) emit(event string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return WriteSSE(e.w, event, string(data))
}
