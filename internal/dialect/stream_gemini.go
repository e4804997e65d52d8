package dialect

import (
	"encoding/json"
	"io"
)

// GeminiStreamDecoder turns Gemini streamGenerateContent SSE chunks into
// canonical StreamEvents. Gemini never streams a functionCall
// incrementally — it arrives whole in one chunk — so the decoder emits a
// ToolStart/ToolDelta/ToolStop triple for each one in a single Next call.
type GeminiStreamDecoder struct {
	r       *SSEReader
	started bool
	model   string
	nextTool int
}

func NewGeminiStreamDecoder(r io.Reader, model string) *GeminiStreamDecoder {
	return &GeminiStreamDecoder{r: NewSSEReader(r), model: model, nextTool: openAIToolIndexOffset}
}

func (d *GeminiStreamDecoder) Next() ([]StreamEvent, error) {
	frame, err := d.r.Next()
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(frame.Data), &raw); err != nil {
		return nil, nil
	}

	var events []StreamEvent
	if !d.started {
		d.started = true
		events = append(events, StreamEvent{Kind: EventMessageStart, Model: d.model})
	}

	candidates := asSlice(raw["candidates"])
	if len(candidates) == 0 {
		return events, nil
	}
	cand := asMap(candidates[0])
	content := asMap(cand["content"])
	for _, p := range asSlice(content["parts"]) {
		pm := asMap(p)
		switch {
		case pm["text"] != nil:
			events = append(events, StreamEvent{Kind: EventTextDelta, Index: 0, Text: asString(pm["text"])})
		case pm["functionCall"] != nil:
			fc := asMap(pm["functionCall"])
			idx := d.nextTool
			d.nextTool++
			args, _ := json.Marshal(asMap(fc["args"]))
			name := asString(fc["name"])
			events = append(events,
				StreamEvent{Kind: EventToolStart, Index: idx, ToolCallID: name, ToolName: name},
				StreamEvent{Kind: EventToolDelta, Index: idx, ToolCallID: name, ArgsDelta: string(args)},
				StreamEvent{Kind: EventToolStop, Index: idx, ToolCallID: name},
			)
		}
	}

	if fr := asString(cand["finishReason"]); fr != "" {
		usage := asMap(raw["usageMetadata"])
		events = append(events, StreamEvent{
			Kind:       EventMessageStop,
			StopReason: geminiFinishReasonToCanonical(fr),
			Usage: Usage{
				InputTokens:  asInt(usage["promptTokenCount"]),
				OutputTokens: asInt(usage["candidatesTokenCount"]),
			},
		})
	}

	return events, nil
}

// GeminiStreamEncoder renders canonical StreamEvents as Gemini
// streamGenerateContent SSE chunks.
type GeminiStreamEncoder struct {
	w         io.Writer
	toolNames map[int]string
	toolArgs  map[int]string
}

func NewGeminiStreamEncoder(w io.Writer) *GeminiStreamEncoder {
	return &GeminiStreamEncoder{w: w, toolNames: map[int]string{}, toolArgs: map[int]string{}}
}

func (e *GeminiStreamEncoder) Write(ev StreamEvent) error {
	switch ev.Kind {
	case EventMessageStart, EventPing:
		return nil

	case EventTextDelta, EventThinkingDelta:
		return e.emit(map[string]any{"text": ev.Text}, "")

	case EventToolStart:
		e.toolNames[ev.Index] = ev.ToolName
		return nil

	case EventToolDelta:
		e.toolArgs[ev.Index] += ev.ArgsDelta
		return nil

	case EventToolStop:
		var args map[string]any
		_ = json.Unmarshal([]byte(e.toolArgs[ev.Index]), &args)
		return e.emit(map[string]any{"functionCall": map[string]any{"name": e.toolNames[ev.Index], "args": args}}, "")

	case EventMessageStop:
		return e.emitFinal(ev)

	case EventError:
		return e.writeChunk(map[string]any{"error": map[string]any{"message": ev.ErrMessage}})
	}
	return nil
}

func (e *GeminiStreamEncoder) emit(part map[string]any, finishReason string) error {
	cand := map[string]any{"content": map[string]any{"role": "model", "parts": []any{part}}}
	if finishReason != "" {
		cand["finishReason"] = finishReason
	}
	return e.writeChunk(map[string]any{"candidates": []any{cand}})
}

func (e *GeminiStreamEncoder) emitFinal(ev StreamEvent) error {
	return e.writeChunk(map[string]any{
		"candidates": []any{map[string]any{
			"content":      map[string]any{"role": "model", "parts": []any{}},
			"finishReason": canonicalStopReasonToGemini(ev.StopReason),
		}},
		"usageMetadata": map[string]any{
			"promptTokenCount":     ev.Usage.InputTokens,
			"candidatesTokenCount": ev.Usage.OutputTokens,
		},
	})
}

func (e *GeminiStreamEncoder) writeChunk(chunk map[string]any) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	return WriteSSE(e.w, "", string(data))
}
