package dialect

// EventKind identifies a canonical streaming event, the common currency
// every dialect-specific SSE decoder produces and every dialect-specific
// encoder consumes.
type EventKind string

const (
	EventMessageStart EventKind = "message_start"
	EventTextDelta     EventKind = "text_delta"
	EventThinkingDelta EventKind = "thinking_delta"
	EventToolStart     EventKind = "tool_start"
	EventToolDelta     EventKind = "tool_delta"
	EventToolStop      EventKind = "tool_stop"
	EventMessageStop   EventKind = "message_stop"
	EventPing          EventKind = "ping"
	EventError         EventKind = "error"
)

// StreamEvent is one canonical increment of a streamed chat response.
// Index addresses the content block (text run or tool call) the event
// belongs to, so encoders can track multiple concurrent tool calls the
// way OpenAI's tool_calls[].index and Anthropic's content_block index
// both require.
type StreamEvent struct {
	Kind EventKind

	Index int
	Text  string // EventTextDelta, EventThinkingDelta

	ToolCallID  string // EventToolStart, EventToolDelta, EventToolStop
	ToolName    string // EventToolStart
	ArgsDelta   string // EventToolDelta: partial JSON string

	StopReason StopReason // EventMessageStop
	Usage      Usage      // EventMessageStop

	Model string // EventMessageStart

	ErrMessage string // EventError
}
