package dialect

import "fmt"

// Role is the canonical speaker of a message, independent of dialect.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType identifies the shape of a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
)

// ContentBlock is one piece of a message's content array. Only the fields
// relevant to BlockType are populated. Raw holds the original object of a
// source content part that none of the known block types represents; the
// OpenAI and Anthropic parsers keep such a part as a BlockText block with
// empty Text, so renderers treat it as empty text and do not write Raw out.
type ContentBlock struct {
	Type BlockType

	Text string // BlockText, BlockThinking

	ToolUseID string         // BlockToolUse, BlockToolResult
	ToolName  string         // BlockToolUse
	ToolInput map[string]any // BlockToolUse

	ToolResultText    string // BlockToolResult, when the result is plain text
	ToolResultIsError bool   // BlockToolResult

	ImageMediaType string // BlockImage
	ImageData       string // BlockImage, base64

	CacheControl bool // Anthropic prompt-cache marker on this block

	Raw map[string]any
}

// Message is one canonical chat turn.
type Message struct {
	Role       Role
	Content    []ContentBlock
	ToolCallID string // set on RoleTool messages: which tool_use this answers
	Name       string // OpenAI "name" field on tool/function messages
}

// ToolDef is a callable tool definition, dialect-neutral.
type ToolDef struct {
	Name         string
	Description  string
	Parameters   map[string]any // JSON Schema
	CacheControl bool           // Anthropic prompt-cache marker on this definition
}

// ToolChoice controls whether/which tool the model must call.
type ToolChoice struct {
	Mode string // "auto", "none", "required", "tool"
	Name string // set when Mode == "tool"
}

// Request is the canonical, dialect-neutral chat request every translator
// parses into and renders out of.
type Request struct {
	Model       string
	System      []ContentBlock // system prompt, possibly multiple blocks
	Messages    []Message
	Tools       []ToolDef
	ToolChoice  *ToolChoice
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	Stream      bool
	Stop        []string
	Thinking            bool // caller requested extended thinking / reasoning
	ThinkingBudgetTokens int  // Anthropic/Gemini token budget; 0 means "use the dialect's default"
	ThinkingEffort       string // OpenAI-style "low"/"medium"/"high", derived from ThinkingBudgetTokens when empty

	// Extra is set to an empty map by the parsers and is not filled:
	// top-level request fields no canonical field models are not carried
	// across a translation, and no translator or executor reads Extra.
	Extra map[string]any
}

// StopReason is the canonical terminal state of a response.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopToolUse      StopReason = "tool_use"
	StopStopSequence StopReason = "stop_sequence"
	StopError        StopReason = "error"
)

// Usage is token accounting, normalized across dialects.
type Usage struct {
	InputTokens  int
	OutputTokens int
	CacheReadInputTokens  int
	CacheWriteInputTokens int
}

// Response is the canonical, non-streaming chat response.
type Response struct {
	Model      string
	Role       Role
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
}

func (b ContentBlock) String() string {
	switch b.Type {
	case BlockText, BlockThinking:
		return fmt.Sprintf("%s(%d chars)", b.Type, len(b.Text))
	case BlockToolUse:
		return fmt.Sprintf("tool_use(%s)", b.ToolName)
	case BlockToolResult:
		return fmt.Sprintf("tool_result(%s)", b.ToolUseID)
	default:
		return string(b.Type)
	}
}
