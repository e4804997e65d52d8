package dialect

import (
	"errors"
	"io"

	"github.com/AprilNEA/BYOKEY/internal/byokeyerr"
)

// StreamDecoder pulls canonical events out of one dialect's SSE stream.
type StreamDecoder interface {
	Next() ([]StreamEvent, error)
}

// StreamEncoder renders canonical events into another dialect's SSE
// stream.
type StreamEncoder interface {
	Write(StreamEvent) error
}

func newStreamDecoder(d Dialect, model string, r io.Reader) (StreamDecoder, error) {
	switch d {
	case OpenAI:
		return NewOpenAIStreamDecoder(r), nil
	case Anthropic:
		return NewAnthropicStreamDecoder(r), nil
	case Gemini:
		return NewGeminiStreamDecoder(r, model), nil
	default:
		return nil, byokeyerr.New(byokeyerr.KindInvalidRequest, "unknown dialect %q", d)
	}
}

func newStreamEncoder(d Dialect, w io.Writer) (StreamEncoder, error) {
	switch d {
	case OpenAI:
		return NewOpenAIStreamEncoder(w), nil
	case Anthropic:
		return NewAnthropicStreamEncoder(w), nil
	case Gemini:
		return NewGeminiStreamEncoder(w), nil
	default:
		return nil, byokeyerr.New(byokeyerr.KindInvalidRequest, "unknown dialect %q", d)
	}
}

// TranslateStream pumps the upstream SSE body (in dialect `from`) through
// the canonical event model and writes it to w in dialect `to`, frame by
// frame. Decoding happens lazily per frame, not buffered wholesale, so the
// client sees output as soon as upstream produces it — the same
// one-event-at-a-time contract the component design's streaming
// translators are required to uphold. A mid-stream decode error is
// surfaced to the client as a canonical error event rather than silently
// truncating the response.
func TranslateStream(from, to Dialect, model string, upstream io.Reader, downstream io.Writer) error {
	dec, err := newStreamDecoder(from, model, upstream)
	if err != nil {
		return err
	}
	enc, err := newStreamEncoder(to, downstream)
	if err != nil {
		return err
	}

	for {
		events, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			_ = enc.Write(StreamEvent{Kind: EventError, ErrMessage: err.Error()})
			return err
		}
		for _, ev := range events {
			if err := enc.Write(ev); err != nil {
				return err
			}
		}
	}
}
