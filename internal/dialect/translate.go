package dialect

import "github.com/AprilNEA/BYOKEY/internal/byokeyerr"

// TranslateRequest converts a request body from one dialect's wire format
// to another via the canonical Request. model is only consulted when from
// == Gemini, since Gemini carries the model in the URL rather than the
// body; pass "" for the other two dialects.
func TranslateRequest(from, to Dialect, model string, body []byte) ([]byte, error) {
	return TranslateRequestWithMutation(from, to, model, body, nil)
}

// TranslateRequestWithMutation is TranslateRequest with an extra hook run
// on the canonical Request after parsing but before the adjacent-role
// merge/thinking-strip/cache-control pass, so a caller can fold in
// out-of-band adjustments (the dispatcher's model-name thinking suffix)
// without re-implementing parse/prepare/render itself. mutate may be nil.
func TranslateRequestWithMutation(from, to Dialect, model string, body []byte, mutate func(*Request)) ([]byte, error) {
	req, err := parseRequest(from, model, body)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(req)
	}
	prepareForDialect(req, to)
	return renderRequest(to, req)
}

func parseRequest(d Dialect, model string, body []byte) (*Request, error) {
	switch d {
	case OpenAI:
		return ParseOpenAIRequest(body)
	case Anthropic:
		return ParseAnthropicRequest(body)
	case Gemini:
		return ParseGeminiRequest(model, body)
	default:
		return nil, byokeyerr.New(byokeyerr.KindInvalidRequest, "unknown dialect %q", d)
	}
}

func renderRequest(d Dialect, req *Request) ([]byte, error) {
	switch d {
	case OpenAI:
		return RenderOpenAIRequest(req)
	case Anthropic:
		return RenderAnthropicRequest(req)
	case Gemini:
		return RenderGeminiRequest(req)
	default:
		return nil, byokeyerr.New(byokeyerr.KindInvalidRequest, "unknown dialect %q", d)
	}
}

// prepareForDialect applies the transforms that must run between parsing
// and rendering regardless of direction: adjacent-role merging always, a
// thinking strip when the target can't carry it (or the caller forced a
// specific tool call, which Anthropic and OpenAI both refuse to combine
// with extended thinking), and Anthropic prompt-cache markers when
// rendering into Anthropic.
func prepareForDialect(req *Request, to Dialect) {
	req.Messages = MergeAdjacent(req.Messages)
	if shouldStripThinking(req, to) {
		stripThinking(req)
	}
	if to == Anthropic {
		ApplyAutoCacheControl(req)
	}
}

func shouldStripThinking(req *Request, to Dialect) bool {
	if to != Anthropic {
		return true
	}
	if req.ToolChoice != nil && req.ToolChoice.Mode != "auto" && req.ToolChoice.Mode != "" {
		return true
	}
	return false
}

func stripThinking(req *Request) {
	for i := range req.Messages {
		kept := req.Messages[i].Content[:0]
		for _, b := range req.Messages[i].Content {
			if b.Type == BlockThinking {
				continue
			}
			kept = append(kept, b)
		}
		req.Messages[i].Content = kept
	}
}

// TranslateResponse converts a non-streaming response body from one
// dialect's wire format to another.
func TranslateResponse(from, to Dialect, model string, body []byte) ([]byte, error) {
	resp, err := parseResponse(from, model, body)
	if err != nil {
		return nil, err
	}
	return renderResponse(to, resp)
}

func parseResponse(d Dialect, model string, body []byte) (*Response, error) {
	switch d {
	case OpenAI:
		return ParseOpenAIResponse(body)
	case Anthropic:
		return ParseAnthropicResponse(body)
	case Gemini:
		return ParseGeminiResponse(model, body)
	default:
		return nil, byokeyerr.New(byokeyerr.KindInvalidRequest, "unknown dialect %q", d)
	}
}

func renderResponse(d Dialect, resp *Response) ([]byte, error) {
	switch d {
	case OpenAI:
		return RenderOpenAIResponse(resp)
	case Anthropic:
		return RenderAnthropicResponse(resp)
	case Gemini:
		return RenderGeminiResponse(resp)
	default:
		return nil, byokeyerr.New(byokeyerr.KindInvalidRequest, "unknown dialect %q", d)
	}
}
