package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AprilNEA/BYOKEY/internal/dialect"
	"github.com/AprilNEA/BYOKEY/internal/dispatcher"
)

// handleChatCompletions serves /v1/chat/completions: OpenAI dialect in,
// OpenAI dialect out, streaming when the body sets "stream": true.
func (s *Server) handleChatCompletions(c *gin.Context) {
	s.dispatch(c, dialect.OpenAI, "", false)
}

// handleMessages serves /v1/messages: Anthropic dialect in/out.
func (s *Server) handleMessages(c *gin.Context) {
	s.dispatch(c, dialect.Anthropic, "", false)
}

// handleGeminiNative serves /v1beta/models/{model}:{action}. Gemini's wire
// format carries the model and the streaming/non-streaming action in the
// URL rather than the body, so both are parsed here and passed through
// explicitly instead of being peeked out of the body.
func (s *Server) handleGeminiNative(c *gin.Context) {
	model, action := splitModelAction(c.Param("modelAction"))
	s.dispatch(c, dialect.Gemini, model, action == "streamGenerateContent")
}

func splitModelAction(raw string) (model, action string) {
	raw = strings.TrimPrefix(raw, "/")
	idx := strings.LastIndex(raw, ":")
	if idx < 0 {
		return raw, ""
	}
	return raw[:idx], raw[idx+1:]
}

// dispatch reads the request body, resolves stream vs buffered from either
// the explicit override (Gemini) or the body itself (OpenAI/Anthropic, via
// dispatcher.PeekModelAndStream), and calls into the Dispatcher.
func (s *Server) dispatch(c *gin.Context, in dialect.Dialect, model string, forceStream bool) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, err)
		return
	}

	req := dispatcher.DispatchRequest{DialectIn: in, Body: body, Model: model, Stream: forceStream}

	stream := forceStream
	if model == "" {
		_, stream = dispatcher.PeekModelAndStream(body)
	}

	if !stream {
		result, err := s.dispatcher.Dispatch(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Data(200, "application/json", result.Body)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	if err := s.dispatcher.DispatchStream(c.Request.Context(), req, c.Writer); err != nil {
		if c.Writer.Written() {
			s.logStreamError(c, err)
			return
		}
		writeError(c, err)
	}
}
