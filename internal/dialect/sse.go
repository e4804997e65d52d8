package dialect

import (
	"bufio"
	"io"
	"strings"
)

// SSEFrame is one server-sent-event, decoded from an "event:"/"data:"
// field pair. All three upstream dialects stream over SSE (Gemini via
// generateContent's alt=sse variant), so a single frame reader covers
// every direction.
type SSEFrame struct {
	Event string
	Data  string
}

// SSEReader incrementally reads SSE frames from r.
type SSEReader struct {
	scanner *bufio.Scanner
}

func NewSSEReader(r io.Reader) *SSEReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &SSEReader{scanner: s}
}

// Next returns the next frame, or io.EOF when the stream ends cleanly.
func (r *SSEReader) Next() (SSEFrame, error) {
	var frame SSEFrame
	var dataLines []string
	sawAny := false
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if sawAny {
				frame.Data = strings.Join(dataLines, "\n")
				return frame, nil
			}
			continue
		}
		sawAny = true
		switch {
		case strings.HasPrefix(line, "event:"):
			frame.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive ping, ignore
		}
	}
	if err := r.scanner.Err(); err != nil {
		return SSEFrame{}, err
	}
	if sawAny {
		frame.Data = strings.Join(dataLines, "\n")
		return frame, nil
	}
	return SSEFrame{}, io.EOF
}

// WriteSSE writes one SSE frame to w.
func WriteSSE(w io.Writer, event, data string) error {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteString("\n")
	}
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}
