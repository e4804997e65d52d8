package dispatcher

import (
	"context"
	"io"

	"github.com/AprilNEA/BYOKEY/internal/byokeyerr"
	"github.com/AprilNEA/BYOKEY/internal/dialect"
	"github.com/AprilNEA/BYOKEY/internal/executor"
)

// flusher is satisfied by gin's ResponseWriter (and http.Flusher generally).
// Declared locally so this package does not need to import net/http just
// for the type assertion.
type flusher interface {
	Flush()
}

// flushWriter flushes the underlying writer after every Write so each SSE
// frame reaches the client as soon as it is produced, rather than sitting
// in a buffer until the handler returns.
type flushWriter struct {
	w io.Writer
	f flusher
}

func newFlushWriter(w io.Writer) *flushWriter {
	fw := &flushWriter{w: w}
	if f, ok := w.(flusher); ok {
		fw.f = f
	}
	return fw
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err == nil && fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}

// DispatchStream handles a streaming request end to end, writing
// downstream-dialect SSE frames to w as they arrive from upstream.
func (d *Dispatcher) DispatchStream(ctx context.Context, in DispatchRequest, w io.Writer) error {
	if in.Model == "" && in.DialectIn != dialect.Gemini {
		in.Model, in.Stream = PeekModelAndStream(in.Body)
	}
	in.Stream = true

	r, suffix, err := d.route(ctx, in.Model)
	if err != nil {
		return err
	}

	translated, err := d.translateOut(r, suffix, &in)
	if err != nil {
		return err
	}

	httpResp, err := d.executeWithRetry(ctx, &r, executor.Request{Model: r.upstreamModel, Body: translated, Stream: true})
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		body, _ := io.ReadAll(httpResp.Body)
		return &byokeyerr.Error{
			Kind:           byokeyerr.KindUpstreamError,
			Message:        "upstream returned an error",
			UpstreamStatus: httpResp.StatusCode,
			BodyExcerpt:    excerpt(body),
		}
	}

	err = dialect.TranslateStream(r.dialectOut, in.DialectIn, r.upstreamModel, httpResp.Body, newFlushWriter(w))
	d.touchLastUsed(ctx, r)
	return err
}
