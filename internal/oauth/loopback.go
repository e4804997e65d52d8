package oauth

import (
	"context"
	"fmt"
	"net"
	"net/http"
)

// callbackResult is what the loopback handler captures from the redirect.
type callbackResult struct {
	code  string
	state string
	err   error
}

// loopbackListener is a one-shot local HTTP server used to receive the
// authorization-code redirect. It is scoped to a single flow instance and
// guaranteed-closed on completion or cancellation.
type loopbackListener struct {
	listener net.Listener
	server   *http.Server
	results  chan callbackResult
}

// newLoopbackListener binds an ephemeral local port and installs the
// redirect handler. Call RedirectURI to learn the URI to register with the
// provider, and Await to block for the single callback.
func newLoopbackListener() (*loopbackListener, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("oauth: bind loopback listener: %w", err)
	}

	ll := &loopbackListener{
		listener: ln,
		results:  make(chan callbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", ll.handle)
	ll.server = &http.Server{Handler: mux}

	go func() {
		_ = ll.server.Serve(ln)
	}()

	return ll, nil
}

// handle buffers one callback result for Await. A further callback is
// rejected with 409 only while that result is still unread; once Await has
// taken it, the next callback is buffered and acknowledged but never read.
func (ll *loopbackListener) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := callbackResult{code: q.Get("code"), state: q.Get("state")}
	if errParam := q.Get("error"); errParam != "" {
		res.err = &FlowError{Kind: UpstreamRejected, Code: errParam, BodyExcerpt: q.Get("error_description")}
	}

	select {
	case ll.results <- res:
		_, _ = w.Write([]byte("BYOKEY: authorization received, you may close this tab."))
	default:
		http.Error(w, "duplicate callback rejected", http.StatusConflict)
	}
}

// RedirectURI returns the loopback redirect_uri to register with the
// provider's authorization request.
func (ll *loopbackListener) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", ll.listener.Addr().(*net.TCPAddr).Port)
}

// Await blocks until the single redirect arrives, ctx is canceled, or the
// listener is closed.
func (ll *loopbackListener) Await(ctx context.Context) (callbackResult, error) {
	select {
	case res := <-ll.results:
		return res, nil
	case <-ctx.Done():
		return callbackResult{}, &FlowError{Kind: UserCanceled, Cause: ctx.Err()}
	}
}

// Close shuts down the listener socket.
func (ll *loopbackListener) Close() error {
	return ll.server.Close()
}
