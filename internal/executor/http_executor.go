package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/dialect"
	"github.com/AprilNEA/BYOKEY/internal/httpclient"
)

// URLBuilder returns the upstream URL for one call.
type URLBuilder func(cred credential.Credential, req Request) string

// AuthApplier sets whatever headers/query the provider needs on httpReq to
// authenticate as cred.
type AuthApplier func(httpReq *http.Request, cred credential.Credential)

// HTTPExecutor is a provider-agnostic executor: it builds one HTTP
// request per call via urlFor/applyAuth and returns the (still-compressed
// header, decompressed body) response, generalizing the teacher's
// per-provider PrepareRequest+HttpRequest split (claude_executor.go) so a
// single implementation covers every provider whose upstream is a plain
// JSON-over-HTTPS call.
type HTTPExecutor struct {
	provider credential.ProviderId
	dialect  dialect.Dialect
	client   httpclient.Client
	urlFor   URLBuilder
	applyAuth AuthApplier
	method   string
}

// NewHTTPExecutor constructs an HTTPExecutor that sends every request with
// POST.
func NewHTTPExecutor(provider credential.ProviderId, nativeDialect dialect.Dialect, client httpclient.Client, urlFor URLBuilder, applyAuth AuthApplier) *HTTPExecutor {
	return &HTTPExecutor{provider: provider, dialect: nativeDialect, client: client, urlFor: urlFor, applyAuth: applyAuth, method: http.MethodPost}
}

func (e *HTTPExecutor) Identifier() credential.ProviderId { return e.provider }
func (e *HTTPExecutor) NativeDialect() dialect.Dialect    { return e.dialect }

// Do sends req upstream and returns the raw *http.Response with its body
// already decompressed according to Content-Encoding. Callers own closing
// the returned body. A 401/403 upstream status is surfaced as
// CredentialExpired so the dispatcher can refresh-and-retry-once instead
// of treating it as an ordinary upstream error.
func (e *HTTPExecutor) Do(ctx context.Context, cred credential.Credential, req Request) (*http.Response, error) {
	url := e.urlFor(cred, req)
	httpReq, err := http.NewRequestWithContext(ctx, e.method, url, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("executor: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	e.applyAuth(httpReq, cred)

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executor: %s: %w", e.provider, err)
	}

	if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
		_ = httpResp.Body.Close()
		return nil, &CredentialExpired{Provider: e.provider, Status: httpResp.StatusCode}
	}

	decoded, err := decodeResponseBody(httpResp.Body, httpResp.Header.Get("Content-Encoding"))
	if err != nil {
		_ = httpResp.Body.Close()
		return nil, fmt.Errorf("executor: %s: decode response: %w", e.provider, err)
	}
	httpResp.Body = decoded
	return httpResp, nil
}

// readAll reads and closes body, for executors that need the whole
// buffered response rather than a stream (non-streaming calls).
func readAll(body io.ReadCloser) ([]byte, error) {
	defer body.Close()
	return io.ReadAll(body)
}
