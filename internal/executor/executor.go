// Package executor sends a translated request body to a provider's
// upstream API and returns the raw response, in the provider's own wire
// dialect — translation back to the caller's dialect happens one layer up
// in internal/dispatcher. Every executor shares one HTTP client stack
// (proxy-aware, response-decompressing) and differs only in how it builds
// the request URL and injects credentials.
package executor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/dialect"
)

// Request is one translated upstream call.
type Request struct {
	Model  string // upstream model name, after registry resolution
	Body   []byte // request body already rendered in the executor's NativeDialect
	Stream bool
}

// CredentialExpired signals that the credential Do() was given was
// rejected by the upstream as expired/invalid, distinct from any other
// upstream error, so the dispatcher can refresh once and retry exactly
// once rather than treating it as a generic upstream failure.
type CredentialExpired struct {
	Provider credential.ProviderId
	Status   int
}

func (e *CredentialExpired) Error() string {
	return fmt.Sprintf("executor: %s credential rejected by upstream (status %d)", e.Provider, e.Status)
}

// Executor sends one request to a provider's upstream API.
type Executor interface {
	Identifier() credential.ProviderId
	NativeDialect() dialect.Dialect
	Do(ctx context.Context, cred credential.Credential, req Request) (*http.Response, error)
}
