package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/AprilNEA/BYOKEY/internal/httpclient"
)

// BootstrapCredential is a provider-specific client id/secret bundle fetched
// from a content-delivery endpoint before the real flow can start.
type BootstrapCredential struct {
	ClientID     string
	ClientSecret string
}

// bootstrapCache caches one BootstrapCredential per fetch URL for the life
// of the process, per the "must be cached in-process for the life of the
// binary" requirement.
type bootstrapCache struct {
	mu    sync.Mutex
	cache map[string]BootstrapCredential
}

var globalBootstrapCache = &bootstrapCache{cache: make(map[string]BootstrapCredential)}

// FetchBootstrap fetches (or returns the cached) bootstrap credential from
// url via client, decoding the {client_id, client_secret} JSON shape.
func FetchBootstrap(ctx context.Context, client httpclient.Client, url string) (BootstrapCredential, error) {
	globalBootstrapCache.mu.Lock()
	if bc, ok := globalBootstrapCache.cache[url]; ok {
		globalBootstrapCache.mu.Unlock()
		return bc, nil
	}
	globalBootstrapCache.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return BootstrapCredential{}, &FlowError{Kind: MalformedResponse, Cause: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return BootstrapCredential{}, &FlowError{Kind: NetworkError, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return BootstrapCredential{}, &FlowError{Kind: NetworkError, Cause: err}
	}
	if resp.StatusCode/100 != 2 {
		return BootstrapCredential{}, &FlowError{Kind: UpstreamRejected, Code: fmt.Sprintf("http_%d", resp.StatusCode), BodyExcerpt: excerpt(body)}
	}

	var bc struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.Unmarshal(body, &bc); err != nil || bc.ClientID == "" {
		return BootstrapCredential{}, &FlowError{Kind: MalformedResponse, BodyExcerpt: excerpt(body)}
	}

	cred := BootstrapCredential{ClientID: bc.ClientID, ClientSecret: bc.ClientSecret}
	globalBootstrapCache.mu.Lock()
	globalBootstrapCache.cache[url] = cred
	globalBootstrapCache.mu.Unlock()
	return cred, nil
}
