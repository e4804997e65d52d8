package api

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/AprilNEA/BYOKEY/internal/dialect"
)

// ampUpstream is ampcode.com's management API, the transparent-proxy
// target for /amp/v0/management/*.
var ampUpstream = &url.URL{Scheme: "https", Host: "ampcode.com"}

// handleAmpLogin serves GET /amp/v1/login by redirecting to the amp
// upstream's own login page; byokey holds no session state of its own for
// this flow, it only fronts the upstream's OAuth-ish web login.
func (s *Server) handleAmpLogin(c *gin.Context) {
	c.Redirect(http.StatusFound, "https://ampcode.com/login")
}

// handleAmpChatCompletions serves /amp/v1/chat/completions: Amp's dialect
// is OpenAI-shaped with a few extra top-level fields the canonical model
// does not carry, which is exactly what the OpenAI codec already tolerates
// (unknown fields are dropped, not rejected) — so this reuses the same
// dispatch path as /v1/chat/completions.
func (s *Server) handleAmpChatCompletions(c *gin.Context) {
	s.dispatch(c, dialect.OpenAI, "", false)
}

// handleAmpManagement transparently proxies /amp/v0/management/* to
// ampcode.com, optionally substituting a configured upstream key for the
// caller's own Authorization header so a single byokey deployment can share
// one amp subscription across callers.
func (s *Server) handleAmpManagement(c *gin.Context) {
	proxy := httputil.NewSingleHostReverseProxy(ampUpstream)
	upstreamKey := s.cfg.Load().Amp.UpstreamKey
	path := c.Param("path")
	proxy.Director = func(r *http.Request) {
		r.URL.Scheme = ampUpstream.Scheme
		r.URL.Host = ampUpstream.Host
		r.URL.Path = path
		r.Host = ampUpstream.Host
		if upstreamKey != "" {
			r.Header.Set("Authorization", "Bearer "+upstreamKey)
		}
	}
	proxy.ServeHTTP(c.Writer, c.Request)
}
