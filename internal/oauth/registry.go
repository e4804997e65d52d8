package oauth

import (
	"fmt"

	"github.com/AprilNEA/BYOKEY/internal/clock"
	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/httpclient"
)

// BuildFlow selects the Flow variant for provider per the component
// design's flow-variant assignment and wires it against endpoints. The
// caller supplies endpoints (client id/secret, URLs) from configuration or
// a bootstrap fetch; BuildFlow itself carries no embedded client secrets.
func BuildFlow(provider credential.ProviderId, endpoints Endpoints, client httpclient.Client, clk clock.Clock) (Flow, error) {
	switch provider {
	case credential.Claude, credential.Codex, credential.Gemini, credential.Antigravity:
		return NewPKCELoopbackFlow(string(provider), endpoints, client, clk), nil
	case credential.Copilot:
		return NewDeviceCodeFlow(string(provider), endpoints, client, clk, NewCopilotPostProcess(client, clk)), nil
	case credential.Kiro, credential.Kimi:
		return NewDeviceCodeFlow(string(provider), endpoints, client, clk, nil), nil
	case credential.Qwen:
		f := NewDeviceCodeFlow(string(provider), endpoints, client, clk, nil)
		f.PKCEChallenge = true
		return f, nil
	case credential.IFlow:
		return NewOOBPasteFlow(string(provider), endpoints, client, clk, NewIFlowExchange(endpoints, client, endpoints.TokenURL+"/apikey")), nil
	default:
		return nil, fmt.Errorf("oauth: no flow variant for provider %q", provider)
	}
}
