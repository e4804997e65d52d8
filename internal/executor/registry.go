package executor

import (
	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/httpclient"
)

// BuildAll constructs every provider's Executor against the shared HTTP
// client, analogous to internal/oauth/registry.go's BuildFlow map.
func BuildAll(client httpclient.Client) map[credential.ProviderId]Executor {
	return map[credential.ProviderId]Executor{
		credential.Claude:      NewClaudeExecutor(client),
		credential.Codex:       NewCodexExecutor(client),
		credential.Copilot:     NewCopilotExecutor(client),
		credential.Gemini:      NewGeminiExecutor(client),
		credential.Kiro:        NewKiroExecutor(client),
		credential.Antigravity: NewAntigravityExecutor(client),
		credential.Qwen:        NewQwenExecutor(client),
		credential.Kimi:        NewKimiExecutor(client),
		credential.IFlow:       NewIFlowExecutor(client),
	}
}
