package executor

import "github.com/AprilNEA/BYOKEY/internal/credential"

// SupportedModels lists every model id a provider's upstream is known to
// serve, so cmd/byokey can build a registry.Registry without requiring a
// user to hand-enumerate models in config. Grounded on
// original_source/crates/provider/src/registry.rs's claude_models/
// codex_models/gemini_models/kiro_models/copilot_models static lists;
// qwen/kimi/iflow/antigravity follow the same provider-prefix convention
// those files establish (kimi.rs strips a local "kimi-" prefix,
// antigravity.rs strips "ag-") even though their own model lists were
// filtered out of the retrieved source.
func SupportedModels(provider credential.ProviderId) []string {
	switch provider {
	case credential.Claude:
		return []string{
			"claude-opus-4-6",
			"claude-opus-4-5",
			"claude-sonnet-4-5",
			"claude-haiku-4-5-20251001",
		}
	case credential.Codex:
		return []string{"o4-mini", "o3", "gpt-4o", "gpt-4o-mini"}
	case credential.Gemini:
		return []string{
			"gemini-2.0-flash",
			"gemini-2.0-flash-lite",
			"gemini-1.5-pro",
			"gemini-1.5-flash",
		}
	case credential.Kiro:
		return []string{"kiro-default"}
	case credential.Copilot:
		return []string{"gpt-4o", "gpt-4o-mini", "claude-3.5-sonnet", "o3-mini"}
	case credential.Qwen:
		return []string{"qwen-max", "qwen-plus", "qwen-turbo"}
	case credential.Kimi:
		return []string{"kimi-k2", "kimi-k1.5"}
	case credential.IFlow:
		return []string{"iflow-deepseek-v3", "iflow-qwen3-coder"}
	case credential.Antigravity:
		return []string{"ag-gemini-2.5-pro", "ag-gemini-2.5-flash", "ag-claude-sonnet-4-5"}
	default:
		return nil
	}
}

// AllSupportedModels builds the map registry.Build expects, covering every
// provider credential knows about.
func AllSupportedModels() map[credential.ProviderId][]string {
	ids := []credential.ProviderId{
		credential.Claude, credential.Codex, credential.Gemini, credential.Kiro,
		credential.Copilot, credential.Qwen, credential.Kimi, credential.IFlow,
		credential.Antigravity,
	}
	out := make(map[credential.ProviderId][]string, len(ids))
	for _, id := range ids {
		out[id] = SupportedModels(id)
	}
	return out
}
