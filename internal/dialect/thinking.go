package dialect

import "strings"

// Token budgets for the three named reasoning effort levels, shared across
// dialects so a request that arrives with one dialect's shape and leaves
// through another keeps a consistent amount of thinking room. Grounded on
// the fallback-budget pattern in the OnslaughtSnail-caelis provider clients
// (anthropic.go's 512-token floor; here raised to a usable default since
// 512 is too small for multi-step tool reasoning).
const (
	thinkingBudgetLow    = 4096
	thinkingBudgetMedium = 16384
	thinkingBudgetHigh   = 32768
)

func thinkingBudgetOrDefault(budget int) int {
	if budget > 0 {
		return budget
	}
	return thinkingBudgetMedium
}

// thinkingEffortToBudget maps an OpenAI-style reasoning_effort string to an
// Anthropic/Gemini-style token budget.
func thinkingEffortToBudget(effort string) int {
	switch strings.ToLower(effort) {
	case "low", "minimal":
		return thinkingBudgetLow
	case "high":
		return thinkingBudgetHigh
	default:
		return thinkingBudgetMedium
	}
}

// thinkingBudgetToEffort maps a token budget back to the nearest named
// effort level, for dialects (OpenAI) that only accept the label.
func thinkingBudgetToEffort(budget int) string {
	switch {
	case budget <= 0:
		return "medium"
	case budget <= thinkingBudgetLow:
		return "low"
	case budget <= thinkingBudgetMedium:
		return "medium"
	default:
		return "high"
	}
}

// ModelThinkingSuffix is a parsed "-thinking" / "-thinking-<level>" model
// name suffix. Grounded on original_source/crates/proxy/src/chat.rs's
// parse_model_suffix step, which strips this suffix from the caller's
// model name and turns it into a provider-appropriate thinking config
// before dispatch.
type ModelThinkingSuffix struct {
	Enabled bool
	Effort  string // "low", "medium", or "high"; "" when Enabled is false
}

// ParseModelSuffix splits a trailing "-thinking" or "-thinking-<level>" off
// model, returning the clean model name and the parsed suffix (Enabled
// false, zero Effort, when no suffix is present).
func ParseModelSuffix(model string) (string, ModelThinkingSuffix) {
	const marker = "-thinking"
	idx := strings.Index(model, marker)
	if idx < 0 {
		return model, ModelThinkingSuffix{}
	}
	clean := model[:idx]
	rest := model[idx+len(marker):]
	effort := "medium"
	if rest != "" {
		level := strings.TrimPrefix(rest, "-")
		switch strings.ToLower(level) {
		case "low", "medium", "high":
			effort = strings.ToLower(level)
		}
	}
	return clean, ModelThinkingSuffix{Enabled: true, Effort: effort}
}

// ApplyThinkingSuffix sets req.Thinking/ThinkingBudgetTokens/ThinkingEffort
// from a parsed ModelThinkingSuffix. A no-op when suffix.Enabled is false.
func ApplyThinkingSuffix(req *Request, suffix ModelThinkingSuffix) {
	if !suffix.Enabled {
		return
	}
	req.Thinking = true
	req.ThinkingEffort = suffix.Effort
	req.ThinkingBudgetTokens = thinkingEffortToBudget(suffix.Effort)
}
