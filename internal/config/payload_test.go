package config

import "testing"

func TestApplyPayloadRulesStripThenSet(t *testing.T) {
	body := []byte(`{"model":"gpt-4","metadata":{"user":"x"},"temperature":0.5}`)
	rules := PayloadRules{
		Strip: []string{"metadata"},
		Set:   map[string]any{"temperature": 0.2},
	}
	out, err := ApplyPayloadRules(body, rules)
	if err != nil {
		t.Fatalf("ApplyPayloadRules: %v", err)
	}
	if string(out) != `{"model":"gpt-4","temperature":0.2}` {
		t.Fatalf("unexpected output: %s", out)
	}
}
