package dialect

import "testing"

func TestMergeAdjacentSameRoleProducesNoConsecutiveDuplicates(t *testing.T) {
	in := []Message{
		{Role: RoleUser, Content: []ContentBlock{{Type: BlockText, Text: "a"}}},
		{Role: RoleUser, Content: []ContentBlock{{Type: BlockText, Text: "b"}}},
		{Role: RoleAssistant, Content: []ContentBlock{{Type: BlockText, Text: "c"}}},
		{Role: RoleAssistant, Content: []ContentBlock{{Type: BlockText, Text: "d"}}},
		{Role: RoleUser, Content: []ContentBlock{{Type: BlockText, Text: "e"}}},
	}
	out := MergeAdjacent(in)
	for i := 1; i < len(out); i++ {
		if out[i].Role == out[i-1].Role {
			t.Fatalf("consecutive same-role messages at %d: %+v", i, out)
		}
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 merged messages, got %d: %+v", len(out), out)
	}
	if out[0].Content[0].Text != "a\n\nb" {
		t.Fatalf("expected \\n\\n-joined text, got %q", out[0].Content[0].Text)
	}
}

func TestMergeAdjacentNeverMergesToolMessages(t *testing.T) {
	in := []Message{
		{Role: RoleTool, ToolCallID: "1", Content: []ContentBlock{{Type: BlockToolResult, ToolUseID: "1", ToolResultText: "r1"}}},
		{Role: RoleTool, ToolCallID: "2", Content: []ContentBlock{{Type: BlockToolResult, ToolUseID: "2", ToolResultText: "r2"}}},
	}
	out := MergeAdjacent(in)
	if len(out) != 2 {
		t.Fatalf("tool messages must never merge, got %d: %+v", len(out), out)
	}
}
