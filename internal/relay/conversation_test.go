package relay

import "testing"

func TestConversationAppendOrder(t *testing.T) {
	conv := &Conversation{}
	conv.Append(RoleUser, "hi")
	conv.Append(RoleAssistant, "hello")
	conv.Append(RoleUser, "again")

	if conv.Len() != 3 {
		t.Fatalf("expected 3 turns, got %d", conv.Len())
	}
	want := []Turn{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "again"},
	}
	for i, turn := range conv.Turns {
		if turn != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, turn, want[i])
		}
	}
}

func TestConversationReset(t *testing.T) {
	conv := &Conversation{}
	conv.Append(RoleUser, "hi")
	conv.Append(RoleAssistant, "hello")
	conv.LastResponseID = "resp_1"

	conv.Reset()

	if conv.Len() != 0 {
		t.Errorf("expected empty turn sequence after reset, got %d turns", conv.Len())
	}
	if conv.LastResponseID != "" {
		t.Errorf("expected empty LastResponseID after reset, got %q", conv.LastResponseID)
	}
}

func TestConversationSnapshotIsCopy(t *testing.T) {
	conv := &Conversation{}
	conv.Append(RoleUser, "hi")

	snap := conv.Snapshot()
	conv.Append(RoleAssistant, "hello")

	if len(snap) != 1 {
		t.Fatalf("snapshot grew with the conversation: %d turns", len(snap))
	}
}

func TestConversationTruncateBounds(t *testing.T) {
	conv := &Conversation{}
	conv.Append(RoleUser, "hi")

	conv.truncate(5) // out of range, ignored
	if conv.Len() != 1 {
		t.Fatalf("truncate past end changed length: %d", conv.Len())
	}
	conv.truncate(0)
	if conv.Len() != 0 {
		t.Fatalf("truncate(0) left %d turns", conv.Len())
	}
}
