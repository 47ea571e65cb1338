package executor

import (
	"strings"
	"testing"
)

func TestNormalizeAmpLogs(t *testing.T) {
	logs := strings.Join([]string{
		`{"type":"initial","threadID":"T-123"}`,
		`{"type":"messages","messages":[[0,{"role":"user","content":[{"type":"text","text":"build it"}]}],[1,{"role":"assistant","content":[{"type":"text","text":"on it"},{"type":"tool_use","name":"Bash","input":{"command":"make"}}]}]]}`,
		`{"type":"state","state":"complete"}`,
	}, "\n")

	conv := normalizeAmpLogs(logs, "/tmp/w")

	if conv.ExecutorType != "amp" {
		t.Errorf("executor type = %q, want amp", conv.ExecutorType)
	}
	if conv.SessionID == nil || *conv.SessionID != "T-123" {
		t.Fatalf("session id = %v, want T-123", conv.SessionID)
	}
	if len(conv.Entries) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(conv.Entries), conv.Entries)
	}

	if conv.Entries[0].Type != EntryUserMessage || conv.Entries[0].Content != "build it" {
		t.Errorf("entry 0 = %+v, want user message %q", conv.Entries[0], "build it")
	}
	if conv.Entries[1].Type != EntryAssistantMessage || conv.Entries[1].Content != "on it" {
		t.Errorf("entry 1 = %+v, want assistant message %q", conv.Entries[1], "on it")
	}
	if conv.Entries[2].Type != EntryToolUse || conv.Entries[2].Content != "`make`" {
		t.Errorf("entry 2 = %+v, want tool use `make`", conv.Entries[2])
	}
}

func TestNormalizeAmpLogsThinking(t *testing.T) {
	logs := `{"type":"messages","messages":[[0,{"role":"assistant","content":[{"type":"thinking","thinking":"weighing options"}]}]]}`

	conv := normalizeAmpLogs(logs, "")
	if len(conv.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(conv.Entries))
	}
	if conv.Entries[0].Type != EntryThinking || conv.Entries[0].Content != "weighing options" {
		t.Errorf("entry = %+v, want thinking entry", conv.Entries[0])
	}
}

func TestNormalizeAmpLogsUnrecognized(t *testing.T) {
	conv := normalizeAmpLogs(`{"type":"surprise"}`+"\nnot json\n", "")
	if len(conv.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(conv.Entries))
	}
	if !strings.HasPrefix(conv.Entries[0].Content, "Unrecognized JSON: ") {
		t.Errorf("entry 0 = %q, want Unrecognized JSON prefix", conv.Entries[0].Content)
	}
	if !strings.HasPrefix(conv.Entries[1].Content, "Raw output: ") {
		t.Errorf("entry 1 = %q, want Raw output prefix", conv.Entries[1].Content)
	}
}

func TestNormalizeAmpLogsTotality(t *testing.T) {
	inputs := []string{
		"",
		`{"type":"messages"}`,
		`{"type":"messages","messages":"bad"}`,
		`{"type":"messages","messages":[42,[1],[null,null],[0,{"role":"assistant"}]]}`,
		`{"type":"initial"}`,
		"[]",
	}
	for _, input := range inputs {
		if conv := normalizeAmpLogs(input, "/tmp/w"); conv == nil {
			t.Fatalf("normalizeAmpLogs(%q) returned nil", input)
		}
	}
}
