package eventparser

import (
	"strings"
	"testing"
)

func TestParseUserAndAssistantEvents(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"user","uuid":"u1","message":{"role":"user","content":[{"type":"text","text":"hello"}]}}`,
		`{"type":"assistant","uuid":"a1","parentUuid":"u1","message":{"role":"assistant","content":[{"type":"text","text":"hi "},{"type":"text","text":"there"},{"type":"tool_use","id":"t1","name":"bash","input":{"cmd":"ls"}}]}}`,
	}, "\n") + "\n"

	p := New(strings.NewReader(input))

	ev, ok := p.Next()
	if !ok {
		t.Fatalf("expected first event")
	}
	if ev.Kind != KindUser || ev.Line != 1 {
		t.Errorf("unexpected first event: %+v", ev)
	}
	if len(ev.Content) != 1 || ev.Content[0].Text != "hello" {
		t.Errorf("unexpected content: %+v", ev.Content)
	}

	ev, ok = p.Next()
	if !ok {
		t.Fatalf("expected second event")
	}
	if ev.Kind != KindAssistant || ev.Line != 2 || ev.ParentUUID != "u1" {
		t.Errorf("unexpected second event: %+v", ev)
	}
	if len(ev.Content) != 3 {
		t.Fatalf("expected 3 content blocks, got %d", len(ev.Content))
	}
	if ev.Content[2].Type != BlockToolUse || ev.Content[2].ToolName != "bash" {
		t.Errorf("unexpected tool_use block: %+v", ev.Content[2])
	}

	if _, ok := p.Next(); ok {
		t.Error("expected stream to end")
	}
	if err := p.Err(); err != nil {
		t.Errorf("expected clean EOF, got %v", err)
	}
}

func TestMalformedLineEmitsDiagnosticAndContinues(t *testing.T) {
	input := "not json at all\n" +
		`{"type":"user","uuid":"u1","message":{"role":"user","content":[]}}` + "\n"

	var diags []Diagnostic
	p := New(strings.NewReader(input), WithDiagnostics(func(d Diagnostic) { diags = append(diags, d) }))

	ev, ok := p.Next()
	if !ok {
		t.Fatalf("expected the stream to recover and yield the valid line")
	}
	if ev.Line != 2 || ev.Kind != KindUser {
		t.Errorf("unexpected event: %+v", ev)
	}
	if len(diags) != 1 || diags[0].Kind != DiagParseError || diags[0].Line != 1 {
		t.Errorf("unexpected diagnostics: %+v", diags)
	}
}

func TestUnknownTagEmitsDiagnosticAndContinues(t *testing.T) {
	input := `{"type":"future_event","uuid":"x"}` + "\n" +
		`{"type":"system","content":"noted"}` + "\n"

	var diags []Diagnostic
	p := New(strings.NewReader(input), WithDiagnostics(func(d Diagnostic) { diags = append(diags, d) }))

	ev, ok := p.Next()
	if !ok {
		t.Fatalf("expected the known event to follow the unknown one")
	}
	if ev.Kind != KindSystem || ev.SystemText != "noted" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if len(diags) != 1 || diags[0].Kind != DiagUnknown || diags[0].Tag != "future_event" {
		t.Errorf("unexpected diagnostics: %+v", diags)
	}
}

func TestBlankLinesAreSkippedWithoutAffectingLineNumbers(t *testing.T) {
	input := "\n" +
		`{"type":"summary","summary":"overview"}` + "\n" +
		"\n" +
		`{"type":"system","content":"done"}` + "\n"

	p := New(strings.NewReader(input))

	ev, ok := p.Next()
	if !ok || ev.Kind != KindSummary || ev.Line != 2 {
		t.Fatalf("expected summary at line 2, got %+v ok=%v", ev, ok)
	}

	ev, ok = p.Next()
	if !ok || ev.Kind != KindSystem || ev.Line != 4 {
		t.Fatalf("expected system at line 4, got %+v ok=%v", ev, ok)
	}
}

func TestWithStartLineDiscardsEarlierLinesWithoutParsing(t *testing.T) {
	input := "not valid json\n" +
		`{"type":"user","uuid":"u1","message":{"role":"user","content":[{"type":"text","text":"first"}]}}` + "\n" +
		`{"type":"user","uuid":"u2","message":{"role":"user","content":[{"type":"text","text":"second"}]}}` + "\n"

	var diags []Diagnostic
	p := New(strings.NewReader(input), WithStartLine(3), WithDiagnostics(func(d Diagnostic) { diags = append(diags, d) }))

	ev, ok := p.Next()
	if !ok {
		t.Fatalf("expected the resumed event")
	}
	if ev.Line != 3 || ev.UUID != "u2" {
		t.Errorf("expected resume at line 3 (u2), got %+v", ev)
	}
	if len(diags) != 0 {
		t.Errorf("expected discarded lines to produce no diagnostics, got %+v", diags)
	}
}

func TestToolResultAndToolUseStandaloneEvents(t *testing.T) {
	input := `{"type":"tool_use","uuid":"t1","toolUseId":"call1","toolName":"bash","toolInput":{"cmd":"ls"}}` + "\n" +
		`{"type":"tool_result","toolUseId":"call1","content":"file1\nfile2","isError":false}` + "\n"

	p := New(strings.NewReader(input))

	ev, ok := p.Next()
	if !ok || ev.Kind != KindToolUse || ev.ToolUseID != "call1" || ev.ToolName != "bash" {
		t.Fatalf("unexpected tool_use event: %+v ok=%v", ev, ok)
	}

	ev, ok = p.Next()
	if !ok || ev.Kind != KindToolResult || ev.ToolResultForID != "call1" {
		t.Fatalf("unexpected tool_result event: %+v ok=%v", ev, ok)
	}
}

func TestContentWithoutTrailingNewlineIsStillParsed(t *testing.T) {
	input := `{"type":"system","content":"no trailing newline"}`

	p := New(strings.NewReader(input))
	ev, ok := p.Next()
	if !ok || ev.SystemText != "no trailing newline" {
		t.Fatalf("expected final unterminated line to parse, got %+v ok=%v", ev, ok)
	}
	if _, ok := p.Next(); ok {
		t.Error("expected stream to end after the last line")
	}
}
