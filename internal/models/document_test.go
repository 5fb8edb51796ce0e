package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUnitKind_String(t *testing.T) {
	tests := []struct {
		kind UnitKind
		want string
	}{
		{Prose, "prose"},
		{CodeBlock, "code_block"},
		{UnitKind(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("UnitKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestUnit_JSONUsesKindName(t *testing.T) {
	b, err := json.Marshal(Unit{Text: "x", Kind: CodeBlock})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"text":"x","kind":"code_block"}` {
		t.Errorf("unexpected JSON: %s", b)
	}
}

func TestDocument_UnitTexts(t *testing.T) {
	d := &Document{Units: []Unit{{Text: "a\n"}, {Text: "b\n", Kind: CodeBlock}}}
	texts := d.UnitTexts()
	if len(texts) != 2 || texts[0] != "a\n" || texts[1] != "b\n" {
		t.Errorf("UnitTexts() = %q", texts)
	}
}

func TestIndexRun_Duration(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &IndexRun{StartedAt: start}
	if r.Duration() != 0 {
		t.Error("running index run should report zero duration")
	}
	end := start.Add(3 * time.Second)
	r.FinishedAt = &end
	if r.Duration() != 3*time.Second {
		t.Errorf("Duration() = %v", r.Duration())
	}
}
