package service

import (
	"testing"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

func TestSubstitute(t *testing.T) {
	ctx := TemplateContext{
		Inputs: map[string]string{"topic": "T", "goal": "G"},
		Channels: map[core.NodeID]string{
			"A": "OUT:A on T",
			"B": "{{topic}}",
		},
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"no tokens", "plain text", "plain text"},
		{"input", "research {{topic}}", "research T"},
		{"input with spaces", "research {{ topic }}", "research T"},
		{"channel", "B sees {{channel:A.last}}", "B sees OUT:A on T"},
		{"unknown input", "x{{missing}}y", "xy"},
		{"unknown channel", "x{{channel:Z.last}}y", "xy"},
		{"channel without suffix is an input name", "{{channel:A}}", ""},
		{"substituted values are not re-expanded", "{{channel:B.last}}", "{{topic}}"},
		{"unterminated token kept verbatim", "a {{topic", "a {{topic"},
		{"several tokens", "{{goal}}/{{topic}}/{{channel:A.last}}", "G/T/OUT:A on T"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Substitute(tt.template, ctx); got != tt.want {
				t.Errorf("Substitute(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestSubstitute_NilMaps(t *testing.T) {
	if got := Substitute("a{{x}}{{channel:A.last}}b", TemplateContext{}); got != "ab" {
		t.Errorf("Substitute() = %q, want %q", got, "ab")
	}
}

func TestReferences(t *testing.T) {
	got := References("{{channel:A.last}} {{topic}} {{channel:B.last}} {{channel:A.last}}")
	want := []core.NodeID{"A", "B"}
	if len(got) != len(want) {
		t.Fatalf("References() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("References()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if refs := References("no refs {{topic}}"); len(refs) != 0 {
		t.Errorf("References() = %v, want none", refs)
	}
}
