package llm

import (
	"testing"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "JSONFence",
			in:   "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "GenericFence",
			in:   "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "NoFence",
			in:   "  {\"a\": 1}  ",
			want: `{"a": 1}`,
		},
		{
			name: "FenceWithLeadingProse",
			in:   "Here you go:\n```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "UnterminatedFence",
			in:   "```json\n{\"a\": 1}",
			want: `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanJSONBlock(tt.in); got != tt.want {
				t.Errorf("CleanJSONBlock() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "BareObject",
			in:   `{"request_type": "Жалоба"}`,
			want: `{"request_type": "Жалоба"}`,
		},
		{
			name: "ProseAroundObject",
			in:   `Вот результат: {"a": 1} надеюсь, помог.`,
			want: `{"a": 1}`,
		},
		{
			name: "FencedObject",
			in:   "```json\n{\"a\": {\"b\": 2}}\n```",
			want: `{"a": {"b": 2}}`,
		},
		{
			name: "NestedBraces",
			in:   `{"outer": {"inner": "v"}} trailing`,
			want: `{"outer": {"inner": "v"}}`,
		},
		{
			name: "BraceInsideString",
			in:   `{"summary": "скобка } в тексте"}`,
			want: `{"summary": "скобка } в тексте"}`,
		},
		{
			name: "EscapedQuoteInsideString",
			in:   `{"summary": "цитата \" и } дальше"}`,
			want: `{"summary": "цитата \" и } дальше"}`,
		},
		{
			name:    "NoObject",
			in:      "plain text answer",
			wantErr: true,
		},
		{
			name:    "Unbalanced",
			in:      `{"a": 1`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
