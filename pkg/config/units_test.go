package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"20s", 20 * time.Second},
		{"1.5s", 1500 * time.Millisecond},
		{"2h45m", 2*time.Hour + 45*time.Minute},
		{"1d", Day},
		{"1d2h", Day + 2*time.Hour},
		{"2w", 2 * Week},
		{"", 0},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if err != nil {
			t.Errorf("ParseDuration(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseDurationInvalid(t *testing.T) {
	for _, in := range []string{"abc", "1x", "d"} {
		if _, err := ParseDuration(in); err == nil {
			t.Errorf("ParseDuration(%q) expected error", in)
		}
	}
}

func TestDurationYAMLRoundtrip(t *testing.T) {
	var wrapped struct {
		Timeout Duration `yaml:"timeout"`
	}
	if err := yaml.Unmarshal([]byte("timeout: 20s\n"), &wrapped); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if time.Duration(wrapped.Timeout) != 20*time.Second {
		t.Errorf("timeout = %v, want 20s", time.Duration(wrapped.Timeout))
	}

	out, err := yaml.Marshal(wrapped)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != "timeout: 20s\n" {
		t.Errorf("marshal = %q", out)
	}
}
