package collector

import (
	"testing"

	"github.com/wippyai/wasm-gc/errors"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Config
		wantErr bool
	}{
		{
			name:  "empty",
			input: "",
			want:  DefaultConfig(),
		},
		{
			name:  "all keys",
			input: `{"pointer_size": 8, "collect_threshold": 4096, "zero_memory": false}`,
			want:  Config{PointerSize: 8, CollectThreshold: 4096},
		},
		{
			name:  "threshold disabled",
			input: `{"collect_threshold": 0}`,
			want:  Config{PointerSize: 4, ZeroMemory: true},
		},
		{
			name:  "unknown keys ignored",
			input: `{"heap_pages": 32, "log_level": "debug"}`,
			want:  DefaultConfig(),
		},
		{name: "invalid json", input: `{"pointer_size":`, wantErr: true},
		{name: "bad pointer size", input: `{"pointer_size": 2}`, wantErr: true},
		{name: "pointer size string", input: `{"pointer_size": "4"}`, wantErr: true},
		{name: "fractional pointer size", input: `{"pointer_size": 4.9}`, wantErr: true},
		{name: "fractional pointer size rounding to 8", input: `{"pointer_size": 8.5}`, wantErr: true},
		{name: "exponent pointer size", input: `{"pointer_size": 8e0}`, want: Config{PointerSize: 8, CollectThreshold: DefaultCollectThreshold, ZeroMemory: true}},
		{name: "negative threshold", input: `{"collect_threshold": -1}`, wantErr: true},
		{name: "fractional threshold", input: `{"collect_threshold": 1024.5}`, wantErr: true},
		{name: "zero_memory not bool", input: `{"zero_memory": 1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfig([]byte(tt.input))
			if tt.wantErr {
				if errors.KindOf(err) != errors.KindInvalidInput {
					t.Fatalf("ParseConfig(%s) = %v, want invalid input", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConfig(%s): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseConfig(%s) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInitRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PointerSize = 3
	c := New(nil, nil, nil, cfg)

	if err := c.Init(); errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("Init = %v, want invalid input", err)
	}
	if c.State() != StateUninitialized {
		t.Errorf("state = %s", c.State())
	}
}
