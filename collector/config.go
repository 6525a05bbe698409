package collector

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
)

// DefaultCollectThreshold is the number of bytes allocated between automatic
// collections.
const DefaultCollectThreshold = 1 << 20

// Config holds collector tuning.
type Config struct {
	// Logger receives cycle summaries at debug level and fatal errors at
	// error level. nil means Logger().
	Logger *zap.Logger

	// Observer is notified of allocations and cycles. nil disables it.
	Observer Observer

	// CollectThreshold triggers a collection inside Allocate once this many
	// bytes were allocated since the last cycle. 0 disables the trigger;
	// collection then only happens on Collect or when the allocator is full.
	CollectThreshold uint64

	// PointerSize is the width of stack words and pointer fields: 4 or 8.
	PointerSize uint32

	// ZeroMemory clears every block before Allocate returns it. Without it a
	// reused block may still hold stale addresses, which the conservative
	// scanner would treat as references.
	ZeroMemory bool
}

// DefaultConfig returns the configuration for wasm32 guests.
func DefaultConfig() Config {
	return Config{
		PointerSize:      wasmgc.PointerSize,
		CollectThreshold: DefaultCollectThreshold,
		ZeroMemory:       true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PointerSize != 4 && c.PointerSize != 8 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(c.PointerSize).
			Detail("pointer_size must be 4 or 8, got %d", c.PointerSize).
			Build()
	}
	return nil
}

// ParseConfig reads a JSON configuration on top of DefaultConfig:
//
//	{"pointer_size": 4, "collect_threshold": 1048576, "zero_memory": true}
//
// Unknown keys are ignored so the same document can carry settings for
// other layers. An empty document yields DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if !gjson.ValidBytes(data) {
		return Config{}, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("invalid json: %q", string(data)))
	}

	doc := gjson.ParseBytes(data)

	if v := doc.Get("pointer_size"); v.Exists() {
		if !isInteger(v) {
			return Config{}, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("pointer_size must be an integer, got %s", v.Raw))
		}
		cfg.PointerSize = uint32(v.Uint())
	}
	if v := doc.Get("collect_threshold"); v.Exists() {
		if !isInteger(v) || v.Num < 0 {
			return Config{}, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("collect_threshold must be a non-negative integer, got %s", v.Raw))
		}
		cfg.CollectThreshold = v.Uint()
	}
	if v := doc.Get("zero_memory"); v.Exists() {
		if !v.IsBool() {
			return Config{}, errors.InvalidInput(errors.PhaseConfig, "zero_memory must be a boolean")
		}
		cfg.ZeroMemory = v.Bool()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// isInteger reports whether v is a JSON number without a fractional part.
// gjson's Uint and Int truncate, so 4.9 would otherwise read as 4.
func isInteger(v gjson.Result) bool {
	return v.Type == gjson.Number && v.Num == math.Trunc(v.Num)
}
