package host

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-gc/collector"
	"github.com/wippyai/wasm-gc/errors"
)

// DefaultHeapPages is the number of pages grown onto a guest memory on init.
const DefaultHeapPages = 16

// Config configures a Binding.
type Config struct {
	// Collector is the configuration every guest collector is created with.
	Collector collector.Config
	// HeapPages is the number of 64 KiB pages reserved on init and the
	// minimum growth step when the heap is exhausted.
	HeapPages uint32
}

// DefaultConfig returns collector.DefaultConfig with DefaultHeapPages and the
// threshold trigger disabled. See the package documentation for why.
func DefaultConfig() Config {
	cc := collector.DefaultConfig()
	cc.CollectThreshold = 0
	return Config{
		Collector: cc,
		HeapPages: DefaultHeapPages,
	}
}

// ParseConfig reads the collector keys understood by collector.ParseConfig
// plus "heap_pages", on top of DefaultConfig. The threshold trigger stays
// off unless "collect_threshold" is given.
func ParseConfig(data []byte) (Config, error) {
	cc, err := collector.ParseConfig(data)
	if err != nil {
		return Config{}, err
	}
	if !gjson.GetBytes(data, "collect_threshold").Exists() {
		cc.CollectThreshold = 0
	}
	cfg := Config{Collector: cc, HeapPages: DefaultHeapPages}

	if v := gjson.GetBytes(data, "heap_pages"); v.Exists() {
		if v.Type != gjson.Number || v.Num != math.Trunc(v.Num) || v.Num < 1 || v.Num > 65536 {
			return Config{}, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("heap_pages must be an integer in [1, 65536], got %s", v.Raw))
		}
		cfg.HeapPages = uint32(v.Uint())
	}
	return cfg, nil
}

// Option configures a Binding.
type Option func(*Config)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg }
}

// WithCollectorConfig sets the per-guest collector configuration.
func WithCollectorConfig(cfg collector.Config) Option {
	return func(c *Config) { c.Collector = cfg }
}

// WithHeapPages sets the initial heap size in pages.
func WithHeapPages(pages uint32) Option {
	return func(c *Config) { c.HeapPages = pages }
}

// WithLogger sets the logger handed to every guest collector.
func WithLogger(log *zap.Logger) Option {
	return func(c *Config) { c.Collector.Logger = log }
}

// WithObserver sets the observer handed to every guest collector.
func WithObserver(obs collector.Observer) Option {
	return func(c *Config) { c.Collector.Observer = obs }
}
