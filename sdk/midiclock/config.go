package midiclock

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leandrodaf/midiclock/sdk/contracts"
	"gopkg.in/yaml.v3"
)

// PoolConfig sizes one admission pool in a config file.
type PoolConfig struct {
	Capacity int  `yaml:"capacity"`
	Room     int  `yaml:"room,omitempty"`
	Blocking bool `yaml:"blocking"`
}

// Config is the on-disk form of the engine options.
type Config struct {
	Name             string        `yaml:"name"`
	LogLevel         string        `yaml:"log_level"`
	LogFile          string        `yaml:"log_file,omitempty"`
	PPQ              int           `yaml:"ppq"`
	BPM              string        `yaml:"bpm"` // "120", "97.5" or "241/2"
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	DefaultSource    string        `yaml:"default_source"`
	Routes           []string      `yaml:"routes,omitempty"`
	Subscribers      []string      `yaml:"subscribers,omitempty"`
	OutputPool       PoolConfig    `yaml:"output_pool"`
	InputPool        PoolConfig    `yaml:"input_pool"`
	FailureBuffer    int           `yaml:"failure_buffer"`
}

// DefaultConfig returns a config with the engine defaults
func DefaultConfig() *Config {
	return &Config{
		Name:             DefaultName,
		LogLevel:         "info",
		PPQ:              96,
		BPM:              "120",
		DispatchInterval: time.Millisecond,
		DefaultSource:    "0:0",
		OutputPool:       PoolConfig{Capacity: 500, Blocking: true},
		InputPool:        PoolConfig{Capacity: 500},
		FailureBuffer:    64,
	}
}

// LoadConfig reads path over the defaults. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("yaml unmarshal %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Options converts the config into engine options. Malformed values fail
// with contracts.ErrQueueConfiguration.
func (c *Config) Options() ([]contracts.Option, error) {
	bpm, ok := new(big.Rat).SetString(strings.TrimSpace(c.BPM))
	if !ok || bpm.Sign() <= 0 {
		return nil, fmt.Errorf("%w: bpm %q", contracts.ErrQueueConfiguration, c.BPM)
	}
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	source, err := contracts.ParseAddress(c.DefaultSource)
	if err != nil {
		return nil, fmt.Errorf("%w: default source: %v", contracts.ErrQueueConfiguration, err)
	}
	routes, err := parseAddresses(c.Routes)
	if err != nil {
		return nil, err
	}
	subscribers, err := parseAddresses(c.Subscribers)
	if err != nil {
		return nil, err
	}

	opts := []contracts.Option{
		contracts.WithName(c.Name),
		contracts.WithLogLevel(level),
		contracts.WithPPQ(c.PPQ),
		contracts.WithBPM(bpm),
		contracts.WithDispatchInterval(c.DispatchInterval),
		contracts.WithDefaultSource(source),
		contracts.WithRoutes(routes...),
		contracts.WithSubscribers(subscribers...),
		contracts.WithOutputPool(contracts.PoolConfig(c.OutputPool)),
		contracts.WithInputPool(contracts.PoolConfig(c.InputPool)),
		contracts.WithFailureBuffer(c.FailureBuffer),
	}
	if c.LogFile != "" {
		opts = append(opts, contracts.WithLogFile(c.LogFile))
	}
	return opts, nil
}

func parseLevel(s string) (contracts.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return contracts.DebugLevel, nil
	case "", "info":
		return contracts.InfoLevel, nil
	case "warn", "warning":
		return contracts.WarnLevel, nil
	case "error":
		return contracts.ErrorLevel, nil
	}
	return 0, fmt.Errorf("%w: log level %q", contracts.ErrQueueConfiguration, s)
}

func parseAddresses(in []string) ([]contracts.Address, error) {
	out := make([]contracts.Address, 0, len(in))
	for _, s := range in {
		addr, err := contracts.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contracts.ErrQueueConfiguration, err)
		}
		out = append(out, addr)
	}
	return out, nil
}
