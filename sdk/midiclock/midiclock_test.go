package midiclock

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leandrodaf/midiclock/internal/logger"
	"github.com/leandrodaf/midiclock/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct{ sent [][]byte }

func (s *sink) Deliver(_, _ contracts.Address, payload []byte) error {
	s.sent = append(s.sent, payload)
	return nil
}

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigKeepsDefaultsForAbsentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clock.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ppq: 24\nbpm: \"97.5\"\ndispatch_interval: 2ms\nsubscribers: [\"20:0\", \"24:1\"]\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.PPQ)
	assert.Equal(t, "97.5", cfg.BPM)
	assert.Equal(t, 2*time.Millisecond, cfg.DispatchInterval)
	assert.Equal(t, []string{"20:0", "24:1"}, cfg.Subscribers)
	assert.Equal(t, DefaultName, cfg.Name)
	assert.Equal(t, 500, cfg.OutputPool.Capacity)
}

func TestConfigSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clock.yaml")
	cfg := DefaultConfig()
	cfg.Routes = []string{"20:0"}
	cfg.InputPool.Room = 10
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clock.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ppq: [\n"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigOptionsValidation(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"bpm":        func(c *Config) { c.BPM = "fast" },
		"zero bpm":   func(c *Config) { c.BPM = "0" },
		"level":      func(c *Config) { c.LogLevel = "loud" },
		"source":     func(c *Config) { c.DefaultSource = "128" },
		"route":      func(c *Config) { c.Routes = []string{"1:300"} },
		"subscriber": func(c *Config) { c.Subscribers = []string{"x:1"} },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			_, err := cfg.Options()
			assert.ErrorIs(t, err, contracts.ErrQueueConfiguration)
		})
	}
}

func TestConfigOptionsApply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BPM = "241/2"
	cfg.LogLevel = "debug"
	cfg.Subscribers = []string{"20:0"}
	cfg.Routes = []string{"24:1"}
	opts, err := cfg.Options()
	require.NoError(t, err)

	opts = append(opts, contracts.WithLogger(logger.NewNopLogger()), contracts.WithDeliverer(&sink{}))
	options, err := applyDefaultOptions(opts...)
	require.NoError(t, err)

	assert.Equal(t, 0, options.BPM.Cmp(big.NewRat(241, 2)))
	assert.Equal(t, contracts.DebugLevel, options.LogLevel)
	assert.Equal(t, []contracts.Address{{Client: 20, Port: 0}}, options.Subscribers)
	assert.Equal(t, []contracts.Address{{Client: 24, Port: 1}}, options.Routes)
	assert.True(t, options.OutputPool.Blocking)
}

func TestApplyDefaultOptions(t *testing.T) {
	options, err := applyDefaultOptions(contracts.WithLogger(logger.NewNopLogger()), contracts.WithDeliverer(&sink{}))
	require.NoError(t, err)
	assert.Equal(t, DefaultName, options.Name)
	assert.Equal(t, contracts.InfoLevel, options.LogLevel)
	assert.Equal(t, 96, options.PPQ)
	assert.Equal(t, 0, options.BPM.Cmp(big.NewRat(120, 1)))
	assert.Equal(t, time.Millisecond, options.DispatchInterval)
	assert.Equal(t, 64, options.FailureBuffer)
}

func TestUnsupportedOS(t *testing.T) {
	_, err := newDeliverer("plan9", &contracts.EngineOptions{Logger: logger.NewNopLogger()})
	assert.ErrorIs(t, err, ErrUnsupportedOS)
}

func TestNewEngine(t *testing.T) {
	out := &sink{}
	e, err := NewEngine(
		contracts.WithLogger(logger.NewNopLogger()),
		contracts.WithDeliverer(out),
		contracts.WithTempo(120),
		contracts.WithPPQ(24),
		contracts.WithSubscribers(contracts.Address{Client: 20}),
	)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Start())
	_, err = e.Enqueue(context.Background(), contracts.ScheduledEvent{Payload: []byte{0x90, 60, 100}, Due: contracts.AtTick(24)})
	require.NoError(t, err)

	e.Advance(499 * time.Millisecond)
	e.DispatchDue()
	assert.Empty(t, out.sent)

	e.Advance(time.Millisecond)
	e.DispatchDue()
	assert.Equal(t, [][]byte{{0x90, 60, 100}}, out.sent)
}
