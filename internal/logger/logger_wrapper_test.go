package logger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leandrodaf/midiclock/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (contracts.Logger, *observer.ObservedLogs) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core, logs := observer.New(level)
	return Wrap(zap.New(core), level), logs
}

func TestFieldsAreStructured(t *testing.T) {
	log, logs := newObserved()

	log.Info("dispatched",
		log.Field().Uint64("seq", 7),
		log.Field().String("dest", "20:0"),
		log.Field().Duration("late", 2*time.Millisecond),
		log.Field().Error("error", errors.New("boom")),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "dispatched", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, uint64(7), ctx["seq"])
	assert.Equal(t, "20:0", ctx["dest"])
	assert.Equal(t, 2*time.Millisecond, ctx["late"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestSetLevelFiltersDebug(t *testing.T) {
	log, logs := newObserved()

	log.Debug("hidden")
	assert.Equal(t, 0, logs.Len())

	log.SetLevel(contracts.DebugLevel)
	log.Debug("shown")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)

	log.SetLevel(contracts.ErrorLevel)
	log.Warn("hidden")
	assert.Equal(t, 1, logs.Len())
}

func TestNopLoggerAcceptsEverything(t *testing.T) {
	log := NewNopLogger()
	log.SetLevel(contracts.DebugLevel)
	log.Info("ignored", log.Field().Bool("ok", true), log.Field().Uint8("port", 1))
	log.SetDestination(contracts.FileLog)
}

func TestSetDestinationFile(t *testing.T) {
	path := t.TempDir() + "/engine.log"
	log := NewZapLogger()
	log.SetDestination(contracts.FileLog, path)
	log.Info("to file")

	z := log.(*ZapLogger)
	require.NoError(t, z.logger.Load().Sync())
	assert.FileExists(t, path)
}

func TestSetDestinationWhileLogging(t *testing.T) {
	dir := t.TempDir()
	log := NewZapLogger()
	log.SetLevel(contracts.ErrorLevel)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					log.Error("tick", log.Field().Int("worker", i))
				}
			}
		}()
	}

	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			log.SetDestination(contracts.FileLog, dir+"/a.log")
		} else {
			log.SetDestination(contracts.FileLog, dir+"/b.log")
		}
	}
	close(stop)
	wg.Wait()

	require.NoError(t, log.(*ZapLogger).logger.Load().Sync())
	assert.FileExists(t, dir+"/a.log")
	assert.FileExists(t, dir+"/b.log")
}
