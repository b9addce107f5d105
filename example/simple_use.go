package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"

	"github.com/leandrodaf/midiclock/internal/logger"
	"github.com/leandrodaf/midiclock/sdk/contracts"
	"github.com/leandrodaf/midiclock/sdk/midiclock"
)

func main() {
	log := logger.NewZapLogger()

	path := "midiclock.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := midiclock.LoadConfig(path)
	if err != nil {
		log.Error("Failed to load configuration", log.Field().Error("error", err))
		return
	}
	opts, err := cfg.Options()
	if err != nil {
		log.Error("Invalid configuration", log.Field().Error("error", err))
		return
	}

	engine, err := midiclock.NewEngine(append(opts, contracts.WithLogger(log))...)
	if err != nil {
		log.Error("Failed to initialize engine", log.Field().Error("error", err))
		return
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		for f := range engine.Failures() {
			log.Warn("Delivery failed",
				log.Field().Uint64("seq", uint64(f.Event.ID)),
				log.Field().Error("error", f.Err),
			)
		}
	}()

	// One bar of quarter notes, then the tempo doubles.
	ppq := uint64(engine.Stats().PPQ)
	for beat := uint64(0); beat < 4; beat++ {
		on := contracts.ScheduledEvent{Payload: []byte{0x90, 60, 100}, Due: contracts.AtTick(beat * ppq)}
		off := contracts.ScheduledEvent{Payload: []byte{0x80, 60, 0}, Due: contracts.AtTick(beat*ppq + ppq/2)}
		for _, ev := range []contracts.ScheduledEvent{on, off} {
			if _, err := engine.Enqueue(ctx, ev); err != nil {
				log.Error("Failed to schedule note", log.Field().Error("error", err))
				return
			}
		}
	}
	bpm := new(big.Rat).Mul(engine.Stats().BPM, big.NewRat(2, 1))
	if _, err := engine.SetTempo(ctx, bpm, contracts.AtTick(4*ppq)); err != nil {
		log.Error("Failed to schedule tempo change", log.Field().Error("error", err))
		return
	}

	if err := engine.Start(); err != nil {
		log.Error("Failed to start transport", log.Field().Error("error", err))
		return
	}

	fmt.Println("Clock running... Press Ctrl+C to exit.")
	if err := engine.Run(ctx); err != nil {
		log.Error("Dispatch loop ended", log.Field().Error("error", err))
	}
	s := engine.Stats()
	fmt.Printf("Stopped at pulse %d, song position %d\n", s.Pulses, s.SongPosition)
}
