// Command forward runs the clock as a master for other gear: engine events
// and a 24-per-quarter clock go to one output port, and transport messages
// from one input port drive the engine. Run owns the clock, so Timing Clock
// arriving on the input port is dropped rather than counted a second time.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/leandrodaf/midiclock/internal/logger"
	"github.com/leandrodaf/midiclock/internal/midi/gomidiport"
	"github.com/leandrodaf/midiclock/sdk/contracts"
	"github.com/leandrodaf/midiclock/sdk/midiclock"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

func main() {
	log := logger.NewZapLogger()
	defer midi.CloseDriver()

	if len(os.Args) < 3 {
		fmt.Println("usage: forward <out port> <in port>")
		fmt.Println(midi.GetOutPorts())
		fmt.Println(midi.GetInPorts())
		return
	}

	out, err := midi.FindOutPort(os.Args[1])
	if err != nil {
		log.Error("Output port not found", log.Field().Error("error", err))
		return
	}
	in, err := midi.FindInPort(os.Args[2])
	if err != nil {
		log.Error("Input port not found", log.Field().Error("error", err))
		return
	}

	deliverer := gomidiport.NewDeliverer(log)
	addr, err := deliverer.AttachPort(out)
	if err != nil {
		log.Error("Failed to open output port", log.Field().Error("error", err))
		return
	}

	cfg := midiclock.DefaultConfig()
	forwarder, err := gomidiport.NewClockForwarder(out, cfg.PPQ, log)
	if err != nil {
		log.Error("Failed to create clock output", log.Field().Error("error", err))
		return
	}
	opts, err := cfg.Options()
	if err != nil {
		log.Error("Invalid configuration", log.Field().Error("error", err))
		return
	}

	engine, err := midiclock.NewEngine(append(opts,
		contracts.WithLogger(log),
		contracts.WithDeliverer(deliverer),
		contracts.WithSubscribers(addr),
		contracts.WithListener(forwarder),
	)...)
	if err != nil {
		log.Error("Failed to initialize engine", log.Field().Error("error", err))
		return
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	inbound := gomidiport.NewInbound(ctx, engine, contracts.Address{Client: 1, Port: uint8(in.Number())}, log, gomidiport.WithoutClock())
	stopListening, err := inbound.Listen(in)
	if err != nil {
		log.Error("Failed to listen", log.Field().Error("error", err))
		return
	}
	defer stopListening()

	go func() {
		for {
			ev, err := engine.Read(ctx)
			if err != nil {
				return
			}
			if _, err := engine.Enqueue(ctx, contracts.ScheduledEvent{Payload: ev.Payload, Dest: contracts.Direct}); err != nil {
				log.Warn("Thru failed", log.Field().Error("error", err))
			}
		}
	}()

	fmt.Printf("Forwarding clock to %s, listening on %s. Press Ctrl+C to exit.\n", out, in)
	if err := engine.Run(ctx); err != nil {
		log.Error("Dispatch loop ended", log.Field().Error("error", err))
	}
}
