package gomidiport

import (
	"context"

	"github.com/leandrodaf/midiclock/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Target is the part of contracts.Engine an input port feeds.
type Target interface {
	Apply(ctx context.Context, cmd contracts.Command) error
	Receive(ctx context.Context, ev contracts.ScheduledEvent) error
}

// Inbound feeds decoded messages from one input port into an engine.
// Transport and tempo messages become commands; everything else is
// received as an inbound event stamped with the port's address.
type Inbound struct {
	ctx         context.Context
	target      Target
	source      contracts.Address
	logger      contracts.Logger
	ignoreClock bool
}

type InboundOption func(*Inbound)

// WithoutClock drops incoming Timing Clock messages. Use it when the engine
// is the clock master, driven by Run, so external clocks do not count twice.
func WithoutClock() InboundOption {
	return func(in *Inbound) {
		in.ignoreClock = true
	}
}

func NewInbound(ctx context.Context, target Target, source contracts.Address, logger contracts.Logger, opts ...InboundOption) *Inbound {
	in := &Inbound{ctx: ctx, target: target, source: source, logger: logger}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Handle processes one message. Errors are logged; the port keeps listening.
func (in *Inbound) Handle(msg midi.Message) {
	if cmd, ok := Decode(msg); ok {
		if cmd.Kind == contracts.CmdClockTick && in.ignoreClock {
			return
		}
		if err := in.target.Apply(in.ctx, cmd); err != nil {
			in.logger.Warn("inbound command rejected",
				in.logger.Field().String("command", cmd.Kind.String()),
				in.logger.Field().String("source", in.source.String()),
				in.logger.Field().Error("error", err),
			)
		}
		return
	}
	if len(msg) == 0 || len(msg) > contracts.MaxPayloadSize {
		in.logger.Debug("inbound message ignored", in.logger.Field().Int("size", len(msg)))
		return
	}

	src := in.source
	ev := contracts.ScheduledEvent{Payload: append([]byte(nil), msg...), Source: &src, Due: contracts.Immediately}
	if err := in.target.Receive(in.ctx, ev); err != nil {
		in.logger.Warn("inbound event dropped",
			in.logger.Field().String("source", in.source.String()),
			in.logger.Field().Error("error", err),
		)
	}
}

// Listen attaches Handle to port and returns the function that stops it.
func (in *Inbound) Listen(port drivers.In) (stop func(), err error) {
	stop, err = midi.ListenTo(port, func(msg midi.Message, _ int32) {
		in.Handle(msg)
	})
	if err != nil {
		return nil, err
	}
	in.logger.Info("listening", in.logger.Field().String("port", port.String()))
	return stop, nil
}
