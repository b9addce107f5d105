package clock

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/leandrodaf/midiclock/sdk/contracts"
)

// Defaults applied when the configuration leaves them unset.
const (
	DefaultPPQ = 96
	DefaultBPM = 120
)

var microsPerMinute = big.NewRat(60_000_000, 1)

// Tempo is a clock resolution and a rate.
type Tempo struct {
	PPQ int
	BPM *big.Rat
}

// NewTempo validates ppq and bpm.
func NewTempo(ppq int, bpm *big.Rat) (Tempo, error) {
	if ppq <= 0 {
		return Tempo{}, fmt.Errorf("%w: ppq must be positive, got %d", contracts.ErrQueueConfiguration, ppq)
	}
	if bpm == nil || bpm.Sign() <= 0 {
		return Tempo{}, fmt.Errorf("%w: bpm must be positive", contracts.ErrQueueConfiguration)
	}
	return Tempo{PPQ: ppq, BPM: new(big.Rat).Set(bpm)}, nil
}

// PulseDuration returns the exact length of one pulse in microseconds:
// 60,000,000 / (ppq × bpm).
func (t Tempo) PulseDuration() *big.Rat {
	d := new(big.Rat).Mul(big.NewRat(int64(t.PPQ), 1), t.BPM)
	return d.Quo(microsPerMinute, d)
}

// PulseDurationMicros is PulseDuration rounded half-up to whole microseconds.
func (t Tempo) PulseDurationMicros() uint64 {
	return roundRat(t.PulseDuration())
}

// PulseInterval is PulseDuration as a time.Duration, rounded to the nanosecond.
func (t Tempo) PulseInterval() time.Duration {
	ns := new(big.Rat).Mul(t.PulseDuration(), big.NewRat(1000, 1))
	return time.Duration(roundRat(ns))
}

func (t Tempo) String() string {
	return fmt.Sprintf("%d ppq @ %s bpm", t.PPQ, t.BPM.FloatString(2))
}

func roundRat(r *big.Rat) uint64 {
	// floor((2n + d) / 2d)
	num := new(big.Int).Lsh(r.Num(), 1)
	num.Add(num, r.Denom())
	den := new(big.Int).Lsh(r.Denom(), 1)
	return new(big.Int).Quo(num, den).Uint64()
}

func floorRat(r *big.Rat) uint64 {
	if r.Sign() <= 0 {
		return 0
	}
	return new(big.Int).Quo(r.Num(), r.Denom()).Uint64()
}

// Tempo and resolution travel over system-common and controller messages as
// single 7-bit data bytes: bpm = 30 × 1.01506^data, ppq = 24 × data.
var logTempoStep = math.Log(1.01506)

const (
	minDataBPM = 30
	maxDataBPM = 200
)

// BPMFromData decodes a tempo data byte. Results of 67 bpm and above are
// rounded to an integer, slower tempos to one decimal.
func BPMFromData(data uint8) (*big.Rat, error) {
	if data > 0x7f {
		return nil, fmt.Errorf("tempo data byte %#x out of range", data)
	}
	raw := minDataBPM * math.Exp(logTempoStep*float64(data))
	if raw >= 67 {
		return big.NewRat(int64(math.Round(raw)), 1), nil
	}
	return big.NewRat(int64(math.Round(raw*10)), 10), nil
}

// DataFromBPM encodes bpm as a tempo data byte; 30 to 200 bpm is representable.
func DataFromBPM(bpm *big.Rat) (uint8, error) {
	f, _ := bpm.Float64()
	if f < minDataBPM || f > maxDataBPM {
		return 0, fmt.Errorf("bpm %s outside %d..%d", bpm.FloatString(1), minDataBPM, maxDataBPM)
	}
	return uint8(math.Round(math.Log(f/minDataBPM) / logTempoStep)), nil
}

// PPQFromData decodes a resolution data byte.
func PPQFromData(data uint8) int {
	return int(data) * 24
}

// DataFromPPQ encodes ppq, which must be a positive multiple of 24 that fits a data byte.
func DataFromPPQ(ppq int) (uint8, error) {
	if ppq <= 0 || ppq%24 != 0 || ppq/24 > 0x7f {
		return 0, fmt.Errorf("%w: ppq %d is not encodable", contracts.ErrQueueConfiguration, ppq)
	}
	return uint8(ppq / 24), nil
}
