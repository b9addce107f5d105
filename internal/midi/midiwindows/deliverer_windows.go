//go:build windows
// +build windows

package midiwindows

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/leandrodaf/midiclock/sdk/contracts"
	"go.uber.org/multierr"
	"golang.org/x/sys/windows"
)

// Type definitions for MIDI handles
type HMIDIOUT windows.Handle

// Constants for callback flags
const (
	CALLBACK_NULL = 0x00000000 // No callback; output is fire-and-forget
)

// MHDR_DONE is set in midiHdr.dwFlags once the driver has sent the buffer.
const MHDR_DONE = 0x00000001

// midiHdr mirrors MIDIHDR, the buffer header for midiOutLongMsg.
type midiHdr struct {
	lpData          *byte
	dwBufferLength  uint32
	dwBytesRecorded uint32
	dwUser          uintptr
	dwFlags         uint32
	lpNext          uintptr
	reserved        uintptr
	dwOffset        uint32
	dwReserved      [8]uintptr
}

// Struct representing MIDI output device capabilities
type midiOutCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	wTechnology    uint16
	wVoices        uint16
	wNotes         uint16
	wChannelMask   uint16
	dwSupport      uint32
}

var (
	ErrNoMIDIDevices   = errors.New("no MIDI output devices found")
	ErrLongMsgTimeout  = errors.New("timed out waiting for long MIDI message")
	ErrOpenMIDIDevice  = errors.New("failed to open MIDI output device")
	ErrMIDIDeliveryErr = errors.New("failed to send MIDI message")
)

// Load the winmm.dll library and required functions
var (
	winmm                 = windows.NewLazySystemDLL("winmm.dll")
	procMidiOutGetNumDevs = winmm.NewProc("midiOutGetNumDevs")
	procMidiOutGetDevCaps = winmm.NewProc("midiOutGetDevCapsW")
	procMidiOutOpen       = winmm.NewProc("midiOutOpen")
	procMidiOutShortMsg   = winmm.NewProc("midiOutShortMsg")
	procMidiOutPrepare    = winmm.NewProc("midiOutPrepareHeader")
	procMidiOutLongMsg    = winmm.NewProc("midiOutLongMsg")
	procMidiOutUnprepare  = winmm.NewProc("midiOutUnprepareHeader")
	procMidiOutReset      = winmm.NewProc("midiOutReset")
	procMidiOutClose      = winmm.NewProc("midiOutClose")
)

// Deliverer sends resolved events through winmm output devices. The Port
// field of a destination address is the device ID; Client is ignored.
// Devices are opened on first use and kept open until Close.
type Deliverer struct {
	logger  contracts.Logger
	mu      sync.Mutex
	handles map[uint8]HMIDIOUT
}

// NewDeliverer creates a winmm deliverer for Windows
func NewDeliverer(options *contracts.EngineOptions) (contracts.Deliverer, error) {
	options.Logger.Info("MIDI deliverer created for Windows")
	return &Deliverer{
		logger:  options.Logger,
		handles: make(map[uint8]HMIDIOUT),
	}, nil
}

// Destinations lists the output device names in device ID order
func (d *Deliverer) Destinations() ([]string, error) {
	r0, _, _ := procMidiOutGetNumDevs.Call()
	numDevices := uint32(r0)
	if numDevices == 0 {
		d.logger.Warn("No MIDI output devices found")
		return nil, ErrNoMIDIDevices
	}

	names := make([]string, numDevices)
	for i := uint32(0); i < numDevices; i++ {
		var caps midiOutCaps
		r1, _, _ := procMidiOutGetDevCaps.Call(
			uintptr(i),
			uintptr(unsafe.Pointer(&caps)),
			unsafe.Sizeof(caps),
		)
		if r1 != 0 {
			d.logger.Warn(fmt.Sprintf("Failed to get information for MIDI device %d", i))
			continue
		}
		names[i] = windows.UTF16ToString(caps.szPname[:])
	}
	return names, nil
}

// Deliver sends payload as one short message when it fits, and through
// midiOutLongMsg otherwise, waiting until the driver is done with the buffer.
func (d *Deliverer) Deliver(_, dst contracts.Address, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	handle, err := d.open(dst.Port)
	if err != nil {
		return err
	}

	if msg, ok := shortMessage(payload); ok {
		r1, _, callErr := procMidiOutShortMsg.Call(uintptr(handle), uintptr(msg))
		if r1 != 0 {
			return fmt.Errorf("%w: device %d: %v", ErrMIDIDeliveryErr, dst.Port, callErr)
		}
		return nil
	}
	return d.sendLong(handle, dst.Port, payload)
}

func (d *Deliverer) sendLong(handle HMIDIOUT, deviceID uint8, payload []byte) error {
	buf := append([]byte(nil), payload...)
	hdr := &midiHdr{lpData: &buf[0], dwBufferLength: uint32(len(buf))}
	size := unsafe.Sizeof(*hdr)
	defer runtime.KeepAlive(buf)

	if r1, _, err := procMidiOutPrepare.Call(uintptr(handle), uintptr(unsafe.Pointer(hdr)), size); r1 != 0 {
		return fmt.Errorf("%w: device %d: prepare: %v", ErrMIDIDeliveryErr, deviceID, err)
	}
	if r1, _, err := procMidiOutLongMsg.Call(uintptr(handle), uintptr(unsafe.Pointer(hdr)), size); r1 != 0 {
		procMidiOutUnprepare.Call(uintptr(handle), uintptr(unsafe.Pointer(hdr)), size)
		return fmt.Errorf("%w: device %d: %v", ErrMIDIDeliveryErr, deviceID, err)
	}

	var errs error
	deadline := time.Now().Add(longMessageTimeout(len(buf)))
	for atomic.LoadUint32(&hdr.dwFlags)&MHDR_DONE == 0 {
		if time.Now().After(deadline) {
			// reset returns the buffer so it can be unprepared
			procMidiOutReset.Call(uintptr(handle))
			errs = fmt.Errorf("%w: device %d: %d bytes", ErrLongMsgTimeout, deviceID, len(buf))
			break
		}
		time.Sleep(time.Millisecond)
	}
	if r1, _, err := procMidiOutUnprepare.Call(uintptr(handle), uintptr(unsafe.Pointer(hdr)), size); r1 != 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: device %d: unprepare: %v", ErrMIDIDeliveryErr, deviceID, err))
	}
	runtime.KeepAlive(hdr)
	return errs
}

func (d *Deliverer) open(deviceID uint8) (HMIDIOUT, error) {
	if h, ok := d.handles[deviceID]; ok {
		return h, nil
	}
	var h HMIDIOUT
	r1, _, err := procMidiOutOpen.Call(
		uintptr(unsafe.Pointer(&h)),
		uintptr(deviceID),
		0,
		0,
		uintptr(CALLBACK_NULL),
	)
	if r1 != 0 {
		d.logger.Error(fmt.Sprintf("Failed to open MIDI device %d: %v", deviceID, err))
		return 0, fmt.Errorf("%w %d: %v", ErrOpenMIDIDevice, deviceID, err)
	}
	d.handles[deviceID] = h
	d.logger.Info(fmt.Sprintf("MIDI device %d opened", deviceID))
	return h, nil
}

// Close resets and closes every device opened by Deliver
func (d *Deliverer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs error
	for id, h := range d.handles {
		procMidiOutReset.Call(uintptr(h))
		if r1, _, err := procMidiOutClose.Call(uintptr(h)); r1 != 0 {
			d.logger.Error(fmt.Sprintf("Failed to close MIDI device %d: %v", id, err))
			errs = multierr.Append(errs, fmt.Errorf("close device %d: %v", id, err))
		}
		delete(d.handles, id)
	}
	return errs
}
