package midiwindows

import "time"

// sysExStart opens a system exclusive message.
const sysExStart = 0xF0

// shortMessage packs payload into the DWORD midiOutShortMsg takes, status
// byte lowest. It reports false when the payload needs midiOutLongMsg:
// anything over three bytes, and system exclusive of any length.
func shortMessage(payload []byte) (uint32, bool) {
	if len(payload) == 0 || len(payload) > 3 || payload[0] == sysExStart {
		return 0, false
	}
	var msg uint32
	for i, b := range payload {
		msg |= uint32(b) << (8 * i)
	}
	return msg, true
}

// longMessageTimeout bounds the wait for a long message to leave the
// device: its wire time at 31250 baud (320µs per byte) plus slack.
func longMessageTimeout(n int) time.Duration {
	return time.Duration(n)*320*time.Microsecond + 100*time.Millisecond
}
