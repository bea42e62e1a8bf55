package motion

import (
	"encoding/hex"
	"math"
	"strings"
)

// Notification type markers. The running marker extends the position marker,
// so Decode must match it first.
const (
	notifyPosition = "07040402"
	notifyRunning  = "070404021e"
	notifyReady    = "0201c0"
	notifyStatus   = "12040f02"
)

const runningOpening = 0x01

// EndPositionInfo reports which travel limits and presets the motor has
// calibrated. It is replaced wholesale by each position or status frame;
// a nil *EndPositionInfo means no frame has been received yet.
type EndPositionInfo struct {
	Up       bool // top end-stop calibrated
	Down     bool // bottom end-stop calibrated
	Favorite bool // favorite position programmed
}

func newEndPositionInfo(flags byte, favorite uint16) EndPositionInfo {
	return EndPositionInfo{
		Up:       flags&0x08 != 0,
		Down:     flags&0x04 != 0,
		Favorite: favorite != 0,
	}
}

// Event is a decoded notification. Concrete types are PositionEvent,
// RunningEvent, and StatusEvent.
type Event interface {
	event()
}

// PositionEvent reports the blind's position after a movement.
type PositionEvent struct {
	Position     int // 0-100, percentage closed
	Tilt         int // 0-100, tilt angle scaled from 0-180 degrees
	EndPositions EndPositionInfo
}

// RunningEvent reports the direction of an in-progress movement.
type RunningEvent struct {
	Opening bool
}

// StatusEvent reports the full motor state in response to a status query.
type StatusEvent struct {
	Position     int
	Tilt         int
	Battery      int // 0-100
	Speed        SpeedLevel
	EndPositions EndPositionInfo
}

func (PositionEvent) event() {}
func (RunningEvent) event()  {}
func (StatusEvent) event()   {}

// tiltPercentage converts a tilt angle in degrees (0-180) to a percentage.
func tiltPercentage(angle byte) int {
	return int(math.Round(100 * float64(angle) / 180))
}

// Decode parses a decrypted notification frame into an event. It returns
// false for frame types this client does not model; unrecognized frames are
// expected from newer firmware and are not an error.
func Decode(frame []byte) (Event, bool) {
	msg := hex.EncodeToString(frame)
	switch {
	case strings.HasPrefix(msg, notifyRunning):
		if len(frame) < 6 {
			return nil, false
		}
		return RunningEvent{Opening: frame[5] == runningOpening}, true

	case strings.HasPrefix(msg, notifyPosition):
		if len(frame) < 8 {
			return nil, false
		}
		return PositionEvent{
			Position:     int(frame[6]),
			Tilt:         tiltPercentage(frame[7]),
			EndPositions: newEndPositionInfo(frame[4], favoriteField(frame)),
		}, true

	case strings.HasPrefix(msg, notifyStatus):
		if len(frame) < 18 {
			return nil, false
		}
		return StatusEvent{
			Position:     int(frame[6]),
			Tilt:         tiltPercentage(frame[7]),
			Battery:      int(frame[17]),
			Speed:        speedLevel(frame[12]),
			EndPositions: newEndPositionInfo(frame[4], favoriteField(frame)),
		}, true

	case strings.HasPrefix(msg, notifyReady):
		// Sent after the set-key handshake; carries no state we track.
		return nil, false

	default:
		return nil, false
	}
}

// favoriteField reads the 16-bit favorite marker at offsets 6-7.
func favoriteField(frame []byte) uint16 {
	return uint16(frame[6])<<8 | uint16(frame[7])
}

// speedLevel maps a wire code to a SpeedLevel, keeping unknown codes as
// SpeedUnknown rather than failing the whole frame.
func speedLevel(code byte) SpeedLevel {
	switch SpeedLevel(code) {
	case SpeedLow, SpeedMedium, SpeedHigh:
		return SpeedLevel(code)
	default:
		return SpeedUnknown
	}
}
