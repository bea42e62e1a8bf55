package motion

import "fmt"

// Command type markers, hex-encoded as they appear on the wire before the
// timestamp suffix and encryption are applied.
const (
	cmdOpen        = "03020301"
	cmdClose       = "03020302"
	cmdStop        = "03020303"
	cmdOpenTilt    = "03020309"
	cmdCloseTilt   = "0302030a"
	cmdFavorite    = "03020306"
	cmdPercent     = "05020440"
	cmdAngle       = "05020420"
	cmdSpeed       = "0403010a"
	cmdSetKey      = "02c001"
	cmdStatusQuery = "03050f02"
	cmdUserQuery   = "02c005"
	cmdPointSet    = "03050120"
)

// SpeedLevel is the motor speed setting reported in status frames and set
// with SetSpeed.
type SpeedLevel uint8

const (
	// SpeedUnknown marks a speed code this client does not recognize.
	SpeedUnknown SpeedLevel = 0
	SpeedLow     SpeedLevel = 1
	SpeedMedium  SpeedLevel = 2
	SpeedHigh    SpeedLevel = 3
)

func (s SpeedLevel) String() string {
	switch s {
	case SpeedLow:
		return "low"
	case SpeedMedium:
		return "medium"
	case SpeedHigh:
		return "high"
	default:
		return "unknown"
	}
}

// percentCommand renders the move-to-percentage frame: one percentage byte
// followed by a padding byte.
func percentCommand(percentage int) string {
	return fmt.Sprintf("%s%02x00", cmdPercent, percentage)
}

// angleCommand renders the tilt frame: a padding byte followed by the target
// angle in degrees (0-180).
func angleCommand(angle int) string {
	return fmt.Sprintf("%s00%02x", cmdAngle, angle)
}

// speedCommand renders the speed-level frame.
func speedCommand(level SpeedLevel) string {
	return fmt.Sprintf("%s%02x", cmdSpeed, uint8(level))
}
