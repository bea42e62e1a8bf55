package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentCommand(t *testing.T) {
	tests := []struct {
		percentage int
		want       string
	}{
		{0, "050204400000"},
		{40, "050204402800"},
		{100, "050204406400"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, percentCommand(tt.percentage), "percentage %d", tt.percentage)
	}
}

func TestAngleCommand(t *testing.T) {
	tests := []struct {
		angle int
		want  string
	}{
		{0, "050204200000"},
		{90, "05020420005a"},
		{180, "0502042000b4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, angleCommand(tt.angle), "angle %d", tt.angle)
	}
}

func TestSpeedCommand(t *testing.T) {
	assert.Equal(t, "0403010a01", speedCommand(SpeedLow))
	assert.Equal(t, "0403010a02", speedCommand(SpeedMedium))
	assert.Equal(t, "0403010a03", speedCommand(SpeedHigh))
}

func TestSpeedLevelString(t *testing.T) {
	assert.Equal(t, "low", SpeedLow.String())
	assert.Equal(t, "medium", SpeedMedium.String())
	assert.Equal(t, "high", SpeedHigh.String())
	assert.Equal(t, "unknown", SpeedUnknown.String())
	assert.Equal(t, "unknown", SpeedLevel(0x7f).String())
}

func TestConnectionStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnecting", StateDisconnecting.String())
}
