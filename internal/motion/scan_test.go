package motion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanForBlindsFiltersByName(t *testing.T) {
	adapter := newMockAdapter()
	adapter.results = []ScanResult{
		{Name: "MOTION_EEFF", Address: "AA:BB:CC:DD:EE:FF", RSSI: -50},
		{Name: "SomeOtherDevice", Address: "11:22:33:44:55:66", RSSI: -60},
		{Name: "motion_0102", Address: "AA:BB:CC:DD:01:02", RSSI: -70},
	}

	blinds, err := ScanForBlinds(adapter, time.Second)
	require.NoError(t, err)
	require.Len(t, blinds, 2)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", blinds[0].Address)
	assert.Equal(t, "AA:BB:CC:DD:01:02", blinds[1].Address)
}

func TestScanForBlindsEmpty(t *testing.T) {
	blinds, err := ScanForBlinds(newMockAdapter(), time.Second)
	require.NoError(t, err)
	assert.Empty(t, blinds)
}
