// Package motion provides the BLE client for Motion-family motorized blinds.
// It handles connection management, command encryption, and decoding of the
// position/status notifications the motor sends back.
package motion

import (
	"context"
	"errors"
)

// Motion BLE UUIDs
const (
	ServiceUUID          = "d973f2e0-b19e-11e2-9e96-0800200c9a66"
	CommandCharUUID      = "d973f2e2-b19e-11e2-9e96-0800200c9a66"
	NotificationCharUUID = "d973f2e1-b19e-11e2-9e96-0800200c9a66"
)

// Connection errors surfaced by Adapter.Connect. Implementations wrap these
// so callers can distinguish a missing device from radio congestion.
var (
	// ErrNotFound means the peripheral could not be located at its address.
	ErrNotFound = errors.New("motion: device not found")
	// ErrNoSlots means the adapter has no free connection slots; the caller
	// decides whether to retry.
	ErrNoSlots = errors.New("motion: out of connection slots")
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic, requesting delivery
	// acknowledgement where the platform stack supports it. A returned error
	// is transient: the caller decides whether to retry.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// ScanResult represents a discovered BLE peripheral.
type ScanResult struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// IsConnected reports whether the link is still up.
	IsConnected() bool
	// OnDisconnect registers a callback invoked when the peer drops the
	// connection without us asking for it.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals advertising the given service UUID.
	// Returns discovered devices until ctx is cancelled or timeout.
	Scan(ctx context.Context, serviceUUID string) ([]ScanResult, error)
	// Connect establishes a connection to the device at the given address.
	// Failures wrap ErrNotFound or ErrNoSlots where the cause is known;
	// anything else is treated as transient.
	Connect(ctx context.Context, address string) (Connection, error)
}
