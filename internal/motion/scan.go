package motion

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ScanForBlinds scans for peripherals advertising the Motion control service.
// Blinds advertise a local name of the form MOTION_XXXX, where XXXX is the
// tail of the MAC address; other advertisers of the service are filtered out.
func ScanForBlinds(adapter Adapter, timeout time.Duration) ([]ScanResult, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("motion: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	results, err := adapter.Scan(ctx, ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("motion: scan: %w", err)
	}

	blinds := results[:0]
	for _, r := range results {
		if strings.HasPrefix(strings.ToUpper(r.Name), "MOTION_") {
			blinds = append(blinds, r)
		}
	}
	return blinds, nil
}
