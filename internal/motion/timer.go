package motion

import (
	"log/slog"
	"time"
)

// RefreshDisconnectTimer extends the idle window before the device is
// auto-disconnected. A timeout of zero uses the configured disconnect time.
// An armed timer is never moved earlier unless force is true, so a
// long-lived window granted to one caller is not cut short by another.
func (d *Device) RefreshDisconnectTimer(timeout time.Duration, force bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshDisconnectTimerLocked(timeout, force)
}

func (d *Device) refreshDisconnectTimerLocked(timeout time.Duration, force bool) {
	if timeout <= 0 {
		timeout = d.opts.DisconnectTime
	}

	deadline := time.Now().Add(timeout)
	if !force && d.timerCancel != nil && d.deadline.After(deadline) {
		return
	}

	d.cancelDisconnectTimerLocked()
	d.deadline = deadline
	slog.Debug("[motion] disconnect timer refreshed", "address", d.address, "timeout", timeout)
	d.timerCancel = d.sched.CallLater(timeout, func() {
		slog.Info("[motion] idle timeout, disconnecting", "address", d.address)
		if err := d.Disconnect(); err != nil {
			slog.Warn("[motion] idle disconnect failed", "address", d.address, "error", err)
		}
	})
}

// cancelDisconnectTimerLocked stops the armed timer, if any. Idempotent.
func (d *Device) cancelDisconnectTimerLocked() {
	if d.timerCancel != nil {
		d.timerCancel()
		d.timerCancel = nil
	}
}
