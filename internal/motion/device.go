package motion

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Guard errors. Both are user-correctable: the blind needs calibrating, not
// the command retrying.
var (
	// ErrEndPositionsNotSet means a movement command was refused because the
	// blind's top end-stop has not been calibrated.
	ErrEndPositionsNotSet = errors.New("motion: end positions not set")
	// ErrFavoriteNotSet means the favorite command was refused because no
	// favorite position has been programmed.
	ErrFavoriteNotSet = errors.New("motion: favorite position not set")
)

// ConnectionState is the device's link lifecycle state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// Cipher encrypts and decrypts hex-encoded frames and produces the timestamp
// suffix appended to every command. Implemented by crypt.Crypt.
type Cipher interface {
	Encrypt(plaintextHex string) (string, error)
	Decrypt(ciphertextHex string) (string, error)
	Timestamp() string
}

// Options configures the device behavior.
type Options struct {
	Name               string        // display name, defaults to the address
	DisconnectTime     time.Duration // idle window before auto-disconnect
	MaxCommandAttempts int           // write attempts before the link is declared dead
	NotificationDelay  time.Duration // pause between the init command and the status query
	EmitRunning        bool          // dispatch running events (off by default, firmware semantics unverified)
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		DisconnectTime:     15 * time.Second,
		MaxCommandAttempts: 5,
		NotificationDelay:  500 * time.Millisecond,
	}
}

// connectAttempt is the one in-flight connection attempt concurrent callers
// coalesce onto. ok and err are written before done is closed.
type connectAttempt struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	ok     bool
	err    error
}

// Device drives a single Motion blind. All methods are safe for concurrent
// use. Registered callbacks are invoked synchronously from the notification
// path and must not call back into the Device.
type Device struct {
	adapter Adapter
	cipher  Cipher
	sched   Scheduler
	opts    Options

	callerSeq atomic.Uint64

	mu           sync.Mutex
	address      string
	name         string
	state        ConnectionState
	conn         Connection
	cmdChar      Characteristic
	attempt      *connectAttempt
	lastCaller   uint64
	endPositions *EndPositionInfo
	timerCancel  func()
	deadline     time.Time

	positionCb   func(PositionEvent)
	runningCb    func(RunningEvent)
	statusCb     func(StatusEvent)
	connectionCb func(ConnectionState)
}

// NewDevice creates a device client for the blind at the given address.
func NewDevice(adapter Adapter, cipher Cipher, address string, opts Options) *Device {
	if opts.Name == "" {
		opts.Name = address
	}
	if opts.DisconnectTime <= 0 {
		opts.DisconnectTime = 15 * time.Second
	}
	if opts.MaxCommandAttempts <= 0 {
		opts.MaxCommandAttempts = 5
	}
	return &Device{
		adapter: adapter,
		cipher:  cipher,
		sched:   defaultScheduler{},
		opts:    opts,
		address: address,
		name:    opts.Name,
	}
}

// SetScheduler replaces the default goroutine scheduler, letting a host
// application run the device's timers and background tasks on its own loop.
func (d *Device) SetScheduler(s Scheduler) {
	if s != nil {
		d.sched = s
	}
}

// SetDevice updates the address and name from a scan result, e.g. after the
// blind was rediscovered under a new address.
func (d *Device) SetDevice(dev ScanResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.address = dev.Address
	if dev.Name != "" {
		d.name = dev.Name
	}
}

// State returns the current connection state.
func (d *Device) State() ConnectionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// EndPositions returns the most recently reported calibration info, or nil
// if no position or status frame has been received yet.
func (d *Device) EndPositions() *EndPositionInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.endPositions == nil {
		return nil
	}
	info := *d.endPositions
	return &info
}

// IsConnected reports whether a live link to the blind exists.
func (d *Device) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil && d.conn.IsConnected()
}

// OnPosition registers the position event handler. The last registration
// wins; pass nil to unregister.
func (d *Device) OnPosition(cb func(PositionEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.positionCb = cb
}

// OnRunning registers the running event handler.
func (d *Device) OnRunning(cb func(RunningEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runningCb = cb
}

// OnStatus registers the status event handler.
func (d *Device) OnStatus(cb func(StatusEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statusCb = cb
}

// OnConnectionChange registers the connection state handler.
func (d *Device) OnConnectionChange(cb func(ConnectionState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectionCb = cb
}

// setConnection transitions the state and fires the connection callback.
// Must be called without holding mu.
func (d *Device) setConnection(s ConnectionState) {
	d.mu.Lock()
	d.state = s
	cb := d.connectionCb
	d.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// Connect ensures a live link to the blind, coalescing concurrent callers
// onto one physical attempt: the first caller connects, and only the most
// recent caller gets true, so commands superseded while connecting are not
// executed against a link their issuer no longer wants. Already-connected
// calls refresh the disconnect timer and return true immediately.
//
// ErrNotFound and ErrNoSlots from the transport propagate to every waiting
// caller; a Disconnect issued mid-attempt resolves them all with false.
func (d *Device) Connect(ctx context.Context) (bool, error) {
	d.mu.Lock()
	if d.conn != nil && d.conn.IsConnected() {
		d.refreshDisconnectTimerLocked(d.opts.DisconnectTime, false)
		d.mu.Unlock()
		return true, nil
	}

	token := d.callerSeq.Add(1)
	d.lastCaller = token

	a := d.attempt
	if a == nil {
		// The attempt must outlive any single caller's context: later
		// coalesced callers depend on it finishing.
		actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a = &connectAttempt{ctx: actx, cancel: cancel, done: make(chan struct{})}
		d.attempt = a
		d.sched.Go(func() { d.runConnect(a) })
	} else {
		slog.Debug("[motion] already connecting, waiting", "address", d.address)
	}
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-a.done:
	}

	if a.err != nil {
		return false, a.err
	}
	if !a.ok {
		// Attempt cancelled by an explicit disconnect.
		return false, nil
	}

	d.mu.Lock()
	last := d.lastCaller == token
	d.mu.Unlock()
	return last, nil
}

// runConnect performs the physical connection attempt and resolves every
// coalesced waiter.
func (d *Device) runConnect(a *connectAttempt) {
	d.mu.Lock()
	address := d.address
	d.mu.Unlock()

	d.setConnection(StateConnecting)
	slog.Info("[motion] connecting", "address", address)

	conn, cmdChar, err := d.connectSequence(a.ctx)

	d.mu.Lock()
	if d.attempt == a {
		d.attempt = nil
	}
	cancelled := a.ctx.Err() != nil
	switch {
	case cancelled:
	case err != nil:
		a.err = err
	default:
		d.conn = conn
		d.cmdChar = cmdChar
		a.ok = true
	}
	d.mu.Unlock()

	switch {
	case cancelled:
		slog.Info("[motion] connect cancelled", "address", address)
		if conn != nil {
			_ = conn.Disconnect()
		}
		d.setConnection(StateDisconnected)
	case err != nil:
		slog.Warn("[motion] connect failed", "address", address, "error", err)
		d.setConnection(StateDisconnected)
	default:
		d.setConnection(StateConnected)
		d.RefreshDisconnectTimer(0, false)
		slog.Info("[motion] connected", "address", address)
	}
	close(a.done)
}

// connectSequence brings the link up: connect, subscribe to notifications,
// run the set-key init command, then query status so the first frames arrive
// before the caller's command does.
func (d *Device) connectSequence(ctx context.Context) (Connection, Characteristic, error) {
	if err := d.adapter.Enable(); err != nil {
		return nil, nil, fmt.Errorf("motion: enable adapter: %w", err)
	}

	d.mu.Lock()
	address := d.address
	d.mu.Unlock()

	conn, err := d.adapter.Connect(ctx, address)
	if err != nil {
		return nil, nil, err
	}

	fail := func(err error) (Connection, Characteristic, error) {
		_ = conn.Disconnect()
		return nil, nil, err
	}

	notifyChar, err := conn.DiscoverCharacteristic(ServiceUUID, NotificationCharUUID)
	if err != nil {
		return fail(fmt.Errorf("motion: discover notification characteristic: %w", err))
	}
	if err := notifyChar.Subscribe(d.handleNotification); err != nil {
		return fail(fmt.Errorf("motion: subscribe to notifications: %w", err))
	}

	cmdChar, err := conn.DiscoverCharacteristic(ServiceUUID, CommandCharUUID)
	if err != nil {
		return fail(fmt.Errorf("motion: discover command characteristic: %w", err))
	}

	if err := d.writeFrame(cmdChar, cmdSetKey); err != nil {
		return fail(err)
	}

	// The motor needs a beat after set-key before it answers queries.
	if d.opts.NotificationDelay > 0 {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case <-time.After(d.opts.NotificationDelay):
		}
	}

	if err := d.writeFrame(cmdChar, cmdStatusQuery); err != nil {
		return fail(err)
	}

	conn.OnDisconnect(d.handlePeerDisconnect)
	return conn, cmdChar, nil
}

// Disconnect tears the link down: a connect attempt in flight is cancelled
// (its waiters resolve with false), the disconnect timer is stopped, and any
// live connection is closed. Safe to call when already disconnected.
func (d *Device) Disconnect() error {
	d.setConnection(StateDisconnecting)

	d.mu.Lock()
	a := d.attempt
	d.attempt = nil
	conn := d.conn
	d.conn = nil
	d.cmdChar = nil
	address := d.address
	d.cancelDisconnectTimerLocked()
	d.mu.Unlock()

	if a != nil {
		slog.Info("[motion] cancelling connect", "address", address)
		a.cancel()
	}

	var err error
	if conn != nil {
		slog.Info("[motion] disconnecting", "address", address)
		err = conn.Disconnect()
	}

	d.setConnection(StateDisconnected)
	return err
}

// handlePeerDisconnect runs when the blind drops the connection on its own.
// Not an error: just a state transition.
func (d *Device) handlePeerDisconnect() {
	d.mu.Lock()
	slog.Info("[motion] device disconnected", "address", d.address)
	d.conn = nil
	d.cmdChar = nil
	d.cancelDisconnectTimerLocked()
	d.mu.Unlock()
	d.setConnection(StateDisconnected)
}

// handleNotification decrypts and decodes a notification frame, updates the
// cached end-position info, and dispatches the matching callback.
func (d *Device) handleNotification(data []byte) {
	plaintextHex, err := d.cipher.Decrypt(hex.EncodeToString(data))
	if err != nil {
		slog.Warn("[motion] undecryptable notification", "error", err)
		return
	}
	frame, err := hex.DecodeString(plaintextHex)
	if err != nil {
		return
	}

	ev, ok := Decode(frame)
	if !ok {
		return
	}
	slog.Debug("[motion] notification", "frame", plaintextHex)

	switch ev := ev.(type) {
	case PositionEvent:
		info := ev.EndPositions
		d.mu.Lock()
		d.endPositions = &info
		cb := d.positionCb
		d.mu.Unlock()
		if cb != nil {
			cb(ev)
		}
	case StatusEvent:
		info := ev.EndPositions
		d.mu.Lock()
		d.endPositions = &info
		cb := d.statusCb
		d.mu.Unlock()
		if cb != nil {
			cb(ev)
		}
	case RunningEvent:
		if !d.opts.EmitRunning {
			return
		}
		d.mu.Lock()
		cb := d.runningCb
		d.mu.Unlock()
		if cb != nil {
			cb(ev)
		}
	}
}

// sendCommand dispatches a command frame over the current link. It returns
// (false, nil) when no link exists, which callers prevent by connecting
// first.
func (d *Device) sendCommand(prefix string) (bool, error) {
	d.mu.Lock()
	char := d.cmdChar
	d.mu.Unlock()
	if char == nil {
		return false, nil
	}

	if err := d.writeFrame(char, prefix); err != nil {
		// The peripheral stopped accepting writes; assume the link is
		// unhealthy rather than reporting a silent success.
		_ = d.Disconnect()
		return false, err
	}
	return true, nil
}

// writeFrame encrypts prefix plus a fresh timestamp and writes it to the
// command characteristic, retrying transient failures up to the attempt
// ceiling.
func (d *Device) writeFrame(char Characteristic, prefix string) error {
	var lastErr error
	for attempt := 1; attempt <= d.opts.MaxCommandAttempts; attempt++ {
		// The timestamp is part of the protocol's freshness check, so the
		// frame is rebuilt on every attempt.
		ciphertext, err := d.cipher.Encrypt(prefix + d.cipher.Timestamp())
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(ciphertext)
		if err != nil {
			return fmt.Errorf("motion: decode ciphertext: %w", err)
		}

		if err := char.Write(data); err != nil {
			lastErr = err
			slog.Warn("[motion] write failed", "attempt", attempt, "error", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("motion: command failed after %d attempts: %w", d.opts.MaxCommandAttempts, lastErr)
}

// checkEndPositions gates movement commands on the top end-stop being
// calibrated. Unknown calibration info passes: the blind may simply not have
// reported yet.
func (d *Device) checkEndPositions(ignoreNotSet bool) error {
	d.mu.Lock()
	info := d.endPositions
	name := d.name
	d.mu.Unlock()
	if info != nil && !info.Up && !ignoreNotSet {
		return fmt.Errorf("%w (device %s)", ErrEndPositionsNotSet, name)
	}
	return nil
}

// checkFavorite gates the favorite command on either a calibrated top
// end-stop or a programmed favorite position.
func (d *Device) checkFavorite() error {
	d.mu.Lock()
	info := d.endPositions
	name := d.name
	d.mu.Unlock()
	if info != nil && !info.Up && !info.Favorite {
		return fmt.Errorf("%w (device %s)", ErrFavoriteNotSet, name)
	}
	return nil
}

// guardedSend runs the guard, connects, and sends. Every public command
// funnels through here.
func (d *Device) guardedSend(ctx context.Context, guard func() error, prefix string) (bool, error) {
	if guard != nil {
		if err := guard(); err != nil {
			return false, err
		}
	}
	ok, err := d.Connect(ctx)
	if err != nil || !ok {
		return false, err
	}
	return d.sendCommand(prefix)
}

// Open fully opens the blind. ignoreEndPositions bypasses the calibration
// guard for blinds that are safe to drive without end-stops.
func (d *Device) Open(ctx context.Context, ignoreEndPositions bool) (bool, error) {
	return d.guardedSend(ctx, func() error { return d.checkEndPositions(ignoreEndPositions) }, cmdOpen)
}

// Close fully closes the blind.
func (d *Device) Close(ctx context.Context, ignoreEndPositions bool) (bool, error) {
	return d.guardedSend(ctx, func() error { return d.checkEndPositions(ignoreEndPositions) }, cmdClose)
}

// Stop halts an in-progress movement.
func (d *Device) Stop(ctx context.Context, ignoreEndPositions bool) (bool, error) {
	return d.guardedSend(ctx, func() error { return d.checkEndPositions(ignoreEndPositions) }, cmdStop)
}

// Percentage moves the blind to a position between 0 (open) and 100 (closed).
func (d *Device) Percentage(ctx context.Context, percentage int, ignoreEndPositions bool) (bool, error) {
	if percentage < 0 || percentage > 100 {
		return false, fmt.Errorf("motion: percentage %d out of range 0-100", percentage)
	}
	return d.guardedSend(ctx, func() error { return d.checkEndPositions(ignoreEndPositions) }, percentCommand(percentage))
}

// PercentageTilt tilts the slats to a percentage of their 0-180 degree range.
func (d *Device) PercentageTilt(ctx context.Context, percentage int, ignoreEndPositions bool) (bool, error) {
	if percentage < 0 || percentage > 100 {
		return false, fmt.Errorf("motion: tilt percentage %d out of range 0-100", percentage)
	}
	angle := int(math.Round(180 * float64(percentage) / 100))
	return d.guardedSend(ctx, func() error { return d.checkEndPositions(ignoreEndPositions) }, angleCommand(angle))
}

// OpenTilt tilts the slats fully open.
func (d *Device) OpenTilt(ctx context.Context, ignoreEndPositions bool) (bool, error) {
	return d.guardedSend(ctx, func() error { return d.checkEndPositions(ignoreEndPositions) }, angleCommand(0))
}

// CloseTilt tilts the slats fully closed.
func (d *Device) CloseTilt(ctx context.Context, ignoreEndPositions bool) (bool, error) {
	return d.guardedSend(ctx, func() error { return d.checkEndPositions(ignoreEndPositions) }, angleCommand(180))
}

// Favorite moves the blind to its programmed favorite position.
func (d *Device) Favorite(ctx context.Context) (bool, error) {
	return d.guardedSend(ctx, d.checkFavorite, cmdFavorite)
}

// SetSpeed changes the motor speed level.
func (d *Device) SetSpeed(ctx context.Context, level SpeedLevel) (bool, error) {
	return d.guardedSend(ctx, nil, speedCommand(level))
}

// StatusQuery asks the blind to report position, battery, and speed; the
// answer arrives as a status event.
func (d *Device) StatusQuery(ctx context.Context) (bool, error) {
	return d.guardedSend(ctx, nil, cmdStatusQuery)
}

// UserQuery sends the user query command.
func (d *Device) UserQuery(ctx context.Context) (bool, error) {
	return d.guardedSend(ctx, nil, cmdUserQuery)
}

// PointSetQuery queries the set point, used after calibrating curtain motors.
func (d *Device) PointSetQuery(ctx context.Context) (bool, error) {
	return d.guardedSend(ctx, nil, cmdPointSet)
}
