// Command blindctl drives a Motion blind from the command line.
//
// Usage:
//
//	blindctl [-config path] scan
//	blindctl [-config path] [-force] open|close|stop|favorite|status|watch
//	blindctl [-config path] [-force] percent 40
//	blindctl [-config path] [-force] tilt 50
//	blindctl [-config path] speed low|medium|high
//
// -force bypasses the end-position calibration check.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/chaz8081/motionble/internal/config"
	"github.com/chaz8081/motionble/internal/motion"
	"github.com/chaz8081/motionble/internal/motion/crypt"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "config file path")
	force := flag.Bool("force", false, "bypass the end-position calibration check")
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	adapter := motion.NewBluetoothAdapter()

	if flag.Arg(0) == "scan" {
		runScan(adapter)
		return
	}

	loc, err := cfg.Location()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	dev := motion.NewDevice(adapter, crypt.New(loc), cfg.Device.Address, motion.Options{
		Name:               cfg.Device.Name,
		DisconnectTime:     time.Duration(cfg.Device.DisconnectTime) * time.Second,
		MaxCommandAttempts: cfg.Device.MaxCommandAttempts,
	})
	defer func() { _ = dev.Disconnect() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := runCommand(ctx, dev, *force, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func runScan(adapter *motion.BluetoothAdapter) {
	fmt.Println("Scanning for blinds (10s)...")
	blinds, err := motion.ScanForBlinds(adapter, 10*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(blinds) == 0 {
		fmt.Println("No blinds found.")
		return
	}
	for _, b := range blinds {
		fmt.Printf("%s  %s  RSSI %d\n", b.Address, b.Name, b.RSSI)
	}
}

func runCommand(ctx context.Context, dev *motion.Device, force bool, args []string) error {
	var (
		ok  bool
		err error
	)

	switch args[0] {
	case "open":
		ok, err = dev.Open(ctx, force)
	case "close":
		ok, err = dev.Close(ctx, force)
	case "stop":
		ok, err = dev.Stop(ctx, force)
	case "favorite":
		ok, err = dev.Favorite(ctx)
	case "status":
		return runStatus(ctx, dev)
	case "watch":
		return runWatch(ctx, dev)
	case "percent":
		if len(args) < 2 {
			return fmt.Errorf("percent requires a value 0-100")
		}
		pct, perr := strconv.Atoi(args[1])
		if perr != nil {
			return fmt.Errorf("percent: %w", perr)
		}
		ok, err = dev.Percentage(ctx, pct, force)
	case "tilt":
		if len(args) < 2 {
			return fmt.Errorf("tilt requires a value 0-100")
		}
		pct, perr := strconv.Atoi(args[1])
		if perr != nil {
			return fmt.Errorf("tilt: %w", perr)
		}
		ok, err = dev.PercentageTilt(ctx, pct, force)
	case "speed":
		if len(args) < 2 {
			return fmt.Errorf("speed requires low, medium, or high")
		}
		level, perr := parseSpeed(args[1])
		if perr != nil {
			return perr
		}
		ok, err = dev.SetSpeed(ctx, level)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("command %q was superseded or the device is not ready", args[0])
	}
	fmt.Println("OK")
	return nil
}

// runStatus queries the blind and prints the first status report.
func runStatus(ctx context.Context, dev *motion.Device) error {
	statusCh := make(chan motion.StatusEvent, 1)
	dev.OnStatus(func(ev motion.StatusEvent) {
		select {
		case statusCh <- ev:
		default:
		}
	})

	ok, err := dev.StatusQuery(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("device is not ready")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timed out waiting for a status report")
	case ev := <-statusCh:
		printStatus(ev)
		return nil
	}
}

// runWatch keeps the link open and prints every event until interrupted.
func runWatch(ctx context.Context, dev *motion.Device) error {
	dev.OnPosition(func(ev motion.PositionEvent) {
		fmt.Printf("position=%d%% tilt=%d%% up=%t down=%t favorite=%t\n",
			ev.Position, ev.Tilt, ev.EndPositions.Up, ev.EndPositions.Down, ev.EndPositions.Favorite)
	})
	dev.OnStatus(func(ev motion.StatusEvent) {
		printStatus(ev)
	})
	dev.OnConnectionChange(func(s motion.ConnectionState) {
		fmt.Printf("connection=%s\n", s)
	})

	for {
		if _, err := dev.Connect(ctx); err != nil {
			return err
		}
		// Keep the idle timer from dropping the link while watching.
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
			dev.RefreshDisconnectTimer(0, false)
		}
	}
}

func printStatus(ev motion.StatusEvent) {
	fmt.Printf("position=%d%% tilt=%d%% battery=%d%% speed=%s up=%t down=%t favorite=%t\n",
		ev.Position, ev.Tilt, ev.Battery, ev.Speed,
		ev.EndPositions.Up, ev.EndPositions.Down, ev.EndPositions.Favorite)
}

func parseSpeed(s string) (motion.SpeedLevel, error) {
	switch s {
	case "low":
		return motion.SpeedLow, nil
	case "medium":
		return motion.SpeedMedium, nil
	case "high":
		return motion.SpeedHigh, nil
	default:
		return motion.SpeedUnknown, fmt.Errorf("unknown speed %q (want low, medium, or high)", s)
	}
}
