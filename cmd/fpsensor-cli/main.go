// Command fpsensor-cli drives a single fingerprint sensor from the
// command line: enroll a finger at a location, verify whatever finger
// is on the sensor next, or just watch and log events as they happen.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alvinjay/fpsensor"
	"github.com/alvinjay/fpsensor/internal/events"
	"github.com/alvinjay/fpsensor/internal/logging"
	"github.com/alvinjay/fpsensor/internal/protocol"
	"github.com/alvinjay/fpsensor/internal/transport"
)

func main() {
	var (
		portPath  = flag.String("port", "/dev/ttyUSB0", "Serial port device path")
		baud      = flag.Int("baud", fpsensor.DefaultBaud, "UART baud rate")
		intChip   = flag.String("int-chip", "", "gpiochip device for the finger-detect interrupt line (e.g. /dev/gpiochip0)")
		intOffset = flag.Uint("int-offset", 0, "Line offset on -int-chip for the finger-detect interrupt")
		pwrChip   = flag.String("power-chip", "", "gpiochip device for the sensor power-enable line")
		pwrOffset = flag.Uint("power-offset", 0, "Line offset on -power-chip for the power-enable line")
		mock      = flag.Bool("mock", false, "Run against an in-memory mock sensor instead of real hardware")
		location  = flag.Uint("location", 1, "Template location for -cmd enroll/delete")
		cmd       = flag.String("cmd", "watch", "Operation to run: enroll, verify, delete, count, watch")
		verbose   = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	var driver *fpsensor.Driver
	if *mock {
		port := fpsensor.NewMockPort()
		driver = fpsensor.NewWithPort(port, fpsensor.DefaultAddress, logger)
		go scriptMockSensor(port, *cmd)
	} else {
		cfg := fpsensor.DefaultConfig(*portPath)
		cfg.Baud = *baud
		cfg.Logger = logger
		if *intChip != "" {
			cfg.IntLine = &fpsensor.GPIOLine{Chip: *intChip, Offset: uint32(*intOffset)}
		}
		if *pwrChip != "" {
			cfg.PowerLine = &fpsensor.GPIOLine{Chip: *pwrChip, Offset: uint32(*pwrOffset)}
		}
		driver = fpsensor.New(cfg)
	}

	driver.SetEventHandler(func(ev events.Event) {
		logger.Info("fpsensor: event", "type", ev.Type.String())
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := driver.Init(ctx); err != nil {
		log.Fatalf("init failed: %v", err)
	}
	defer func() {
		logger.Info("fpsensor: closing driver")
		if err := driver.Close(); err != nil {
			logger.Error("fpsensor: close failed", "err", err)
		}
	}()

	if err := runCommand(driver, *cmd, uint16(*location)); err != nil {
		logger.Error("fpsensor: command failed", "cmd", *cmd, "err", err)
		os.Exit(1)
	}

	if *cmd != "watch" {
		return
	}

	fmt.Println("Watching for events. Press Ctrl+C to stop.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("fpsensor: received shutdown signal")
}

// runCommand executes the one-shot operation named by name against
// driver, printing whatever result the sensor returns. "watch" does
// nothing here; the event handler registered in main does the work.
func runCommand(driver *fpsensor.Driver, name string, location uint16) error {
	switch name {
	case "enroll":
		fmt.Printf("Place finger on sensor to enroll at location %d...\n", location)
		if err := driver.Enroll(location); err != nil {
			return err
		}
		fmt.Println("Enrolled.")
	case "verify":
		fmt.Println("Place finger on sensor to verify...")
		result, err := driver.Verify()
		if err != nil {
			if fpsensor.IsCode(err, fpsensor.CodeNotFound) {
				fmt.Println("No match.")
				return nil
			}
			return err
		}
		fmt.Printf("Match: page=%d score=%d\n", result.PageID, result.Score)
	case "delete":
		if err := driver.Delete(location); err != nil {
			return err
		}
		fmt.Printf("Deleted location %d.\n", location)
	case "count":
		n, err := driver.Count()
		if err != nil {
			return err
		}
		fmt.Printf("Template count: %d\n", n)
	case "watch":
		// Handled by the caller's event handler and signal wait.
	default:
		return fmt.Errorf("unknown -cmd %q", name)
	}
	return nil
}

// scriptMockSensor feeds a plausible ACK for whatever one-shot command
// -mock was asked to run, so -mock works without a human pressing a
// finger on anything. Replies are queued in the order the orchestrator
// issues its commands, one every 30 ms; the session drops a reply that
// arrives while no command is in flight, so a reply fed before its
// command is sent is lost.
func scriptMockSensor(port *transport.MockPort, cmd string) {
	time.Sleep(50 * time.Millisecond)
	step := func(status protocol.Status, params []byte) {
		fpsensor.FeedAck(port, status, params)
		time.Sleep(30 * time.Millisecond)
	}
	switch cmd {
	case "enroll":
		step(protocol.StatusOK, make([]byte, 32)) // read-index-table: slot free
		step(protocol.StatusOK, nil)               // get-image: first capture
		step(protocol.StatusOK, nil)               // gen-char buffer 1
		step(protocol.StatusNoFinger, nil)         // get-image: finger lifted
		step(protocol.StatusNoFinger, nil)
		step(protocol.StatusOK, nil) // get-image: second capture
		step(protocol.StatusOK, nil) // gen-char buffer 2
		step(protocol.StatusOK, nil) // reg-model
		step(protocol.StatusOK, []byte{0x00, 0x00, 0x00, 0x00}) // search: no duplicate
		step(protocol.StatusOK, nil)                            // store-char
	case "verify":
		step(protocol.StatusOK, nil)                            // get-image
		step(protocol.StatusOK, []byte{0x00, 0x01, 0x00, 0x64}) // search: page 1, score 100
	case "delete":
		step(protocol.StatusOK, nil)
	case "count":
		step(protocol.StatusOK, []byte{0x00, 0x00})
	case "watch":
		step(protocol.StatusOK, nil)
	}
}
