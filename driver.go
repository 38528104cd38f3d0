// Package fpsensor provides the host-side driver for an optical
// fingerprint sensor module: a serial wire protocol, a command
// dispatcher, multi-step enrollment/verification procedures, and a
// GPIO-driven finger-presence pipeline, assembled behind a single
// Driver type the way the teacher's ublk.Device assembles a
// controller and queue runners behind CreateAndServe.
package fpsensor

import (
	"context"
	"fmt"
	"time"

	"github.com/alvinjay/fpsensor/internal/events"
	"github.com/alvinjay/fpsensor/internal/ferrors"
	"github.com/alvinjay/fpsensor/internal/logging"
	"github.com/alvinjay/fpsensor/internal/metrics"
	"github.com/alvinjay/fpsensor/internal/orchestrator"
	"github.com/alvinjay/fpsensor/internal/presence"
	"github.com/alvinjay/fpsensor/internal/protocol"
	"github.com/alvinjay/fpsensor/internal/transport"
)

// GPIOLine names one line on a gpiochip character device (e.g.
// "/dev/gpiochip0", offset 17).
type GPIOLine struct {
	Chip   string
	Offset uint32
}

// Config mirrors the original init(tx_pin, rx_pin, baud, int_pin,
// power_pin) signature: on a host running Linux, the tx/rx pin pair is
// a UART device node rather than bare MCU pin numbers, so SerialPath
// stands in for it. IntLine and PowerLine are gpiochip line
// descriptors for the finger-detect interrupt and the sensor's
// power-enable pin; either may be left nil, in which case presence
// detection falls back to polling and Power becomes a command-only
// operation.
type Config struct {
	SerialPath string
	Baud       int
	Address    uint32
	IntLine    *GPIOLine
	PowerLine  *GPIOLine
	Logger     *logging.Logger
}

// DefaultConfig returns 57600 baud 8-N-1 against serialPath, addressed
// to the sensor's default broadcast address, with no GPIO lines
// configured.
func DefaultConfig(serialPath string) Config {
	return Config{
		SerialPath: serialPath,
		Baud:       transport.DefaultBaud,
		Address:    protocol.DefaultAddress,
	}
}

// Driver is the host-side handle on one fingerprint sensor. It
// assembles a transport.Session (C3), an orchestrator.Orchestrator
// (C5), and a presence.Watcher (C6) around a single Port, and exposes
// the blocking, timeout-bounded operations of §6.
type Driver struct {
	cfg Config

	port    transport.Port
	session *transport.Session
	orch    *orchestrator.Orchestrator
	watcher *presence.Watcher
	edges   *presence.GPIOEdgeSource
	power   *gpioOutput

	bus     *events.Bus
	logger  *logging.Logger
	metrics *metrics.Metrics

	cancel context.CancelFunc
}

// New assembles a Driver without opening any hardware; call Init to
// bring the transport and presence pipeline up.
func New(cfg Config) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Address == 0 {
		cfg.Address = protocol.DefaultAddress
	}
	if cfg.Baud == 0 {
		cfg.Baud = transport.DefaultBaud
	}
	return &Driver{
		cfg:     cfg,
		bus:     events.New(),
		logger:  cfg.Logger,
		metrics: metrics.New(),
	}
}

// NewWithPort assembles a Driver directly over an already-open Port
// (a MockPort in tests, or the CLI's -mock mode), skipping serial and
// GPIO hardware setup entirely.
func NewWithPort(port transport.Port, address uint32, logger *logging.Logger) *Driver {
	if logger == nil {
		logger = logging.Default()
	}
	if address == 0 {
		address = protocol.DefaultAddress
	}
	return &Driver{
		cfg:     Config{Address: address, Logger: logger},
		port:    port,
		bus:     events.New(),
		logger:  logger,
		metrics: metrics.New(),
	}
}

// Init opens the configured serial port (unless one was already
// supplied via NewWithPort) and the optional GPIO power/interrupt
// lines, then starts the transport, orchestrator, and presence
// goroutines. ctx bounds the lifetime of all three; cancel it (or call
// Close) to tear them down.
func (d *Driver) Init(ctx context.Context) error {
	if d.port == nil {
		port, err := transport.OpenSerial(d.cfg.SerialPath, d.cfg.Baud)
		if err != nil {
			return ferrors.Wrap("Driver.Init", err)
		}
		d.port = port
	}

	if d.cfg.PowerLine != nil {
		out, err := openGPIOOutput(d.cfg.PowerLine.Chip, d.cfg.PowerLine.Offset, true)
		if err != nil {
			return ferrors.Wrap("Driver.Init", err)
		}
		d.power = out
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.session = transport.NewSession(d.port, d.cfg.Address, d.bus, d.logger, d.metrics)
	d.session.Start(runCtx)

	d.orch = orchestrator.New(d.session, d.logger, d.metrics)

	var edgeSrc presence.EdgeSource
	if d.cfg.IntLine != nil {
		src, err := presence.OpenGPIOEdgeSource(d.cfg.IntLine.Chip, d.cfg.IntLine.Offset, d.logger)
		if err != nil {
			d.logger.Warn("fpsensor: GPIO edge source unavailable, falling back to polling", "err", err)
		} else {
			d.edges = src
			edgeSrc = src
		}
	}
	d.watcher = presence.New(edgeSrc, d.session, d.orch, d.bus, d.logger, d.metrics, d.cfg.Address)
	d.orch.SetPresenceGate(d.watcher)
	d.watcher.Start(runCtx)

	d.logger.Info("fpsensor: driver initialized", "serial", d.cfg.SerialPath, "address", fmt.Sprintf("0x%08X", d.cfg.Address))
	return nil
}

// Close stops the presence watcher and transport session and releases
// any GPIO resources.
func (d *Driver) Close() error {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}
	var firstErr error
	if d.edges != nil {
		if err := d.edges.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.power != nil {
		if err := d.power.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.session != nil {
		if err := d.session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetEventHandler registers fn as the sole recipient of driver events
// (finger detected, match found, template uploaded, errors, ...). A
// second call replaces the previous handler.
func (d *Driver) SetEventHandler(fn func(events.Event)) {
	d.bus.Register(fn)
}

// SetOperationMode switches which capture buffer and follow-up command
// the presence pipeline uses for its next detection cycle.
func (d *Driver) SetOperationMode(mode orchestrator.Mode) {
	d.orch.SetMode(mode)
}

// Enroll runs the 8-step enrollment procedure at location.
func (d *Driver) Enroll(location uint16) error {
	return d.orch.Enroll(location)
}

// Verify waits for a finger and searches the database for a match.
func (d *Driver) Verify() (orchestrator.VerifyResult, error) {
	return d.orch.Verify()
}

// Delete removes the template at location.
func (d *Driver) Delete(location uint16) error {
	return d.orch.Delete(location)
}

// ClearDatabase empties the entire template database.
func (d *Driver) ClearDatabase() error {
	return d.orch.Clear()
}

// Count reports the number of stored templates.
func (d *Driver) Count() (int, error) {
	return d.orch.Count()
}

// ReadSystemParameters reads the sensor's system-parameter block.
func (d *Driver) ReadSystemParameters() (events.SysParams, error) {
	return d.orch.ReadSystemParameters()
}

// ReadInfoPage reads the sensor's information page.
func (d *Driver) ReadInfoPage() ([]byte, error) {
	return d.orch.ReadInfoPage()
}

// Backup uploads the template stored at id.
func (d *Driver) Backup(id uint16) (*events.TemplatePayload, error) {
	return d.orch.Backup(id)
}

// Restore downloads data and persists it as the template at id.
func (d *Driver) Restore(id uint16, data []byte) error {
	return d.orch.Restore(id, data)
}

// CheckExists reports whether a template is present at location.
func (d *Driver) CheckExists(location uint16) (bool, error) {
	return d.orch.CheckExists(location)
}

// WaitForFinger blocks until a finger is detected or timeout elapses.
func (d *Driver) WaitForFinger(timeout time.Duration) error {
	return d.watcher.WaitForFinger(timeout)
}

// Power drives the sensor's power-enable GPIO line, if one was
// configured, additionally issuing the sleep opcode before powering
// off so the module shuts down cleanly rather than being cut abruptly.
func (d *Driver) Power(on bool) error {
	if !on {
		if err := d.orch.Sleep(); err != nil {
			d.logger.Warn("fpsensor: sleep command failed before power-off", "err", err)
		}
	}
	if d.power == nil {
		return nil
	}
	return d.power.Set(on)
}

// Sleep issues the sensor's low-power opcode without touching the
// power-enable GPIO line.
func (d *Driver) Sleep() error {
	return d.orch.Sleep()
}

// SetPassword sets the sensor's handshake password.
func (d *Driver) SetPassword(password uint32) error {
	return d.orch.SetPassword(password)
}

// VerifyPassword checks password against the sensor's configured one.
func (d *Driver) VerifyPassword(password uint32) error {
	return d.orch.VerifyPassword(password)
}

// SetChipAddress reassigns the sensor's module address.
func (d *Driver) SetChipAddress(address uint32) error {
	return d.orch.SetChipAddress(address)
}

// WriteNotepad writes up to 32 bytes to the given notepad page.
func (d *Driver) WriteNotepad(page byte, data []byte) error {
	return d.orch.WriteNotepad(page, data)
}

// ReadNotepad reads the contents of the given notepad page.
func (d *Driver) ReadNotepad(page byte) ([]byte, error) {
	return d.orch.ReadNotepad(page)
}

// RandomCode requests a random value from the sensor's RNG.
func (d *Driver) RandomCode() (uint32, error) {
	return d.orch.RandomCode()
}

// ChipSerialNumber reads the sensor's factory serial number.
func (d *Driver) ChipSerialNumber() ([]byte, error) {
	return d.orch.ChipSerialNumber()
}
