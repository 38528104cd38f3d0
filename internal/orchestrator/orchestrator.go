// Package orchestrator implements the multi-step operation procedures
// (C5): Enroll, Verify, Delete, Clear, Count, Backup, Restore,
// Check-template-exists, and Read-info-page. Each is expressed as a
// sequence of (dispatch command, wait for event, branch) steps against
// a transport.Session, the way the teacher's ctrl.Controller expresses
// AddDevice/StartDevice/... as a sequence of control-command round
// trips against its uring.Ring, logging each sub-step at Debug/Info.
package orchestrator

import (
	"sync"
	"time"

	"github.com/alvinjay/fpsensor/internal/command"
	"github.com/alvinjay/fpsensor/internal/events"
	"github.com/alvinjay/fpsensor/internal/ferrors"
	"github.com/alvinjay/fpsensor/internal/logging"
	"github.com/alvinjay/fpsensor/internal/metrics"
	"github.com/alvinjay/fpsensor/internal/protocol"
	"github.com/alvinjay/fpsensor/internal/statushandler"
	"github.com/alvinjay/fpsensor/internal/transport"
)

// sender is the subset of *transport.Session the orchestrator depends
// on; narrowed to an interface so tests can supply a fake.
type sender interface {
	Send(pkt *protocol.Packet, ctx statushandler.Context, timeout time.Duration) (events.Event, error)
}

// fingerWaiter lets the presence pipeline (internal/presence.Watcher)
// serve as the single gate for finger-wait polling, so the
// orchestrator's own GetImage attempts never interleave on the wire
// with the watcher's edge-triggered ones. Set via SetPresenceGate; a
// nil waiter falls back to the orchestrator polling the wire directly,
// which is what tests that construct an Orchestrator without a watcher
// exercise.
type fingerWaiter interface {
	WaitForFinger(timeout time.Duration) error
	WaitForFingerAbsence(window time.Duration) error
}

// Orchestrator runs the multi-step operations over a transport session.
type Orchestrator struct {
	session sender
	logger  *logging.Logger
	metrics *metrics.Metrics
	address uint32

	mu     sync.Mutex
	mode   Mode
	waiter fingerWaiter
}

// New assembles an Orchestrator over an already-started transport.Session.
func New(session *transport.Session, logger *logging.Logger, m *metrics.Metrics) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Orchestrator{session: session, logger: logger, metrics: m, address: session.Address()}
}

func (o *Orchestrator) setMode(mode Mode) {
	o.mu.Lock()
	o.mode = mode
	o.mu.Unlock()
}

// Mode reports the orchestrator's current operation mode.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// SetPresenceGate wires the presence pipeline in as the sole arbiter of
// finger-wait polling. driver.Init calls this once both the
// Orchestrator and the presence.Watcher have been constructed, making
// the watcher the single gate spec's presence pipeline requires.
func (o *Orchestrator) SetPresenceGate(w fingerWaiter) {
	o.mu.Lock()
	o.waiter = w
	o.mu.Unlock()
}

func (o *Orchestrator) presenceGate() fingerWaiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.waiter
}

// dispatch builds a command from tpl+params, sends it, and retries up
// to attempts times on failure, recording each retry.
func (o *Orchestrator) dispatch(tpl command.Template, params []byte, ctx statushandler.Context, timeout time.Duration, attempts int) (events.Event, error) {
	var lastErr error
	var lastEv events.Event
	for i := 0; i < attempts; i++ {
		pkt, err := tpl.Build(o.address, params)
		if err != nil {
			return events.Event{}, ferrors.Wrap("orchestrator."+tpl.Name, err)
		}
		ev, err := o.session.Send(pkt, ctx, timeout)
		if err == nil {
			return ev, nil
		}
		lastErr, lastEv = err, ev
		if i < attempts-1 {
			o.metrics.RecordRetry()
			o.logger.Debug("orchestrator: retrying command", "command", tpl.Name, "attempt", i+1, "err", err)
		}
	}
	return lastEv, lastErr
}

// waitForFinger hands the wait to the presence gate when one is set.
// Otherwise it polls get-image directly, waiting up to 800 ms for each
// reply and 200 ms between attempts, until a finger is detected or
// timeout elapses.
func (o *Orchestrator) waitForFinger(timeout time.Duration) error {
	if w := o.presenceGate(); w != nil {
		return w.WaitForFinger(timeout)
	}
	deadline := time.Now().Add(timeout)
	for {
		pkt, err := command.GetImage.Build(o.address, nil)
		if err != nil {
			return ferrors.Wrap("orchestrator.WaitForFinger", err)
		}
		if _, err := o.session.Send(pkt, statushandler.Context{}, 800*time.Millisecond); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return ferrors.New("orchestrator.WaitForFinger", ferrors.CodeTimeout, "no finger detected within timeout")
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// waitForFingerAbsence polls get-image and requires two consecutive
// NO_FINGER replies within window to confirm the finger was lifted.
func (o *Orchestrator) waitForFingerAbsence(window time.Duration) error {
	if w := o.presenceGate(); w != nil {
		return w.WaitForFingerAbsence(window)
	}
	deadline := time.Now().Add(window)
	consecutiveAbsent := 0
	for time.Now().Before(deadline) {
		pkt, err := command.GetImage.Build(o.address, nil)
		if err != nil {
			return ferrors.Wrap("orchestrator.waitForFingerAbsence", err)
		}
		_, err = o.session.Send(pkt, statushandler.Context{}, 300*time.Millisecond)
		if err != nil && ferrors.Is(err, ferrors.CodeNoFinger) {
			consecutiveAbsent++
			if consecutiveAbsent >= 2 {
				return nil
			}
		} else {
			consecutiveAbsent = 0
		}
		time.Sleep(100 * time.Millisecond)
	}
	return ferrors.New("orchestrator.waitForFingerAbsence", ferrors.CodeTimeout, "finger was not removed in time")
}
