// Package presence implements the finger-presence pipeline (C6): a
// Watcher goroutine standing in for the GPIO rising-edge ISR (fed by a
// real edge-event source or a test fake), debounced, with each accepted
// edge starting a detection-cycle goroutine that confirms the finger
// with a bounded number of get-image captures and drives the
// mode-specific follow-up.
// Structured after the teacher's internal/queue.Runner: a per-resource
// mutex-guarded state flag instead of a channel-of-work-items, since
// only one capture is ever validated at a time.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/alvinjay/fpsensor/internal/command"
	"github.com/alvinjay/fpsensor/internal/events"
	"github.com/alvinjay/fpsensor/internal/ferrors"
	"github.com/alvinjay/fpsensor/internal/logging"
	"github.com/alvinjay/fpsensor/internal/metrics"
	"github.com/alvinjay/fpsensor/internal/orchestrator"
	"github.com/alvinjay/fpsensor/internal/protocol"
	"github.com/alvinjay/fpsensor/internal/statushandler"
)

const (
	debounceWindow     = 300 * time.Millisecond
	captureAttempts    = 3
	captureSpacing     = 50 * time.Millisecond
	captureWait        = 800 * time.Millisecond
	validatingWatchdog = 5 * time.Second
	lockAcquireWait    = 100 * time.Millisecond
	pollFallback       = 1 * time.Second
)

// EdgeSource delivers one value per GPIO rising edge. A real
// implementation backs this with golang.org/x/sys/unix epoll over a
// gpio character device's edge-event file descriptor; tests supply a
// plain channel.
type EdgeSource interface {
	Edges() <-chan time.Time
}

// sender is the transport dependency: build and dispatch one command,
// block for its event. Narrowed from *transport.Session / *orchestrator.Orchestrator.
type sender interface {
	Send(pkt *protocol.Packet, ctx statushandler.Context, timeout time.Duration) (events.Event, error)
}

// modeProvider reports which buffer/follow-up the current operation wants.
type modeProvider interface {
	Mode() orchestrator.Mode
}

// Watcher owns the debounce gate and the detection cycles it starts,
// one per accepted edge.
type Watcher struct {
	edges  EdgeSource
	sender sender
	mode   modeProvider
	bus    *events.Bus
	logger *logging.Logger
	metrics *metrics.Metrics
	address uint32

	mu          sync.Mutex
	validating  bool
	lastEdge    time.Time
	validateStart time.Time

	// captureGate serializes every GetImage/GenChar round trip the
	// watcher issues against the ones the orchestrator issues through
	// WaitForFinger/WaitForFingerAbsence, so the two never interleave
	// commands on the same wire (see Orchestrator.SetPresenceGate).
	captureGate sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles a Watcher. edges may be nil, in which case only the
// polling fallback in WaitForFinger drives detection.
func New(edges EdgeSource, sndr sender, mode modeProvider, bus *events.Bus, logger *logging.Logger, m *metrics.Metrics, address uint32) *Watcher {
	if logger == nil {
		logger = logging.Default()
	}
	if bus == nil {
		bus = events.New()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Watcher{edges: edges, sender: sndr, mode: mode, bus: bus, logger: logger, metrics: m, address: address}
}

// Start launches the detection goroutine and, if an EdgeSource was
// supplied, the edge-consuming loop.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	if w.edges != nil {
		w.wg.Add(1)
		go w.edgeLoop(ctx)
	}
	w.wg.Add(1)
	go w.watchdogLoop(ctx)
}

// Stop halts the watcher's goroutines.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) edgeLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-w.edges.Edges():
			if !ok {
				return
			}
			w.onEdge(t)
		}
	}
}

// onEdge applies debounce and, if accepted, runs one detection cycle.
// It tries for up to 100 ms to acquire the state mutex before giving
// up on this edge, matching the spec's "trying up to 100 ms" clause.
func (w *Watcher) onEdge(t time.Time) {
	if !w.tryLock(lockAcquireWait) {
		w.metrics.RecordFingerDetect(false)
		return
	}
	if t.Sub(w.lastEdge) < debounceWindow || w.validating {
		w.mu.Unlock()
		w.metrics.RecordFingerDetect(false)
		return
	}
	w.lastEdge = t
	w.validating = true
	w.validateStart = t
	w.mu.Unlock()

	w.metrics.RecordFingerDetect(true)
	go w.runDetectionCycle()
}

// watchdogLoop clears a validating flag that has been held too long,
// guarding against a detection cycle wedged on a stuck transport read.
func (w *Watcher) watchdogLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(validatingWatchdog)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.validating && time.Since(w.validateStart) > validatingWatchdog {
				w.logger.Warn("presence: clearing stuck validating flag")
				w.validating = false
			}
			w.mu.Unlock()
		}
	}
}

// runDetectionCycle attempts up to 3 get-image captures to confirm
// presence, then generates a character from the mode-appropriate
// buffer and raises the mode's follow-up event.
func (w *Watcher) runDetectionCycle() {
	defer func() {
		w.mu.Lock()
		w.validating = false
		w.mu.Unlock()
	}()

	w.captureGate.Lock()
	defer w.captureGate.Unlock()

	confirmed := false
	for i := 0; i < captureAttempts; i++ {
		pkt, err := command.GetImage.Build(w.address, nil)
		if err != nil {
			w.logger.Error("presence: failed to build get-image", "err", err)
			return
		}
		if _, err := w.sender.Send(pkt, statushandler.Context{}, captureWait); err == nil {
			confirmed = true
			break
		}
		time.Sleep(captureSpacing)
	}
	if !confirmed {
		return
	}

	mode := orchestrator.ModeIdle
	if w.mode != nil {
		mode = w.mode.Mode()
	}

	buffer := 1
	if mode == orchestrator.ModeEnrollSecond {
		buffer = 2
	}

	genPkt, err := command.GenChar.Build(w.address, command.GenCharBuffer(buffer))
	if err != nil {
		return
	}
	ev, err := w.sender.Send(genPkt, statushandler.Context{}, 2*time.Second)
	if err != nil {
		w.bus.Trigger(events.Event{Type: events.Error, Err: err})
		return
	}

	switch mode {
	case orchestrator.ModeEnrollSecond:
		regPkt, err := command.RegModel.Build(w.address, nil)
		if err != nil {
			return
		}
		if regEv, err := w.sender.Send(regPkt, statushandler.Context{}, 2*time.Second); err == nil {
			w.bus.Trigger(regEv)
		}
	default:
		w.bus.Trigger(ev)
	}
}

// WaitForFinger blocks until a finger is detected or timeout elapses,
// polling get-image once per second. It is the orchestrator's own
// entry point for a blocking finger wait (see Orchestrator.SetPresenceGate)
// as well as the fallback path for callers with no GPIO edge wired up;
// captureGate keeps these polls from interleaving on the wire with the
// edge-triggered detection cycle above.
func (w *Watcher) WaitForFinger(timeout time.Duration) error {
	w.captureGate.Lock()
	defer w.captureGate.Unlock()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		attemptStart := time.Now()
		pkt, err := command.GetImage.Build(w.address, nil)
		if err != nil {
			return ferrors.Wrap("presence.WaitForFinger", err)
		}
		if _, err := w.sender.Send(pkt, statushandler.Context{}, pollFallback); err == nil {
			return nil
		}
		next := attemptStart.Add(pollFallback)
		if next.After(deadline) {
			next = deadline
		}
		time.Sleep(time.Until(next))
	}
	return ferrors.New("presence.WaitForFinger", ferrors.CodeTimeout, "no finger detected")
}

// WaitForFingerAbsence blocks until two consecutive get-image polls
// report NO_FINGER within window, confirming the finger was lifted
// between an enrollment's two captures. Gated the same as WaitForFinger.
func (w *Watcher) WaitForFingerAbsence(window time.Duration) error {
	w.captureGate.Lock()
	defer w.captureGate.Unlock()

	deadline := time.Now().Add(window)
	consecutiveAbsent := 0
	for time.Now().Before(deadline) {
		pkt, err := command.GetImage.Build(w.address, nil)
		if err != nil {
			return ferrors.Wrap("presence.WaitForFingerAbsence", err)
		}
		_, err = w.sender.Send(pkt, statushandler.Context{}, 300*time.Millisecond)
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
	return ferrors.New("presence.WaitForFingerAbsence", ferrors.CodeTimeout, "finger was not removed in time")
}

// tryLock attempts to acquire w.mu for up to d, polling TryLock.
func (w *Watcher) tryLock(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if w.mu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
