package transport

import (
	"context"
	"sync"
	"time"

	"github.com/alvinjay/fpsensor/internal/events"
	"github.com/alvinjay/fpsensor/internal/ferrors"
	"github.com/alvinjay/fpsensor/internal/logging"
	"github.com/alvinjay/fpsensor/internal/metrics"
	"github.com/alvinjay/fpsensor/internal/parser"
	"github.com/alvinjay/fpsensor/internal/protocol"
	"github.com/alvinjay/fpsensor/internal/statushandler"
	"github.com/alvinjay/fpsensor/internal/templatebuf"
)

const (
	responseQueueSize      = 8
	commandQueueSize       = 8
	commandEnqueueTimeout  = 100 * time.Millisecond
	templateUploadCooldown = 2 * time.Second
	readPollBufferSize     = 256
)

// pendingCommand is one in-flight command record; the dispatcher
// correlates arriving ACKs to these in strict FIFO order.
type pendingCommand struct {
	opcode   protocol.Opcode
	ctx      statushandler.Context
	resultCh chan dispatchResult
}

type dispatchResult struct {
	event   events.Event
	outcome statushandler.Outcome
}

// Session owns one transport connection's reader and dispatcher tasks
// (C3): it reads bytes off a Port, feeds them to the packet parser,
// routes ACKs to in-flight command records in FIFO order, and routes
// template byte streams to the accumulator (C7). It is the only piece
// of the driver that touches the Port directly.
type Session struct {
	port        Port
	parser      *parser.Parser
	accumulator *templatebuf.Accumulator
	bus         *events.Bus
	logger      *logging.Logger
	metrics     *metrics.Metrics
	address     uint32

	cmdQueue      chan *pendingCommand
	responseQueue chan *protocol.Packet

	// sendMu spans the enqueue-then-write in Send so two concurrent
	// callers can never enqueue in one order and write to the wire in
	// the other; dispatcherLoop relies on strict FIFO between the two.
	sendMu sync.Mutex

	mu            sync.Mutex
	cooldownUntil time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession assembles a Session around an already-open Port.
func NewSession(port Port, address uint32, bus *events.Bus, logger *logging.Logger, m *metrics.Metrics) *Session {
	if logger == nil {
		logger = logging.Default()
	}
	if bus == nil {
		bus = events.New()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Session{
		port:          port,
		parser:        parser.New(logger, m),
		accumulator:   templatebuf.New(logger),
		bus:           bus,
		logger:        logger,
		metrics:       m,
		address:       address,
		cmdQueue:      make(chan *pendingCommand, commandQueueSize),
		responseQueue: make(chan *protocol.Packet, responseQueueSize),
	}
}

// Start launches the reader and dispatcher goroutines. Stop them with
// Session.Close or by cancelling ctx.
func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(2)
	go s.readerLoop(ctx)
	go s.dispatcherLoop(ctx)
}

// Close stops the reader/dispatcher goroutines and waits for them to exit.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return s.port.Close()
}

// Send encodes and writes a command packet, registers it as the next
// in-flight record, and blocks until its ACK (or template-upload
// completion, for up-char) is dispatched or timeout elapses.
func (s *Session) Send(pkt *protocol.Packet, ctx statushandler.Context, timeout time.Duration) (events.Event, error) {
	opcode := pkt.Opcode()
	rec := &pendingCommand{opcode: opcode, ctx: ctx, resultCh: make(chan dispatchResult, 1)}

	s.sendMu.Lock()
	start := time.Now()
	select {
	case s.cmdQueue <- rec:
	case <-time.After(commandEnqueueTimeout):
		s.sendMu.Unlock()
		return events.Event{}, ferrors.WithOpcode("transport.Send", ferrors.CodeBusy, opcode, "command queue full")
	}

	data := protocol.Encode(pkt)
	s.parser.SetLastOutboundOpcode(opcode)
	_, writeErr := s.port.Write(data)
	s.sendMu.Unlock()
	if writeErr != nil {
		return events.Event{}, ferrors.Wrap("transport.Send", writeErr)
	}

	select {
	case res := <-rec.resultCh:
		s.metrics.RecordCommand(uint64(time.Since(start)), res.outcome == statushandler.OutcomeSuccess)
		if res.outcome == statushandler.OutcomeFail {
			return res.event, ferrors.WithOpcode("transport.Send", codeForEvent(res.event), opcode, res.event.Type.String())
		}
		return res.event, nil
	case <-time.After(timeout):
		s.metrics.RecordCommand(uint64(time.Since(start)), false)
		return events.Event{}, ferrors.WithOpcode("transport.Send", ferrors.CodeTimeout, opcode, "no reply within timeout")
	}
}

func codeForEvent(ev events.Event) ferrors.Code {
	switch ev.Type {
	case events.NoFinger:
		return ferrors.CodeNoFinger
	case events.ImageFail:
		return ferrors.CodeImageFail
	case events.FeatureExtractFail:
		return ferrors.CodeFeatureExtractFail
	case events.TemplateExists:
		return ferrors.CodeDuplicate
	case events.MatchFail, events.SearchFail:
		return ferrors.CodeNotFound
	case events.IndexTableRead:
		return ferrors.CodeOccupied
	default:
		return ferrors.CodeProtocolError
	}
}

func (s *Session) readerLoop(ctx context.Context) {
	defer s.wg.Done()
	buf := make([]byte, readPollBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := s.port.Read(buf)
		var data []byte
		if n > 0 {
			data = append([]byte(nil), buf[:n]...)
		}
		if err != nil && !isTimeout(err) {
			s.logger.Warn("transport: read error", "err", err)
			continue
		}

		resp := s.parser.Feed(data)
		if resp == nil {
			continue
		}
		s.routeResponse(resp)
	}
}

func (s *Session) routeResponse(resp *parser.MultiPacketResponse) {
	var hasTemplate bool
	for _, pkt := range resp.Packets {
		if pkt.PacketID == protocol.PacketData || pkt.PacketID == protocol.PacketEndData {
			hasTemplate = true
		}
	}

	if hasTemplate {
		if !s.accumulator.Active() {
			s.accumulator.Begin()
		}
		if s.accumulator.Ingest(resp) {
			s.finishTemplate()
		}
	}

	for _, pkt := range resp.Packets {
		if pkt.PacketID != protocol.PacketAck {
			continue
		}
		select {
		case s.responseQueue <- pkt:
		default:
			s.logger.Warn("transport: response queue overflow, dropping ACK")
		}
	}
}

func (s *Session) finishTemplate() {
	tb, _ := s.accumulator.Finish()
	s.metrics.RecordTemplateUpload(uint64(tb.Size))

	ev := events.Event{Type: events.TemplateUploaded, Template: events.CopyTemplatePayload(tb)}
	s.bus.Trigger(ev)

	s.mu.Lock()
	s.cooldownUntil = time.Now().Add(templateUploadCooldown)
	s.mu.Unlock()

	if rec := s.popPending(); rec != nil {
		rec.resultCh <- dispatchResult{event: ev, outcome: statushandler.OutcomeSuccess}
	}
}

func (s *Session) dispatcherLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case pkt := <-s.responseQueue:
			s.mu.Lock()
			cooling := time.Now().Before(s.cooldownUntil)
			s.mu.Unlock()
			if cooling {
				s.logger.Debug("transport: dropping reply during post-upload cooldown")
				continue
			}

			rec := s.popPending()
			if rec == nil {
				s.logger.Warn("transport: ACK with no in-flight command")
				continue
			}

			ev, outcome := statushandler.Handle(pkt.Confirmation(), rec.opcode, pkt, rec.ctx)
			if outcome == statushandler.OutcomeNone {
				// Deliberately silent (e.g. a zero-score search reply
				// during verify): let the caller's own timeout decide.
				continue
			}
			s.bus.Trigger(ev)
			rec.resultCh <- dispatchResult{event: ev, outcome: outcome}
		}
	}
}

func (s *Session) popPending() *pendingCommand {
	select {
	case rec := <-s.cmdQueue:
		return rec
	default:
		return nil
	}
}

// WriteRaw encodes and writes pkt without registering it as an
// in-flight command — used for the DATA/END_DATA frames of a restore
// upload, which the sensor does not individually ACK.
func (s *Session) WriteRaw(pkt *protocol.Packet) error {
	if _, err := s.port.Write(protocol.Encode(pkt)); err != nil {
		return ferrors.Wrap("transport.WriteRaw", err)
	}
	return nil
}

// Address returns the configured device address used for outbound commands.
func (s *Session) Address() uint32 {
	return s.address
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	t, ok := err.(timeouter)
	return ok && t.Timeout()
}
