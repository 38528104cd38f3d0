package transport

import (
	"context"
	"testing"
	"time"

	"github.com/alvinjay/fpsensor/internal/command"
	"github.com/alvinjay/fpsensor/internal/protocol"
	"github.com/alvinjay/fpsensor/internal/statushandler"
)

func ackBytes(status protocol.Status, params []byte) []byte {
	p := &protocol.Packet{
		Header:     protocol.HeaderSentinel,
		Address:    protocol.DefaultAddress,
		PacketID:   protocol.PacketAck,
		Code:       byte(status),
		Parameters: params,
	}
	p.Length = uint16(1 + len(params) + 2)
	protocol.RecomputeChecksum(p)
	return protocol.Encode(p)
}

func newTestSession(t *testing.T) (*Session, *MockPort) {
	t.Helper()
	port := NewMockPort()
	port.SetReadTimeout(5 * time.Millisecond)
	s := NewSession(port, protocol.DefaultAddress, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		cancel()
		s.wg.Wait()
	})
	return s, port
}

func TestSendGetImageSuccess(t *testing.T) {
	s, port := newTestSession(t)
	port.Feed(ackBytes(protocol.StatusOK, nil))

	pkt, err := command.GetImage.Build(protocol.DefaultAddress, nil)
	if err != nil {
		t.Fatal(err)
	}
	ev, err := s.Send(pkt, statushandler.Context{}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Type.String() != "finger-detected" {
		t.Errorf("event type = %v, want finger-detected", ev.Type)
	}
}

func TestSendNoFingerReturnsStructuredError(t *testing.T) {
	s, port := newTestSession(t)
	port.Feed(ackBytes(protocol.StatusNoFinger, nil))

	pkt, _ := command.GetImage.Build(protocol.DefaultAddress, nil)
	_, err := s.Send(pkt, statushandler.Context{}, time.Second)
	if err == nil {
		t.Fatal("expected an error for NO_FINGER")
	}
}

func TestSendVerifyZeroScoreTimesOut(t *testing.T) {
	s, port := newTestSession(t)
	port.Feed(ackBytes(protocol.StatusOK, []byte{0x00, 0x00, 0x00, 0x00}))

	pkt, _ := command.Search.Build(protocol.DefaultAddress, command.SearchParams(1, 0, 100))
	_, err := s.Send(pkt, statushandler.Context{EnrollmentInProgress: false}, 30*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout error for a silently-dropped zero-score reply")
	}
}

// blockingWritePort blocks inside Write until released, so a test can
// hold Send mid-flight and observe cmdQueue state around the write.
type blockingWritePort struct {
	*MockPort
	writeStarted chan struct{}
	release      chan struct{}
}

func (p *blockingWritePort) Write(b []byte) (int, error) {
	select {
	case p.writeStarted <- struct{}{}:
	default:
	}
	<-p.release
	return p.MockPort.Write(b)
}

// TestSendEnqueueAndWriteAreAtomic guards against the enqueue
// (cmdQueue <- rec) and the wire write happening as two independently
// interleavable steps: a second concurrent Send must not be able to
// enqueue its own record while the first Send's write is still
// in-flight, since dispatcherLoop correlates ACKs to cmdQueue in strict
// FIFO order.
func TestSendEnqueueAndWriteAreAtomic(t *testing.T) {
	port := &blockingWritePort{
		MockPort:     NewMockPort(),
		writeStarted: make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
	port.SetReadTimeout(5 * time.Millisecond)
	s := NewSession(port, protocol.DefaultAddress, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		cancel()
		s.wg.Wait()
	})

	pktA, _ := command.GetImage.Build(protocol.DefaultAddress, nil)
	pktB, _ := command.GetImage.Build(protocol.DefaultAddress, nil)

	doneA := make(chan struct{})
	go func() {
		s.Send(pktA, statushandler.Context{}, 200*time.Millisecond)
		close(doneA)
	}()

	<-port.writeStarted // A is inside Write, holding sendMu

	doneB := make(chan struct{})
	go func() {
		s.Send(pktB, statushandler.Context{}, 200*time.Millisecond)
		close(doneB)
	}()

	time.Sleep(20 * time.Millisecond)
	if n := len(s.cmdQueue); n != 1 {
		t.Fatalf("cmdQueue length while A's write is in-flight = %d, want 1 (B must not enqueue until A's write completes)", n)
	}

	close(port.release)
	<-doneA
	<-doneB
}

func TestSendBusyWhenCommandQueueFull(t *testing.T) {
	s, _ := newTestSession(t)
	// Fill the command queue without ever supplying a reply.
	for i := 0; i < commandQueueSize; i++ {
		pkt, _ := command.GetImage.Build(protocol.DefaultAddress, nil)
		go s.Send(pkt, statushandler.Context{}, 2*time.Second)
	}
	time.Sleep(20 * time.Millisecond)

	pkt, _ := command.GetImage.Build(protocol.DefaultAddress, nil)
	_, err := s.Send(pkt, statushandler.Context{}, time.Second)
	if err == nil {
		t.Fatal("expected busy error when the command queue is saturated")
	}
}
