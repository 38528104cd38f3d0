package fpsensor

import (
	"github.com/alvinjay/fpsensor/internal/protocol"
	"github.com/alvinjay/fpsensor/internal/transport"
)

// NewMockPort returns an in-memory transport.Port for tests and the
// CLI's -mock flag, mirroring the teacher's NewMockBackend testing helper.
func NewMockPort() *transport.MockPort {
	return transport.NewMockPort()
}

// NewMockDriver assembles a Driver over a fresh MockPort and returns
// both, so a test can Init the driver and then Feed scripted replies
// on the returned port.
func NewMockDriver() (*Driver, *transport.MockPort) {
	port := transport.NewMockPort()
	return NewWithPort(port, protocol.DefaultAddress, nil), port
}

// FeedAck appends a ready-made ACK frame to port, as if the sensor had
// just replied to the most recently sent command with status and params.
func FeedAck(port *transport.MockPort, status protocol.Status, params []byte) {
	pkt := &protocol.Packet{
		Header:     protocol.HeaderSentinel,
		Address:    protocol.DefaultAddress,
		PacketID:   protocol.PacketAck,
		Code:       byte(status),
		Parameters: params,
	}
	pkt.Length = uint16(1 + len(params) + 2)
	protocol.RecomputeChecksum(pkt)
	port.Feed(protocol.Encode(pkt))
}
