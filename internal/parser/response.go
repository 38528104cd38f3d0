// Package parser implements the resumable byte-stream decoder (C2):
// it turns raw UART bytes into typed protocol.Packet values and
// detects the multi-packet template-transfer fast path described in
// spec §4.2. It is structured the way the teacher's internal/queue
// package owns a persistent, reusable buffer across calls rather than
// allocating per invocation.
package parser

import (
	"time"

	"github.com/alvinjay/fpsensor/internal/protocol"
)

// MultiPacketResponse is the parser's output for a single logical
// reply: an ordered run of packets, plus template bookkeeping when the
// reply is (or might be) a multi-packet template transfer.
type MultiPacketResponse struct {
	Packets            []*protocol.Packet
	CollectingTemplate bool
	TemplateComplete   bool
	TemplateData       []byte
	Started            time.Time
}

// HasEndData reports whether the response's packet sequence includes
// an END_DATA frame.
func (r *MultiPacketResponse) HasEndData() bool {
	for _, p := range r.Packets {
		if p.PacketID == protocol.PacketEndData {
			return true
		}
	}
	return false
}
