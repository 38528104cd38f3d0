package parser

import (
	"bytes"
	"testing"
	"time"

	"github.com/alvinjay/fpsensor/internal/metrics"
	"github.com/alvinjay/fpsensor/internal/protocol"
)

func TestFeedSingleAck(t *testing.T) {
	p := New(nil, nil)
	raw := []byte{0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x07, 0x00, 0x03, 0x00, 0x00, 0x0A}
	resp := p.Feed(raw)
	if resp == nil {
		t.Fatal("expected a response after a complete ACK")
	}
	if len(resp.Packets) != 1 {
		t.Fatalf("Packets = %d, want 1", len(resp.Packets))
	}
	if resp.Packets[0].PacketID != protocol.PacketAck {
		t.Errorf("PacketID = %v, want ACK", resp.Packets[0].PacketID)
	}
}

func TestFeedHeaderSplitAcrossReads(t *testing.T) {
	p := New(nil, nil)
	raw := []byte{0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x07, 0x00, 0x03, 0x00, 0x00, 0x0A}

	if resp := p.Feed(raw[:1]); resp != nil {
		t.Fatal("did not expect a response after a single header byte")
	}
	if resp := p.Feed(raw[1:5]); resp != nil {
		t.Fatal("did not expect a response with address split out")
	}
	resp := p.Feed(raw[5:])
	if resp == nil || len(resp.Packets) != 1 {
		t.Fatalf("expected one packet once the frame completes, got %v", resp)
	}
}

func TestFeedLengthSplitAcrossReads(t *testing.T) {
	p := New(nil, nil)
	raw := []byte{0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x07, 0x00, 0x03, 0x00, 0x00, 0x0A}

	if resp := p.Feed(raw[:7]); resp != nil {
		t.Fatal("did not expect a response with the length field split")
	}
	resp := p.Feed(raw[7:])
	if resp == nil || len(resp.Packets) != 1 {
		t.Fatalf("expected one packet once length completes, got %v", resp)
	}
}

func TestFeedTwoPacketsInOneRead(t *testing.T) {
	p := New(nil, nil)
	ack := []byte{0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x07, 0x00, 0x03, 0x00, 0x00, 0x0A}
	combined := append(append([]byte{}, ack...), ack...)

	resp := p.Feed(combined)
	if resp == nil || len(resp.Packets) != 2 {
		t.Fatalf("expected 2 packets from one read, got %v", resp)
	}
}

func TestTemplateFastPathFOOFMarker(t *testing.T) {
	p := New(nil, nil)
	p.SetLastOutboundOpcode(protocol.OpUpChar)

	buf := make([]byte, 520)
	copy(buf[0:2], protocol.HeaderSentinel[:])
	copy(buf[480:484], protocol.FOOF[:])

	resp := p.Feed(buf)
	if resp == nil {
		t.Fatal("expected the fast path to fire")
	}
	if !resp.TemplateComplete {
		t.Error("TemplateComplete should be true")
	}
	if len(resp.TemplateData) != 484 {
		t.Errorf("TemplateData length = %d, want 484", len(resp.TemplateData))
	}
	if !resp.HasEndData() {
		t.Error("expected a synthesized END_DATA packet")
	}
}

func TestTemplateFastPathForcedByLength(t *testing.T) {
	p := New(nil, nil)
	p.SetLastOutboundOpcode(protocol.OpUpChar)

	buf := make([]byte, 450)
	copy(buf[0:2], protocol.HeaderSentinel[:])

	resp := p.Feed(buf)
	if resp == nil || !resp.TemplateComplete {
		t.Fatal("expected forced completion once buffer exceeds the force threshold")
	}
}

func TestTemplateFastPathFiresOncePerUpload(t *testing.T) {
	p := New(nil, nil)
	p.SetLastOutboundOpcode(protocol.OpUpChar)

	buf := make([]byte, 450)
	copy(buf[0:2], protocol.HeaderSentinel[:])
	if resp := p.Feed(buf); resp == nil {
		t.Fatal("expected first fast path to fire")
	}

	// A fresh batch of bytes shouldn't refire the fast path inside the cooldown.
	more := make([]byte, 450)
	copy(more[0:2], protocol.HeaderSentinel[:])
	if resp := p.Feed(more); resp != nil && resp.TemplateComplete {
		t.Fatal("fast path should be latched during its cooldown window")
	}
}

func TestStuckHeaderRecovery(t *testing.T) {
	p := New(nil, nil)
	p.Feed([]byte{0xEF})
	p.stableSince = time.Now().Add(-3 * time.Second)
	p.Feed(nil)

	if len(p.buf) != 0 {
		t.Errorf("expected stuck 1-byte buffer to be cleared, got len=%d", len(p.buf))
	}
}

func TestDiscardsNonMatchingBytes(t *testing.T) {
	p := New(nil, nil)
	ack := []byte{0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x07, 0x00, 0x03, 0x00, 0x00, 0x0A}
	noisy := append([]byte{0x00, 0x11, 0x22}, ack...)

	resp := p.Feed(noisy)
	if resp == nil || len(resp.Packets) != 1 {
		t.Fatalf("expected leading noise discarded and one packet parsed, got %v", resp)
	}
}

func TestFindEmbeddedHeader(t *testing.T) {
	buf := bytes.Repeat([]byte{0x00}, 20)
	copy(buf[10:], []byte{0xEF, 0x01, 0, 0, 0, 0, 0x08})
	if idx := findEmbeddedHeader(buf, protocol.PacketEndData); idx != 10 {
		t.Errorf("findEmbeddedHeader = %d, want 10", idx)
	}
	if idx := findEmbeddedHeader(buf, protocol.PacketData); idx != -1 {
		t.Errorf("findEmbeddedHeader(DATA) = %d, want -1", idx)
	}
}

func TestResyncOrDropRecordsMetric(t *testing.T) {
	m := metrics.New()
	p := New(nil, m)

	p.buf = []byte{0x00, 0x11, 0xEF, 0x01, 0x22}
	p.resyncOrDrop(time.Now())

	if got := m.Snapshot().ParserResyncs; got != 1 {
		t.Errorf("ParserResyncs = %d, want 1", got)
	}
	if len(p.buf) != 3 || p.buf[0] != 0xEF {
		t.Errorf("expected buffer trimmed to the next header, got %v", p.buf)
	}
}

func TestResyncOrDropDropsBufferAndRecordsMetric(t *testing.T) {
	m := metrics.New()
	p := New(nil, m)

	p.buf = []byte{0x00, 0x11, 0x22}
	p.resyncOrDrop(time.Now())

	if got := m.Snapshot().ParserResyncs; got != 1 {
		t.Errorf("ParserResyncs = %d, want 1", got)
	}
	if len(p.buf) != 0 {
		t.Errorf("expected buffer dropped entirely, got %v", p.buf)
	}
}

func TestFeedRecordsChecksumMismatch(t *testing.T) {
	m := metrics.New()
	p := New(nil, m)

	ack := []byte{0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x07, 0x00, 0x03, 0x00, 0x00, 0x0A}
	ack[len(ack)-1] ^= 0xFF // corrupt the checksum's low byte

	resp := p.Feed(ack)
	if resp == nil || len(resp.Packets) != 1 {
		t.Fatalf("expected the corrupted frame to still be accepted, got %v", resp)
	}
	if got := m.Snapshot().ChecksumMismatches; got != 1 {
		t.Errorf("ChecksumMismatches = %d, want 1", got)
	}
}
