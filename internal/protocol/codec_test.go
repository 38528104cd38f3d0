package protocol

import (
	"bytes"
	"testing"
)

func TestSetCommandAndEncodeSearch(t *testing.T) {
	p := NewPacket(DefaultAddress)
	if err := SetCommand(p, OpSearch, []byte{0x01, 0x00, 0x00, 0x00, 0x64}, 5); err != nil {
		t.Fatalf("SetCommand failed: %v", err)
	}

	want := []byte{0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x01, 0x00, 0x08, 0x04, 0x01, 0x00, 0x00, 0x00, 0x64, 0x00, 0x72}
	got := Encode(p)
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % X, want % X", got, want)
	}
	if p.Checksum != 0x0072 {
		t.Errorf("Checksum = 0x%04X, want 0x0072", p.Checksum)
	}
}

func TestSetCommandRejectsOversizedParams(t *testing.T) {
	p := NewPacket(DefaultAddress)
	params := make([]byte, MaxParameters+1)
	if err := SetCommand(p, OpSearch, params, len(params)); err == nil {
		t.Fatal("expected error for n > MaxParameters")
	}
}

func TestSetCommandAcceptsMaxParams(t *testing.T) {
	p := NewPacket(DefaultAddress)
	params := make([]byte, MaxParameters)
	if err := SetCommand(p, OpSearch, params, len(params)); err != nil {
		t.Fatalf("expected MaxParameters to be accepted, got %v", err)
	}
}

func TestSetCommandNilPacket(t *testing.T) {
	if err := SetCommand(nil, OpSearch, nil, 0); err == nil {
		t.Fatal("expected error for nil packet")
	}
}

func TestDecodeAck(t *testing.T) {
	raw := []byte{0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x07, 0x00, 0x03, 0x00, 0x00, 0x0A}
	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.PacketID != PacketAck {
		t.Errorf("PacketID = %v, want ACK", p.PacketID)
	}
	if p.Length != 3 {
		t.Errorf("Length = %d, want 3", p.Length)
	}
	if p.Confirmation() != StatusOK {
		t.Errorf("Confirmation = %v, want StatusOK", p.Confirmation())
	}
	if p.Checksum != 0x000A {
		t.Errorf("Checksum = 0x%04X, want 0x000A", p.Checksum)
	}
	if len(p.Parameters) != 0 {
		t.Errorf("Parameters = %v, want empty", p.Parameters)
	}
	if !VerifyChecksum(p) {
		t.Error("VerifyChecksum should pass for a well-formed ACK")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := NewPacket(0x12345678)
	if err := SetCommand(p, OpGetImage, nil, 0); err != nil {
		t.Fatalf("SetCommand failed: %v", err)
	}
	raw := Encode(p)

	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	RecomputeChecksum(decoded)
	if Encode(decoded); !bytes.Equal(Encode(decoded), raw) {
		t.Errorf("round trip mismatch: got % X, want % X", Encode(decoded), raw)
	}
}

func TestRecomputeChecksumAfterTruncation(t *testing.T) {
	p := &Packet{
		Header:   HeaderSentinel,
		PacketID: PacketData,
		Length:   12,
		Parameters: []byte{
			0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x08, 0x00, 0x02, 0x00, 0x0A,
		},
	}
	p.Parameters = p.Parameters[:0]
	p.Length = uint16(len(p.Parameters) + 2)
	got := RecomputeChecksum(p)
	want := computeChecksum(p)
	if got != want {
		t.Errorf("RecomputeChecksum = 0x%04X, want 0x%04X", got, want)
	}
}
