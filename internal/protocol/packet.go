package protocol

import "fmt"

// Packet is the protocol unit exchanged with the sensor. Code is
// union-shaped: it holds the outbound opcode on a COMMAND packet and
// the inbound confirmation status on an ACK packet; it is unused
// (and absent from the wire) on DATA/END_DATA packets.
type Packet struct {
	Header     [2]byte
	Address    uint32
	PacketID   PacketID
	Length     uint16
	Code       byte
	Parameters []byte
	Checksum   uint16
}

// NewPacket returns a packet with header and address pre-filled,
// ready for SetCommand to populate.
func NewPacket(address uint32) *Packet {
	return &Packet{
		Header:  HeaderSentinel,
		Address: address,
	}
}

// Opcode returns Code interpreted as an outbound opcode.
func (p *Packet) Opcode() Opcode { return Opcode(p.Code) }

// Confirmation returns Code interpreted as an inbound status byte.
func (p *Packet) Confirmation() Status { return Status(p.Code) }

// SetCommand overwrites p into a COMMAND packet for opcode with the
// given parameters, zero-padding any unused slots up to n, and
// recomputes length and checksum. Fails with an invalid-argument error
// if p is nil, or invalid-size if n exceeds MaxParameters.
func SetCommand(p *Packet, opcode Opcode, params []byte, n int) error {
	if p == nil {
		return NewError(ErrInvalidArgument, "packet is nil")
	}
	if n > MaxParameters {
		return NewError(ErrInvalidSize, fmt.Sprintf("%d parameters exceeds max %d", n, MaxParameters))
	}
	p.Header = HeaderSentinel
	p.PacketID = PacketCommand
	p.Code = byte(opcode)
	p.Parameters = make([]byte, n)
	copy(p.Parameters, params)
	p.Length = uint16(1 + n + 2)
	p.Checksum = computeChecksum(p)
	return nil
}

// computeChecksum is the 16-bit unsigned sum of every byte from
// packet_id through the last parameter byte, inclusive.
func computeChecksum(p *Packet) uint16 {
	var sum uint32
	sum += uint32(p.PacketID)
	sum += uint32(byte(p.Length >> 8))
	sum += uint32(byte(p.Length))
	if p.PacketID.hasCode() {
		sum += uint32(p.Code)
	}
	for _, b := range p.Parameters {
		sum += uint32(b)
	}
	return uint16(sum)
}

// RecomputeChecksum updates p.Checksum in place and returns the new
// value. Used by the accumulator (C7) when it truncates or synthesizes
// packets out of an in-progress byte stream.
func RecomputeChecksum(p *Packet) uint16 {
	p.Checksum = computeChecksum(p)
	return p.Checksum
}

// VerifyChecksum reports whether the packet's stored checksum matches
// a fresh computation. The parser never rejects on mismatch (§4.2);
// it calls this only to count mismatches in its metrics.
func VerifyChecksum(p *Packet) bool {
	return p.Checksum == computeChecksum(p)
}
