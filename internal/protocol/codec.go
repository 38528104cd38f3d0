package protocol

import "encoding/binary"

// Encode serializes p into its wire representation: header(2) ||
// address(4, big-endian) || packet_id(1) || length(2, big-endian) ||
// code(1 if COMMAND/ACK) || parameters || checksum(2, big-endian).
func Encode(p *Packet) []byte {
	codeLen := 0
	if p.PacketID.hasCode() {
		codeLen = 1
	}
	buf := make([]byte, 9+len(p.Parameters)+codeLen+2)
	buf[0], buf[1] = p.Header[0], p.Header[1]
	binary.BigEndian.PutUint32(buf[2:6], p.Address)
	buf[6] = byte(p.PacketID)
	binary.BigEndian.PutUint16(buf[7:9], p.Length)
	off := 9
	if codeLen == 1 {
		buf[off] = p.Code
		off++
	}
	copy(buf[off:], p.Parameters)
	off += len(p.Parameters)
	binary.BigEndian.PutUint16(buf[off:off+2], p.Checksum)
	return buf
}

// Decode parses a single complete wire frame from data. It does not
// validate the checksum (see VerifyChecksum); it assumes data holds
// exactly one frame, including header and trailing checksum, as
// produced by the parser's state machine.
func Decode(data []byte) (*Packet, error) {
	if len(data) < 9 {
		return nil, NewError(ErrInvalidSize, "frame shorter than minimum header")
	}
	p := &Packet{}
	p.Header[0], p.Header[1] = data[0], data[1]
	p.Address = binary.BigEndian.Uint32(data[2:6])
	p.PacketID = PacketID(data[6])
	p.Length = binary.BigEndian.Uint16(data[7:9])
	off := 9
	if p.PacketID.hasCode() {
		if len(data) < off+1 {
			return nil, NewError(ErrInvalidSize, "frame too short for code byte")
		}
		p.Code = data[off]
		off++
	}
	paramLen := int(p.Length) - 2
	if p.PacketID.hasCode() {
		paramLen--
	}
	if paramLen < 0 || len(data) < off+paramLen+2 {
		return nil, NewError(ErrInvalidSize, "frame too short for declared length")
	}
	p.Parameters = append([]byte(nil), data[off:off+paramLen]...)
	off += paramLen
	p.Checksum = binary.BigEndian.Uint16(data[off : off+2])
	return p, nil
}

// FrameLen returns the total on-wire length of a packet given its
// parameter count and whether it carries a code byte.
func FrameLen(paramCount int, hasCode bool) int {
	n := 9 + paramCount + 2
	if hasCode {
		n++
	}
	return n
}
