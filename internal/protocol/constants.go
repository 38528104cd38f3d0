// Package protocol implements the wire framing for the fingerprint
// sensor's serial protocol: packet layout, opcodes, and the frame
// codec (encode/checksum). It has no knowledge of transport, retries,
// or orchestration — those live in internal/transport and
// internal/orchestrator.
package protocol

// PacketID identifies the kind of frame on the wire.
type PacketID byte

const (
	PacketCommand PacketID = 0x01
	PacketData    PacketID = 0x02
	PacketAck     PacketID = 0x07
	PacketEndData PacketID = 0x08
)

func (p PacketID) String() string {
	switch p {
	case PacketCommand:
		return "COMMAND"
	case PacketData:
		return "DATA"
	case PacketAck:
		return "ACK"
	case PacketEndData:
		return "END_DATA"
	default:
		return "UNKNOWN"
	}
}

// hasCode reports whether a packet of this kind carries the 1-byte
// code field (opcode on outbound COMMAND, confirmation on inbound ACK).
func (p PacketID) hasCode() bool {
	return p == PacketCommand || p == PacketAck
}

// HeaderSentinel is the fixed 2-byte frame start marker.
var HeaderSentinel = [2]byte{0xEF, 0x01}

// DefaultAddress is the device address used when none has been negotiated.
const DefaultAddress uint32 = 0xFFFFFFFF

// MaxParameters bounds the parameter payload of a single packet.
// The sensor's largest single-chunk transfer (restore/down-char) is
// 128 bytes; this is comfortably above the spec's "at least 32" floor.
const MaxParameters = 128

// FOOF is the in-band literal terminating a template stream.
var FOOF = [4]byte{'F', 'O', 'O', 'F'}

// Opcode identifies a sensor command.
type Opcode byte

// Opcodes fixed by the sensor (§6).
const (
	OpHandshake        Opcode = 0x40
	OpGetImage         Opcode = 0x01
	OpGenChar          Opcode = 0x02
	OpMatch            Opcode = 0x03
	OpSearch           Opcode = 0x04
	OpRegModel         Opcode = 0x05
	OpStoreChar        Opcode = 0x06
	OpLoadChar         Opcode = 0x07
	OpUpChar           Opcode = 0x08
	OpDownChar         Opcode = 0x09
	OpWriteReg         Opcode = 0x0E
	OpReadSysPara      Opcode = 0x0F
	OpDeleteChar       Opcode = 0x0C
	OpEmptyDatabase    Opcode = 0x0D
	OpSetPassword      Opcode = 0x12
	OpVerifyPassword   Opcode = 0x13
	OpGetRandomCode    Opcode = 0x14
	OpSetChipAddr      Opcode = 0x15
	OpReadInfPage      Opcode = 0x16
	OpWriteNotepad     Opcode = 0x18
	OpReadNotepad      Opcode = 0x19
	OpBurnCode         Opcode = 0x1A
	OpReadIndexTable   Opcode = 0x1F
	OpValidTemplateNum Opcode = 0x1D
	OpCancel           Opcode = 0x30
	OpAutoEnroll       Opcode = 0x31
	OpAutoIdentify     Opcode = 0x32
	OpSleep            Opcode = 0x33
	OpGetChipSN        Opcode = 0x34
	OpGetImageInfo     Opcode = 0x3C
	OpControlLED       Opcode = 0x3C
	OpSearchNow        Opcode = 0x3B
	OpFactoryReset     Opcode = 0x3B
	OpGetEnrollImage   Opcode = 0x29
)

// Status is the confirmation byte carried by an ACK packet.
type Status byte

// Status codes the sensor is known to return.
const (
	StatusOK                  Status = 0x00
	StatusPacketError         Status = 0x01
	StatusNoFinger            Status = 0x02
	StatusImageFail           Status = 0x03
	StatusTooDry              Status = 0x04
	StatusTooWet              Status = 0x05
	StatusTooChaotic          Status = 0x06
	StatusTooFewPoints        Status = 0x07
	StatusMismatch            Status = 0x08
	StatusNotFound            Status = 0x09
	StatusEnrollMismatch      Status = 0x0A
	StatusBadLocation         Status = 0x0B
	StatusDBRangeFail         Status = 0x0C
	StatusUploadFeatureFail   Status = 0x0D
	StatusNoDataPacket        Status = 0x0E
	StatusUploadImageFail     Status = 0x0F
	StatusDeleteFail          Status = 0x10
	StatusDBEmpty             Status = 0x11
	StatusEntryCountError     Status = 0x12
	StatusInvalidTimeout      Status = 0x13
	StatusPasswordFail        Status = 0x14
	StatusImageNotAvailable   Status = 0x15
	StatusFlashWriteError     Status = 0x18
	StatusNoDefinedError      Status = 0x19
	StatusInvalidRegister     Status = 0x1A
	StatusIncorrectConfig     Status = 0x1B
	StatusWrongNotepadPage    Status = 0x1C
	StatusFailedToCommunicate Status = 0x1D
	StatusSurfaceFail         Status = 0x1E
	StatusFingerprintIDFail   Status = 0x1F
	StatusImageAreaSmall      Status = 0x26
	StatusEncryptionMismatch  Status = 0x27
	StatusAlreadyExists       Status = 0x22
	StatusDataPacketError     Status = 0x31
)
