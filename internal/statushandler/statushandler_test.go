package statushandler

import (
	"testing"

	"github.com/alvinjay/fpsensor/internal/events"
	"github.com/alvinjay/fpsensor/internal/protocol"
)

func ackPacket(params []byte) *protocol.Packet {
	p := &protocol.Packet{Header: protocol.HeaderSentinel, PacketID: protocol.PacketAck, Parameters: params}
	p.Length = uint16(len(params) + 3)
	protocol.RecomputeChecksum(p)
	return p
}

func TestVerifyZeroScoreIsSilent(t *testing.T) {
	pkt := ackPacket([]byte{0x00, 0x00, 0x00, 0x00})
	ev, outcome := Handle(protocol.StatusOK, protocol.OpSearch, pkt, Context{EnrollmentInProgress: false})
	if outcome != OutcomeNone {
		t.Errorf("outcome = %v, want OutcomeNone", outcome)
	}
	if ev.Type != events.Type(0) || ev.Match != nil {
		t.Errorf("expected zero-value event for silent verify zero-score, got %+v", ev)
	}
}

func TestEnrollZeroScoreUnblocksAsFail(t *testing.T) {
	pkt := ackPacket([]byte{0x00, 0x03, 0x00, 0x00})
	ev, outcome := Handle(protocol.StatusOK, protocol.OpSearch, pkt, Context{EnrollmentInProgress: true})
	if outcome != OutcomeFail {
		t.Errorf("outcome = %v, want OutcomeFail", outcome)
	}
	if ev.Type != events.SearchFail {
		t.Errorf("Type = %v, want SearchFail", ev.Type)
	}
	if ev.Match == nil || ev.Match.Score != 0 {
		t.Error("expected a zero-score Match payload for the orchestrator to inspect")
	}
}

func TestEnrollDuplicateScoreFailsWithSuccess(t *testing.T) {
	pkt := ackPacket([]byte{0x00, 0x05, 0x00, 0x64})
	ev, outcome := Handle(protocol.StatusOK, protocol.OpSearch, pkt, Context{EnrollmentInProgress: true})
	if outcome != OutcomeSuccess {
		t.Errorf("outcome = %v, want OutcomeSuccess (reply arrived; orchestrator inspects Match.Score)", outcome)
	}
	if ev.Type != events.SearchSuccess || ev.Match.Score != 0x64 {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestVerifyMatchSucceeds(t *testing.T) {
	pkt := ackPacket([]byte{0x00, 0x07, 0x00, 0x50})
	ev, outcome := Handle(protocol.StatusOK, protocol.OpSearch, pkt, Context{})
	if outcome != OutcomeSuccess {
		t.Fatalf("outcome = %v, want OutcomeSuccess", outcome)
	}
	if ev.Match.PageID != 7 || ev.Match.Score != 0x50 {
		t.Errorf("unexpected match info: %+v", ev.Match)
	}
}

func TestIndexTableOccupiedBitFailsFast(t *testing.T) {
	bitmap := make([]byte, 32)
	bitmap[0] = 1 << 5 // bit 5 set
	pkt := ackPacket(bitmap)

	ev, outcome := Handle(protocol.StatusOK, protocol.OpReadIndexTable, pkt, Context{CheckingLocation: true, LocationBit: 5})
	if outcome != OutcomeFail {
		t.Errorf("outcome = %v, want OutcomeFail", outcome)
	}
	if ev.IndexOccupied == nil || !*ev.IndexOccupied {
		t.Error("expected IndexOccupied = true")
	}
}

func TestIndexTableFreeBitSucceeds(t *testing.T) {
	bitmap := make([]byte, 32)
	pkt := ackPacket(bitmap)

	ev, outcome := Handle(protocol.StatusOK, protocol.OpReadIndexTable, pkt, Context{CheckingLocation: true, LocationBit: 5})
	if outcome != OutcomeSuccess {
		t.Errorf("outcome = %v, want OutcomeSuccess", outcome)
	}
	if ev.IndexOccupied == nil || *ev.IndexOccupied {
		t.Error("expected IndexOccupied = false")
	}
}

func TestIndexTableWithoutLocationCheckIsPlainSuccess(t *testing.T) {
	pkt := ackPacket(make([]byte, 32))
	ev, outcome := Handle(protocol.StatusOK, protocol.OpReadIndexTable, pkt, Context{})
	if outcome != OutcomeSuccess || ev.IndexOccupied != nil {
		t.Errorf("unexpected result: %+v outcome=%v", ev, outcome)
	}
}

func TestNoFingerMapsToFail(t *testing.T) {
	pkt := ackPacket(nil)
	ev, outcome := Handle(protocol.StatusNoFinger, protocol.OpGetImage, pkt, Context{})
	if outcome != OutcomeFail || ev.Type != events.NoFinger {
		t.Errorf("unexpected result: %+v outcome=%v", ev, outcome)
	}
}

func TestDownCharPacketErrorIsForcedSuccess(t *testing.T) {
	pkt := ackPacket(nil)
	ev, outcome := Handle(protocol.StatusDataPacketError, protocol.OpDownChar, pkt, Context{})
	if outcome != OutcomeSuccess {
		t.Errorf("outcome = %v, want OutcomeSuccess (sensor quirk)", outcome)
	}
	if ev.Type != events.TemplateStorePacketError {
		t.Errorf("Type = %v, want TemplateStorePacketError", ev.Type)
	}
}

func TestDownCharEncryptionMismatchIsForcedSuccess(t *testing.T) {
	pkt := ackPacket(nil)
	ev, outcome := Handle(protocol.StatusEncryptionMismatch, protocol.OpDownChar, pkt, Context{})
	if outcome != OutcomeSuccess {
		t.Errorf("outcome = %v, want OutcomeSuccess", outcome)
	}
	if ev.Type != events.TemplateStorePacketError {
		t.Errorf("Type = %v, want TemplateStorePacketError", ev.Type)
	}
}

func TestSameDataPacketErrorOnOtherOpcodeIsRealFailure(t *testing.T) {
	pkt := ackPacket(nil)
	ev, outcome := Handle(protocol.StatusDataPacketError, protocol.OpUpChar, pkt, Context{})
	if outcome != OutcomeFail || ev.Type != events.Error {
		t.Errorf("unexpected result: %+v outcome=%v", ev, outcome)
	}
}

func TestValidTemplateNumDecodesCount(t *testing.T) {
	pkt := ackPacket([]byte{0x00, 0x2A})
	ev, outcome := Handle(protocol.StatusOK, protocol.OpValidTemplateNum, pkt, Context{})
	if outcome != OutcomeSuccess || ev.TemplateCount != 42 {
		t.Errorf("unexpected result: %+v outcome=%v", ev, outcome)
	}
}

func TestReadSysParaDecodesBlock(t *testing.T) {
	params := []byte{
		0x00, 0x00, // status register
		0x00, 0x09, // system id
		0x00, 0x02, // library size
		0x00, 0x03, // security level
		0xFF, 0xFF, 0xFF, 0xFF, // device address
		0x00, 0x80, // packet size
		0x00, 0x06, // baud setting
	}
	pkt := ackPacket(params)
	ev, outcome := Handle(protocol.StatusOK, protocol.OpReadSysPara, pkt, Context{})
	if outcome != OutcomeSuccess {
		t.Fatalf("outcome = %v, want OutcomeSuccess", outcome)
	}
	if ev.SysParams == nil || ev.SysParams.SecurityLevel != 3 || ev.SysParams.DeviceAddress != 0xFFFFFFFF {
		t.Errorf("unexpected sys params: %+v", ev.SysParams)
	}
}

func TestUpCharSuccessIsPlainAck(t *testing.T) {
	pkt := ackPacket(nil)
	ev, outcome := Handle(protocol.StatusOK, protocol.OpUpChar, pkt, Context{})
	if outcome != OutcomeSuccess || ev.Type != events.Ack {
		t.Errorf("unexpected result: %+v outcome=%v", ev, outcome)
	}
}
