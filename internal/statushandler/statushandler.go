// Package statushandler implements the status-byte mapping table (C8):
// it turns an ACK's confirmation code, read in the context of the
// command that provoked it, into an events.Event plus an Outcome bit
// the orchestrator blocks on. It holds no state of its own; all
// context that changes the mapping (operation mode, enrollment phase,
// which location is being checked) is passed in per call.
package statushandler

import (
	"github.com/alvinjay/fpsensor/internal/events"
	"github.com/alvinjay/fpsensor/internal/protocol"
)

// Outcome is the generic signal bit an orchestrator step waits on.
// It is deliberately coarser than the Event itself: several rows in
// the table set Outcome as a pure "the reply arrived" latch, with the
// real decision made by the orchestrator inspecting the Event payload
// (Match.Score, IndexOccupied, ...) rather than trusting which bit fired.
type Outcome int

const (
	// OutcomeNone means the reply produced no signal: the orchestrator
	// keeps waiting. Used for the "silent" verify zero-score case.
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeFail
)

// Context carries the caller-supplied state that disambiguates a
// status code whose meaning depends on which operation is in flight.
type Context struct {
	// EnrollmentInProgress disambiguates a search/MISMATCH/NOT_FOUND
	// reply: during enroll it signals "no duplicate found" (good);
	// during verify it signals "no match" (bad).
	EnrollmentInProgress bool

	// CheckingLocation is set while the orchestrator's enroll step 2
	// is waiting on a read-index-table reply to learn whether a
	// specific slot is already occupied.
	CheckingLocation bool

	// LocationBit is the bit position within the addressed page's
	// 32-byte bitmap to test when CheckingLocation is set.
	LocationBit int
}

// Handle maps a reply's status, read in the context of opcode and ctx,
// to the Event the caller should raise and the Outcome it should
// unblock on.
func Handle(status protocol.Status, opcode protocol.Opcode, pkt *protocol.Packet, ctx Context) (events.Event, Outcome) {
	base := events.Event{Status: status, Opcode: opcode, Packet: pkt}

	if status == protocol.StatusOK {
		return handleOK(base, opcode, pkt, ctx)
	}

	switch status {
	case protocol.StatusNoFinger:
		base.Type = events.NoFinger
		return base, OutcomeFail

	case protocol.StatusImageFail, protocol.StatusTooDry, protocol.StatusTooWet,
		protocol.StatusTooChaotic, protocol.StatusImageAreaSmall,
		protocol.StatusUploadImageFail, protocol.StatusImageNotAvailable:
		base.Type = events.ImageFail
		return base, OutcomeFail

	case protocol.StatusTooFewPoints:
		base.Type = events.FeatureExtractFail
		return base, OutcomeFail

	case protocol.StatusMismatch, protocol.StatusNotFound:
		if opcode == protocol.OpSearch && ctx.EnrollmentInProgress {
			// No duplicate found: good news for an enrollment's
			// pre-store uniqueness check.
			base.Type = events.SearchFail
			return base, OutcomeSuccess
		}
		base.Type = events.MatchFail
		return base, OutcomeFail

	case protocol.StatusAlreadyExists, protocol.StatusDBEmpty,
		protocol.StatusDeleteFail, protocol.StatusEntryCountError:
		base.Type = events.TemplateExists
		return base, OutcomeFail

	case protocol.StatusNoDataPacket, protocol.StatusDataPacketError:
		if opcode == protocol.OpDownChar {
			// The sensor reports a packet-framing complaint on
			// down-char even when the upload it describes actually
			// landed; treat it as success rather than surface noise.
			base.Type = events.TemplateStorePacketError
			return base, OutcomeSuccess
		}
		base.Type = events.Error
		return base, OutcomeFail

	case protocol.StatusEncryptionMismatch:
		if opcode == protocol.OpDownChar {
			base.Type = events.TemplateStorePacketError
			return base, OutcomeSuccess
		}
		base.Type = events.Error
		return base, OutcomeFail

	default:
		base.Type = events.Error
		return base, OutcomeFail
	}
}

func handleOK(base events.Event, opcode protocol.Opcode, pkt *protocol.Packet, ctx Context) (events.Event, Outcome) {
	switch opcode {
	case protocol.OpGetImage, protocol.OpGetEnrollImage:
		base.Type = events.FingerDetected
		return base, OutcomeSuccess

	case protocol.OpGenChar:
		base.Type = events.FeatureExtracted
		return base, OutcomeSuccess

	case protocol.OpRegModel:
		base.Type = events.ModelCreated
		return base, OutcomeSuccess

	case protocol.OpStoreChar:
		base.Type = events.TemplateStored
		return base, OutcomeSuccess

	case protocol.OpLoadChar:
		base.Type = events.TemplateLoaded
		return base, OutcomeSuccess

	case protocol.OpSearch:
		return handleSearchOK(base, pkt, ctx)

	case protocol.OpReadIndexTable:
		return handleIndexTableOK(base, pkt, ctx)

	case protocol.OpValidTemplateNum:
		base.Type = events.TemplateCount
		base.TemplateCount = protocol.DecodeTemplateCount(pkt.Parameters)
		return base, OutcomeSuccess

	case protocol.OpReadSysPara:
		block := protocol.DecodeSysParams(pkt.Parameters)
		base.Type = events.SysParamsRead
		base.SysParams = &events.SysParams{
			StatusRegister: block.StatusRegister,
			SystemID:       block.SystemID,
			LibrarySize:    block.LibrarySize,
			SecurityLevel:  block.SecurityLevel,
			DeviceAddress:  block.DeviceAddress,
			PacketSize:     block.PacketSize,
			BaudSetting:    block.BaudSetting,
		}
		return base, OutcomeSuccess

	case protocol.OpUpChar:
		base.Type = events.Ack
		return base, OutcomeSuccess

	default:
		base.Type = events.Ack
		return base, OutcomeSuccess
	}
}

func handleSearchOK(base events.Event, pkt *protocol.Packet, ctx Context) (events.Event, Outcome) {
	result := protocol.DecodeSearchResult(pkt.Parameters)

	if result.Score > 0 {
		base.Type = events.SearchSuccess
		base.Match = &events.MatchInfo{PageID: result.PageID, TemplateID: result.PageID, Score: result.Score}
		return base, OutcomeSuccess
	}

	// Zero-score OK reply: the sensor found no candidate. During
	// enrollment's duplicate check this unblocks the wait (no
	// duplicate, proceed to store); during verify it is deliberately
	// silent so the caller's 3 s timeout is what decides no-match.
	if ctx.EnrollmentInProgress {
		base.Type = events.SearchFail
		base.Match = &events.MatchInfo{PageID: result.PageID, Score: 0}
		return base, OutcomeFail
	}
	return events.Event{}, OutcomeNone
}

func handleIndexTableOK(base events.Event, pkt *protocol.Packet, ctx Context) (events.Event, Outcome) {
	base.Type = events.IndexTableRead
	if !ctx.CheckingLocation {
		return base, OutcomeSuccess
	}
	occupied := protocol.IndexBitOccupied(pkt.Parameters, ctx.LocationBit)
	base.IndexOccupied = &occupied
	if occupied {
		return base, OutcomeFail
	}
	return base, OutcomeSuccess
}
