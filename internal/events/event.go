// Package events implements the event bus (C8): a single registered
// handler receiving typed events describing protocol replies and
// driver-level outcomes (finger detected, feature extracted, match
// found, template uploaded, errors, ...).
package events

import (
	"github.com/alvinjay/fpsensor/internal/protocol"
	"github.com/alvinjay/fpsensor/internal/templatebuf"
)

// Type discriminates the Event union.
type Type int

const (
	FingerDetected Type = iota
	ImageValid
	FeatureExtracted
	ModelCreated
	TemplateStored
	TemplateLoaded
	TemplateUploaded
	SearchSuccess
	SearchFail
	TemplateCount
	SysParamsRead
	IndexTableRead
	NoFinger
	ImageFail
	FeatureExtractFail
	MatchFail
	TemplateExists
	TemplateStorePacketError
	Error
	Ack
)

func (t Type) String() string {
	names := map[Type]string{
		FingerDetected:           "finger-detected",
		ImageValid:               "image-valid",
		FeatureExtracted:         "feature-extracted",
		ModelCreated:             "model-created",
		TemplateStored:           "template-stored",
		TemplateLoaded:           "template-loaded",
		TemplateUploaded:         "template-uploaded",
		SearchSuccess:            "search-success",
		SearchFail:               "search-fail",
		TemplateCount:            "template-count",
		SysParamsRead:            "sys-params-read",
		IndexTableRead:           "index-table-read",
		NoFinger:                 "no-finger",
		ImageFail:                "image-fail",
		FeatureExtractFail:       "feature-extract-fail",
		MatchFail:                "match-fail",
		TemplateExists:           "template-exists",
		TemplateStorePacketError: "template-store-packet-error",
		Error:                    "error",
		Ack:                      "ack",
	}
	if s, ok := names[t]; ok {
		return s
	}
	return "unknown"
}

// MatchInfo is the payload of a search/match result.
type MatchInfo struct {
	PageID     uint16
	TemplateID uint16
	Score      uint16
}

// SysParams mirrors the sensor's 16-byte system-parameter block.
type SysParams struct {
	StatusRegister uint16
	SystemID       uint16
	LibrarySize    uint16
	SecurityLevel  uint16
	DeviceAddress  uint32
	PacketSize     uint16
	BaudSetting    uint16
}

// TemplatePayload is the deep-copied template artifact delivered to
// the handler; the driver's own accumulator buffer is freed separately.
type TemplatePayload struct {
	Data     []byte
	Size     int
	Complete bool
}

// CopyTemplatePayload deep-copies tb into a handler-owned payload. A
// nil source (the allocation-failure path in the source driver) yields
// a zeroed payload rather than a dangling pointer.
func CopyTemplatePayload(tb *templatebuf.TemplateBuffer) *TemplatePayload {
	if tb == nil {
		return &TemplatePayload{}
	}
	return &TemplatePayload{
		Data:     append([]byte(nil), tb.Data...),
		Size:     tb.Size,
		Complete: tb.Complete,
	}
}

// Event is the discriminated union delivered to the registered handler.
type Event struct {
	Type          Type
	Status        protocol.Status
	Opcode        protocol.Opcode
	Packet        *protocol.Packet
	Match         *MatchInfo
	TemplateCount int
	SysParams     *SysParams
	Template      *TemplatePayload
	IndexOccupied *bool
	Err           error
}
