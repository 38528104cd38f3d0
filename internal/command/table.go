// Package command holds the declarative catalog of sensor command
// templates (C4): fixed opcode plus default parameters, mirrored after
// the teacher's internal/uapi constant tables but expressed as
// immutable Go values rather than raw integer constants, since each
// template also carries a default parameter set.
package command

import "github.com/alvinjay/fpsensor/internal/protocol"

// Template is an immutable command description. Callers never mutate
// a Template; Build copies it into a fresh *protocol.Packet.
type Template struct {
	Name          string
	Opcode        protocol.Opcode
	DefaultParams []byte
}

// Build produces a COMMAND packet for this template addressed to
// address. If params is nil, the template's DefaultParams are used.
func (t Template) Build(address uint32, params []byte) (*protocol.Packet, error) {
	p := protocol.NewPacket(address)
	if params == nil {
		params = t.DefaultParams
	}
	if err := protocol.SetCommand(p, t.Opcode, params, len(params)); err != nil {
		return nil, err
	}
	return p, nil
}

// The catalog. Buffer-selecting commands (GenChar, UpChar, DownChar)
// default to buffer 1; callers needing buffer 2 pass params explicitly.
var (
	Handshake        = Template{"Handshake", protocol.OpHandshake, nil}
	GetImage         = Template{"GetImage", protocol.OpGetImage, nil}
	GenChar          = Template{"GenChar", protocol.OpGenChar, []byte{0x01}}
	Match            = Template{"Match", protocol.OpMatch, nil}
	Search           = Template{"Search", protocol.OpSearch, nil}
	RegModel         = Template{"RegModel", protocol.OpRegModel, nil}
	StoreChar        = Template{"StoreChar", protocol.OpStoreChar, []byte{0x01, 0x00, 0x00}}
	LoadChar         = Template{"LoadChar", protocol.OpLoadChar, []byte{0x01, 0x00, 0x00}}
	UpChar           = Template{"UpChar", protocol.OpUpChar, []byte{0x01}}
	DownChar         = Template{"DownChar", protocol.OpDownChar, []byte{0x01}}
	DeleteChar       = Template{"DeleteChar", protocol.OpDeleteChar, nil}
	EmptyDatabase    = Template{"EmptyDatabase", protocol.OpEmptyDatabase, nil}
	ReadSysPara      = Template{"ReadSysPara", protocol.OpReadSysPara, nil}
	ReadIndexTable   = Template{"ReadIndexTable", protocol.OpReadIndexTable, nil}
	ValidTemplateNum = Template{"ValidTemplateNum", protocol.OpValidTemplateNum, nil}
	ReadInfoPage     = Template{"ReadInfoPage", protocol.OpReadInfPage, nil}
	ControlLED       = Template{"ControlLED", protocol.OpControlLED, nil}
	Sleep            = Template{"Sleep", protocol.OpSleep, nil}
	SetPassword      = Template{"SetPassword", protocol.OpSetPassword, nil}
	VerifyPassword   = Template{"VerifyPassword", protocol.OpVerifyPassword, nil}
	AutoEnroll       = Template{"AutoEnroll", protocol.OpAutoEnroll, nil}
	AutoIdentify     = Template{"AutoIdentify", protocol.OpAutoIdentify, nil}
	Cancel           = Template{"Cancel", protocol.OpCancel, nil}
	FactoryReset     = Template{"FactoryReset", protocol.OpFactoryReset, nil}
	SetChipAddr      = Template{"SetChipAddr", protocol.OpSetChipAddr, nil}
	WriteReg         = Template{"WriteReg", protocol.OpWriteReg, nil}
	WriteNotepad     = Template{"WriteNotepad", protocol.OpWriteNotepad, nil}
	ReadNotepad      = Template{"ReadNotepad", protocol.OpReadNotepad, nil}
	GetRandomCode    = Template{"GetRandomCode", protocol.OpGetRandomCode, nil}
	GetChipSN        = Template{"GetChipSN", protocol.OpGetChipSN, nil}
	BurnCode         = Template{"BurnCode", protocol.OpBurnCode, nil}
)

// GenCharBuffer returns params selecting buffer 1 or 2 for GenChar/UpChar/DownChar.
func GenCharBuffer(buffer int) []byte {
	return []byte{byte(buffer)}
}

// DeleteCharParams encodes (page_high, page_low, 0x00, count) for DeleteChar.
func DeleteCharParams(location uint16, count uint16) []byte {
	return []byte{
		byte(location >> 8), byte(location),
		byte(count >> 8), byte(count),
	}
}

// LoadStoreParams encodes (buffer, page_high, page_low) for LoadChar/StoreChar.
func LoadStoreParams(buffer int, location uint16) []byte {
	return []byte{byte(buffer), byte(location >> 8), byte(location)}
}

// SearchParams encodes (buffer, start_high, start_low, count_high, count_low).
func SearchParams(buffer int, start, count uint16) []byte {
	return []byte{
		byte(buffer),
		byte(start >> 8), byte(start),
		byte(count >> 8), byte(count),
	}
}

// ReadIndexTableParams encodes the page index to read.
func ReadIndexTableParams(page byte) []byte {
	return []byte{page}
}
