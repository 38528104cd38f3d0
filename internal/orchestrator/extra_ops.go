package orchestrator

import (
	"encoding/binary"
	"time"

	"github.com/alvinjay/fpsensor/internal/command"
	"github.com/alvinjay/fpsensor/internal/ferrors"
	"github.com/alvinjay/fpsensor/internal/statushandler"
)

// Thin single-step wrappers over opcodes the command table (C4)
// already declares. None of these need orchestration beyond "encode,
// send, decode one ACK"; they exist so those declared opcodes have a
// reachable caller.

// Sleep issues the sensor's low-power opcode.
func (o *Orchestrator) Sleep() error {
	_, err := o.dispatch(command.Sleep, nil, statushandler.Context{}, 2*time.Second, 1)
	return err
}

// SetPassword sets the sensor's 4-byte handshake password.
func (o *Orchestrator) SetPassword(password uint32) error {
	_, err := o.dispatch(command.SetPassword, encodeUint32(password), statushandler.Context{}, 2*time.Second, 1)
	return err
}

// VerifyPassword checks password against the sensor's configured one.
func (o *Orchestrator) VerifyPassword(password uint32) error {
	_, err := o.dispatch(command.VerifyPassword, encodeUint32(password), statushandler.Context{}, 2*time.Second, 1)
	return err
}

// SetChipAddress reassigns the sensor's module address; subsequent
// commands on this orchestrator address themselves to the new value.
func (o *Orchestrator) SetChipAddress(address uint32) error {
	_, err := o.dispatch(command.SetChipAddr, encodeUint32(address), statushandler.Context{}, 2*time.Second, 1)
	if err == nil {
		o.mu.Lock()
		o.address = address
		o.mu.Unlock()
	}
	return err
}

// WriteNotepad writes up to 32 bytes to the given notepad page (0-15).
func (o *Orchestrator) WriteNotepad(page byte, data []byte) error {
	if len(data) > 32 {
		return ferrors.New("orchestrator.WriteNotepad", ferrors.CodeInvalidParameters, "notepad page holds at most 32 bytes")
	}
	params := make([]byte, 33)
	params[0] = page
	copy(params[1:], data)
	_, err := o.dispatch(command.WriteNotepad, params, statushandler.Context{}, 2*time.Second, 1)
	return err
}

// ReadNotepad reads the 32-byte contents of the given notepad page.
func (o *Orchestrator) ReadNotepad(page byte) ([]byte, error) {
	ev, err := o.dispatch(command.ReadNotepad, []byte{page}, statushandler.Context{}, 2*time.Second, 1)
	if err != nil {
		return nil, err
	}
	if ev.Packet == nil {
		return nil, ferrors.New("orchestrator.ReadNotepad", ferrors.CodeProtocolError, "no notepad payload")
	}
	return ev.Packet.Parameters, nil
}

// RandomCode requests a 4-byte random value from the sensor's RNG.
func (o *Orchestrator) RandomCode() (uint32, error) {
	ev, err := o.dispatch(command.GetRandomCode, nil, statushandler.Context{}, 2*time.Second, 1)
	if err != nil {
		return 0, err
	}
	if ev.Packet == nil || len(ev.Packet.Parameters) < 4 {
		return 0, ferrors.New("orchestrator.RandomCode", ferrors.CodeProtocolError, "short random code reply")
	}
	return binary.BigEndian.Uint32(ev.Packet.Parameters), nil
}

// ChipSerialNumber reads the sensor's factory-programmed serial number.
func (o *Orchestrator) ChipSerialNumber() ([]byte, error) {
	ev, err := o.dispatch(command.GetChipSN, nil, statushandler.Context{}, 2*time.Second, 1)
	if err != nil {
		return nil, err
	}
	if ev.Packet == nil {
		return nil, ferrors.New("orchestrator.ChipSerialNumber", ferrors.CodeProtocolError, "no serial number payload")
	}
	return ev.Packet.Parameters, nil
}

// SetMode switches which capture buffer and follow-up the presence
// pipeline uses for its next detection cycle. Exported for the root
// Driver's SetOperationMode.
func (o *Orchestrator) SetMode(mode Mode) {
	o.setMode(mode)
}

func encodeUint32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
