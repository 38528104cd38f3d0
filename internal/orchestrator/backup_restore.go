package orchestrator

import (
	"time"

	"github.com/alvinjay/fpsensor/internal/command"
	"github.com/alvinjay/fpsensor/internal/events"
	"github.com/alvinjay/fpsensor/internal/ferrors"
	"github.com/alvinjay/fpsensor/internal/protocol"
	"github.com/alvinjay/fpsensor/internal/statushandler"
)

const (
	backupTimeout  = 5 * time.Second
	restoreChunk   = protocol.MaxParameters
	restoreTimeout = 2 * time.Second
)

// rawWriter is implemented by transport.Session for restore's
// unacknowledged DATA/END_DATA stream.
type rawWriter interface {
	WriteRaw(pkt *protocol.Packet) error
}

// Backup loads the template at id into buffer 1 and uploads it,
// returning the accumulated bytes once the transfer completes.
func (o *Orchestrator) Backup(id uint16) (*events.TemplatePayload, error) {
	loadParams := command.LoadStoreParams(1, id)
	if _, err := o.dispatch(command.LoadChar, loadParams, statushandler.Context{}, 2*time.Second, 1); err != nil {
		return nil, ferrors.Wrap("orchestrator.Backup", err)
	}

	ev, err := o.dispatch(command.UpChar, command.GenCharBuffer(1), statushandler.Context{}, backupTimeout, 1)
	if err != nil {
		return nil, ferrors.Wrap("orchestrator.Backup", err)
	}
	if ev.Template == nil {
		return nil, ferrors.New("orchestrator.Backup", ferrors.CodeProtocolError, "upload completed with no template payload")
	}
	return ev.Template, nil
}

// Restore streams data into buffer 1 via down-char/DATA/END_DATA and
// persists it at id.
func (o *Orchestrator) Restore(id uint16, data []byte) error {
	raw, ok := o.session.(rawWriter)
	if !ok {
		return ferrors.New("orchestrator.Restore", ferrors.CodeUnavailable, "transport does not support raw frame writes")
	}

	if _, err := o.dispatch(command.DownChar, command.GenCharBuffer(1), statushandler.Context{}, restoreTimeout, 1); err != nil {
		return ferrors.Wrap("orchestrator.Restore", err)
	}

	for offset := 0; offset < len(data); offset += restoreChunk {
		end := offset + restoreChunk
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		isLast := end == len(data)

		pktID := protocol.PacketData
		if isLast && len(chunk) < restoreChunk {
			pktID = protocol.PacketEndData
		}
		pkt := &protocol.Packet{Header: protocol.HeaderSentinel, PacketID: pktID, Parameters: chunk}
		pkt.Length = uint16(len(chunk) + 2)
		protocol.RecomputeChecksum(pkt)
		if err := raw.WriteRaw(pkt); err != nil {
			return ferrors.Wrap("orchestrator.Restore", err)
		}
	}

	if len(data)%restoreChunk == 0 {
		endPkt := &protocol.Packet{Header: protocol.HeaderSentinel, PacketID: protocol.PacketEndData, Length: 2}
		protocol.RecomputeChecksum(endPkt)
		if err := raw.WriteRaw(endPkt); err != nil {
			return ferrors.Wrap("orchestrator.Restore", err)
		}
	}

	storeParams := command.LoadStoreParams(1, id)
	if _, err := o.dispatch(command.StoreChar, storeParams, statushandler.Context{}, 2*time.Second, 1); err != nil {
		return ferrors.Wrap("orchestrator.Restore", err)
	}
	return nil
}

// ReadInfoPage accepts up to 32 DATA packets (≤16 bytes each)
// terminated by an END_DATA and returns the concatenated bytes.
func (o *Orchestrator) ReadInfoPage() ([]byte, error) {
	ev, err := o.dispatch(command.ReadInfoPage, nil, statushandler.Context{}, backupTimeout, 1)
	if err != nil {
		return nil, ferrors.Wrap("orchestrator.ReadInfoPage", err)
	}
	if ev.Template == nil {
		return nil, ferrors.New("orchestrator.ReadInfoPage", ferrors.CodeProtocolError, "no info page payload")
	}
	return ev.Template.Data, nil
}
