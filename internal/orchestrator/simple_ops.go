package orchestrator

import (
	"time"

	"github.com/alvinjay/fpsensor/internal/command"
	"github.com/alvinjay/fpsensor/internal/events"
	"github.com/alvinjay/fpsensor/internal/ferrors"
	"github.com/alvinjay/fpsensor/internal/statushandler"
)

// Delete removes the template at location.
func (o *Orchestrator) Delete(location uint16) error {
	params := command.DeleteCharParams(location, 1)
	_, err := o.dispatch(command.DeleteChar, params, statushandler.Context{}, 2*time.Second, 1)
	return err
}

// Clear empties the entire template database.
func (o *Orchestrator) Clear() error {
	_, err := o.dispatch(command.EmptyDatabase, nil, statushandler.Context{}, 5*time.Second, 1)
	return err
}

// Count reports the number of stored templates.
func (o *Orchestrator) Count() (int, error) {
	ev, err := o.dispatch(command.ValidTemplateNum, nil, statushandler.Context{}, 2*time.Second, 1)
	if err != nil {
		return 0, err
	}
	return ev.TemplateCount, nil
}

// ReadSystemParameters reads the sensor's 16-byte system-parameter block.
func (o *Orchestrator) ReadSystemParameters() (events.SysParams, error) {
	ev, err := o.dispatch(command.ReadSysPara, nil, statushandler.Context{}, 2*time.Second, 1)
	if err != nil || ev.SysParams == nil {
		return events.SysParams{}, err
	}
	return *ev.SysParams, nil
}

// CheckExists reports whether a template is present at location,
// preferring the index-table bit and falling back to load-char.
func (o *Orchestrator) CheckExists(location uint16) (bool, error) {
	page := byte(location >> 8)
	bit := int(location & 0xFF)
	ctx := statushandler.Context{CheckingLocation: true, LocationBit: bit}
	_, err := o.dispatch(command.ReadIndexTable, command.ReadIndexTableParams(page), ctx, 2*time.Second, 1)
	if err == nil {
		return false, nil
	}
	if ferrors.Is(err, ferrors.CodeOccupied) {
		return true, nil
	}

	// Fallback: a non-error load-char reply means present.
	params := command.LoadStoreParams(1, location)
	if _, err := o.dispatch(command.LoadChar, params, statushandler.Context{}, 2*time.Second, 1); err != nil {
		return false, nil
	}
	return true, nil
}
